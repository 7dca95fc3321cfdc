// Package identity authenticates dashboard operators. Users live in the
// document store; sessions live in memory or in Redis.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/trendingmotion/motion-crm/pkg/docstore"
	"github.com/trendingmotion/motion-crm/pkg/schema"
)

// Rejection reasons reported by SignIn.
const (
	ReasonInvalidCredential = "invalid-credential"
	ReasonInvalidEmail      = "invalid-email"
	ReasonWrongPassword     = "wrong-password"
	ReasonUserNotFound      = "user-not-found"
	ReasonUserDisabled      = "user-disabled"
	ReasonInternal          = "internal"
)

// Fixed messages shown to the operator. Provider reasons never reach the UI.
const (
	MessageInvalidLogin = "Invalid email or password."
	MessageLoginFailed  = "Failed to login. Please try again later."
)

var (
	// ErrNoSession is returned when a token has no live session.
	ErrNoSession = errors.New("no active session")
	// ErrUserExists is returned by CreateUser for a taken email.
	ErrUserExists = errors.New("user already exists")
	// ErrSessionExpired is returned by a SessionStore asked to keep a
	// session that has already expired.
	ErrSessionExpired = errors.New("session already expired")
)

// RejectedError is a failed sign-in carrying the provider reason code.
type RejectedError struct {
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sign-in rejected (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("sign-in rejected (%s)", e.Reason)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// UserMessage maps a sign-in failure onto the text shown on the login screen.
func UserMessage(err error) string {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		switch rejected.Reason {
		case ReasonInvalidCredential, ReasonInvalidEmail, ReasonWrongPassword, ReasonUserNotFound:
			return MessageInvalidLogin
		}
	}
	return MessageLoginFailed
}

// Session is an authenticated sign-in. Presence gates every screen.
type Session struct {
	Token       string    `json:"token"`
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Event reports a session change. A nil Session means the token signed out
// or expired.
type Event struct {
	Token   string
	Session *Session
}

// UserStore is the part of the document store the provider needs.
type UserStore interface {
	docstore.DocReader
	docstore.DocWriter
}

// Provider signs operators in and out and broadcasts session changes.
type Provider struct {
	store    UserStore
	sessions SessionStore
	ttl      time.Duration
	log      zerolog.Logger
	validate *validator.Validate
	hashCost int
	now      func() time.Time

	mu     sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

type Option func(*Provider)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithHashCost sets the bcrypt cost used for new passwords.
func WithHashCost(cost int) Option {
	return func(p *Provider) { p.hashCost = cost }
}

func NewProvider(store UserStore, sessions SessionStore, ttl time.Duration, log zerolog.Logger, opts ...Option) *Provider {
	p := &Provider{
		store:    store,
		sessions: sessions,
		ttl:      ttl,
		log:      log.With().Str("component", "identity").Logger(),
		validate: validator.New(),
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
		subs:     make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignIn checks the credentials and opens a session.
func (p *Provider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if err := p.validate.Var(email, "required,email"); err != nil {
		return nil, &RejectedError{Reason: ReasonInvalidEmail}
	}
	if password == "" {
		return nil, &RejectedError{Reason: ReasonInvalidCredential}
	}

	user, err := docstore.Get[schema.UserRecord](ctx, p.store, schema.UsersCollection, email)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, &RejectedError{Reason: ReasonUserNotFound}
	}
	if err != nil {
		return nil, &RejectedError{Reason: ReasonInternal, Err: err}
	}
	if user.Disabled {
		return nil, &RejectedError{Reason: ReasonUserDisabled}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, &RejectedError{Reason: ReasonWrongPassword}
	}

	now := p.now().UTC()
	session := &Session{
		Token:       uuid.NewString(),
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		CreatedAt:   now,
		ExpiresAt:   now.Add(p.ttl),
	}
	if err := p.sessions.Put(ctx, session); err != nil {
		return nil, &RejectedError{Reason: ReasonInternal, Err: err}
	}

	user.LastActive = now
	if err := docstore.Set(ctx, p.store, schema.UsersCollection, email, user); err != nil {
		p.log.Warn().Err(err).Str("email", email).Msg("could not record last activity")
	}
	p.audit(ctx, email, schema.ActionSignIn, "session opened")
	p.log.Info().Str("email", email).Msg("signed in")

	p.notify(Event{Token: session.Token, Session: session})
	return session, nil
}

// SignOut ends the session behind token. Unknown tokens are ignored.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	session, err := p.sessions.Lookup(ctx, token)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := p.sessions.Remove(ctx, token); err != nil {
		return err
	}

	p.audit(ctx, session.Email, schema.ActionSignOut, "session closed")
	p.log.Info().Str("email", session.Email).Msg("signed out")

	p.notify(Event{Token: token})
	return nil
}

// Current returns the live session behind token. Expired sessions are
// removed and reported to subscribers.
func (p *Provider) Current(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	session, err := p.sessions.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.Expired(p.now()) {
		if err := p.sessions.Remove(ctx, token); err != nil {
			p.log.Warn().Err(err).Msg("could not remove expired session")
		}
		p.notify(Event{Token: token})
		return nil, ErrNoSession
	}
	return session, nil
}

// Subscribe registers fn for every session change and returns a function
// removing it.
func (p *Provider) Subscribe(fn func(Event)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

func (p *Provider) notify(ev Event) {
	p.mu.Lock()
	fns := make([]func(Event), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// CreateUser registers a new operator.
func (p *Provider) CreateUser(ctx context.Context, email, password, displayName string) (*schema.UserRecord, error) {
	email = normalizeEmail(email)
	if err := p.validate.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("invalid email %q: %w", email, err)
	}
	if err := p.validate.Var(password, "min=8"); err != nil {
		return nil, errors.New("password must be at least 8 characters")
	}

	_, err := p.store.Get(ctx, schema.UsersCollection, email)
	if err == nil {
		return nil, fmt.Errorf("%s: %w", email, ErrUserExists)
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("look up user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	if displayName == "" {
		displayName = email
	}
	user := &schema.UserRecord{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		CreatedAt:    p.now().UTC(),
	}
	if err := docstore.Set(ctx, p.store, schema.UsersCollection, email, user); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}

	p.audit(ctx, email, schema.ActionUserCreate, "operator registered")
	return user, nil
}

// EnsureUser creates the operator unless one with that email exists.
func (p *Provider) EnsureUser(ctx context.Context, email, password string) error {
	_, err := p.CreateUser(ctx, email, password, "")
	if errors.Is(err, ErrUserExists) {
		return nil
	}
	return err
}

func (p *Provider) audit(ctx context.Context, actor, action, details string) {
	entry := schema.AuditLog{
		Timestamp: p.now().UTC(),
		Actor:     actor,
		Action:    action,
		Details:   details,
	}
	if err := docstore.Set(ctx, p.store, schema.AuditCollection, uuid.NewString(), entry); err != nil {
		p.log.Warn().Err(err).Str("action", action).Msg("could not write audit entry")
	}
}
