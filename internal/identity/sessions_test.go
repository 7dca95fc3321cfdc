package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/trendingmotion/motion-crm/internal/engine"
)

func sampleSession(now time.Time) *Session {
	return &Session{
		Token:     "tok-1",
		UserID:    "u1",
		Email:     "admin@example.com",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestMemorySessions(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySessions()
	s := sampleSession(time.Now())

	m.Put(ctx, s)
	got, err := m.Lookup(ctx, "tok-1")
	if err != nil || got.Email != s.Email {
		t.Fatalf("Lookup failed: %v, %v", got, err)
	}

	m.Remove(ctx, "tok-1")
	if _, err := m.Lookup(ctx, "tok-1"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession, got %v", err)
	}
}

func TestRedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := DialRedis(ctx, mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("DialRedis failed: %v", err)
	}
	defer client.Close()

	r := NewRedisSessions(client)
	s := sampleSession(time.Now())

	if err := r.Put(ctx, s); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if ttl := mr.TTL(redisKeyPrefix + "tok-1"); ttl <= 0 || ttl > time.Hour {
		t.Errorf("unexpected TTL %v", ttl)
	}

	got, err := r.Lookup(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.Email != s.Email || !got.ExpiresAt.Equal(s.ExpiresAt) {
		t.Errorf("session mismatch: %+v", got)
	}

	// Redis drops the key when the session expires
	mr.FastForward(2 * time.Hour)
	if _, err := r.Lookup(ctx, "tok-1"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession after expiry, got %v", err)
	}

	r.Put(ctx, s)
	if err := r.Remove(ctx, "tok-1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := r.Lookup(ctx, "tok-1"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession after remove, got %v", err)
	}
}

func TestRedisSessions_RejectsExpired(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	r := NewRedisSessions(client)
	s := sampleSession(time.Now().Add(-2 * time.Hour))
	if err := r.Put(context.Background(), s); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Expected ErrSessionExpired, got %v", err)
	}
	if mr.Exists(redisKeyPrefix + s.Token) {
		t.Error("expired session should not be stored")
	}
}

func TestSignIn_ExpiredOnArrivalIsNotHandedOut(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	clk := &clock{now: time.Now().Add(-2 * time.Hour)}
	p := NewProvider(engine.NewMemStore(nil, nil), NewRedisSessions(client), time.Hour, zerolog.Nop(),
		WithClock(clk.Now), WithHashCost(bcrypt.MinCost))
	if _, err := p.CreateUser(ctx, "ops@example.com", "correct-horse", ""); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	session, err := p.SignIn(ctx, "ops@example.com", "correct-horse")
	if session != nil || reasonOf(err) != ReasonInternal || !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Expected an internal rejection, got %v, %v", session, err)
	}
	if UserMessage(err) != MessageLoginFailed {
		t.Errorf("unexpected message %q", UserMessage(err))
	}
}

func TestDialRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := DialRedis(ctx, "127.0.0.1:1", "", 0); err == nil {
		t.Error("Expected error dialing a closed port")
	}
}
