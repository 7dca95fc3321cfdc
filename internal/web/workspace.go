package web

import (
	"sync"
	"time"

	"github.com/trendingmotion/motion-crm/internal/blog"
	"github.com/trendingmotion/motion-crm/internal/identity"
	"github.com/trendingmotion/motion-crm/internal/leads"
)

// Workspace is the screen state of one session. mu is held for the whole
// of each request of that session.
type Workspace struct {
	mu    sync.Mutex
	Board *leads.Board
	Blog  *blog.Listing
}

type workspaceEntry struct {
	ws      *Workspace
	expires time.Time
}

// workspaces maps session tokens to their screen state. Entries go away on
// sign-out, when the session is found gone, and once past the session's
// expiry.
type workspaces struct {
	mu      sync.Mutex
	byTok   map[string]workspaceEntry
	factory func() *Workspace
	now     func() time.Time
}

func newWorkspaces(factory func() *Workspace) *workspaces {
	return &workspaces{byTok: make(map[string]workspaceEntry), factory: factory, now: time.Now}
}

// get returns the workspace of session, creating it on first use. Creating
// one sweeps the entries of expired sessions.
func (w *workspaces) get(session *identity.Session) *Workspace {
	w.mu.Lock()
	defer w.mu.Unlock()
	entry, ok := w.byTok[session.Token]
	if !ok {
		w.sweepLocked()
		entry.ws = w.factory()
	}
	entry.expires = session.ExpiresAt
	w.byTok[session.Token] = entry
	return entry.ws
}

func (w *workspaces) sweepLocked() {
	now := w.now()
	for token, entry := range w.byTok {
		if !now.Before(entry.expires) {
			delete(w.byTok, token)
		}
	}
}

func (w *workspaces) drop(token string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.byTok, token)
}

func (w *workspaces) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.byTok)
}

// onSessionEvent drops the state of sessions that ended.
func (w *workspaces) onSessionEvent(ev identity.Event) {
	if ev.Session == nil {
		w.drop(ev.Token)
	}
}
