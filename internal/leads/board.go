package leads

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

// ErrLeadNotFound is returned by Board.Delete for an id not on the board.
var ErrLeadNotFound = errors.New("lead not on the board")

// Board is the dashboard screen state: the mounted list, the active
// criteria and the visible subset derived from both.
type Board struct {
	ingester *Ingester

	mu       sync.Mutex
	loaded   bool
	all      []Lead
	source   string
	attempts []Attempt
	loadErr  error
	criteria Criteria
	visible  []Lead
}

func NewBoard(in *Ingester) *Board {
	return &Board{ingester: in, criteria: DefaultCriteria()}
}

// View is a read-only copy of the board.
type View struct {
	Loaded    bool      `json:"loaded"`
	Source    string    `json:"source"`
	Attempts  []Attempt `json:"attempts"`
	Total     int       `json:"total"`
	Visible   []Lead    `json:"visible"`
	Stats     Stats     `json:"stats"`
	Criteria  Criteria  `json:"-"`
	FormTypes []string  `json:"formTypes"`
	Err       error     `json:"-"`
}

// Load mounts the board: it re-probes from the first candidate and
// recomputes the visible list. A *NoLeadsError leaves an empty, usable board.
func (b *Board) Load(ctx context.Context) error {
	res, err := b.ingester.Ingest(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.loaded = true
	b.all = res.Records
	b.source = res.Source
	b.attempts = res.Attempts
	b.loadErr = err
	b.recompute()
	return err
}

// Loaded reports whether Load has run.
func (b *Board) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

// SetCriteria replaces the filters and recomputes from the mounted list.
func (b *Board) SetCriteria(c Criteria) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.criteria = c
	b.recompute()
}

// Visible returns a copy of the filtered list.
func (b *Board) Visible() []Lead {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Lead(nil), b.visible...)
}

// View snapshots the board.
func (b *Board) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	visible := append([]Lead{}, b.visible...)
	return View{
		Loaded:    b.loaded,
		Source:    b.source,
		Attempts:  append([]Attempt(nil), b.attempts...),
		Total:     len(b.all),
		Visible:   visible,
		Stats:     Summarize(visible),
		Criteria:  b.criteria,
		FormTypes: FormTypes(b.all),
		Err:       b.loadErr,
	}
}

// Remove drops a lead from the mounted list without touching the store.
func (b *Board) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, l := range b.all {
		if l.ID == id {
			b.all = append(b.all[:i:i], b.all[i+1:]...)
			b.recompute()
			return true
		}
	}
	return false
}

// CollectionOf returns the source collection of the mounted lead id.
func (b *Board) CollectionOf(id string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range b.all {
		if l.ID == id {
			return l.Collection, true
		}
	}
	return "", false
}

// Delete removes the lead document from its source collection, then drops it
// from the board without re-probing. Only leads on the board can be deleted.
func (b *Board) Delete(ctx context.Context, store docstore.DocWriter, id string) error {
	collection, ok := b.CollectionOf(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrLeadNotFound)
	}
	if err := store.Delete(ctx, collection, id); err != nil {
		return fmt.Errorf("delete lead %s/%s: %w", collection, id, err)
	}
	b.Remove(id)
	return nil
}

// recompute MUST be called with b.mu held.
func (b *Board) recompute() {
	b.visible = Filter(b.all, b.criteria)
}
