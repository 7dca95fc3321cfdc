package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

// MemStore is the thread-safe embedded document engine.
type MemStore struct {
	mu sync.RWMutex
	// Structure: [collection][id]document
	data      map[string]map[string]map[string]any
	persister *Persistence
	indexes   Indexes
	seq       uint64
	closed    bool
	wg        sync.WaitGroup
}

// NewMemStore initializes a store.
// It accepts existing data (from LoadAll) and a persister, which may be nil.
func NewMemStore(initialData map[string]map[string]map[string]any, p *Persistence) *MemStore {
	if initialData == nil {
		initialData = make(map[string]map[string]map[string]any)
	}
	return &MemStore{
		data:      initialData,
		persister: p,
	}
}

// EnforceIndexes switches the store to strict ordering: ordered queries on
// fields not declared in ix fail with docstore.ErrMissingIndex.
func (m *MemStore) EnforceIndexes(ix Indexes) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexes = ix
}

// Wait waits for all background persistence tasks to complete.
func (m *MemStore) Wait() {
	m.wg.Wait()
}

// Close stops accepting operations and flushes pending writes.
func (m *MemStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.Wait()
	return nil
}

// --- Interface Implementation ---

func (m *MemStore) Get(_ context.Context, collection, id string) (map[string]any, error) {
	if err := validateKeys(collection, id); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, docstore.ErrClosed
	}

	doc, ok := m.data[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return cloneDoc(doc), nil
}

func (m *MemStore) Set(_ context.Context, collection, id string, data map[string]any) error {
	if err := validateKeys(collection, id); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return docstore.ErrClosed
	}
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]map[string]any)
	}
	m.data[collection][id] = cloneDoc(data)

	m.persistLocked(collection)
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Delete(_ context.Context, collection, id string) error {
	if err := validateKeys(collection, id); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return docstore.ErrClosed
	}
	docs, ok := m.data[collection]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(docs, id)
	if len(docs) == 0 {
		delete(m.data, collection)
	}

	m.persistLocked(collection)
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Query(_ context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if err := docstore.ValidateKey(collection); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, docstore.ErrClosed
	}

	if q.OrderBy != "" && m.indexes != nil && !m.indexes.allows(collection, q.OrderBy) {
		return nil, fmt.Errorf("order %s by %s: %w", collection, q.OrderBy, docstore.ErrMissingIndex)
	}

	return runQuery(m.data[collection], q), nil
}

func (m *MemStore) Collections(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, docstore.ErrClosed
	}

	list := make([]string, 0, len(m.data))
	for name := range m.data {
		list = append(list, name)
	}
	sort.Strings(list)
	return list, nil
}

// snapshotLocked deep copies one collection for background persistence.
// It MUST be called while holding m.mu.Lock.
func (m *MemStore) snapshotLocked(collection string) (map[string]map[string]any, uint64) {
	m.seq++
	original, ok := m.data[collection]
	if !ok {
		return nil, m.seq
	}
	out := make(map[string]map[string]any, len(original))
	for id, doc := range original {
		out[id] = cloneDoc(doc)
	}
	return out, m.seq
}

// persistLocked writes the collection in the background. It MUST be called
// while holding m.mu.Lock, so that Close waits for every write it admitted.
func (m *MemStore) persistLocked(collection string) {
	if m.persister == nil {
		return
	}
	snapshot, seq := m.snapshotLocked(collection)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.persister.SaveCollection(collection, seq, snapshot)
	}()
}

func validateKeys(collection, id string) error {
	if err := docstore.ValidateKey(collection); err != nil {
		return err
	}
	return docstore.ValidateKey(id)
}

func cloneDoc(doc map[string]any) map[string]any {
	if doc == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneDoc(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
