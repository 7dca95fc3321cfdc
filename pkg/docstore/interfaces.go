// Package docstore defines the document store contract used by every part of
// the CRM. The embedded engine, the remote daemon client, Firestore and
// MongoDB all implement it.
package docstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a requested document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrMissingIndex is returned when a query orders by a field the store
	// cannot order by (for example, no index has been declared for it).
	ErrMissingIndex = errors.New("query requires an index")
	// ErrInvalidQuery is returned for malformed queries or identifiers.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrClosed is returned after the store has been closed.
	ErrClosed = errors.New("store closed")
)

// --- Functional Interfaces (Interface Segregation) ---

// DocReader reads single documents.
type DocReader interface {
	Get(ctx context.Context, collection, id string) (map[string]any, error)
}

// DocWriter writes and deletes single documents. Set is a full overwrite.
type DocWriter interface {
	Set(ctx context.Context, collection, id string, data map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

// Querier retrieves many documents of one collection.
type Querier interface {
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
}

// CollectionLister enumerates the collections held by the store.
type CollectionLister interface {
	Collections(ctx context.Context) ([]string, error)
}

// --- Composite Interfaces ---

// Store is the complete document store contract.
type Store interface {
	DocReader
	DocWriter
	Querier
	CollectionLister
	Close() error
}
