// Package engine implements the embedded document store: an in-memory
// collection/document map with JSON-file persistence. The same engine backs
// the docstored daemon and the "embedded" backend of the web application.
package engine

import "github.com/trendingmotion/motion-crm/pkg/docstore"

var _ docstore.Store = (*MemStore)(nil)

// Indexes declares, per collection, the fields that may be used to order a
// query. A store with declared indexes rejects ordering by any other field
// with docstore.ErrMissingIndex, the way a hosted document database does.
type Indexes map[string][]string

func (ix Indexes) allows(collection, field string) bool {
	for _, f := range ix[collection] {
		if f == field {
			return true
		}
	}
	return false
}

// DefaultIndexes are the orderings the CRM itself issues.
func DefaultIndexes(leadCollections []string) Indexes {
	ix := Indexes{"blogs": {"date"}}
	for _, c := range leadCollections {
		ix[c] = append(ix[c], "createdAt")
	}
	return ix
}
