package docstore

import (
	"fmt"
	"strings"
)

// Document is a single stored document together with its key.
type Document struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// Direction is the sort direction of an ordered query.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// OpEqual is the only filter operator the contract requires.
const OpEqual = "=="

// Filter is a single where-clause.
type Filter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// Query describes a collection read. The zero value reads the whole
// collection in the store's natural order.
type Query struct {
	OrderBy   string    `json:"order_by,omitempty"`
	Direction Direction `json:"direction,omitempty"`
	Where     []Filter  `json:"where,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// OrderedBy returns a query ordered by field in the given direction.
func OrderedBy(field string, dir Direction) Query {
	return Query{OrderBy: field, Direction: dir}
}

// WhereEqual returns a query matching field == value.
func WhereEqual(field string, value any) Query {
	return Query{Where: []Filter{{Field: field, Op: OpEqual, Value: value}}}
}

// WithLimit returns a copy of q limited to n results.
func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

// Validate reports whether every part of the query is supported.
func (q Query) Validate() error {
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrInvalidQuery, q.Limit)
	}
	for _, f := range q.Where {
		if f.Field == "" {
			return fmt.Errorf("%w: empty filter field", ErrInvalidQuery)
		}
		if f.Op != OpEqual {
			return fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, f.Op)
		}
	}
	return nil
}

// ValidateKey checks a collection name or document id. Keys travel on the
// daemon's line protocol, so they may not be empty or contain whitespace or
// slashes.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidQuery)
	}
	if strings.ContainsAny(key, " \t\r\n/") {
		return fmt.Errorf("%w: key %q contains whitespace or '/'", ErrInvalidQuery, key)
	}
	return nil
}
