package docstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Get retrieves a document and decodes it into T.
func Get[T any](ctx context.Context, r DocReader, collection, id string) (T, error) {
	var target T
	data, err := r.Get(ctx, collection, id)
	if err != nil {
		return target, err
	}
	return Decode[T](data)
}

// Set encodes val and stores it as a full overwrite of collection/id.
func Set[T any](ctx context.Context, w DocWriter, collection, id string, val T) error {
	data, err := Encode(val)
	if err != nil {
		return err
	}
	return w.Set(ctx, collection, id, data)
}

// Decode converts a generic document body into T through its JSON tags.
// Values that came from a JSON round trip (map[string]any, float64) and
// values that came straight from an embedded store are both accepted.
func Decode[T any](data map[string]any) (T, error) {
	var target T
	bytes, err := json.Marshal(data)
	if err != nil {
		return target, fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(bytes, &target); err != nil {
		return target, fmt.Errorf("decode document: %w", err)
	}
	return target, nil
}

// Encode converts a struct into a generic document body using its JSON tags.
func Encode(val any) (map[string]any, error) {
	bytes, err := json.Marshal(val)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(bytes, &data); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}
