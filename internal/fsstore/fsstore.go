// Package fsstore implements the document store contract on Google Cloud
// Firestore.
package fsstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

var _ docstore.Store = (*Store)(nil)

// Store is a Firestore-backed docstore.Store.
type Store struct {
	client *firestore.Client
}

// Open connects to the Firestore project. An empty credentialsFile uses the
// ambient application default credentials (or FIRESTORE_EMULATOR_HOST).
func Open(ctx context.Context, projectID, credentialsFile string) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	if err := checkKeys(collection, id); err != nil {
		return nil, err
	}
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapError(fmt.Sprintf("get %s/%s", collection, id), err)
	}
	return snap.Data(), nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := checkKeys(collection, id); err != nil {
		return err
	}
	if data == nil {
		data = map[string]any{}
	}
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, data); err != nil {
		return mapError(fmt.Sprintf("set %s/%s", collection, id), err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := checkKeys(collection, id); err != nil {
		return err
	}
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return mapError(fmt.Sprintf("delete %s/%s", collection, id), err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if err := docstore.ValidateKey(collection); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	fq := s.client.Collection(collection).Query
	for _, f := range q.Where {
		fq = fq.Where(f.Field, f.Op, f.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Direction == docstore.Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}

	iter := fq.Documents(ctx)
	defer iter.Stop()

	var out []docstore.Document
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mapError("query "+collection, err)
		}
		out = append(out, docstore.Document{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return out, nil
}

func (s *Store) Collections(ctx context.Context) ([]string, error) {
	iter := s.client.Collections(ctx)
	var list []string
	for {
		ref, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mapError("list collections", err)
		}
		list = append(list, ref.ID)
	}
	return list, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// mapError translates gRPC status codes into docstore sentinels. Firestore
// reports a query that needs a composite index as FailedPrecondition.
func mapError(op string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", op, docstore.ErrNotFound)
	case codes.FailedPrecondition:
		return fmt.Errorf("%s: %w: %v", op, docstore.ErrMissingIndex, err)
	case codes.InvalidArgument:
		return fmt.Errorf("%s: %w: %v", op, docstore.ErrInvalidQuery, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func checkKeys(collection, id string) error {
	if err := docstore.ValidateKey(collection); err != nil {
		return err
	}
	return docstore.ValidateKey(id)
}
