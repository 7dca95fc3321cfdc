package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

// Source is the read side a migration needs.
type Source interface {
	docstore.CollectionLister
	docstore.Querier
}

// Migrate copies every document of src into dst and reports how many were
// written. Collections are copied concurrently. This works for:
// - Embedded -> Remote (the upgrade path)
// - Remote -> Embedded (backup / offline export)
// - Any backend -> any backend
func Migrate(ctx context.Context, src Source, dst docstore.DocWriter) (int, error) {
	collections, err := src.Collections(ctx)
	if err != nil {
		return 0, fmt.Errorf("list collections: %w", err)
	}

	var copied atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, c := range collections {
		c := c
		g.Go(func() error {
			docs, err := src.Query(ctx, c, docstore.Query{})
			if err != nil {
				return fmt.Errorf("read collection %s: %w", c, err)
			}
			for _, d := range docs {
				if err := dst.Set(ctx, c, d.ID, d.Data); err != nil {
					return fmt.Errorf("write %s/%s: %w", c, d.ID, err)
				}
				copied.Add(1)
			}
			return nil
		})
	}

	err = g.Wait()
	return int(copied.Load()), err
}
