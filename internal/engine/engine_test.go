package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

func TestMemStore_GetSetDelete(t *testing.T) {
	ms := NewMemStore(nil, nil)
	ctx := context.Background()

	doc := map[string]any{"title": "Hello", "tags": []any{"a"}}

	if err := ms.Set(ctx, "blogs", "hello", doc); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := ms.Get(ctx, "blogs", "hello")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got["title"] != "Hello" {
		t.Errorf("Expected Hello, got %v", got["title"])
	}

	// Mutating the returned copy must not leak into the store
	got["title"] = "changed"
	again, _ := ms.Get(ctx, "blogs", "hello")
	if again["title"] != "Hello" {
		t.Errorf("store was mutated through a returned document: %v", again)
	}

	_, err = ms.Get(ctx, "blogs", "non-existent")
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := ms.Delete(ctx, "blogs", "hello"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	_, err = ms.Get(ctx, "blogs", "hello")
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	// Deleting an absent document is not an error
	if err := ms.Delete(ctx, "blogs", "hello"); err != nil {
		t.Errorf("Delete of absent doc failed: %v", err)
	}
}

func TestMemStore_InvalidKeys(t *testing.T) {
	ms := NewMemStore(nil, nil)
	ctx := context.Background()

	if err := ms.Set(ctx, "blogs", "a b", map[string]any{}); !errors.Is(err, docstore.ErrInvalidQuery) {
		t.Errorf("Expected ErrInvalidQuery, got %v", err)
	}
	if _, err := ms.Get(ctx, "", "x"); !errors.Is(err, docstore.ErrInvalidQuery) {
		t.Errorf("Expected ErrInvalidQuery, got %v", err)
	}
}

func TestMemStore_Collections(t *testing.T) {
	ms := NewMemStore(nil, nil)
	ctx := context.Background()

	ms.Set(ctx, "leads", "1", map[string]any{})
	ms.Set(ctx, "blogs", "a", map[string]any{})

	list, _ := ms.Collections(ctx)
	if len(list) != 2 || list[0] != "blogs" || list[1] != "leads" {
		t.Errorf("Expected [blogs leads], got %v", list)
	}

	// A collection disappears with its last document
	ms.Delete(ctx, "blogs", "a")
	list, _ = ms.Collections(ctx)
	if len(list) != 1 || list[0] != "leads" {
		t.Errorf("Expected [leads], got %v", list)
	}
}

func seedLeads(t *testing.T, ms *MemStore) {
	t.Helper()
	ctx := context.Background()
	docs := map[string]map[string]any{
		"a": {"name": "A", "createdAt": "2024-01-02T00:00:00Z", "formType": "contact"},
		"b": {"name": "B", "createdAt": "2024-03-01T00:00:00Z", "formType": "book-demo"},
		"c": {"name": "C", "timestamp": map[string]any{"seconds": float64(10)}},
		"d": {"name": "D", "createdAt": "2024-02-01T00:00:00Z", "formType": "contact"},
	}
	for id, d := range docs {
		if err := ms.Set(ctx, "leads", id, d); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
}

func TestMemStore_QueryOrdering(t *testing.T) {
	ms := NewMemStore(nil, nil)
	seedLeads(t, ms)
	ctx := context.Background()

	docs, err := ms.Query(ctx, "leads", docstore.OrderedBy("createdAt", docstore.Desc))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	// "c" has no createdAt and is excluded from the ordered read
	want := []string{"b", "d", "a"}
	if len(docs) != len(want) {
		t.Fatalf("Expected %d docs, got %d", len(want), len(docs))
	}
	for i, id := range want {
		if docs[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, docs[i].ID)
		}
	}

	all, _ := ms.Query(ctx, "leads", docstore.Query{})
	if len(all) != 4 || all[0].ID != "a" || all[3].ID != "d" {
		t.Errorf("unordered read should return all docs by id, got %v", all)
	}

	limited, _ := ms.Query(ctx, "leads", docstore.OrderedBy("createdAt", docstore.Asc).WithLimit(2))
	if len(limited) != 2 || limited[0].ID != "a" {
		t.Errorf("limit/asc mismatch: %v", limited)
	}
}

func TestMemStore_QueryWhere(t *testing.T) {
	ms := NewMemStore(nil, nil)
	seedLeads(t, ms)
	ctx := context.Background()

	docs, err := ms.Query(ctx, "leads", docstore.WhereEqual("formType", "contact"))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("Expected 2 contact docs, got %d", len(docs))
	}

	none, err := ms.Query(ctx, "missing", docstore.Query{})
	if err != nil || len(none) != 0 {
		t.Errorf("Expected empty result for missing collection, got %v, %v", none, err)
	}
}

func TestMemStore_EnforceIndexes(t *testing.T) {
	ms := NewMemStore(nil, nil)
	seedLeads(t, ms)
	ms.EnforceIndexes(Indexes{"leads": {"createdAt"}})
	ctx := context.Background()

	if _, err := ms.Query(ctx, "leads", docstore.OrderedBy("createdAt", docstore.Desc)); err != nil {
		t.Errorf("declared index rejected: %v", err)
	}
	_, err := ms.Query(ctx, "leads", docstore.OrderedBy("name", docstore.Desc))
	if !errors.Is(err, docstore.ErrMissingIndex) {
		t.Errorf("Expected ErrMissingIndex, got %v", err)
	}
	// Unordered reads never need an index
	if _, err := ms.Query(ctx, "blogs", docstore.Query{}); err != nil {
		t.Errorf("unordered read failed: %v", err)
	}
}

func TestCompare(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		a, b any
		want int
	}{
		{1, 2.5, -1},
		{"b", "a", 1},
		{t1, t1, 0},
		{map[string]any{"seconds": float64(t1.Unix())}, t1, 0},
		{nil, "x", -1},
		{true, false, 1},
		{3, "3", -1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v_%v", tt.a, tt.b), func(t *testing.T) {
			if got := Compare(tt.a, tt.b); got != tt.want {
				t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestPersistence(t *testing.T) {
	tmpDir := t.TempDir()

	p, err := NewPersistence(tmpDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPersistence failed: %v", err)
	}

	data := map[string]map[string]any{
		"hello": {"title": "Hello"},
	}
	if err := p.SaveCollection("blogs", 1, data); err != nil {
		t.Fatalf("SaveCollection failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "blogs.json")); os.IsNotExist(err) {
		t.Fatal("Collection file was not created")
	}

	// An older snapshot must not overwrite a newer one
	p.SaveCollection("blogs", 3, data)
	p.SaveCollection("blogs", 2, map[string]map[string]any{})

	allData, err := p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if allData["blogs"]["hello"]["title"] != "Hello" {
		t.Errorf("Loaded data mismatch: %v", allData)
	}
}

func TestPersistence_SkipsCorruptFiles(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "broken.json"), []byte("{not json"), 0o644)
	os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("ignored"), 0o644)

	p, _ := NewPersistence(tmpDir, zerolog.Nop())
	allData, err := p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(allData) != 0 {
		t.Errorf("Expected no collections, got %v", allData)
	}
}

func TestMemStore_Persistence(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()

	ms, err := Open(tmpDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ms.Set(ctx, "settings", "seo", map[string]any{"title": "Motion"})
	ms.Set(ctx, "blogs", "gone", map[string]any{"title": "x"})
	ms.Delete(ctx, "blogs", "gone")
	ms.Close()

	ms2, err := Open(tmpDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, err := ms2.Get(ctx, "settings", "seo")
	if err != nil {
		t.Fatalf("Get on reopened store failed: %v", err)
	}
	if got["title"] != "Motion" {
		t.Errorf("Expected Motion, got %v", got["title"])
	}
	cols, _ := ms2.Collections(ctx)
	if len(cols) != 1 {
		t.Errorf("Expected only settings to survive, got %v", cols)
	}
}

func TestMemStore_CloseWaitsForAdmittedWrites(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()

	ms, err := Open(tmpDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	const writers = 8
	last := make([]int, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			last[id] = -1
			for j := 0; j < 1000; j++ {
				err := ms.Set(ctx, "leads", fmt.Sprintf("w-%d", id), map[string]any{"n": j})
				if errors.Is(err, docstore.ErrClosed) {
					return
				}
				if err != nil {
					t.Errorf("Set failed: %v", err)
					return
				}
				last[id] = j
			}
		}(i)
	}

	time.Sleep(time.Millisecond)
	ms.Close()
	wg.Wait()

	reopened, err := Open(tmpDir, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	for id, n := range last {
		if n < 0 {
			continue
		}
		doc, err := reopened.Get(ctx, "leads", fmt.Sprintf("w-%d", id))
		if err != nil {
			t.Errorf("w-%d: %v", id, err)
			continue
		}
		if doc["n"] != float64(n) {
			t.Errorf("w-%d: persisted %v, last accepted write was %d", id, doc["n"], n)
		}
	}
}

func TestMemStore_Closed(t *testing.T) {
	ms := NewMemStore(nil, nil)
	ms.Close()
	if _, err := ms.Get(context.Background(), "a", "b"); !errors.Is(err, docstore.ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestMemStore_Concurrent(t *testing.T) {
	ms := NewMemStore(nil, nil)
	ctx := context.Background()
	const (
		numGoroutines = 10
		numOps        = 100
	)
	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines*numOps)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j)
				ms.Set(ctx, "leads", key, map[string]any{"n": j})
				val, err := ms.Get(ctx, "leads", key)
				if err != nil || val["n"] != j {
					errs <- fmt.Errorf("expected %d, got %v, err %v", j, val, err)
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	src := NewMemStore(nil, nil)
	seedLeads(t, src)
	src.Set(ctx, "blogs", "hello", map[string]any{"title": "Hello"})

	dst := NewMemStore(nil, nil)
	n, err := Migrate(ctx, src, dst)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5 documents copied, got %d", n)
	}
	got, err := dst.Get(ctx, "blogs", "hello")
	if err != nil || got["title"] != "Hello" {
		t.Errorf("Migrated doc mismatch: %v, %v", got, err)
	}
}
