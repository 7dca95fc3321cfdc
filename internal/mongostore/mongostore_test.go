package mongostore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

func TestNormalize(t *testing.T) {
	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	raw := bson.M{
		"_id":       "lead-1",
		"createdAt": bson.NewDateTimeFromTime(when),
		"count":     int32(3),
		"meta":      bson.D{{Key: "source", Value: "form"}},
		"tags":      bson.A{"a", bson.M{"k": int32(1)}},
	}

	id, doc := splitID(raw)
	if id != "lead-1" {
		t.Errorf("Expected lead-1, got %s", id)
	}
	if _, ok := doc["_id"]; ok {
		t.Error("_id should be stripped from the document body")
	}
	if got, ok := doc["createdAt"].(time.Time); !ok || !got.Equal(when) {
		t.Errorf("createdAt not converted: %#v", doc["createdAt"])
	}
	if doc["count"] != int64(3) {
		t.Errorf("int32 not widened: %#v", doc["count"])
	}
	meta, ok := doc["meta"].(map[string]any)
	if !ok || meta["source"] != "form" {
		t.Errorf("bson.D not converted: %#v", doc["meta"])
	}
	tags, ok := doc["tags"].([]any)
	if !ok || len(tags) != 2 {
		t.Fatalf("bson.A not converted: %#v", doc["tags"])
	}
	if inner, ok := tags[1].(map[string]any); !ok || inner["k"] != int64(1) {
		t.Errorf("nested map not converted: %#v", tags[1])
	}
}

func TestBuildFind(t *testing.T) {
	filter, _ := buildFind(docstore.OrderedBy("createdAt", docstore.Desc).WithLimit(5))
	exists, ok := filter["createdAt"].(bson.M)
	if !ok || exists["$exists"] != true {
		t.Errorf("ordered query should require the order field, got %v", filter)
	}

	filter, _ = buildFind(docstore.WhereEqual("slug", "hello"))
	if filter["slug"] != "hello" {
		t.Errorf("equality filter missing: %v", filter)
	}
}

// TestStore_Integration runs against a real server when one is configured.
func TestStore_Integration(t *testing.T) {
	uri := os.Getenv("MOTIONCRM_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("MOTIONCRM_TEST_MONGO_URI not set")
	}
	ctx := context.Background()

	s, err := Open(ctx, uri, fmt.Sprintf("motioncrm_test_%d", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() {
		s.db.Drop(ctx)
		s.Close()
	}()

	s.Set(ctx, "leads", "a", map[string]any{"name": "A", "createdAt": "2024-01-01"})
	s.Set(ctx, "leads", "b", map[string]any{"name": "B", "createdAt": "2024-02-01"})
	s.Set(ctx, "leads", "c", map[string]any{"name": "C"})

	docs, err := s.Query(ctx, "leads", docstore.OrderedBy("createdAt", docstore.Desc))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "b" {
		t.Errorf("unexpected ordered result: %v", docs)
	}

	got, err := s.Get(ctx, "leads", "c")
	if err != nil || got["name"] != "C" {
		t.Errorf("Get mismatch: %v, %v", got, err)
	}
	if _, err := s.Get(ctx, "leads", "zzz"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	cols, err := s.Collections(ctx)
	if err != nil || len(cols) != 1 {
		t.Errorf("Collections mismatch: %v, %v", cols, err)
	}
}
