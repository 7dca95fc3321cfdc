package leads

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/trendingmotion/motion-crm/internal/engine"
	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

// scriptedStore answers queries from fixed per-collection scripts and
// records every call.
type scriptedStore struct {
	ordered      map[string][]docstore.Document
	orderedErr   map[string]error
	unordered    map[string][]docstore.Document
	unorderedErr map[string]error
	calls        []string
}

func (s *scriptedStore) Query(_ context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if q.OrderBy != "" {
		s.calls = append(s.calls, collection+":ordered")
		if err := s.orderedErr[collection]; err != nil {
			return nil, err
		}
		return s.ordered[collection], nil
	}
	s.calls = append(s.calls, collection+":unordered")
	if err := s.unorderedErr[collection]; err != nil {
		return nil, err
	}
	return s.unordered[collection], nil
}

func doc(id string, data map[string]any) docstore.Document {
	return docstore.Document{ID: id, Data: data}
}

func ids(list []Lead) []string {
	out := make([]string, 0, len(list))
	for _, l := range list {
		out = append(out, l.ID)
	}
	return out
}

func threeLeads() []docstore.Document {
	return []docstore.Document{
		doc("jan", map[string]any{"name": "Jan", "createdAt": "2024-01-01", "formType": "contact"}),
		doc("mar", map[string]any{"name": "Mar", "createdAt": "2024-03-01", "formType": "book-demo"}),
		doc("feb", map[string]any{"name": "Feb", "createdAt": "2024-02-01", "formType": "contact"}),
	}
}

func TestIngest_FallbackSortsAndStops(t *testing.T) {
	store := &scriptedStore{
		orderedErr: map[string]error{"leads": docstore.ErrMissingIndex},
		unordered: map[string][]docstore.Document{
			"leads": threeLeads(),
			"forms": {doc("x", map[string]any{"createdAt": "2025-01-01"})},
		},
	}
	in := NewIngester(store, []string{"leads", "forms"}, zerolog.Nop())

	res, err := in.Ingest(context.Background())
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if got := ids(res.Records); !reflect.DeepEqual(got, []string{"mar", "feb", "jan"}) {
		t.Errorf("Expected [mar feb jan], got %v", got)
	}
	if res.Source != "leads" {
		t.Errorf("Expected source leads, got %q", res.Source)
	}
	if !reflect.DeepEqual(store.calls, []string{"leads:ordered", "leads:unordered"}) {
		t.Errorf("forms must never be probed, calls: %v", store.calls)
	}
	if len(res.Attempts) != 1 || !res.Attempts[0].Fallback || res.Attempts[0].Count != 3 {
		t.Errorf("unexpected attempts: %+v", res.Attempts)
	}
}

func TestIngest_FirstNonEmptyCandidateWins(t *testing.T) {
	store := &scriptedStore{
		ordered: map[string][]docstore.Document{
			"forms":       {doc("f1", map[string]any{"createdAt": "2024-01-01"})},
			"submissions": {doc("s1", map[string]any{"createdAt": "2024-01-01"})},
		},
		orderedErr:   map[string]error{"leads": errors.New("permission denied")},
		unorderedErr: map[string]error{"leads": errors.New("permission denied")},
	}
	in := NewIngester(store, nil, zerolog.Nop())

	res, err := in.Ingest(context.Background())
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Source != "forms" || len(res.Records) != 1 || res.Records[0].ID != "f1" {
		t.Errorf("Expected forms/f1, got %s %v", res.Source, ids(res.Records))
	}
	want := []string{"leads:ordered", "leads:unordered", "forms:ordered"}
	if !reflect.DeepEqual(store.calls, want) {
		t.Errorf("calls = %v, want %v", store.calls, want)
	}
}

func TestIngest_OrderedEmptyMovesOn(t *testing.T) {
	// An ordered read that succeeds with no rows is an empty candidate; the
	// unordered fallback only runs when the ordered read fails.
	store := &scriptedStore{
		unordered: map[string][]docstore.Document{"leads": threeLeads()},
		ordered:   map[string][]docstore.Document{"forms": threeLeads()[:1]},
	}
	in := NewIngester(store, []string{"leads", "forms"}, zerolog.Nop())

	res, err := in.Ingest(context.Background())
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Source != "forms" {
		t.Errorf("Expected forms, got %q", res.Source)
	}
}

func TestIngest_Exhaustion(t *testing.T) {
	boom := errors.New("boom")
	store := &scriptedStore{
		orderedErr:   map[string]error{"contacts": boom},
		unorderedErr: map[string]error{"contacts": boom},
	}
	in := NewIngester(store, nil, zerolog.Nop())

	res, err := in.Ingest(context.Background())
	if !errors.Is(err, ErrNoLeads) {
		t.Fatalf("Expected ErrNoLeads, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("last swallowed error should be reachable, got %v", err)
	}
	var nle *NoLeadsError
	if !errors.As(err, &nle) || !reflect.DeepEqual(nle.Candidates, DefaultCandidates) {
		t.Errorf("error should name every candidate: %v", err)
	}
	if res.Source != "" || len(res.Records) != 0 || len(res.Attempts) != len(DefaultCandidates) {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestIngest_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := NewIngester(&scriptedStore{}, nil, zerolog.Nop())
	if _, err := in.Ingest(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestIngest_AgainstStrictEngine(t *testing.T) {
	ctx := context.Background()
	store := engine.NewMemStore(nil, nil)
	for _, d := range threeLeads() {
		store.Set(ctx, "leads", d.ID, d.Data)
	}
	// leads has no declared createdAt index, so the ordered read is refused
	store.EnforceIndexes(engine.Indexes{"blogs": {"date"}})

	res, err := NewIngester(store, nil, zerolog.Nop()).Ingest(ctx)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if got := ids(res.Records); !reflect.DeepEqual(got, []string{"mar", "feb", "jan"}) {
		t.Errorf("Expected [mar feb jan], got %v", got)
	}
	if !errors.Is(res.Attempts[0].Err, docstore.ErrMissingIndex) {
		t.Errorf("attempt should record the missing index, got %v", res.Attempts[0].Err)
	}
}

func TestResolveInstant(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		createdAt any
		timestamp any
		want      time.Time
		ok        bool
	}{
		{"date string", "2024-01-01", nil, jan, true},
		{"rfc3339", "2024-01-01T05:00:00+05:00", nil, jan, true},
		{"space separated", "2024-01-01 00:00:00", nil, jan, true},
		{"seconds map", nil, map[string]any{"seconds": float64(jan.Unix()), "nanoseconds": float64(5)}, jan, true},
		{"native time", jan, nil, jan, true},
		{"createdAt preferred", "2024-01-01", "2030-01-01", jan, true},
		{"empty createdAt falls through", "", "2024-01-01", jan, true},
		{"unparseable createdAt does not fall through", "soon", "2024-01-01", time.Time{}, false},
		{"neither", nil, nil, time.Time{}, false},
		{"number", float64(1700000000), nil, time.Time{}, false},
		{"map without seconds", map[string]any{"nanos": 1}, nil, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveInstant(tt.createdAt, tt.timestamp)
			if ok != tt.ok || !got.Equal(tt.want) {
				t.Errorf("ResolveInstant = %v, %v; want %v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestSortNewestFirst_UnrankedLastAndStable(t *testing.T) {
	list := fromDocuments("leads", []docstore.Document{
		doc("u1", map[string]any{"name": "no date 1"}),
		doc("old", map[string]any{"createdAt": "2023-01-01"}),
		doc("u2", map[string]any{"name": "no date 2"}),
		doc("new", map[string]any{"timestamp": map[string]any{"seconds": float64(1893456000)}}),
		doc("u3", map[string]any{"createdAt": "garbage"}),
	})
	SortNewestFirst(list)
	want := []string{"new", "old", "u1", "u2", "u3"}
	if got := ids(list); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if Rank(list[2]) != 0 {
		t.Errorf("undated lead should rank 0, got %d", Rank(list[2]))
	}
}

func sortedThree() []Lead {
	list := fromDocuments("leads", threeLeads())
	SortNewestFirst(list)
	return list
}

func TestFilter_SingleDayRange(t *testing.T) {
	r, err := ParseDateRange("2024-02-01", "2024-02-01")
	if err != nil {
		t.Fatalf("ParseDateRange failed: %v", err)
	}
	got := Filter(sortedThree(), Criteria{Range: r, FormType: AllTypes})
	if !reflect.DeepEqual(ids(got), []string{"feb"}) {
		t.Errorf("Expected [feb], got %v", ids(got))
	}
}

func TestFilter_EndCoversWholeDay(t *testing.T) {
	list := fromDocuments("leads", []docstore.Document{
		doc("late", map[string]any{"createdAt": "2024-02-01T23:59:59.999Z"}),
		doc("next", map[string]any{"createdAt": "2024-02-02T00:00:00Z"}),
	})
	r, _ := ParseDateRange("2024-02-01", "2024-02-01")
	got := Filter(list, Criteria{Range: r, FormType: AllTypes})
	if !reflect.DeepEqual(ids(got), []string{"late"}) {
		t.Errorf("Expected [late], got %v", ids(got))
	}
}

func TestFilter_Properties(t *testing.T) {
	list := append(sortedThree(), fromDocuments("leads", []docstore.Document{
		doc("undated", map[string]any{"formType": "contact"}),
	})...)

	// "all" is a no-op
	if got := Filter(list, DefaultCriteria()); !reflect.DeepEqual(ids(got), ids(list)) {
		t.Errorf("all filter changed the list: %v", ids(got))
	}

	// A half-open range is inactive
	half, _ := ParseDateRange("2024-02-01", "")
	if got := Filter(list, Criteria{Range: half, FormType: AllTypes}); len(got) != len(list) {
		t.Errorf("half-open range should not filter, got %v", ids(got))
	}

	// Idempotence, order preservation and AND composition
	r, _ := ParseDateRange("2024-01-01", "2024-02-15")
	c := Criteria{Range: r, FormType: "contact"}
	once := Filter(list, c)
	if !reflect.DeepEqual(ids(once), []string{"feb", "jan"}) {
		t.Errorf("Expected [feb jan], got %v", ids(once))
	}
	if twice := Filter(once, c); !reflect.DeepEqual(ids(twice), ids(once)) {
		t.Errorf("filter is not idempotent: %v vs %v", ids(twice), ids(once))
	}

	// Undated leads are excluded only while the range is active
	typeOnly := Filter(list, Criteria{FormType: "contact"})
	if !reflect.DeepEqual(ids(typeOnly), []string{"feb", "jan", "undated"}) {
		t.Errorf("Expected [feb jan undated], got %v", ids(typeOnly))
	}
}

func TestParseDateRange_Invalid(t *testing.T) {
	if _, err := ParseDateRange("02/01/2024", ""); err == nil {
		t.Error("Expected error for non ISO date")
	}
}

func TestSummarizeAndPipeline(t *testing.T) {
	list := fromDocuments("leads", []docstore.Document{
		doc("a", map[string]any{"status": "contacted"}),
		doc("b", map[string]any{"status": "won"}),
		doc("c", map[string]any{}),
		doc("d", map[string]any{"status": "lost"}),
		doc("e", map[string]any{"status": "mystery"}),
	})

	if got := Summarize(list); got != (Stats{Total: 5, Contacted: 1, Won: 1}) {
		t.Errorf("unexpected stats: %+v", got)
	}

	cols := Pipeline(list)
	if len(cols) != 4 || cols[0].Status != StatusLeads {
		t.Fatalf("unexpected columns: %+v", cols)
	}
	if !reflect.DeepEqual(ids(cols[0].Leads), []string{"c", "e"}) {
		t.Errorf("leads column = %v", ids(cols[0].Leads))
	}
	if len(cols[3].Leads) != 1 || cols[3].Leads[0].ID != "d" {
		t.Errorf("lost column = %v", ids(cols[3].Leads))
	}
}

type deleteRecorder struct {
	deleted []string
	err     error
}

func (d *deleteRecorder) Set(context.Context, string, string, map[string]any) error { return nil }
func (d *deleteRecorder) Delete(_ context.Context, collection, id string) error {
	if d.err != nil {
		return d.err
	}
	d.deleted = append(d.deleted, collection+"/"+id)
	return nil
}

func TestBoard_DeleteWithoutRefetch(t *testing.T) {
	store := &scriptedStore{ordered: map[string][]docstore.Document{"leads": {
		doc("mar", map[string]any{"createdAt": "2024-03-01", "formType": "book-demo"}),
		doc("feb", map[string]any{"createdAt": "2024-02-01", "formType": "contact"}),
		doc("jan", map[string]any{"createdAt": "2024-01-01", "formType": "contact"}),
	}}}
	board := NewBoard(NewIngester(store, []string{"leads"}, zerolog.Nop()))

	if err := board.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	board.SetCriteria(Criteria{FormType: "contact"})
	if !reflect.DeepEqual(ids(board.Visible()), []string{"feb", "jan"}) {
		t.Fatalf("unexpected visible list: %v", ids(board.Visible()))
	}

	calls := len(store.calls)
	rec := &deleteRecorder{}
	if err := board.Delete(context.Background(), rec, "feb"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !reflect.DeepEqual(rec.deleted, []string{"leads/feb"}) {
		t.Errorf("store delete = %v", rec.deleted)
	}
	if len(store.calls) != calls {
		t.Errorf("delete re-fetched the collection: %v", store.calls[calls:])
	}
	if !reflect.DeepEqual(ids(board.Visible()), []string{"jan"}) {
		t.Errorf("Expected [jan], got %v", ids(board.Visible()))
	}
	view := board.View()
	if view.Total != 2 || view.Stats.Total != 1 || view.Source != "leads" {
		t.Errorf("unexpected view: %+v", view)
	}

	if err := board.Delete(context.Background(), rec, "nope"); !errors.Is(err, ErrLeadNotFound) {
		t.Errorf("Expected ErrLeadNotFound, got %v", err)
	}

	// A failed store delete keeps the lead on the board
	failing := &deleteRecorder{err: errors.New("denied")}
	if err := board.Delete(context.Background(), failing, "jan"); err == nil {
		t.Error("Expected store error")
	}
	if len(board.Visible()) != 1 {
		t.Error("lead removed despite store failure")
	}
}

func TestBoard_EmptyIsUsable(t *testing.T) {
	board := NewBoard(NewIngester(&scriptedStore{}, []string{"leads"}, zerolog.Nop()))
	err := board.Load(context.Background())
	if !errors.Is(err, ErrNoLeads) {
		t.Fatalf("Expected ErrNoLeads, got %v", err)
	}
	view := board.View()
	if !view.Loaded || view.Total != 0 || view.Err == nil || len(view.Visible) != 0 {
		t.Errorf("unexpected view: %+v", view)
	}
}
