package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/trendingmotion/motion-crm/pkg/docstore"
)

// DefaultCandidates are probed in order when no list is configured.
var DefaultCandidates = []string{"leads", "forms", "submissions", "contacts", "formSubmissions"}

// ErrNoLeads is reported when no candidate yielded a record.
var ErrNoLeads = errors.New("no leads found")

// NoLeadsError names every candidate tried and the last swallowed failure.
type NoLeadsError struct {
	Candidates []string
	Last       error
}

func (e *NoLeadsError) Error() string {
	msg := fmt.Sprintf("no leads found in any of: %s", strings.Join(e.Candidates, ", "))
	if e.Last != nil {
		msg += fmt.Sprintf(" (last error: %v)", e.Last)
	}
	return msg
}

func (e *NoLeadsError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrNoLeads}
	}
	return []error{ErrNoLeads, e.Last}
}

// Attempt records what one strategy did.
type Attempt struct {
	Strategy string `json:"strategy"`
	Ordered  bool   `json:"ordered"`
	Fallback bool   `json:"fallback"`
	Count    int    `json:"count"`
	Err      error  `json:"-"`
}

func (a Attempt) MarshalJSON() ([]byte, error) {
	type alias Attempt
	out := struct {
		alias
		Error string `json:"error,omitempty"`
	}{alias: alias(a)}
	if a.Err != nil {
		out.Error = a.Err.Error()
	}
	return json.Marshal(out)
}

// Result is the outcome of one ingestion.
type Result struct {
	Records  []Lead    `json:"records"`
	Source   string    `json:"source"`
	Attempts []Attempt `json:"attempts"`
}

// Strategy is one way of locating leads.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, store docstore.Querier) (Attempt, []Lead)
}

// CollectionProbe reads one candidate collection: ordered by createdAt
// descending, or, when the store refuses that ordering, unordered and sorted
// in memory.
type CollectionProbe struct {
	Collection string
}

func (p CollectionProbe) Name() string { return p.Collection }

func (p CollectionProbe) Fetch(ctx context.Context, store docstore.Querier) (Attempt, []Lead) {
	att := Attempt{Strategy: p.Collection}

	docs, err := store.Query(ctx, p.Collection, docstore.OrderedBy("createdAt", docstore.Desc))
	if err == nil {
		att.Ordered = true
		att.Count = len(docs)
		return att, fromDocuments(p.Collection, docs)
	}

	docs, fallbackErr := store.Query(ctx, p.Collection, docstore.Query{})
	if fallbackErr != nil {
		att.Err = fmt.Errorf("ordered: %v; unordered: %w", err, fallbackErr)
		return att, nil
	}
	att.Fallback = true
	att.Err = err
	list := fromDocuments(p.Collection, docs)
	SortNewestFirst(list)
	att.Count = len(list)
	return att, list
}

// Ingester runs a strategy chain and keeps the first non-empty answer.
type Ingester struct {
	store      docstore.Querier
	strategies []Strategy
	log        zerolog.Logger
}

// NewIngester probes candidates in order. An empty list means DefaultCandidates.
func NewIngester(store docstore.Querier, candidates []string, log zerolog.Logger) *Ingester {
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}
	strategies := make([]Strategy, 0, len(candidates))
	for _, c := range candidates {
		strategies = append(strategies, CollectionProbe{Collection: c})
	}
	return NewIngesterWithStrategies(store, strategies, log)
}

func NewIngesterWithStrategies(store docstore.Querier, strategies []Strategy, log zerolog.Logger) *Ingester {
	return &Ingester{
		store:      store,
		strategies: strategies,
		log:        log.With().Str("component", "ingest").Logger(),
	}
}

// Candidates lists the strategy names in probe order.
func (in *Ingester) Candidates() []string {
	names := make([]string, 0, len(in.strategies))
	for _, s := range in.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Ingest probes from the first strategy on every call. Per-strategy failures
// are logged and swallowed; only exhaustion is reported, as a *NoLeadsError.
func (in *Ingester) Ingest(ctx context.Context) (Result, error) {
	var res Result
	var last error

	for _, s := range in.strategies {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		att, list := s.Fetch(ctx, in.store)
		res.Attempts = append(res.Attempts, att)

		ev := in.log.Debug()
		if att.Err != nil {
			last = att.Err
			ev = in.log.Warn().Err(att.Err)
		}
		ev.Str("candidate", att.Strategy).
			Bool("ordered", att.Ordered).
			Bool("fallback", att.Fallback).
			Int("count", att.Count).
			Msg("probed lead collection")

		if len(list) > 0 {
			res.Records = list
			res.Source = s.Name()
			return res, nil
		}
	}

	res.Records = []Lead{}
	return res, &NoLeadsError{Candidates: in.Candidates(), Last: last}
}
