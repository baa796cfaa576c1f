// Package shard wraps a document store with a predicate-filter stage and
// per-shard operational counters, the unit the cluster coordinator fans
// queries out to.
package shard

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/briarshard/shardsearch/internal/searchengine/docfield"
	"github.com/briarshard/shardsearch/internal/searchengine/docstore"
	"github.com/briarshard/shardsearch/internal/searchengine/expr"
	"github.com/briarshard/shardsearch/internal/searchengine/query"
)

// State mirrors the lifecycle a shard moves through from creation to
// close, matching the vocabulary the data-node layer already uses for
// its disk-backed shards.
type State string

const (
	StateInitializing State = "initializing"
	StateStarted      State = "started"
	StateClosed       State = "closed"
)

// Stats is a point-in-time snapshot of a shard's operational counters.
type Stats struct {
	Index              string `json:"index"`
	ShardIndex         int    `json:"shard_index"`
	IsPrimary          bool   `json:"is_primary"`
	State              State  `json:"state"`
	DocCount           int64  `json:"doc_count"`
	EstimatedSizeBytes int64  `json:"estimated_size_bytes"`
	SearchCount        int64  `json:"search_count"`
	FilterEvalCount    int64  `json:"filter_eval_count"`
	UniqueTermCount    int64  `json:"unique_term_count"`
	TermPositionCount  int64  `json:"term_position_count"`
}

// Options configures a Search call on a shard.
type Options struct {
	From   int
	Size   int
	Filter *expr.Filter // optional predicate; nil means no filtering
}

// Shard owns one docstore.Store, an optional compiled predicate filter
// stage, and the counters reported by Stats.
type Shard struct {
	Index      string
	ShardIndex int
	IsPrimary  bool

	mu     sync.RWMutex
	state  State
	store  *docstore.Store
	logger *slog.Logger

	searchCount     atomic.Int64
	filterEvalCount atomic.Int64
}

// New creates a shard in the started state, ready to accept documents.
func New(index string, shardIndex int, isPrimary bool) *Shard {
	return &Shard{
		Index:      index,
		ShardIndex: shardIndex,
		IsPrimary:  isPrimary,
		state:      StateStarted,
		store:      docstore.New(),
		logger:     slog.Default().With("component", "shard", "index", index, "shard_index", shardIndex),
	}
}

func (s *Shard) checkStarted() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateStarted {
		return fmt.Errorf("shard: %s/%d is not started (state: %s)", s.Index, s.ShardIndex, s.state)
	}
	return nil
}

// IndexDocument parses and stores docJSON under docID, replacing any
// existing document with that id.
func (s *Shard) IndexDocument(docID, docJSON string) error {
	if err := s.checkStarted(); err != nil {
		return err
	}
	if err := s.store.Add(docID, docJSON); err != nil {
		return fmt.Errorf("shard: index document %s: %w", docID, err)
	}
	return nil
}

// GetDocument returns the parsed document for docID.
func (s *Shard) GetDocument(docID string) (any, bool) {
	return s.store.Get(docID)
}

// DeleteDocument removes docID, reporting whether it existed.
func (s *Shard) DeleteDocument(docID string) bool {
	return s.store.Delete(docID)
}

// Search evaluates rawQuery against the shard's store. When opts.Filter
// is set, every candidate is passed through the predicate before ranking;
// a document that fails to evaluate (a missing-operand type mismatch, a
// divide-by-zero) is dropped from the result rather than failing the
// whole query. Every evaluated candidate, kept or dropped, adds one to
// FilterEvalCount.
func (s *Shard) Search(rawQuery []byte, opts Options) (*query.Result, error) {
	if err := s.checkStarted(); err != nil {
		return nil, err
	}
	s.searchCount.Add(1)
	start := time.Now()

	if opts.Filter == nil {
		result, err := query.Execute(s.store, rawQuery, opts.From, opts.Size)
		if err != nil {
			return nil, err
		}
		result.TookMs = time.Since(start).Milliseconds()
		return result, nil
	}

	// With a filter in play the candidate set is pruned between clause
	// selection and ranking, so pagination, total_hits, and aggregations
	// all reflect only the documents the predicate kept.
	p, err := query.Parse(rawQuery)
	if err != nil {
		return nil, err
	}
	candidates, err := query.EvalClause(s.store, p.Clause)
	if err != nil {
		return nil, err
	}
	for id := range candidates.Scores {
		doc, ok := s.store.Get(id)
		s.filterEvalCount.Add(1)
		if !ok || !opts.Filter.Matches(doc) {
			delete(candidates.Scores, id)
		}
	}
	result, err := query.BuildResult(s.store, candidates, p.Aggs, opts.From, opts.Size)
	if err != nil {
		return nil, err
	}
	result.TookMs = time.Since(start).Milliseconds()
	return result, nil
}

// MatchesFilter evaluates a compiled predicate against a single document,
// used by the embedding boundary's standalone filter-matching operation.
func (s *Shard) MatchesFilter(f *expr.Filter, doc any) bool {
	s.filterEvalCount.Add(1)
	return f.Matches(doc)
}

// Close marks the shard closed; further operations fail.
func (s *Shard) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}

// Stats returns a snapshot of the shard's operational counters.
func (s *Shard) Stats() Stats {
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	return Stats{
		Index:              s.Index,
		ShardIndex:         s.ShardIndex,
		IsPrimary:          s.IsPrimary,
		State:              state,
		DocCount:           s.store.DocCount(),
		EstimatedSizeBytes: s.store.EstimatedSizeBytes(),
		SearchCount:        s.searchCount.Load(),
		FilterEvalCount:    s.filterEvalCount.Load(),
		UniqueTermCount:    s.store.UniqueTermCount(),
		TermPositionCount:  s.store.TotalTermPositions(),
	}
}

// FieldType reports the type of field in the stored document docID, or
// false when docID is not stored on this shard.
func (s *Shard) FieldType(docID, field string) (docfield.Type, bool) {
	doc, ok := s.store.Get(docID)
	if !ok {
		return docfield.TypeNull, false
	}
	return docfield.FieldType(doc, field), true
}
