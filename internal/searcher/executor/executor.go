// Package executor runs a parsed search request against the embedded
// engine: it compiles the optional predicate filter, delegates fan-out
// and merge to the distributed coordinator, and records the search
// metrics.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/briarshard/shardsearch/internal/indexer"
	"github.com/briarshard/shardsearch/internal/searchengine/docstore"
	"github.com/briarshard/shardsearch/internal/searchengine/query"
	"github.com/briarshard/shardsearch/internal/searcher/parser"
	"github.com/briarshard/shardsearch/pkg/metrics"
)

// Executor runs search requests against an embedded engine.
type Executor struct {
	engine      *indexer.Engine
	totalShards int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// New builds an Executor; m may be nil in tests.
func New(engine *indexer.Engine, m *metrics.Metrics) *Executor {
	return &Executor{
		engine:      engine,
		totalShards: engine.CreateShardManager().TotalShards(),
		metrics:     m,
		logger:      slog.Default().With("component", "query-executor"),
	}
}

// Execute compiles req's filter (if any) and runs req.Query through the
// engine's coordinator, returning the merged result envelope.
func (e *Executor) Execute(ctx context.Context, req *parser.Request) (*query.Result, error) {
	filterBytes, err := req.DecodeFilter()
	if err != nil {
		return nil, err
	}

	kind := queryKind(req.Query)

	var result *query.Result
	if len(filterBytes) > 0 {
		filter, err := e.engine.CreateFilter(filterBytes)
		if err != nil {
			e.count(kind, "filter_error")
			return nil, fmt.Errorf("executor: compiling filter: %w", err)
		}
		result, err = e.engine.Search(req.Query, filter, req.From, req.Size)
		if err != nil {
			e.count(kind, "error")
			return nil, fmt.Errorf("executor: search: %w", err)
		}
		if e.metrics != nil {
			evals, matches := filter.Stats()
			e.metrics.FilterEvalsTotal.Add(float64(evals))
			e.metrics.FilterDropsTotal.Add(float64(evals - matches))
		}
	} else {
		result, err = e.engine.Search(req.Query, nil, req.From, req.Size)
		if err != nil {
			e.count(kind, "error")
			return nil, fmt.Errorf("executor: search: %w", err)
		}
	}

	e.count(kind, outcome(result))
	if e.metrics != nil {
		e.metrics.SearchHitCount.Observe(float64(len(result.Hits)))
		e.metrics.ShardsPerQuery.Observe(float64(e.totalShards))
		for _, agg := range result.Aggregations {
			e.metrics.AggregationsTotal.WithLabelValues(aggKind(agg)).Inc()
		}
	}

	e.logger.Info("query executed",
		"query_kind", kind,
		"total_hits", result.TotalHits,
		"returned", len(result.Hits),
		"from", req.From,
		"size", req.Size,
	)
	return result, nil
}

func (e *Executor) count(kind, outcome string) {
	if e.metrics != nil {
		e.metrics.SearchesTotal.WithLabelValues(kind, outcome).Inc()
	}
}

func outcome(r *query.Result) string {
	if r.TotalHits == 0 {
		return "zero_results"
	}
	return "ok"
}

// aggKind names an aggregation result's kind for the metrics label.
func aggKind(v any) string {
	switch v.(type) {
	case docstore.TermsResult:
		return "terms"
	case docstore.StatsResult:
		return "stats"
	case docstore.ExtendedStatsResult:
		return "extended_stats"
	case docstore.HistogramResult:
		return "histogram"
	case docstore.PercentilesResult:
		return "percentiles"
	case docstore.SingleMetricResult:
		return "metric"
	default:
		return "other"
	}
}

// queryKind names the top-level clause of a query-DSL object for the
// metrics label: the first recognized key, or "unknown".
func queryKind(raw json.RawMessage) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "invalid"
	}
	for _, k := range []string{"bool", "match_all", "term", "match", "phrase", "range", "prefix", "wildcard", "fuzzy"} {
		if _, ok := obj[k]; ok {
			return k
		}
	}
	return "unknown"
}
