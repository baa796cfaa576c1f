package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/briarshard/shardsearch/pkg/kafka"
)

// QueryCount is one entry in a top-queries list.
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Snapshot is the aggregated view served at /api/v1/analytics and
// persisted periodically.
type Snapshot struct {
	TotalSearches     int64            `json:"total_searches"`
	TotalDocsIndexed  int64            `json:"total_docs_indexed"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	FilteredSearches  int64            `json:"filtered_searches"`
	SearchesByKind    map[string]int64 `json:"searches_by_kind"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
}

// Aggregator folds the analytics topic into in-memory counters.
type Aggregator struct {
	mu sync.RWMutex

	totalSearches    int64
	totalDocsIndexed int64
	cacheHits        int64
	cacheMisses      int64
	zeroResults      int64
	filteredSearches int64
	byKind           map[string]int64

	latencies   []int64
	queryCounts map[string]int64
	zeroQueries map[string]int64

	started time.Time
	logger  *slog.Logger
}

// NewAggregator returns an empty aggregator; feed it by registering
// HandleEvent(agg) as a consumer's handler.
func NewAggregator() *Aggregator {
	return &Aggregator{
		byKind:      make(map[string]int64),
		latencies:   make([]int64, 0, 10000),
		queryCounts: make(map[string]int64),
		zeroQueries: make(map[string]int64),
		started:     time.Now(),
		logger:      slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent is the Kafka handler that folds one record into agg. The
// record's type field decides its shape; undecodable records are logged
// and committed past.
func HandleEvent(agg *Aggregator) kafka.Handler {
	return func(ctx context.Context, key, value []byte) error {
		var probe struct {
			Type EventType `json:"type"`
		}
		if err := json.Unmarshal(value, &probe); err != nil {
			agg.logger.Error("undecodable analytics record skipped", "error", err)
			return nil
		}
		switch probe.Type {
		case EventIndexDoc:
			if event, err := kafka.DecodeJSON[IndexEvent](value); err == nil {
				agg.recordIndex(event)
			}
		default:
			if event, err := kafka.DecodeJSON[SearchEvent](value); err == nil {
				agg.recordSearch(event)
			}
		}
		return nil
	}
}

func (a *Aggregator) recordSearch(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if event.TotalHits == 0 {
		a.zeroResults++
		a.zeroQueries[event.Query]++
	}
	if event.FilterApplied {
		a.filteredSearches++
	}
	kind := event.QueryKind
	if kind == "" {
		kind = "unknown"
	}
	a.byKind[kind]++
	a.latencies = append(a.latencies, event.LatencyMs)
	a.queryCounts[event.Query]++
}

func (a *Aggregator) recordIndex(IndexEvent) {
	a.mu.Lock()
	a.totalDocsIndexed++
	a.mu.Unlock()
}

// Stats snapshots the current aggregate state.
func (a *Aggregator) Stats() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := Snapshot{
		TotalSearches:    a.totalSearches,
		TotalDocsIndexed: a.totalDocsIndexed,
		CacheHits:        a.cacheHits,
		CacheMisses:      a.cacheMisses,
		ZeroResultCount:  a.zeroResults,
		FilteredSearches: a.filteredSearches,
		SearchesByKind:   make(map[string]int64, len(a.byKind)),
	}
	for k, v := range a.byKind {
		snap.SearchesByKind[k] = v
	}

	if len(a.latencies) > 0 {
		sorted := append([]int64(nil), a.latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		snap.AvgLatencyMs = float64(sum) / float64(len(sorted))
		snap.P50LatencyMs = rankValue(sorted, 50)
		snap.P95LatencyMs = rankValue(sorted, 95)
		snap.P99LatencyMs = rankValue(sorted, 99)
	}

	snap.TopQueries = topN(a.queryCounts, 10)
	snap.ZeroResultQueries = topN(a.zeroQueries, 10)
	if minutes := time.Since(a.started).Minutes(); minutes > 0 {
		snap.QueriesPerMinute = float64(snap.TotalSearches) / minutes
	}
	return snap
}

func rankValue(sorted []int64, pct int) int64 {
	idx := pct * len(sorted) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	out := make([]QueryCount, 0, len(counts))
	for q, c := range counts {
		out = append(out, QueryCount{Query: q, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
