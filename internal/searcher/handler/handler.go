// Package handler serves the searcher's HTTP API: the full query DSL
// over POST, a single-field match convenience over GET, and cache
// introspection/invalidation.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/briarshard/shardsearch/internal/analytics"
	"github.com/briarshard/shardsearch/internal/searchengine/query"
	"github.com/briarshard/shardsearch/internal/searcher/cache"
	"github.com/briarshard/shardsearch/internal/searcher/parser"
	"github.com/briarshard/shardsearch/pkg/logger"
	"github.com/briarshard/shardsearch/pkg/metrics"
	"github.com/briarshard/shardsearch/pkg/middleware"
	"github.com/briarshard/shardsearch/pkg/tracing"
)

// SearchExecutor runs a parsed request against the embedded engine.
type SearchExecutor interface {
	Execute(ctx context.Context, req *parser.Request) (*query.Result, error)
}

// Handler wires the request path: parse → cache → executor → respond,
// emitting one analytics event per search.
type Handler struct {
	executor     SearchExecutor
	cache        *cache.QueryCache
	collector    *analytics.Collector
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New builds a Handler. cache, collector, and m may each be nil to
// disable that concern.
func New(exec SearchExecutor, queryCache *cache.QueryCache, collector *analytics.Collector, m *metrics.Metrics, defaultLimit, maxResults int) *Handler {
	return &Handler{
		executor:     exec,
		cache:        queryCache,
		collector:    collector,
		metrics:      m,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Search accepts a GET with ?q=&field=&from=&limit= (turned into one
// match clause) or a POST carrying {"query":..., "filter":...,
// "from":..., "size":...}.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	req, err := h.buildRequest(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, span := tracing.Start(ctx, "search", middleware.GetRequestID(ctx))
	defer func() {
		span.End()
		span.Emit()
	}()
	span.SetAttr("query_kind", topClause(req.Query))

	var (
		result   *query.Result
		cacheHit bool
	)
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, req, func() (*query.Result, error) {
			execCtx, execSpan := tracing.StartChild(ctx, "executor")
			defer execSpan.End()
			return h.executor.Execute(execCtx, req)
		})
	} else {
		result, err = h.executor.Execute(ctx, req)
	}
	if err != nil {
		log.Error("search failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	elapsed := time.Since(start)
	h.observe(cacheHit, elapsed)
	log.Info("search served",
		"total_hits", result.TotalHits,
		"returned", len(result.Hits),
		"cache_hit", cacheHit,
		"latency_ms", elapsed.Milliseconds(),
	)

	if h.collector != nil {
		h.collector.Track(analytics.SearchEvent{
			Type:          analytics.EventSearch,
			Query:         string(req.Query),
			QueryKind:     topClause(req.Query),
			TotalHits:     result.TotalHits,
			Returned:      len(result.Hits),
			LatencyMs:     elapsed.Milliseconds(),
			CacheHit:      cacheHit,
			FilterApplied: req.Filter != "",
			Timestamp:     time.Now().UTC(),
			RequestID:     middleware.GetRequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) observe(cacheHit bool, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}
	label := "miss"
	if cacheHit {
		label = "hit"
		h.metrics.CacheHitsTotal.Inc()
	} else {
		h.metrics.CacheMissesTotal.Inc()
	}
	h.metrics.SearchLatency.WithLabelValues(label).Observe(elapsed.Seconds())
}

// topClause names the query's top-level form for the analytics event.
func topClause(raw json.RawMessage) string {
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

// buildRequest decodes a POST body, or synthesizes a match query from
// GET parameters.
func (h *Handler) buildRequest(r *http.Request) (*parser.Request, error) {
	if r.Method == http.MethodPost {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		return parser.Parse(body, h.defaultLimit, h.maxResults)
	}

	q := r.URL.Query().Get("q")
	if q == "" {
		return nil, fmt.Errorf("query parameter 'q' is required")
	}
	field := r.URL.Query().Get("field")
	if field == "" {
		field = "title"
	}

	from := 0
	if v := r.URL.Query().Get("from"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			from = n
		}
	}
	size := h.defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			size = n
		}
	}

	body, _ := json.Marshal(map[string]any{
		"query": parser.SimpleMatch(field, q),
		"from":  from,
		"size":  size,
	})
	return parser.Parse(body, h.defaultLimit, h.maxResults)
}

// CacheStats reports hit/miss counters for the query cache.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate flushes the query cache.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// Health answers the service's liveness endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("response write failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
