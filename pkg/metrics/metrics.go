// Package metrics registers the Prometheus collectors every service
// shares and serves the scrape endpoint. Collector names carry the
// shardsearch namespace so several services can run side by side on one
// scrape host without colliding.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shardsearch"

// Metrics bundles the platform's Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SearchesTotal     *prometheus.CounterVec
	SearchLatency     *prometheus.HistogramVec
	SearchHitCount    prometheus.Histogram
	ShardsPerQuery    prometheus.Histogram
	FilterEvalsTotal  prometheus.Counter
	FilterDropsTotal  prometheus.Counter
	AggregationsTotal *prometheus.CounterVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	DocsIndexedTotal  prometheus.Counter
	IndexErrorsTotal  prometheus.Counter
	ShardDocuments    *prometheus.GaugeVec
	ShardTermCount    *prometheus.GaugeVec

	CircuitBreakerState *prometheus.GaugeVec
}

// New builds and registers every collector on the default registry.
// Call it once per process.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, path, and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),

		SearchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Search executions by query kind (term, match, bool, ...) and outcome.",
		}, []string{"query_kind", "outcome"}),
		SearchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_latency_seconds",
			Help:      "End-to-end search latency, split by cache outcome.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"cache"}),
		SearchHitCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_hits",
			Help:      "Hits returned per search.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
		}),
		ShardsPerQuery: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shards_per_query",
			Help:      "Local shards a query fanned out to.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
		}),
		FilterEvalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_evaluations_total",
			Help:      "Predicate-filter evaluations across all queries.",
		}),
		FilterDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_drops_total",
			Help:      "Documents dropped by a predicate filter.",
		}),
		AggregationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregations_total",
			Help:      "Aggregations computed, by kind.",
		}, []string{"kind"}),

		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Query-cache hits.",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Query-cache misses.",
		}),

		DocsIndexedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_indexed_total",
			Help:      "Documents successfully indexed.",
		}),
		IndexErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_errors_total",
			Help:      "Documents rejected at indexing (malformed JSON, closed shard).",
		}),
		ShardDocuments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shard_documents",
			Help:      "Documents held per shard.",
		}, []string{"shard_index"}),
		ShardTermCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shard_unique_terms",
			Help:      "Distinct inverted-index terms per shard.",
		}, []string{"shard_index"}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Breaker state per upstream (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchesTotal,
		m.SearchLatency,
		m.SearchHitCount,
		m.ShardsPerQuery,
		m.FilterEvalsTotal,
		m.FilterDropsTotal,
		m.AggregationsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.IndexErrorsTotal,
		m.ShardDocuments,
		m.ShardTermCount,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
