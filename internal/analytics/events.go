// Package analytics aggregates the platform's search and indexing
// telemetry from the analytics topic into queryable counters.
package analytics

import "time"

// EventType discriminates records on the analytics topic.
type EventType string

const (
	EventSearch   EventType = "search"
	EventIndexDoc EventType = "index_document"
)

// SearchEvent is emitted by the searcher for every executed query.
type SearchEvent struct {
	Type          EventType `json:"type"`
	Query         string    `json:"query"`
	QueryKind     string    `json:"query_kind"`
	TotalHits     int       `json:"total_hits"`
	Returned      int       `json:"returned"`
	LatencyMs     int64     `json:"latency_ms"`
	CacheHit      bool      `json:"cache_hit"`
	FilterApplied bool      `json:"filter_applied"`
	ShardCount    int       `json:"shard_count"`
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"request_id"`
}

// IndexEvent is emitted by the indexer for every stored document.
type IndexEvent struct {
	Type       EventType `json:"type"`
	DocumentID string    `json:"document_id"`
	ShardIndex int       `json:"shard_index"`
	SizeBytes  int       `json:"size_bytes"`
	LatencyMs  int64     `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
}
