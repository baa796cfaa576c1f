// Package proto defines the message types carried over the internal
// JSON-over-TCP RPC layer (pkg/grpc) between the gateway, searcher, and
// analytics services. Hand-written with JSON tags; there is no code
// generation step.
package proto

import "encoding/json"

// SearchRequest asks the searcher to run a query-DSL object, with an
// optional base64-encoded compiled predicate filter and pagination.
type SearchRequest struct {
	Query  json.RawMessage `json:"query"`
	Filter string          `json:"filter,omitempty"`
	From   int             `json:"from"`
	Size   int             `json:"size"`
}

// Hit is one scored document in a SearchResponse.
type Hit struct {
	ID     string          `json:"_id"`
	Score  float64         `json:"_score"`
	Source json.RawMessage `json:"_source"`
}

// SearchResponse carries the merged result envelope back to the caller.
type SearchResponse struct {
	TookMs       int64                      `json:"took"`
	TotalHits    int                        `json:"total_hits"`
	MaxScore     float64                    `json:"max_score"`
	Hits         []Hit                      `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations,omitempty"`
}

// IndexRequest asks the indexer-facing RPC surface to store a document.
type IndexRequest struct {
	DocumentID string          `json:"document_id"`
	Document   json.RawMessage `json:"document"`
}

// IndexResponse acknowledges an IndexRequest.
type IndexResponse struct {
	Indexed bool   `json:"indexed"`
	Message string `json:"message,omitempty"`
}

// DeleteRequest removes a document by id.
type DeleteRequest struct {
	DocumentID string `json:"document_id"`
}

// DeleteResponse reports whether the document existed.
type DeleteResponse struct {
	Existed bool `json:"existed"`
}

// StatsRequest asks for engine statistics. ShardIndex < 0 means every
// shard.
type StatsRequest struct {
	ShardIndex int `json:"shard_index"`
}

// ShardStats is one shard's counters in a StatsResponse.
type ShardStats struct {
	ShardIndex        int    `json:"shard_index"`
	IsPrimary         bool   `json:"is_primary"`
	State             string `json:"state"`
	DocCount          int64  `json:"doc_count"`
	SizeBytes         int64  `json:"size_bytes"`
	SearchCount       int64  `json:"search_count"`
	FilterEvalCount   int64  `json:"filter_eval_count"`
	UniqueTermCount   int64  `json:"unique_term_count"`
	TermPositionCount int64  `json:"term_position_count"`
}

// StatsResponse aggregates engine-wide statistics.
type StatsResponse struct {
	Index       string       `json:"index"`
	TotalShards int          `json:"total_shards"`
	TotalDocs   int64        `json:"total_docs"`
	Shards      []ShardStats `json:"shards"`
}

// HealthResponse reports whether an RPC service is serving.
type HealthResponse struct {
	Status string `json:"status"` // SERVING or NOT_SERVING
}
