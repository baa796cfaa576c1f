// Package ingestion defines the request/response shapes of the document
// write path and the Kafka event it hands to the indexer.
package ingestion

import (
	"encoding/json"
	"time"
)

// IngestRequest is the body accepted at POST /api/v1/documents. The
// document is any JSON object; ingestion validates shape and size but
// never interprets fields — tokenization happens at the indexer.
type IngestRequest struct {
	Document       json.RawMessage `json:"document"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// IngestResponse acknowledges an accepted document.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	ShardIndex int    `json:"shard_index"`
}

// IngestEvent is the record published to the document-ingest topic once
// the document is persisted. The indexer consumes it and feeds the
// embedded engine.
type IngestEvent struct {
	DocumentID string          `json:"document_id"`
	Document   json.RawMessage `json:"document"`
	ShardIndex int             `json:"shard_index"`
	IngestedAt time.Time       `json:"ingested_at"`
}
