// Package consumer turns ingest events from Kafka into engine writes
// and keeps each document's status row current in PostgreSQL.
package consumer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/briarshard/shardsearch/internal/indexer"
	"github.com/briarshard/shardsearch/internal/ingestion"
	"github.com/briarshard/shardsearch/pkg/kafka"
)

// IndexConsumer drives the indexing pipeline off the document-ingest
// topic.
type IndexConsumer struct {
	consumer *kafka.Consumer
	engine   *indexer.Engine
	logger   *slog.Logger
}

// New wraps kafkaConsumer; engine is only used for the periodic gauge
// refresh Run performs alongside consumption.
func New(kafkaConsumer *kafka.Consumer, engine *indexer.Engine) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		engine:   engine,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Run consumes until ctx is cancelled, refreshing shard gauges every
// gaugePeriod in the background.
func (ic *IndexConsumer) Run(ctx context.Context, gaugePeriod time.Duration) error {
	if gaugePeriod > 0 {
		go func() {
			ticker := time.NewTicker(gaugePeriod)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					ic.engine.PublishShardGauges()
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	ic.logger.Info("index consumer running")
	return ic.consumer.Run(ctx)
}

// HandleEvent builds the Handler that indexes each ingest event. The
// event's shard index is advisory: the publisher and the engine compute
// placement with the same hash, so the engine resolves it again itself
// and the field only appears in logs. A nil db skips status updates.
func HandleEvent(engine *indexer.Engine, db *sql.DB) kafka.Handler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			// A record that cannot decode never will; commit past it.
			logger.Error("undecodable ingest event skipped", "key", string(key), "error", err)
			return nil
		}

		if err := engine.IndexDocument(event.DocumentID, string(event.Document)); err != nil {
			setStatus(ctx, db, event.DocumentID, "FAILED", logger)
			return fmt.Errorf("indexing %s: %w", event.DocumentID, err)
		}
		setStatus(ctx, db, event.DocumentID, "INDEXED", logger)

		logger.Info("document indexed",
			"document_id", event.DocumentID, "shard_index", event.ShardIndex)
		return nil
	}
}

func setStatus(ctx context.Context, db *sql.DB, docID, status string, logger *slog.Logger) {
	if db == nil {
		return
	}
	_, err := db.ExecContext(ctx,
		`UPDATE documents SET status = $1, indexed_at = NOW() WHERE id = $2`,
		status, docID,
	)
	if err != nil {
		logger.Error("status update failed",
			"document_id", docID, "status", status, "error", err)
	}
}
