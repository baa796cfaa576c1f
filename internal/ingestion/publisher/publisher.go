// Package publisher persists accepted documents to PostgreSQL and
// publishes ingest events for the indexer. Shard assignment uses the
// same consistent hash the embedded engine routes documents with, so
// the shard recorded at ingest always matches where the engine places
// the document.
package publisher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/briarshard/shardsearch/internal/ingestion"
	"github.com/briarshard/shardsearch/internal/searchengine/cluster"
	apperrors "github.com/briarshard/shardsearch/pkg/errors"
	"github.com/briarshard/shardsearch/pkg/kafka"
	"github.com/briarshard/shardsearch/pkg/postgres"
)

// Publisher owns the write path: insert, assign shard, publish.
type Publisher struct {
	db          *postgres.Client
	producer    *kafka.Producer
	totalShards int
	logger      *slog.Logger
}

// New builds a Publisher. totalShards must equal the engine's
// configured shard count or ingest-time placement and index-time
// placement diverge.
func New(db *postgres.Client, producer *kafka.Producer, totalShards int) *Publisher {
	return &Publisher{
		db:          db,
		producer:    producer,
		totalShards: totalShards,
		logger:      slog.Default().With("component", "publisher"),
	}
}

// Ingest stores the document as PENDING and publishes its IngestEvent,
// keyed by shard index so one shard's documents stay ordered on one
// partition. A previously-seen idempotency key short-circuits to the
// original response.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if req.IdempotencyKey != "" {
		prior, err := p.lookupIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
		if prior != nil {
			p.logger.Info("replaying idempotent ingest",
				"idempotency_key", req.IdempotencyKey, "document_id", prior.DocumentID)
			return prior, nil
		}
	}

	docID := uuid.NewString()
	shardIndex := cluster.ShardForKey(docID, p.totalShards)

	err := p.db.InTx(ctx, func(tx *sql.Tx) error {
		var inserted string
		err := tx.QueryRowContext(ctx,
			`INSERT INTO documents (id, document, content_size, shard_index, idempotency_key, status)
			 VALUES ($1, $2, $3, $4, $5, 'PENDING')
			 ON CONFLICT (idempotency_key) DO NOTHING
			 RETURNING id`,
			docID, []byte(req.Document), len(req.Document), shardIndex,
			nullable(req.IdempotencyKey),
		).Scan(&inserted)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.New(apperrors.ErrIdempotencyConflict, http.StatusConflict, "idempotency key already in use")
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("persisting document: %w", err)
	}

	event := ingestion.IngestEvent{
		DocumentID: docID,
		Document:   req.Document,
		ShardIndex: shardIndex,
		IngestedAt: time.Now().UTC(),
	}
	if err := p.producer.Publish(ctx, kafka.Message{Key: strconv.Itoa(shardIndex), Payload: event}); err != nil {
		// The row stays PENDING; a reconciliation sweep can republish it.
		p.logger.Error("ingest event publish failed, document left pending",
			"document_id", docID, "shard_index", shardIndex, "error", err)
	}

	return &ingestion.IngestResponse{
		DocumentID: docID,
		Status:     "PENDING",
		ShardIndex: shardIndex,
	}, nil
}

func (p *Publisher) lookupIdempotencyKey(ctx context.Context, key string) (*ingestion.IngestResponse, error) {
	var resp ingestion.IngestResponse
	err := p.db.DB.QueryRowContext(ctx,
		`SELECT id, status, shard_index FROM documents WHERE idempotency_key = $1`, key,
	).Scan(&resp.DocumentID, &resp.Status, &resp.ShardIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
