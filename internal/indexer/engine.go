// Package indexer owns the embedded search-engine instance and the
// Kafka-driven pipeline that keeps it populated. The inverted index,
// BM25 ranking, and aggregation machinery all live in
// internal/searchengine; this package is the operational shell the
// consumer and the service binaries drive.
package indexer

import (
	"fmt"
	"log/slog"

	"github.com/briarshard/shardsearch/internal/searchengine/embed"
	"github.com/briarshard/shardsearch/pkg/config"
	"github.com/briarshard/shardsearch/pkg/metrics"
)

// Engine wraps embed.Engine with service-layer logging and metrics.
type Engine struct {
	*embed.Engine
	cfg     config.EngineConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEngine opens the embedded engine per cfg. m may be nil when the
// caller runs without a metrics registry (tests).
func NewEngine(cfg config.EngineConfig, m *metrics.Metrics) (*Engine, error) {
	if cfg.TotalShards <= 0 {
		return nil, fmt.Errorf("indexer: total shards must be positive, got %d", cfg.TotalShards)
	}
	eng, err := embed.Open(cfg.NodeID, cfg.IndexName, cfg.TotalShards)
	if err != nil {
		return nil, fmt.Errorf("indexer: opening engine: %w", err)
	}
	e := &Engine{
		Engine:  eng,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "indexer", "index", cfg.IndexName),
	}
	e.logger.Info("engine opened", "total_shards", cfg.TotalShards, "node_id", cfg.NodeID)
	return e, nil
}

// IndexDocument stores docJSON under docID, routed to its shard by the
// engine's consistent hash, and keeps the per-shard gauges current.
func (e *Engine) IndexDocument(docID, docJSON string) error {
	if err := e.Engine.IndexDocument(docID, docJSON); err != nil {
		if e.metrics != nil {
			e.metrics.IndexErrorsTotal.Inc()
		}
		return fmt.Errorf("indexer: document %s: %w", docID, err)
	}
	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Inc()
	}
	e.logger.Debug("document indexed", "document_id", docID)
	return nil
}

// PublishShardGauges pushes every shard's doc and term counts into the
// metrics gauges; the consumer calls it periodically.
func (e *Engine) PublishShardGauges() {
	if e.metrics == nil {
		return
	}
	stats := e.GetStats()
	for _, s := range stats.Shards {
		label := fmt.Sprint(s.ShardIndex)
		e.metrics.ShardDocuments.WithLabelValues(label).Set(float64(s.DocCount))
		e.metrics.ShardTermCount.WithLabelValues(label).Set(float64(s.UniqueTermCount))
	}
}

// Close shuts down every local shard.
func (e *Engine) Close() error {
	return e.Engine.Close()
}
