// Command indexer runs a standalone, write-only embedded engine fed by
// the document-ingest topic. It shares no state with a separately-run
// cmd/searcher: each process owns its own in-memory engine, so this
// binary suits offline or backfill indexing runs, not deployments where
// the searcher must observe the same documents.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml]
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briarshard/shardsearch/internal/analytics"
	"github.com/briarshard/shardsearch/internal/analytics/collector"
	"github.com/briarshard/shardsearch/internal/indexer"
	"github.com/briarshard/shardsearch/internal/indexer/consumer"
	"github.com/briarshard/shardsearch/internal/ingestion"
	"github.com/briarshard/shardsearch/pkg/config"
	"github.com/briarshard/shardsearch/pkg/kafka"
	"github.com/briarshard/shardsearch/pkg/logger"
	"github.com/briarshard/shardsearch/pkg/metrics"
	"github.com/briarshard/shardsearch/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("indexer starting",
		"total_shards", cfg.Engine.TotalShards, "node_id", cfg.Engine.NodeID)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	engine, err := indexer.NewEngine(cfg.Engine, m)
	if err != nil {
		slog.Error("engine open failed", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	var sqlDB *sql.DB
	if db, err := postgres.New(cfg.Postgres); err != nil {
		slog.Warn("running without postgres status updates", "error", err)
	} else {
		defer db.Close()
		sqlDB = db.DB
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Index events for analytics flow out in batches.
	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	batch := collector.NewBatchCollector(analyticsProducer, 100, 5*time.Second)
	batch.Start(ctx)

	base := consumer.HandleEvent(engine, sqlDB)
	handler := func(hctx context.Context, key, value []byte) error {
		start := time.Now()
		if err := base(hctx, key, value); err != nil {
			return err
		}
		if event, err := kafka.DecodeJSON[ingestion.IngestEvent](value); err == nil {
			batch.Track("index", analytics.IndexEvent{
				Type:       analytics.EventIndexDoc,
				DocumentID: event.DocumentID,
				ShardIndex: event.ShardIndex,
				SizeBytes:  len(event.Document),
				LatencyMs:  time.Since(start).Milliseconds(),
				Timestamp:  time.Now().UTC(),
			})
		}
		return nil
	}

	kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, handler)
	indexConsumer := consumer.New(kafkaConsumer, engine)

	slog.Info("indexer consuming",
		"topic", cfg.Kafka.Topics.DocumentIngest, "group", cfg.Kafka.ConsumerGroup)
	if err := indexConsumer.Run(ctx, cfg.Indexer.ProgressLogPeriod); err != nil {
		slog.Error("consumer failed", "error", err)
	}
	batch.Close()
	slog.Info("indexer stopped")
}
