// Command ingestion runs the document write path: it accepts documents
// over POST /api/v1/documents, validates them, persists their records
// to PostgreSQL, and publishes ingest events to Kafka for the indexer.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/briarshard/shardsearch/internal/ingestion/handler"
	"github.com/briarshard/shardsearch/internal/ingestion/publisher"
	"github.com/briarshard/shardsearch/pkg/config"
	"github.com/briarshard/shardsearch/pkg/health"
	"github.com/briarshard/shardsearch/pkg/kafka"
	"github.com/briarshard/shardsearch/pkg/logger"
	"github.com/briarshard/shardsearch/pkg/metrics"
	"github.com/briarshard/shardsearch/pkg/middleware"
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
	slog.Info("ingestion starting", "port", cfg.Server.Port)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
	defer producer.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.Result {
		if err := db.DB.PingContext(ctx); err != nil {
			return health.Result{Status: health.StatusDown, Message: err.Error()}
		}
		return health.Result{Status: health.StatusUp}
	})

	pub := publisher.New(db, producer, cfg.Engine.TotalShards)
	h := handler.New(pub)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var root http.Handler = mux
	if m != nil {
		root = middleware.Metrics(m)(root)
	}
	root = middleware.RequestID(root)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("ingestion listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion stopped")
}
