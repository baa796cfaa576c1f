// Command analytics runs the standalone aggregation service: it folds
// search and index events from Kafka into an in-memory view, serves it
// at GET /api/v1/analytics and over the internal RPC surface, and
// snapshots it to PostgreSQL periodically.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briarshard/shardsearch/internal/analytics"
	"github.com/briarshard/shardsearch/internal/analytics/aggregator"
	"github.com/briarshard/shardsearch/pkg/config"
	"github.com/briarshard/shardsearch/pkg/grpc"
	"github.com/briarshard/shardsearch/pkg/health"
	"github.com/briarshard/shardsearch/pkg/kafka"
	"github.com/briarshard/shardsearch/pkg/logger"
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
	slog.Info("analytics starting", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents,
		analytics.HandleEvent(agg))
	go func() {
		if err := consumer.Run(ctx); err != nil {
			slog.Error("consumer failed", "error", err)
		}
	}()
	slog.Info("consuming analytics events", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	// Snapshot persistence is best-effort: the service still serves its
	// in-memory view when PostgreSQL is away.
	if db, err := postgres.New(cfg.Postgres); err != nil {
		slog.Warn("running without snapshot persistence", "error", err)
	} else {
		defer db.Close()
		store := aggregator.NewStore(db)
		store.RunPeriodicSave(ctx, agg, 5*time.Minute)
	}

	analyticsHandler := analytics.NewHandler(agg)

	// RPC surface mirroring the HTTP endpoint for internal callers.
	rpc := grpc.NewServer()
	rpc.Register("Analytics.Stats", func(context.Context, json.RawMessage) (any, error) {
		return agg.Stats(), nil
	})
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.RPCPort)
		if err := rpc.Serve(addr); err != nil {
			slog.Error("rpc serve failed", "error", err)
		}
	}()
	defer rpc.Stop()

	checker := health.NewChecker()
	checker.Register("aggregator", func(ctx context.Context) health.Result {
		return health.Result{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics listening", "addr", server.Addr, "rpc_port", cfg.Server.RPCPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics stopped")
}
