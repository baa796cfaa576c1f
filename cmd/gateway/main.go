// Command gateway is the single external entry point: API-key auth,
// per-key rate limiting, CORS, circuit-broken proxying to the ingestion
// and searcher services, and direct document/key lookups in PostgreSQL.
//
// Usage:
//
//	go run ./cmd/gateway [-config configs/development.yaml]
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
	"time"

	"github.com/briarshard/shardsearch/internal/auth/apikey"
	"github.com/briarshard/shardsearch/internal/auth/ratelimit"
	gwhandler "github.com/briarshard/shardsearch/internal/gateway/handler"
	"github.com/briarshard/shardsearch/internal/gateway/router"
	"github.com/briarshard/shardsearch/pkg/config"
	"github.com/briarshard/shardsearch/pkg/logger"
	"github.com/briarshard/shardsearch/pkg/metrics"
	"github.com/briarshard/shardsearch/pkg/postgres"
	"github.com/briarshard/shardsearch/pkg/resilience"
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
	slog.Info("gateway starting",
		"port", cfg.Gateway.Port,
		"ingestion_url", cfg.Gateway.IngestionURL,
		"searcher_url", cfg.Gateway.SearcherURL,
	)

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var onBreakerState func(string, resilience.BreakerState)
	if cfg.Metrics.Enabled {
		m := metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
		onBreakerState = func(name string, state resilience.BreakerState) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
		}
	}

	keys := apikey.NewStore(db)
	limiter := ratelimit.New(time.Minute)

	h := gwhandler.New(gwhandler.Config{
		IngestionURL: cfg.Gateway.IngestionURL,
		SearcherURL:  cfg.Gateway.SearcherURL,
	}, db, keys, onBreakerState)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Gateway.Port),
		Handler:      router.New(h, keys, limiter),
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

	slog.Info("gateway listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway stopped")
}
