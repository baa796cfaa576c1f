// Command searcher owns the embedded search engine and serves both the
// search HTTP API and the Kafka-driven indexing consumer off the same
// in-process engine instance, so a document published via cmd/ingestion
// becomes searchable here without a separate indexer process. It also
// exposes the internal RPC surface (Search.Query, Search.Stats) other
// services call over pkg/grpc.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/briarshard/shardsearch/internal/analytics"
	"github.com/briarshard/shardsearch/internal/indexer"
	"github.com/briarshard/shardsearch/internal/indexer/consumer"
	"github.com/briarshard/shardsearch/internal/searcher/cache"
	"github.com/briarshard/shardsearch/internal/searcher/executor"
	"github.com/briarshard/shardsearch/internal/searcher/handler"
	"github.com/briarshard/shardsearch/internal/searcher/parser"
	"github.com/briarshard/shardsearch/pkg/config"
	"github.com/briarshard/shardsearch/pkg/grpc"
	"github.com/briarshard/shardsearch/pkg/health"
	"github.com/briarshard/shardsearch/pkg/kafka"
	"github.com/briarshard/shardsearch/pkg/logger"
	"github.com/briarshard/shardsearch/pkg/metrics"
	"github.com/briarshard/shardsearch/pkg/middleware"
	"github.com/briarshard/shardsearch/pkg/postgres"
	"github.com/briarshard/shardsearch/pkg/proto"
	pkgredis "github.com/briarshard/shardsearch/pkg/redis"
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
	slog.Info("searcher starting",
		"port", cfg.Server.Port, "total_shards", cfg.Engine.TotalShards)

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
	if pg, err := postgres.New(cfg.Postgres); err != nil {
		slog.Warn("running without postgres status updates", "error", err)
	} else {
		defer pg.Close()
		sqlDB = pg.DB
	}

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, query caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis)
		slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Indexing consumer feeding the shared engine.
	indexKafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest,
		consumer.HandleEvent(engine, sqlDB))
	indexConsumer := consumer.New(indexKafkaConsumer, engine)
	go func() {
		slog.Info("index consumer starting",
			"topic", cfg.Kafka.Topics.DocumentIngest, "group", cfg.Kafka.ConsumerGroup)
		if err := indexConsumer.Run(ctx, cfg.Indexer.ProgressLogPeriod); err != nil {
			slog.Error("index consumer failed", "error", err)
		}
	}()

	// Analytics: emit events and fold them back into the local view.
	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	collector := analytics.NewCollector(analyticsProducer, 10000)
	collector.Start(ctx)
	defer collector.Close()

	aggregator := analytics.NewAggregator()
	analyticsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents,
		analytics.HandleEvent(aggregator))
	go func() {
		if err := analyticsConsumer.Run(ctx); err != nil {
			slog.Error("analytics consumer failed", "error", err)
		}
	}()
	analyticsH := analytics.NewHandler(aggregator)

	checker := health.NewChecker()
	checker.Register("engine", func(ctx context.Context) health.Result {
		stats := engine.GetStats()
		if stats.TotalShards > 0 {
			return health.Result{Status: health.StatusUp, Message: fmt.Sprintf("%d shards", stats.TotalShards)}
		}
		return health.Result{Status: health.StatusDown, Message: "no shards"}
	})
	checker.Register("redis", func(ctx context.Context) health.Result {
		if redisClient == nil {
			return health.Result{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.Result{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.Result{Status: health.StatusUp}
	})

	exec := executor.New(engine, m)
	h := handler.New(exec, queryCache, collector, m, cfg.Search.DefaultLimit, cfg.Search.MaxResults)

	// Internal RPC surface for service-to-service calls.
	rpc := grpc.NewServer()
	rpc.Register("Search.Query", func(rctx context.Context, params json.RawMessage) (any, error) {
		var req proto.SearchRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("decoding search request: %w", err)
		}
		result, err := exec.Execute(rctx, &parser.Request{
			Query: req.Query, Filter: req.Filter, From: req.From, Size: req.Size,
		})
		if err != nil {
			return nil, err
		}
		resp := proto.SearchResponse{
			TookMs:    result.TookMs,
			TotalHits: result.TotalHits,
			MaxScore:  result.MaxScore,
			Hits:      make([]proto.Hit, 0, len(result.Hits)),
		}
		for _, h := range result.Hits {
			source, err := json.Marshal(h.Source)
			if err != nil {
				return nil, fmt.Errorf("encoding hit %s: %w", h.ID, err)
			}
			resp.Hits = append(resp.Hits, proto.Hit{ID: h.ID, Score: h.Score, Source: source})
		}
		if len(result.Aggregations) > 0 {
			resp.Aggregations = make(map[string]json.RawMessage, len(result.Aggregations))
			for name, agg := range result.Aggregations {
				encoded, err := json.Marshal(agg)
				if err != nil {
					return nil, fmt.Errorf("encoding aggregation %s: %w", name, err)
				}
				resp.Aggregations[name] = encoded
			}
		}
		return resp, nil
	})
	rpc.Register("Search.Stats", func(_ context.Context, params json.RawMessage) (any, error) {
		req := proto.StatsRequest{ShardIndex: -1}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, fmt.Errorf("decoding stats request: %w", err)
			}
		}
		stats := engine.GetStats()
		resp := proto.StatsResponse{
			Index:       stats.Index,
			TotalShards: stats.TotalShards,
			TotalDocs:   stats.TotalDocs,
		}
		for _, s := range stats.Shards {
			if req.ShardIndex >= 0 && s.ShardIndex != req.ShardIndex {
				continue
			}
			resp.Shards = append(resp.Shards, proto.ShardStats{
				ShardIndex:        s.ShardIndex,
				IsPrimary:         s.IsPrimary,
				State:             string(s.State),
				DocCount:          s.DocCount,
				SizeBytes:         s.EstimatedSizeBytes,
				SearchCount:       s.SearchCount,
				FilterEvalCount:   s.FilterEvalCount,
				UniqueTermCount:   s.UniqueTermCount,
				TermPositionCount: s.TermPositionCount,
			})
		}
		return resp, nil
	})
	rpc.Register("Index.Document", func(_ context.Context, params json.RawMessage) (any, error) {
		var req proto.IndexRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("decoding index request: %w", err)
		}
		if err := engine.IndexDocument(req.DocumentID, string(req.Document)); err != nil {
			return proto.IndexResponse{Indexed: false, Message: err.Error()}, nil
		}
		return proto.IndexResponse{Indexed: true}, nil
	})
	rpc.Register("Index.Delete", func(_ context.Context, params json.RawMessage) (any, error) {
		var req proto.DeleteRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, fmt.Errorf("decoding delete request: %w", err)
		}
		existed, err := engine.DeleteDocument(req.DocumentID)
		if err != nil {
			return nil, err
		}
		return proto.DeleteResponse{Existed: existed}, nil
	})
	rpc.Register("Search.Health", func(context.Context, json.RawMessage) (any, error) {
		return proto.HealthResponse{Status: "SERVING"}, nil
	})
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.RPCPort)
		if err := rpc.Serve(addr); err != nil {
			slog.Error("rpc serve failed", "error", err)
		}
	}()
	defer rpc.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
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

	slog.Info("searcher listening", "addr", server.Addr, "rpc_port", cfg.Server.RPCPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("searcher stopped")
}
