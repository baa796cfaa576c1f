// Package cache caches query.Result envelopes in Redis, keyed by the
// normalized request (query DSL + filter + pagination), and collapses
// concurrent identical cache misses with singleflight.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/briarshard/shardsearch/internal/searchengine/query"
	"github.com/briarshard/shardsearch/internal/searcher/parser"
	"github.com/briarshard/shardsearch/pkg/config"
	pkgredis "github.com/briarshard/shardsearch/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "search:"

// QueryCache caches search results in Redis.
type QueryCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a QueryCache backed by client.
func New(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached result for req, if present.
func (c *QueryCache) Get(ctx context.Context, req *parser.Request) (*query.Result, bool) {
	key := c.buildKey(req)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsMiss(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result query.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return &result, true
}

// Stats returns the cumulative hit/miss counters since the process started.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Set stores result for req with the configured TTL.
func (c *QueryCache) Set(ctx context.Context, req *parser.Request, result *query.Result) {
	key := c.buildKey(req)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for req, or calls computeFn and
// caches its result. Concurrent identical requests collapse onto the one
// in-flight computeFn call via singleflight.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	req *parser.Request,
	computeFn func() (*query.Result, error),
) (*query.Result, bool, error) {
	if result, ok := c.Get(ctx, req); ok {
		return result, true, nil
	}
	key := c.buildKey(req)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.Get(ctx, req); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, req, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*query.Result), false, nil
}

// Invalidate drops every cached search result: the whole search
// namespace goes, not just the entries a given document would have
// matched. It runs when the searcher's cache-invalidate endpoint is
// called; ingesting a document does not call it.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	pattern := keyPrefix + "*"
	deleted, err := c.client.DeletePattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) buildKey(req *parser.Request) string {
	raw, _ := json.Marshal(struct {
		Query  json.RawMessage `json:"query"`
		Filter string          `json:"filter"`
		From   int             `json:"from"`
		Size   int             `json:"size"`
	}{req.Query, req.Filter, req.From, req.Size})
	hash := sha256.Sum256(raw)
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
