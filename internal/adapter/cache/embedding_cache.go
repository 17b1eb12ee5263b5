package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"productrag/internal/logger"
	"productrag/internal/port"
)

const redisPrefix = "productrag:emb:"

// EmbeddingCache layers the in-process QueryCache over an optional Redis
// store. Redis failures are logged and read as misses.
type EmbeddingCache struct {
	local  *QueryCache
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ port.EmbeddingCache = (*EmbeddingCache)(nil)

// NewEmbeddingCache creates the cache. rdb may be nil.
func NewEmbeddingCache(local *QueryCache, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *EmbeddingCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EmbeddingCache{
		local:  local,
		redis:  rdb,
		ttl:    ttl,
		logger: logger.OrNop(log),
	}
}

// NewRedisClient parses a redis:// URL. An empty URL yields nil.
func NewRedisClient(url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (c *EmbeddingCache) Get(ctx context.Context, model, text string) ([]float32, bool) {
	if v, ok := c.local.Get(model, text); ok {
		return v, true
	}
	if c.redis == nil {
		return nil, false
	}

	data, err := c.redis.Get(ctx, redisPrefix+cacheKey(model, text)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("redis cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var v []float32
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false
	}
	c.local.Put(model, text, v)
	return v, true
}

func (c *EmbeddingCache) Set(ctx context.Context, model, text string, vector []float32) {
	c.local.Put(model, text, vector)
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, redisPrefix+cacheKey(model, text), data, c.ttl).Err(); err != nil {
		c.logger.Debug("redis cache write failed", zap.Error(err))
	}
}

// Invalidate drops the local layer. Redis entries are keyed by model and
// stay valid across index rebuilds.
func (c *EmbeddingCache) Invalidate() {
	c.local.Invalidate()
}
