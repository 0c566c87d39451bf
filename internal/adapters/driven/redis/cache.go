package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Cache = (*Cache)(nil)

const keyPrefix = "protex:"

// Cache implements the Cache port on Redis. Backend failures degrade to
// cache misses: callers recompute, extraction never fails because the
// cache is down. Every Redis call carries its own short timeout so a
// hung backend cannot stall an extraction.
type Cache struct {
	client    *redis.Client
	opTimeout time.Duration
	logger    *slog.Logger
}

// CacheConfig holds configuration for the Redis cache.
type CacheConfig struct {
	Client *redis.Client
	// OpTimeout bounds each individual Redis operation (default 500ms).
	OpTimeout time.Duration
	Logger    *slog.Logger
}

// NewCache creates a Redis-backed cache.
func NewCache(cfg CacheConfig) *Cache {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 500 * time.Millisecond
	}
	return &Cache{
		client:    cfg.Client,
		opTimeout: opTimeout,
		logger:    logger,
	}
}

// Get returns the value for key, or a miss on absence, expiry or any
// backend error.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	val, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache get degraded to miss", "key", key, "error", err)
		return nil, false
	}
	return val, true
}

// Set stores value under key with the given TTL. Failures are logged
// and swallowed.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.client.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		c.logger.Warn("cache set dropped", "key", key, "error", err)
	}
}

// Invalidate removes every entry whose key starts with prefix, using
// SCAN rather than KEYS so a large cache is walked without blocking
// the server.
func (c *Cache) Invalidate(ctx context.Context, prefix string) int {
	var removed int
	var cursor uint64
	for {
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		keys, next, err := c.client.Scan(opCtx, cursor, keyPrefix+prefix+"*", 256).Result()
		if err != nil {
			cancel()
			c.logger.Warn("cache invalidation aborted", "prefix", prefix, "error", err)
			return removed
		}
		if len(keys) > 0 {
			n, err := c.client.Del(opCtx, keys...).Result()
			if err != nil {
				cancel()
				c.logger.Warn("cache invalidation aborted", "prefix", prefix, "error", err)
				return removed
			}
			removed += int(n)
		}
		cancel()
		if next == 0 {
			return removed
		}
		cursor = next
	}
}

// Ping checks if the Redis backend is healthy.
func (c *Cache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	return c.client.Ping(ctx).Err()
}
