// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lpsprint/sprint/internal/log"
	"github.com/lpsprint/sprint/internal/metrics"
)

const (
	redisCacheName = "redis"
	redisOpTimeout = 2 * time.Second
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisCache stores entries in Redis so dedup state survives restarts and is
// shared when several instances watch the same program.
type RedisCache struct {
	client *redis.Client
	logger zerolog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
}

// NewRedisCache connects to Redis and verifies it responds before returning.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: redis ping %s: %w", cfg.Addr, err)
	}

	logger := log.WithComponent("cache")
	logger.Info().
		Str("event", "cache.redis_connected").
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("connected to redis")

	return &RedisCache{client: client, logger: logger}, nil
}

// Get retrieves a key. Backend or decode failures read as misses.
func (c *RedisCache) Get(key string) (any, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().
				Str("event", "cache.get_failed").
				Err(err).
				Str("key", key).
				Msg("redis get failed")
		}
		c.misses.Add(1)
		metrics.IncCacheMiss(redisCacheName)
		return nil, false
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		c.logger.Warn().
			Str("event", "cache.decode_failed").
			Err(err).
			Str("key", key).
			Msg("cached payload is not valid json")
		c.misses.Add(1)
		metrics.IncCacheMiss(redisCacheName)
		return nil, false
	}

	c.hits.Add(1)
	metrics.IncCacheHit(redisCacheName)
	return value, true
}

// Set stores a key with ttl. Failures are logged and dropped; callers treat
// the entry as never written.
func (c *RedisCache) Set(key string, value any, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	payload, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().
			Str("event", "cache.encode_failed").
			Err(err).
			Str("key", key).
			Msg("value not serializable")
		return
	}
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		c.logger.Warn().
			Str("event", "cache.set_failed").
			Err(err).
			Str("key", key).
			Msg("redis set failed")
		return
	}
	c.sets.Add(1)
}

// Delete removes one key.
func (c *RedisCache) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn().
			Str("event", "cache.delete_failed").
			Err(err).
			Str("key", key).
			Msg("redis delete failed")
	}
}

// Clear flushes the configured database.
func (c *RedisCache) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.FlushDB(ctx).Err(); err != nil {
		c.logger.Warn().
			Str("event", "cache.flush_failed").
			Err(err).
			Msg("redis flush failed")
	}
}

// Stats reports counters; the entry count is read live from Redis.
func (c *RedisCache) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	size, err := c.client.DBSize(ctx).Result()
	if err != nil {
		c.logger.Warn().
			Str("event", "cache.dbsize_failed").
			Err(err).
			Msg("redis dbsize failed")
		size = 0
	}
	metrics.SetCacheEntries(redisCacheName, int(size))

	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Sets:      c.sets.Load(),
		Evictions: c.evictions.Load(),
		Entries:   int(size),
	}
}

// Ping reports whether Redis answers, for readiness checks.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
