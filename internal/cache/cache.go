// Package cache wraps derived-view reads (internal/views) behind a
// cache-aside layer backed by Redis. Price-history and dynamic-news
// views are pure derivations over already-durable state (spec §9
// "Caches"), so losing this layer changes nothing but request latency;
// it is never a source of truth.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Stats counts this Cache's hits, misses and Redis errors, as returned by
// Cache.Stats; they are not exported through /metrics.
type Stats struct {
	Hits   int64
	Misses int64
	Errors int64
}

// Cache is a thin JSON-marshaling cache-aside wrapper over a Redis
// client, scoped by a fixed key prefix so multiple savegames sharing one
// Redis instance never collide.
type Cache struct {
	client    *redis.Client
	keyPrefix string
	stats     Stats
}

// New constructs a Cache against addr/db. Connection errors surface only
// on first use (Get/Set), per spec §9: the cache is never load-bearing,
// so a Redis outage degrades latency, not correctness.
func New(addr, password string, db int, keyPrefix string) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
	})
	return &Cache{client: client, keyPrefix: keyPrefix}
}

// GetOrCompute returns the cached JSON-decoded value at key, or calls
// compute, caches its result for ttl, and returns that.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func() (T, error)) (T, error) {
	var out T
	raw, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err == nil {
		if jerr := json.Unmarshal(raw, &out); jerr == nil {
			c.stats.Hits++
			return out, nil
		}
	}
	if err != nil && err != redis.Nil {
		c.stats.Errors++
		log.Debug().Err(err).Str("key", key).Msg("cache: read failed, falling through to compute")
	} else {
		c.stats.Misses++
	}

	out, cerr := compute()
	if cerr != nil {
		return out, cerr
	}
	if encoded, jerr := json.Marshal(out); jerr == nil {
		if serr := c.client.Set(ctx, c.keyPrefix+key, encoded, ttl).Err(); serr != nil {
			c.stats.Errors++
			log.Debug().Err(serr).Str("key", key).Msg("cache: write failed")
		}
	}
	return out, nil
}

// Invalidate deletes key, used when a mutation makes a cached derivation
// stale before its TTL (e.g. a crash trigger invalidating price-history
// entries that span the triggered window).
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.keyPrefix+key).Err()
}

// Stats returns a copy of the current hit/miss/error counters.
func (c *Cache) Stats() Stats { return c.stats }

// Ping checks Redis connectivity, for the health endpoint.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error { return c.client.Close() }
