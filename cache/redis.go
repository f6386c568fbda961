package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores values in Redis under a key prefix.
type RedisCache struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisCache wraps an existing client. Keys are stored as prefix+key;
// an empty prefix stores them unchanged.
func NewRedisCache(rdb redis.UniversalClient, prefix string) (*RedisCache, error) {
	if rdb == nil {
		return nil, ErrNilCache
	}
	return &RedisCache{rdb: rdb, prefix: prefix}, nil
}

func (c *RedisCache) key(k string) string { return c.prefix + k }

// Get returns (nil, false) on a miss and on any Redis failure.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores value with ttl. TTL<=0 is a no-op.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

// Delete removes key. Idempotent.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, c.key(key)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cache: redis del: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

var _ Cache = (*RedisCache)(nil)
