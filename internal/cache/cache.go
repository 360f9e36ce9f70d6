// Package cache stores analysis results and rate-limit counters in Redis.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Cache is the caching interface the analysis service and rate limiter use.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// DefaultNamespace prefixes every key written by RedisCache.
const DefaultNamespace = "mdmdedup:"

// RedisCache implements Cache on go-redis. Keys are namespaced so several
// deployments can share one Redis.
type RedisCache struct {
	client    *redis.Client
	namespace string
}

type Option func(*RedisCache)

// WithNamespace overrides DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(c *RedisCache) { c.namespace = ns }
}

// NewRedisCache creates a RedisCache from a redis:// or rediss:// URL.
func NewRedisCache(redisURL string, opts ...Option) (*RedisCache, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, eris.Wrap(err, "cache: parse redis url")
	}
	c := &RedisCache{client: redis.NewClient(ropts), namespace: DefaultNamespace}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *RedisCache) key(k string) string { return c.namespace + k }

func (c *RedisCache) Ping(ctx context.Context) error {
	return eris.Wrap(c.client.Ping(ctx).Err(), "cache: ping")
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return eris.Wrapf(c.client.Set(ctx, c.key(key), value, ttl).Err(), "cache: set %s", key)
}

// Get returns found=false with a nil error for a missing key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, eris.Wrapf(err, "cache: get %s", key)
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return eris.Wrapf(c.client.Del(ctx, c.key(key)).Err(), "cache: delete %s", key)
}

// IncrWithExpiry increments key and sets its ttl when the key is new, so a
// counter lives exactly ttl from its first hit.
func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	k := c.key(key)
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, eris.Wrapf(err, "cache: incr %s", key)
	}
	return incr.Val(), nil
}
