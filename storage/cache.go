package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedStore keeps a redis copy of values held by a slower store. Reads are
// served from redis when possible and writes go to the base store first.
// Redis failures never fail a call.
type CachedStore struct {
	base  KV
	redis *redis.Client
	ttl   time.Duration
}

// NewCachedStore wraps base. A nil client or zero ttl disables caching.
func NewCachedStore(base KV, client *redis.Client, ttl time.Duration) *CachedStore {
	if base == nil {
		panic("storage.NewCachedStore: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &CachedStore{base: base, redis: client, ttl: ttl}
}

func (c *CachedStore) Get(ctx context.Context, key string) (string, bool, error) {
	if v, ok := c.load(ctx, key); ok {
		return v, true, nil
	}
	v, found, err := c.base.Get(ctx, key)
	if err != nil || !found {
		return v, found, err
	}
	c.store(ctx, key, v)
	return v, true, nil
}

func (c *CachedStore) Set(ctx context.Context, key, value string) error {
	if err := c.base.Set(ctx, key, value); err != nil {
		c.evict(ctx, key)
		return err
	}
	c.store(ctx, key, value)
	return nil
}

func (c *CachedStore) load(ctx context.Context, key string) (string, bool) {
	if c.redis == nil || c.ttl == 0 {
		return "", false
	}
	v, err := c.redis.Get(ctx, cacheKey(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.evict(ctx, key)
		}
		return "", false
	}
	return v, true
}

func (c *CachedStore) store(ctx context.Context, key, value string) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	_ = c.redis.Set(ctx, cacheKey(key), value, c.ttl).Err()
}

func (c *CachedStore) evict(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, cacheKey(key)).Err()
}

func cacheKey(key string) string {
	return "snapshot:" + key
}
