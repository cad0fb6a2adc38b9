package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingKV struct {
	KV
	gets int
	sets int
	err  error
}

func (c *countingKV) Get(ctx context.Context, key string) (string, bool, error) {
	c.gets++
	if c.err != nil {
		return "", false, c.err
	}
	return c.KV.Get(ctx, key)
}

func (c *countingKV) Set(ctx context.Context, key, value string) error {
	c.sets++
	if c.err != nil {
		return c.err
	}
	return c.KV.Set(ctx, key, value)
}

func newCacheRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCachedStoreMissThenHit(t *testing.T) {
	mr, client := newCacheRedis(t)
	ctx := context.Background()
	base := &countingKV{KV: NewMemoryStore()}
	if err := base.KV.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cache := NewCachedStore(base, client, time.Minute)

	for i := 0; i < 2; i++ {
		v, found, err := cache.Get(ctx, "k")
		if err != nil || !found || v != "v1" {
			t.Fatalf("get %d: %q %v %v", i, v, found, err)
		}
	}
	if base.gets != 1 {
		t.Fatalf("expected 1 call to base store, got %d", base.gets)
	}
	if ttl := mr.TTL(cacheKey("k")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
}

func TestCachedStoreWriteThrough(t *testing.T) {
	mr, client := newCacheRedis(t)
	ctx := context.Background()
	base := &countingKV{KV: NewMemoryStore()}
	cache := NewCachedStore(base, client, time.Minute)

	if err := cache.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := mr.Get(cacheKey("k")); got != "v2" {
		t.Fatalf("cache not updated: %q", got)
	}
	if v, _, _ := base.KV.Get(ctx, "k"); v != "v2" {
		t.Fatalf("base not updated: %q", v)
	}
}

func TestCachedStoreBaseFailureEvicts(t *testing.T) {
	mr, client := newCacheRedis(t)
	ctx := context.Background()
	base := &countingKV{KV: NewMemoryStore()}
	cache := NewCachedStore(base, client, time.Minute)
	if err := cache.Set(ctx, "k", "old"); err != nil {
		t.Fatalf("set: %v", err)
	}

	base.err = errors.New("table unavailable")
	if err := cache.Set(ctx, "k", "new"); !errors.Is(err, base.err) {
		t.Fatalf("expected base error, got %v", err)
	}
	if mr.Exists(cacheKey("k")) {
		t.Fatalf("stale cache entry kept after failed write")
	}
}

func TestCachedStoreRedisDown(t *testing.T) {
	mr, client := newCacheRedis(t)
	ctx := context.Background()
	base := &countingKV{KV: NewMemoryStore()}
	if err := base.KV.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cache := NewCachedStore(base, client, time.Minute)
	mr.Close()

	v, found, err := cache.Get(ctx, "k")
	if err != nil || !found || v != "v" {
		t.Fatalf("expected fallback to base store, got %q %v %v", v, found, err)
	}
	if err := cache.Set(ctx, "k", "w"); err != nil {
		t.Fatalf("redis failure must not fail writes: %v", err)
	}
}

func TestCachedStoreDisabled(t *testing.T) {
	base := &countingKV{KV: NewMemoryStore()}
	cache := NewCachedStore(base, nil, time.Minute)
	ctx := context.Background()
	if err := cache.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, _, err := cache.Get(ctx, "k"); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if base.gets != 2 {
		t.Fatalf("expected every read to reach the base store, got %d", base.gets)
	}
}
