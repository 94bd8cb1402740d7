package distance

import (
	"context"
	"sync"
	"time"
)

// Cache stores resolved walking durations keyed by address pair.
// Riders tend to re-search the same pickup/destination pairs inside a
// ten-minute window, so even a short TTL saves real lookups.
type Cache interface {
	Get(origin, destination string) (float64, bool)
	Set(origin, destination string, seconds float64)
}

type memEntry struct {
	v  float64
	ts time.Time
}

// MemoryCache is a tiny in-memory TTL cache.
type MemoryCache struct {
	mu    sync.RWMutex
	store map[string]memEntry
	ttl   time.Duration
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{store: make(map[string]memEntry), ttl: ttl}
}

func cacheKey(origin, destination string) string {
	return origin + "->" + destination
}

func (c *MemoryCache) Get(origin, destination string) (float64, bool) {
	k := cacheKey(origin, destination)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.v, true
}

func (c *MemoryCache) Set(origin, destination string, seconds float64) {
	k := cacheKey(origin, destination)
	c.mu.Lock()
	c.store[k] = memEntry{v: seconds, ts: time.Now()}
	c.mu.Unlock()
}

// CachedClient consults the cache before the underlying client.
// Only successful lookups are cached; unresolved routes are retried.
type CachedClient struct {
	Client Client
	Cache  Cache
}

func (c *CachedClient) WalkingSeconds(ctx context.Context, origin, destination string) (float64, error) {
	if v, ok := c.Cache.Get(origin, destination); ok {
		return v, nil
	}
	v, err := c.Client.WalkingSeconds(ctx, origin, destination)
	if err != nil {
		return 0, err
	}
	c.Cache.Set(origin, destination, v)
	return v, nil
}
