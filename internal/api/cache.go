package api

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/JakeFAU/causas-crawler/internal/metrics"
)

// readCache memoizes read projections. A nil *readCache caches nothing.
type readCache struct {
	items *cache.Cache
}

func newReadCache(ttl time.Duration) *readCache {
	if ttl <= 0 {
		return nil
	}
	return &readCache{items: cache.New(ttl, ttl*2)}
}

func (c *readCache) get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.items.Get(key)
	metrics.ObserveCacheLookup(ok)
	return v, ok
}

func (c *readCache) set(key string, value any) {
	if c == nil {
		return
	}
	c.items.Set(key, value, cache.DefaultExpiration)
}

// flush drops everything; writes make every projection stale.
func (c *readCache) flush() {
	if c == nil {
		return
	}
	c.items.Flush()
}

// cached serves key from c or loads and stores it.
func cached[T any](c *readCache, key string, load func() (T, error)) (T, error) {
	if v, ok := c.get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.set(key, v)
	return v, nil
}
