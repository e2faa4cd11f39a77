package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/vitos/cheeseball/internal/domain"
)

type entry struct {
	payload  []byte
	storedAt time.Time
}

// MemoryCache is a process-local response cache. Entries expire after ttl and
// are purged by the go-cache janitor. When maxEntries is positive the cache
// never holds more than maxEntries items: expired items are purged first and
// then the oldest entry is evicted.
type MemoryCache struct {
	items      *gocache.Cache
	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex // serializes capacity checks in Store
	timeNow func() time.Time
}

func NewMemoryCache(ttl time.Duration, maxEntries int, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{
		items:      gocache.New(ttl, cleanupInterval),
		ttl:        ttl,
		maxEntries: maxEntries,
		timeNow:    time.Now,
	}
}

func (c *MemoryCache) Lookup(ctx context.Context, key domain.CacheKey) ([]byte, bool) {
	v, ok := c.items.Get(key.String())
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	if c.timeNow().Sub(e.storedAt) >= c.ttl {
		return nil, false
	}
	return e.payload, true
}

func (c *MemoryCache) Store(ctx context.Context, key domain.CacheKey, payload []byte) {
	k := key.String()
	e := &entry{payload: payload, storedAt: c.timeNow()}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 {
		if _, exists := c.items.Get(k); !exists && c.items.ItemCount() >= c.maxEntries {
			c.makeRoom()
		}
	}
	c.items.Set(k, e, gocache.DefaultExpiration)
}

// makeRoom must be called with mu held.
func (c *MemoryCache) makeRoom() {
	c.items.DeleteExpired()
	if c.items.ItemCount() < c.maxEntries {
		return
	}

	var oldestKey string
	var oldest time.Time
	for k, item := range c.items.Items() {
		e := item.Object.(*entry)
		if oldestKey == "" || e.storedAt.Before(oldest) {
			oldestKey, oldest = k, e.storedAt
		}
	}
	if oldestKey != "" {
		c.items.Delete(oldestKey)
	}
}

// Len returns the number of stored entries, including stale ones not yet purged.
func (c *MemoryCache) Len() int {
	return c.items.ItemCount()
}

func (c *MemoryCache) Close() error {
	c.items.Flush()
	return nil
}
