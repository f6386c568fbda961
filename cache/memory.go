package cache

import (
	"context"
	"sync"
	"time"
)

// sweepThreshold is the entry count at which Set first sweeps expired
// entries. After each sweep the next threshold is twice the live count.
const sweepThreshold = 1024

// MemoryCache is an in-process cache with lazy expiry. Entries that are never
// read again are dropped by Prune, or by Set once the map grows past its
// sweep threshold.
type MemoryCache struct {
	mu        sync.RWMutex
	entries   map[string]cacheEntry
	now       func() time.Time
	threshold int
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:   make(map[string]cacheEntry),
		now:       time.Now,
		threshold: sweepThreshold,
	}
}

// Get returns a copy of the cached value. Returns (nil, false) on miss or expiry.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.expiresAt.Equal(entry.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return append([]byte(nil), entry.value...), true
}

// Set stores a copy of value. TTL<=0 is a no-op.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	now := c.now()
	c.mu.Lock()
	c.entries[key] = cacheEntry{
		value:     append([]byte(nil), value...),
		expiresAt: now.Add(ttl),
	}
	if len(c.entries) >= c.threshold {
		c.sweepLocked(now)
		c.threshold = max(sweepThreshold, 2*len(c.entries))
	}
	c.mu.Unlock()
	return nil
}

// Delete removes a value from the cache. Idempotent.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Prune drops expired entries and returns how many were removed.
func (c *MemoryCache) Prune() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(now)
}

func (c *MemoryCache) sweepLocked(now time.Time) int {
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var _ Cache = (*MemoryCache)(nil)
