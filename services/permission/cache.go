package permission

import (
	"sync"
	"time"
)

// DefaultTTL is how long a resolved permission set stays valid after capture
const DefaultTTL = 15 * time.Minute

// Cache holds at most one resolved permission set with its capture time.
// It belongs to a single session; switching actors requires Invalidate.
// Thread-safe implementation using sync.RWMutex
type Cache struct {
	mu         sync.RWMutex
	set        *Set
	capturedAt time.Time
	ttl        time.Duration
	now        func() time.Time
	hits       uint64
	misses     uint64
}

// NewCache creates an empty cache. A non-positive ttl selects DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl: ttl,
		now: time.Now,
	}
}

// Get returns the cached set while its age is below the TTL
func (c *Cache) Get() (*Set, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.set == nil || c.now().Sub(c.capturedAt) >= c.ttl {
		c.misses++
		return nil, false
	}

	c.hits++
	return c.set, true
}

// Put stores set as the current entry, captured now
func (c *Cache) Put(set *Set) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.set = set
	c.capturedAt = c.now()
}

// Invalidate drops the current entry so the next Get misses
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.set = nil
	c.capturedAt = time.Time{}
}

// TTL returns the validity window
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{
		Hits:   c.hits,
		Misses: c.misses,
	}
	if c.set != nil {
		stats.Populated = true
		stats.CapturedAt = c.capturedAt
		stats.Size = c.set.Len()
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// CacheStats represents cache statistics
type CacheStats struct {
	Populated  bool
	Size       int
	CapturedAt time.Time
	Hits       uint64
	Misses     uint64
	HitRate    float64
}
