// Package quotecache is the TTL quote cache. Entries carry a per-source
// TTL, so the cache is built with variable expiry; eviction beyond capacity
// is handled by otter's S3-FIFO policy.
package quotecache

import (
	"fmt"
	"time"

	"github.com/maypok86/otter"

	"github.com/quotefeed/quotefeed/internal/pair"
)

// Cache stores quotes keyed by the (source, pair) hash.
type Cache struct {
	inner otter.CacheWithVariableTTL[pair.Key, pair.Quote]
}

// New creates a cache bounded to capacity entries.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("quotecache: capacity must be positive, got %d", capacity)
	}
	inner, err := otter.MustBuilder[pair.Key, pair.Quote](capacity).
		WithVariableTTL().
		Build()
	if err != nil {
		return nil, fmt.Errorf("quotecache: build: %w", err)
	}
	return &Cache{inner: inner}, nil
}

// Set stores the quote for ttl, stamping CachedAt. The stamped quote is
// returned so callers hand out exactly what later cache hits will see.
func (c *Cache) Set(key pair.Key, q pair.Quote, ttl time.Duration) pair.Quote {
	q.CachedAt = time.Now()
	c.inner.Set(key, q, ttl)
	return q
}

// Get returns the quote if present and unexpired.
func (c *Cache) Get(key pair.Key) (pair.Quote, bool) {
	return c.inner.Get(key)
}

// Delete evicts the entry if present.
func (c *Cache) Delete(key pair.Key) {
	c.inner.Delete(key)
}

// Size returns the current entry count.
func (c *Cache) Size() int {
	return c.inner.Size()
}

// Close releases the cache's background resources.
func (c *Cache) Close() {
	c.inner.Close()
}
