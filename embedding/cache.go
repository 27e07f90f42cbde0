package embedding

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"
)

// DefaultCacheSize is the default maximum number of cached vectors.
const DefaultCacheSize = 4096

// Cache is a bounded embedding cache keyed by (provider, model, text).
// Eviction is handled silently by ristretto; a full cache is never an error.
// Hit and miss counters are maintained with atomic increments so concurrent
// lookups never corrupt them.
type Cache struct {
	cache  *ristretto.Cache
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates a cache bounded to maxEntries vectors.
// maxEntries <= 0 selects DefaultCacheSize.
func NewCache(maxEntries int64) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheSize
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &Cache{cache: rc}, nil
}

// CacheKey builds the cache key for a (provider, model, text) triple.
// Text is used exactly as given; no case or whitespace normalization.
func CacheKey(provider, model, text string) string {
	var b strings.Builder
	b.Grow(len(provider) + len(model) + len(text) + 2)
	b.WriteString(provider)
	b.WriteByte(0)
	b.WriteString(model)
	b.WriteByte(0)
	b.WriteString(text)
	return b.String()
}

// Get returns the cached vector for key, recording a hit or a miss.
func (c *Cache) Get(key string) ([]float32, bool) {
	value, found := c.cache.Get(key)
	if !found {
		c.misses.Add(1)
		return nil, false
	}
	vec, ok := value.([]float32)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return vec, true
}

// Put stores a vector under key. Ristretto applies writes asynchronously,
// so Put waits for the buffers to drain; a Get issued after Put returns
// observes the write. Rejected writes (cache at capacity) are silent.
func (c *Cache) Put(key string, vec []float32) {
	c.cache.Set(key, vec, 1)
	c.cache.Wait()
}

// Hits returns the cumulative number of cache hits.
func (c *Cache) Hits() int64 { return c.hits.Load() }

// Misses returns the cumulative number of cache misses.
func (c *Cache) Misses() int64 { return c.misses.Load() }

// Close releases cache resources.
func (c *Cache) Close() {
	c.cache.Close()
}
