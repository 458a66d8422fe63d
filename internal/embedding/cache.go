package embedding

import (
	"strings"
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hitRate"`
}

type cacheEntry struct {
	vector     []float32
	insertedAt time.Time
}

// Cache memoizes query embeddings with TTL expiry and a max-size cap.
// Keys are normalized (trimmed, lowercased) so trivially different inputs
// still hit. An expired entry counts as a miss and is purged on access.
//
// The clock is injected so tests can drive TTL expiry deterministically.
// Cache is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	hits   uint64
	misses uint64
}

// NewCache creates a cache with the given TTL and max entry count.
// now may be nil, in which case time.Now is used.
func NewCache(ttl time.Duration, maxEntries int, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &Cache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
	}
}

// normalizeKey canonicalizes a query string for use as a cache key.
func normalizeKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Get returns the cached vector for query, or false on miss.
// Expired entries are removed and counted as misses.
func (c *Cache) Get(query string) ([]float32, bool) {
	key := normalizeKey(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	if c.now().Sub(entry.insertedAt) > c.ttl {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}

	c.hits++
	return entry.vector, true
}

// Put stores a vector under the normalized query key. When the cache is at
// capacity, the entry with the oldest insertion time is evicted first.
func (c *Cache) Put(query string, vector []float32) {
	key := normalizeKey(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}

	c.entries[key] = cacheEntry{
		vector:     vector,
		insertedAt: c.now(),
	}
}

// evictOldestLocked removes the entry with the earliest insertion time.
// Caller must hold c.mu.
func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, e := range c.entries {
		if first || e.insertedAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.insertedAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// Clear removes all entries. Counters are preserved.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Stats returns a snapshot of hit/miss counters and current size.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	var rate float64
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}

	return Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    len(c.entries),
		HitRate: rate,
	}
}
