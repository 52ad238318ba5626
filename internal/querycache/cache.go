// Package querycache is a short-lived, in-process cache for REST query
// results, keyed by request path. Mutations invalidate by prefix.
package querycache

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Cache stores JSON-encoded values with a fixed time to live.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
	stats   Stats
}

type entry struct {
	data    []byte
	expires time.Time
}

// Stats tracks cache statistics.
type Stats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Sets          uint64 `json:"sets"`
	Invalidations uint64 `json:"invalidations"`
}

// New creates a cache whose entries expire after ttl. A non-positive ttl
// disables caching.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get decodes the cached value for key into dest. It reports whether the
// key was present and fresh.
func (c *Cache) Get(key string, dest any) (bool, error) {
	if c == nil || c.ttl <= 0 {
		return false, nil
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && !c.now().Before(e.expires) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		atomic.AddUint64(&c.stats.Misses, 1)
		return false, nil
	}
	if err := json.Unmarshal(e.data, dest); err != nil {
		return false, fmt.Errorf("cache decode error: %w", err)
	}
	atomic.AddUint64(&c.stats.Hits, 1)
	return true, nil
}

// Set stores value under key.
func (c *Cache) Set(key string, value any) error {
	if c == nil || c.ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode error: %w", err)
	}

	c.mu.Lock()
	c.entries[key] = entry{data: data, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()

	atomic.AddUint64(&c.stats.Sets, 1)
	return nil
}

// Invalidate drops every entry whose key starts with one of prefixes.
func (c *Cache) Invalidate(prefixes ...string) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		for _, p := range prefixes {
			if strings.HasPrefix(key, p) {
				delete(c.entries, key)
				atomic.AddUint64(&c.stats.Invalidations, 1)
				break
			}
		}
	}
}

// Clear drops everything, e.g. on logout.
func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          atomic.LoadUint64(&c.stats.Hits),
		Misses:        atomic.LoadUint64(&c.stats.Misses),
		Sets:          atomic.LoadUint64(&c.stats.Sets),
		Invalidations: atomic.LoadUint64(&c.stats.Invalidations),
	}
}
