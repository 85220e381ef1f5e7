// Package query provides the resilient list-query layer: a retrying,
// superseding fetch runner, a bounded TTL entry cache, debounced realtime
// invalidation, and paginated list accumulation.
package query

import (
	"sync"
	"time"
)

// Entry is one cached value with its fetch timestamp. Entries past their TTL
// are stale but stay retrievable until evicted, so they can serve as
// fallback data when a refetch fails.
type Entry[T any] struct {
	Key       string
	Data      T
	Timestamp time.Time
}

// Cache is the caching abstraction consumed by list queries. Implementations
// are injected per service instance; there are no package-level cache
// singletons, so tests isolate state with fresh instances.
type Cache[T any] interface {
	// Get retrieves an entry regardless of freshness; the second return is
	// false on a miss. Freshness is the caller's call via Fresh.
	Get(key string) (Entry[T], bool)

	// Set stores data under key, stamping the current time.
	Set(key string, data T)

	// Fresh reports whether an entry is within the cache's TTL.
	Fresh(entry Entry[T]) bool

	// Invalidate removes the given keys, or everything when called with none.
	Invalidate(keys ...string)

	// Len returns the number of retained entries.
	Len() int
}

// CacheConfig holds cache tuning. Capacity 0 means unbounded; TTL 0 means
// entries never go stale on their own.
type CacheConfig struct {
	TTL      time.Duration
	Capacity int
}

// EntityCache is a bounded, TTL-stamped in-memory Cache. Eviction is by
// insertion order (oldest-inserted first), not LRU: list queries re-set
// their key on every successful fetch, which renews insertion order for
// keys that are actually alive.
type EntityCache[T any] struct {
	config  CacheConfig
	entries map[string]Entry[T]
	order   []string // insertion order, oldest first
	mu      sync.RWMutex
	now     func() time.Time
}

// NewEntityCache creates an EntityCache with the given config.
func NewEntityCache[T any](config CacheConfig) *EntityCache[T] {
	return &EntityCache[T]{
		config:  config,
		entries: make(map[string]Entry[T]),
		now:     time.Now,
	}
}

// Get retrieves an entry without a freshness check.
func (c *EntityCache[T]) Get(key string) (Entry[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	return entry, ok
}

// Set stores data under key. Re-setting an existing key refreshes its
// timestamp and moves it to the back of the eviction order.
func (c *EntityCache[T]) Set(key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.removeFromOrder(key)
	}
	c.entries[key] = Entry[T]{Key: key, Data: data, Timestamp: c.now()}
	c.order = append(c.order, key)

	for c.config.Capacity > 0 && len(c.entries) > c.config.Capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// Fresh reports whether entry is within the TTL.
func (c *EntityCache[T]) Fresh(entry Entry[T]) bool {
	if c.config.TTL <= 0 {
		return true
	}
	return c.now().Sub(entry.Timestamp) < c.config.TTL
}

// Invalidate removes the given keys, or clears the cache entirely when
// called with no arguments.
func (c *EntityCache[T]) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(keys) == 0 {
		c.entries = make(map[string]Entry[T])
		c.order = nil
		return
	}
	for _, key := range keys {
		if _, exists := c.entries[key]; exists {
			delete(c.entries, key)
			c.removeFromOrder(key)
		}
	}
}

// Len returns the number of retained entries.
func (c *EntityCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *EntityCache[T]) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
