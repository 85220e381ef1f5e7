package query

import (
	"testing"
	"time"
)

func TestEntityCacheSetGet(t *testing.T) {
	cache := NewEntityCache[string](CacheConfig{TTL: time.Minute})

	if _, ok := cache.Get("a"); ok {
		t.Error("empty cache should miss")
	}

	cache.Set("a", "one")
	entry, ok := cache.Get("a")
	if !ok || entry.Data != "one" || entry.Key != "a" {
		t.Errorf("entry = %+v (ok=%v)", entry, ok)
	}
	if !cache.Fresh(entry) {
		t.Error("just-set entry should be fresh")
	}
}

func TestEntityCacheTTL(t *testing.T) {
	cache := NewEntityCache[string](CacheConfig{TTL: 30 * time.Second})
	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	cache.Set("a", "one")
	entry, _ := cache.Get("a")

	current = current.Add(29 * time.Second)
	if !cache.Fresh(entry) {
		t.Error("entry within TTL should be fresh")
	}

	current = current.Add(2 * time.Second)
	if cache.Fresh(entry) {
		t.Error("entry past TTL should be stale")
	}

	// Stale entries stay retrievable as fallback data.
	if _, ok := cache.Get("a"); !ok {
		t.Error("stale entry must remain retrievable until evicted")
	}
}

func TestEntityCacheZeroTTLNeverStale(t *testing.T) {
	cache := NewEntityCache[int](CacheConfig{})
	cache.Set("a", 1)
	entry, _ := cache.Get("a")
	if !cache.Fresh(entry) {
		t.Error("TTL 0 means entries never go stale")
	}
}

func TestEntityCacheEvictsOldestInserted(t *testing.T) {
	cache := NewEntityCache[int](CacheConfig{Capacity: 3})

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("c", 3)
	cache.Set("d", 4)

	if _, ok := cache.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	for _, key := range []string{"b", "c", "d"} {
		if _, ok := cache.Get(key); !ok {
			t.Errorf("entry %q should survive", key)
		}
	}
	if cache.Len() != 3 {
		t.Errorf("Len() = %d, want 3", cache.Len())
	}
}

func TestEntityCacheResetRenewsEvictionOrder(t *testing.T) {
	cache := NewEntityCache[int](CacheConfig{Capacity: 2})

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("a", 10) // moves a to the back
	cache.Set("c", 3)  // evicts b, not a

	if _, ok := cache.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	entry, ok := cache.Get("a")
	if !ok || entry.Data != 10 {
		t.Errorf("a = %+v (ok=%v), want 10", entry, ok)
	}
}

func TestEntityCacheInvalidate(t *testing.T) {
	cache := NewEntityCache[int](CacheConfig{})
	cache.Set("a", 1)
	cache.Set("b", 2)

	cache.Invalidate("a")
	if _, ok := cache.Get("a"); ok {
		t.Error("a should be gone")
	}
	if _, ok := cache.Get("b"); !ok {
		t.Error("b should survive a targeted invalidation")
	}

	cache.Invalidate("missing") // no-op, no panic

	cache.Set("c", 3)
	cache.Invalidate()
	if cache.Len() != 0 {
		t.Errorf("Invalidate() with no keys should clear everything, Len() = %d", cache.Len())
	}
}
