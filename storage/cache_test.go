package storage

import (
	"testing"
	"time"
)

func TestTTLCacheBasicHitMiss(t *testing.T) {
	c, err := NewTTLCache[string, string](10, time.Minute, nil)
	if err != nil {
		t.Fatalf("NewTTLCache: %v", err)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	c.Put("k1", "v1")
	v, ok := c.Get("k1")
	if !ok || v != "v1" {
		t.Fatalf("expected hit v1, got %q ok=%v", v, ok)
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	c, err := NewTTLCache[string, string](10, time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewTTLCache: %v", err)
	}
	base := time.Now()
	c.now = func() time.Time { return base }
	c.Put("k1", "v1")
	c.now = func() time.Time { return base.Add(2 * time.Millisecond) }
	if _, ok := c.Get("k1"); ok {
		t.Fatalf("expected expired entry to miss")
	}
}

// TestTTLCacheLRUEviction exercises §8 scenario 6: pushing more entries than
// capacity into the cache must evict via LRU, never via "expired" treatment
// cy.
func TestTTLCacheLRUEviction(t *testing.T) {
	metrics := NewCacheMetrics(nil)
	const capacity = 1000
	c, err := NewTTLCache[int, int](capacity, time.Hour, metrics)
	if err != nil {
		t.Fatalf("NewTTLCache: %v", err)
	}
	const total = 1024
	for i := 0; i < total; i++ {
		c.Put(i, i)
	}
	if c.Len() != capacity {
		t.Fatalf("expected cache to settle at capacity %d, got %d", capacity, c.Len())
	}
	evictions := testCounterValue(t, metrics.Evictions)
	if evictions < float64(total-capacity) {
		t.Fatalf("expected at least %d evictions, got %v", total-capacity, evictions)
	}
	expirations := testCounterValue(t, metrics.Expirations)
	if expirations != 0 {
		t.Fatalf("expected 0 expirations from pure capacity pressure, got %v", expirations)
	}
}
