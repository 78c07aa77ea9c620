// Package storage implements the storage autoconfig and cache layer (§4.6):
// backend selection between dwn/persistent/memory, a generic TTL+LRU cache
// that works independently of the chosen backend, and a crash-recovery cache for per-protocol
// adapter state keyed by sequence number (§6).
package storage

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// CacheMetrics are the prometheus counters exposed for the TTL+LRU cache.
type CacheMetrics struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Evictions prometheus.Counter
	Expirations prometheus.Counter
}

// NewCacheMetrics registers a fresh metric set under reg. Passing a nil
// registry skips registration (used by tests that don't care about
// exposition).
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Hits:        prometheus.NewCounter(prometheus.CounterOpts{Name: "anya_cache_hits_total", Help: "Cache hits."}),
		Misses:      prometheus.NewCounter(prometheus.CounterOpts{Name: "anya_cache_misses_total", Help: "Cache misses."}),
		Evictions:   prometheus.NewCounter(prometheus.CounterOpts{Name: "anya_cache_evictions_total", Help: "LRU evictions (capacity pressure)."}),
		Expirations: prometheus.NewCounter(prometheus.CounterOpts{Name: "anya_cache_expirations_total", Help: "TTL expirations."}),
	}
	if reg != nil {
		reg.MustRegister(m.Hits, m.Misses, m.Evictions, m.Expirations)
	}
	return m
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a bounded LRU cache with a per-entry TTL. Capacity pressure
// evicts the least-recently-used entry (LRU); TTL-expired entries are
// treated as misses and removed lazily on access (§8 scenario 6: pushing
// 1024 entries into a 1000-capacity cache must yield >= 24 LRU evictions
// with 0 misclassified as expired).
type TTLCache[K comparable, V any] struct {
	mu      sync.Mutex
	entries *lru.Cache[K, cacheEntry[V]]
	ttl     time.Duration
	metrics *CacheMetrics
	now     func() time.Time
}

// NewTTLCache constructs a cache with the given capacity and default TTL.
func NewTTLCache[K comparable, V any](capacity int, ttl time.Duration, metrics *CacheMetrics) (*TTLCache[K, V], error) {
	if metrics == nil {
		metrics = NewCacheMetrics(nil)
	}
	c := &TTLCache[K, V]{ttl: ttl, metrics: metrics, now: time.Now}
	evicted := func(k K, v cacheEntry[V]) {
		// Get's removal of an expired entry also triggers this callback; such
		// entries are counted as expirations there, not as evictions.
		if c.now().After(v.expiresAt) {
			return
		}
		c.metrics.Evictions.Inc()
	}
	lc, err := lru.NewWithEvict[K, cacheEntry[V]](capacity, evicted)
	if err != nil {
		return nil, err
	}
	c.entries = lc
	return c, nil
}

// Put inserts or replaces an entry with the cache's default TTL.
func (c *TTLCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, cacheEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)})
}

// Get returns the cached value if present and not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	e, ok := c.entries.Get(key)
	if !ok {
		c.metrics.Misses.Inc()
		return zero, false
	}
	if c.now().After(e.expiresAt) {
		c.entries.Remove(key)
		c.metrics.Expirations.Inc()
		c.metrics.Misses.Inc()
		return zero, false
	}
	c.metrics.Hits.Inc()
	return e.value, true
}

// Len returns the current entry count.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
