package cache

import (
	"sync"
	"time"
)

// TTLCache memoizes values by key for a fixed duration
type TTLCache[K comparable, V any] struct {
	entries        map[K]cacheEntry[V]
	mutex          sync.RWMutex
	cacheDuration  time.Duration
	cacheHitCount  int
	cacheMissCount int
	now            func() time.Time
}

// cacheEntry represents a cached item with the time it was stored
type cacheEntry[V any] struct {
	Data      V
	Timestamp time.Time
}

// NewTTLCache creates a cache whose entries expire after cacheDuration
func NewTTLCache[K comparable, V any](cacheDuration time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		entries:       make(map[K]cacheEntry[V]),
		cacheDuration: cacheDuration,
		now:           time.Now,
	}
}

// Get returns the value for key if it is present and not expired
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, found := c.entries[key]
	if found && c.now().Sub(entry.Timestamp) < c.cacheDuration {
		c.cacheHitCount++
		return entry.Data, true
	}
	if found {
		delete(c.entries, key)
	}
	c.cacheMissCount++
	var zero V
	return zero, false
}

// Set stores a value under key
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries[key] = cacheEntry[V]{Data: value, Timestamp: c.now()}
}

// Age returns how long ago key was stored
func (c *TTLCache[K, V]) Age(key K) (time.Duration, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	entry, found := c.entries[key]
	if !found {
		return 0, false
	}
	return c.now().Sub(entry.Timestamp), true
}

// Prune removes expired entries and returns how many were dropped
func (c *TTLCache[K, V]) Prune() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	pruned := 0
	for k, e := range c.entries {
		if c.now().Sub(e.Timestamp) >= c.cacheDuration {
			delete(c.entries, k)
			pruned++
		}
	}
	return pruned
}

// Len returns the number of stored entries, expired or not
func (c *TTLCache[K, V]) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// CacheStats returns statistics about cache hits and misses
func (c *TTLCache[K, V]) CacheStats() (hits, misses int) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.cacheHitCount, c.cacheMissCount
}
