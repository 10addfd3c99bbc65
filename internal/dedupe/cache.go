// ABOUTME: Thread-safe TTL cache for deduplicating send requests
// ABOUTME: Tracks idempotency keys so a retried send is not dispatched twice

package dedupe

import (
	"sync"
	"time"
)

// Cache is a thread-safe, TTL-based, size-limited set of seen idempotency
// keys. Expired entries are removed lazily on Mark; when the cache is still
// over its size limit after that, the oldest entries are evicted.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	maxSize int
}

// New creates a cache with the given TTL and maximum size.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Check reports whether the key was marked within the TTL.
func (c *Cache) Check(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	at, ok := c.seen[key]
	if !ok {
		return false
	}
	if time.Since(at) > c.ttl {
		delete(c.seen, key)
		return false
	}
	return true
}

// Mark records the key as seen now.
func (c *Cache) Mark(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seen[key] = time.Now()
	if len(c.seen) > c.maxSize {
		c.evictLocked()
	}
}

// Len returns the number of tracked keys, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// evictLocked drops expired entries first, then the oldest remaining ones
// until the cache fits. Caller holds the lock.
func (c *Cache) evictLocked() {
	cutoff := time.Now().Add(-c.ttl)
	for key, at := range c.seen {
		if at.Before(cutoff) {
			delete(c.seen, key)
		}
	}
	for len(c.seen) > c.maxSize {
		var oldestKey string
		var oldestAt time.Time
		for key, at := range c.seen {
			if oldestKey == "" || at.Before(oldestAt) {
				oldestKey, oldestAt = key, at
			}
		}
		delete(c.seen, oldestKey)
	}
}
