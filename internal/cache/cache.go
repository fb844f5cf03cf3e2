package cache

import (
	"sync"
	"time"
)

// Cache provides thread-safe in-memory caching with absolute expiry and an
// optional entry bound. Used to memoize coarse fixes for the lifetime of a
// refresh window.
type Cache[V any] struct {
	entries    map[string]*Entry[V]
	maxEntries int
	now        func() time.Time
	mutex      sync.RWMutex
}

// Entry represents a cached item with metadata
type Entry[V any] struct {
	Key       string
	Value     V
	ExpiresAt time.Time
}

// Option customises a Cache.
type Option func(*options)

type options struct {
	maxEntries int
	now        func() time.Time
}

// WithMaxEntries bounds the number of live entries. Zero means unbounded.
func WithMaxEntries(n int) Option { return func(o *options) { o.maxEntries = n } }

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// New creates a new in-memory cache
func New[V any](opts ...Option) *Cache[V] {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return &Cache[V]{
		entries:    make(map[string]*Entry[V]),
		maxEntries: o.maxEntries,
		now:        o.now,
	}
}

// Set stores value until expiresAt. When the cache is full, stale entries
// are dropped first, then an arbitrary live one.
func (c *Cache[V]) Set(key string, value V, expiresAt time.Time) {
	now := c.now()
	entry := &Entry[V]{
		Key:       key,
		Value:     value,
		ExpiresAt: expiresAt,
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = entry
}

func (c *Cache[V]) evictLocked(now time.Time) {
	for key, entry := range c.entries {
		if !now.Before(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}
	for key := range c.entries {
		if len(c.entries) < c.maxEntries {
			return
		}
		delete(c.entries, key)
	}
}

// Get retrieves a value if present and not stale
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mutex.RLock()
	entry, exists := c.entries[key]
	c.mutex.RUnlock()

	if !exists || !c.now().Before(entry.ExpiresAt) {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// Clear removes all entries from cache
func (c *Cache[V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]*Entry[V])
}

// Len returns the number of stored entries, stale ones included
func (c *Cache[V]) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}
