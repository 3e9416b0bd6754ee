// Package cache provides engine-owned LRU caches with TTL expiry.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Options configures an LRU cache.
type Options struct {
	// Capacity is the maximum number of entries (default 1000).
	Capacity int
	// TTL is the default entry lifetime (default 5m).
	TTL time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// LRU implements a size-bounded LRU cache with TTL support.
// Expired entries are dropped lazily on access; there is no background sweep.
type LRU[V any] struct {
	capacity   int
	defaultTTL time.Duration
	now        func() time.Time

	mu    sync.Mutex
	items map[string]*entry[V]
	order *list.List // front = most recently used
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	element   *list.Element
}

// NewLRU creates a new LRU cache.
func NewLRU[V any](opts Options) *LRU[V] {
	if opts.Capacity <= 0 {
		opts.Capacity = 1000
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &LRU[V]{
		capacity:   opts.Capacity,
		defaultTTL: opts.TTL,
		now:        opts.Now,
		items:      make(map[string]*entry[V]),
		order:      list.New(),
	}
}

// Get retrieves a value from the cache.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.items[key]
	if !ok {
		return zero, false
	}

	if !c.now().Before(e.expiresAt) {
		c.removeEntry(e)
		return zero, false
	}

	c.order.MoveToFront(e.element)
	return e.value, true
}

// Set stores a value with the default TTL.
func (c *LRU[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, 0)
}

// SetWithTTL stores a value. A non-positive ttl uses the default.
func (c *LRU[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if e, ok := c.items[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(e.element)
		return
	}

	for len(c.items) >= c.capacity {
		c.evictOldest()
	}

	e := &entry[V]{key: key, value: value, expiresAt: expiresAt}
	e.element = c.order.PushFront(e)
	c.items[key] = e
}

// Delete removes a key. It reports whether the key was present.
func (c *LRU[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if ok {
		c.removeEntry(e)
	}
	return ok
}

// Len returns the number of entries, including not-yet-collected expired ones.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear removes all entries from the cache.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*entry[V])
	c.order.Init()
}

// evictOldest removes the least recently used entry.
// Must be called with lock held.
func (c *LRU[V]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.removeEntry(oldest.Value.(*entry[V]))
}

// removeEntry must be called with lock held.
func (c *LRU[V]) removeEntry(e *entry[V]) {
	c.order.Remove(e.element)
	delete(c.items, e.key)
}
