package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// ResultKey identifies a cached evaluation: a flag evaluated for one context.
type ResultKey struct {
	FlagKey     string
	Fingerprint uint64
}

type resultEntry[V any] struct {
	key   ResultKey
	value V
}

// ResultCache is a bounded, thread-safe LRU of evaluation results.
// When the cache reaches its capacity, the least recently used entry is evicted.
type ResultCache[V any] struct {
	capacity int
	items    map[ResultKey]*list.Element
	order    *list.List
	mu       sync.Mutex

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewResultCache creates a result cache holding at most capacity entries.
// The capacity must be positive, otherwise it panics.
func NewResultCache[V any](capacity int) *ResultCache[V] {
	if capacity <= 0 {
		panic("result cache capacity must be positive")
	}
	return &ResultCache[V]{
		capacity: capacity,
		items:    make(map[ResultKey]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached value and marks it as recently used.
func (c *ResultCache[V]) Get(key ResultKey) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		c.hits.Add(1)
		return elem.Value.(*resultEntry[V]).value, true
	}

	c.misses.Add(1)
	var zero V
	return zero, false
}

// Put stores a value, evicting the least recently used entry when full.
func (c *ResultCache[V]) Put(key ResultKey, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*resultEntry[V]).value = value
		return
	}

	c.items[key] = c.order.PushFront(&resultEntry[V]{key: key, value: value})
	if c.order.Len() > c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.remove(oldest)
		}
	}
}

// PurgeFlag drops every cached result of one flag.
func (c *ResultCache[V]) PurgeFlag(flagKey string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.items {
		if key.FlagKey == flagKey {
			c.remove(elem)
			removed++
		}
	}
	return removed
}

// Purge drops every cached result.
func (c *ResultCache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[ResultKey]*list.Element)
	c.order.Init()
}

func (c *ResultCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns the number of lookups that hit and missed since creation.
func (c *ResultCache[V]) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Must be called with lock held.
func (c *ResultCache[V]) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*resultEntry[V]).key)
}
