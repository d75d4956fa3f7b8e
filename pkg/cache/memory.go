package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryCache is an in-process Cache backed by ttlcache. Entries vanish on
// invalidation and on process restart.
type MemoryCache struct {
	namespace string
	items     *ttlcache.Cache[string, any]
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	ttl      time.Duration
	capacity uint64
}

// WithTTL expires entries after d. Zero keeps entries until removed.
func WithTTL(d time.Duration) MemoryOption {
	return func(o *memoryOptions) { o.ttl = d }
}

// WithCapacity bounds the number of entries across all namespaces sharing the store.
func WithCapacity(n uint64) MemoryOption {
	return func(o *memoryOptions) { o.capacity = n }
}

// NewMemoryCache creates a memory cache for namespace with its own backing store.
func NewMemoryCache(namespace string, opts ...MemoryOption) *MemoryCache {
	o := memoryOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	ttlOpts := []ttlcache.Option[string, any]{
		ttlcache.WithDisableTouchOnHit[string, any](),
	}
	if o.ttl > 0 {
		ttlOpts = append(ttlOpts, ttlcache.WithTTL[string, any](o.ttl))
	}
	if o.capacity > 0 {
		ttlOpts = append(ttlOpts, ttlcache.WithCapacity[string, any](o.capacity))
	}

	return &MemoryCache{
		namespace: namespace,
		items:     ttlcache.New(ttlOpts...),
	}
}

// WithNamespace returns a cache for another namespace sharing the same store.
func (c *MemoryCache) WithNamespace(namespace string) *MemoryCache {
	return &MemoryCache{namespace: namespace, items: c.items}
}

func (c *MemoryCache) Namespace() string { return c.namespace }

func (c *MemoryCache) Get(_ context.Context, key string) (any, bool, error) {
	item := c.items.Get(Key(c.namespace, key))
	if item == nil {
		return nil, false, nil
	}
	return item.Value(), true, nil
}

func (c *MemoryCache) Put(ctx context.Context, key string, value any) error {
	if value == nil {
		return c.Delete(ctx, key)
	}
	c.items.Set(Key(c.namespace, key), value, ttlcache.DefaultTTL)
	return nil
}

func (c *MemoryCache) PutAll(ctx context.Context, entries map[string]any) error {
	for k, v := range entries {
		if err := c.Put(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.items.Delete(Key(c.namespace, key))
	return nil
}

func (c *MemoryCache) InvalidateNamespace(_ context.Context) error {
	for _, k := range c.items.Keys() {
		if hasNamespace(k, c.namespace) {
			c.items.Delete(k)
		}
	}
	return nil
}

// Len returns the number of live entries across all namespaces of the store.
func (c *MemoryCache) Len() int {
	return c.items.Len()
}
