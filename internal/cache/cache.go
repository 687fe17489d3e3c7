package cache

import (
	"context"
	"sync"
	"time"
)

type Item[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// Cache is a map whose entries expire a fixed TTL after they are set.
type Cache[V any] struct {
	items map[string]Item[V]
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
}

func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		items: make(map[string]Item[V]),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = Item[V]{
		Value:     value,
		ExpiresAt: c.now().Add(c.ttl),
	}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, exists := c.items[key]
	if !exists || c.now().After(item.ExpiresAt) {
		var zero V
		return zero, false
	}
	return item.Value, true
}

// GetOrLoad returns the cached value for key, calling load and caching its
// result on a miss. Load errors are not cached.
func (c *Cache[V]) GetOrLoad(key string, load func() (V, error)) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	v, err := load()
	if err != nil {
		return v, false, err
	}
	c.Set(key, v)
	return v, false, nil
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]Item[V])
}

func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Cleanup drops expired entries every interval until ctx is done.
func (c *Cache[V]) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.evict()
		}
	}
}

func (c *Cache[V]) evict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, item := range c.items {
		if now.After(item.ExpiresAt) {
			delete(c.items, key)
		}
	}
}
