// Package cache provides the explicit read-through cache the server layer
// puts in front of label and note lookups. Entries live until Invalidate or
// Reset; there is no expiry, matching the dashboard's reload-on-demand model.
package cache

import (
	"context"
	"sync"
)

// LoadFunc fetches the value for a key on a cache miss.
type LoadFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Cache is a mutex-guarded map with read-through loading.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]V
	load    LoadFunc[K, V]
}

// New constructs a cache around the given loader.
func New[K comparable, V any](load LoadFunc[K, V]) *Cache[K, V] {
	return &Cache[K, V]{entries: make(map[K]V), load: load}
}

// Get returns the cached value, loading and storing it on a miss. Load
// failures are not cached.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	c.mu.Lock()
	if value, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return value, nil
	}
	c.mu.Unlock()

	value, err := c.load(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	c.entries[key] = value
	c.mu.Unlock()
	return value, nil
}

// Put stores a value directly, used after writes so the next read reflects
// them without a reload.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	c.entries[key] = value
	c.mu.Unlock()
}

// Invalidate drops one entry; the next Get reloads it.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Reset drops every entry.
func (c *Cache[K, V]) Reset() {
	c.mu.Lock()
	c.entries = make(map[K]V)
	c.mu.Unlock()
}
