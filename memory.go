package condcache

import (
	"context"
	"sync"
)

// MemoryCache is an implementation of Cache that stores entries in an
// in-memory map. It is the default backend and the one tests reach for.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryCache returns a new Cache that stores items in an in-memory map.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: map[string][]byte{}}
}

// Get returns the []byte representation of the entry and true if present,
// false if not.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	resp, ok := c.items[key]
	c.mu.RUnlock()
	return resp, ok, nil
}

// Set saves data to the cache as key.
func (c *MemoryCache) Set(_ context.Context, key string, data []byte) error {
	c.mu.Lock()
	c.items[key] = data
	c.mu.Unlock()
	return nil
}

// Delete removes key from the cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}
