// Package freecache provides a high-performance, zero-GC overhead implementation of condcache.Cache
// using github.com/coocood/freecache as the underlying storage.
//
// This backend is suitable for applications that need to cache millions of entries
// with minimal GC overhead and automatic memory management with LRU eviction.
//
// Example usage:
//
//	cache := freecache.New(100 * 1024 * 1024) // 100MB cache
//	engine, err := condcache.New(condcache.WithCache(cache))
package freecache

import (
	"context"
	"errors"

	"github.com/coocood/freecache"
)

// Cache is an implementation of condcache.Cache that uses freecache for storage.
// It provides zero-GC overhead and automatic LRU eviction when cache is full.
type Cache struct {
	cache *freecache.Cache
}

// New creates a new Cache with the specified size in bytes.
// The cache size will be set to 512KB at minimum.
//
// For large cache sizes, you may want to call debug.SetGCPercent()
// with a lower value to reduce GC overhead.
//
// Example:
//
//	import "runtime/debug"
//	cache := freecache.New(100 * 1024 * 1024) // 100MB
//	debug.SetGCPercent(20)
func New(size int) *Cache {
	return &Cache{
		cache: freecache.NewCache(size),
	}
}

// Get returns the cached entry and true if present, false if not found.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, err := c.cache.Get([]byte(key))
	if errors.Is(err, freecache.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set stores an entry in the cache with the given key.
// If the cache is full, it will evict the least recently used entry.
// The entry has no expiration time and will only be evicted when cache is full.
// Errors can occur if key or value are too large for the configured size.
func (c *Cache) Set(_ context.Context, key string, value []byte) error {
	return c.cache.Set([]byte(key), value, 0)
}

// Delete removes the entry with the given key from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.cache.Del([]byte(key))
	return nil
}

// Clear removes all entries from the cache
func (c *Cache) Clear() {
	c.cache.Clear()
}

// EntryCount returns the number of entries currently in the cache
func (c *Cache) EntryCount() int64 {
	return c.cache.EntryCount()
}

// HitRate returns the ratio of cache hits to total lookups
func (c *Cache) HitRate() float64 {
	return c.cache.HitRate()
}

// EvacuateCount returns the number of times entries were evicted due to cache being full
func (c *Cache) EvacuateCount() int64 {
	return c.cache.EvacuateCount()
}

// ExpiredCount returns the number of times entries expired
func (c *Cache) ExpiredCount() int64 {
	return c.cache.ExpiredCount()
}

// ResetStatistics resets all statistics counters (hit rate, evictions, etc.)
func (c *Cache) ResetStatistics() {
	c.cache.ResetStatistics()
}
