// Package memcache provides an implementation of condcache.Cache that uses
// gomemcache to store cached entries.
package memcache

import (
	"context"
	"errors"

	"github.com/bradfitz/gomemcache/memcache"
)

// Cache is an implementation of condcache.Cache that stores entries in a
// memcache server.
type Cache struct {
	*memcache.Client
}

// cacheKey modifies a cache key for use in memcache.  Specifically, it
// prefixes keys to avoid collision with other data stored in memcache.
func cacheKey(key string) string {
	return "condcache:" + key
}

// Get returns the entry corresponding to key if present.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, err := c.Client.Get(cacheKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return item.Value, true, nil
}

// Set saves an entry to the cache as key.
func (c *Cache) Set(_ context.Context, key string, data []byte) error {
	item := &memcache.Item{
		Key:   cacheKey(key),
		Value: data,
	}
	return c.Client.Set(item)
}

// Delete removes the entry with key from the cache.
// Deleting a key that is not present is not an error.
func (c *Cache) Delete(_ context.Context, key string) error {
	err := c.Client.Delete(cacheKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

// New returns a new Cache using the provided memcache server(s) with equal
// weight. If a server is listed multiple times, it gets a proportional amount
// of weight.
func New(server ...string) *Cache {
	return NewWithClient(memcache.New(server...))
}

// NewWithClient returns a new Cache with the given memcache client.
func NewWithClient(client *memcache.Client) *Cache {
	return &Cache{client}
}
