// Package leveldbcache provides an implementation of condcache.Cache that
// uses github.com/syndtr/goleveldb/leveldb
package leveldbcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// Cache is an implementation of condcache.Cache with leveldb storage
type Cache struct {
	db *leveldb.DB
}

// Get returns the entry corresponding to key if present.
// The context parameter is accepted for interface compliance but not used for LevelDB operations.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := c.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set saves an entry to the cache as key.
// The context parameter is accepted for interface compliance but not used for LevelDB operations.
func (c *Cache) Set(_ context.Context, key string, data []byte) error {
	if err := c.db.Put([]byte(key), data, nil); err != nil {
		return fmt.Errorf("leveldb cache set failed for key %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry with key from the cache.
// The context parameter is accepted for interface compliance but not used for LevelDB operations.
func (c *Cache) Delete(_ context.Context, key string) error {
	if err := c.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("leveldb cache delete failed for key %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying leveldb database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// New returns a new Cache that will store leveldb in path
func New(path string) (*Cache, error) {
	cache := &Cache{}

	var err error
	cache.db, err = leveldb.OpenFile(path, nil)

	if err != nil {
		return nil, err
	}
	return cache, nil
}

// NewWithDB returns a new Cache using the provided leveldb as underlying
// storage.
func NewWithDB(db *leveldb.DB) *Cache {
	return &Cache{db}
}
