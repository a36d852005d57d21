// Package redis provides a redis interface for response caching.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/condcache/condcache"
	"github.com/redis/go-redis/v9"
)

// Config holds the configuration for creating a Redis cache.
type Config struct {
	// Address is the Redis server address (e.g., "localhost:6379").
	// Required field.
	Address string

	// Password is the Redis password for authentication.
	// Optional - leave empty if no authentication is required.
	Password string

	// DB is the Redis database number to use.
	// Optional - defaults to 0.
	DB int

	// PoolSize is the maximum number of connections in the pool.
	// Optional - defaults to 100.
	PoolSize int

	// MinIdleConns is the minimum number of idle connections kept open.
	// Optional - defaults to 10.
	MinIdleConns int

	// DialTimeout is the timeout for connecting to Redis.
	// Optional - defaults to 5 seconds.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for reading from Redis.
	// Optional - defaults to 5 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for writing to Redis.
	// Optional - defaults to 5 seconds.
	WriteTimeout time.Duration

	// TTL is the expiration applied to entries. Zero means entries do not
	// expire.
	// Optional - defaults to 0.
	TTL time.Duration
}

// cache is an implementation of condcache.Cache that stores entries in a
// redis server.
type cache struct {
	client *redis.Client
	ttl    time.Duration
}

// cacheKey modifies a condcache key for use in redis. Specifically, it
// prefixes keys to avoid collision with other data stored in redis.
func cacheKey(key string) string {
	return "rediscache:" + key
}

// Get returns the entry corresponding to key if present.
func (c cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	item, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis cache get failed for key %q: %w", key, err)
	}
	return item, true, nil
}

// Set saves an entry to the cache as key.
func (c cache) Set(ctx context.Context, key string, data []byte) error {
	if err := c.client.Set(ctx, cacheKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis cache set failed for key %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry with key from the cache.
func (c cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("redis cache delete failed for key %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
// This method should be called when done to properly clean up resources.
func (c cache) Close() error {
	return c.client.Close()
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PoolSize:     100,
		MinIdleConns: 10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		DB:           0,
	}
}

// New creates a new Cache with the given configuration.
// It establishes a client pool and verifies the connection with a ping.
// The caller should call Close() on the returned cache when done to clean up resources.
func New(config Config) (condcache.Cache, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	// Apply defaults for zero values
	if config.PoolSize == 0 {
		config.PoolSize = DefaultConfig().PoolSize
	}
	if config.MinIdleConns == 0 {
		config.MinIdleConns = DefaultConfig().MinIdleConns
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = DefaultConfig().DialTimeout
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = DefaultConfig().ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // best effort cleanup after ping failure
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return cache{client: client, ttl: config.TTL}, nil
}

// NewWithClient returns a new Cache with the given redis client.
// This constructor is useful when you want to configure and manage the client
// yourself. Closing the returned cache closes the provided client.
func NewWithClient(client *redis.Client) condcache.Cache {
	return cache{client: client}
}
