// Package resilientcache wraps a condcache.Cache with failsafe-go policies so
// transient backend failures are retried and persistent ones can trip a
// circuit breaker instead of hammering a dead store. A miss is a normal
// outcome, never retried and never counted as a failure.
package resilientcache

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/condcache/condcache"
)

// errNotFound carries "key absent" through the failsafe executor without
// triggering retry or breaker handling.
var errNotFound = errors.New("resilientcache: not found")

// Cache decorates an underlying cache with retry and circuit breaker policies.
type Cache struct {
	cache    condcache.Cache
	executor failsafe.Executor[[]byte]
}

var _ condcache.Cache = (*Cache)(nil)

// Config holds the configuration for creating a resilient Cache.
type Config struct {
	// Cache is the underlying cache implementation to wrap.
	// Required.
	Cache condcache.Cache

	// RetryPolicy configures retry behavior. Build one with
	// RetryPolicyBuilder to keep miss handling intact.
	// Optional - defaults to DefaultRetryPolicy() when no CircuitBreaker is
	// set either; nil with a CircuitBreaker present means breaker-only.
	RetryPolicy retrypolicy.RetryPolicy[[]byte]

	// CircuitBreaker short-circuits calls while the backend is failing.
	// Build one with CircuitBreakerBuilder.
	// Optional - defaults to nil (no breaker).
	CircuitBreaker circuitbreaker.CircuitBreaker[[]byte]
}

// New creates a resilient Cache wrapping config.Cache. With neither a retry
// policy nor a circuit breaker configured it applies DefaultRetryPolicy().
func New(config Config) (*Cache, error) {
	if config.Cache == nil {
		return nil, errors.New("resilientcache: cache is required")
	}

	retry := config.RetryPolicy
	if retry == nil && config.CircuitBreaker == nil {
		retry = DefaultRetryPolicy()
	}

	// Retry goes first so it wraps the breaker: every attempt observes the
	// breaker's current state.
	var policies []failsafe.Policy[[]byte]
	if retry != nil {
		policies = append(policies, retry)
	}
	if config.CircuitBreaker != nil {
		policies = append(policies, config.CircuitBreaker)
	}

	return &Cache{
		cache:    config.Cache,
		executor: failsafe.NewExecutor[[]byte](policies...),
	}, nil
}

// DefaultRetryPolicy returns the policy New applies when none is configured:
// up to 3 retries with exponential backoff from 125ms to 1s.
func DefaultRetryPolicy() retrypolicy.RetryPolicy[[]byte] {
	return RetryPolicyBuilder().Build()
}

// RetryPolicyBuilder returns a retry policy builder preconfigured for cache
// operations: misses are not failures, real errors are retried up to 3 times
// with exponential backoff, and the backend's last error is returned once
// attempts are exhausted. Customize further before calling Build.
func RetryPolicyBuilder() retrypolicy.Builder[[]byte] {
	return retrypolicy.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool {
			return err != nil && !errors.Is(err, errNotFound)
		}).
		WithMaxRetries(3).
		WithBackoff(125*time.Millisecond, 1*time.Second).
		ReturnLastFailure()
}

// CircuitBreakerBuilder returns a circuit breaker builder preconfigured for
// cache operations: the breaker opens after 5 consecutive backend errors,
// enters half-open after 60 seconds, and closes again after 2 successes.
// Misses never count against it. Customize further before calling Build.
func CircuitBreakerBuilder() circuitbreaker.Builder[[]byte] {
	return circuitbreaker.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool {
			return err != nil && !errors.Is(err, errNotFound)
		}).
		WithFailureThreshold(5).
		WithSuccessThreshold(2).
		WithDelay(60 * time.Second)
}

// Get retrieves a value, retrying backend errors per the configured policies.
// A miss returns immediately.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.executor.WithContext(ctx).Get(func() ([]byte, error) {
		data, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errNotFound
		}
		return data, nil
	})
	if errors.Is(err, errNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set stores a value, retrying backend errors per the configured policies.
func (c *Cache) Set(ctx context.Context, key string, value []byte) error {
	return c.executor.WithContext(ctx).Run(func() error {
		return c.cache.Set(ctx, key, value)
	})
}

// Delete removes a value, retrying backend errors per the configured policies.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.executor.WithContext(ctx).Run(func() error {
		return c.cache.Delete(ctx, key)
	})
}
