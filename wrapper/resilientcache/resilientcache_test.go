package resilientcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
)

var errBackendDown = errors.New("backend down")

// flakyCache is an in-memory cache that fails a configured number of calls
// before recovering.
type flakyCache struct {
	mu       sync.Mutex
	data     map[string][]byte
	failures int
	attempts int32
}

func newFlakyCache(failures int) *flakyCache {
	return &flakyCache{
		data:     make(map[string][]byte),
		failures: failures,
	}
}

func (f *flakyCache) fail() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return true
	}
	return false
}

func (f *flakyCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	atomic.AddInt32(&f.attempts, 1)
	if f.fail() {
		return nil, false, errBackendDown
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.data[key]
	return value, ok, nil
}

func (f *flakyCache) Set(_ context.Context, key string, value []byte) error {
	atomic.AddInt32(&f.attempts, 1)
	if f.fail() {
		return errBackendDown
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *flakyCache) Delete(_ context.Context, key string) error {
	atomic.AddInt32(&f.attempts, 1)
	if f.fail() {
		return errBackendDown
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *flakyCache) attemptCount() int32 {
	return atomic.LoadInt32(&f.attempts)
}

// fastRetryPolicy keeps test backoff short.
func fastRetryPolicy(maxRetries int) Config {
	return Config{
		RetryPolicy: RetryPolicyBuilder().
			WithMaxRetries(maxRetries).
			WithBackoff(time.Millisecond, 4*time.Millisecond).
			Build(),
	}
}

func TestNew(t *testing.T) {
	t.Run("nil cache", func(t *testing.T) {
		_, err := New(Config{})
		if err == nil {
			t.Fatal("expected error for nil cache")
		}
	})

	t.Run("default config", func(t *testing.T) {
		cache, err := New(Config{Cache: newFlakyCache(0)})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cache == nil {
			t.Fatal("expected cache, got nil")
		}
	})
}

func TestGetRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyCache(2)
	backend.data["key"] = []byte("value")

	config := fastRetryPolicy(3)
	config.Cache = backend
	cache, err := New(config)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	value, ok, err := cache.Get(ctx, "key")
	if err != nil {
		t.Fatalf("expected no error after retries, got %v", err)
	}
	if !ok {
		t.Fatal("expected value to be found")
	}
	if string(value) != "value" {
		t.Fatalf("expected %q, got %q", "value", value)
	}
	if got := backend.attemptCount(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestGetMissIsNotRetried(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyCache(0)

	config := fastRetryPolicy(3)
	config.Cache = backend
	cache, err := New(config)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	value, ok, err := cache.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("expected no error for miss, got %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}
	if value != nil {
		t.Fatalf("expected nil value, got %q", value)
	}
	if got := backend.attemptCount(); got != 1 {
		t.Fatalf("miss must not be retried, got %d attempts", got)
	}
}

func TestGetReturnsLastErrorWhenExhausted(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyCache(100)

	config := fastRetryPolicy(2)
	config.Cache = backend
	cache, err := New(config)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	_, ok, err := cache.Get(ctx, "key")
	if ok {
		t.Fatal("expected no value from a dead backend")
	}
	if !errors.Is(err, errBackendDown) {
		t.Fatalf("expected the backend error, got %v", err)
	}
	if got := backend.attemptCount(); got != 3 {
		t.Fatalf("expected 1 attempt + 2 retries, got %d", got)
	}
}

func TestSetRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyCache(1)

	config := fastRetryPolicy(3)
	config.Cache = backend
	cache, err := New(config)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	if err := cache.Set(ctx, "key", []byte("value")); err != nil {
		t.Fatalf("expected no error after retries, got %v", err)
	}
	if got := backend.attemptCount(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}

	value, ok, err := cache.Get(ctx, "key")
	if err != nil || !ok {
		t.Fatalf("expected value after retried set, got ok=%v err=%v", ok, err)
	}
	if string(value) != "value" {
		t.Fatalf("expected %q, got %q", "value", value)
	}
}

func TestDeleteRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyCache(1)
	backend.data["key"] = []byte("value")

	config := fastRetryPolicy(3)
	config.Cache = backend
	cache, err := New(config)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	if err := cache.Delete(ctx, "key"); err != nil {
		t.Fatalf("expected no error after retries, got %v", err)
	}
	if got := backend.attemptCount(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}

	if _, ok, _ := cache.Get(ctx, "key"); ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCircuitBreakerOpens(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyCache(100)

	cb := CircuitBreakerBuilder().
		WithFailureThreshold(3).
		WithDelay(200 * time.Millisecond).
		Build()

	cache, err := New(Config{
		Cache:          backend,
		CircuitBreaker: cb,
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	sawOpen := false
	for i := 0; i < 5; i++ {
		_, _, err := cache.Get(ctx, "key")
		if errors.Is(err, circuitbreaker.ErrOpen) {
			t.Logf("circuit opened at attempt %d", i+1)
			sawOpen = true
			break
		}
		if err == nil {
			t.Fatal("expected errors from a dead backend")
		}
	}

	if !sawOpen {
		t.Fatal("expected a short-circuited call after repeated failures")
	}
	if !cb.IsOpen() {
		t.Fatal("expected circuit to be open")
	}
}

func TestCircuitBreakerMissesDoNotTrip(t *testing.T) {
	ctx := context.Background()
	backend := newFlakyCache(0)

	cb := CircuitBreakerBuilder().
		WithFailureThreshold(2).
		Build()

	cache, err := New(Config{
		Cache:          backend,
		CircuitBreaker: cb,
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	for i := 0; i < 10; i++ {
		if _, ok, err := cache.Get(ctx, "missing"); ok || err != nil {
			t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
		}
	}

	if !cb.IsClosed() {
		t.Fatal("misses must not open the circuit")
	}
}

func TestCircuitBreakerBuilderDefaults(t *testing.T) {
	cb := CircuitBreakerBuilder().
		WithDelay(100 * time.Millisecond).
		Build()

	if cb == nil {
		t.Fatal("expected non-nil circuit breaker")
	}
	if !cb.IsClosed() {
		t.Fatal("expected circuit to be closed initially")
	}

	for i := 0; i < 5; i++ {
		cb.RecordError(errors.New("test error"))
	}

	if !cb.IsOpen() {
		t.Fatal("expected circuit to be open after failures")
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	if DefaultRetryPolicy() == nil {
		t.Fatal("expected non-nil policy")
	}
}
