package prometheus

import (
	"context"
	"time"

	"github.com/condcache/condcache"
	"github.com/condcache/condcache/metrics"
)

// InstrumentedCache wraps a condcache.Cache and records every backend
// operation against a collector. Use it to observe one backend in isolation;
// the engine's Store already records its own operations under the store name.
type InstrumentedCache struct {
	underlying condcache.Cache
	name       string
	collector  metrics.Collector
}

// NewInstrumentedCache wraps cache so that all operations are recorded
// under name.
//
// Parameters:
//   - cache: the underlying condcache.Cache to wrap
//   - name: label identifying the backend, e.g. "redis"
//   - collector: the metrics collector (if nil, uses metrics.DefaultCollector)
//
// Example:
//
//	collector := prometheus.NewCollector()
//	cache := prometheus.NewInstrumentedCache(
//	    condcache.NewMemoryCache(),
//	    "memory",
//	    collector,
//	)
//	engine, err := condcache.New(condcache.WithCache(cache))
func NewInstrumentedCache(cache condcache.Cache, name string, collector metrics.Collector) *InstrumentedCache {
	if collector == nil {
		collector = metrics.DefaultCollector
	}

	return &InstrumentedCache{
		underlying: cache,
		name:       name,
		collector:  collector,
	}
}

// Get returns the entry for key, recording the operation
func (c *InstrumentedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	data, ok, err := c.underlying.Get(ctx, key)
	c.collector.RecordStoreOperation(c.name, "get", getResult(ok, err), time.Since(start))
	return data, ok, err
}

// Set stores data under key, recording the operation and entry size
func (c *InstrumentedCache) Set(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := c.underlying.Set(ctx, key, data)
	c.collector.RecordStoreOperation(c.name, "set", errResult(err), time.Since(start))
	if err == nil {
		c.collector.RecordEntrySize(c.name, int64(len(data)))
	}
	return err
}

// Delete removes key, recording the operation
func (c *InstrumentedCache) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := c.underlying.Delete(ctx, key)
	c.collector.RecordStoreOperation(c.name, "delete", errResult(err), time.Since(start))
	return err
}

func getResult(ok bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case ok:
		return "hit"
	default:
		return "miss"
	}
}

func errResult(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Verify interface implementation at compile time
var _ condcache.Cache = (*InstrumentedCache)(nil)
