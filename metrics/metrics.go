// Package metrics provides an interface for collecting cache decision
// metrics. It defines a generic interface that can be implemented by various
// metrics systems (Prometheus, OpenTelemetry, Datadog, etc.) without adding
// dependencies to the core condcache package.
package metrics

import (
	"time"
)

// Collector defines the interface for metrics collection.
// Implementations of this interface can feed various monitoring systems
// without requiring changes to the condcache core.
type Collector interface {
	// RecordDecision records one engine evaluation.
	// Parameters:
	//   - store: store name, empty for the default store
	//   - method: HTTP method of the evaluated request
	//   - outcome: "hit", "miss", "origin", "not_modified", or "precondition_failed"
	//   - duration: full evaluation duration, rule chain included
	RecordDecision(store, method, outcome string, duration time.Duration)

	// RecordRuleVeto records a rule declining to serve from cache.
	// Parameters:
	//   - store: store name
	//   - rule: rule name, e.g. "credential-exclusion"
	RecordRuleVeto(store, rule string)

	// RecordStoreOperation records one backend operation issued by a store.
	// Parameters:
	//   - store: store name
	//   - operation: "get", "set", or "delete"
	//   - result: "hit", "miss", "ok", or "error"
	//   - duration: operation duration
	RecordStoreOperation(store, operation, result string, duration time.Duration)

	// RecordEntrySize records the serialized size of a written cache entry.
	// Parameters:
	//   - store: store name
	//   - sizeBytes: entry size in bytes
	RecordEntrySize(store string, sizeBytes int64)
}

// NoOpCollector implements Collector with no-op operations.
// This is used as the default collector when metrics are not enabled,
// ensuring zero overhead for users who don't need metrics.
type NoOpCollector struct{}

// RecordDecision does nothing (no-op implementation)
func (n *NoOpCollector) RecordDecision(store, method, outcome string, duration time.Duration) {}

// RecordRuleVeto does nothing (no-op implementation)
func (n *NoOpCollector) RecordRuleVeto(store, rule string) {}

// RecordStoreOperation does nothing (no-op implementation)
func (n *NoOpCollector) RecordStoreOperation(store, operation, result string, duration time.Duration) {
}

// RecordEntrySize does nothing (no-op implementation)
func (n *NoOpCollector) RecordEntrySize(store string, sizeBytes int64) {}

// DefaultCollector is the default no-op collector used when metrics are not enabled
var DefaultCollector Collector = &NoOpCollector{}

// Verify that NoOpCollector implements Collector interface
var _ Collector = (*NoOpCollector)(nil)
