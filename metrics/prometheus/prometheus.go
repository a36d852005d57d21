// Package prometheus provides a Prometheus metrics implementation for
// condcache. This package is optional and only imported when Prometheus
// metrics are needed.
package prometheus

import (
	"time"

	"github.com/condcache/condcache/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements metrics.Collector for Prometheus
type Collector struct {
	decisions        *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
	ruleVetoes       *prometheus.CounterVec
	storeOps         *prometheus.CounterVec
	storeOpDuration  *prometheus.HistogramVec
	entrySize        *prometheus.HistogramVec
}

// CollectorConfig provides configuration options for the Prometheus collector
type CollectorConfig struct {
	// Registry is the Prometheus registry to use. If nil, uses prometheus.DefaultRegisterer
	Registry prometheus.Registerer

	// Namespace for metrics (default: "condcache")
	Namespace string

	// Subsystem for metrics (optional)
	Subsystem string

	// ConstLabels are labels added to all metrics
	ConstLabels prometheus.Labels
}

// NewCollector creates a new Prometheus collector with default registry and configuration
func NewCollector() *Collector {
	return NewCollectorWithConfig(CollectorConfig{})
}

// NewCollectorWithRegistry creates a new Prometheus collector with a custom registry
func NewCollectorWithRegistry(reg prometheus.Registerer) *Collector {
	return NewCollectorWithConfig(CollectorConfig{
		Registry: reg,
	})
}

// NewCollectorWithConfig creates a new Prometheus collector with custom configuration
func NewCollectorWithConfig(config CollectorConfig) *Collector {
	// Set defaults
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	if config.Namespace == "" {
		config.Namespace = "condcache"
	}

	factory := promauto.With(config.Registry)

	return &Collector{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "decisions_total",
				Help:        "Total number of engine evaluations",
				ConstLabels: config.ConstLabels,
			},
			[]string{"store", "method", "outcome"},
		),
		decisionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "decision_duration_seconds",
				Help:        "Duration of engine evaluations in seconds, origin fetches included",
				Buckets:     []float64{.001, .005, .01, .05, .1, .5, 1, 2, 5, 10},
				ConstLabels: config.ConstLabels,
			},
			[]string{"store", "outcome"},
		),
		ruleVetoes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "rule_vetoes_total",
				Help:        "Total number of rule vetoes by rule name",
				ConstLabels: config.ConstLabels,
			},
			[]string{"store", "rule"},
		),
		storeOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "store_operations_total",
				Help:        "Total number of cache backend operations",
				ConstLabels: config.ConstLabels,
			},
			[]string{"store", "operation", "result"},
		),
		storeOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "store_operation_duration_seconds",
				Help:        "Duration of cache backend operations in seconds",
				Buckets:     []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
				ConstLabels: config.ConstLabels,
			},
			[]string{"store", "operation"},
		),
		entrySize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   config.Namespace,
				Subsystem:   config.Subsystem,
				Name:        "entry_size_bytes",
				Help:        "Serialized size of written cache entries in bytes",
				Buckets:     prometheus.ExponentialBuckets(256, 4, 8),
				ConstLabels: config.ConstLabels,
			},
			[]string{"store"},
		),
	}
}

// RecordDecision records one engine evaluation
func (c *Collector) RecordDecision(store, method, outcome string, duration time.Duration) {
	c.decisions.WithLabelValues(storeLabel(store), method, outcome).Inc()
	c.decisionDuration.WithLabelValues(storeLabel(store), outcome).Observe(duration.Seconds())
}

// RecordRuleVeto records a rule declining to serve from cache
func (c *Collector) RecordRuleVeto(store, rule string) {
	c.ruleVetoes.WithLabelValues(storeLabel(store), rule).Inc()
}

// RecordStoreOperation records one cache backend operation
func (c *Collector) RecordStoreOperation(store, operation, result string, duration time.Duration) {
	c.storeOps.WithLabelValues(storeLabel(store), operation, result).Inc()
	c.storeOpDuration.WithLabelValues(storeLabel(store), operation).Observe(duration.Seconds())
}

// RecordEntrySize records the serialized size of a written cache entry
func (c *Collector) RecordEntrySize(store string, sizeBytes int64) {
	c.entrySize.WithLabelValues(storeLabel(store)).Observe(float64(sizeBytes))
}

// storeLabel maps the empty default store name to a readable label value.
func storeLabel(store string) string {
	if store == "" {
		return "default"
	}
	return store
}

// Verify interface implementation at compile time
var _ metrics.Collector = (*Collector)(nil)
