// Package metrics provides Prometheus metric collectors for the application's
// subsystems.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DiscoveryMetrics contains Prometheus metrics for directory discovery.
type DiscoveryMetrics struct {
	registry *prometheus.Registry

	probesTotal   *prometheus.CounterVec
	probeDuration prometheus.Histogram
	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter

	collectors []prometheus.Collector
}

// NewDiscoveryMetrics creates and registers new discovery metrics.
func NewDiscoveryMetrics(registry *prometheus.Registry) (*DiscoveryMetrics, error) {
	m := &DiscoveryMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DiscoveryMetrics) initMetrics() {
	m.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_probes_total",
			Help: "Total number of directory structure probes",
		},
		[]string{"structure_type"}, // flat, device_only, hierarchical, unknown
	)

	m.probeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "discovery_probe_duration_seconds",
			Help:    "Time taken to probe a directory structure",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
	)

	m.cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "discovery_cache_hits_total",
			Help: "Total number of discovery cache hits",
		},
	)

	m.cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "discovery_cache_misses_total",
			Help: "Total number of discovery cache misses",
		},
	)

	m.collectors = []prometheus.Collector{
		m.probesTotal,
		m.probeDuration,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
	}
}

// RecordProbe records a completed directory probe.
func (m *DiscoveryMetrics) RecordProbe(structureType string, seconds float64) {
	m.probesTotal.WithLabelValues(structureType).Inc()
	m.probeDuration.Observe(seconds)
}

// RecordCacheHit records a discovery cache hit.
func (m *DiscoveryMetrics) RecordCacheHit() {
	m.cacheHitsTotal.Inc()
}

// RecordCacheMiss records a discovery cache miss.
func (m *DiscoveryMetrics) RecordCacheMiss() {
	m.cacheMissesTotal.Inc()
}

// Describe implements the Collector interface.
func (m *DiscoveryMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface.
func (m *DiscoveryMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}
