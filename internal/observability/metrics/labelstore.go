package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LabelStoreMetrics contains Prometheus metrics for label and verification
// writes.
type LabelStoreMetrics struct {
	registry *prometheus.Registry

	datasetLoadsTotal *prometheus.CounterVec
	labelSavesTotal   *prometheus.CounterVec
	verifySavesTotal  *prometheus.CounterVec
	saveDuration      *prometheus.HistogramVec

	collectors []prometheus.Collector
}

// NewLabelStoreMetrics creates and registers new label store metrics.
func NewLabelStoreMetrics(registry *prometheus.Registry) (*LabelStoreMetrics, error) {
	m := &LabelStoreMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *LabelStoreMetrics) initMetrics() {
	m.datasetLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labelstore_dataset_loads_total",
			Help: "Total number of dataset loads",
		},
		[]string{"format", "status"}, // status: success, error
	)

	m.labelSavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labelstore_label_saves_total",
			Help: "Total number of label-mode saves",
		},
		[]string{"status"},
	)

	m.verifySavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labelstore_verify_saves_total",
			Help: "Total number of verify-mode saves",
		},
		[]string{"status"}, // success, not_found, error
	)

	m.saveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "labelstore_save_duration_seconds",
			Help:    "Time taken to persist a label file",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation"}, // label, verify
	)

	m.collectors = []prometheus.Collector{
		m.datasetLoadsTotal,
		m.labelSavesTotal,
		m.verifySavesTotal,
		m.saveDuration,
	}
}

// RecordDatasetLoad records a dataset load attempt by detected format.
func (m *LabelStoreMetrics) RecordDatasetLoad(format, status string) {
	m.datasetLoadsTotal.WithLabelValues(format, status).Inc()
}

// RecordLabelSave records a label-mode save.
func (m *LabelStoreMetrics) RecordLabelSave(status string, seconds float64) {
	m.labelSavesTotal.WithLabelValues(status).Inc()
	m.saveDuration.WithLabelValues("label").Observe(seconds)
}

// RecordVerifySave records a verify-mode save.
func (m *LabelStoreMetrics) RecordVerifySave(status string, seconds float64) {
	m.verifySavesTotal.WithLabelValues(status).Inc()
	m.saveDuration.WithLabelValues("verify").Observe(seconds)
}

// Describe implements the Collector interface.
func (m *LabelStoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface.
func (m *LabelStoreMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}
