// Package observability provides Prometheus metrics for monitoring the
// application.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"

	"github.com/oceanlabs/hydrolabel-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Discovery  *metrics.DiscoveryMetrics
	LabelStore *metrics.LabelStoreMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	discoveryMetrics, err := metrics.NewDiscoveryMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery metrics: %w", err)
	}

	labelStoreMetrics, err := metrics.NewLabelStoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create label store metrics: %w", err)
	}

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Metrics{
		registry:   registry,
		Discovery:  discoveryMetrics,
		LabelStore: labelStoreMetrics,
	}, nil
}

// Handler returns an HTTP handler serving the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
