// Package metrics provides metrics implementations for Coffer
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cofferdb/coffer/pkg/interfaces"
)

// NoOpMetrics is a no-operation metrics implementation
type NoOpMetrics struct{}

// Counter increments a counter metric
func (m *NoOpMetrics) Counter(name string, value float64, labels map[string]string) {}

// Gauge sets a gauge metric
func (m *NoOpMetrics) Gauge(name string, value float64, labels map[string]string) {}

// Histogram records a histogram metric
func (m *NoOpMetrics) Histogram(name string, value float64, labels map[string]string) {}

// Timer records timing metrics
func (m *NoOpMetrics) Timer(name string, duration float64, labels map[string]string) {}

// PrometheusMetrics implements interfaces.Metrics on a prometheus registry.
// Collectors are created lazily per metric name; label keys must stay
// consistent per name across calls.
type PrometheusMetrics struct {
	registry   *prometheus.Registry
	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetrics creates a metrics collector backed by the given
// registry. A nil registry allocates a private one.
func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &PrometheusMetrics{
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry returns the underlying prometheus registry for exposition
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Counter increments a counter metric
func (m *PrometheusMetrics) Counter(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	vec, ok := m.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: name},
			labelKeys(labels),
		)
		m.registry.MustRegister(vec)
		m.counters[name] = vec
	}
	m.mu.Unlock()
	vec.With(prometheus.Labels(labels)).Add(value)
}

// Gauge sets a gauge metric
func (m *PrometheusMetrics) Gauge(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	vec, ok := m.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: name},
			labelKeys(labels),
		)
		m.registry.MustRegister(vec)
		m.gauges[name] = vec
	}
	m.mu.Unlock()
	vec.With(prometheus.Labels(labels)).Set(value)
}

// Histogram records a histogram metric
func (m *PrometheusMetrics) Histogram(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	vec, ok := m.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: name},
			labelKeys(labels),
		)
		m.registry.MustRegister(vec)
		m.histograms[name] = vec
	}
	m.mu.Unlock()
	vec.With(prometheus.Labels(labels)).Observe(value)
}

// Timer records timing metrics as a histogram in seconds
func (m *PrometheusMetrics) Timer(name string, duration float64, labels map[string]string) {
	m.Histogram(name, duration, labels)
}

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	return keys
}

// Compile-time interface checks
var (
	_ interfaces.Metrics = (*NoOpMetrics)(nil)
	_ interfaces.Metrics = (*PrometheusMetrics)(nil)
)
