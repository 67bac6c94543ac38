// Package metrics exposes Prometheus instrumentation for render passes and
// exports.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pixelframe"

// Metrics holds the application collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	renderPasses   prometheus.Counter
	renderDuration prometheus.Histogram
	exports        *prometheus.CounterVec
	exportDuration *prometheus.HistogramVec
	sessions       prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		renderPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_passes_total",
			Help:      "Completed sample-and-render passes across all sessions.",
		}),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_pass_seconds",
			Help:      "Duration of one sample-and-render pass.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Finished exports by format and outcome.",
		}, []string{"format", "outcome"}),
		exportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Export duration by format.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 9),
		}, []string{"format"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Open render sessions.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.renderPasses,
		m.renderDuration,
		m.exports,
		m.exportDuration,
		m.sessions,
	)
	return m
}

// ObservePass records one completed render pass.
func (m *Metrics) ObservePass(d time.Duration) {
	m.renderPasses.Inc()
	m.renderDuration.Observe(d.Seconds())
}

// ObserveExport records one finished export.
func (m *Metrics) ObserveExport(format, outcome string, d time.Duration) {
	m.exports.WithLabelValues(format, outcome).Inc()
	m.exportDuration.WithLabelValues(format).Observe(d.Seconds())
}

// SetSessions sets the number of open sessions.
func (m *Metrics) SetSessions(n int) {
	m.sessions.Set(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
