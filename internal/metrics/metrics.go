// Package metrics exports timeline health in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"apptline/internal/timeline"
)

const namespace = "apptline"

// Exporter owns a private registry with the apptline series.
type Exporter struct {
	registry *prometheus.Registry

	recomputes       *prometheus.CounterVec
	recomputeSeconds *prometheus.HistogramVec
	dropped          *prometheus.CounterVec
	rows             *prometheus.GaugeVec
	positioned       *prometheus.GaugeVec
	refreshErrors    *prometheus.CounterVec
	updates          *prometheus.CounterVec
	wsClients        prometheus.Gauge
}

// NewExporter creates an Exporter. A nil registry gets a fresh one with
// the Go and process collectors attached.
func NewExporter(registry *prometheus.Registry) *Exporter {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	e := &Exporter{registry: registry}

	e.recomputes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recomputes_total",
			Help:      "Layouts computed, per resource.",
		},
		[]string{"resource"},
	)
	e.recomputeSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recompute_duration_seconds",
			Help:      "Time spent computing a layout.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"resource"},
	)
	e.dropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_appointments_total",
			Help:      "Appointments left out of a layout, by reason.",
		},
		[]string{"resource", "reason"},
	)
	e.rows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "layout_rows",
			Help:      "Rows in the current layout.",
		},
		[]string{"resource"},
	)
	e.positioned = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "layout_boxes",
			Help:      "Positioned boxes in the current layout.",
		},
		[]string{"resource"},
	)
	e.refreshErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_errors_total",
			Help:      "Failed source refreshes.",
		},
		[]string{"resource"},
	)
	e.updates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Live updates applied, by kind.",
		},
		[]string{"resource", "kind"},
	)
	e.wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected WebSocket clients.",
		},
	)

	registry.MustRegister(
		e.recomputes,
		e.recomputeSeconds,
		e.dropped,
		e.rows,
		e.positioned,
		e.refreshErrors,
		e.updates,
		e.wsClients,
	)
	return e
}

// ObserveLayout records a freshly computed layout. Warnings are counted as
// drops only when fresh is true, so a re-anchor does not count the same
// bad record twice.
func (e *Exporter) ObserveLayout(resource string, l timeline.Layout, took time.Duration, fresh bool) {
	e.recomputes.WithLabelValues(resource).Inc()
	e.recomputeSeconds.WithLabelValues(resource).Observe(took.Seconds())
	e.rows.WithLabelValues(resource).Set(float64(l.RowCount))
	e.positioned.WithLabelValues(resource).Set(float64(l.Positioned()))
	if !fresh {
		return
	}
	for _, w := range l.Warnings {
		e.dropped.WithLabelValues(resource, w.Reason).Inc()
	}
}

// RefreshFailed counts a failed fetch for resource.
func (e *Exporter) RefreshFailed(resource string) {
	e.refreshErrors.WithLabelValues(resource).Inc()
}

// UpdateApplied counts a live update.
func (e *Exporter) UpdateApplied(resource, kind string) {
	e.updates.WithLabelValues(resource, kind).Inc()
}

// SetWebSocketClients reports the number of connected clients.
func (e *Exporter) SetWebSocketClients(n int) {
	e.wsClients.Set(float64(n))
}

// Registry returns the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
