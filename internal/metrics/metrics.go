// Package metrics exposes Prometheus collectors for the treasury server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papapumpkin/treasury/internal/store"
)

// Metrics owns its registry so tests and multiple servers never collide on
// the global default.
type Metrics struct {
	registry *prometheus.Registry

	actionsCreated *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	logEntries     prometheus.Counter
	reloads        prometheus.Counter
	signals        *prometheus.CounterVec
	requests       *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		actionsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "treasury_actions_created_total",
			Help: "Treasury actions inserted into this view.",
		}, []string{"status"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "treasury_status_transitions_total",
			Help: "Status changes applied, by target status.",
		}, []string{"status"}),
		logEntries: f.NewCounter(prometheus.CounterOpts{
			Name: "treasury_log_entries_total",
			Help: "apiLog entries appended.",
		}),
		reloads: f.NewCounter(prometheus.CounterOpts{
			Name: "treasury_sync_reloads_total",
			Help: "Reloads triggered by another view's sync marker.",
		}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "treasury_signals_total",
			Help: "External approval signals received, by kind and result.",
		}, []string{"kind", "result"}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "treasury_http_requests_total",
			Help: "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "treasury_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Observe counts one store change.
func (m *Metrics) Observe(c store.Change) {
	switch c.Kind {
	case store.ChangeInserted:
		m.actionsCreated.WithLabelValues(string(c.Status)).Inc()
	case store.ChangeStatus:
		m.transitions.WithLabelValues(string(c.Status)).Inc()
	case store.ChangeLog:
		m.logEntries.Inc()
	case store.ChangeReloaded:
		m.reloads.Inc()
	}
}

// Signal counts one external signal; result is "applied" or "rejected".
func (m *Metrics) Signal(kind, result string) {
	m.signals.WithLabelValues(kind, result).Inc()
}

// Request records one served HTTP request.
func (m *Metrics) Request(route, code string, seconds float64) {
	m.requests.WithLabelValues(route, code).Inc()
	m.latency.WithLabelValues(route).Observe(seconds)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
