// Package metrics holds the Prometheus instruments of the rbn server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rbn"

// Metrics groups the server's instruments on one registry.
type Metrics struct {
	registry *prometheus.Registry

	// RequestsTotal counts API requests. Labels: endpoint, code.
	RequestsTotal *prometheus.CounterVec
	// RequestSeconds measures request latency. Labels: endpoint.
	RequestSeconds *prometheus.HistogramVec
	// DefinesTotal counts define attempts. Labels: result (ok, rejected).
	DefinesTotal *prometheus.CounterVec
	// GroundNodes measures the size of ground graphs.
	GroundNodes prometheus.Histogram
	// GroundingsTotal counts enumerated groundings.
	GroundingsTotal prometheus.Counter
}

// New creates the instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by endpoint and status code.",
		}, []string{"endpoint", "code"}),
		RequestSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		DefinesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "defines_total",
			Help:      "Template definitions by result.",
		}, []string{"result"}),
		GroundNodes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "ground_nodes",
			Help:      "Nodes per ground graph.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		GroundingsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "groundings_total",
			Help:      "Variable groundings enumerated while grounding templates.",
		}),
	}
}

// Grounded records one completed grounding.
func (m *Metrics) Grounded(groundings, nodes int) {
	m.GroundingsTotal.Add(float64(groundings))
	m.GroundNodes.Observe(float64(nodes))
}

// Defined records a define attempt.
func (m *Metrics) Defined(ok bool) {
	result := "rejected"
	if ok {
		result = "ok"
	}
	m.DefinesTotal.WithLabelValues(result).Inc()
}

// Request records a finished API request.
func (m *Metrics) Request(endpoint string, code int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	m.RequestSeconds.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry the instruments live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
