package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the Nest service. Each
// Metrics value owns its registry, so servers (and tests) can be built
// and torn down without colliding on the global registry.
type Metrics struct {
	registry *prometheus.Registry


	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Ingestion metrics
	TracesIngested   prometheus.Counter
	AgentsRegistered prometheus.Counter

	// Broadcast metrics
	WSConnections      prometheus.Gauge
	BroadcastsTotal    prometheus.Counter
	BroadcastEvictions prometheus.Counter

	// Relay metrics
	RelayRequests *prometheus.CounterVec
	RelayTokens   prometheus.Counter

	// System
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates and registers the metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry:  registry,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nest_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nest_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		TracesIngested: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nest_traces_ingested_total",
				Help: "Total number of trace entries appended to history",
			},
		),
		AgentsRegistered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nest_agents_registered_total",
				Help: "Total number of agent registrations (including overwrites)",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "nest_ws_connections",
				Help: "Number of connected dashboard viewers",
			},
		),
		BroadcastsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nest_broadcasts_total",
				Help: "Total number of published broadcast messages",
			},
		),
		BroadcastEvictions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nest_broadcast_evictions_total",
				Help: "Total number of channels evicted for failed sends",
			},
		),

		RelayRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nest_relay_requests_total",
				Help: "Total number of summarize relay requests by outcome",
			},
			[]string{"outcome"},
		),
		RelayTokens: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "nest_relay_tokens_total",
				Help: "Total number of token events relayed to callers",
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "nest_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}
