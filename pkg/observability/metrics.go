package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marketrow/stallgate/pkg/policy"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Decision metrics
	DecisionsTotal   *prometheus.CounterVec
	DenialsTotal     *prometheus.CounterVec
	DecisionDuration *prometheus.HistogramVec

	// Profile cache metrics
	ProfileCacheHitsTotal   prometheus.Counter
	ProfileCacheMissesTotal prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stallgate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stallgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stallgate_decisions_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"collection", "operation", "outcome"},
		),
		DenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stallgate_denials_total",
				Help: "Total number of denied requests by reason",
			},
			[]string{"collection", "operation", "reason"},
		),
		DecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stallgate_decision_duration_seconds",
				Help:    "Authorization decision duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
			[]string{"collection", "operation"},
		),

		ProfileCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stallgate_profile_cache_hits_total",
				Help: "Total number of profile cache hits",
			},
		),
		ProfileCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stallgate_profile_cache_misses_total",
				Help: "Total number of profile cache misses",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stallgate_db_connections_active",
				Help: "Number of in-use database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stallgate_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DecisionsTotal,
		m.DenialsTotal,
		m.DecisionDuration,
		m.ProfileCacheHitsTotal,
		m.ProfileCacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// RecordDecision implements store.DecisionRecorder
func (m *Metrics) RecordDecision(collection policy.Collection, operation policy.Operation, allowed bool, reason policy.Reason) {
	outcome := "allow"
	if !allowed {
		outcome = "deny"
		m.DenialsTotal.WithLabelValues(string(collection), string(operation), string(reason)).Inc()
	}
	m.DecisionsTotal.WithLabelValues(string(collection), string(operation), outcome).Inc()
}

// RecordHTTPRequest records a completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// CollectDBStats copies connection pool stats into the gauges
func (m *Metrics) CollectDBStats(db *sql.DB) {
	stats := db.Stats()
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// Handler returns an HTTP handler serving the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
