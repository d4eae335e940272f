package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Item operation outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Session outcomes.
const (
	SessionCommit   = "commit"
	SessionRollback = "rollback"
)

// Metrics contains all Prometheus metrics for the item service.
// Metrics are organized by subsystem: HTTP, items and database sessions.
type Metrics struct {
	// HTTPRequestsTotal counts HTTP requests, labeled by method, route and status code.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration observes HTTP request duration in seconds, labeled by method and route.
	HTTPRequestDuration *prometheus.HistogramVec

	// ItemOperations counts repository operations on items, labeled by operation and outcome.
	ItemOperations *prometheus.CounterVec

	// SessionsOpened counts database sessions opened, labeled by backend.
	SessionsOpened *prometheus.CounterVec

	// SessionsActive tracks the number of sessions currently checked out, labeled by backend.
	SessionsActive *prometheus.GaugeVec

	// SessionOutcomes counts how sessions ended, labeled by backend and outcome (commit, rollback).
	SessionOutcomes *prometheus.CounterVec

	// BuildInfo is always 1, labeled with the application name and version.
	BuildInfo *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance registered with the default
// Prometheus registry. The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance registered with reg.
// A nil reg leaves the metrics unregistered.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),

		// Items
		ItemOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_operations_total",
			Help:      "Total number of item operations by operation and outcome",
		}, []string{"operation", "outcome"}),

		// Sessions
		SessionsOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_sessions_opened_total",
			Help:      "Total number of database sessions opened",
		}, []string{"backend"}),
		SessionsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_sessions_active",
			Help:      "Number of database sessions currently in use",
		}, []string{"backend"}),
		SessionOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_session_outcomes_total",
			Help:      "Total number of database sessions by outcome",
		}, []string{"backend", "outcome"}),

		BuildInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information of the running service",
		}, []string{"name", "version"}),
	}
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, durationSeconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}

// RecordItemOperation records the outcome of an item operation.
func (m *Metrics) RecordItemOperation(operation, outcome string) {
	m.ItemOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordSessionOpened records that a session was checked out.
func (m *Metrics) RecordSessionOpened(backend string) {
	m.SessionsOpened.WithLabelValues(backend).Inc()
	m.SessionsActive.WithLabelValues(backend).Inc()
}

// RecordSessionClosed records that a session was released with the given outcome.
func (m *Metrics) RecordSessionClosed(backend, outcome string) {
	m.SessionsActive.WithLabelValues(backend).Dec()
	m.SessionOutcomes.WithLabelValues(backend, outcome).Inc()
}

// SetBuildInfo publishes the application name and version.
func (m *Metrics) SetBuildInfo(name, version string) {
	m.BuildInfo.WithLabelValues(name, version).Set(1)
}
