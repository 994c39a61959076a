package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// RequestLatency tracks HTTP request latency by endpoint and method
	RequestLatency *prometheus.HistogramVec
	// HTTPRequestsTotal total HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestsInFlight current HTTP requests being processed
	HTTPRequestsInFlight prometheus.Gauge
	// ErrorCounter counts errors by type and endpoint
	ErrorCounter *prometheus.CounterVec
	// CyclesTotal counts sync cycles by outcome (completed, cancelled, failed)
	CyclesTotal *prometheus.CounterVec
	// CycleDuration tracks wall time of completed cycles
	CycleDuration prometheus.Histogram
	// LastCycleTimestamp is the unix time of the last completed cycle
	LastCycleTimestamp prometheus.Gauge
	// AccountResults counts per-account outcomes by empresa and status
	AccountResults *prometheus.CounterVec
	// OrdersCounted counts orders summed into revenue
	OrdersCounted *prometheus.CounterVec
	// FraudSkipped counts orders excluded for carrying the fraud tag
	FraudSkipped *prometheus.CounterVec
	// SyncedValue is the last aggregated daily value per empresa
	SyncedValue *prometheus.GaugeVec
	// TokenRotations counts credential exchanges by outcome
	TokenRotations *prometheus.CounterVec
	// OrderPages counts order search pages by result
	OrderPages *prometheus.CounterVec
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		ErrorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "component"},
		),
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_cycles_total",
				Help:      "Total number of sync cycles by outcome",
			},
			[]string{"outcome"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_cycle_duration_seconds",
				Help:      "Duration of completed sync cycles",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		LastCycleTimestamp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sync_last_cycle_timestamp_seconds",
				Help:      "Unix time of the last completed sync cycle",
			},
		),
		AccountResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_account_results_total",
				Help:      "Per-account sync outcomes",
			},
			[]string{"empresa", "status"},
		),
		OrdersCounted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_orders_counted_total",
				Help:      "Orders summed into daily revenue",
			},
			[]string{"empresa"},
		),
		FraudSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_fraud_skipped_total",
				Help:      "Orders excluded for carrying the fraud tag",
			},
			[]string{"empresa"},
		),
		SyncedValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sync_daily_value",
				Help:      "Last aggregated daily revenue per empresa",
			},
			[]string{"empresa"},
		),
		TokenRotations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_rotations_total",
				Help:      "Refresh token exchanges by outcome",
			},
			[]string{"account", "outcome"},
		),
		OrderPages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_pages_total",
				Help:      "Order search pages fetched by result",
			},
			[]string{"result"},
		),
	}

	// Register metrics with custom registry
	registry.MustRegister(
		m.RequestLatency,
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.ErrorCounter,
		m.CyclesTotal,
		m.CycleDuration,
		m.LastCycleTimestamp,
		m.AccountResults,
		m.OrdersCounted,
		m.FraudSkipped,
		m.SyncedValue,
		m.TokenRotations,
		m.OrderPages,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for gathering in diagnostics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequestLatency records the latency of an HTTP request
func (m *Metrics) RecordRequestLatency(endpoint, method, status string, durationSeconds float64) {
	m.RequestLatency.WithLabelValues(endpoint, method, status).Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// IncHTTPRequestsInFlight increments the in-flight requests counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements the in-flight requests counter
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorCounter.WithLabelValues(errorType, component).Inc()
}

// RecordCycle records the outcome of a sync cycle. Duration and timestamp
// are only tracked for completed cycles.
func (m *Metrics) RecordCycle(outcome string, duration time.Duration, finishedAt time.Time) {
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	if outcome != "completed" {
		return
	}
	m.CycleDuration.Observe(duration.Seconds())
	m.LastCycleTimestamp.Set(float64(finishedAt.Unix()))
}

// RecordAccountResult records one account outcome within a cycle
func (m *Metrics) RecordAccountResult(empresa, status string, orders, fraudSkipped int, value float64, hasTotals bool) {
	m.AccountResults.WithLabelValues(empresa, status).Inc()
	if !hasTotals {
		return
	}
	m.OrdersCounted.WithLabelValues(empresa).Add(float64(orders))
	m.FraudSkipped.WithLabelValues(empresa).Add(float64(fraudSkipped))
	m.SyncedValue.WithLabelValues(empresa).Set(value)
}

// RecordTokenRotation records a credential exchange outcome
func (m *Metrics) RecordTokenRotation(account, outcome string) {
	m.TokenRotations.WithLabelValues(account, outcome).Inc()
}

// RecordOrderPage records an order search page result
func (m *Metrics) RecordOrderPage(result string) {
	m.OrderPages.WithLabelValues(result).Inc()
}
