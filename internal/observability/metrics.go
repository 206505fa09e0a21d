// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the executor.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Endpoint pool metrics
	EndpointHealthy   *prometheus.GaugeVec
	EndpointErrors    *prometheus.GaugeVec
	ProbeLatency      *prometheus.HistogramVec
	EndpointSelected  *prometheus.CounterVec
	EndpointFailovers *prometheus.CounterVec
	RPCCallLatency    *prometheus.HistogramVec

	// Routing metrics
	RouteCacheLookups *prometheus.CounterVec
	RoutesResolved    *prometheus.CounterVec
	MetadataConflicts prometheus.Counter

	// Approval metrics
	ApprovalsSubmitted *prometheus.CounterVec
	ApprovalsFinished  *prometheus.CounterVec
	ApprovalsPending   prometheus.Gauge

	// Settlement metrics
	SubmissionAttempts   *prometheus.CounterVec
	ConfirmationOutcomes *prometheus.CounterVec
	ConfirmationDuration *prometheus.HistogramVec

	// Trade metrics
	TradesTotal   *prometheus.CounterVec
	TradeDuration *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	StartTime prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on its own registry,
// together with the Go and process collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "trade_executor"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		EndpointHealthy: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpcpool",
			Name:      "endpoint_healthy",
			Help:      "1 if the endpoint is currently considered healthy",
		}, []string{"endpoint", "tier"}),
		EndpointErrors: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpcpool",
			Name:      "endpoint_consecutive_errors",
			Help:      "Consecutive errors observed for the endpoint",
		}, []string{"endpoint"}),
		ProbeLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpcpool",
			Name:      "probe_latency_seconds",
			Help:      "Health probe latency",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"endpoint", "result"}),
		EndpointSelected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpcpool",
			Name:      "endpoint_selected_total",
			Help:      "Times an endpoint became the active endpoint",
		}, []string{"endpoint"}),
		EndpointFailovers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpcpool",
			Name:      "failovers_total",
			Help:      "Calls retried on another endpoint after a transport failure",
		}, []string{"method"}),
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpcpool",
			Name:      "call_duration_seconds",
			Help:      "RPC call latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		RouteCacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "cache_lookups_total",
			Help:      "Route cache lookups by result",
		}, []string{"result"}),
		RoutesResolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "routes_resolved_total",
			Help:      "Routes resolved by venue",
		}, []string{"venue"}),
		MetadataConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "metadata_conflicts_total",
			Help:      "Graduation flag disagreements between metadata and chain",
		}),

		ApprovalsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "approval",
			Name:      "submitted_total",
			Help:      "Approval requests submitted by transaction type",
		}, []string{"type"}),
		ApprovalsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "approval",
			Name:      "finished_total",
			Help:      "Approval requests reaching a terminal status",
		}, []string{"status", "auto"}),
		ApprovalsPending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "approval",
			Name:      "pending",
			Help:      "Approval requests currently pending",
		}),

		SubmissionAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "submission_attempts_total",
			Help:      "sendTransaction attempts by result",
		}, []string{"result"}),
		ConfirmationOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "confirmations_total",
			Help:      "Confirmation outcomes",
		}, []string{"status"}),
		ConfirmationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "confirmation_duration_seconds",
			Help:      "Time from submission to terminal confirmation status",
			Buckets:   []float64{.5, 1, 2, 5, 10, 20, 30, 60, 90, 120},
		}, []string{"status"}),

		TradesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "trades_total",
			Help:      "Trades executed by venue, side and error code",
		}, []string{"venue", "side", "code"}),
		TradeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "trade_duration_seconds",
			Help:      "End-to-end trade execution time",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"venue", "side"}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Database query errors",
		}, []string{"database", "operation"}),

		StartTime: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "start_time_seconds",
			Help:      "Unix timestamp of process start",
		}),
	}
	m.StartTime.SetToCurrentTime()
	return m
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordProbe records a health probe.
func (m *Metrics) RecordProbe(endpoint string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ProbeLatency.WithLabelValues(endpoint, result).Observe(latency.Seconds())
}

// SetEndpointHealth updates the health gauges of one endpoint.
func (m *Metrics) SetEndpointHealth(endpoint, tier string, healthy bool, errors int) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	m.EndpointHealthy.WithLabelValues(endpoint, tier).Set(v)
	m.EndpointErrors.WithLabelValues(endpoint).Set(float64(errors))
}

// RecordSelection counts a change of active endpoint.
func (m *Metrics) RecordSelection(endpoint string) {
	if m == nil {
		return
	}
	m.EndpointSelected.WithLabelValues(endpoint).Inc()
}

// RecordFailover counts a call retried on another endpoint.
func (m *Metrics) RecordFailover(method string) {
	if m == nil {
		return
	}
	m.EndpointFailovers.WithLabelValues(method).Inc()
}

// RecordRPCLatency records RPC call latency.
func (m *Metrics) RecordRPCLatency(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
}

// RecordCacheLookup records a route cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.RouteCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.RouteCacheLookups.WithLabelValues("miss").Inc()
}

// RecordRoute counts a resolved route.
func (m *Metrics) RecordRoute(venue string) {
	if m == nil {
		return
	}
	m.RoutesResolved.WithLabelValues(venue).Inc()
}

// RecordMetadataConflict counts a graduation disagreement.
func (m *Metrics) RecordMetadataConflict() {
	if m == nil {
		return
	}
	m.MetadataConflicts.Inc()
}

// RecordApprovalSubmitted counts a new approval request.
func (m *Metrics) RecordApprovalSubmitted(txType string) {
	if m == nil {
		return
	}
	m.ApprovalsSubmitted.WithLabelValues(txType).Inc()
}

// RecordApprovalFinished counts a terminal approval transition.
func (m *Metrics) RecordApprovalFinished(status string, auto bool) {
	if m == nil {
		return
	}
	a := "false"
	if auto {
		a = "true"
	}
	m.ApprovalsFinished.WithLabelValues(status, a).Inc()
}

// SetApprovalsPending updates the pending gauge.
func (m *Metrics) SetApprovalsPending(n int) {
	if m == nil {
		return
	}
	m.ApprovalsPending.Set(float64(n))
}

// RecordSubmission counts a sendTransaction attempt.
func (m *Metrics) RecordSubmission(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SubmissionAttempts.WithLabelValues("error").Inc()
		return
	}
	m.SubmissionAttempts.WithLabelValues("ok").Inc()
}

// RecordConfirmation records a terminal confirmation status.
func (m *Metrics) RecordConfirmation(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ConfirmationOutcomes.WithLabelValues(status).Inc()
	m.ConfirmationDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// RecordTrade records a finished trade.
func (m *Metrics) RecordTrade(venue, side, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if code == "" {
		code = "OK"
	}
	m.TradesTotal.WithLabelValues(venue, side, code).Inc()
	m.TradeDuration.WithLabelValues(venue, side).Observe(elapsed.Seconds())
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(d.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
