package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Checkout metrics
	CheckoutAttemptsTotal *prometheus.CounterVec
	CheckoutDuration      *prometheus.HistogramVec

	// Gateway metrics
	GatewayCallbacksTotal *prometheus.CounterVec
	GatewayReadiness      *prometheus.GaugeVec
	ScriptFetchesTotal    *prometheus.CounterVec

	// Reconcile metrics
	ReconcilePollsTotal    *prometheus.CounterVec
	ReconcileOutcomesTotal *prometheus.CounterVec

	// Backend client metrics
	BackendRequestDuration *prometheus.HistogramVec
	BreakerStateChanges    *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// New creates a new Metrics instance registered on the default registerer.
func New(namespace string) *Metrics {
	return NewWith(prometheus.DefaultRegisterer, namespace)
}

// NewWith creates a new Metrics instance registered on reg. Tests pass a
// fresh registry to avoid duplicate registration panics.
func NewWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "checkout"
	}
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		// Checkout metrics
		CheckoutAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "flow",
				Name:      "attempts_total",
				Help:      "Total number of checkout attempts by outcome",
			},
			[]string{"outcome"}, // started, success, failed, cancelled, rejected
		),
		CheckoutDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "flow",
				Name:      "duration_seconds",
				Help:      "Time from checkout start to terminal outcome",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"outcome"},
		),

		// Gateway metrics
		GatewayCallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "callbacks_total",
				Help:      "Total number of gateway outcome callbacks",
			},
			[]string{"provider", "type"}, // type: success, failure, dismiss
		),
		GatewayReadiness: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "ready",
				Help:      "Gateway readiness (1=ready, 0=not ready)",
			},
			[]string{"provider"},
		),
		ScriptFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "script_fetches_total",
				Help:      "Checkout script asset fetches by result",
			},
			[]string{"provider", "result"}, // result: ok, error, cached
		),

		// Reconcile metrics
		ReconcilePollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "polls_total",
				Help:      "Order status polls by result",
			},
			[]string{"result"}, // paid, failed, pending, error
		),
		ReconcileOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "outcomes_total",
				Help:      "Reconciliation runs by final outcome",
			},
			[]string{"outcome"}, // paid, failed, unconfirmed
		),

		// Backend client metrics
		BackendRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "request_duration_seconds",
				Help:      "Commerce backend request duration in seconds",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"}, // create_order, order_status, wallet_balance
		),
		BreakerStateChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "breaker_state_changes_total",
				Help:      "Circuit breaker state transitions",
			},
			[]string{"from", "to"},
		),

		// Cache metrics
		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache"},
		),
	}
}

// --- Convenience methods ---

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := statusCodeToString(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCheckoutAttempt records a checkout attempt outcome.
func (m *Metrics) RecordCheckoutAttempt(outcome string) {
	m.CheckoutAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordGatewayCallback records a gateway outcome callback.
func (m *Metrics) RecordGatewayCallback(provider, callbackType string) {
	m.GatewayCallbacksTotal.WithLabelValues(provider, callbackType).Inc()
}

// SetGatewayReady sets the readiness gauge for a provider.
func (m *Metrics) SetGatewayReady(provider string, ready bool) {
	value := 0.0
	if ready {
		value = 1.0
	}
	m.GatewayReadiness.WithLabelValues(provider).Set(value)
}

// RecordScriptFetch records a checkout script fetch result.
func (m *Metrics) RecordScriptFetch(provider, result string) {
	m.ScriptFetchesTotal.WithLabelValues(provider, result).Inc()
}

// RecordReconcilePoll records a single order status poll.
func (m *Metrics) RecordReconcilePoll(result string) {
	m.ReconcilePollsTotal.WithLabelValues(result).Inc()
}

// RecordReconcileOutcome records the final outcome of a reconciliation run.
func (m *Metrics) RecordReconcileOutcome(outcome string) {
	m.ReconcileOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordBackendRequest records a commerce backend request.
func (m *Metrics) RecordBackendRequest(operation string, duration time.Duration) {
	m.BackendRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBreakerStateChange records a circuit breaker transition.
func (m *Metrics) RecordBreakerStateChange(from, to string) {
	m.BreakerStateChanges.WithLabelValues(from, to).Inc()
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(cache string) {
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(cache string) {
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
