// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the exammaker identity service.
package observability

import "github.com/prometheus/client_golang/prometheus"

// AuthBuckets defines histogram buckets for request latencies. Login and
// registration run Argon2id, so the upper range reaches a few seconds.
var AuthBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

var (
	// RequestsTotal counts all HTTP requests by method, route, and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exammaker_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method and route.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exammaker_request_duration_seconds",
			Help:    "Request duration",
			Buckets: AuthBuckets,
		},
		[]string{"method", "route"},
	)

	// AuthFailuresTotal counts rejected authentication attempts by reason.
	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exammaker_auth_failures_total",
			Help: "Authentication failures",
		},
		[]string{"reason"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exammaker_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)

	// SagaRunsTotal counts cross-store sagas by name and outcome.
	SagaRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exammaker_saga_runs_total",
			Help: "Saga runs",
		},
		[]string{"saga", "outcome"},
	)

	// SagaCompensationsTotal counts compensating actions that ran.
	SagaCompensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exammaker_saga_compensations_total",
			Help: "Saga compensations",
		},
		[]string{"saga", "step"},
	)

	// SagaCompensationFailuresTotal counts compensations that failed and
	// left the two stores inconsistent.
	SagaCompensationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exammaker_saga_compensation_failures_total",
			Help: "Saga compensation failures",
		},
		[]string{"saga", "step"},
	)

	// SessionsIssuedTotal counts issued token pairs.
	SessionsIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exammaker_sessions_issued_total",
			Help: "Sessions issued",
		},
		[]string{"reason"},
	)

	// SessionsRevokedTotal counts revoked session rows.
	SessionsRevokedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exammaker_sessions_revoked_total",
			Help: "Sessions revoked",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthFailuresTotal,
		RateLimitRejectedTotal,
		SagaRunsTotal,
		SagaCompensationsTotal,
		SagaCompensationFailuresTotal,
		SessionsIssuedTotal,
		SessionsRevokedTotal,
	)
}
