// Package metrics holds the Prometheus collectors for the auth flows and the
// registry they are exposed from on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Outcome labels for auth flow counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Auth groups the collectors touched by the auth service and the mail
// dispatcher. A nil *Auth records nothing.
type Auth struct {
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	rotations     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	purgedTokens  *prometheus.CounterVec
}

// NewAuth creates the collectors and registers them with reg.
// Panics if registration fails (following prometheus convention).
func NewAuth(reg prometheus.Registerer) *Auth {
	m := &Auth{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_auth_operations_total",
				Help: "Total number of auth operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reservation_auth_operation_duration_seconds",
				Help:    "Auth operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		rotations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_auth_refresh_rotations_total",
				Help: "Refresh token rotations by outcome",
			},
			[]string{"outcome"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_notifications_total",
				Help: "Outgoing notifications by result",
			},
			[]string{"result"},
		),
		purgedTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_auth_purged_tokens_total",
				Help: "Expired tokens removed by the janitor",
			},
			[]string{"kind"},
		),
	}
	reg.MustRegister(m.operations, m.duration, m.rotations, m.notifications, m.purgedTokens)
	return m
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ObserveOperation counts one auth operation and its duration.
//   - operation: register, login, refresh, forgot_password, reset_password
//   - outcome: one of the Outcome* constants
func (m *Auth) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordRotation counts a refresh rotation by its outcome name.
func (m *Auth) RecordRotation(outcome string) {
	if m == nil {
		return
	}
	m.rotations.WithLabelValues(outcome).Inc()
}

// RecordNotification counts a dispatched notification as "sent" or "failed".
func (m *Auth) RecordNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// RecordPurge adds n removed tokens of the given kind.
func (m *Auth) RecordPurge(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purgedTokens.WithLabelValues(kind).Add(float64(n))
}
