// Package metrics exposes Prometheus instrumentation for the gateway:
// session API traffic, session errors by kind, and authorization
// outcomes by verdict.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Error kind labels for SessionErrors.
const (
	ErrorKindValidation = "validation"
	ErrorKindTransport  = "transport"
	ErrorKindAPI        = "api"
)

// Metrics bundles the gateway's Prometheus collectors.
type Metrics struct {
	SessionsCreated prometheus.Counter
	SessionsUpdated prometheus.Counter
	SessionErrors   *prometheus.CounterVec
	Outcomes        *prometheus.CounterVec
	SessionDuration prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klarna_sessions_created_total",
			Help: "Number of Klarna payment sessions successfully created.",
		}),
		SessionsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "klarna_sessions_updated_total",
			Help: "Number of Klarna payment sessions successfully updated.",
		}),
		SessionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klarna_session_errors_total",
			Help: "Session create/update failures by error kind.",
		}, []string{"kind"}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "klarna_authorization_outcomes_total",
			Help: "Authorization outcomes by classifier verdict.",
		}, []string{"outcome"}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "klarna_session_request_duration_seconds",
			Help:    "Latency of Klarna session API calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.SessionsCreated, m.SessionsUpdated, m.SessionErrors, m.Outcomes, m.SessionDuration)
	return m
}
