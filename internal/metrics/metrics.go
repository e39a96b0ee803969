// Package metrics exposes Prometheus collectors for policy decisions, HTTP
// traffic and the audit pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	PolicyDecisions *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	AuditEvents     *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		PolicyDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evolnow_policy_decisions_total",
				Help: "Authorization decisions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evolnow_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "evolnow_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuditEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evolnow_audit_events_total",
				Help: "Audit events by stage (published, stored, failed)",
			},
			[]string{"stage"},
		),
		registry: reg,
	}
	reg.MustRegister(m.PolicyDecisions, m.HTTPRequests, m.HTTPDuration, m.AuditEvents)
	return m
}

// ObservePolicy counts one decision.
func (m *Metrics) ObservePolicy(action, outcome string) {
	if m == nil {
		return
	}
	m.PolicyDecisions.WithLabelValues(action, outcome).Inc()
}

// ObserveAudit counts audit events at a pipeline stage.
func (m *Metrics) ObserveAudit(stage string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.AuditEvents.WithLabelValues(stage).Add(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
