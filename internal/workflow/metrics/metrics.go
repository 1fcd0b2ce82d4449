// Package metrics instruments the workflow engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the workflow engine's Prometheus metrics.
type Metrics struct {
	TransitionsTotal   *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	VersionConflicts   prometheus.Counter
	RequestsCreated    *prometheus.CounterVec
}

// New creates and registers the workflow metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cratekeeper_workflow_transitions_total",
			Help: "Lifecycle transitions attempted, by transition and outcome.",
		}, []string{"transition", "outcome"}),
		TransitionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cratekeeper_workflow_transition_duration_seconds",
			Help:    "Transition latency including the storage commit.",
			Buckets: prometheus.DefBuckets,
		}, []string{"transition"}),
		VersionConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cratekeeper_workflow_version_conflicts_total",
			Help: "Transitions rejected because the request version was stale.",
		}),
		RequestsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cratekeeper_workflow_requests_created_total",
			Help: "Requests created, by type.",
		}, []string{"type"}),
	}
}

// Nop returns metrics backed by unregistered collectors for tests.
func Nop() *Metrics {
	return &Metrics{
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nop_workflow_transitions_total",
		}, []string{"transition", "outcome"}),
		TransitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "nop_workflow_transition_duration_seconds",
		}, []string{"transition"}),
		VersionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nop_workflow_version_conflicts_total",
		}),
		RequestsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nop_workflow_requests_created_total",
		}, []string{"type"}),
	}
}
