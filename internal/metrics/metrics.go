// Package metrics provides Prometheus metrics for the broker and session client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionTransitions tracks session controller status changes.
	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirechat_session_transitions_total",
			Help: "Total number of session status transitions",
		},
		[]string{"from", "to"},
	)

	// CleanupRuns tracks teardown executions, labelled by the exit path that won.
	CleanupRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirechat_session_cleanup_runs_total",
			Help: "Total number of session teardowns actually executed",
		},
		[]string{"reason"},
	)

	// CleanupStepFailures tracks swallowed failures per teardown step.
	CleanupStepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirechat_session_cleanup_step_failures_total",
			Help: "Total number of failed teardown steps",
		},
		[]string{"step"},
	)

	// RosterRefetches tracks presence-driven roster re-validations.
	RosterRefetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirechat_session_roster_refetches_total",
			Help: "Total number of roster refetches triggered by presence events",
		},
		[]string{"result"},
	)

	// BrokerCalls tracks session broker operations on the server side.
	BrokerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirechat_broker_calls_total",
			Help: "Total number of meeting broker operations",
		},
		[]string{"op", "result"},
	)

	// ActiveMeetings tracks meetings that have not ended.
	ActiveMeetings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wirechat_broker_active_meetings",
			Help: "Number of meetings currently active",
		},
	)
)

// Result maps an error to a metric label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
