package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Executions started, by trigger
	runsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_runs_started_total",
			Help: "Total number of campaign executions started",
		},
		[]string{"trigger"},
	)

	// Executions finished, by trigger and final status
	runsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_runs_finished_total",
			Help: "Total number of campaign executions finished",
		},
		[]string{"trigger", "status"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campaign_run_duration_seconds",
			Help:    "Wall time of campaign executions in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 300, 900, 1800},
		},
		[]string{"trigger"},
	)

	// Provider sends partitioned by outcome: accepted, rejected, unavailable, unauthorized
	providerSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_provider_sends_total",
			Help: "Total number of messages handed to the messaging provider",
		},
		[]string{"outcome"},
	)

	providerRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_provider_retries_total",
			Help: "Total number of retried provider calls",
		},
	)

	// Rejected trigger attempts by reason
	runConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_run_conflicts_total",
			Help: "Total number of trigger attempts rejected with a conflict",
		},
		[]string{"reason"},
	)

	// Watchdog state transitions: waiting_token, expired, stale_failed
	watchdogTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduled_run_watchdog_transitions_total",
			Help: "Total number of scheduled run transitions performed by the watchdog",
		},
		[]string{"transition"},
	)
)
