// Package metrics defines the Prometheus instruments exported by gitfolio.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AdmissionDecisions counts admission outcomes per rule pattern.
	AdmissionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitfolio_admission_decisions_total",
			Help: "Admission controller decisions by rule and outcome.",
		},
		[]string{"rule", "outcome"},
	)

	// JobTransitions counts job state transitions.
	JobTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitfolio_job_transitions_total",
			Help: "Job state transitions by job type and target state.",
		},
		[]string{"type", "state"},
	)

	// CredentialRefreshes counts installation token refresh attempts.
	CredentialRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitfolio_credential_refreshes_total",
			Help: "GitHub App installation token refresh attempts by result.",
		},
		[]string{"result"},
	)

	// PoolQueueDepth tracks the number of tasks waiting in the worker pool queue.
	PoolQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gitfolio_pool_queue_depth",
			Help: "Tasks currently queued for the worker pool.",
		},
	)

	// PoolCallerRuns counts submissions executed on the caller's goroutine
	// because both the pool and its queue were full.
	PoolCallerRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitfolio_pool_caller_runs_total",
			Help: "Tasks executed inline by the submitter under pool saturation.",
		},
	)

	// UpstreamQuotaRemaining tracks the last observed GitHub API core quota.
	UpstreamQuotaRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gitfolio_github_quota_remaining",
			Help: "Remaining GitHub API core requests from the last probe.",
		},
	)
)

// RecordAdmission records one admission decision.
func RecordAdmission(rule string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	AdmissionDecisions.WithLabelValues(rule, outcome).Inc()
}

// RecordJobTransition records one job state transition.
func RecordJobTransition(jobType, state string) {
	JobTransitions.WithLabelValues(jobType, state).Inc()
}

// RecordCredentialRefresh records one refresh attempt.
func RecordCredentialRefresh(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	CredentialRefreshes.WithLabelValues(result).Inc()
}
