// Package metrics holds the Prometheus collectors published
// by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	StudyRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epivar_study_runs_total",
			Help: "Total number of study integration runs by kind and outcome.",
		},
		[]string{"kind", "status"},
	)

	StageRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epivar_stage_runs_total",
			Help: "Total number of pipeline stage executions by stage and status.",
		},
		[]string{"stage", "status"},
	)

	StageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "epivar_stage_duration_seconds",
			Help:    "Duration of pipeline stage executions in seconds.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"stage", "status"},
	)

	AnalysisRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epivar_analysis_runs_total",
			Help: "Total number of analysis executions by engine and outcome.",
		},
		[]string{"engine", "status"},
	)

	WorkerClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epivar_worker_claims_total",
			Help: "Total number of studies successfully claimed by worker node.",
		},
		[]string{"node_id"},
	)

	WorkerClaimContentionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epivar_worker_claim_contention_total",
			Help: "Total number of worker claim contention events.",
		},
		[]string{"node_id"},
	)

	WorkerLeaseExpirationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epivar_worker_lease_expirations_total",
			Help: "Total number of expired study leases reclaimed by node.",
		},
		[]string{"node_id"},
	)
)

// Register registers all epivar collectors with the default
// Prometheus registry.
func Register() {
	prometheus.MustRegister(
		StudyRunsTotal,
		StageRunsTotal,
		StageDurationSeconds,
		AnalysisRunsTotal,
		WorkerClaimsTotal,
		WorkerClaimContentionTotal,
		WorkerLeaseExpirationsTotal,
	)
}
