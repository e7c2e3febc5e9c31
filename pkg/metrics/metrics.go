// Package metrics provides Prometheus metrics for the Sorrel service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsIngestedTotal tracks raw records processed by outcome
	RecordsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sorrel",
			Subsystem: "ingestion",
			Name:      "records_total",
			Help:      "Total number of raw contact records processed by outcome",
		},
		[]string{"tenant_id", "source_system", "outcome"},
	)

	// CandidatesGeneratedTotal tracks match candidates inserted per blocking pass
	CandidatesGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sorrel",
			Subsystem: "matching",
			Name:      "candidates_generated_total",
			Help:      "Total number of match candidates inserted by blocking passes",
		},
		[]string{"tenant_id"},
	)

	// CandidatesScoredTotal tracks scored candidates by decision
	CandidatesScoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sorrel",
			Subsystem: "matching",
			Name:      "candidates_scored_total",
			Help:      "Total number of scored match candidates by decision",
		},
		[]string{"tenant_id", "decision"},
	)

	// MergesTotal tracks merge operations by outcome
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sorrel",
			Subsystem: "merging",
			Name:      "merges_total",
			Help:      "Total number of merge operations by outcome",
		},
		[]string{"tenant_id", "outcome"},
	)

	// MergeDuration tracks merge transaction duration in seconds
	MergeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sorrel",
			Subsystem: "merging",
			Name:      "merge_duration_seconds",
			Help:      "Duration of merge transactions in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"tenant_id"},
	)

	// MergeRetriesTotal tracks merges retried after losing a pair lock race
	MergeRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sorrel",
			Subsystem: "merging",
			Name:      "merge_retries_total",
			Help:      "Total number of merge attempts retried after root contention",
		},
		[]string{"tenant_id"},
	)

	// SweepDuration tracks background sweep duration in seconds
	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sorrel",
			Subsystem: "sweeper",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of background auto-merge sweeps in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tenant_id"},
	)
)
