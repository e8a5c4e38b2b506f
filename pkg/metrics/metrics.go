// Package metrics provides Prometheus metrics for the sage service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MatchResultsTotal tracks participants matched by winning match type and decision
	MatchResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "matching",
			Name:      "results_total",
			Help:      "Total number of participants matched by match type and decision",
		},
		[]string{"match_type", "decision"},
	)

	// MatchDuration tracks time spent matching one participant
	MatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sage",
			Subsystem: "matching",
			Name:      "duration_seconds",
			Help:      "Duration of matching one participant in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// LeadDecisionsTotal tracks what the decider did with each gated match result
	LeadDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "leads",
			Name:      "decisions_total",
			Help:      "Total number of lead decisions by action",
		},
		[]string{"action"},
	)

	// ConflictsDetectedTotal tracks detected field conflicts
	ConflictsDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "conflicts",
			Name:      "detected_total",
			Help:      "Total number of field conflicts detected by type and severity",
		},
		[]string{"type", "severity"},
	)

	// ConflictsAutoResolvedTotal tracks conflicts resolved without review
	ConflictsAutoResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "conflicts",
			Name:      "auto_resolved_total",
			Help:      "Total number of conflicts resolved automatically by resolution",
		},
		[]string{"resolution"},
	)

	// ReviewItemsTotal tracks review item transitions
	ReviewItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "review",
			Name:      "items_total",
			Help:      "Total number of review items reaching a status",
		},
		[]string{"status"},
	)

	// ReviewSweepApprovedTotal tracks items approved by the expiry sweep
	ReviewSweepApprovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "review",
			Name:      "sweep_approved_total",
			Help:      "Total number of review items auto-approved after the SLA",
		},
	)

	// ReviewSweepSkippedTotal tracks expired items the sweep left alone
	ReviewSweepSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "review",
			Name:      "sweep_skipped_total",
			Help:      "Total number of expired review items skipped by the sweep by reason",
		},
		[]string{"reason"},
	)

	// SnapshotFetchFailuresTotal tracks failed external snapshot fetches
	SnapshotFetchFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "snapshot",
			Name:      "fetch_failures_total",
			Help:      "Total number of failed external snapshot fetches",
		},
	)

	// SnapshotCacheTotal tracks snapshot cache lookups
	SnapshotCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "snapshot",
			Name:      "cache_lookups_total",
			Help:      "Total number of snapshot cache lookups by result",
		},
		[]string{"result"},
	)

	// SyncRequestsPublishedTotal tracks sync requests relayed to Kafka
	SyncRequestsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "sync",
			Name:      "requests_published_total",
			Help:      "Total number of sync requests published by reason",
		},
		[]string{"reason"},
	)
)
