package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agri_turns_completed_total",
			Help: "Total number of turns completed, by terminal node",
		},
		[]string{"terminal", "query_type"},
	)

	TurnsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agri_turns_failed_total",
			Help: "Total number of aborted turns",
		},
		[]string{"stage"},
	)

	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agri_turn_duration_seconds",
			Help:    "Duration of a full turn in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	NodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "agri_node_duration_seconds",
			Help: "Duration of graph node execution in seconds",
		},
		[]string{"node"},
	)

	CollaboratorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agri_collaborator_failures_total",
			Help: "Failures of external collaborators handled by a fallback",
		},
		[]string{"kind"},
	)

	LLMCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agri_llm_cost_usd_total",
			Help: "Accumulated LLM cost in USD",
		},
		[]string{"model"},
	)
)
