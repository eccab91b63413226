package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IterationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gepa_iterations_total",
		Help: "Total optimization iterations run",
	})

	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gepa_evaluations_total",
		Help: "Total example-level evaluations consumed",
	}, []string{"kind"}) // minibatch | full

	ProposalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gepa_proposals_total",
		Help: "Proposal attempts by proposer and outcome",
	}, []string{"proposer", "outcome"}) // accepted | rejected | abandoned | failed

	BestAggregateScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gepa_best_aggregate_score",
		Help: "Best aggregate validation score seen so far",
	})

	ArchiveSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gepa_archive_size",
		Help: "Number of candidates in the archive",
	})

	ReflectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gepa_llm_reflection_duration_seconds",
		Help:    "LLM chat call duration (reflection and task LM calls)",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
)
