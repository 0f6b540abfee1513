// Package metrics holds the Prometheus instruments shared by the
// experiment and pattern-analysis components.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ExperimentsCreated counts successful experiment creations.
	ExperimentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "landinglab_experiments_created_total",
		Help: "Experiments created",
	})

	// ExperimentsStopped counts active -> stopped transitions.
	ExperimentsStopped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "landinglab_experiments_stopped_total",
		Help: "Experiments stopped",
	})

	// ValidationFailures counts rejected experiment definitions by field.
	ValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "landinglab_validation_failures_total",
		Help: "Rejected experiment definitions by field",
	}, []string{"field"})

	// Assignments counts variant decisions.
	// Labels: experiment, variant
	Assignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "landinglab_assignments_total",
		Help: "Variant assignments by experiment and variant",
	}, []string{"experiment", "variant"})

	// Events counts ledger increments.
	// Labels: experiment, variant, kind ("impression", "conversion", "cta_click")
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "landinglab_events_total",
		Help: "Recorded ledger increments by kind",
	}, []string{"experiment", "variant", "kind"})

	// Analyses counts significance analyses by outcome.
	Analyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "landinglab_analyses_total",
		Help: "Significance analyses by outcome",
	}, []string{"outcome"})

	// StorageErrors counts persistence failures by operation.
	StorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "landinglab_storage_errors_total",
		Help: "Storage failures by operation",
	}, []string{"op"})

	// CombinationsEvaluated counts candidate combinations scored by the ranker.
	// Labels: size ("2", "3")
	CombinationsEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "landinglab_combinations_evaluated_total",
		Help: "Pattern combinations evaluated by size",
	}, []string{"size"})

	CombinationRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "landinglab_combination_run_duration_seconds",
		Help:    "Duration of a full combination analysis run",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	CatalogueReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "landinglab_catalogue_reloads_total",
		Help: "Pattern catalogue reloads by result",
	}, []string{"result"})
)

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
