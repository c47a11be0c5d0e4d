package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	BatchesClaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batches_claimed_total",
			Help: "Total number of pending batches claimed for admission",
		},
	)
	BatchesRetiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batches_retired_total",
			Help: "Total number of batches retired after a successful outcome",
		},
	)
	BatchesRestoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batches_restored_total",
			Help: "Total number of batches restored for retry after a failure outcome",
		},
	)
	BatchesFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batches_failed_total",
			Help: "Total number of batches marked permanently failed",
		},
	)

	ApplicationsAssembledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "applications_assembled_total",
			Help: "Total number of applications assembled from CareerDocs outcomes",
		},
	)
	CorrelationMissingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "correlation_missing_total",
			Help: "Total number of response applications whose correlation id could not be resolved",
		},
	)

	OutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careerdocs_outcomes_total",
			Help: "Total number of CareerDocs outcome messages by result",
		},
		[]string{"result"},
	)

	RefillPublishesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "refill_publishes_total",
			Help: "Total number of batch messages published by the refill path",
		},
	)
	CareerDocsQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "careerdocs_queue_depth",
			Help: "Last observed depth of the CareerDocs request queue",
		},
	)

	DispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatches_total",
			Help: "Total number of applications dispatched to applier queues",
		},
		[]string{"queue"},
	)
	DispatchesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatches_dropped_total",
			Help: "Total number of applications dropped because their applier target is disabled",
		},
		[]string{"queue"},
	)
)

// InitMetrics registers all orchestrator metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(BatchesClaimedTotal)
	prometheus.MustRegister(BatchesRetiredTotal)
	prometheus.MustRegister(BatchesRestoredTotal)
	prometheus.MustRegister(BatchesFailedTotal)
	prometheus.MustRegister(ApplicationsAssembledTotal)
	prometheus.MustRegister(CorrelationMissingTotal)
	prometheus.MustRegister(OutcomesTotal)
	prometheus.MustRegister(RefillPublishesTotal)
	prometheus.MustRegister(CareerDocsQueueDepth)
	prometheus.MustRegister(DispatchesTotal)
	prometheus.MustRegister(DispatchesDroppedTotal)
}
