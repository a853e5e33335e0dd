// Package observability exposes the Prometheus metrics this daemon
// publishes, grounded on control_plane/observability/metrics.go's
// promauto.New* declarations.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PhaseDuration tracks how long a scheduler phase takes, labeled by
	// phase name and outcome. Only the prepare phase records into it; the
	// other four phases are not timed.
	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shepherd_scheduler_phase_duration_seconds",
		Help:    "Duration of each scheduler protocol phase.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"phase", "outcome"})

	// ExperimentsTotal counts experiments reaching a terminal state.
	ExperimentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shepherd_experiments_total",
		Help: "Experiments that reached a terminal state, labeled by final state.",
	}, []string{"state"})

	// QueueDepth is declared for the number of experiments waiting to be
	// claimed. Nothing in this module sets it, so it always reads 0.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shepherd_scheduler_queue_depth",
		Help: "Experiments waiting to be claimed by the scheduler.",
	})

	// ObserversOnline and ObserversOffline are declared for the result
	// of an inventory sweep. The status updater writes its sweep to the
	// store only and does not set them, so they always read 0.
	ObserversOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shepherd_herd_observers_online",
		Help: "Observers that answered the last inventory sweep.",
	})
	ObserversOffline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shepherd_herd_observers_offline",
		Help: "Observers that did not answer the last inventory sweep.",
	})

	// QuotaRejections is declared for submissions and schedule requests
	// refused by the quota engine, labeled by which limit was exceeded.
	// Neither the quota engine nor the API increments it.
	QuotaRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shepherd_quota_rejections_total",
		Help: "Requests refused by the quota engine.",
	}, []string{"reason"})

	// HerdTaskOutcomes is declared for herd operations by method and
	// success/failure, the way the teacher's dispatcher counts job
	// dispatch outcomes. Neither Herd implementation increments it.
	HerdTaskOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shepherd_herd_task_outcomes_total",
		Help: "Herd operations, labeled by method and outcome.",
	}, []string{"method", "outcome"})
)
