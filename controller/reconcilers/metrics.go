package reconcilers

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	pollTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ackstep_poll_ticks_total",
		Help: "Number of job status polls.",
	}, []string{"kind"})

	reconcileOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ackstep_reconcile_outcomes_total",
		Help: "Number of reconciliations by terminal outcome.",
	}, []string{"kind", "outcome"})

	reconcileDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ackstep_reconcile_duration_seconds",
		Help:    "Wall time of a reconciliation from validation to terminal outcome.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"kind"})
)

func init() {
	metrics.Registry.MustRegister(pollTicks, reconcileOutcomes, reconcileDuration)
}
