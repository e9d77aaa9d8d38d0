package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		reconcileTotal,
		reconcileDuration,
	)
}

var (
	// transport: notify|redirect
	// outcome: issued|replayed|rejected|held|not_found|in_progress|error
	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_total",
			Help: "Payment callbacks reconciled, by transport and outcome.",
		},
		[]string{"transport", "outcome"},
	)

	reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reconcile_duration_seconds",
			Help:    "Duration of callback reconciliation in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"transport"},
	)
)

func ObserveReconcile(transport, outcome string, d time.Duration) {
	reconcileTotal.WithLabelValues(norm(transport), norm(outcome)).Inc()
	reconcileDuration.WithLabelValues(norm(transport)).Observe(d.Seconds())
}
