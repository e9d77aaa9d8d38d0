package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(workerTasksTotal, workerTaskSeconds) }

var (
	// status: ok, error, panic, dropped
	workerTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_tasks_total",
			Help: "Background pool tasks by outcome.",
		},
		[]string{"status"},
	)

	workerTaskSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worker_task_duration_seconds",
			Help:    "Run time of background pool tasks.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
)

// IncWorkerTask counts a task that never ran, such as one dropped on a full queue.
func IncWorkerTask(status string) {
	workerTasksTotal.WithLabelValues(norm(status)).Inc()
}

func ObserveWorkerTask(status string, d time.Duration) {
	workerTasksTotal.WithLabelValues(norm(status)).Inc()
	workerTaskSeconds.Observe(d.Seconds())
}
