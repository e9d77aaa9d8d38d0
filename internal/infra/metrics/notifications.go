package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(notificationsTotal) }

var notificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Outbox notifications by provider and result.",
	},
	[]string{"provider", "result"}, // result: enqueued|sent|retry|dead|enqueue_error
)

func IncNotification(provider, result string) {
	notificationsTotal.WithLabelValues(norm(provider), norm(result)).Inc()
}
