package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(transactionsTotal, revenueTotal) }

var (
	// One increment when an order opens and one per status a callback moves it to.
	transactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transactions_total",
			Help: "Transaction state changes by gateway and status.",
		},
		[]string{"gateway", "status"},
	)

	revenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "Sum of successful payment amounts, by product.",
		},
		[]string{"product"},
	)
)

func IncTransaction(gateway, status string) {
	transactionsTotal.WithLabelValues(norm(gateway), norm(status)).Inc()
}

func AddPaymentRevenue(product string, amount int64) {
	if amount <= 0 {
		return
	}
	revenueTotal.WithLabelValues(norm(product)).Add(float64(amount))
}
