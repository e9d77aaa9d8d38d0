package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		tokenAcquisitionsTotal,
		tokenUpstreamLatency,
	)
}

var (
	// source: local|upstream|upstream-fallback
	tokenAcquisitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_acquisitions_total",
			Help: "Token acquisitions by source.",
		},
		[]string{"source"},
	)

	tokenUpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "token_upstream_latency_ms",
			Help:    "Upstream token service latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
		},
		[]string{"success"},
	)
)

func IncTokenAcquisition(source string) {
	tokenAcquisitionsTotal.WithLabelValues(norm(source)).Inc()
}

func ObserveTokenUpstream(d time.Duration, success bool) {
	tokenUpstreamLatency.WithLabelValues(boolLabel(success)).Observe(float64(d.Milliseconds()))
}
