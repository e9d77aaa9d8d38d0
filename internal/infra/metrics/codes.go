package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		codesIssuedTotal,
		codesTransitionsTotal,
		codeCollisionsTotal,
	)
}

var (
	codesIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codes_issued_total",
			Help: "Activation codes issued, by kind.",
		},
		[]string{"kind"},
	)

	// to: used|expired|revoked
	codesTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codes_transitions_total",
			Help: "Activation code status transitions.",
		},
		[]string{"to"},
	)

	codeCollisionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "code_collisions_total",
			Help: "Code strings that collided with an existing code and were redrawn.",
		},
	)
)

func IncCodeIssued(kind string) {
	codesIssuedTotal.WithLabelValues(norm(kind)).Inc()
}

func AddCodeTransitions(to string, n int) {
	if n <= 0 {
		return
	}
	codesTransitionsTotal.WithLabelValues(norm(to)).Add(float64(n))
}

func IncCodeCollision() { codeCollisionsTotal.Inc() }
