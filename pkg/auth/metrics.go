package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics tracks identity operation outcomes. With a nil registerer the
// counters still work, they just aren't exported anywhere.
type metrics struct {
	operations *prometheus.CounterVec
	refreshes  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vista_auth_operations_total",
			Help: "Identity operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vista_token_refreshes_total",
			Help: "Transparent token refresh attempts by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *metrics) operation(name string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.operations.WithLabelValues(name, outcome).Inc()
}

func (m *metrics) refresh(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}
