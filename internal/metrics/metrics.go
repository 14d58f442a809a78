package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the wallet counters. A nil *Metrics is a no-op so
// services can run without a registry in tests.
type Metrics struct {
	depositInitiations *prometheus.CounterVec
	reconciliations    *prometheus.CounterVec
}

// New registers the wallet counters on the default registry.
func New() *Metrics {
	return &Metrics{
		depositInitiations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pixa_pay",
				Subsystem: "wallet",
				Name:      "deposit_initiations_total",
				Help:      "Total deposit initiations partitioned by result.",
			},
			[]string{"result"},
		),
		reconciliations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pixa_pay",
				Subsystem: "wallet",
				Name:      "reconciliations_total",
				Help:      "Total webhook reconciliations partitioned by outcome.",
			},
			[]string{"outcome"},
		),
	}
}

// ObserveInitiation counts one deposit initiation result ("created",
// "invalid", "gateway_error", "store_error").
func (m *Metrics) ObserveInitiation(result string) {
	if m == nil {
		return
	}
	m.depositInitiations.WithLabelValues(result).Inc()
}

// ObserveReconciliation counts one notification outcome.
func (m *Metrics) ObserveReconciliation(outcome string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(outcome).Inc()
}
