package throttling

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for throttling checks.
// A nil *Metrics records nothing.
type Metrics struct {
	checks       *prometheus.CounterVec
	storeErrors  *prometheus.CounterVec
	configErrors *prometheus.CounterVec
}

// NewMetrics registers the throttling collectors with reg. A nil reg uses
// the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "throttling_checks_total",
				Help: "Total number of throttling checks by outcome (allow, deny, tier, skip)",
			},
			[]string{"action", "result"},
		),

		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "throttling_store_errors_total",
				Help: "Total number of counter store failures",
			},
			[]string{"action", "op"},
		),

		configErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "throttling_config_errors_total",
				Help: "Total number of checks rejected because of invalid limits",
			},
			[]string{"action"},
		),
	}
}

func (m *Metrics) observeCheck(action, result string) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(action, result).Inc()
}

func (m *Metrics) observeStoreError(action, op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(action, op).Inc()
}

func (m *Metrics) observeConfigError(action string) {
	if m == nil {
		return
	}
	m.configErrors.WithLabelValues(action).Inc()
}
