package infra

import (
	"context"

	"learn-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStats expõe as decisões como contadores. O label de rota é a entrada
// da política (path cadastrado ou "default"), nunca o path cru nem o identificador.
type PrometheusStats struct {
	decisions   *prometheus.CounterVec
	storeErrors *prometheus.CounterVec
}

// NewPrometheusStats registra os coletores em reg (use um registry próprio em testes).
func NewPrometheusStats(reg prometheus.Registerer) (*PrometheusStats, error) {
	s := &PrometheusStats{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limit decisions by route and result.",
		}, []string{"route", "result"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "ratelimit",
			Name:      "store_errors_total",
			Help:      "Window store failures that were answered fail-open.",
		}, []string{"route"}),
	}
	for _, c := range []prometheus.Collector{s.decisions, s.storeErrors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	s.decisions.WithLabelValues(ev.Policy, outcomeField(ev)).Inc()
	if ev.StoreError {
		s.storeErrors.WithLabelValues(ev.Policy).Inc()
	}
	return nil
}
