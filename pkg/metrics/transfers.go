package metrics

import "github.com/prometheus/client_golang/prometheus"

// TransferMetrics tracks outbound transfer calls and the breaker guarding them.
type TransferMetrics struct {
	calls        *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

func NewTransferMetrics(reg prometheus.Registerer) *TransferMetrics {
	if reg == nil {
		return &TransferMetrics{}
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transfer_calls",
		Help: "Outbound transfer calls by provider and result.",
	}, []string{"provider", "result"})
	breakerState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "transfer_breaker_state",
		Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open).",
	}, []string{"provider"})
	reg.MustRegister(calls, breakerState)
	return &TransferMetrics{calls: calls, breakerState: breakerState}
}

func (m *TransferMetrics) IncCall(provider, result string) {
	if m == nil || m.calls == nil {
		return
	}
	m.calls.WithLabelValues(normalizeLabel(provider), normalizeLabel(result)).Inc()
}

func (m *TransferMetrics) SetBreakerState(provider string, state float64) {
	if m == nil || m.breakerState == nil {
		return
	}
	m.breakerState.WithLabelValues(normalizeLabel(provider)).Set(state)
}
