package metrics

import "github.com/prometheus/client_golang/prometheus"

// RemediationMetrics counts admin remediation attempts by action and outcome.
type RemediationMetrics struct {
	outcomes *prometheus.CounterVec
	replays  *prometheus.CounterVec
}

func NewRemediationMetrics(reg prometheus.Registerer) *RemediationMetrics {
	if reg == nil {
		return &RemediationMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remediation_operations",
		Help: "Admin remediation operations by action and outcome.",
	}, []string{"action", "outcome"})
	replays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remediation_replays",
		Help: "Remediation requests answered from a previously recorded result.",
	}, []string{"action"})
	reg.MustRegister(outcomes, replays)
	return &RemediationMetrics{outcomes: outcomes, replays: replays}
}

func (m *RemediationMetrics) IncOutcome(action, outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(action), normalizeLabel(outcome)).Inc()
}

func (m *RemediationMetrics) IncReplay(action string) {
	if m == nil || m.replays == nil {
		return
	}
	m.replays.WithLabelValues(normalizeLabel(action)).Inc()
}
