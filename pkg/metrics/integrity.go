package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IntegrityMetrics tracks integrity scan runs and recorded violations.
type IntegrityMetrics struct {
	violations *prometheus.CounterVec
	suppressed *prometheus.CounterVec
	checkErrs  *prometheus.CounterVec
	scanTime   prometheus.Histogram
}

// NewIntegrityMetrics registers the integrity metrics on the provided registerer.
func NewIntegrityMetrics(reg prometheus.Registerer) *IntegrityMetrics {
	if reg == nil {
		return &IntegrityMetrics{}
	}
	violations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "integrity_violations_recorded",
		Help: "Integrity violations written to the audit log.",
	}, []string{"code"})
	suppressed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "integrity_violations_deduplicated",
		Help: "Integrity violations skipped because the same fingerprint was recorded recently.",
	}, []string{"code"})
	checkErrs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "integrity_check_errors",
		Help: "Integrity checks that could not complete.",
	}, []string{"check"})
	scanTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "integrity_scan_duration_seconds",
		Help:    "Duration of full integrity scans.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(violations, suppressed, checkErrs, scanTime)
	return &IntegrityMetrics{
		violations: violations,
		suppressed: suppressed,
		checkErrs:  checkErrs,
		scanTime:   scanTime,
	}
}

func (m *IntegrityMetrics) IncViolation(code string) {
	if m == nil || m.violations == nil {
		return
	}
	m.violations.WithLabelValues(normalizeLabel(code)).Inc()
}

func (m *IntegrityMetrics) IncDeduplicated(code string) {
	if m == nil || m.suppressed == nil {
		return
	}
	m.suppressed.WithLabelValues(normalizeLabel(code)).Inc()
}

func (m *IntegrityMetrics) IncCheckError(check string) {
	if m == nil || m.checkErrs == nil {
		return
	}
	m.checkErrs.WithLabelValues(normalizeLabel(check)).Inc()
}

func (m *IntegrityMetrics) ObserveScan(duration time.Duration) {
	if m == nil || m.scanTime == nil {
		return
	}
	m.scanTime.Observe(duration.Seconds())
}
