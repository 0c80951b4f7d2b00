package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cron run results.
const (
	CronResultOK      = "ok"
	CronResultError   = "error"
	CronResultSkipped = "skipped"
)

// CronJobMetrics records scheduled job runs on the cron worker.
type CronJobMetrics struct {
	runs          *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	lockContended prometheus.Counter
}

// NewCronJobMetrics registers the cron metrics. A nil registerer yields a no-op collector.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Cron job runs by result (ok, error, skipped).",
		}, []string{"job", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cron_job_duration_seconds",
			Help:    "Wall time of executed cron jobs.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		lockContended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cron_tick_lock_contended_total",
			Help: "Ticks skipped because another worker held the cron lock.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.lockContended)
	return m
}

// ObserveRun records an executed job with its result and duration.
func (m *CronJobMetrics) ObserveRun(job, result string, took time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	m.runs.WithLabelValues(job, normalizeLabel(result)).Inc()
	m.duration.WithLabelValues(job).Observe(took.Seconds())
}

// IncSkipped counts a job whose cadence window had not yet elapsed.
func (m *CronJobMetrics) IncSkipped(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), CronResultSkipped).Inc()
}

func (m *CronJobMetrics) IncLockContended() {
	if m == nil || m.lockContended == nil {
		return
	}
	m.lockContended.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
