package cron

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/escrowledger/pkg/logger"
	"github.com/angelmondragon/escrowledger/pkg/metrics"
)

// defaultInterval is the tick of the host loop; jobs with longer cadences are gated.
const defaultInterval = time.Minute

// ServiceParams configure the cron service. TickTimeout bounds one whole tick
// and should stay below the lock TTL so a slow tick cannot outlive its lock.
type ServiceParams struct {
	Logger      *logger.Logger
	Registry    *Registry
	Lock        Lock
	Metrics     *metrics.CronJobMetrics
	Interval    time.Duration
	TickTimeout time.Duration
}

// Service runs every registered job once per tick on the instance that wins
// the tick lock.
type Service struct {
	logg        *logger.Logger
	registry    *Registry
	lock        Lock
	metrics     *metrics.CronJobMetrics
	interval    time.Duration
	tickTimeout time.Duration
}

// TickReport summarizes one tick. Locked is false when another instance held
// the lock and nothing ran.
type TickReport struct {
	Locked  bool
	Ran     []string
	Skipped []string
	Failed  error
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	s := &Service{
		logg:        params.Logger,
		registry:    params.Registry,
		lock:        params.Lock,
		metrics:     params.Metrics,
		interval:    params.Interval,
		tickTimeout: params.TickTimeout,
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	return s, nil
}

// Run ticks immediately and then every interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.logTick(ctx)
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) logTick(ctx context.Context) {
	report, err := s.Tick(ctx)
	if err != nil {
		s.logg.Error(ctx, "cron tick failed", err)
		return
	}
	if report.Failed != nil {
		failed := len(multierr.Errors(report.Failed))
		s.logg.Warn(s.logg.WithField(ctx, "failed_jobs", failed), "cron tick finished with failures")
	}
}

// Tick takes the lock and runs each job in registration order. A failing or
// panicking job does not stop the jobs after it. The returned error covers
// lock problems only; job failures are in the report.
func (s *Service) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return report, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Debug(ctx, "another cron instance holds the lock; skipping tick")
		s.metrics.IncLockContended()
		return report, nil
	}
	report.Locked = true
	defer func() {
		// the tick context may already be done; release on a fresh one
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	tickCtx := ctx
	if s.tickTimeout > 0 {
		var cancel context.CancelFunc
		tickCtx, cancel = context.WithTimeout(ctx, s.tickTimeout)
		defer cancel()
	}

	for _, job := range s.registry.Jobs() {
		if tickCtx.Err() != nil {
			report.Failed = multierr.Append(report.Failed, fmt.Errorf("%s: %w", job.Name(), tickCtx.Err()))
			continue
		}
		ran, err := s.runJob(tickCtx, job)
		switch {
		case err != nil:
			report.Failed = multierr.Append(report.Failed, fmt.Errorf("%s: %w", job.Name(), err))
		case ran:
			report.Ran = append(report.Ran, job.Name())
		default:
			report.Skipped = append(report.Skipped, job.Name())
		}
	}
	return report, nil
}

// runJob reports whether job executed. Gated jobs outside their window are skipped.
func (s *Service) runJob(ctx context.Context, job Job) (bool, error) {
	name := job.Name()
	ctx = s.logg.WithJob(ctx, name)

	if gated, ok := job.(*GatedJob); ok {
		due, err := gated.Due(ctx)
		if err != nil {
			s.logg.Error(ctx, "job gate check failed", err)
			s.metrics.ObserveRun(name, metrics.CronResultError, 0)
			return false, err
		}
		if !due {
			s.metrics.IncSkipped(name)
			return false, nil
		}
	}

	s.logg.Info(ctx, "job start")
	start := time.Now()
	err := safeRun(ctx, job)
	took := time.Since(start)
	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		s.metrics.ObserveRun(name, metrics.CronResultError, took)
		return true, err
	}
	s.logg.Info(ctx, "job completed")
	s.metrics.ObserveRun(name, metrics.CronResultOK, took)
	return true, nil
}

var errJobPanicked = errors.New("job panicked")

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v\n%s", errJobPanicked, rec, debug.Stack())
		}
	}()
	return job.Run(ctx)
}
