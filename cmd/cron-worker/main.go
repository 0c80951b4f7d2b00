package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/escrowledger/internal/app"
	"github.com/angelmondragon/escrowledger/internal/cron"
	"github.com/angelmondragon/escrowledger/internal/integrity"
	"github.com/angelmondragon/escrowledger/pkg/logger"
	"github.com/angelmondragon/escrowledger/pkg/metrics"
	"github.com/angelmondragon/escrowledger/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single tick and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *once); err != nil && !errors.Is(err, context.Canceled) {
		logger.New(logger.Options{ServiceName: serviceName}).Error(ctx, "cron worker exited", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, once bool) error {
	a, err := app.Bootstrap(ctx, serviceName)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.Logger.Error(ctx, "closing connections", closeErr)
		}
	}()

	reg := prometheus.DefaultRegisterer
	registry, err := buildRegistry(ctx, a, reg)
	if err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}
	lockTTL := a.Config.Integrity.LockTTL
	lock, err := cron.NewRedisLock(a.Redis, a.Redis.LockKey(serviceName), lockTTL)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:      a.Logger,
		Registry:    registry,
		Lock:        lock,
		Metrics:     metrics.NewCronJobMetrics(reg),
		TickTimeout: lockTTL * 9 / 10,
	})
	if err != nil {
		return err
	}

	ctx = a.Logger.WithField(a.Context(ctx), "jobs", registry.Names())
	if once {
		report, err := service.Tick(ctx)
		if err != nil {
			return err
		}
		a.Logger.Info(a.Logger.WithFields(ctx, map[string]any{
			"locked":  report.Locked,
			"ran":     report.Ran,
			"skipped": report.Skipped,
		}), "single tick finished")
		return report.Failed
	}

	go serveMetrics(ctx, a)
	a.Logger.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

// serveMetrics exposes the worker's prometheus registry and a liveness probe.
func serveMetrics(ctx context.Context, a *app.App) {
	r := chi.NewRouter()
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: ":" + a.Config.App.Port, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.Logger.Error(ctx, "metrics listener stopped", err)
	}
}

// buildRegistry registers the two integrity scan cadences and the payout driver.
// Each job is gated by its own redis run marker so replicas share one schedule.
func buildRegistry(ctx context.Context, a *app.App, reg prometheus.Registerer) (*cron.Registry, error) {
	core, err := a.Core(ctx, reg)
	if err != nil {
		return nil, err
	}
	cfg := a.Config
	monitor, err := integrity.NewMonitor(integrity.MonitorParams{
		Ledger:   core.LedgerRepo,
		Payouts:  core.PayoutRepo,
		Resolver: core.Resolver,
		Audit:    core.Audit,
		Config:   cfg.Integrity,
		Metrics:  metrics.NewIntegrityMetrics(reg),
		Logger:   a.Logger,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	scans := []struct {
		name    string
		cadence time.Duration
	}{
		{cron.IntegrityScanJobName, cfg.Integrity.Interval},
		{cron.IntegrityScanDailyJobName, cfg.Integrity.DailyInterval},
	}
	for _, scan := range scans {
		job, err := cron.NewIntegrityScanJob(cron.IntegrityScanJobParams{Name: scan.name, Logger: a.Logger, Scanner: monitor})
		if err != nil {
			return nil, err
		}
		if err := register(registry, a.Redis, job, scan.cadence); err != nil {
			return nil, err
		}
	}

	dispatch, err := cron.NewPayoutDispatchJob(cron.PayoutDispatchJobParams{
		Logger:  a.Logger,
		Payouts: core.Payouts,
		Batch:   cfg.Payouts.DispatchBatch,
	})
	if err != nil {
		return nil, err
	}
	if err := register(registry, a.Redis, dispatch, cfg.Payouts.DispatchInterval); err != nil {
		return nil, err
	}
	return registry, nil
}

func register(registry *cron.Registry, redisClient *redis.Client, job cron.Job, cadence time.Duration) error {
	gated, err := cron.Every(job, cadence, redisClient, redisClient.CronRunKey(job.Name()))
	if err != nil {
		return err
	}
	return registry.Register(gated)
}
