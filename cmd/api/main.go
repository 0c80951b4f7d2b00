package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/escrowledger/api/routes"
	"github.com/angelmondragon/escrowledger/internal/app"
	"github.com/angelmondragon/escrowledger/internal/observability"
	"github.com/angelmondragon/escrowledger/internal/orders"
	"github.com/angelmondragon/escrowledger/internal/remediation"
	"github.com/angelmondragon/escrowledger/pkg/logger"
	"github.com/angelmondragon/escrowledger/pkg/metrics"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.New(logger.Options{ServiceName: "api"}).Error(ctx, "api exited", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	a, err := app.Bootstrap(ctx, "api")
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.Logger.Error(ctx, "closing connections", closeErr)
		}
	}()

	handler, err := buildHandler(ctx, a)
	if err != nil {
		return err
	}

	// PORT is set by the hosting platform and wins over config.
	port := os.Getenv("PORT")
	if port == "" {
		port = a.Config.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx = a.Logger.WithField(a.Context(ctx), "addr", server.Addr)
	a.Logger.Info(ctx, "starting api server")

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.Logger.Info(ctx, "api server shut down gracefully")
	return nil
}

func buildHandler(ctx context.Context, a *app.App) (http.Handler, error) {
	reg := prometheus.DefaultRegisterer
	core, err := a.Core(ctx, reg)
	if err != nil {
		return nil, err
	}

	remediationService, err := remediation.NewService(remediation.ServiceParams{
		Tx:      a.DB,
		Audit:   core.Audit,
		Ledger:  core.Ledger,
		Entries: core.LedgerRepo,
		Payouts: core.Payouts,
		Metrics: metrics.NewRemediationMetrics(reg),
		Logger:  a.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("remediation service: %w", err)
	}

	observabilityService, err := observability.NewService(observability.ServiceParams{
		Ledger:  core.Ledger,
		Entries: core.LedgerRepo,
		Payouts: core.PayoutRepo,
		Orders:  orders.NewRepository(a.DB.DB()),
		Audit:   core.Audit,
	})
	if err != nil {
		return nil, fmt.Errorf("observability service: %w", err)
	}

	return routes.NewRouter(a.Config, a.Logger, a.DB, a.Redis, observabilityService, remediationService, promhttp.Handler()), nil
}
