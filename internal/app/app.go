// Package app holds the process bootstrap shared by the api and cron-worker
// binaries: configuration, logging, the database and redis connections, and
// the ledger and payout services both processes build on.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/escrowledger/internal/audit"
	"github.com/angelmondragon/escrowledger/internal/ledger"
	"github.com/angelmondragon/escrowledger/internal/payouts"
	"github.com/angelmondragon/escrowledger/internal/reservations"
	"github.com/angelmondragon/escrowledger/internal/transfers"
	"github.com/angelmondragon/escrowledger/pkg/config"
	"github.com/angelmondragon/escrowledger/pkg/db"
	"github.com/angelmondragon/escrowledger/pkg/instance"
	"github.com/angelmondragon/escrowledger/pkg/logger"
	"github.com/angelmondragon/escrowledger/pkg/metrics"
	"github.com/angelmondragon/escrowledger/pkg/migrate"
	"github.com/angelmondragon/escrowledger/pkg/redis"
)

// App is a bootstrapped process. Close releases everything Bootstrap opened.
type App struct {
	Name    string
	Config  *config.Config
	Logger  *logger.Logger
	DB      *db.Client
	Redis   *redis.Client
	closers []func() error
}

// Bootstrap loads .env (if any) and the config, then opens the database, runs
// dev migrations when enabled, and connects redis. A partial bootstrap is
// closed before the error is returned.
func Bootstrap(ctx context.Context, name string) (_ *App, err error) {
	if loadErr := godotenv.Load(); loadErr != nil && !os.IsNotExist(loadErr) {
		return nil, fmt.Errorf("load .env: %w", loadErr)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &App{
		Name:   name,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: name,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
			Format:      cfg.App.LogFormat,
		}),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.DB, err = db.New(ctx, cfg.DB, a.Logger); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.closers = append(a.closers, a.DB.Close)

	if err = migrate.MaybeRunDev(ctx, cfg, a.Logger, a.DB); err != nil {
		return nil, fmt.Errorf("dev migrations: %w", err)
	}

	if a.Redis, err = redis.New(ctx, cfg.Redis, a.Logger); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.closers = append(a.closers, a.Redis.Close)
	return a, nil
}

// Context tags ctx with the fields every line of this process should carry.
func (a *App) Context(ctx context.Context) context.Context {
	return a.Logger.WithFields(ctx, map[string]any{
		"env":      a.Config.App.Env,
		"instance": instance.GetID(),
	})
}

// Close runs the closers in reverse order and reports every failure.
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}

// Core is the ledger and payout layer shared by both binaries.
type Core struct {
	LedgerRepo ledger.Repository
	Ledger     ledger.Service
	PayoutRepo payouts.Repository
	Payouts    payouts.Service
	Resolver   reservations.Resolver
	Audit      audit.Repository
}

// Core wires the shared services. Transfer metrics register on reg.
func (a *App) Core(ctx context.Context, reg prometheus.Registerer) (*Core, error) {
	conn := a.DB.DB()
	c := &Core{
		LedgerRepo: ledger.NewRepository(conn),
		PayoutRepo: payouts.NewRepository(conn),
		Audit:      audit.NewRepository(conn),
	}

	var err error
	if c.Ledger, err = ledger.NewService(c.LedgerRepo); err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}
	if c.Resolver, err = reservations.NewResolver(c.LedgerRepo, c.PayoutRepo); err != nil {
		return nil, fmt.Errorf("reservation resolver: %w", err)
	}
	creator, err := transfers.NewFromConfig(ctx, a.Config, a.Logger, conn, metrics.NewTransferMetrics(reg))
	if err != nil {
		return nil, fmt.Errorf("transfer provider: %w", err)
	}
	c.Payouts, err = payouts.NewService(payouts.ServiceParams{
		Repo:     c.PayoutRepo,
		Tx:       a.DB,
		Ledger:   c.Ledger,
		Escrow:   c.LedgerRepo,
		Resolver: c.Resolver,
		Creator:  creator,
		Logger:   a.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("payout service: %w", err)
	}
	return c, nil
}
