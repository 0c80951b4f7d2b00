// Package integrity runs the read-only invariant checks over the ledger and payouts.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/escrowledger/internal/ledger"
	"github.com/angelmondragon/escrowledger/internal/reservations"
	"github.com/angelmondragon/escrowledger/pkg/config"
	"github.com/angelmondragon/escrowledger/pkg/db/models"
	"github.com/angelmondragon/escrowledger/pkg/enums"
	"github.com/angelmondragon/escrowledger/pkg/logger"
	"github.com/angelmondragon/escrowledger/pkg/metrics"
	"github.com/angelmondragon/escrowledger/pkg/types"
)

// ErrScanInProgress is returned when another scan holds the monitor.
var ErrScanInProgress = errors.New("integrity scan already running")

type ledgerReader interface {
	CurrencyTotals(ctx context.Context) ([]ledger.CurrencyTotal, error)
	NegativeAvailableBalances(ctx context.Context) ([]ledger.UserBalance, error)
	ListByTypeBefore(ctx context.Context, typ enums.LedgerEntryType, cutoff time.Time) ([]models.LedgerEntry, error)
}

type payoutReader interface {
	ListCompletedWithoutTransfer(ctx context.Context) ([]models.Payout, error)
	ListByStatus(ctx context.Context, limit int, statuses ...enums.PayoutStatus) ([]models.Payout, error)
}

type violationStore interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	ExistsFingerprintSince(ctx context.Context, fingerprint string, since time.Time) (bool, error)
}

// MonitorParams wires the monitor.
type MonitorParams struct {
	Ledger   ledgerReader
	Payouts  payoutReader
	Resolver reservations.Resolver
	Audit    violationStore
	Config   config.IntegrityConfig
	Metrics  *metrics.IntegrityMetrics
	Logger   *logger.Logger
}

// Monitor owns no timers; a scheduler calls RunIntegrityScan.
type Monitor struct {
	mu       sync.Mutex
	ledger   ledgerReader
	payouts  payoutReader
	resolver reservations.Resolver
	audit    violationStore
	cfg      config.IntegrityConfig
	metrics  *metrics.IntegrityMetrics
	logg     *logger.Logger
	now      func() time.Time
}

func NewMonitor(params MonitorParams) (*Monitor, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger reader required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout reader required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("reservation resolver required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit store required")
	}
	cfg := params.Config
	if cfg.OrphanAge <= 0 {
		cfg.OrphanAge = 24 * time.Hour
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 24 * time.Hour
	}
	return &Monitor{
		ledger:   params.Ledger,
		payouts:  params.Payouts,
		resolver: params.Resolver,
		audit:    params.Audit,
		cfg:      cfg,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      time.Now,
	}, nil
}

type check struct {
	name string
	run  func(ctx context.Context, now time.Time) ([]Violation, error)
}

func (m *Monitor) checks() []check {
	return []check{
		{name: "global_imbalance", run: m.checkGlobalImbalance},
		{name: "negative_available_balance", run: m.checkNegativeAvailable},
		{name: "completed_without_transfer", run: m.checkCompletedWithoutTransfer},
		{name: "missing_reservation", run: m.checkMissingReservation},
		{name: "orphaned_reservation", run: m.checkOrphanedReservations},
	}
}

// RunIntegrityScan runs every check once and records new violations in the
// audit log. A failing check does not stop the others; the returned error
// aggregates all failures and the report is valid either way.
func (m *Monitor) RunIntegrityScan(ctx context.Context) (*Report, error) {
	if !m.mu.TryLock() {
		return nil, ErrScanInProgress
	}
	defer m.mu.Unlock()

	now := m.now().UTC()
	report := &Report{StartedAt: now}
	var errs error

	for _, c := range m.checks() {
		violations, err := c.run(ctx, now)
		if err != nil {
			m.metrics.IncCheckError(c.name)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
		report.Violations = append(report.Violations, violations...)
	}

	since := now.Add(-m.cfg.DedupWindow)
	for i := range report.Violations {
		recorded, err := m.record(ctx, &report.Violations[i], since)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("record %s: %w", report.Violations[i].Fingerprint(), err))
			continue
		}
		if recorded {
			report.Recorded++
		} else {
			report.Deduplicated++
		}
	}

	report.FinishedAt = m.now().UTC()
	report.Err = errs
	for _, err := range multierr.Errors(errs) {
		report.CheckErrors = append(report.CheckErrors, err.Error())
	}
	m.metrics.ObserveScan(report.FinishedAt.Sub(report.StartedAt))

	if m.logg != nil {
		logCtx := m.logg.WithFields(ctx, map[string]any{
			"violations":   len(report.Violations),
			"recorded":     report.Recorded,
			"deduplicated": report.Deduplicated,
			"errors":       len(report.CheckErrors),
		})
		m.logg.Info(logCtx, "integrity scan complete")
	}
	return report, errs
}

func (m *Monitor) record(ctx context.Context, v *Violation, since time.Time) (bool, error) {
	fingerprint := v.Fingerprint()
	seen, err := m.audit.ExistsFingerprintSince(ctx, fingerprint, since)
	if err != nil {
		return false, err
	}
	if seen {
		v.Deduplicated = true
		m.metrics.IncDeduplicated(string(v.Code))
		return false, nil
	}

	code := string(v.Code)
	message := v.Message
	metadata := types.Metadata{
		"severity":      string(v.Severity),
		"magnitude":     v.Magnitude,
		"signed_amount": v.SignedAmount,
	}
	if v.Currency != "" {
		metadata["currency"] = string(v.Currency)
	}
	for k, val := range v.Details {
		metadata[k] = val
	}
	entry := &models.AuditLog{
		Action:       enums.AuditActionIntegrityViolation,
		ActorType:    enums.ActorTypeSystem,
		TargetType:   v.TargetType,
		TargetID:     v.TargetID,
		Outcome:      enums.AuditOutcomeFailure,
		ErrorCode:    &code,
		ErrorMessage: &message,
		Fingerprint:  &fingerprint,
		Metadata:     metadata,
	}
	if err := m.audit.Create(ctx, entry); err != nil {
		return false, err
	}
	m.metrics.IncViolation(code)
	if m.logg != nil {
		logCtx := m.logg.WithFields(ctx, map[string]any{
			"violation": code,
			"severity":  string(v.Severity),
			"target_id": v.TargetID,
		})
		m.logg.Warn(logCtx, v.Message)
	}
	return true, nil
}
