package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/escrowledger/internal/payouts"
	"github.com/angelmondragon/escrowledger/internal/transfers"
	"github.com/angelmondragon/escrowledger/pkg/db/models"
	"github.com/angelmondragon/escrowledger/pkg/enums"
	"github.com/angelmondragon/escrowledger/pkg/logger"
)

const (
	PayoutDispatchJobName = "payout-dispatch"
	defaultDispatchBatch  = 50
)

type payoutDriver interface {
	ListByStatus(ctx context.Context, limit int, statuses ...enums.PayoutStatus) ([]models.Payout, error)
	StartProcessing(ctx context.Context, payoutID uuid.UUID, actor payouts.Actor) (*models.Payout, error)
	Complete(ctx context.Context, payoutID uuid.UUID, actor payouts.Actor) (*models.Payout, error)
	Fail(ctx context.Context, payoutID uuid.UUID, actor payouts.Actor, code, reason string) (*models.Payout, error)
}

// PayoutDispatchJobParams configure the payout driver job.
type PayoutDispatchJobParams struct {
	Logger  *logger.Logger
	Payouts payoutDriver
	Batch   int
}

type payoutDispatchJob struct {
	logg    *logger.Logger
	payouts payoutDriver
	batch   int
	now     func() time.Time
}

// NewPayoutDispatchJob moves PENDING payouts into PROCESSING and PROCESSING
// payouts through the transfer. Permanent transfer rejections fail the payout;
// transient ones leave it PROCESSING for the next tick.
func NewPayoutDispatchJob(params PayoutDispatchJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultDispatchBatch
	}
	return &payoutDispatchJob{
		logg:    params.Logger,
		payouts: params.Payouts,
		batch:   batch,
		now:     time.Now,
	}, nil
}

func (j *payoutDispatchJob) Name() string { return PayoutDispatchJobName }

func (j *payoutDispatchJob) Run(ctx context.Context) error {
	actor := payouts.SystemActor()
	var errs []error

	pending, err := j.payouts.ListByStatus(ctx, j.batch, enums.PayoutStatusPending)
	if err != nil {
		return fmt.Errorf("list pending payouts: %w", err)
	}
	started := 0
	for _, payout := range pending {
		if _, err := j.payouts.StartProcessing(ctx, payout.ID, actor); err != nil {
			errs = append(errs, fmt.Errorf("start payout %s: %w", payout.ID, err))
			continue
		}
		started++
	}

	processing, err := j.payouts.ListByStatus(ctx, j.batch, enums.PayoutStatusProcessing)
	if err != nil {
		errs = append(errs, fmt.Errorf("list processing payouts: %w", err))
		return multierr.Combine(errs...)
	}
	completed, failed, deferred := 0, 0, 0
	for i, payout := range processing {
		_, err := j.payouts.Complete(ctx, payout.ID, actor)
		switch {
		case err == nil:
			completed++
		case transfers.IsPermanent(err):
			code := transfers.FailureCode(err)
			if _, failErr := j.payouts.Fail(ctx, payout.ID, actor, code, err.Error()); failErr != nil {
				errs = append(errs, fmt.Errorf("fail payout %s: %w", payout.ID, failErr))
				continue
			}
			failed++
		case errors.Is(err, transfers.ErrBreakerOpen):
			deferred += len(processing) - i
			j.logg.Warn(ctx, "transfer breaker open; deferring remaining payouts")
			return j.finish(ctx, started, completed, failed, deferred, errs)
		default:
			deferred++
			errs = append(errs, fmt.Errorf("complete payout %s: %w", payout.ID, err))
		}
	}
	return j.finish(ctx, started, completed, failed, deferred, errs)
}

func (j *payoutDispatchJob) finish(ctx context.Context, started, completed, failed, deferred int, errs []error) error {
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"started":   started,
		"completed": completed,
		"failed":    failed,
		"deferred":  deferred,
		"ran_at":    j.now().UTC(),
	})
	j.logg.Info(logCtx, "payout dispatch summary")
	return multierr.Combine(errs...)
}
