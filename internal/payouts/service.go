package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowledger/internal/ledger"
	"github.com/angelmondragon/escrowledger/internal/reservations"
	"github.com/angelmondragon/escrowledger/internal/transfers"
	pkgdb "github.com/angelmondragon/escrowledger/pkg/db"
	"github.com/angelmondragon/escrowledger/pkg/db/models"
	"github.com/angelmondragon/escrowledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowledger/pkg/errors"
	"github.com/angelmondragon/escrowledger/pkg/logger"
	"github.com/angelmondragon/escrowledger/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives payouts through the legal transitions. Every ledger posting a
// transition needs is written in the same transaction as the status flip.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Payout, error)
	StartProcessing(ctx context.Context, payoutID uuid.UUID, actor Actor) (*models.Payout, error)
	Complete(ctx context.Context, payoutID uuid.UUID, actor Actor) (*models.Payout, error)
	Fail(ctx context.Context, payoutID uuid.UUID, actor Actor, code, reason string) (*models.Payout, error)
	Cancel(ctx context.Context, payoutID uuid.UUID, actor Actor, reason string) (*models.Payout, error)

	// FailTx and CancelTx run inside the caller's transaction.
	FailTx(ctx context.Context, tx *gorm.DB, payoutID uuid.UUID, actor Actor, code, reason string) (*models.Payout, *models.LedgerEntry, error)
	CancelTx(ctx context.Context, tx *gorm.DB, payoutID uuid.UUID, actor Actor, reason string) (*models.Payout, error)

	Get(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payout, error)
	ListByStatus(ctx context.Context, limit int, statuses ...enums.PayoutStatus) ([]models.Payout, error)
	CountByStatus(ctx context.Context) ([]StatusCount, error)
	History(ctx context.Context, payoutID uuid.UUID) ([]models.PayoutHistory, error)
}

// ServiceParams wires the payout service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Ledger   ledger.Service
	Escrow   ledger.Repository
	Resolver reservations.Resolver
	Creator  transfers.Creator
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	tx       txRunner
	ledger   ledger.Service
	escrow   ledger.Repository
	resolver reservations.Resolver
	creator  transfers.Creator
	logg     *logger.Logger
}

// NewService builds a payout service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Escrow == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("reservation resolver required")
	}
	if params.Creator == nil {
		return nil, fmt.Errorf("transfer creator required")
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		ledger:   params.Ledger,
		escrow:   params.Escrow,
		resolver: params.Resolver,
		creator:  params.Creator,
		logg:     params.Logger,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Payout, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	key := strings.TrimSpace(input.IdempotencyKey)

	var created *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if key != "" {
			existing, err := repo.FindByIdempotencyKey(ctx, key)
			switch {
			case err == nil:
				if existing.OrderID != input.OrderID || existing.Amount != input.Amount || existing.Currency != input.Currency {
					return pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used for a different payout")
				}
				created = existing
				return nil
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout by idempotency key")
			}
		}

		if _, err := repo.FindByOrderID(ctx, input.OrderID); err == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout already exists for order")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout by order")
		}

		locked, err := s.escrow.WithTx(tx).SumForOrder(ctx, input.OrderID, enums.LedgerRoleSeller, enums.LedgerEntryStatusLocked)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum locked escrow")
		}
		if locked < input.Amount {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "locked escrow does not cover payout").
				WithDetails(map[string]any{"locked": locked, "requested": input.Amount})
		}

		payout := &models.Payout{
			OrderID:    input.OrderID,
			SellerID:   input.SellerID,
			ApprovedBy: input.ApprovedBy,
			Amount:     input.Amount,
			Currency:   input.Currency,
			Status:     enums.PayoutStatusPending,
		}
		if key != "" {
			payout.IdempotencyKey = &key
		}
		if err := repo.Create(ctx, payout); err != nil {
			if pkgdb.IsUniqueViolation(err) {
				return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "payout already exists for order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payout")
		}
		if err := appendHistory(ctx, repo, payout.ID, "", enums.PayoutStatusPending, actorFor(input.ApprovedBy), nil); err != nil {
			return err
		}
		created = payout
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) StartProcessing(ctx context.Context, payoutID uuid.UUID, actor Actor) (*models.Payout, error) {
	var updated *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payout, err := loadPayout(ctx, repo, payoutID)
		if err != nil {
			return err
		}
		if !CanTransition(payout.Status, enums.PayoutStatusProcessing) {
			return invalidTransition(payout.Status, enums.PayoutStatusProcessing)
		}

		locked, err := s.escrow.WithTx(tx).SumForOrder(ctx, payout.OrderID, enums.LedgerRoleSeller, enums.LedgerEntryStatusLocked)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum locked escrow")
		}
		if locked < payout.Amount {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "locked escrow does not cover payout").
				WithDetails(map[string]any{"locked": locked, "requested": payout.Amount})
		}

		orderID := payout.OrderID
		leg := ledger.RecordInput{
			UserID:   payout.SellerID,
			Role:     enums.LedgerRoleSeller,
			Type:     enums.LedgerEntryTypePayoutReservation,
			Amount:   -payout.Amount,
			Currency: payout.Currency,
			Status:   enums.LedgerEntryStatusLocked,
			OrderID:  &orderID,
			Metadata: types.Metadata{ledger.MetaPayoutID: payout.ID.String()},
		}
		posted, err := s.ledger.RecordPosting(ctx, tx, leg, ledger.ClearingLeg(leg))
		if err != nil {
			return err
		}

		ref := posted[0].ExternalID
		if err := transition(ctx, repo, payout, enums.PayoutStatusProcessing, actor, nil, StatusUpdate{ReservationRef: &ref}); err != nil {
			return err
		}
		payout.ReservationRef = &ref
		updated = payout
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Complete delivers the transfer and then flips the payout. The transfer ref is
// committed on its own before the flip so a crash in between never loses it.
func (s *service) Complete(ctx context.Context, payoutID uuid.UUID, actor Actor) (*models.Payout, error) {
	payout, err := loadPayout(ctx, s.repo, payoutID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(payout.Status, enums.PayoutStatusCompleted) {
		return nil, invalidTransition(payout.Status, enums.PayoutStatusCompleted)
	}
	if err := s.requireReservation(ctx, payout); err != nil {
		return nil, err
	}

	if !payout.HasTransferRef() {
		if s.logg != nil {
			s.logg.Info(s.logg.WithPayoutID(ctx, payout.ID.String()), "creating provider transfer")
		}
		ref, err := s.creator.CreateTransfer(ctx, transfers.Request{
			SellerID:       payout.SellerID,
			Amount:         payout.Amount,
			Currency:       payout.Currency,
			IdempotencyKey: payout.ID.String(),
			OrderID:        payout.OrderID,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transfer")
		}
		stored, err := s.repo.SetTransferRef(ctx, payout.ID, ref)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist transfer ref")
		}
		if !stored {
			current, err := loadPayout(ctx, s.repo, payout.ID)
			if err != nil {
				return nil, err
			}
			if current.Status != enums.PayoutStatusProcessing || !current.HasTransferRef() {
				return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payout changed while transfer was created").
					WithDetails(map[string]any{"status": current.Status, "transfer_ref": ref})
			}
		}
	}

	var completed *models.Payout
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := loadPayout(ctx, repo, payoutID)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, enums.PayoutStatusCompleted) {
			return invalidTransition(current.Status, enums.PayoutStatusCompleted)
		}
		if !current.HasTransferRef() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout has no transfer reference")
		}

		orderID := current.OrderID
		leg := ledger.RecordInput{
			UserID:   current.SellerID,
			Role:     enums.LedgerRoleSeller,
			Type:     enums.LedgerEntryTypePayout,
			Amount:   current.Amount,
			Currency: current.Currency,
			Status:   enums.LedgerEntryStatusSettled,
			OrderID:  &orderID,
			Metadata: types.Metadata{
				ledger.MetaPayoutID:    current.ID.String(),
				ledger.MetaExternalRef: *current.TransferRef,
			},
		}
		if _, err := s.ledger.RecordPosting(ctx, tx, leg, ledger.ClearingLeg(leg)); err != nil {
			return err
		}
		if err := transition(ctx, repo, current, enums.PayoutStatusCompleted, actor, nil, StatusUpdate{}); err != nil {
			return err
		}
		completed = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

func (s *service) Fail(ctx context.Context, payoutID uuid.UUID, actor Actor, code, reason string) (*models.Payout, error) {
	var failed *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payout, _, err := s.FailTx(ctx, tx, payoutID, actor, code, reason)
		failed = payout
		return err
	})
	if err != nil {
		return nil, err
	}
	return failed, nil
}

func (s *service) FailTx(ctx context.Context, tx *gorm.DB, payoutID uuid.UUID, actor Actor, code, reason string) (*models.Payout, *models.LedgerEntry, error) {
	if tx == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeInternal, "payout transition requires a transaction handle")
	}
	code = strings.TrimSpace(code)
	reason = strings.TrimSpace(reason)
	if code == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "failure code is required")
	}

	repo := s.repo.WithTx(tx)
	payout, err := loadPayout(ctx, repo, payoutID)
	if err != nil {
		return nil, nil, err
	}
	if !CanTransition(payout.Status, enums.PayoutStatusFailed) {
		return nil, nil, invalidTransition(payout.Status, enums.PayoutStatusFailed)
	}
	if payout.HasTransferRef() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payout transfer already delivered").
			WithDetails(map[string]any{"transfer_ref": *payout.TransferRef})
	}

	update := StatusUpdate{FailureCode: &code}
	var note *string
	if reason != "" {
		update.FailureReason = &reason
		note = &reason
	}
	if err := transition(ctx, repo, payout, enums.PayoutStatusFailed, actor, note, update); err != nil {
		return nil, nil, err
	}

	orderID := payout.OrderID
	metadata := types.Metadata{ledger.MetaPayoutID: payout.ID.String()}
	if payout.ReservationRef != nil {
		metadata[ledger.MetaLedgerEntryID] = *payout.ReservationRef
	}
	leg := ledger.RecordInput{
		UserID:   payout.SellerID,
		Role:     enums.LedgerRoleSeller,
		Type:     enums.LedgerEntryTypePayoutFailReversal,
		Amount:   payout.Amount,
		Currency: payout.Currency,
		Status:   enums.LedgerEntryStatusAvailable,
		OrderID:  &orderID,
		Metadata: metadata,
	}
	posted, err := s.ledger.RecordPosting(ctx, tx, leg, ledger.ClearingLeg(leg))
	if err != nil {
		return nil, nil, err
	}
	reversal := &posted[0]
	payout.FailureCode = &code
	if reason != "" {
		payout.FailureReason = &reason
	}
	return payout, reversal, nil
}

func (s *service) Cancel(ctx context.Context, payoutID uuid.UUID, actor Actor, reason string) (*models.Payout, error) {
	var cancelled *models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		payout, err := s.CancelTx(ctx, tx, payoutID, actor, reason)
		cancelled = payout
		return err
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (s *service) CancelTx(ctx context.Context, tx *gorm.DB, payoutID uuid.UUID, actor Actor, reason string) (*models.Payout, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payout transition requires a transaction handle")
	}
	repo := s.repo.WithTx(tx)
	payout, err := loadPayout(ctx, repo, payoutID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(payout.Status, enums.PayoutStatusCancelled) {
		return nil, invalidTransition(payout.Status, enums.PayoutStatusCancelled)
	}
	var note *string
	if reason = strings.TrimSpace(reason); reason != "" {
		note = &reason
	}
	if err := transition(ctx, repo, payout, enums.PayoutStatusCancelled, actor, note, StatusUpdate{}); err != nil {
		return nil, err
	}
	return payout, nil
}

func (s *service) Get(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	return loadPayout(ctx, s.repo, payoutID)
}

func (s *service) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payout, error) {
	payout, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout by order")
	}
	return payout, nil
}

func (s *service) ListByStatus(ctx context.Context, limit int, statuses ...enums.PayoutStatus) ([]models.Payout, error) {
	for _, status := range statuses {
		if !status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payout status %q", status))
		}
	}
	if len(statuses) == 0 {
		return nil, nil
	}
	payouts, err := s.repo.ListByStatus(ctx, limit, statuses...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payouts")
	}
	return payouts, nil
}

func (s *service) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	rows, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count payouts")
	}
	return rows, nil
}

func (s *service) History(ctx context.Context, payoutID uuid.UUID) ([]models.PayoutHistory, error) {
	if _, err := loadPayout(ctx, s.repo, payoutID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListHistory(ctx, payoutID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout history")
	}
	return rows, nil
}

func (s *service) requireReservation(ctx context.Context, payout *models.Payout) error {
	ref := ""
	if payout.ReservationRef != nil {
		ref = *payout.ReservationRef
	}
	if _, _, err := s.resolver.Resolve(ctx, ref); err != nil {
		if errors.Is(err, reservations.ErrUnresolved) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payout reservation does not resolve").
				WithDetails(map[string]any{"reservation_ref": ref})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve reservation")
	}
	return nil
}

func transition(ctx context.Context, repo Repository, payout *models.Payout, to enums.PayoutStatus, actor Actor, note *string, update StatusUpdate) error {
	from := payout.Status
	ok, err := repo.UpdateStatus(ctx, payout.ID, from, to, update)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout status")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payout status changed concurrently").
			WithDetails(map[string]any{"expected": from, "target": to})
	}
	if err := appendHistory(ctx, repo, payout.ID, from, to, actor, note); err != nil {
		return err
	}
	payout.Status = to
	return nil
}

func appendHistory(ctx context.Context, repo Repository, payoutID uuid.UUID, from, to enums.PayoutStatus, actor Actor, note *string) error {
	actorType := actor.Type
	if !actorType.IsValid() {
		actorType = enums.ActorTypeSystem
	}
	entry := &models.PayoutHistory{
		PayoutID:   payoutID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actor.ID,
		ActorType:  actorType,
		Note:       note,
	}
	if err := repo.AppendHistory(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payout history")
	}
	return nil
}

func loadPayout(ctx context.Context, repo Repository, payoutID uuid.UUID) (*models.Payout, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id required")
	}
	payout, err := repo.FindByID(ctx, payoutID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	return payout, nil
}

func invalidTransition(from, to enums.PayoutStatus) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("payout cannot move from %s to %s", from, to)).
		WithDetails(map[string]any{"from": from, "to": to})
}

func actorFor(approvedBy *uuid.UUID) Actor {
	if approvedBy != nil {
		return AdminActor(*approvedBy)
	}
	return SystemActor()
}

func validateCreate(input CreateInput) error {
	switch {
	case input.OrderID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	case input.SellerID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	case input.Amount <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "payout amount must be positive")
	case !input.Currency.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid currency %q", input.Currency))
	}
	return nil
}
