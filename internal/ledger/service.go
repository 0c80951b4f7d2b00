package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowledger/pkg/db/models"
	"github.com/angelmondragon/escrowledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowledger/pkg/errors"
)

// Service is the only writer of ledger entries. Every write takes the caller's
// transaction handle; there is no implicit transaction.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.LedgerEntry, error)
	RecordPosting(ctx context.Context, tx *gorm.DB, inputs ...RecordInput) ([]models.LedgerEntry, error)
	LockEscrow(ctx context.Context, tx *gorm.DB, input EscrowInput) ([]models.LedgerEntry, error)
	ReleaseEscrow(ctx context.Context, tx *gorm.DB, input EscrowInput) ([]models.LedgerEntry, error)
	Aggregate(ctx context.Context, filter AggregateFilter) ([]AggregateRow, error)
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

// Record validates and appends one entry. The returned entry carries the
// assigned storage id and external id.
func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.LedgerEntry, error) {
	entries, err := s.RecordPosting(ctx, tx, input)
	if err != nil {
		return nil, err
	}
	return &entries[0], nil
}

// RecordPosting validates every input before writing any of them.
func (s *service) RecordPosting(ctx context.Context, tx *gorm.DB, inputs ...RecordInput) ([]models.LedgerEntry, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger write requires a transaction handle")
	}
	if len(inputs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one ledger entry is required")
	}
	for i, input := range inputs {
		if err := validateRecord(input); err != nil {
			if len(inputs) > 1 {
				return nil, err.WithDetails(map[string]any{"index": i, "field": detailField(err)})
			}
			return nil, err
		}
	}

	repo := s.repo.WithTx(tx)
	entries := make([]models.LedgerEntry, 0, len(inputs))
	for _, input := range inputs {
		entry := models.LedgerEntry{
			UserID:   input.UserID,
			Role:     input.Role,
			Type:     input.Type,
			Amount:   input.Amount,
			Currency: input.Currency,
			Status:   input.Status,
			OrderID:  input.OrderID,
			Metadata: input.Metadata.Clone(),
		}
		if err := repo.Create(ctx, &entry); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert ledger entry")
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// LockEscrow moves the order total from the buyer into the seller's locked escrow.
func (s *service) LockEscrow(ctx context.Context, tx *gorm.DB, input EscrowInput) ([]models.LedgerEntry, error) {
	if err := validateEscrow(input, true); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger write requires a transaction handle")
	}
	existing, err := s.repo.WithTx(tx).ListByOrder(ctx, input.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order ledger entries")
	}
	for _, entry := range existing {
		if entry.Type == enums.LedgerEntryTypeEscrowLock {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "escrow already locked for order")
		}
	}

	orderID := input.OrderID
	return s.RecordPosting(ctx, tx,
		RecordInput{
			UserID:   input.BuyerID,
			Role:     enums.LedgerRoleBuyer,
			Type:     enums.LedgerEntryTypeEscrowLock,
			Amount:   -input.Amount,
			Currency: input.Currency,
			Status:   enums.LedgerEntryStatusSettled,
			OrderID:  &orderID,
		},
		RecordInput{
			UserID:   input.SellerID,
			Role:     enums.LedgerRoleSeller,
			Type:     enums.LedgerEntryTypeEscrowLock,
			Amount:   input.Amount,
			Currency: input.Currency,
			Status:   enums.LedgerEntryStatusLocked,
			OrderID:  &orderID,
		},
	)
}

// ReleaseEscrow makes matured escrow available to the seller. The seller's
// locked balance for the order must cover the amount.
func (s *service) ReleaseEscrow(ctx context.Context, tx *gorm.DB, input EscrowInput) ([]models.LedgerEntry, error) {
	if err := validateEscrow(input, false); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger write requires a transaction handle")
	}
	locked, err := s.repo.WithTx(tx).SumForOrder(ctx, input.OrderID, enums.LedgerRoleSeller, enums.LedgerEntryStatusLocked)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum locked escrow")
	}
	if locked < input.Amount {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "locked escrow does not cover release").
			WithDetails(map[string]any{"locked": locked, "requested": input.Amount})
	}

	orderID := input.OrderID
	return s.RecordPosting(ctx, tx,
		RecordInput{
			UserID:   input.SellerID,
			Role:     enums.LedgerRoleSeller,
			Type:     enums.LedgerEntryTypeEscrowReleaseDebit,
			Amount:   -input.Amount,
			Currency: input.Currency,
			Status:   enums.LedgerEntryStatusLocked,
			OrderID:  &orderID,
		},
		RecordInput{
			UserID:   input.SellerID,
			Role:     enums.LedgerRoleSeller,
			Type:     enums.LedgerEntryTypeEscrowReleaseCredit,
			Amount:   input.Amount,
			Currency: input.Currency,
			Status:   enums.LedgerEntryStatusAvailable,
			OrderID:  &orderID,
		},
	)
}

func (s *service) Aggregate(ctx context.Context, filter AggregateFilter) ([]AggregateRow, error) {
	if _, err := filter.GroupBy.column(); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	if filter.Currency != "" && !filter.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid currency filter")
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid type filter")
	}
	if filter.Role != "" && !filter.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role filter")
	}
	rows, err := s.repo.Aggregate(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate ledger")
	}
	return rows, nil
}

func validateRecord(input RecordInput) *pkgerrors.Error {
	switch {
	case input.UserID == uuid.Nil:
		return fieldError("user_id", "user id is required")
	case !input.Role.IsValid():
		return fieldError("role", fmt.Sprintf("invalid role %q", input.Role))
	case !input.Type.IsValid():
		return fieldError("type", fmt.Sprintf("unknown ledger entry type %q", input.Type))
	case input.Amount == 0:
		return fieldError("amount", "amount must be non-zero")
	case !input.Type.AllowsAmount(input.Amount):
		return fieldError("amount", fmt.Sprintf("amount sign does not match type %s", input.Type))
	case input.Currency == "":
		return fieldError("currency", "currency is required")
	case !input.Currency.IsValid():
		return fieldError("currency", fmt.Sprintf("invalid currency %q", input.Currency))
	case !input.Status.IsValid():
		return fieldError("status", fmt.Sprintf("invalid status %q", input.Status))
	}
	return nil
}

func validateEscrow(input EscrowInput, requireBuyer bool) *pkgerrors.Error {
	switch {
	case input.OrderID == uuid.Nil:
		return fieldError("order_id", "order id is required")
	case requireBuyer && input.BuyerID == uuid.Nil:
		return fieldError("buyer_id", "buyer id is required")
	case input.SellerID == uuid.Nil:
		return fieldError("seller_id", "seller id is required")
	case input.Amount <= 0:
		return fieldError("amount", "escrow amount must be positive")
	case !input.Currency.IsValid():
		return fieldError("currency", fmt.Sprintf("invalid currency %q", input.Currency))
	}
	return nil
}

func fieldError(field, msg string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": field})
}

func detailField(err *pkgerrors.Error) any {
	if details, ok := err.Details().(map[string]any); ok {
		return details["field"]
	}
	return nil
}
