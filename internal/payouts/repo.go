package payouts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowledger/pkg/db/models"
	"github.com/angelmondragon/escrowledger/pkg/enums"
)

// Repository persists payouts and their history. No method writes amount after insert.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payout, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Payout, error)
	ListByStatus(ctx context.Context, limit int, statuses ...enums.PayoutStatus) ([]models.Payout, error)
	ListCompletedWithoutTransfer(ctx context.Context) ([]models.Payout, error)
	CountByStatus(ctx context.Context) ([]StatusCount, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.PayoutStatus, update StatusUpdate) (bool, error)
	SetTransferRef(ctx context.Context, id uuid.UUID, ref string) (bool, error)
	ReservationRefExists(ctx context.Context, refs ...string) (bool, error)
	AppendHistory(ctx context.Context, entry *models.PayoutHistory) error
	ListHistory(ctx context.Context, payoutID uuid.UUID) ([]models.PayoutHistory, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payouts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

// ListByStatus returns the oldest payouts first. A non-positive limit returns every match.
func (r *repository) ListByStatus(ctx context.Context, limit int, statuses ...enums.PayoutStatus) ([]models.Payout, error) {
	query := r.db.WithContext(ctx).Where("status IN ?", statuses).Order("created_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var payouts []models.Payout
	if err := query.Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repository) ListCompletedWithoutTransfer(ctx context.Context) ([]models.Payout, error) {
	var payouts []models.Payout
	if err := r.db.WithContext(ctx).
		Where("status = ? AND (transfer_ref IS NULL OR transfer_ref = '')", enums.PayoutStatusCompleted).
		Order("created_at ASC").
		Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var rows []StatusCount
	if err := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Order("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateStatus flips from -> to only if the row is still in from. It reports false
// when another writer moved the payout first.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.PayoutStatus, update StatusUpdate) (bool, error) {
	columns := map[string]any{"status": to}
	if update.ReservationRef != nil {
		columns["reservation_ref"] = *update.ReservationRef
	}
	if update.FailureCode != nil {
		columns["failure_code"] = *update.FailureCode
	}
	if update.FailureReason != nil {
		columns["failure_reason"] = *update.FailureReason
	}
	if update.ApprovedBy != nil {
		columns["approved_by"] = *update.ApprovedBy
	}
	result := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, from).
		Updates(columns)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SetTransferRef stores ref once, while the payout is still PROCESSING.
func (r *repository) SetTransferRef(ctx context.Context, id uuid.UUID, ref string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status = ? AND (transfer_ref IS NULL OR transfer_ref = '')", id, enums.PayoutStatusProcessing).
		Update("transfer_ref", ref)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ReservationRefExists(ctx context.Context, refs ...string) (bool, error) {
	if len(refs) == 0 {
		return false, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("reservation_ref IN ?", refs).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) AppendHistory(ctx context.Context, entry *models.PayoutHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListHistory(ctx context.Context, payoutID uuid.UUID) ([]models.PayoutHistory, error) {
	var rows []models.PayoutHistory
	if err := r.db.WithContext(ctx).
		Where("payout_id = ?", payoutID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
