package audit

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/escrowledger/pkg/db/models"
	"github.com/angelmondragon/escrowledger/pkg/enums"
	"github.com/angelmondragon/escrowledger/pkg/pagination"
)

// Repository persists audit rows. Rows are insert-only.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.AuditLog) error
	FindByIdempotencyKey(ctx context.Context, action enums.AuditAction, key string) (*models.AuditLog, error)
	ExistsFingerprintSince(ctx context.Context, fingerprint string, since time.Time) (bool, error)
	ListByTarget(ctx context.Context, targetIDs ...string) ([]models.AuditLog, error)
	ListByPayoutRef(ctx context.Context, payoutID string) ([]models.AuditLog, error)
	List(ctx context.Context, query Query) ([]models.AuditLog, *pagination.Cursor, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// FindByIdempotencyKey returns gorm.ErrRecordNotFound when the key was never used for action.
func (r *repository) FindByIdempotencyKey(ctx context.Context, action enums.AuditAction, key string) (*models.AuditLog, error) {
	var entry models.AuditLog
	if err := r.db.WithContext(ctx).
		Where("action = ? AND idempotency_key = ?", action, key).
		First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ExistsFingerprintSince(ctx context.Context, fingerprint string, since time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.AuditLog{}).
		Where("fingerprint = ? AND created_at >= ?", fingerprint, since.UTC()).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListByTarget(ctx context.Context, targetIDs ...string) ([]models.AuditLog, error) {
	if len(targetIDs) == 0 {
		return nil, nil
	}
	var entries []models.AuditLog
	if err := r.db.WithContext(ctx).
		Where("target_id IN ?", targetIDs).
		Order("created_at ASC, id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListByPayoutRef returns rows that name payoutID as a related record without
// targeting it, such as corrections anchored to the payout.
func (r *repository) ListByPayoutRef(ctx context.Context, payoutID string) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	if err := r.db.WithContext(ctx).
		Where("metadata ->> 'payout_id' = ?", payoutID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) List(ctx context.Context, q Query) ([]models.AuditLog, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.AuditLog{})
	if q.Action != "" {
		query = query.Where("action = ?", q.Action)
	}
	if q.ActorID != nil {
		query = query.Where("actor_id = ?", *q.ActorID)
	}
	if q.TargetType != "" {
		query = query.Where("target_type = ?", q.TargetType)
	}
	if q.TargetID != "" {
		query = query.Where("target_id = ?", q.TargetID)
	}
	if q.Outcome != "" {
		query = query.Where("outcome = ?", q.Outcome)
	}
	if q.ErrorCode != "" {
		query = query.Where("error_code = ?", q.ErrorCode)
	}
	if q.CreatedFrom != nil {
		query = query.Where("created_at >= ?", q.CreatedFrom.UTC())
	}
	if q.CreatedTo != nil {
		query = query.Where("created_at < ?", q.CreatedTo.UTC())
	}
	if q.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", q.Cursor.CreatedAt.UTC(), q.Cursor.ID)
	}

	var entries []models.AuditLog
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.FetchSize(q.Limit)).Find(&entries).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(entries, q.Limit, func(e models.AuditLog) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return page, next, nil
}
