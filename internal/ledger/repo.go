package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowledger/pkg/db/models"
	"github.com/angelmondragon/escrowledger/pkg/enums"
)

// Repository persists ledger entries. It is insert-only: no method updates or deletes a row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.LedgerEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.LedgerEntry, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error)
	ListByMetadataRef(ctx context.Context, key, value string) ([]models.LedgerEntry, error)
	ListByTypeBefore(ctx context.Context, typ enums.LedgerEntryType, cutoff time.Time) ([]models.LedgerEntry, error)
	Aggregate(ctx context.Context, filter AggregateFilter) ([]AggregateRow, error)
	CurrencyTotals(ctx context.Context) ([]CurrencyTotal, error)
	NegativeAvailableBalances(ctx context.Context) ([]UserBalance, error)
	AvailableBalance(ctx context.Context, userID uuid.UUID, currency enums.Currency) (int64, error)
	SumForOrder(ctx context.Context, orderID uuid.UUID, role enums.LedgerRole, status enums.LedgerEntryStatus) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindByExternalID(ctx context.Context, externalID string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListByMetadataRef returns entries whose metadata carries key = value.
// Only keys from the anchor whitelist are accepted.
func (r *repository) ListByMetadataRef(ctx context.Context, key, value string) ([]models.LedgerEntry, error) {
	if _, ok := metadataRefKeys[key]; !ok {
		return nil, fmt.Errorf("unsupported metadata key %q", key)
	}
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where(fmt.Sprintf("metadata ->> '%s' = ?", key), value).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListByTypeBefore(ctx context.Context, typ enums.LedgerEntryType, cutoff time.Time) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("type = ? AND created_at < ?", typ, cutoff.UTC()).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) Aggregate(ctx context.Context, filter AggregateFilter) ([]AggregateRow, error) {
	column, err := filter.GroupBy.column()
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).Model(&models.LedgerEntry{})
	if filter.Currency != "" {
		query = query.Where("currency = ?", filter.Currency)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", filter.CreatedBefore.UTC())
	}

	var rows []AggregateRow
	if column == "" {
		query = query.Select("'' AS group_key, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS entries")
	} else {
		query = query.
			Select(fmt.Sprintf("CAST(%s AS TEXT) AS group_key, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS entries", column)).
			Group(column).
			Order(column)
	}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CurrencyTotals(ctx context.Context) ([]CurrencyTotal, error) {
	var rows []CurrencyTotal
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("currency, COALESCE(SUM(amount), 0) AS total, COUNT(*) AS entries").
		Group("currency").
		Order("currency").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) NegativeAvailableBalances(ctx context.Context) ([]UserBalance, error) {
	var rows []UserBalance
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("user_id, currency, SUM(amount) AS balance").
		Where("status = ?", enums.LedgerEntryStatusAvailable).
		Group("user_id, currency").
		Having("SUM(amount) < 0").
		Order("user_id, currency").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) AvailableBalance(ctx context.Context, userID uuid.UUID, currency enums.Currency) (int64, error) {
	var balance int64
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND currency = ? AND status = ?", userID, currency, enums.LedgerEntryStatusAvailable).
		Scan(&balance).Error; err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *repository) SumForOrder(ctx context.Context, orderID uuid.UUID, role enums.LedgerRole, status enums.LedgerEntryStatus) (int64, error) {
	var sum int64
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("order_id = ? AND role = ? AND status = ?", orderID, role, status).
		Scan(&sum).Error; err != nil {
		return 0, err
	}
	return sum, nil
}
