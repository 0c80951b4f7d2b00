package transfers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowledger/pkg/db/models"
)

// AccountRepository looks up a seller's connected account at a provider.
type AccountRepository interface {
	FindBySeller(ctx context.Context, sellerID uuid.UUID, provider string) (*models.SellerPayoutAccount, error)
}

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) FindBySeller(ctx context.Context, sellerID uuid.UUID, provider string) (*models.SellerPayoutAccount, error) {
	var account models.SellerPayoutAccount
	if err := r.db.WithContext(ctx).
		Where("seller_id = ? AND provider = ?", sellerID, provider).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}
