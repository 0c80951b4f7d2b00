package models

import (
	"time"

	"github.com/google/uuid"
)

// SellerPayoutAccount maps a seller to their connected account at the payment provider.
type SellerPayoutAccount struct {
	SellerID          uuid.UUID `gorm:"column:seller_id;type:uuid;primaryKey"`
	Provider          string    `gorm:"column:provider;type:text;primaryKey"`
	ProviderAccountID string    `gorm:"column:provider_account_id;type:text;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName implements gorm's tabler.
func (SellerPayoutAccount) TableName() string { return "seller_payout_accounts" }
