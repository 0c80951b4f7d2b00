package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrowledger/pkg/enums"
)

// Order is the fulfillment-owned order row. This service only reads it.
type Order struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	BuyerID     uuid.UUID      `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	SellerID    uuid.UUID      `gorm:"column:seller_id;type:uuid;not null" json:"seller_id"`
	TotalAmount int64          `gorm:"column:total_amount;not null" json:"total_amount"`
	Currency    enums.Currency `gorm:"column:currency;type:text;not null" json:"currency"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"created_at"`
}

// TableName implements gorm's tabler.
func (Order) TableName() string { return "orders" }
