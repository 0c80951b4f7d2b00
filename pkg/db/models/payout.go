package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowledger/pkg/enums"
)

// Payout tracks the transfer of one order's seller earnings.
type Payout struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID        uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_payouts_order_id" json:"order_id"`
	SellerID       uuid.UUID          `gorm:"column:seller_id;type:uuid;not null;index" json:"seller_id"`
	ApprovedBy     *uuid.UUID         `gorm:"column:approved_by;type:uuid" json:"approved_by,omitempty"`
	Amount         int64              `gorm:"column:amount;not null" json:"amount"`
	Currency       enums.Currency     `gorm:"column:currency;type:text;not null" json:"currency"`
	Status         enums.PayoutStatus `gorm:"column:status;type:text;not null;index" json:"status"`
	TransferRef    *string            `gorm:"column:transfer_ref;type:text" json:"transfer_ref,omitempty"`
	ReservationRef *string            `gorm:"column:reservation_ref;type:text;index" json:"reservation_ref,omitempty"`
	IdempotencyKey *string            `gorm:"column:idempotency_key;type:text;uniqueIndex:ux_payouts_idempotency_key" json:"idempotency_key,omitempty"`
	FailureCode    *string            `gorm:"column:failure_code;type:text" json:"failure_code,omitempty"`
	FailureReason  *string            `gorm:"column:failure_reason;type:text" json:"failure_reason,omitempty"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName implements gorm's tabler.
func (Payout) TableName() string { return "payouts" }

// BeforeCreate assigns the externally stable payout id.
func (p *Payout) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// HasTransferRef reports whether a provider transfer reference was stored.
func (p *Payout) HasTransferRef() bool {
	return p != nil && p.TransferRef != nil && *p.TransferRef != ""
}
