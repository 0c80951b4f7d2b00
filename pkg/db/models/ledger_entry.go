package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowledger/pkg/enums"
	"github.com/angelmondragon/escrowledger/pkg/types"
)

// LedgerEntry records an immutable signed money movement. Corrections are new rows, never edits.
type LedgerEntry struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ExternalID string                  `gorm:"column:external_id;type:text;not null;uniqueIndex:ux_ledger_entries_external_id" json:"external_id"`
	UserID     uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Role       enums.LedgerRole        `gorm:"column:role;type:text;not null" json:"role"`
	Type       enums.LedgerEntryType   `gorm:"column:type;type:text;not null;index" json:"type"`
	Amount     int64                   `gorm:"column:amount;not null" json:"amount"`
	Currency   enums.Currency          `gorm:"column:currency;type:text;not null" json:"currency"`
	Status     enums.LedgerEntryStatus `gorm:"column:status;type:text;not null" json:"status"`
	OrderID    *uuid.UUID              `gorm:"column:order_id;type:uuid;index" json:"order_id,omitempty"`
	Metadata   types.Metadata          `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName implements gorm's tabler.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// BeforeCreate assigns both identifiers once; neither is ever reassigned.
func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.ExternalID == "" {
		e.ExternalID = uuid.NewString()
	}
	return nil
}
