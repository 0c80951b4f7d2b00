package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowledger/pkg/enums"
)

// PayoutHistory is one append-only status change of a payout.
type PayoutHistory struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PayoutID   uuid.UUID          `gorm:"column:payout_id;type:uuid;not null;index" json:"payout_id"`
	FromStatus enums.PayoutStatus `gorm:"column:from_status;type:text" json:"from_status,omitempty"`
	ToStatus   enums.PayoutStatus `gorm:"column:to_status;type:text;not null" json:"to_status"`
	ActorID    *uuid.UUID         `gorm:"column:actor_id;type:uuid" json:"actor_id,omitempty"`
	ActorType  enums.ActorType    `gorm:"column:actor_type;type:text;not null" json:"actor_type"`
	Note       *string            `gorm:"column:note;type:text" json:"note,omitempty"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName implements gorm's tabler.
func (PayoutHistory) TableName() string { return "payout_history" }

func (h *PayoutHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
