package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowledger/pkg/enums"
	"github.com/angelmondragon/escrowledger/pkg/types"
)

// AuditLog is an immutable record of a privileged or automated action. It doubles as the
// idempotency ledger for remediation and as the sink for integrity violations.
type AuditLog struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Action         enums.AuditAction     `gorm:"column:action;type:text;not null;uniqueIndex:ux_audit_logs_action_key,priority:1" json:"action"`
	ActorID        *uuid.UUID            `gorm:"column:actor_id;type:uuid;index" json:"actor_id,omitempty"`
	ActorType      enums.ActorType       `gorm:"column:actor_type;type:text;not null" json:"actor_type"`
	TargetType     enums.AuditTargetType `gorm:"column:target_type;type:text;not null" json:"target_type"`
	TargetID       string                `gorm:"column:target_id;type:text;not null;index" json:"target_id"`
	Outcome        enums.AuditOutcome    `gorm:"column:outcome;type:text;not null" json:"outcome"`
	ErrorCode      *string               `gorm:"column:error_code;type:text" json:"error_code,omitempty"`
	ErrorMessage   *string               `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
	Justification  *string               `gorm:"column:justification;type:text" json:"justification,omitempty"`
	IdempotencyKey *string               `gorm:"column:idempotency_key;type:text;uniqueIndex:ux_audit_logs_action_key,priority:2" json:"idempotency_key,omitempty"`
	Fingerprint    *string               `gorm:"column:fingerprint;type:text;index" json:"fingerprint,omitempty"`
	Metadata       types.Metadata        `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

// TableName implements gorm's tabler.
func (AuditLog) TableName() string { return "audit_logs" }

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
