package remediation

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrowledger/pkg/enums"
)

// ForceTransitionInput asks to move a stuck payout to FAILED or CANCELLED.
type ForceTransitionInput struct {
	AdminID        uuid.UUID
	PayoutID       uuid.UUID
	TargetStatus   enums.PayoutStatus
	Justification  string
	IdempotencyKey string
}

// Anchors tie a correction to the record that motivated it. At least one must be set.
type Anchors struct {
	PayoutID      string `json:"payout_id,omitempty"`
	LedgerEntryID string `json:"ledger_entry_id,omitempty"`
	ExternalRef   string `json:"external_ref,omitempty"`
}

func (a Anchors) trimmed() Anchors {
	return Anchors{
		PayoutID:      strings.TrimSpace(a.PayoutID),
		LedgerEntryID: strings.TrimSpace(a.LedgerEntryID),
		ExternalRef:   strings.TrimSpace(a.ExternalRef),
	}
}

// Empty reports whether no anchor carries a non-blank value.
func (a Anchors) Empty() bool {
	t := a.trimmed()
	return t.PayoutID == "" && t.LedgerEntryID == "" && t.ExternalRef == ""
}

// CorrectionInput asks for one corrective ledger entry.
type CorrectionInput struct {
	AdminID        uuid.UUID
	TargetUserID   uuid.UUID
	Role           enums.LedgerRole
	Type           enums.LedgerEntryType
	Amount         int64
	Currency       enums.Currency
	OrderID        *uuid.UUID
	Justification  string
	Anchors        Anchors
	IdempotencyKey string
}

// AnomalyInput marks an anomaly as reviewed without touching financial data.
type AnomalyInput struct {
	AdminID        uuid.UUID
	TargetType     enums.AuditTargetType
	TargetID       string
	Note           string
	IdempotencyKey string
}

// ForceTransitionResult is stored with the SUCCESS audit row and returned on replay.
type ForceTransitionResult struct {
	AuditID            uuid.UUID          `json:"audit_id"`
	PayoutID           uuid.UUID          `json:"payout_id"`
	FromStatus         enums.PayoutStatus `json:"from_status"`
	ToStatus           enums.PayoutStatus `json:"to_status"`
	ReversalEntryID    *uuid.UUID         `json:"reversal_entry_id,omitempty"`
	ReversalExternalID string             `json:"reversal_external_id,omitempty"`
	Replayed           bool               `json:"replayed"`
}

type CorrectionResult struct {
	AuditID               uuid.UUID             `json:"audit_id"`
	EntryID               uuid.UUID             `json:"entry_id"`
	ExternalID            string                `json:"external_id"`
	UserID                uuid.UUID             `json:"user_id"`
	Type                  enums.LedgerEntryType `json:"type"`
	Amount                int64                 `json:"amount"`
	Currency              enums.Currency        `json:"currency"`
	AvailableBalance      int64                 `json:"available_balance"`
	CausedNegativeBalance bool                  `json:"caused_negative_balance"`
	Replayed              bool                  `json:"replayed"`
}

type AnomalyResult struct {
	AuditID    uuid.UUID             `json:"audit_id"`
	TargetType enums.AuditTargetType `json:"target_type"`
	TargetID   string                `json:"target_id"`
	Replayed   bool                  `json:"replayed"`
}
