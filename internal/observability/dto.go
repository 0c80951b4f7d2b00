package observability

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrowledger/pkg/db/models"
	"github.com/angelmondragon/escrowledger/pkg/enums"
	"github.com/angelmondragon/escrowledger/pkg/money"
)

// CurrencySnapshot holds the escrow figures of one currency.
type CurrencySnapshot struct {
	Currency        enums.Currency `json:"currency"`
	EscrowHeld      money.Amount   `json:"escrow_held"`
	SellerAvailable money.Amount   `json:"seller_available"`
	LedgerTotal     money.Amount   `json:"ledger_total"`
}

// Snapshot is the point-in-time view served to operators.
type Snapshot struct {
	GeneratedAt  time.Time                    `json:"generated_at"`
	Currencies   []CurrencySnapshot           `json:"currencies"`
	PayoutCounts map[enums.PayoutStatus]int64 `json:"payout_counts"`
}

// EventKind labels a trace milestone.
type EventKind string

const (
	EventOrderCreated  EventKind = "order_created"
	EventLedgerEntry   EventKind = "ledger_entry"
	EventPayoutCreated EventKind = "payout_created"
	EventPayoutStatus  EventKind = "payout_status"
	EventAudit         EventKind = "audit"
)

// TraceEvent is one milestone in the life of an order or payout.
type TraceEvent struct {
	At      time.Time `json:"at"`
	Kind    EventKind `json:"kind"`
	RefID   string    `json:"ref_id"`
	Summary string    `json:"summary"`
	Data    any       `json:"data,omitempty"`
}

// Trace is the chronological story of one order or payout.
type Trace struct {
	ID       string         `json:"id"`
	Found    bool           `json:"found"`
	OrderID  *uuid.UUID     `json:"order_id,omitempty"`
	PayoutID *uuid.UUID     `json:"payout_id,omitempty"`
	Payout   *models.Payout `json:"payout,omitempty"`
	Events   []TraceEvent   `json:"events"`
}

// AuditQuery filters the audit log. Cursor is the opaque string from a previous page.
type AuditQuery struct {
	Action      enums.AuditAction
	ActorID     *uuid.UUID
	TargetType  enums.AuditTargetType
	TargetID    string
	Outcome     enums.AuditOutcome
	ErrorCode   string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Cursor      string
}

// ListResult is one page of audit rows.
type ListResult struct {
	Items  []models.AuditLog `json:"items"`
	Cursor string            `json:"cursor,omitempty"`
}
