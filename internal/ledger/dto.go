package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrowledger/pkg/enums"
	"github.com/angelmondragon/escrowledger/pkg/types"
)

// Metadata keys that may anchor or link an entry to another record.
const (
	MetaPayoutID      = "payout_id"
	MetaLedgerEntryID = "ledger_entry_id"
	MetaExternalRef   = "external_ref"
	MetaAuditID       = "audit_id"
)

// PayoutClearingAccountID is the platform account that holds payouts in flight.
// Every seller-side payout entry is posted against it so each posting nets to zero.
var PayoutClearingAccountID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("escrowledger/payout-clearing"))

var metadataRefKeys = map[string]struct{}{
	MetaPayoutID:      {},
	MetaLedgerEntryID: {},
	MetaExternalRef:   {},
	MetaAuditID:       {},
}

// RecordInput is a single signed movement to append.
type RecordInput struct {
	UserID   uuid.UUID
	Role     enums.LedgerRole
	Type     enums.LedgerEntryType
	Amount   int64
	Currency enums.Currency
	Status   enums.LedgerEntryStatus
	OrderID  *uuid.UUID
	Metadata types.Metadata
}

// EscrowInput describes the order whose funds are moved into or out of escrow.
type EscrowInput struct {
	OrderID  uuid.UUID
	BuyerID  uuid.UUID
	SellerID uuid.UUID
	Amount   int64
	Currency enums.Currency
}

// ClearingLeg returns the platform side of a payout posting: the same amount
// with the opposite sign, booked to the clearing account. Clearing legs are
// always settled so the platform never carries an available balance.
func ClearingLeg(seller RecordInput) RecordInput {
	return RecordInput{
		UserID:   PayoutClearingAccountID,
		Role:     enums.LedgerRolePlatform,
		Type:     enums.LedgerEntryTypePayoutClearing,
		Amount:   -seller.Amount,
		Currency: seller.Currency,
		Status:   enums.LedgerEntryStatusSettled,
		OrderID:  seller.OrderID,
		Metadata: seller.Metadata.Clone(),
	}
}

// GroupBy names the single column an aggregate is grouped by.
type GroupBy string

const (
	GroupByNone     GroupBy = ""
	GroupByType     GroupBy = "type"
	GroupByUser     GroupBy = "user_id"
	GroupByCurrency GroupBy = "currency"
	GroupByStatus   GroupBy = "status"
	GroupByRole     GroupBy = "role"
)

func (g GroupBy) column() (string, error) {
	switch g {
	case GroupByNone, GroupByType, GroupByUser, GroupByCurrency, GroupByStatus, GroupByRole:
		return string(g), nil
	}
	return "", fmt.Errorf("unsupported group_by %q", g)
}

// ParseGroupBy converts raw query input into a GroupBy.
func ParseGroupBy(value string) (GroupBy, error) {
	g := GroupBy(value)
	if _, err := g.column(); err != nil {
		return "", err
	}
	return g, nil
}

// AggregateFilter narrows an aggregate query. Zero values mean "no filter".
type AggregateFilter struct {
	GroupBy       GroupBy
	Currency      enums.Currency
	Status        enums.LedgerEntryStatus
	Type          enums.LedgerEntryType
	Role          enums.LedgerRole
	UserID        *uuid.UUID
	CreatedBefore *time.Time
}

// AggregateRow is one group of an aggregate. GroupKey is empty when ungrouped.
type AggregateRow struct {
	GroupKey string `json:"group_key"`
	Total    int64  `json:"total"`
	Entries  int64  `json:"entries"`
}

type CurrencyTotal struct {
	Currency enums.Currency `json:"currency"`
	Total    int64          `json:"total"`
	Entries  int64          `json:"entries"`
}

type UserBalance struct {
	UserID   uuid.UUID      `json:"user_id"`
	Currency enums.Currency `json:"currency"`
	Balance  int64          `json:"balance"`
}
