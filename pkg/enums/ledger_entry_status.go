package enums

import "fmt"

// LedgerEntryStatus describes where the money of an entry sits.
type LedgerEntryStatus string

const (
	LedgerEntryStatusLocked    LedgerEntryStatus = "locked"
	LedgerEntryStatusAvailable LedgerEntryStatus = "available"
	LedgerEntryStatusSettled   LedgerEntryStatus = "settled"
)

var validLedgerEntryStatuses = []LedgerEntryStatus{
	LedgerEntryStatusLocked,
	LedgerEntryStatusAvailable,
	LedgerEntryStatusSettled,
}

// String implements fmt.Stringer.
func (s LedgerEntryStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known LedgerEntryStatus.
func (s LedgerEntryStatus) IsValid() bool {
	for _, candidate := range validLedgerEntryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLedgerEntryStatus converts raw input into a LedgerEntryStatus.
func ParseLedgerEntryStatus(value string) (LedgerEntryStatus, error) {
	for _, candidate := range validLedgerEntryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry status %q", value)
}
