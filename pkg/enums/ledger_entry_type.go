package enums

import "fmt"

// LedgerEntryType is the closed set of ledger movement kinds. Each implies a sign.
type LedgerEntryType string

const (
	LedgerEntryTypeEscrowLock            LedgerEntryType = "escrow_lock"
	LedgerEntryTypeEscrowReleaseCredit   LedgerEntryType = "escrow_release_credit"
	LedgerEntryTypeEscrowReleaseDebit    LedgerEntryType = "escrow_release_debit"
	LedgerEntryTypePayoutReservation     LedgerEntryType = "payout_reservation"
	LedgerEntryTypePayout                LedgerEntryType = "payout"
	LedgerEntryTypePayoutFailReversal    LedgerEntryType = "payout_fail_reversal"
	LedgerEntryTypeAdminCorrectionCredit LedgerEntryType = "admin_correction_credit"
	LedgerEntryTypeAdminCorrectionDebit  LedgerEntryType = "admin_correction_debit"
	LedgerEntryTypePayoutClearing        LedgerEntryType = "payout_clearing"
)

// AmountSign describes the sign a ledger entry type requires.
type AmountSign int

const (
	SignEither   AmountSign = 0
	SignPositive AmountSign = 1
	SignNegative AmountSign = -1
)

var ledgerEntryTypeSigns = map[LedgerEntryType]AmountSign{
	LedgerEntryTypeEscrowLock:            SignEither,
	LedgerEntryTypeEscrowReleaseCredit:   SignPositive,
	LedgerEntryTypeEscrowReleaseDebit:    SignNegative,
	LedgerEntryTypePayoutReservation:     SignNegative,
	LedgerEntryTypePayout:                SignPositive,
	LedgerEntryTypePayoutFailReversal:    SignPositive,
	LedgerEntryTypeAdminCorrectionCredit: SignPositive,
	LedgerEntryTypeAdminCorrectionDebit:  SignNegative,
	LedgerEntryTypePayoutClearing:        SignEither,
}

// String implements fmt.Stringer.
func (t LedgerEntryType) String() string {
	return string(t)
}

// IsValid reports whether the value matches the canonical ledger entry enum.
func (t LedgerEntryType) IsValid() bool {
	_, ok := ledgerEntryTypeSigns[t]
	return ok
}

// Sign returns the sign convention for the entry type.
func (t LedgerEntryType) Sign() AmountSign {
	return ledgerEntryTypeSigns[t]
}

// AllowsAmount reports whether amount satisfies the type's sign convention.
// Zero is never allowed.
func (t LedgerEntryType) AllowsAmount(amount int64) bool {
	if amount == 0 {
		return false
	}
	switch t.Sign() {
	case SignPositive:
		return amount > 0
	case SignNegative:
		return amount < 0
	default:
		return true
	}
}

// IsAdminCorrection reports whether the type is one of the remediation correction types.
func (t LedgerEntryType) IsAdminCorrection() bool {
	return t == LedgerEntryTypeAdminCorrectionCredit || t == LedgerEntryTypeAdminCorrectionDebit
}

// ParseLedgerEntryType converts raw input into LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	t := LedgerEntryType(value)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid ledger entry type %q", value)
	}
	return t, nil
}
