package enums

import "testing"

func TestLedgerEntryTypeSignConventions(t *testing.T) {
	tests := []struct {
		typ     LedgerEntryType
		amount  int64
		allowed bool
	}{
		{LedgerEntryTypeEscrowLock, -100, true},
		{LedgerEntryTypeEscrowLock, 100, true},
		{LedgerEntryTypeEscrowReleaseDebit, -100, true},
		{LedgerEntryTypeEscrowReleaseDebit, 100, false},
		{LedgerEntryTypeEscrowReleaseCredit, 100, true},
		{LedgerEntryTypePayoutReservation, -100, true},
		{LedgerEntryTypePayoutReservation, 100, false},
		{LedgerEntryTypePayout, 100, true},
		{LedgerEntryTypePayoutFailReversal, 100, true},
		{LedgerEntryTypePayoutFailReversal, -100, false},
		{LedgerEntryTypeAdminCorrectionCredit, 1, true},
		{LedgerEntryTypeAdminCorrectionCredit, -1, false},
		{LedgerEntryTypeAdminCorrectionDebit, -1, true},
		{LedgerEntryTypeAdminCorrectionDebit, 1, false},
		{LedgerEntryTypePayoutClearing, 100, true},
		{LedgerEntryTypePayoutClearing, -100, true},
	}
	for _, tt := range tests {
		if got := tt.typ.AllowsAmount(tt.amount); got != tt.allowed {
			t.Fatalf("%s with %d: expected %v got %v", tt.typ, tt.amount, tt.allowed, got)
		}
		if tt.typ.AllowsAmount(0) {
			t.Fatalf("%s must reject zero", tt.typ)
		}
	}
}

func TestParseLedgerEntryTypeRejectsUnknown(t *testing.T) {
	if _, err := ParseLedgerEntryType("refund"); err == nil {
		t.Fatal("expected unknown type to fail")
	}
	if typ, err := ParseLedgerEntryType("payout"); err != nil || typ != LedgerEntryTypePayout {
		t.Fatalf("expected payout, got %v %v", typ, err)
	}
}

func TestPayoutStatusTerminal(t *testing.T) {
	terminal := map[PayoutStatus]bool{
		PayoutStatusPending:    false,
		PayoutStatusProcessing: false,
		PayoutStatusCompleted:  true,
		PayoutStatusFailed:     true,
		PayoutStatusCancelled:  true,
	}
	for status, want := range terminal {
		if status.IsTerminal() != want {
			t.Fatalf("%s terminal expected %v", status, want)
		}
	}
}

func TestParseCurrencyNormalizes(t *testing.T) {
	c, err := ParseCurrency(" usd ")
	if err != nil || c != CurrencyUSD {
		t.Fatalf("expected USD, got %q %v", c, err)
	}
	for _, bad := range []string{"", "US", "USDT", "U$D"} {
		if _, err := ParseCurrency(bad); err == nil {
			t.Fatalf("expected %q to fail", bad)
		}
	}
}

func TestViolationSeverity(t *testing.T) {
	if ViolationGlobalImbalance.Severity() != SeverityCritical {
		t.Fatal("imbalance must be critical")
	}
	if ViolationOrphanedReservation.Severity() != SeverityHigh {
		t.Fatal("orphaned reservation is high")
	}
}
