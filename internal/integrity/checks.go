package integrity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/escrowledger/internal/reservations"
	"github.com/angelmondragon/escrowledger/pkg/enums"
)

func newViolation(code enums.ViolationCode, targetType enums.AuditTargetType, targetID, message string) Violation {
	return Violation{
		Code:       code,
		Severity:   code.Severity(),
		TargetType: targetType,
		TargetID:   targetID,
		Message:    message,
	}
}

func (m *Monitor) checkGlobalImbalance(ctx context.Context, _ time.Time) ([]Violation, error) {
	totals, err := m.ledger.CurrencyTotals(ctx)
	if err != nil {
		return nil, err
	}
	var out []Violation
	for _, total := range totals {
		if total.Total == 0 {
			continue
		}
		magnitude := total.Total
		if magnitude < 0 {
			magnitude = -magnitude
		}
		v := newViolation(enums.ViolationGlobalImbalance, enums.AuditTargetCurrency, string(total.Currency),
			fmt.Sprintf("ledger for %s sums to %d instead of zero", total.Currency, total.Total))
		v.Currency = total.Currency
		v.Magnitude = magnitude
		v.SignedAmount = total.Total
		v.Details = map[string]any{"entries": total.Entries}
		out = append(out, v)
	}
	return out, nil
}

func (m *Monitor) checkNegativeAvailable(ctx context.Context, _ time.Time) ([]Violation, error) {
	balances, err := m.ledger.NegativeAvailableBalances(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Violation, 0, len(balances))
	for _, balance := range balances {
		v := newViolation(enums.ViolationNegativeAvailableBalance, enums.AuditTargetUser, balance.UserID.String(),
			fmt.Sprintf("available %s balance is %d", balance.Currency, balance.Balance))
		v.Currency = balance.Currency
		v.Magnitude = -balance.Balance
		v.SignedAmount = balance.Balance
		out = append(out, v)
	}
	return out, nil
}

func (m *Monitor) checkCompletedWithoutTransfer(ctx context.Context, _ time.Time) ([]Violation, error) {
	payouts, err := m.payouts.ListCompletedWithoutTransfer(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Violation, 0, len(payouts))
	for _, payout := range payouts {
		v := newViolation(enums.ViolationCompletedWithoutTransfer, enums.AuditTargetPayout, payout.ID.String(),
			"completed payout has no transfer reference")
		v.Currency = payout.Currency
		v.Magnitude = payout.Amount
		v.Details = map[string]any{"order_id": payout.OrderID.String(), "seller_id": payout.SellerID.String()}
		out = append(out, v)
	}
	return out, nil
}

func (m *Monitor) checkMissingReservation(ctx context.Context, _ time.Time) ([]Violation, error) {
	payouts, err := m.payouts.ListByStatus(ctx, 0, enums.PayoutStatusProcessing, enums.PayoutStatusCompleted)
	if err != nil {
		return nil, err
	}
	var (
		out  []Violation
		errs error
	)
	for _, payout := range payouts {
		ref := ""
		if payout.ReservationRef != nil {
			ref = *payout.ReservationRef
		}
		_, _, err := m.resolver.Resolve(ctx, ref)
		if err == nil {
			continue
		}
		if !errors.Is(err, reservations.ErrUnresolved) {
			errs = multierr.Append(errs, fmt.Errorf("payout %s: %w", payout.ID, err))
			continue
		}
		v := newViolation(enums.ViolationMissingReservation, enums.AuditTargetPayout, payout.ID.String(),
			fmt.Sprintf("%s payout reservation does not resolve", payout.Status))
		v.Currency = payout.Currency
		v.Magnitude = payout.Amount
		v.Details = map[string]any{"status": string(payout.Status), "reservation_ref": ref}
		out = append(out, v)
	}
	return out, errs
}

func (m *Monitor) checkOrphanedReservations(ctx context.Context, now time.Time) ([]Violation, error) {
	cutoff := now.Add(-m.cfg.OrphanAge)
	entries, err := m.ledger.ListByTypeBefore(ctx, enums.LedgerEntryTypePayoutReservation, cutoff)
	if err != nil {
		return nil, err
	}
	var (
		out  []Violation
		errs error
	)
	for _, entry := range entries {
		referenced, err := m.resolver.ReservationIsReferenced(ctx, entry)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reservation %s: %w", entry.ID, err))
			continue
		}
		if referenced {
			continue
		}
		v := newViolation(enums.ViolationOrphanedReservation, enums.AuditTargetLedgerEntry, entry.ID.String(),
			fmt.Sprintf("reservation older than %s is not referenced by any payout", m.cfg.OrphanAge))
		v.Currency = entry.Currency
		v.Magnitude = -entry.Amount
		v.SignedAmount = entry.Amount
		v.Details = map[string]any{"external_id": entry.ExternalID, "user_id": entry.UserID.String()}
		out = append(out, v)
	}
	return out, errs
}
