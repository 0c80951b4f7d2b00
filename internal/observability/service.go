// Package observability serves the read-only operator views: snapshot, trace and audit queries.
package observability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowledger/internal/audit"
	"github.com/angelmondragon/escrowledger/internal/ledger"
	"github.com/angelmondragon/escrowledger/internal/orders"
	"github.com/angelmondragon/escrowledger/internal/payouts"
	"github.com/angelmondragon/escrowledger/pkg/db/models"
	"github.com/angelmondragon/escrowledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowledger/pkg/errors"
	"github.com/angelmondragon/escrowledger/pkg/money"
	"github.com/angelmondragon/escrowledger/pkg/pagination"
)

// Service exposes the operator read model.
type Service interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
	Trace(ctx context.Context, id string) (*Trace, error)
	QueryAudit(ctx context.Context, query AuditQuery) (*ListResult, error)
	Aggregate(ctx context.Context, filter ledger.AggregateFilter) ([]ledger.AggregateRow, error)
}

type ServiceParams struct {
	Ledger  ledger.Service
	Entries ledger.Repository
	Payouts payouts.Repository
	Orders  orders.Repository
	Audit   audit.Repository
}

type service struct {
	ledger  ledger.Service
	entries ledger.Repository
	payouts payouts.Repository
	orders  orders.Repository
	audit   audit.Repository
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Entries == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &service{
		ledger:  params.Ledger,
		entries: params.Entries,
		payouts: params.Payouts,
		orders:  params.Orders,
		audit:   params.Audit,
		now:     time.Now,
	}, nil
}

// Snapshot reports escrow_held as the sum of seller-role locked entries, which is
// escrow locks net of releases and of reservations still held.
func (s *service) Snapshot(ctx context.Context) (*Snapshot, error) {
	held, err := s.sumByCurrency(ctx, enums.LedgerEntryStatusLocked)
	if err != nil {
		return nil, err
	}
	available, err := s.sumByCurrency(ctx, enums.LedgerEntryStatusAvailable)
	if err != nil {
		return nil, err
	}
	totals, err := s.entries.CurrencyTotals(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger by currency")
	}
	ledgerTotals := make(map[enums.Currency]int64, len(totals))
	for _, total := range totals {
		ledgerTotals[total.Currency] = total.Total
	}

	seen := map[enums.Currency]struct{}{}
	for _, m := range []map[enums.Currency]int64{held, available, ledgerTotals} {
		for currency := range m {
			seen[currency] = struct{}{}
		}
	}
	currencies := make([]enums.Currency, 0, len(seen))
	for currency := range seen {
		currencies = append(currencies, currency)
	}
	sort.Slice(currencies, func(i, j int) bool { return currencies[i] < currencies[j] })

	counts, err := s.payouts.CountByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count payouts")
	}
	payoutCounts := make(map[enums.PayoutStatus]int64, len(enums.AllPayoutStatuses()))
	for _, status := range enums.AllPayoutStatuses() {
		payoutCounts[status] = 0
	}
	for _, row := range counts {
		payoutCounts[row.Status] = row.Count
	}

	snapshot := &Snapshot{
		GeneratedAt:  s.now().UTC(),
		Currencies:   make([]CurrencySnapshot, 0, len(currencies)),
		PayoutCounts: payoutCounts,
	}
	for _, currency := range currencies {
		snapshot.Currencies = append(snapshot.Currencies, CurrencySnapshot{
			Currency:        currency,
			EscrowHeld:      money.NewAmount(held[currency], currency),
			SellerAvailable: money.NewAmount(available[currency], currency),
			LedgerTotal:     money.NewAmount(ledgerTotals[currency], currency),
		})
	}
	return snapshot, nil
}

func (s *service) sumByCurrency(ctx context.Context, status enums.LedgerEntryStatus) (map[enums.Currency]int64, error) {
	rows, err := s.ledger.Aggregate(ctx, ledger.AggregateFilter{
		GroupBy: ledger.GroupByCurrency,
		Role:    enums.LedgerRoleSeller,
		Status:  status,
	})
	if err != nil {
		return nil, err
	}
	out := make(map[enums.Currency]int64, len(rows))
	for _, row := range rows {
		out[enums.Currency(row.GroupKey)] = row.Total
	}
	return out, nil
}

// Trace accepts a payout id or an order id. Unknown or malformed ids yield Found=false.
func (s *service) Trace(ctx context.Context, id string) (*Trace, error) {
	id = strings.TrimSpace(id)
	trace := &Trace{ID: id, Events: []TraceEvent{}}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return trace, nil
	}

	payout, err := s.payouts.FindByID(ctx, parsed)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}

	var orderID uuid.UUID
	if payout != nil {
		orderID = payout.OrderID
	} else {
		orderID = parsed
		payout, err = s.payouts.FindByOrderID(ctx, parsed)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout by order")
		}
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	entries, err := s.traceEntries(ctx, orderID, payout)
	if err != nil {
		return nil, err
	}

	if payout == nil && order == nil && len(entries) == 0 {
		return trace, nil
	}
	trace.Found = true
	trace.OrderID = &orderID

	if order != nil {
		trace.Events = append(trace.Events, TraceEvent{
			At:      order.CreatedAt,
			Kind:    EventOrderCreated,
			RefID:   order.ID.String(),
			Summary: fmt.Sprintf("order created for %s %s", money.FormatMajor(order.TotalAmount, order.Currency), order.Currency),
			Data:    order,
		})
	}
	for i := range entries {
		entry := entries[i]
		trace.Events = append(trace.Events, TraceEvent{
			At:      entry.CreatedAt,
			Kind:    EventLedgerEntry,
			RefID:   entry.ID.String(),
			Summary: fmt.Sprintf("%s %s %d %s (%s)", entry.Role, entry.Type, entry.Amount, entry.Currency, entry.Status),
			Data:    entry,
		})
	}

	targets := []string{orderID.String()}
	if payout != nil {
		payoutID := payout.ID
		trace.PayoutID = &payoutID
		trace.Payout = payout
		targets = append(targets, payoutID.String())

		history, err := s.payouts.ListHistory(ctx, payoutID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout history")
		}
		for i := range history {
			h := history[i]
			kind := EventPayoutStatus
			summary := fmt.Sprintf("payout %s -> %s by %s", h.FromStatus, h.ToStatus, h.ActorType)
			if h.FromStatus == "" {
				kind = EventPayoutCreated
				summary = fmt.Sprintf("payout created as %s", h.ToStatus)
			}
			trace.Events = append(trace.Events, TraceEvent{
				At:      h.CreatedAt,
				Kind:    kind,
				RefID:   h.ID.String(),
				Summary: summary,
				Data:    h,
			})
		}
	}

	logs, err := s.traceAudit(ctx, targets, payout)
	if err != nil {
		return nil, err
	}
	for i := range logs {
		row := logs[i]
		trace.Events = append(trace.Events, TraceEvent{
			At:      row.CreatedAt,
			Kind:    EventAudit,
			RefID:   row.ID.String(),
			Summary: fmt.Sprintf("%s %s", row.Action, row.Outcome),
			Data:    row,
		})
	}

	sort.SliceStable(trace.Events, func(i, j int) bool {
		return trace.Events[i].At.Before(trace.Events[j].At)
	})
	return trace, nil
}

func (s *service) traceEntries(ctx context.Context, orderID uuid.UUID, payout *models.Payout) ([]models.LedgerEntry, error) {
	entries, err := s.entries.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order entries")
	}
	if payout == nil {
		return entries, nil
	}
	linked, err := s.entries.ListByMetadataRef(ctx, "payout_id", payout.ID.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payout entries")
	}
	seen := make(map[uuid.UUID]struct{}, len(entries))
	for _, entry := range entries {
		seen[entry.ID] = struct{}{}
	}
	for _, entry := range linked {
		if _, ok := seen[entry.ID]; ok {
			continue
		}
		seen[entry.ID] = struct{}{}
		entries = append(entries, entry)
	}
	return entries, nil
}

// traceAudit merges rows targeting the order or payout with rows that only
// reference the payout, such as anchored corrections.
func (s *service) traceAudit(ctx context.Context, targets []string, payout *models.Payout) ([]models.AuditLog, error) {
	logs, err := s.audit.ListByTarget(ctx, targets...)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit logs")
	}
	if payout == nil {
		return logs, nil
	}
	related, err := s.audit.ListByPayoutRef(ctx, payout.ID.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list related audit logs")
	}
	seen := make(map[uuid.UUID]struct{}, len(logs))
	for _, row := range logs {
		seen[row.ID] = struct{}{}
	}
	for _, row := range related {
		if _, ok := seen[row.ID]; ok {
			continue
		}
		seen[row.ID] = struct{}{}
		logs = append(logs, row)
	}
	return logs, nil
}

func (s *service) QueryAudit(ctx context.Context, query AuditQuery) (*ListResult, error) {
	if query.TargetType != "" && !query.TargetType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target_type")
	}
	if query.Outcome != "" && !query.Outcome.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid outcome")
	}
	if query.Limit < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "limit must be positive")
	}
	if query.CreatedFrom != nil && query.CreatedTo != nil && !query.CreatedFrom.Before(*query.CreatedTo) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "created_from must be before created_to")
	}
	cursor, err := pagination.ParseCursor(query.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	items, next, err := s.audit.List(ctx, audit.Query{
		Action:      query.Action,
		ActorID:     query.ActorID,
		TargetType:  query.TargetType,
		TargetID:    strings.TrimSpace(query.TargetID),
		Outcome:     query.Outcome,
		ErrorCode:   strings.TrimSpace(query.ErrorCode),
		CreatedFrom: query.CreatedFrom,
		CreatedTo:   query.CreatedTo,
		Limit:       query.Limit,
		Cursor:      cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit logs")
	}

	result := &ListResult{Items: items}
	if result.Items == nil {
		result.Items = []models.AuditLog{}
	}
	if next != nil {
		result.Cursor = next.Encode()
	}
	return result, nil
}

func (s *service) Aggregate(ctx context.Context, filter ledger.AggregateFilter) ([]ledger.AggregateRow, error) {
	return s.ledger.Aggregate(ctx, filter)
}
