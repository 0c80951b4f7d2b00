package observability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowledger/internal/audit"
	"github.com/angelmondragon/escrowledger/internal/ledger"
	"github.com/angelmondragon/escrowledger/internal/orders"
	"github.com/angelmondragon/escrowledger/internal/payouts"
	"github.com/angelmondragon/escrowledger/internal/remediation"
	"github.com/angelmondragon/escrowledger/internal/reservations"
	"github.com/angelmondragon/escrowledger/internal/testsupport"
	"github.com/angelmondragon/escrowledger/internal/transfers"
	pkgdb "github.com/angelmondragon/escrowledger/pkg/db"
	"github.com/angelmondragon/escrowledger/pkg/db/models"
	"github.com/angelmondragon/escrowledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowledger/pkg/errors"
)

type fixture struct {
	db      *gorm.DB
	ledger  ledger.Service
	payouts payouts.Service
	audit   audit.Repository
	svc     Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testsupport.OpenDB(t)
	entries := ledger.NewRepository(db)
	ledgerSvc, err := ledger.NewService(entries)
	require.NoError(t, err)
	payoutRepo := payouts.NewRepository(db)
	resolver, err := reservations.NewResolver(entries, payoutRepo)
	require.NoError(t, err)
	payoutSvc, err := payouts.NewService(payouts.ServiceParams{
		Repo:     payoutRepo,
		Tx:       pkgdb.FromConn(db),
		Ledger:   ledgerSvc,
		Escrow:   entries,
		Resolver: resolver,
		Creator:  transfers.NewSandboxCreator(),
	})
	require.NoError(t, err)
	auditRepo := audit.NewRepository(db)
	svc, err := NewService(ServiceParams{
		Ledger:  ledgerSvc,
		Entries: entries,
		Payouts: payoutRepo,
		Orders:  orders.NewRepository(db),
		Audit:   auditRepo,
	})
	require.NoError(t, err)
	return &fixture{db: db, ledger: ledgerSvc, payouts: payoutSvc, audit: auditRepo, svc: svc}
}

// order inserts an order row and locks its escrow.
func (f *fixture) order(t *testing.T, amount int64) models.Order {
	t.Helper()
	order := models.Order{
		ID:          uuid.New(),
		BuyerID:     uuid.New(),
		SellerID:    uuid.New(),
		TotalAmount: amount,
		Currency:    enums.CurrencyUSD,
		CreatedAt:   time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, f.db.Create(&order).Error)
	_, err := f.ledger.LockEscrow(context.Background(), f.db, ledger.EscrowInput{
		OrderID:  order.ID,
		BuyerID:  order.BuyerID,
		SellerID: order.SellerID,
		Amount:   amount,
		Currency: order.Currency,
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) payout(t *testing.T, order models.Order) *models.Payout {
	t.Helper()
	payout, err := f.payouts.Create(context.Background(), payouts.CreateInput{
		OrderID:  order.ID,
		SellerID: order.SellerID,
		Amount:   order.TotalAmount,
		Currency: order.Currency,
	})
	require.NoError(t, err)
	return payout
}

func TestSnapshotEscrowAndAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Currencies)
	assert.Equal(t, int64(0), empty.PayoutCounts[enums.PayoutStatusPending])

	held := f.order(t, 5000)
	failed := f.order(t, 1250)
	p := f.payout(t, failed)
	_, err = f.payouts.StartProcessing(ctx, p.ID, payouts.SystemActor())
	require.NoError(t, err)
	_, err = f.payouts.Fail(ctx, p.ID, payouts.SystemActor(), "account_closed", "closed")
	require.NoError(t, err)
	f.payout(t, held)

	snapshot, err := f.svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Currencies, 1)
	usd := snapshot.Currencies[0]
	assert.Equal(t, enums.CurrencyUSD, usd.Currency)
	assert.Equal(t, int64(5000), usd.EscrowHeld.Minor)
	assert.Equal(t, "50.00", usd.EscrowHeld.Major)
	assert.Equal(t, int64(1250), usd.SellerAvailable.Minor)
	assert.Equal(t, "12.50", usd.SellerAvailable.Major)
	assert.Equal(t, int64(0), usd.LedgerTotal.Minor)
	assert.Equal(t, int64(1), snapshot.PayoutCounts[enums.PayoutStatusPending])
	assert.Equal(t, int64(1), snapshot.PayoutCounts[enums.PayoutStatusFailed])
	assert.False(t, snapshot.GeneratedAt.IsZero())
}

func TestTraceByPayoutAndOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, 5000)
	p := f.payout(t, order)
	_, err := f.payouts.StartProcessing(ctx, p.ID, payouts.SystemActor())
	require.NoError(t, err)
	_, err = f.payouts.Complete(ctx, p.ID, payouts.SystemActor())
	require.NoError(t, err)
	require.NoError(t, f.audit.Create(ctx, &models.AuditLog{
		Action:     enums.AuditActionResolveAnomaly,
		ActorType:  enums.ActorTypeAdmin,
		TargetType: enums.AuditTargetPayout,
		TargetID:   p.ID.String(),
		Outcome:    enums.AuditOutcomeSuccess,
	}))

	byPayout, err := f.svc.Trace(ctx, p.ID.String())
	require.NoError(t, err)
	require.True(t, byPayout.Found)
	require.NotNil(t, byPayout.PayoutID)
	assert.Equal(t, p.ID, *byPayout.PayoutID)
	assert.Equal(t, order.ID, *byPayout.OrderID)
	assert.Equal(t, enums.PayoutStatusCompleted, byPayout.Payout.Status)

	kinds := map[EventKind]int{}
	for _, event := range byPayout.Events {
		kinds[event.Kind]++
	}
	assert.Equal(t, 1, kinds[EventOrderCreated])
	assert.Equal(t, 6, kinds[EventLedgerEntry])
	assert.Equal(t, 1, kinds[EventPayoutCreated])
	assert.Equal(t, 2, kinds[EventPayoutStatus])
	assert.Equal(t, 1, kinds[EventAudit])
	assert.Equal(t, EventOrderCreated, byPayout.Events[0].Kind)
	for i := 1; i < len(byPayout.Events); i++ {
		assert.False(t, byPayout.Events[i].At.Before(byPayout.Events[i-1].At), "events out of order at %d", i)
	}

	byOrder, err := f.svc.Trace(ctx, order.ID.String())
	require.NoError(t, err)
	require.True(t, byOrder.Found)
	assert.Len(t, byOrder.Events, len(byPayout.Events))
}

func TestTraceUnknownID(t *testing.T) {
	f := newFixture(t)
	trace, err := f.svc.Trace(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.False(t, trace.Found)
	assert.Empty(t, trace.Events)

	malformed, err := f.svc.Trace(context.Background(), "not-a-uuid")
	require.NoError(t, err)
	assert.False(t, malformed.Found)
	assert.Equal(t, "not-a-uuid", malformed.ID)
	assert.Empty(t, malformed.Events)
}

func TestTraceIncludesCorrectionAnchoredToPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, 2000)
	p := f.payout(t, order)

	entries := ledger.NewRepository(f.db)
	fixes, err := remediation.NewService(remediation.ServiceParams{
		Tx:      pkgdb.FromConn(f.db),
		Audit:   f.audit,
		Ledger:  f.ledger,
		Entries: entries,
		Payouts: f.payouts,
	})
	require.NoError(t, err)
	correction, err := fixes.ApplyLedgerCorrection(ctx, remediation.CorrectionInput{
		AdminID:        uuid.New(),
		TargetUserID:   order.SellerID,
		Type:           enums.LedgerEntryTypeAdminCorrectionCredit,
		Amount:         150,
		Currency:       enums.CurrencyUSD,
		Justification:  "shipping refund owed to seller",
		Anchors:        remediation.Anchors{PayoutID: p.ID.String()},
		IdempotencyKey: "trace-anchor",
	})
	require.NoError(t, err)

	trace, err := f.svc.Trace(ctx, p.ID.String())
	require.NoError(t, err)
	require.True(t, trace.Found)

	var audits []string
	for _, event := range trace.Events {
		if event.Kind == EventAudit {
			audits = append(audits, event.RefID)
		}
	}
	assert.Equal(t, []string{correction.AuditID.String()}, audits)
}

func TestQueryAuditPagesWithCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		code := "GLOBAL_IMBALANCE"
		require.NoError(t, f.audit.Create(ctx, &models.AuditLog{
			Action:     enums.AuditActionIntegrityViolation,
			ActorType:  enums.ActorTypeSystem,
			TargetType: enums.AuditTargetCurrency,
			TargetID:   "USD",
			Outcome:    enums.AuditOutcomeFailure,
			ErrorCode:  &code,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, f.audit.Create(ctx, &models.AuditLog{
		Action:     enums.AuditActionResolveAnomaly,
		ActorType:  enums.ActorTypeAdmin,
		TargetType: enums.AuditTargetViolation,
		TargetID:   "x",
		Outcome:    enums.AuditOutcomeSuccess,
	}))

	first, err := f.svc.QueryAudit(ctx, AuditQuery{Action: enums.AuditActionIntegrityViolation, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.Cursor)
	assert.True(t, first.Items[0].CreatedAt.After(first.Items[1].CreatedAt))

	second, err := f.svc.QueryAudit(ctx, AuditQuery{Action: enums.AuditActionIntegrityViolation, Limit: 2, Cursor: first.Cursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.Cursor)

	byOutcome, err := f.svc.QueryAudit(ctx, AuditQuery{Outcome: enums.AuditOutcomeSuccess})
	require.NoError(t, err)
	assert.Len(t, byOutcome.Items, 1)
}

func TestQueryAuditValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.QueryAudit(ctx, AuditQuery{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.QueryAudit(ctx, AuditQuery{Outcome: "MAYBE"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.QueryAudit(ctx, AuditQuery{TargetType: "planet"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	empty, err := f.svc.QueryAudit(ctx, AuditQuery{})
	require.NoError(t, err)
	assert.NotNil(t, empty.Items)
}

func TestAggregateRejectsUnknownGroup(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Aggregate(context.Background(), ledger.AggregateFilter{GroupBy: "planet"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
