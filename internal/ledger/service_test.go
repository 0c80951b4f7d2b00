package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowledger/pkg/db/models"
	"github.com/angelmondragon/escrowledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/escrowledger/pkg/errors"
	"github.com/angelmondragon/escrowledger/pkg/types"
)

type fakeRepository struct {
	created   []models.LedgerEntry
	createFn  func(ctx context.Context, entry *models.LedgerEntry) error
	byOrder   []models.LedgerEntry
	lockedSum int64
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	if f.createFn != nil {
		if err := f.createFn(ctx, entry); err != nil {
			return err
		}
	}
	entry.ID = uuid.New()
	entry.ExternalID = uuid.NewString()
	f.created = append(f.created, *entry)
	return nil
}

func (f *fakeRepository) FindByID(context.Context, uuid.UUID) (*models.LedgerEntry, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) FindByExternalID(context.Context, string) (*models.LedgerEntry, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepository) ListByOrder(context.Context, uuid.UUID) ([]models.LedgerEntry, error) {
	return f.byOrder, nil
}

func (f *fakeRepository) ListByMetadataRef(context.Context, string, string) ([]models.LedgerEntry, error) {
	return nil, nil
}

func (f *fakeRepository) ListByTypeBefore(context.Context, enums.LedgerEntryType, time.Time) ([]models.LedgerEntry, error) {
	return nil, nil
}

func (f *fakeRepository) Aggregate(context.Context, AggregateFilter) ([]AggregateRow, error) {
	return []AggregateRow{{Total: 0, Entries: 2}}, nil
}

func (f *fakeRepository) CurrencyTotals(context.Context) ([]CurrencyTotal, error) { return nil, nil }

func (f *fakeRepository) NegativeAvailableBalances(context.Context) ([]UserBalance, error) {
	return nil, nil
}

func (f *fakeRepository) AvailableBalance(context.Context, uuid.UUID, enums.Currency) (int64, error) {
	return 0, nil
}

func (f *fakeRepository) SumForOrder(context.Context, uuid.UUID, enums.LedgerRole, enums.LedgerEntryStatus) (int64, error) {
	return f.lockedSum, nil
}

func validInput() RecordInput {
	return RecordInput{
		UserID:   uuid.New(),
		Role:     enums.LedgerRoleSeller,
		Type:     enums.LedgerEntryTypePayoutFailReversal,
		Amount:   5000,
		Currency: enums.CurrencyUSD,
		Status:   enums.LedgerEntryStatusAvailable,
		Metadata: types.Metadata{"payout_id": "p-1"},
	}
}

func newTestService(t *testing.T, repo *fakeRepository) Service {
	t.Helper()
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc
}

func TestService_RecordAssignsIdentifiers(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo)

	entry, err := svc.Record(context.Background(), &gorm.DB{}, validInput())
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if entry.ExternalID == "" || entry.ID == uuid.Nil {
		t.Fatalf("expected identifiers to be assigned: %+v", entry)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(repo.created))
	}
	if repo.created[0].Metadata.String("payout_id") != "p-1" {
		t.Fatalf("metadata not carried: %+v", repo.created[0].Metadata)
	}
}

func TestService_RecordValidation(t *testing.T) {
	tests := map[string]func(*RecordInput){
		"missing user":      func(in *RecordInput) { in.UserID = uuid.Nil },
		"unknown role":      func(in *RecordInput) { in.Role = "platform" },
		"unknown type":      func(in *RecordInput) { in.Type = "refund" },
		"zero amount":       func(in *RecordInput) { in.Amount = 0 },
		"wrong sign":        func(in *RecordInput) { in.Amount = -5000 },
		"missing currency":  func(in *RecordInput) { in.Currency = "" },
		"lowercase code":    func(in *RecordInput) { in.Currency = "usd" },
		"unknown status":    func(in *RecordInput) { in.Status = "pending" },
		"reservation plus":  func(in *RecordInput) { in.Type = enums.LedgerEntryTypePayoutReservation },
		"correction debit+": func(in *RecordInput) { in.Type = enums.LedgerEntryTypeAdminCorrectionDebit },
	}
	for name, mutate := range tests {
		repo := &fakeRepository{}
		svc := newTestService(t, repo)
		input := validInput()
		mutate(&input)

		_, err := svc.Record(context.Background(), &gorm.DB{}, input)
		if err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
		if code := pkgerrors.CodeOf(err); code != pkgerrors.CodeValidation {
			t.Fatalf("%s: expected validation code, got %s", name, code)
		}
		if len(repo.created) != 0 {
			t.Fatalf("%s: rejected entry must not be written", name)
		}
	}
}

func TestService_RecordPostingValidatesAllBeforeWriting(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo)

	bad := validInput()
	bad.Amount = 0
	_, err := svc.RecordPosting(context.Background(), &gorm.DB{}, validInput(), bad)
	if err == nil {
		t.Fatal("expected posting with an invalid leg to fail")
	}
	if len(repo.created) != 0 {
		t.Fatalf("no leg may be written when any leg is invalid, got %d", len(repo.created))
	}
	details, _ := pkgerrors.As(err).Details().(map[string]any)
	if details["index"] != 1 {
		t.Fatalf("expected failing index 1, got %v", details)
	}
}

func TestService_RecordRequiresTransaction(t *testing.T) {
	svc := newTestService(t, &fakeRepository{})
	if _, err := svc.Record(context.Background(), nil, validInput()); err == nil {
		t.Fatal("expected nil tx to be rejected")
	}
}

func TestService_RecordWrapsPersistenceErrors(t *testing.T) {
	repo := &fakeRepository{createFn: func(context.Context, *models.LedgerEntry) error {
		return errors.New("connection reset")
	}}
	svc := newTestService(t, repo)
	_, err := svc.Record(context.Background(), &gorm.DB{}, validInput())
	if code := pkgerrors.CodeOf(err); code != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency code, got %s (%v)", code, err)
	}
}

func TestService_LockEscrowWritesBalancedPair(t *testing.T) {
	repo := &fakeRepository{}
	svc := newTestService(t, repo)
	input := EscrowInput{OrderID: uuid.New(), BuyerID: uuid.New(), SellerID: uuid.New(), Amount: 2500, Currency: "EUR"}

	entries, err := svc.LockEscrow(context.Background(), &gorm.DB{}, input)
	if err != nil {
		t.Fatalf("LockEscrow: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(entries))
	}
	var sum int64
	for _, e := range entries {
		sum += e.Amount
		if e.Type != enums.LedgerEntryTypeEscrowLock {
			t.Fatalf("unexpected type %s", e.Type)
		}
	}
	if sum != 0 {
		t.Fatalf("escrow posting must net to zero, got %d", sum)
	}
	if entries[1].Status != enums.LedgerEntryStatusLocked || entries[1].UserID != input.SellerID {
		t.Fatalf("seller leg must be locked: %+v", entries[1])
	}
}

func TestService_LockEscrowRejectsSecondLock(t *testing.T) {
	repo := &fakeRepository{byOrder: []models.LedgerEntry{{Type: enums.LedgerEntryTypeEscrowLock}}}
	svc := newTestService(t, repo)
	input := EscrowInput{OrderID: uuid.New(), BuyerID: uuid.New(), SellerID: uuid.New(), Amount: 2500, Currency: "EUR"}

	_, err := svc.LockEscrow(context.Background(), &gorm.DB{}, input)
	if code := pkgerrors.CodeOf(err); code != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %s", code)
	}
}

func TestService_ReleaseEscrowRequiresLockedFunds(t *testing.T) {
	repo := &fakeRepository{lockedSum: 1000}
	svc := newTestService(t, repo)
	input := EscrowInput{OrderID: uuid.New(), SellerID: uuid.New(), Amount: 2500, Currency: "USD"}

	if _, err := svc.ReleaseEscrow(context.Background(), &gorm.DB{}, input); pkgerrors.CodeOf(err) != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	repo.lockedSum = 2500
	entries, err := svc.ReleaseEscrow(context.Background(), &gorm.DB{}, input)
	if err != nil {
		t.Fatalf("ReleaseEscrow: %v", err)
	}
	if entries[0].Amount != -2500 || entries[1].Amount != 2500 {
		t.Fatalf("unexpected release legs: %+v", entries)
	}
	if entries[1].Status != enums.LedgerEntryStatusAvailable {
		t.Fatalf("release credit must be available")
	}
}

func TestService_AggregateRejectsUnknownGroup(t *testing.T) {
	svc := newTestService(t, &fakeRepository{})
	_, err := svc.Aggregate(context.Background(), AggregateFilter{GroupBy: "metadata"})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
