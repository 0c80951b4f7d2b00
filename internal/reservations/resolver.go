// Package reservations resolves a payout's reservation reference to its ledger entry.
//
// Two linkage schemes coexist: legacy payouts store the reservation entry's storage
// id, current payouts store its external id. Both must keep resolving.
package reservations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/escrowledger/internal/ledger"
	"github.com/angelmondragon/escrowledger/pkg/db/models"
	"github.com/angelmondragon/escrowledger/pkg/enums"
)

// Linkage records which identifier a reservation reference matched.
type Linkage string

const (
	LinkageLegacy  Linkage = "legacy"
	LinkageCurrent Linkage = "current"
)

// ErrUnresolved is returned when a reference matches no reservation entry.
var ErrUnresolved = errors.New("reservation reference does not resolve")

// ReferenceChecker reports whether any payout stores one of refs as its reservation_ref.
type ReferenceChecker interface {
	ReservationRefExists(ctx context.Context, refs ...string) (bool, error)
}

// Resolver looks reservations up by storage id first, then by external id.
type Resolver interface {
	WithTx(tx *gorm.DB) Resolver
	Resolve(ctx context.Context, ref string) (*models.LedgerEntry, Linkage, error)
	ReservationIsReferenced(ctx context.Context, entry models.LedgerEntry) (bool, error)
}

type resolver struct {
	entries ledger.Repository
	refs    ReferenceChecker
}

// NewResolver wires a resolver over the ledger repository and the payout reference lookup.
func NewResolver(entries ledger.Repository, refs ReferenceChecker) (Resolver, error) {
	if entries == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if refs == nil {
		return nil, fmt.Errorf("reference checker required")
	}
	return &resolver{entries: entries, refs: refs}, nil
}

func (r *resolver) WithTx(tx *gorm.DB) Resolver {
	if tx == nil {
		return r
	}
	return &resolver{entries: r.entries.WithTx(tx), refs: r.refs}
}

func (r *resolver) Resolve(ctx context.Context, ref string) (*models.LedgerEntry, Linkage, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, "", ErrUnresolved
	}

	if id, err := uuid.Parse(ref); err == nil {
		entry, err := r.entries.FindByID(ctx, id)
		switch {
		case err == nil:
			if entry.Type != enums.LedgerEntryTypePayoutReservation {
				return nil, "", ErrUnresolved
			}
			return entry, LinkageLegacy, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, "", fmt.Errorf("find reservation by id: %w", err)
		}
	}

	entry, err := r.entries.FindByExternalID(ctx, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrUnresolved
		}
		return nil, "", fmt.Errorf("find reservation by external id: %w", err)
	}
	if entry.Type != enums.LedgerEntryTypePayoutReservation {
		return nil, "", ErrUnresolved
	}
	return entry, LinkageCurrent, nil
}

func (r *resolver) ReservationIsReferenced(ctx context.Context, entry models.LedgerEntry) (bool, error) {
	refs := make([]string, 0, 2)
	if entry.ID != uuid.Nil {
		refs = append(refs, entry.ID.String())
	}
	if entry.ExternalID != "" {
		refs = append(refs, entry.ExternalID)
	}
	if len(refs) == 0 {
		return false, nil
	}
	return r.refs.ReservationRefExists(ctx, refs...)
}
