package payouts

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/escrowledger/pkg/enums"
)

// Actor identifies who drives a transition.
type Actor struct {
	ID   *uuid.UUID
	Type enums.ActorType
}

// SystemActor is the actor for scheduler-driven transitions.
func SystemActor() Actor {
	return Actor{Type: enums.ActorTypeSystem}
}

// AdminActor is the actor for a privileged operator.
func AdminActor(id uuid.UUID) Actor {
	return Actor{ID: &id, Type: enums.ActorTypeAdmin}
}

// CreateInput is what the fulfillment flow supplies when an order's earnings become payable.
type CreateInput struct {
	OrderID        uuid.UUID
	SellerID       uuid.UUID
	Amount         int64
	Currency       enums.Currency
	ApprovedBy     *uuid.UUID
	IdempotencyKey string
}

// StatusUpdate carries the optional columns written together with a status flip.
type StatusUpdate struct {
	ReservationRef *string
	FailureCode    *string
	FailureReason  *string
	ApprovedBy     *uuid.UUID
}

// StatusCount is one row of payouts grouped by status.
type StatusCount struct {
	Status enums.PayoutStatus `json:"status"`
	Count  int64              `json:"count"`
}
