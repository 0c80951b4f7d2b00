package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrowledger/pkg/enums"
)

type contextKey int

const (
	operatorKey contextKey = iota
	idempotencyKey
)

// Operator is the authenticated back-office identity behind a request.
type Operator struct {
	ID   uuid.UUID
	Role enums.OperatorRole
}

func WithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}

func OperatorFromContext(ctx context.Context) (Operator, bool) {
	if ctx == nil {
		return Operator{}, false
	}
	op, ok := ctx.Value(operatorKey).(Operator)
	return op, ok
}

// ActorIDFromContext returns the operator id, or nil outside an authenticated request.
func ActorIDFromContext(ctx context.Context) *uuid.UUID {
	op, ok := OperatorFromContext(ctx)
	if !ok || op.ID == uuid.Nil {
		return nil
	}
	id := op.ID
	return &id
}

func IdempotencyKeyFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	key, _ := ctx.Value(idempotencyKey).(string)
	return key
}
