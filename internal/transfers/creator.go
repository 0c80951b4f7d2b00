// Package transfers moves realised seller earnings to the payment provider.
package transfers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrowledger/pkg/enums"
)

// Request describes one outbound transfer. IdempotencyKey must be stable for
// the payout so a retried call never moves money twice.
type Request struct {
	SellerID       uuid.UUID
	Amount         int64
	Currency       enums.Currency
	IdempotencyKey string
	OrderID        uuid.UUID
}

// Creator is the only capability the payout flow needs from a provider.
type Creator interface {
	CreateTransfer(ctx context.Context, req Request) (string, error)
}

// CreatorFunc adapts a function to Creator.
type CreatorFunc func(ctx context.Context, req Request) (string, error)

func (f CreatorFunc) CreateTransfer(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// PermanentError marks a transfer that will fail again if retried unchanged.
type PermanentError struct {
	Code string
	Err  error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent transfer failure (%s): %v", e.Code, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError carrying code.
func Permanent(code string, err error) error {
	if err == nil {
		err = errors.New(code)
	}
	return &PermanentError{Code: code, Err: err}
}

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

// FailureCode returns the permanent failure code carried by err, if any.
func FailureCode(err error) string {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return perm.Code
	}
	return ""
}

func validate(req Request) error {
	switch {
	case req.SellerID == uuid.Nil:
		return Permanent("invalid_request", errors.New("seller id required"))
	case req.Amount <= 0:
		return Permanent("invalid_request", errors.New("amount must be positive"))
	case !req.Currency.IsValid():
		return Permanent("invalid_request", fmt.Errorf("invalid currency %q", req.Currency))
	case req.IdempotencyKey == "":
		return Permanent("invalid_request", errors.New("idempotency key required"))
	}
	return nil
}
