package db

import (
	"context"

	"gorm.io/gorm"
)

// TxRunner runs fn inside one atomic unit. Every multi-entity write in the
// ledger core goes through a TxRunner; there is no implicit transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

var _ TxRunner = (*Client)(nil)

// DirectRunner is the no-op runner for stores that cannot open a transaction.
// Writes are applied one by one and the first failure is returned as-is, so a
// caller never observes success unless every write inside fn succeeded.
type DirectRunner struct {
	conn *gorm.DB
}

var _ TxRunner = DirectRunner{}

func NewDirectRunner(conn *gorm.DB) DirectRunner {
	return DirectRunner{conn: conn}
}

func (r DirectRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(r.conn.WithContext(ctx))
}
