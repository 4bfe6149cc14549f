package sqldb

import "context"

// Tx Transaction
type Tx interface {
	Handle
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// WithTx runs fn in a transaction, committing on nil and rolling back otherwise
func WithTx(ctx context.Context, c Client, fn func(tx Tx) error) error {
	tx, err := c.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
