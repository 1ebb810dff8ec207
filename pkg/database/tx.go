package database

import (
	"context"
	"fmt"
)

// CommitError reports a COMMIT that did not succeed. The transaction may or may
// not have been applied by the server.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit failed: %v", e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// WithPool returns ctx bound to the pool for single-statement reads.
func (db *DB) WithPool(ctx context.Context) context.Context {
	return SetQuerier(ctx, db.Pool)
}

// WithTx runs fn inside a transaction bound to the context passed to fn.
// The transaction is rolled back when fn returns an error. A failed COMMIT is
// returned as *CommitError.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// No-op once committed.
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(SetQuerier(ctx, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return &CommitError{Err: err}
	}
	return nil
}
