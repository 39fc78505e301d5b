package store

import (
	"context"
	"fmt"
)

// Tx is a scoped transaction handle. It exposes the mutation helpers a
// lifecycle transition needs; the surrounding WithTx call guarantees
// commit-or-rollback on every exit path.
type Tx struct {
	tx querier
}

// WithTx runs fn inside a transaction. If fn returns an error or
// panics, the transaction is rolled back and the error propagated;
// otherwise it is committed.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	done := false
	defer func() {
		if !done {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	done = true
	return nil
}
