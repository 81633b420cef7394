// ABOUTME: Unit of work wrapping one database transaction.
// ABOUTME: Savepoints isolate per-metric and per-workout failures inside it.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
)

// Tx is one atomic unit of work. It is not safe for concurrent use.
type Tx struct {
	tx       *sql.Tx
	dialect  *Dialect
	observer Observer
	margin   float64
	done     bool
}

// Begin starts a unit of work. The transaction is aborted when ctx ends.
func (d *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx, dialect: d.dialect, observer: d.observer, margin: d.margin}, nil
}

// Commit commits the unit of work.
func (t *Tx) Commit() error {
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback aborts the unit of work. Calling it after Commit is a no-op, so
// it can be deferred unconditionally.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

var savepointName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Savepoint marks a point the unit of work can roll back to.
func (t *Tx) Savepoint(ctx context.Context, name string) error {
	return t.savepointExec(ctx, "SAVEPOINT ", name)
}

// RollbackTo undoes everything since the named savepoint and keeps the
// transaction usable.
func (t *Tx) RollbackTo(ctx context.Context, name string) error {
	return t.savepointExec(ctx, "ROLLBACK TO SAVEPOINT ", name)
}

// Release discards the named savepoint, keeping its changes.
func (t *Tx) Release(ctx context.Context, name string) error {
	return t.savepointExec(ctx, "RELEASE SAVEPOINT ", name)
}

func (t *Tx) savepointExec(ctx context.Context, verb, name string) error {
	if !savepointName.MatchString(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}
	if _, err := t.tx.ExecContext(ctx, verb+name); err != nil {
		return fmt.Errorf("%s%s: %w", verb, name, err)
	}
	return nil
}
