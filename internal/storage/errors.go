// ABOUTME: Classifies driver errors as record-scoped, retryable or fatal.
// ABOUTME: Understands pgconn.PgError codes and modernc sqlite result codes.
package storage

import (
	"context"
	"database/sql/driver"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Class is how the ingest engine should react to a storage error.
type Class int

const (
	// ClassFatal aborts the unit of work.
	ClassFatal Class = iota
	// ClassRecordScoped is caused by the data being written; only the
	// affected metric or workout is skipped.
	ClassRecordScoped
	// ClassRetryable aborts the unit of work; the whole payload may be retried.
	ClassRetryable
)

func (c Class) String() string {
	switch c {
	case ClassRecordScoped:
		return "record"
	case ClassRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// Classify inspects err and its wrapped chain.
func Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}
	if errors.Is(err, driver.ErrBadConn) {
		return ClassRetryable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPostgres(pgErr.Code)
	}

	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return classifySQLite(sqErr.Code())
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return ClassRetryable
	}
	return ClassFatal
}

func classifyPostgres(code string) Class {
	switch {
	case pgerrcode.IsDataException(code),
		code == pgerrcode.NotNullViolation,
		code == pgerrcode.CheckViolation:
		return ClassRecordScoped
	case pgerrcode.IsConnectionException(code),
		code == pgerrcode.SerializationFailure,
		code == pgerrcode.DeadlockDetected,
		code == pgerrcode.AdminShutdown,
		code == pgerrcode.CannotConnectNow:
		return ClassRetryable
	default:
		return ClassFatal
	}
}

func classifySQLite(code int) Class {
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL, sqlite3.SQLITE_CONSTRAINT_CHECK:
		return ClassRecordScoped
	}
	switch code & 0xff {
	case sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_TOOBIG:
		return ClassRecordScoped
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return ClassRetryable
	default:
		return ClassFatal
	}
}
