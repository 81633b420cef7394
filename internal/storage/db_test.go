// ABOUTME: Shared test helpers and schema tests for the storage package.
// ABOUTME: Every test runs against a fresh SQLite file under t.TempDir.
package storage

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/health-ingest/internal/registry"
)

func openTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "health.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// statementLog records every upsert statement the store issues.
type statementLog struct {
	mu    sync.Mutex
	stmts []loggedStatement
}

type loggedStatement struct {
	table  string
	rows   int
	params int
}

func (l *statementLog) ObserveStatement(table string, rows, params int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stmts = append(l.stmts, loggedStatement{table, rows, params})
}

func (l *statementLog) forTable(table string) []loggedStatement {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []loggedStatement
	for _, s := range l.stmts {
		if s.table == table {
			out = append(out, s)
		}
	}
	return out
}

// withMetric begins a unit of work holding one admitted payload and one
// metric header, returning the metric id.
func withMetric(t *testing.T, db *DB, name string) (*Tx, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback() })

	adm, err := tx.Admit(ctx, "fp-"+uuid.NewString(), time.Now())
	require.NoError(t, err)
	require.True(t, adm.Admitted)

	metricID, inserted, err := tx.InsertMetric(ctx, MetricRow{PayloadID: adm.PayloadID, Name: name, DataFingerprint: "d1"})
	require.NoError(t, err)
	require.True(t, inserted)
	return tx, metricID
}

func TestOpenCreatesSchema(t *testing.T) {
	db := openTestDB(t)

	stats, err := db.Stats(context.Background())
	require.NoError(t, err)
	for _, desc := range registry.Default().Tables() {
		n, ok := stats[desc.Table]
		assert.True(t, ok, desc.Table)
		assert.Zero(t, n, desc.Table)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "health.db")
	for i := 0; i < 2; i++ {
		db, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, db.Close())
	}
}

func TestCreateTableSQL(t *testing.T) {
	bp, err := registry.Default().Lookup("blood_pressure")
	require.NoError(t, err)

	sqliteDDL := sqliteDialect.createTableSQL(bp)
	assert.Contains(t, sqliteDDL, "metric_id TEXT NOT NULL REFERENCES metric(id) ON DELETE CASCADE")
	assert.Contains(t, sqliteDDL, "source TEXT NOT NULL DEFAULT ''")
	assert.Contains(t, sqliteDDL, "UNIQUE (metric_id, recorded_at)")

	pgDDL := postgresDialect.createTableSQL(registry.Workouts)
	assert.Contains(t, pgDDL, "id UUID PRIMARY KEY")
	assert.Contains(t, pgDDL, "start_at TIMESTAMPTZ NOT NULL")
	assert.Contains(t, pgDDL, "elevation JSONB,")
	assert.True(t, strings.HasSuffix(pgDDL, "UNIQUE (payload_id, name, start_at)\n)"))
}

func TestWithParamCeiling(t *testing.T) {
	db := openTestDB(t, WithParamCeiling(60))
	assert.Equal(t, 60, db.Dialect().ParamCeiling)
	assert.Equal(t, 32766, sqliteDialect.ParamCeiling, "shared dialect must not change")
}

func TestSavepointRollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	tx, metricID := withMetric(t, db, "step_count")

	rows := []registry.Row{{"recorded_at": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "qty": 1.0, "source": ""}}

	require.NoError(t, tx.Savepoint(ctx, "sp_metric"))
	_, err := tx.Upsert(ctx, registry.Generic, metricID, rows)
	require.NoError(t, err)
	require.NoError(t, tx.RollbackTo(ctx, "sp_metric"))
	require.NoError(t, tx.Release(ctx, "sp_metric"))
	require.NoError(t, tx.Commit())

	n, err := db.CountRows(ctx, "quantity_sample")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = db.CountRows(ctx, "metric")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSavepointRejectsBadName(t *testing.T) {
	db := openTestDB(t)
	tx, err := db.Begin(context.Background())
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	assert.Error(t, tx.Savepoint(context.Background(), "x; DROP TABLE payload"))
}

func TestRollbackAfterCommitIsNoop(t *testing.T) {
	db := openTestDB(t)
	tx, err := db.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, tx.Rollback())
}
