// ABOUTME: Database connection and lifecycle for the SQLite and PostgreSQL stores.
// ABOUTME: Uses modernc.org/sqlite (pure Go) by default and pgx for PostgreSQL.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/harperreed/health-ingest/internal/chunk"
	"github.com/harperreed/health-ingest/internal/registry"
)

// Observer is told about every upsert statement before it runs.
type Observer interface {
	ObserveStatement(table string, rows, params int)
}

// DB wraps the database connection.
type DB struct {
	db       *sql.DB
	dsn      string
	dialect  *Dialect
	registry *registry.Registry
	observer Observer
	margin   float64
}

// Option configures a DB.
type Option func(*DB)

// WithParamCeiling overrides the dialect's per-statement parameter ceiling.
func WithParamCeiling(n int) Option {
	return func(d *DB) { d.dialect = d.dialect.withCeiling(n) }
}

// WithSafetyMargin sets the fraction of the parameter ceiling a statement
// may use. Values outside (0, 1] are ignored.
func WithSafetyMargin(m float64) Option {
	return func(d *DB) {
		if m > 0 && m <= 1 {
			d.margin = m
		}
	}
}

// WithObserver registers an upsert statement observer.
func WithObserver(o Observer) Option {
	return func(d *DB) { d.observer = o }
}

// sqlitePragmas are applied to every pooled connection by the driver.
var sqlitePragmas = []string{
	"busy_timeout(10000)",
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// Open opens or creates a SQLite database at the given path.
func Open(dbPath string, opts ...Option) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	q.Set("_txlock", "immediate")
	q.Set("_time_format", "sqlite")
	dsn := dbPath + "?" + q.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &DB{db: db, dsn: dbPath, dialect: sqliteDialect, registry: registry.Default(), margin: chunk.DefaultSafetyMargin}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		_ = db.Close()
		return nil, fmt.Errorf("set database permissions: %w", err)
	}

	return d, nil
}

// OpenPostgres connects to PostgreSQL through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	d := &DB{db: db, dsn: dsn, dialect: postgresDialect, registry: registry.Default(), margin: chunk.DefaultSafetyMargin}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return d, nil
}

// DataDir returns the default data directory following XDG spec.
func DataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "health-ingest")
}

// DefaultDBPath returns the default database path following XDG spec.
func DefaultDBPath() string {
	return filepath.Join(DataDir(), "health.db")
}

// Dialect returns the active dialect.
func (d *DB) Dialect() *Dialect {
	return d.dialect
}

// Registry returns the entity registry the schema was built from.
func (d *DB) Registry() *registry.Registry {
	return d.registry
}

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
