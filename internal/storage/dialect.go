// ABOUTME: SQL dialects supported by the store: SQLite and PostgreSQL.
// ABOUTME: Carries the goqu builder, parameter ceiling and column type names.
package storage

import (
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/dialect/sqlite3"

	"github.com/harperreed/health-ingest/internal/chunk"
	"github.com/harperreed/health-ingest/internal/registry"
)

// sqliteUpsert is goqu's sqlite3 dialect without INSERT OR IGNORE, which it
// would otherwise prepend to every ON CONFLICT statement and which silently
// drops rows that violate NOT NULL or CHECK constraints.
const sqliteUpsert = "sqlite3-upsert"

func init() {
	opts := sqlite3.DialectOptions()
	opts.SupportsInsertIgnoreSyntax = false
	goqu.RegisterDialect(sqliteUpsert, opts)
}

// Dialect describes one backing store flavour.
type Dialect struct {
	Name         string
	ParamCeiling int
	builder      goqu.DialectWrapper
	types        map[registry.ColumnType]string
}

var sqliteDialect = &Dialect{
	Name:         "sqlite",
	ParamCeiling: chunk.SQLiteParamCeiling,
	builder:      goqu.Dialect(sqliteUpsert),
	types: map[registry.ColumnType]string{
		registry.TypeUUID:  "TEXT",
		registry.TypeText:  "TEXT",
		registry.TypeFloat: "REAL",
		registry.TypeInt:   "INTEGER",
		registry.TypeBool:  "INTEGER",
		registry.TypeTime:  "DATETIME",
		registry.TypeJSON:  "TEXT",
	},
}

var postgresDialect = &Dialect{
	Name:         "postgres",
	ParamCeiling: chunk.PostgresParamCeiling,
	builder:      goqu.Dialect("postgres"),
	types: map[registry.ColumnType]string{
		registry.TypeUUID:  "UUID",
		registry.TypeText:  "TEXT",
		registry.TypeFloat: "DOUBLE PRECISION",
		registry.TypeInt:   "BIGINT",
		registry.TypeBool:  "BOOLEAN",
		registry.TypeTime:  "TIMESTAMPTZ",
		registry.TypeJSON:  "JSONB",
	},
}

// withCeiling returns a copy of dl using ceiling when it is positive.
func (dl *Dialect) withCeiling(ceiling int) *Dialect {
	if ceiling <= 0 || ceiling == dl.ParamCeiling {
		return dl
	}
	cp := *dl
	cp.ParamCeiling = ceiling
	return &cp
}
