// ABOUTME: Database schema generated from the entity registry.
// ABOUTME: Natural keys become UNIQUE constraints; ownership cascades on delete.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/harperreed/health-ingest/internal/registry"
)

// createTableSQL renders CREATE TABLE for one descriptor.
func (dl *Dialect) createTableSQL(desc *registry.Descriptor) string {
	uuidType := dl.types[registry.TypeUUID]

	var cols []string
	cols = append(cols, "id "+uuidType+" PRIMARY KEY")
	if desc.OwnerColumn != "" {
		cols = append(cols, fmt.Sprintf("%s %s NOT NULL REFERENCES %s(id) ON DELETE CASCADE",
			desc.OwnerColumn, uuidType, desc.Parent))
	}
	for _, c := range desc.Columns {
		def := c.Name + " " + dl.types[c.Type]
		switch {
		case c.Nullable:
		case c.Type == registry.TypeText:
			def += " NOT NULL DEFAULT ''"
		default:
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	cols = append(cols, "UNIQUE ("+strings.Join(desc.NaturalKey, ", ")+")")

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", desc.Table, strings.Join(cols, ",\n\t"))
}

// schemaSQL returns every statement needed to create the schema.
func (dl *Dialect) schemaSQL(reg *registry.Registry) []string {
	var stmts []string
	for _, desc := range reg.Tables() {
		stmts = append(stmts, dl.createTableSQL(desc))
	}
	stmts = append(stmts,
		"CREATE INDEX IF NOT EXISTS idx_payload_received_at ON payload(received_at)",
		"CREATE INDEX IF NOT EXISTS idx_metric_name ON metric(name)",
	)
	return stmts
}

// initSchema creates all tables if they do not exist.
func (d *DB) initSchema(ctx context.Context) error {
	for _, stmt := range d.dialect.schemaSQL(d.registry) {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
