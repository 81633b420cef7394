// ABOUTME: Upsert executor issuing one conflict-aware INSERT per chunk.
// ABOUTME: Conflict targets and update sets come only from registry descriptors.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"

	"github.com/harperreed/health-ingest/internal/chunk"
	"github.com/harperreed/health-ingest/internal/registry"
)

// conflict returns the ON CONFLICT clause for a descriptor: overwrite the
// updatable columns, or leave the existing row alone when there are none.
func conflict(d *registry.Descriptor) exp.ConflictExpression {
	if len(d.Updatable) == 0 {
		return goqu.DoNothing()
	}
	set := goqu.Record{}
	for _, col := range d.Updatable {
		set[col] = goqu.L("EXCLUDED." + col)
	}
	return goqu.DoUpdate(strings.Join(d.NaturalKey, ","), set)
}

// record builds the bound record for a row, filling id and owner. Every
// record carries exactly the descriptor's columns.
func record(d *registry.Descriptor, ownerID uuid.UUID, row registry.Row) goqu.Record {
	rec := make(goqu.Record, d.FieldsPerRecord())
	rec["id"] = uuid.New().String()
	if d.OwnerColumn != "" {
		rec[d.OwnerColumn] = ownerID.String()
	}
	for _, c := range d.Columns {
		rec[c.Name] = row[c.Name]
	}
	return rec
}

// naturalKey renders a row's natural key for in-batch deduplication.
func naturalKey(d *registry.Descriptor, rec goqu.Record) string {
	parts := make([]string, len(d.NaturalKey))
	for i, col := range d.NaturalKey {
		switch v := rec[col].(type) {
		case time.Time:
			parts[i] = v.UTC().Format(time.RFC3339Nano)
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return strings.Join(parts, "\x1f")
}

// dedupe collapses records sharing a natural key: the last one wins and
// keeps the position of the first. A single statement may not touch the
// same conflict target twice.
func dedupe(d *registry.Descriptor, recs []goqu.Record) []goqu.Record {
	seen := make(map[string]int, len(recs))
	out := recs[:0:0]
	for _, rec := range recs {
		key := naturalKey(d, rec)
		if i, ok := seen[key]; ok {
			rec["id"] = out[i]["id"]
			out[i] = rec
			continue
		}
		seen[key] = len(out)
		out = append(out, rec)
	}
	return out
}

// Upsert writes rows owned by ownerID into d's table, chunked so each
// statement stays under the dialect's parameter ceiling. It returns the
// number of rows inserted or updated.
func (t *Tx) Upsert(ctx context.Context, d *registry.Descriptor, ownerID uuid.UUID, rows []registry.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	recs := make([]goqu.Record, len(rows))
	for i, row := range rows {
		recs[i] = record(d, ownerID, row)
	}
	recs = dedupe(d, recs)

	var written int64
	for c := range chunk.ChunksWithMargin(recs, d.FieldsPerRecord(), t.dialect.ParamCeiling, t.margin) {
		n, err := t.upsertChunk(ctx, d, c)
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

func (t *Tx) upsertChunk(ctx context.Context, d *registry.Descriptor, recs []goqu.Record) (int64, error) {
	rows := make([]interface{}, len(recs))
	for i, r := range recs {
		rows[i] = r
	}
	query, args, err := t.dialect.builder.Insert(d.Table).
		Rows(rows...).
		OnConflict(conflict(d)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build upsert %s: %w", d.Table, err)
	}
	if t.observer != nil {
		t.observer.ObserveStatement(d.Table, len(recs), len(args))
	}

	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("upsert %s: %w", d.Table, err)
	}
	return res.RowsAffected()
}

// insertOne inserts a single row with the descriptor's conflict policy and
// reports whether a row was written.
func (t *Tx) insertOne(ctx context.Context, d *registry.Descriptor, rec goqu.Record) (bool, error) {
	query, args, err := t.dialect.builder.Insert(d.Table).
		Rows(rec).
		OnConflict(conflict(d)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build insert %s: %w", d.Table, err)
	}
	if t.observer != nil {
		t.observer.ObserveStatement(d.Table, 1, len(args))
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", d.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert %s: %w", d.Table, err)
	}
	return n > 0, nil
}

// idByKey selects the id of the row matching rec's natural key.
func (t *Tx) idByKey(ctx context.Context, d *registry.Descriptor, rec goqu.Record) (uuid.UUID, error) {
	where := goqu.Ex{}
	for _, col := range d.NaturalKey {
		where[col] = rec[col]
	}
	query, args, err := t.dialect.builder.From(d.Table).
		Select("id").
		Where(where).
		Prepared(true).
		ToSQL()
	if err != nil {
		return uuid.Nil, fmt.Errorf("build select %s: %w", d.Table, err)
	}

	var idStr string
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&idStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("select %s: row vanished: %w", d.Table, err)
		}
		return uuid.Nil, fmt.Errorf("select %s: %w", d.Table, err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse %s id: %w", d.Table, err)
	}
	return id, nil
}
