// ABOUTME: Read and delete operations over stored payloads.
// ABOUTME: Payloads are addressed by full UUID or a unique id prefix.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
)

// PayloadSummary is one row of the payload listing.
type PayloadSummary struct {
	ID          uuid.UUID `json:"id" yaml:"id"`
	Fingerprint string    `json:"fingerprint" yaml:"fingerprint"`
	ReceivedAt  time.Time `json:"received_at" yaml:"received_at"`
	Metrics     int64     `json:"metrics" yaml:"metrics"`
	Workouts    int64     `json:"workouts" yaml:"workouts"`
}

// MetricSummary describes one stored metric group.
type MetricSummary struct {
	ID              uuid.UUID `json:"id" yaml:"id"`
	Name            string    `json:"name" yaml:"name"`
	Units           string    `json:"units" yaml:"units"`
	DataFingerprint string    `json:"data_fingerprint" yaml:"data_fingerprint"`
	Table           string    `json:"table" yaml:"table"`
	Records         int64     `json:"records" yaml:"records"`
}

// WorkoutSummary describes one stored workout.
type WorkoutSummary struct {
	ID     uuid.UUID  `json:"id" yaml:"id"`
	Name   string     `json:"name" yaml:"name"`
	Start  time.Time  `json:"start" yaml:"start"`
	End    *time.Time `json:"end,omitempty" yaml:"end,omitempty"`
	Values int64      `json:"values" yaml:"values"`
	Points int64      `json:"points" yaml:"points"`
	Route  int64      `json:"route" yaml:"route"`
}

// PayloadDetail is a payload with its metrics and workouts.
type PayloadDetail struct {
	PayloadSummary `yaml:",inline"`
	MetricList     []*MetricSummary  `json:"metric_list" yaml:"metric_list"`
	WorkoutList    []*WorkoutSummary `json:"workout_list" yaml:"workout_list"`
}

func (d *DB) payloadQuery() *goqu.SelectDataset {
	return d.dialect.builder.From(goqu.T("payload").As("p")).Select(
		goqu.I("p.id"),
		goqu.I("p.fingerprint"),
		goqu.I("p.received_at"),
		goqu.L("(SELECT COUNT(*) FROM metric m WHERE m.payload_id = p.id)").As("metrics"),
		goqu.L("(SELECT COUNT(*) FROM workout w WHERE w.payload_id = p.id)").As("workouts"),
	)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayload(row scanner) (*PayloadSummary, error) {
	var p PayloadSummary
	var idStr string
	if err := row.Scan(&idStr, &p.Fingerprint, &p.ReceivedAt, &p.Metrics, &p.Workouts); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse payload id: %w", err)
	}
	p.ID = id
	return &p, nil
}

// ListPayloads returns payloads, most recently received first.
func (d *DB) ListPayloads(ctx context.Context, limit int) ([]*PayloadSummary, error) {
	ds := d.payloadQuery().Order(goqu.I("p.received_at").Desc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list payloads: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payloads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*PayloadSummary
	for rows.Next() {
		p, err := scanPayload(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payload: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPayload returns one payload with its metric and workout summaries.
func (d *DB) GetPayload(ctx context.Context, idOrPrefix string) (*PayloadDetail, error) {
	id, err := d.resolvePayloadID(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}

	query, args, err := d.payloadQuery().Where(goqu.I("p.id").Eq(id)).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get payload: %w", err)
	}
	summary, err := scanPayload(d.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	detail := &PayloadDetail{PayloadSummary: *summary}
	if detail.MetricList, err = d.listMetrics(ctx, id); err != nil {
		return nil, err
	}
	if detail.WorkoutList, err = d.listWorkouts(ctx, id); err != nil {
		return nil, err
	}
	return detail, nil
}

func (d *DB) listMetrics(ctx context.Context, payloadID string) ([]*MetricSummary, error) {
	query, args, err := d.dialect.builder.From("metric").
		Select("id", "name", "units", "data_fingerprint").
		Where(goqu.C("payload_id").Eq(payloadID)).
		Order(goqu.C("name").Asc(), goqu.C("data_fingerprint").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list metrics: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	var out []*MetricSummary
	for rows.Next() {
		var m MetricSummary
		var idStr string
		if err := rows.Scan(&idStr, &m.Name, &m.Units, &m.DataFingerprint); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.ID, _ = uuid.Parse(idStr)
		out = append(out, &m)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, m := range out {
		desc, err := d.registry.Lookup(m.Name)
		if err != nil {
			return nil, err
		}
		m.Table = desc.Table
		if m.Records, err = d.countWhere(ctx, desc.Table, desc.OwnerColumn, m.ID.String()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *DB) listWorkouts(ctx context.Context, payloadID string) ([]*WorkoutSummary, error) {
	query, args, err := d.dialect.builder.From("workout").
		Select("id", "name", "start_at", "end_at").
		Where(goqu.C("payload_id").Eq(payloadID)).
		Order(goqu.C("start_at").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list workouts: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workouts: %w", err)
	}
	var out []*WorkoutSummary
	for rows.Next() {
		var w WorkoutSummary
		var idStr string
		var end *time.Time
		if err := rows.Scan(&idStr, &w.Name, &w.Start, &end); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan workout: %w", err)
		}
		w.ID, _ = uuid.Parse(idStr)
		w.End = end
		out = append(out, &w)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, w := range out {
		id := w.ID.String()
		if w.Values, err = d.countWhere(ctx, "workout_value", "workout_id", id); err != nil {
			return nil, err
		}
		if w.Points, err = d.countWhere(ctx, "workout_point", "workout_id", id); err != nil {
			return nil, err
		}
		if w.Route, err = d.countWhere(ctx, "workout_route_point", "workout_id", id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DeletePayload removes a payload and, by cascade, everything it owns.
func (d *DB) DeletePayload(ctx context.Context, idOrPrefix string) error {
	id, err := d.resolvePayloadID(ctx, idOrPrefix)
	if err != nil {
		return err
	}
	query, args, err := d.dialect.builder.Delete("payload").
		Where(goqu.C("id").Eq(id)).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete payload: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete payload: %w", err)
	}
	return nil
}

// CountRows returns the number of rows in a registered table.
func (d *DB) CountRows(ctx context.Context, table string) (int64, error) {
	return d.countWhere(ctx, table, "", "")
}

// Stats returns row counts for every registered table.
func (d *DB) Stats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64)
	for _, desc := range d.registry.Tables() {
		n, err := d.CountRows(ctx, desc.Table)
		if err != nil {
			return nil, err
		}
		stats[desc.Table] = n
	}
	return stats, nil
}

func (d *DB) countWhere(ctx context.Context, table, column, value string) (int64, error) {
	ds := d.dialect.builder.From(table).Select(goqu.COUNT("*"))
	if column != "" {
		ds = ds.Where(goqu.C(column).Eq(value))
	}
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count %s: %w", table, err)
	}
	var n int64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

var idPrefix = regexp.MustCompile(`^[0-9a-fA-F-]+$`)

// resolvePayloadID resolves a full id or unique prefix to a full id.
func (d *DB) resolvePayloadID(ctx context.Context, idOrPrefix string) (string, error) {
	if len(idOrPrefix) == 36 && strings.Count(idOrPrefix, "-") == 4 {
		return strings.ToLower(idOrPrefix), nil
	}
	if !idPrefix.MatchString(idOrPrefix) {
		return "", fmt.Errorf("invalid id prefix: %s", idOrPrefix)
	}

	query, args, err := d.dialect.builder.From("payload").
		Select("id").
		Where(goqu.Cast(goqu.C("id"), "TEXT").Like(strings.ToLower(idOrPrefix) + "%")).
		Prepared(true).ToSQL()
	if err != nil {
		return "", fmt.Errorf("build resolve payload id: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return "", fmt.Errorf("resolve payload id: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scan payload id: %w", err)
		}
		matches = append(matches, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	if len(matches) == 0 {
		return "", fmt.Errorf("not found: %s", idOrPrefix)
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("ambiguous prefix %s: matches multiple payloads", idOrPrefix)
	}
	return matches[0], nil
}
