// ABOUTME: Export of stored payloads with all their records.
// ABOUTME: The export structure marshals to both JSON and YAML.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"gopkg.in/yaml.v3"

	"github.com/harperreed/health-ingest/internal/registry"
)

// ExportData represents the full export format.
type ExportData struct {
	Version    string           `json:"version" yaml:"version"`
	ExportedAt time.Time        `json:"exported_at" yaml:"exported_at"`
	Tool       string           `json:"tool" yaml:"tool"`
	Payloads   []*ExportPayload `json:"payloads" yaml:"payloads"`
}

// ExportPayload is one payload with its records.
type ExportPayload struct {
	ID          string           `json:"id" yaml:"id"`
	Fingerprint string           `json:"fingerprint" yaml:"fingerprint"`
	ReceivedAt  time.Time        `json:"received_at" yaml:"received_at"`
	Metrics     []*ExportMetric  `json:"metrics" yaml:"metrics"`
	Workouts    []*ExportWorkout `json:"workouts" yaml:"workouts"`
}

// ExportMetric is one metric group and its data records.
type ExportMetric struct {
	Name    string           `json:"name" yaml:"name"`
	Units   string           `json:"units" yaml:"units"`
	Table   string           `json:"table" yaml:"table"`
	Records []map[string]any `json:"records" yaml:"records"`
}

// ExportWorkout is one workout and its child rows.
type ExportWorkout struct {
	Name      string           `json:"name" yaml:"name"`
	Start     time.Time        `json:"start" yaml:"start"`
	End       *time.Time       `json:"end,omitempty" yaml:"end,omitempty"`
	Values    []map[string]any `json:"values" yaml:"values"`
	Points    []map[string]any `json:"points" yaml:"points"`
	Route     []map[string]any `json:"route" yaml:"route"`
	Elevation any              `json:"elevation,omitempty" yaml:"elevation,omitempty"`
}

// Export collects one payload, or every payload when idOrPrefix is empty.
func (d *DB) Export(ctx context.Context, idOrPrefix string) (*ExportData, error) {
	var ids []string
	if idOrPrefix != "" {
		id, err := d.resolvePayloadID(ctx, idOrPrefix)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	} else {
		list, err := d.ListPayloads(ctx, 0)
		if err != nil {
			return nil, err
		}
		for _, p := range list {
			ids = append(ids, p.ID.String())
		}
	}

	out := &ExportData{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Tool:       "health-ingest",
	}
	for _, id := range ids {
		p, err := d.exportPayload(ctx, id)
		if err != nil {
			return nil, err
		}
		out.Payloads = append(out.Payloads, p)
	}
	return out, nil
}

func (d *DB) exportPayload(ctx context.Context, id string) (*ExportPayload, error) {
	detail, err := d.GetPayload(ctx, id)
	if err != nil {
		return nil, err
	}
	p := &ExportPayload{
		ID:          detail.ID.String(),
		Fingerprint: detail.Fingerprint,
		ReceivedAt:  detail.ReceivedAt,
	}

	for _, m := range detail.MetricList {
		desc, err := d.registry.Lookup(m.Name)
		if err != nil {
			return nil, err
		}
		records, err := d.selectChildren(ctx, desc, m.ID.String())
		if err != nil {
			return nil, err
		}
		p.Metrics = append(p.Metrics, &ExportMetric{Name: m.Name, Units: m.Units, Table: desc.Table, Records: records})
	}

	workouts, err := d.selectChildren(ctx, registry.Workouts, id)
	if err != nil {
		return nil, err
	}
	elevation := make(map[string]any, len(workouts))
	for _, w := range workouts {
		if start, ok := w["start_at"].(time.Time); ok {
			elevation[workoutKey(w["name"], start)] = w["elevation"]
		}
	}
	for _, w := range detail.WorkoutList {
		ew := &ExportWorkout{Name: w.Name, Start: w.Start, End: w.End}
		ew.Elevation = elevation[workoutKey(w.Name, w.Start)]
		wid := w.ID.String()
		if ew.Values, err = d.selectChildren(ctx, registry.WorkoutValues, wid); err != nil {
			return nil, err
		}
		if ew.Points, err = d.selectChildren(ctx, registry.WorkoutPoints, wid); err != nil {
			return nil, err
		}
		if ew.Route, err = d.selectChildren(ctx, registry.RoutePoints, wid); err != nil {
			return nil, err
		}
		p.Workouts = append(p.Workouts, ew)
	}
	return p, nil
}

func workoutKey(name any, start time.Time) string {
	return fmt.Sprintf("%v|%s", name, start.UTC().Format(time.RFC3339Nano))
}

// selectChildren reads the data columns of every row owned by ownerID,
// ordered by the natural key. JSON columns are decoded.
func (d *DB) selectChildren(ctx context.Context, desc *registry.Descriptor, ownerID string) ([]map[string]any, error) {
	cols := make([]any, len(desc.Columns))
	order := make([]exp.OrderedExpression, 0, len(desc.NaturalKey))
	for i, c := range desc.Columns {
		cols[i] = c.Name
	}
	for _, k := range desc.NaturalKey {
		order = append(order, goqu.C(k).Asc())
	}

	query, args, err := d.dialect.builder.From(desc.Table).
		Select(cols...).
		Where(goqu.C(desc.OwnerColumn).Eq(ownerID)).
		Order(order...).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build export %s: %w", desc.Table, err)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", desc.Table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(desc.Columns))
		ptrs := make([]any, len(desc.Columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", desc.Table, err)
		}

		rec := make(map[string]any, len(desc.Columns))
		for i, c := range desc.Columns {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if s, ok := v.(string); ok && c.Type == registry.TypeJSON {
				var decoded any
				if err := json.Unmarshal([]byte(s), &decoded); err == nil {
					v = decoded
				}
			}
			if c.Type == registry.TypeBool {
				if n, ok := v.(int64); ok {
					v = n != 0
				}
			}
			rec[c.Name] = v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// JSON renders the export as indented JSON.
func (e *ExportData) JSON() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

// YAML renders the export as YAML.
func (e *ExportData) YAML() ([]byte, error) {
	return yaml.Marshal(e)
}
