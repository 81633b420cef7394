// ABOUTME: Metric and workout writes inside a unit of work.
// ABOUTME: Metrics dedup on their fingerprint; workouts upsert with their children.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/harperreed/health-ingest/internal/models"
	"github.com/harperreed/health-ingest/internal/registry"
)

// MetricRow is the metric header stored ahead of its data records.
type MetricRow struct {
	PayloadID       uuid.UUID
	Name            string
	Units           string
	DataFingerprint string
}

// InsertMetric stores a metric header. It returns false when the same
// (payload, name, data fingerprint) is already present.
func (t *Tx) InsertMetric(ctx context.Context, m MetricRow) (uuid.UUID, bool, error) {
	id := uuid.New()
	rec := goqu.Record{
		"id":               id.String(),
		"payload_id":       m.PayloadID.String(),
		"name":             m.Name,
		"units":            m.Units,
		"data_fingerprint": m.DataFingerprint,
	}
	inserted, err := t.insertOne(ctx, registry.Metrics, rec)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("insert metric %s: %w", m.Name, err)
	}
	if !inserted {
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

// WorkoutCounts reports rows written for one workout's children.
type WorkoutCounts struct {
	Values int64
	Points int64
	Route  int64
}

// UpsertWorkout writes a workout keyed by (payload, name, start) and then
// upserts its values, stream points and route points.
func (t *Tx) UpsertWorkout(ctx context.Context, payloadID uuid.UUID, w *models.Workout) (uuid.UUID, WorkoutCounts, error) {
	var counts WorkoutCounts

	var elevation any
	if w.Elevation != nil {
		b, err := json.Marshal(w.Elevation)
		if err != nil {
			return uuid.Nil, counts, fmt.Errorf("encode elevation: %w", err)
		}
		elevation = string(b)
	}
	var end any
	if w.End != nil {
		end = w.End.UTC()
	}

	rec := record(registry.Workouts, payloadID, registry.Row{
		"name":      w.Name,
		"start_at":  w.Start.UTC(),
		"end_at":    end,
		"elevation": elevation,
	})
	if _, err := t.insertOne(ctx, registry.Workouts, rec); err != nil {
		return uuid.Nil, counts, fmt.Errorf("upsert workout %s: %w", w.Name, err)
	}
	workoutID, err := t.idByKey(ctx, registry.Workouts, rec)
	if err != nil {
		return uuid.Nil, counts, fmt.Errorf("upsert workout %s: %w", w.Name, err)
	}

	values := make([]registry.Row, len(w.Values))
	for i, v := range w.Values {
		values[i] = registry.Row{"name": v.Name, "qty": v.Qty, "units": v.Units}
	}
	if counts.Values, err = t.Upsert(ctx, registry.WorkoutValues, workoutID, values); err != nil {
		return uuid.Nil, counts, err
	}

	points := make([]registry.Row, len(w.Points))
	for i, p := range w.Points {
		points[i] = registry.Row{"stream": p.Stream, "recorded_at": p.RecordedAt, "qty": p.Qty, "units": p.Units}
	}
	if counts.Points, err = t.Upsert(ctx, registry.WorkoutPoints, workoutID, points); err != nil {
		return uuid.Nil, counts, err
	}

	route := make([]registry.Row, len(w.Route))
	for i, r := range w.Route {
		var alt any
		if r.Altitude != nil {
			alt = *r.Altitude
		}
		route[i] = registry.Row{"recorded_at": r.RecordedAt, "latitude": r.Latitude, "longitude": r.Longitude, "altitude": alt}
	}
	if counts.Route, err = t.Upsert(ctx, registry.RoutePoints, workoutID, route); err != nil {
		return uuid.Nil, counts, err
	}

	return workoutID, counts, nil
}
