// ABOUTME: Tests for payload listing, lookup, deletion and export.
// ABOUTME: Seeds a payload with one metric and one workout per test.
package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/harperreed/health-ingest/internal/models"
	"github.com/harperreed/health-ingest/internal/registry"
)

// seedPayload writes a payload holding two heart rate samples and a walk.
func seedPayload(t *testing.T, db *DB, fingerprint string, receivedAt time.Time) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	adm, err := tx.Admit(ctx, fingerprint, receivedAt)
	require.NoError(t, err)

	metricID, _, err := tx.InsertMetric(ctx, MetricRow{
		PayloadID: adm.PayloadID, Name: "heart_rate", Units: "count/min", DataFingerprint: "hr",
	})
	require.NoError(t, err)

	hr, err := db.Registry().Lookup("heart_rate")
	require.NoError(t, err)
	rows := []registry.Row{
		{"recorded_at": base, "min_bpm": 60.0, "avg_bpm": 70.0, "max_bpm": 80.0, "context": "", "source": ""},
		{"recorded_at": base.Add(time.Minute), "min_bpm": 62.0, "avg_bpm": 72.0, "max_bpm": 82.0, "context": "", "source": ""},
	}
	_, err = tx.Upsert(ctx, hr, metricID, rows)
	require.NoError(t, err)

	_, _, err = tx.UpsertWorkout(ctx, adm.PayloadID, &models.Workout{
		Name:      "Walk",
		Start:     base,
		Elevation: map[string]any{"ascent": 10.0},
		Values:    []models.WorkoutValue{{Name: "distance", Qty: 2.4, Units: "km"}},
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	return adm.PayloadID
}

func TestListPayloads(t *testing.T) {
	db := openTestDB(t)
	older := seedPayload(t, db, "a", base)
	newer := seedPayload(t, db, "b", base.Add(time.Hour))

	list, err := db.ListPayloads(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer, list[0].ID)
	assert.Equal(t, older, list[1].ID)
	assert.Equal(t, int64(1), list[0].Metrics)
	assert.Equal(t, int64(1), list[0].Workouts)

	list, err = db.ListPayloads(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGetPayloadByPrefix(t *testing.T) {
	db := openTestDB(t)
	id := seedPayload(t, db, "a", base)

	detail, err := db.GetPayload(context.Background(), id.String()[:8])
	require.NoError(t, err)
	assert.Equal(t, id, detail.ID)
	require.Len(t, detail.MetricList, 1)
	assert.Equal(t, "heart_rate", detail.MetricList[0].Name)
	assert.Equal(t, "heart_rate", detail.MetricList[0].Table)
	assert.Equal(t, int64(2), detail.MetricList[0].Records)
	require.Len(t, detail.WorkoutList, 1)
	assert.Equal(t, int64(1), detail.WorkoutList[0].Values)
}

func TestGetPayloadErrors(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.GetPayload(ctx, "deadbeef")
	assert.ErrorContains(t, err, "not found")

	_, err = db.GetPayload(ctx, "'; --")
	assert.ErrorContains(t, err, "invalid id prefix")
}

func TestDeletePayloadCascades(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	id := seedPayload(t, db, "a", base)

	require.NoError(t, db.DeletePayload(ctx, id.String()))

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	for table, n := range stats {
		assert.Zero(t, n, table)
	}
}

func TestExportJSON(t *testing.T) {
	db := openTestDB(t)
	id := seedPayload(t, db, "a", base)

	export, err := db.Export(context.Background(), "")
	require.NoError(t, err)
	data, err := export.JSON()
	require.NoError(t, err)

	var parsed ExportData
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "1.0", parsed.Version)
	assert.Equal(t, "health-ingest", parsed.Tool)
	require.Len(t, parsed.Payloads, 1)

	p := parsed.Payloads[0]
	assert.Equal(t, id.String(), p.ID)
	require.Len(t, p.Metrics, 1)
	assert.Len(t, p.Metrics[0].Records, 2)
	assert.Equal(t, 70.0, p.Metrics[0].Records[0]["avg_bpm"])
	require.Len(t, p.Workouts, 1)
	assert.Equal(t, map[string]any{"ascent": 10.0}, p.Workouts[0].Elevation)
	assert.Len(t, p.Workouts[0].Values, 1)
}

func TestExportYAML(t *testing.T) {
	db := openTestDB(t)
	id := seedPayload(t, db, "a", base)
	seedPayload(t, db, "b", base.Add(time.Hour))

	export, err := db.Export(context.Background(), id.String())
	require.NoError(t, err)
	require.Len(t, export.Payloads, 1)

	data, err := export.YAML()
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	assert.Equal(t, "health-ingest", parsed["tool"])
	assert.Len(t, parsed["payloads"], 1)
}
