// ABOUTME: Tests for registry lookup, descriptor consistency and mappers.
// ABOUTME: Every registered shape must map a valid entry and reject a broken one.
package registry

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/health-ingest/internal/chunk"
	"github.com/harperreed/health-ingest/internal/models"
)

func TestDefaultRegistryValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLookup(t *testing.T) {
	r := Default()
	tests := []struct {
		metric string
		table  string
		shape  Shape
	}{
		{"blood_pressure", "blood_pressure", ShapeSpecialized},
		{"Blood_Pressure", "blood_pressure", ShapeSpecialized},
		{"HEART_RATE", "heart_rate", ShapeSpecialized},
		{"toothbrushing", "hygiene_event", ShapeSpecialized},
		{"handwashing", "hygiene_event", ShapeSpecialized},
		{"step_count", "quantity_sample", ShapeGeneric},
		{"something_new", "quantity_sample", ShapeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			d, err := r.Lookup(tt.metric)
			require.NoError(t, err)
			assert.Equal(t, tt.table, d.Table)
			assert.Equal(t, tt.shape, d.Shape)
		})
	}
}

func TestLookupWithoutGeneric(t *testing.T) {
	r := newRegistry(nil, nil)
	_, err := r.Lookup("step_count")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestFieldsPerRecord(t *testing.T) {
	d, err := Default().Lookup("blood_pressure")
	require.NoError(t, err)
	assert.Equal(t, 6, d.FieldsPerRecord())
	assert.Equal(t, []string{"id", "metric_id", "recorded_at", "systolic", "diastolic", "source"}, d.ColumnNames())

	assert.Equal(t, 3, Payloads.FieldsPerRecord())
}

func TestTablesParentsFirst(t *testing.T) {
	pos := map[string]int{}
	for i, d := range Default().Tables() {
		pos[d.Table] = i
	}
	for _, d := range Default().Tables() {
		if d.Parent != "" {
			assert.Less(t, pos[d.Parent], pos[d.Table], d.Table)
		}
	}
}

func TestValidateCatchesBadDescriptor(t *testing.T) {
	bad := &Descriptor{
		Type:        "bad",
		Shape:       ShapeSpecialized,
		Table:       "bad",
		Parent:      "metric",
		OwnerColumn: "metric_id",
		Columns:     []Column{{Name: "recorded_at", Type: TypeTime}},
		NaturalKey:  []string{"metric_id", "recorded_at"},
		Updatable:   []string{"recorded_at"},
		Map:         mapQuantity,
	}
	err := newRegistry(Generic, []*Descriptor{bad}).Validate()
	assert.ErrorContains(t, err, "part of the key")
}

func entry(t *testing.T, s string) models.Entry {
	t.Helper()
	var e models.Entry
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&e))
	return e
}

func TestMappers(t *testing.T) {
	tests := []struct {
		metric string
		valid  string
		broken string
		check  func(t *testing.T, row Row)
	}{
		{
			metric: "step_count",
			valid:  `{"date":"2024-01-01 08:00:00 +0000","qty":1200,"source":"iPhone"}`,
			broken: `{"date":"2024-01-01 08:00:00 +0000"}`,
			check: func(t *testing.T, row Row) {
				assert.Equal(t, 1200.0, row["qty"])
				assert.Equal(t, "iPhone", row["source"])
			},
		},
		{
			metric: "blood_pressure",
			valid:  `{"date":"2024-01-01T08:00:00Z","systolic":120,"diastolic":80}`,
			broken: `{"date":"2024-01-01T08:00:00Z","systolic":"high","diastolic":80}`,
			check: func(t *testing.T, row Row) {
				assert.Equal(t, 120.0, row["systolic"])
				assert.Equal(t, "", row["source"])
			},
		},
		{
			metric: "heart_rate",
			valid:  `{"date":"2024-01-01T00:00:00Z","avg":70}`,
			broken: `{"date":"2024-01-01T00:00:00Z"}`,
			check: func(t *testing.T, row Row) {
				assert.Equal(t, 70.0, row["avg_bpm"])
				assert.Nil(t, row["min_bpm"])
			},
		},
		{
			metric: "sleep_analysis",
			valid:  `{"startDate":"2024-01-01T23:00:00Z","endDate":"2024-01-02T07:00:00Z","value":"Core"}`,
			broken: `{"startDate":"2024-01-01T23:00:00Z"}`,
			check: func(t *testing.T, row Row) {
				assert.Equal(t, "Core", row["value"])
				assert.Nil(t, row["qty"])
			},
		},
		{
			metric: "blood_glucose",
			valid:  `{"date":"2024-01-01T08:00:00Z","qty":5.4,"mealTime":"Before Meal"}`,
			broken: `{"qty":5.4}`,
			check: func(t *testing.T, row Row) {
				assert.Equal(t, "Before Meal", row["meal_time"])
			},
		},
		{
			metric: "sexual_activity",
			valid:  `{"date":"2024-01-01T08:00:00Z","Protection Used":1}`,
			broken: `{"date":"nope"}`,
			check: func(t *testing.T, row Row) {
				assert.Equal(t, 1.0, row["protection_used"])
			},
		},
		{
			metric: "toothbrushing",
			valid:  `{"date":"2024-01-01T08:00:00Z","qty":120,"value":"Complete"}`,
			broken: `{"qty":120}`,
			check: func(t *testing.T, row Row) {
				assert.Equal(t, "Complete", row["value"])
			},
		},
		{
			metric: "insulin_delivery",
			valid:  `{"date":"2024-01-01T08:00:00Z","qty":4,"reason":"bolus"}`,
			broken: `{"date":"2024-01-01T08:00:00Z","qty":4,"reason":"snack"}`,
			check: func(t *testing.T, row Row) {
				assert.Equal(t, "Bolus", row["reason"])
			},
		},
		{
			metric: "symptoms",
			valid:  `{"start":"2024-01-01T08:00:00Z","name":"Headache","severity":"Mild","userEntered":true}`,
			broken: `{"start":"2024-01-01T08:00:00Z","severity":"Mild"}`,
			check: func(t *testing.T, row Row) {
				assert.Equal(t, true, row["user_entered"])
				assert.Nil(t, row["end_at"])
			},
		},
		{
			metric: "state_of_mind",
			valid:  `{"start":"2024-01-01T08:00:00Z","kind":"momentaryEmotion","valence":0.4,"labels":["Calm"]}`,
			broken: `{"kind":"dailyMood"}`,
			check: func(t *testing.T, row Row) {
				assert.Equal(t, `["Calm"]`, row["labels"])
				assert.Nil(t, row["metadata"])
			},
		},
		{
			metric: "ecg",
			valid:  `{"start":"2024-01-01T08:00:00Z","classification":"Sinus Rhythm","numberOfVoltageMeasurements":15360,"voltageMeasurements":[{"date":1,"voltage":0.1}]}`,
			broken: `{"classification":"Sinus Rhythm"}`,
			check: func(t *testing.T, row Row) {
				assert.Equal(t, int64(15360), row["voltage_count"])
				assert.Equal(t, `[{"date":1,"voltage":0.1}]`, row["voltage"])
			},
		},
		{
			metric: "heart_rate_notifications",
			valid:  `{"start":"2024-01-01T08:00:00Z","end":"2024-01-01T08:10:00Z","threshold":120}`,
			broken: `{"start":"2024-01-01T08:00:00Z","threshold":120}`,
			check: func(t *testing.T, row Row) {
				assert.Equal(t, 120.0, row["threshold"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			d, err := Default().Lookup(tt.metric)
			require.NoError(t, err)

			row, err := d.Map(entry(t, tt.valid))
			require.NoError(t, err)
			for _, c := range d.Columns {
				assert.Contains(t, row, c.Name)
			}
			tt.check(t, row)

			_, err = d.Map(entry(t, tt.broken))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestMapperTimesAreUTC(t *testing.T) {
	row, err := Generic.Map(entry(t, `{"date":"2024-01-01 01:00:00 +0100","qty":1}`))
	require.NoError(t, err)
	at := row["recorded_at"].(time.Time)
	assert.Equal(t, time.UTC, at.Location())
	assert.Equal(t, 0, at.Hour())
}

func TestSpecializedMetricTypesResolve(t *testing.T) {
	r := Default()
	types := []models.MetricType{
		models.MetricBloodPressure,
		models.MetricHeartRate,
		models.MetricBloodGlucose,
		models.MetricECG,
		models.MetricHRNotification,
		models.MetricSleepAnalysis,
		models.MetricSexualActivity,
		models.MetricHandwashing,
		models.MetricToothbrushing,
		models.MetricInsulinDeliver,
		models.MetricSymptoms,
		models.MetricStateOfMind,
	}

	for _, mt := range types {
		d, err := r.Lookup(string(mt))
		require.NoError(t, err)
		assert.Equal(t, ShapeSpecialized, d.Shape, "metric %s", mt)
	}
}

func TestRegisteredTablesChunkUnderCeiling(t *testing.T) {
	counts := []int{0, 1, 2, 999, 1000, 1001, 4095, 4096, 4097, 10922, 10923, 65535, 100000}

	for _, d := range Default().Tables() {
		fields := d.FieldsPerRecord()
		for _, ceiling := range []int{chunk.SQLiteParamCeiling, chunk.PostgresParamCeiling} {
			size := chunk.Size(fields, ceiling, chunk.DefaultSafetyMargin)
			require.LessOrEqual(t, float64(size*fields), chunk.DefaultSafetyMargin*float64(ceiling), "table %s", d.Table)

			for _, n := range counts {
				records := make([]struct{}, n)
				total := 0
				for c := range chunk.Chunks(records, fields, ceiling) {
					require.NotEmpty(t, c)
					require.LessOrEqual(t, len(c)*fields, ceiling, "table %s ceiling %d", d.Table, ceiling)
					total += len(c)
				}
				assert.Equal(t, n, total, "table %s ceiling %d", d.Table, ceiling)
			}
		}
	}
}
