// ABOUTME: Tests for ParseWorkout mapping of summaries, streams and routes.
// ABOUTME: Malformed child samples are dropped without rejecting the workout.
package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEntry(t *testing.T, s string) Entry {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var e Entry
	require.NoError(t, dec.Decode(&e))
	return e
}

func TestParseWorkout(t *testing.T) {
	e := decodeEntry(t, `{
		"name": "Outdoor Run",
		"start": "2024-05-01 07:00:00 +0000",
		"end": "2024-05-01 07:45:00 +0000",
		"activeEnergyBurned": {"qty": 512.4, "units": "kcal"},
		"distance": {"qty": 8.1, "units": "km"},
		"elevation": {"ascent": 40, "units": "m"},
		"heartRateData": [
			{"date": "2024-05-01 07:01:00 +0000", "Avg": 120, "units": "bpm"},
			{"date": "2024-05-01 07:02:00 +0000", "qty": 131},
			{"date": "not a date", "qty": 1}
		],
		"route": [
			{"timestamp": "2024-05-01 07:01:00 +0000", "latitude": 41.88, "longitude": -87.62, "altitude": 180},
			{"timestamp": "2024-05-01 07:02:00 +0000", "latitude": 41.89}
		]
	}`)

	w, dropped := ParseWorkout(e)
	require.NotNil(t, w)
	assert.Len(t, dropped, 2)

	assert.Equal(t, "Outdoor Run", w.Name)
	require.NotNil(t, w.End)
	assert.Equal(t, 45.0, w.End.Sub(w.Start).Minutes())
	assert.Equal(t, "m", w.Elevation["units"])

	require.Len(t, w.Values, 2)
	assert.Equal(t, "activeEnergyBurned", w.Values[0].Name)
	assert.Equal(t, 512.4, w.Values[0].Qty)
	assert.Equal(t, "kcal", w.Values[0].Units)

	require.Len(t, w.Points, 2)
	assert.Equal(t, "heartRateData", w.Points[0].Stream)
	assert.Equal(t, 120.0, w.Points[0].Qty)

	require.Len(t, w.Route, 1)
	require.NotNil(t, w.Route[0].Altitude)
	assert.Equal(t, 180.0, *w.Route[0].Altitude)
}

func TestParseWorkoutRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no name", `{"start": "2024-05-01T07:00:00Z"}`},
		{"no start", `{"name": "Walk"}`},
		{"bad start", `{"name": "Walk", "start": 12}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, errs := ParseWorkout(decodeEntry(t, tt.body))
			assert.Nil(t, w)
			require.Len(t, errs, 1)
			assert.ErrorIs(t, errs[0], ErrMalformedWorkout)
		})
	}
}
