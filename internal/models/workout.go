// ABOUTME: Workout model with summary values, sample streams and route points.
// ABOUTME: ParseWorkout maps a raw export entry, dropping malformed child samples.
package models

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrMalformedWorkout marks a workout entry that cannot be stored at all.
var ErrMalformedWorkout = errors.New("malformed workout")

// Workout is an activity session bounded by start and end.
type Workout struct {
	Name      string
	Start     time.Time
	End       *time.Time
	Elevation map[string]any
	Values    []WorkoutValue
	Points    []WorkoutPoint
	Route     []RoutePoint
}

// WorkoutValue is a named scalar summary such as active_energy.
type WorkoutValue struct {
	Name  string
	Qty   float64
	Units string
}

// WorkoutPoint is one sample of a named stream such as heart_rate_data.
type WorkoutPoint struct {
	Stream     string
	RecordedAt time.Time
	Qty        float64
	Units      string
}

// RoutePoint is one geolocation sample.
type RoutePoint struct {
	RecordedAt time.Time
	Latitude   float64
	Longitude  float64
	Altitude   *float64
}

// reserved keys are handled explicitly and never treated as values or streams.
var reservedWorkoutKeys = map[string]bool{
	"id": true, "name": true, "start": true, "end": true,
	"elevation": true, "route": true, "location": true,
}

// ParseWorkout maps a raw workout entry. Summary keys holding {qty, units}
// become values and keys holding sample arrays become streams. Child
// samples that fail to map are dropped and reported in the returned slice;
// the workout itself is rejected only when name or start is unusable.
func ParseWorkout(e Entry) (*Workout, []error) {
	name, ok, err := e.String("name")
	if err != nil || !ok || name == "" {
		return nil, []error{fmt.Errorf("%w: missing name", ErrMalformedWorkout)}
	}
	start, ok, err := e.Time("start", "startDate")
	if err != nil || !ok {
		return nil, []error{fmt.Errorf("%w: %s: missing or invalid start", ErrMalformedWorkout, name)}
	}

	w := &Workout{Name: name, Start: start}
	var dropped []error

	if end, ok, err := e.Time("end", "endDate"); err != nil {
		dropped = append(dropped, err)
	} else if ok {
		w.End = &end
	}
	if elev, ok := e["elevation"].(map[string]any); ok {
		w.Elevation = elev
	}

	keys := make([]string, 0, len(e))
	for k := range e {
		if !reservedWorkoutKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := e[k].(type) {
		case map[string]any:
			qty, ok, err := Entry(v).Float("qty")
			if err != nil {
				dropped = append(dropped, fmt.Errorf("value %s: %w", k, err))
				continue
			}
			if !ok {
				continue
			}
			units, _, _ := Entry(v).String("units")
			w.Values = append(w.Values, WorkoutValue{Name: k, Qty: qty, Units: units})
		case []any:
			for _, raw := range v {
				p, err := parsePoint(k, raw)
				if err != nil {
					dropped = append(dropped, err)
					continue
				}
				w.Points = append(w.Points, p)
			}
		}
	}

	if route, ok := e.Lookup("route", "location"); ok {
		items, _ := route.([]any)
		for _, raw := range items {
			rp, err := parseRoutePoint(raw)
			if err != nil {
				dropped = append(dropped, err)
				continue
			}
			w.Route = append(w.Route, rp)
		}
	}

	return w, dropped
}

func parsePoint(stream string, raw any) (WorkoutPoint, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return WorkoutPoint{}, fmt.Errorf("stream %s: expected object, got %T", stream, raw)
	}
	e := Entry(m)
	at, ok, err := e.Time("date", "timestamp")
	if err != nil {
		return WorkoutPoint{}, fmt.Errorf("stream %s: %w", stream, err)
	}
	if !ok {
		return WorkoutPoint{}, fmt.Errorf("stream %s: missing date", stream)
	}
	qty, ok, err := e.Float("qty", "Avg", "avg")
	if err != nil {
		return WorkoutPoint{}, fmt.Errorf("stream %s: %w", stream, err)
	}
	if !ok {
		return WorkoutPoint{}, fmt.Errorf("stream %s: missing qty", stream)
	}
	units, _, _ := e.String("units")
	return WorkoutPoint{Stream: stream, RecordedAt: at, Qty: qty, Units: units}, nil
}

func parseRoutePoint(raw any) (RoutePoint, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return RoutePoint{}, fmt.Errorf("route: expected object, got %T", raw)
	}
	e := Entry(m)
	at, ok, err := e.Time("timestamp", "date")
	if err != nil || !ok {
		return RoutePoint{}, fmt.Errorf("route: missing or invalid timestamp")
	}
	lat, okLat, err := e.Float("latitude", "lat")
	if err != nil {
		return RoutePoint{}, fmt.Errorf("route: %w", err)
	}
	lon, okLon, err := e.Float("longitude", "lon")
	if err != nil {
		return RoutePoint{}, fmt.Errorf("route: %w", err)
	}
	if !okLat || !okLon {
		return RoutePoint{}, fmt.Errorf("route: missing coordinates")
	}
	rp := RoutePoint{RecordedAt: at, Latitude: lat, Longitude: lon}
	if alt, ok, err := e.Float("altitude"); err == nil && ok {
		rp.Altitude = &alt
	}
	return rp, nil
}
