// ABOUTME: Entry is a single raw data point inside a metric group or workout.
// ABOUTME: Typed accessors tolerate the key aliases Health Auto Export emits.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Entry is one decoded JSON object. Values are json.Number, string, bool,
// nil, []any or map[string]any.
type Entry map[string]any

// timeLayouts are tried in order when parsing timestamp strings.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTime parses the timestamp forms seen in exports. Results are UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Lookup returns the first non-nil value among keys.
func (e Entry) Lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := e[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Float returns the first present key as a float64. A present value of the
// wrong type is an error; an absent one is not.
func (e Entry) Float(keys ...string) (float64, bool, error) {
	v, ok := e.Lookup(keys...)
	if !ok {
		return 0, false, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, false, fmt.Errorf("field %s: %w", keys[0], err)
	}
	return f, true, nil
}

// Time returns the first present key parsed as a timestamp.
func (e Entry) Time(keys ...string) (time.Time, bool, error) {
	v, ok := e.Lookup(keys...)
	if !ok {
		return time.Time{}, false, nil
	}
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true, nil
	case string:
		parsed, err := ParseTime(t)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("field %s: %w", keys[0], err)
		}
		return parsed, true, nil
	default:
		return time.Time{}, false, fmt.Errorf("field %s: expected timestamp, got %T", keys[0], v)
	}
}

// String returns the first present key as a string. Numbers are rendered.
func (e Entry) String(keys ...string) (string, bool, error) {
	v, ok := e.Lookup(keys...)
	if !ok {
		return "", false, nil
	}
	switch s := v.(type) {
	case string:
		return s, true, nil
	case json.Number:
		return s.String(), true, nil
	default:
		return "", false, fmt.Errorf("field %s: expected string, got %T", keys[0], v)
	}
}

// Bool returns the first present key as a bool.
func (e Entry) Bool(keys ...string) (bool, bool, error) {
	v, ok := e.Lookup(keys...)
	if !ok {
		return false, false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, true, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, false, fmt.Errorf("field %s: %w", keys[0], err)
		}
		return parsed, true, nil
	default:
		return false, false, fmt.Errorf("field %s: expected bool, got %T", keys[0], v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}
