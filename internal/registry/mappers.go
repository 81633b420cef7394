// ABOUTME: Entry-to-row mappers for each storage shape.
// ABOUTME: Missing or mistyped fields surface as ErrMalformed.
package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harperreed/health-ingest/internal/models"
)

// fields reads an entry and keeps the first error it hits.
type fields struct {
	e   models.Entry
	err error
}

func (f *fields) fail(err error) {
	if f.err == nil {
		f.err = err
	}
}

func (f *fields) time(keys ...string) any {
	t, ok, err := f.e.Time(keys...)
	if err != nil {
		f.fail(err)
		return nil
	}
	if !ok {
		f.fail(fmt.Errorf("missing %s", keys[0]))
		return nil
	}
	return t
}

func (f *fields) optTime(keys ...string) any {
	t, ok, err := f.e.Time(keys...)
	if err != nil {
		f.fail(err)
		return nil
	}
	if !ok {
		return nil
	}
	return t
}

func (f *fields) float(keys ...string) any {
	v, ok, err := f.e.Float(keys...)
	if err != nil {
		f.fail(err)
		return nil
	}
	if !ok {
		f.fail(fmt.Errorf("missing %s", keys[0]))
		return nil
	}
	return v
}

func (f *fields) optFloat(keys ...string) any {
	v, ok, err := f.e.Float(keys...)
	if err != nil {
		f.fail(err)
		return nil
	}
	if !ok {
		return nil
	}
	return v
}

func (f *fields) optInt(keys ...string) any {
	v := f.optFloat(keys...)
	if v == nil {
		return nil
	}
	return int64(v.(float64))
}

func (f *fields) text(keys ...string) string {
	s, _, err := f.e.String(keys...)
	if err != nil {
		f.fail(err)
	}
	return s
}

func (f *fields) optBool(keys ...string) any {
	b, ok, err := f.e.Bool(keys...)
	if err != nil {
		f.fail(err)
		return nil
	}
	if !ok {
		return nil
	}
	return b
}

func (f *fields) json(keys ...string) any {
	v, ok := f.e.Lookup(keys...)
	if !ok {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		f.fail(fmt.Errorf("field %s: %w", keys[0], err))
		return nil
	}
	return string(b)
}

func (f *fields) done(row Row) (Row, error) {
	if f.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, f.err)
	}
	return row, nil
}

func mapQuantity(e models.Entry) (Row, error) {
	f := &fields{e: e}
	return f.done(Row{
		"recorded_at": f.time("date"),
		"qty":         f.float("qty"),
		"source":      f.text("source"),
	})
}

func mapBloodPressure(e models.Entry) (Row, error) {
	f := &fields{e: e}
	return f.done(Row{
		"recorded_at": f.time("date"),
		"systolic":    f.float("systolic"),
		"diastolic":   f.float("diastolic"),
		"source":      f.text("source"),
	})
}

func mapHeartRate(e models.Entry) (Row, error) {
	f := &fields{e: e}
	row := Row{
		"recorded_at": f.time("date"),
		"min_bpm":     f.optFloat("Min", "min"),
		"avg_bpm":     f.optFloat("Avg", "avg", "qty"),
		"max_bpm":     f.optFloat("Max", "max"),
		"context":     f.text("context"),
		"source":      f.text("source"),
	}
	if row["min_bpm"] == nil && row["avg_bpm"] == nil && row["max_bpm"] == nil {
		f.fail(fmt.Errorf("no heart rate values"))
	}
	return f.done(row)
}

func mapSleep(e models.Entry) (Row, error) {
	f := &fields{e: e}
	return f.done(Row{
		"start_at": f.time("startDate", "start", "sleepStart", "inBedStart"),
		"end_at":   f.time("endDate", "end", "sleepEnd", "inBedEnd"),
		"value":    f.text("value"),
		"qty":      f.optFloat("qty", "totalSleep", "asleep"),
		"source":   f.text("source"),
	})
}

func mapBloodGlucose(e models.Entry) (Row, error) {
	f := &fields{e: e}
	return f.done(Row{
		"recorded_at": f.time("date"),
		"qty":         f.float("qty"),
		"meal_time":   f.text("mealTime", "meal_time"),
	})
}

func mapSexualActivity(e models.Entry) (Row, error) {
	f := &fields{e: e}
	return f.done(Row{
		"recorded_at":         f.time("date"),
		"unspecified":         f.optFloat("Unspecified", "unspecified"),
		"protection_used":     f.optFloat("Protection Used", "protection_used"),
		"protection_not_used": f.optFloat("Protection Not Used", "protection_not_used"),
	})
}

func mapHygiene(e models.Entry) (Row, error) {
	f := &fields{e: e}
	return f.done(Row{
		"recorded_at": f.time("date"),
		"qty":         f.optFloat("qty"),
		"value":       f.text("value"),
		"source":      f.text("source"),
	})
}

func mapInsulin(e models.Entry) (Row, error) {
	f := &fields{e: e}
	reason := f.text("reason")
	switch strings.ToLower(reason) {
	case "bolus":
		reason = "Bolus"
	case "basal":
		reason = "Basal"
	default:
		f.fail(fmt.Errorf("reason %q is not Bolus or Basal", reason))
	}
	return f.done(Row{
		"recorded_at": f.time("date"),
		"qty":         f.float("qty"),
		"reason":      reason,
	})
}

func mapSymptom(e models.Entry) (Row, error) {
	f := &fields{e: e}
	row := Row{
		"start_at":     f.time("start", "startDate", "date"),
		"end_at":       f.optTime("end", "endDate"),
		"name":         f.text("name"),
		"severity":     f.text("severity"),
		"user_entered": f.optBool("userEntered", "user_entered"),
		"source":       f.text("source"),
	}
	if row["name"] == "" {
		f.fail(fmt.Errorf("missing name"))
	}
	return f.done(row)
}

func mapStateOfMind(e models.Entry) (Row, error) {
	f := &fields{e: e}
	return f.done(Row{
		"start_at":               f.time("start", "startDate"),
		"end_at":                 f.optTime("end", "endDate"),
		"kind":                   f.text("kind"),
		"valence":                f.optFloat("valence"),
		"valence_classification": f.text("valenceClassification", "valence_classification"),
		"labels":                 f.json("labels"),
		"associations":           f.json("associations"),
		"metadata":               f.json("metadata"),
	})
}

func mapECG(e models.Entry) (Row, error) {
	f := &fields{e: e}
	return f.done(Row{
		"start_at":           f.time("start", "startDate"),
		"end_at":             f.optTime("end", "endDate"),
		"classification":     f.text("classification"),
		"severity":           f.text("severity"),
		"average_heart_rate": f.optFloat("averageHeartRate", "average_heart_rate"),
		"sampling_frequency": f.optFloat("samplingFrequency", "sampling_frequency"),
		"voltage_count":      f.optInt("numberOfVoltageMeasurements", "voltage_count"),
		"voltage":            f.json("voltageMeasurements", "voltage"),
		"source":             f.text("source"),
	})
}

func mapHRNotification(e models.Entry) (Row, error) {
	f := &fields{e: e}
	return f.done(Row{
		"start_at":             f.time("start", "startDate"),
		"end_at":               f.time("end", "endDate"),
		"threshold":            f.optFloat("threshold"),
		"heart_rate":           f.json("heartRate", "heart_rate"),
		"heart_rate_variation": f.json("heartRateVariation", "heart_rate_variation"),
	})
}
