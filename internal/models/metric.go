// ABOUTME: MetricType identifiers for the metric names Health Auto Export emits.
// ABOUTME: Types listed here have a specialized storage shape; all others are generic.
package models

import "strings"

// MetricType identifies a metric group by its export name.
type MetricType string

const (
	// Vitals
	MetricBloodPressure  MetricType = "blood_pressure"
	MetricHeartRate      MetricType = "heart_rate"
	MetricBloodGlucose   MetricType = "blood_glucose"
	MetricECG            MetricType = "ecg"
	MetricHRNotification MetricType = "heart_rate_notifications"

	// Sleep and activity
	MetricSleepAnalysis  MetricType = "sleep_analysis"
	MetricSexualActivity MetricType = "sexual_activity"

	// Hygiene events
	MetricHandwashing    MetricType = "handwashing"
	MetricToothbrushing  MetricType = "toothbrushing"
	MetricInsulinDeliver MetricType = "insulin_delivery"

	// Self-reported
	MetricSymptoms    MetricType = "symptoms"
	MetricStateOfMind MetricType = "state_of_mind"
)

// NormalizeMetricType folds a metric name to its lookup form.
func NormalizeMetricType(name string) MetricType {
	return MetricType(strings.ToLower(strings.TrimSpace(name)))
}
