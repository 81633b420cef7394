// ABOUTME: Descriptors for owned tables, the generic sample table and specialized shapes.
// ABOUTME: Natural keys here become UNIQUE constraints and ON CONFLICT targets.
package registry

import "github.com/harperreed/health-ingest/internal/models"

// Owned tables form the payload tree. Rows for these are built by storage,
// not mapped from entries.
var (
	Payloads = &Descriptor{
		Type:  "payload",
		Shape: ShapeOwned,
		Table: "payload",
		Columns: []Column{
			{Name: "fingerprint", Type: TypeText},
			{Name: "received_at", Type: TypeTime},
		},
		NaturalKey: []string{"fingerprint"},
	}

	Metrics = &Descriptor{
		Type:        "metric",
		Shape:       ShapeOwned,
		Table:       "metric",
		Parent:      "payload",
		OwnerColumn: "payload_id",
		Columns: []Column{
			{Name: "name", Type: TypeText},
			{Name: "units", Type: TypeText},
			{Name: "data_fingerprint", Type: TypeText},
		},
		NaturalKey: []string{"payload_id", "name", "data_fingerprint"},
	}

	Workouts = &Descriptor{
		Type:        "workout",
		Shape:       ShapeOwned,
		Table:       "workout",
		Parent:      "payload",
		OwnerColumn: "payload_id",
		Columns: []Column{
			{Name: "name", Type: TypeText},
			{Name: "start_at", Type: TypeTime},
			{Name: "end_at", Type: TypeTime, Nullable: true},
			{Name: "elevation", Type: TypeJSON, Nullable: true},
		},
		NaturalKey: []string{"payload_id", "name", "start_at"},
		Updatable:  []string{"end_at", "elevation"},
	}

	WorkoutValues = &Descriptor{
		Type:        "workout_value",
		Shape:       ShapeOwned,
		Table:       "workout_value",
		Parent:      "workout",
		OwnerColumn: "workout_id",
		Columns: []Column{
			{Name: "name", Type: TypeText},
			{Name: "qty", Type: TypeFloat},
			{Name: "units", Type: TypeText},
		},
		NaturalKey: []string{"workout_id", "name"},
		Updatable:  []string{"qty", "units"},
	}

	WorkoutPoints = &Descriptor{
		Type:        "workout_point",
		Shape:       ShapeOwned,
		Table:       "workout_point",
		Parent:      "workout",
		OwnerColumn: "workout_id",
		Columns: []Column{
			{Name: "stream", Type: TypeText},
			{Name: "recorded_at", Type: TypeTime},
			{Name: "qty", Type: TypeFloat},
			{Name: "units", Type: TypeText},
		},
		NaturalKey: []string{"workout_id", "stream", "recorded_at"},
		Updatable:  []string{"qty", "units"},
	}

	RoutePoints = &Descriptor{
		Type:        "workout_route_point",
		Shape:       ShapeOwned,
		Table:       "workout_route_point",
		Parent:      "workout",
		OwnerColumn: "workout_id",
		Columns: []Column{
			{Name: "recorded_at", Type: TypeTime},
			{Name: "latitude", Type: TypeFloat},
			{Name: "longitude", Type: TypeFloat},
			{Name: "altitude", Type: TypeFloat, Nullable: true},
		},
		NaturalKey: []string{"workout_id", "recorded_at"},
		Updatable:  []string{"latitude", "longitude", "altitude"},
	}
)

// Generic stores any metric type without a specialized shape.
var Generic = &Descriptor{
	Type:        "quantity",
	Shape:       ShapeGeneric,
	Table:       "quantity_sample",
	Parent:      "metric",
	OwnerColumn: "metric_id",
	Columns: []Column{
		{Name: "recorded_at", Type: TypeTime},
		{Name: "qty", Type: TypeFloat},
		{Name: "source", Type: TypeText},
	},
	NaturalKey: []string{"metric_id", "recorded_at", "source"},
	Updatable:  []string{"qty"},
	Map:        mapQuantity,
}

// specialized lists one descriptor per storage shape.
var specialized = []*Descriptor{
	{
		Type:        string(models.MetricBloodPressure),
		Shape:       ShapeSpecialized,
		Table:       "blood_pressure",
		Parent:      "metric",
		OwnerColumn: "metric_id",
		Columns: []Column{
			{Name: "recorded_at", Type: TypeTime},
			{Name: "systolic", Type: TypeFloat},
			{Name: "diastolic", Type: TypeFloat},
			{Name: "source", Type: TypeText},
		},
		NaturalKey: []string{"metric_id", "recorded_at"},
		Updatable:  []string{"systolic", "diastolic", "source"},
		Map:        mapBloodPressure,
	},
	{
		Type:        string(models.MetricHeartRate),
		Shape:       ShapeSpecialized,
		Table:       "heart_rate",
		Parent:      "metric",
		OwnerColumn: "metric_id",
		Columns: []Column{
			{Name: "recorded_at", Type: TypeTime},
			{Name: "min_bpm", Type: TypeFloat, Nullable: true},
			{Name: "avg_bpm", Type: TypeFloat, Nullable: true},
			{Name: "max_bpm", Type: TypeFloat, Nullable: true},
			{Name: "context", Type: TypeText},
			{Name: "source", Type: TypeText},
		},
		NaturalKey: []string{"metric_id", "recorded_at", "context"},
		Updatable:  []string{"min_bpm", "avg_bpm", "max_bpm", "source"},
		Map:        mapHeartRate,
	},
	{
		Type:        string(models.MetricSleepAnalysis),
		Shape:       ShapeSpecialized,
		Table:       "sleep_analysis",
		Parent:      "metric",
		OwnerColumn: "metric_id",
		Columns: []Column{
			{Name: "start_at", Type: TypeTime},
			{Name: "end_at", Type: TypeTime},
			{Name: "value", Type: TypeText},
			{Name: "qty", Type: TypeFloat, Nullable: true},
			{Name: "source", Type: TypeText},
		},
		NaturalKey: []string{"metric_id", "start_at", "end_at"},
		Updatable:  []string{"value", "qty", "source"},
		Map:        mapSleep,
	},
	{
		Type:        string(models.MetricBloodGlucose),
		Shape:       ShapeSpecialized,
		Table:       "blood_glucose",
		Parent:      "metric",
		OwnerColumn: "metric_id",
		Columns: []Column{
			{Name: "recorded_at", Type: TypeTime},
			{Name: "qty", Type: TypeFloat},
			{Name: "meal_time", Type: TypeText},
		},
		NaturalKey: []string{"metric_id", "recorded_at", "meal_time"},
		Updatable:  []string{"qty"},
		Map:        mapBloodGlucose,
	},
	{
		Type:        string(models.MetricSexualActivity),
		Shape:       ShapeSpecialized,
		Table:       "sexual_activity",
		Parent:      "metric",
		OwnerColumn: "metric_id",
		Columns: []Column{
			{Name: "recorded_at", Type: TypeTime},
			{Name: "unspecified", Type: TypeFloat, Nullable: true},
			{Name: "protection_used", Type: TypeFloat, Nullable: true},
			{Name: "protection_not_used", Type: TypeFloat, Nullable: true},
		},
		NaturalKey: []string{"metric_id", "recorded_at"},
		Updatable:  []string{"unspecified", "protection_used", "protection_not_used"},
		Map:        mapSexualActivity,
	},
	{
		Type:        string(models.MetricHandwashing),
		Aliases:     []string{string(models.MetricToothbrushing)},
		Shape:       ShapeSpecialized,
		Table:       "hygiene_event",
		Parent:      "metric",
		OwnerColumn: "metric_id",
		Columns: []Column{
			{Name: "recorded_at", Type: TypeTime},
			{Name: "qty", Type: TypeFloat, Nullable: true},
			{Name: "value", Type: TypeText},
			{Name: "source", Type: TypeText},
		},
		NaturalKey: []string{"metric_id", "recorded_at"},
		Updatable:  []string{"qty", "value", "source"},
		Map:        mapHygiene,
	},
	{
		Type:        string(models.MetricInsulinDeliver),
		Shape:       ShapeSpecialized,
		Table:       "insulin_delivery",
		Parent:      "metric",
		OwnerColumn: "metric_id",
		Columns: []Column{
			{Name: "recorded_at", Type: TypeTime},
			{Name: "qty", Type: TypeFloat},
			{Name: "reason", Type: TypeText},
		},
		NaturalKey: []string{"metric_id", "recorded_at", "reason"},
		Updatable:  []string{"qty"},
		Map:        mapInsulin,
	},
	{
		Type:        string(models.MetricSymptoms),
		Shape:       ShapeSpecialized,
		Table:       "symptom",
		Parent:      "metric",
		OwnerColumn: "metric_id",
		Columns: []Column{
			{Name: "start_at", Type: TypeTime},
			{Name: "end_at", Type: TypeTime, Nullable: true},
			{Name: "name", Type: TypeText},
			{Name: "severity", Type: TypeText},
			{Name: "user_entered", Type: TypeBool, Nullable: true},
			{Name: "source", Type: TypeText},
		},
		NaturalKey: []string{"metric_id", "start_at", "name"},
		Updatable:  []string{"end_at", "severity", "user_entered", "source"},
		Map:        mapSymptom,
	},
	{
		// Mood samples are immutable once logged.
		Type:        string(models.MetricStateOfMind),
		Shape:       ShapeSpecialized,
		Table:       "state_of_mind",
		Parent:      "metric",
		OwnerColumn: "metric_id",
		Columns: []Column{
			{Name: "start_at", Type: TypeTime},
			{Name: "end_at", Type: TypeTime, Nullable: true},
			{Name: "kind", Type: TypeText},
			{Name: "valence", Type: TypeFloat, Nullable: true},
			{Name: "valence_classification", Type: TypeText},
			{Name: "labels", Type: TypeJSON, Nullable: true},
			{Name: "associations", Type: TypeJSON, Nullable: true},
			{Name: "metadata", Type: TypeJSON, Nullable: true},
		},
		NaturalKey: []string{"metric_id", "start_at", "kind"},
		Map:        mapStateOfMind,
	},
	{
		Type:        string(models.MetricECG),
		Shape:       ShapeSpecialized,
		Table:       "ecg",
		Parent:      "metric",
		OwnerColumn: "metric_id",
		Columns: []Column{
			{Name: "start_at", Type: TypeTime},
			{Name: "end_at", Type: TypeTime, Nullable: true},
			{Name: "classification", Type: TypeText},
			{Name: "severity", Type: TypeText},
			{Name: "average_heart_rate", Type: TypeFloat, Nullable: true},
			{Name: "sampling_frequency", Type: TypeFloat, Nullable: true},
			{Name: "voltage_count", Type: TypeInt, Nullable: true},
			{Name: "voltage", Type: TypeJSON, Nullable: true},
			{Name: "source", Type: TypeText},
		},
		NaturalKey: []string{"metric_id", "start_at"},
		Updatable: []string{
			"end_at", "classification", "severity", "average_heart_rate",
			"sampling_frequency", "voltage_count", "voltage", "source",
		},
		Map: mapECG,
	},
	{
		Type:        string(models.MetricHRNotification),
		Shape:       ShapeSpecialized,
		Table:       "heart_rate_notification",
		Parent:      "metric",
		OwnerColumn: "metric_id",
		Columns: []Column{
			{Name: "start_at", Type: TypeTime},
			{Name: "end_at", Type: TypeTime},
			{Name: "threshold", Type: TypeFloat, Nullable: true},
			{Name: "heart_rate", Type: TypeJSON, Nullable: true},
			{Name: "heart_rate_variation", Type: TypeJSON, Nullable: true},
		},
		NaturalKey: []string{"metric_id", "start_at", "end_at"},
		Updatable:  []string{"threshold", "heart_rate", "heart_rate_variation"},
		Map:        mapHRNotification,
	},
}
