package ingest

import "github.com/google/uuid"

type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusDuplicate      Status = "duplicate"
)

// Result is the outcome of one payload.
type Result struct {
	Status            Status    `json:"status"`
	PayloadID         uuid.UUID `json:"payload_id"`
	MetricsProcessed  int       `json:"metrics_processed"`
	MetricsSkipped    int       `json:"metrics_skipped"`
	WorkoutsProcessed int       `json:"workouts_processed"`
	WorkoutsSkipped   int       `json:"workouts_skipped"`
}

func (r *Result) finish() {
	if r.MetricsSkipped == 0 && r.WorkoutsSkipped == 0 {
		r.Status = StatusSuccess
	} else {
		r.Status = StatusPartialSuccess
	}
}
