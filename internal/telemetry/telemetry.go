// ABOUTME: Prometheus instruments for the ingest engine and its store.
// ABOUTME: A nil *Metrics is valid and records nothing.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Prefix = "health_ingest_"

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeSkipped   Outcome = "skipped"
)

type Metrics struct {
	payloads         *prometheus.CounterVec
	metrics          *prometheus.CounterVec
	recordsWritten   *prometheus.CounterVec
	malformedRecords *prometheus.CounterVec
	upsertStatements *prometheus.CounterVec
	upsertParams     *prometheus.HistogramVec
	duration         prometheus.Histogram
	retries          prometheus.Counter
}

// New registers every instrument with reg. Passing prometheus.NewRegistry()
// keeps tests isolated from the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		payloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: Prefix + "payloads_total",
			Help: "Number of payloads ingested grouped by result status",
		}, []string{"status"}),
		metrics: f.NewCounterVec(prometheus.CounterOpts{
			Name: Prefix + "metrics_total",
			Help: "Number of metric groups grouped by outcome",
		}, []string{"outcome"}),
		recordsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: Prefix + "records_written_total",
			Help: "Number of rows inserted or updated grouped by table",
		}, []string{"table"}),
		malformedRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: Prefix + "malformed_records_total",
			Help: "Number of data entries dropped as malformed grouped by metric type",
		}, []string{"type"}),
		upsertStatements: f.NewCounterVec(prometheus.CounterOpts{
			Name: Prefix + "upsert_statements_total",
			Help: "Number of insert statements issued grouped by table",
		}, []string{"table"}),
		upsertParams: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    Prefix + "upsert_statement_params",
			Help:    "Bound parameters per insert statement",
			Buckets: prometheus.ExponentialBuckets(4, 4, 9),
		}, []string{"table"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    Prefix + "duration_seconds",
			Help:    "Time spent ingesting one payload",
			Buckets: prometheus.DefBuckets,
		}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Name: Prefix + "retries_total",
			Help: "Number of unit-of-work retries after a retryable storage fault",
		}),
	}
}

func (m *Metrics) RecordPayload(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.payloads.With(prometheus.Labels{"status": status}).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) RecordMetric(outcome Outcome) {
	if m == nil {
		return
	}
	m.metrics.With(prometheus.Labels{"outcome": string(outcome)}).Inc()
}

func (m *Metrics) RecordRowsWritten(table string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsWritten.With(prometheus.Labels{"table": table}).Add(float64(n))
}

func (m *Metrics) RecordMalformed(metricType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.malformedRecords.With(prometheus.Labels{"type": metricType}).Add(float64(n))
}

func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// ObserveStatement satisfies storage.Observer.
func (m *Metrics) ObserveStatement(table string, rows, params int) {
	if m == nil {
		return
	}
	m.upsertStatements.With(prometheus.Labels{"table": table}).Inc()
	m.upsertParams.With(prometheus.Labels{"table": table}).Observe(float64(params))
}
