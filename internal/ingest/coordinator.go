// ABOUTME: Ingestion coordinator: fingerprint, admit, write metrics and workouts, commit.
// ABOUTME: One payload is one transaction; each metric and workout runs under a savepoint.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"

	"github.com/harperreed/health-ingest/internal/fingerprint"
	"github.com/harperreed/health-ingest/internal/logger"
	"github.com/harperreed/health-ingest/internal/models"
	"github.com/harperreed/health-ingest/internal/registry"
	"github.com/harperreed/health-ingest/internal/storage"
	"github.com/harperreed/health-ingest/internal/telemetry"
)

const (
	spMetric  = "sp_metric"
	spWorkout = "sp_workout"
)

// Ingester is what transports call.
type Ingester interface {
	Ingest(ctx context.Context, p *models.Payload) (*Result, error)
}

// RetryPolicy bounds whole-payload retries after a retryable StorageFault.
type RetryPolicy struct {
	Attempts       uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Config struct {
	// Timeout bounds one payload including retries. Zero disables it.
	Timeout time.Duration
	Retry   RetryPolicy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout: 2 * time.Minute,
		Retry: RetryPolicy{
			Attempts:       3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
	}
}

type Coordinator struct {
	store    Store
	registry *registry.Registry
	log      *logger.Logger
	metrics  *telemetry.Metrics
	cfg      Config
	now      func() time.Time
}

// New builds a coordinator. metrics may be nil.
func New(store Store, log *logger.Logger, metrics *telemetry.Metrics, cfg Config) *Coordinator {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = 1
	}
	return &Coordinator{
		store:    store,
		registry: store.Registry(),
		log:      log.With("component", "ingest"),
		metrics:  metrics,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Ingest persists p exactly once. A payload whose fingerprint is already
// stored returns StatusDuplicate without writing anything. On error nothing
// from p was committed and the caller may resubmit it.
func (c *Coordinator) Ingest(ctx context.Context, p *models.Payload) (*Result, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil payload", models.ErrInvalidPayload)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()

	fp, err := fingerprint.Payload(ctx, p)
	if err != nil {
		return nil, err
	}
	log := c.log.With("fingerprint", fp[:16])
	receivedAt := c.now()

	var res *Result
	err = retry.Do(
		func() error {
			var err error
			res, err = c.ingestOnce(ctx, log, p, fp, receivedAt)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.cfg.Retry.Attempts),
		retry.Delay(c.cfg.Retry.InitialBackoff),
		retry.MaxDelay(c.cfg.Retry.MaxBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			c.metrics.RecordRetry()
			log.Warn("retrying payload", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		var f *StorageFault
		if !errors.As(err, &f) {
			err = fault("ingest", err)
		}
		c.metrics.RecordPayload("error", time.Since(start))
		log.Error("payload failed", "error", err)
		return nil, err
	}

	c.metrics.RecordPayload(string(res.Status), time.Since(start))
	log.Info("payload ingested",
		"payload_id", res.PayloadID,
		"status", res.Status,
		"metrics_processed", res.MetricsProcessed,
		"metrics_skipped", res.MetricsSkipped,
		"workouts_processed", res.WorkoutsProcessed,
		"workouts_skipped", res.WorkoutsSkipped,
		"elapsed", time.Since(start),
	)
	return res, nil
}

func (c *Coordinator) ingestOnce(ctx context.Context, log *logger.Logger, p *models.Payload, fp string, receivedAt time.Time) (*Result, error) {
	uow, err := c.store.Begin(ctx)
	if err != nil {
		return nil, fault("begin", err)
	}
	defer func() { _ = uow.Rollback() }()

	adm, err := uow.Admit(ctx, fp, receivedAt)
	if err != nil {
		return nil, fault("admit", err)
	}
	if !adm.Admitted {
		return &Result{
			Status:          StatusDuplicate,
			PayloadID:       adm.PayloadID,
			MetricsSkipped:  len(p.Metrics),
			WorkoutsSkipped: len(p.Workouts),
		}, nil
	}

	res := &Result{PayloadID: adm.PayloadID}
	log = log.With("payload_id", adm.PayloadID)

	for i := range p.Metrics {
		ok, err := c.processMetric(ctx, log, uow, adm.PayloadID, &p.Metrics[i])
		if err != nil {
			return nil, err
		}
		if ok {
			res.MetricsProcessed++
			c.metrics.RecordMetric(telemetry.OutcomeProcessed)
		} else {
			res.MetricsSkipped++
			c.metrics.RecordMetric(telemetry.OutcomeSkipped)
		}
	}

	for i, raw := range p.Workouts {
		ok, err := c.processWorkout(ctx, log.With("workout_index", i), uow, adm.PayloadID, raw)
		if err != nil {
			return nil, err
		}
		if ok {
			res.WorkoutsProcessed++
		} else {
			res.WorkoutsSkipped++
		}
	}

	if err := uow.Commit(); err != nil {
		return nil, fault("commit", err)
	}
	res.finish()
	return res, nil
}

// processMetric reports whether the metric was written. Skips are logged
// here; only a StorageFault is returned.
func (c *Coordinator) processMetric(ctx context.Context, log *logger.Logger, uow UnitOfWork, payloadID uuid.UUID, m *models.MetricGroup) (bool, error) {
	log = log.With("metric", m.Name)

	desc, err := c.registry.Lookup(m.Name)
	if err != nil {
		return false, fault("lookup "+m.Name, err)
	}
	dataFP, err := fingerprint.Metric(m.Name, m.Data)
	if err != nil {
		log.Warn("metric skipped", "reason", "unhashable data", "error", err)
		return false, nil
	}

	if err := uow.Savepoint(ctx, spMetric); err != nil {
		return false, fault("savepoint", err)
	}
	ok, err := c.writeMetric(ctx, log, uow, desc, storage.MetricRow{
		PayloadID:       payloadID,
		Name:            m.Name,
		Units:           m.Units,
		DataFingerprint: dataFP,
	}, m.Data)
	if err != nil {
		if storage.Classify(err) != storage.ClassRecordScoped {
			return false, fault("write metric "+m.Name, err)
		}
		log.Warn("metric skipped", "reason", "rejected by store", "error", err)
		ok = false
	}
	if !ok {
		if err := uow.RollbackTo(ctx, spMetric); err != nil {
			return false, fault("rollback to savepoint", err)
		}
	}
	if err := uow.Release(ctx, spMetric); err != nil {
		return false, fault("release savepoint", err)
	}
	return ok, nil
}

func (c *Coordinator) writeMetric(ctx context.Context, log *logger.Logger, uow UnitOfWork, desc *registry.Descriptor, row storage.MetricRow, data []models.Entry) (bool, error) {
	metricID, inserted, err := uow.InsertMetric(ctx, row)
	if err != nil {
		return false, err
	}
	if !inserted {
		log.Info("metric skipped", "reason", "duplicate")
		return false, nil
	}

	rows := make([]registry.Row, 0, len(data))
	malformed := 0
	for i, entry := range data {
		r, err := desc.Map(entry)
		if err != nil {
			malformed++
			log.Warn("malformed record dropped", "index", i, "error", err)
			continue
		}
		rows = append(rows, r)
	}
	c.metrics.RecordMalformed(desc.Type, malformed)
	if len(data) > 0 && len(rows) == 0 {
		log.Warn("metric skipped", "reason", "no valid records", "malformed", malformed)
		return false, nil
	}

	n, err := uow.Upsert(ctx, desc, metricID, rows)
	if err != nil {
		return false, err
	}
	c.metrics.RecordRowsWritten(desc.Table, n)
	log.Debug("metric written", "table", desc.Table, "records", len(rows), "written", n, "malformed", malformed)
	return true, nil
}

func (c *Coordinator) processWorkout(ctx context.Context, log *logger.Logger, uow UnitOfWork, payloadID uuid.UUID, raw models.Entry) (bool, error) {
	w, errs := models.ParseWorkout(raw)
	for _, err := range errs {
		log.Warn("malformed workout data dropped", "error", err)
	}
	c.metrics.RecordMalformed("workout", len(errs))
	if w == nil {
		return false, nil
	}
	log = log.With("workout", w.Name)

	if err := uow.Savepoint(ctx, spWorkout); err != nil {
		return false, fault("savepoint", err)
	}
	ok := true
	_, counts, err := uow.UpsertWorkout(ctx, payloadID, w)
	if err != nil {
		if storage.Classify(err) != storage.ClassRecordScoped {
			return false, fault("write workout "+w.Name, err)
		}
		log.Warn("workout skipped", "reason", "rejected by store", "error", err)
		ok = false
		if err := uow.RollbackTo(ctx, spWorkout); err != nil {
			return false, fault("rollback to savepoint", err)
		}
	}
	if err := uow.Release(ctx, spWorkout); err != nil {
		return false, fault("release savepoint", err)
	}
	if ok {
		c.metrics.RecordRowsWritten(registry.Workouts.Table, 1)
		c.metrics.RecordRowsWritten(registry.WorkoutValues.Table, counts.Values)
		c.metrics.RecordRowsWritten(registry.WorkoutPoints.Table, counts.Points)
		c.metrics.RecordRowsWritten(registry.RoutePoints.Table, counts.Route)
	}
	return ok, nil
}
