// ABOUTME: The storage surface the coordinator depends on.
// ABOUTME: *storage.DB satisfies it through NewStore; tests wrap it to inject faults.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/health-ingest/internal/models"
	"github.com/harperreed/health-ingest/internal/registry"
	"github.com/harperreed/health-ingest/internal/storage"
)

// Store opens units of work.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
	Registry() *registry.Registry
}

// UnitOfWork is one transaction. Rollback after Commit must be a no-op.
type UnitOfWork interface {
	Admit(ctx context.Context, fingerprint string, receivedAt time.Time) (storage.Admission, error)
	InsertMetric(ctx context.Context, m storage.MetricRow) (uuid.UUID, bool, error)
	Upsert(ctx context.Context, d *registry.Descriptor, ownerID uuid.UUID, rows []registry.Row) (int64, error)
	UpsertWorkout(ctx context.Context, payloadID uuid.UUID, w *models.Workout) (uuid.UUID, storage.WorkoutCounts, error)
	Savepoint(ctx context.Context, name string) error
	RollbackTo(ctx context.Context, name string) error
	Release(ctx context.Context, name string) error
	Commit() error
	Rollback() error
}

type dbStore struct {
	db *storage.DB
}

// NewStore adapts a storage.DB to Store.
func NewStore(db *storage.DB) Store {
	return &dbStore{db: db}
}

func (s *dbStore) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *dbStore) Registry() *registry.Registry {
	return s.db.Registry()
}
