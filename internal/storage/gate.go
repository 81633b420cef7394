// ABOUTME: Idempotency gate: atomic insert-or-get of a payload fingerprint.
// ABOUTME: The INSERT itself decides admission; there is no prior existence check.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/harperreed/health-ingest/internal/registry"
)

// Admission is the gate's answer for one fingerprint.
type Admission struct {
	Admitted  bool
	PayloadID uuid.UUID
}

// Admit installs fingerprint as a new payload. When a payload with the same
// fingerprint already exists the insert does nothing and the existing id is
// returned with Admitted false. Concurrent callers block on the unique
// index until the first writer commits or rolls back.
func (t *Tx) Admit(ctx context.Context, fingerprint string, receivedAt time.Time) (Admission, error) {
	id := uuid.New()
	rec := goqu.Record{
		"id":          id.String(),
		"fingerprint": fingerprint,
		"received_at": receivedAt.UTC(),
	}

	inserted, err := t.insertOne(ctx, registry.Payloads, rec)
	if err != nil {
		return Admission{}, fmt.Errorf("admit payload: %w", err)
	}
	if inserted {
		return Admission{Admitted: true, PayloadID: id}, nil
	}

	existing, err := t.idByKey(ctx, registry.Payloads, rec)
	if err != nil {
		return Admission{}, fmt.Errorf("admit payload: %w", err)
	}
	return Admission{Admitted: false, PayloadID: existing}, nil
}
