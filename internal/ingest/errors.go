// ABOUTME: Error taxonomy for payload ingestion.
// ABOUTME: StorageFault aborts the unit of work; record-scoped failures never leave the coordinator.
package ingest

import (
	"errors"
	"fmt"

	"github.com/harperreed/health-ingest/internal/storage"
)

// ErrStorageFault matches every *StorageFault via errors.Is.
var ErrStorageFault = errors.New("storage fault")

// StorageFault is a storage error that was not scoped to a single metric or
// workout. Nothing from the payload was committed.
type StorageFault struct {
	Op        string
	Err       error
	Retryable bool
}

func (f *StorageFault) Error() string {
	return fmt.Sprintf("storage fault: %s: %v", f.Op, f.Err)
}

func (f *StorageFault) Unwrap() error { return f.Err }

func (f *StorageFault) Is(target error) bool { return target == ErrStorageFault }

func fault(op string, err error) *StorageFault {
	return &StorageFault{Op: op, Err: err, Retryable: storage.Classify(err) == storage.ClassRetryable}
}

// IsRetryable reports whether err is a StorageFault worth retrying.
func IsRetryable(err error) bool {
	var f *StorageFault
	return errors.As(err, &f) && f.Retryable
}
