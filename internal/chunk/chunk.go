// ABOUTME: Splits record lists into chunks that fit a statement parameter ceiling.
// ABOUTME: Chunk size is derived per entity type from its fields per record.
package chunk

import (
	"iter"
	"math"
)

// DefaultSafetyMargin keeps statements below the store's hard limit.
const DefaultSafetyMargin = 0.8

// Parameter ceilings of the supported stores.
const (
	SQLiteParamCeiling   = 32766
	PostgresParamCeiling = 65535
)

// Size returns how many records of fieldsPerRecord bound values fit in one
// statement: max(1, floor(margin * ceiling / fieldsPerRecord)).
func Size(fieldsPerRecord, paramCeiling int, margin float64) int {
	if fieldsPerRecord < 1 {
		fieldsPerRecord = 1
	}
	n := int(math.Floor(margin * float64(paramCeiling) / float64(fieldsPerRecord)))
	return max(1, n)
}

// Chunks yields consecutive, non-empty sub-slices of records sized for
// fieldsPerRecord under paramCeiling with the default margin. The sequence
// is lazy and may be ranged over more than once.
func Chunks[T any](records []T, fieldsPerRecord, paramCeiling int) iter.Seq[[]T] {
	return ChunksWithMargin(records, fieldsPerRecord, paramCeiling, DefaultSafetyMargin)
}

// ChunksWithMargin is Chunks with an explicit safety margin.
func ChunksWithMargin[T any](records []T, fieldsPerRecord, paramCeiling int, margin float64) iter.Seq[[]T] {
	size := Size(fieldsPerRecord, paramCeiling, margin)
	return func(yield func([]T) bool) {
		for start := 0; start < len(records); start += size {
			end := min(start+size, len(records))
			if !yield(records[start:end:end]) {
				return
			}
		}
	}
}
