// ABOUTME: Tests for chunk sizing and the chunk sequence.
// ABOUTME: Property check over record counts from 0 to 100000.
package chunk

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSize(t *testing.T) {
	tests := []struct {
		name    string
		fields  int
		ceiling int
		margin  float64
		want    int
	}{
		{"vitals pair on sqlite", 6, SQLiteParamCeiling, 0.8, 4368},
		{"seven fields on postgres", 7, PostgresParamCeiling, 0.8, 7489},
		{"generic sample", 5, SQLiteParamCeiling, 0.8, 5242},
		{"wider than ceiling", 100, 50, 0.8, 1},
		{"zero fields", 0, 10, 0.8, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Size(tt.fields, tt.ceiling, tt.margin))
		})
	}
}

func collect[T any](records []T, fields, ceiling int) [][]T {
	var out [][]T
	for c := range Chunks(records, fields, ceiling) {
		out = append(out, c)
	}
	return out
}

func TestChunksProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	counts := []int{0, 1, 2, 4367, 4368, 4369, 100000}
	for i := 0; i < 40; i++ {
		counts = append(counts, rng.Intn(100001))
	}

	for _, fields := range []int{3, 5, 6, 8, 11} {
		for _, ceiling := range []int{SQLiteParamCeiling, PostgresParamCeiling, 999} {
			size := Size(fields, ceiling, DefaultSafetyMargin)
			require.LessOrEqual(t, float64(size*fields), DefaultSafetyMargin*float64(ceiling))

			for _, n := range counts {
				records := make([]int, n)
				for i := range records {
					records[i] = i
				}

				next := 0
				for _, c := range collect(records, fields, ceiling) {
					require.NotEmpty(t, c)
					require.LessOrEqual(t, len(c), size)
					require.LessOrEqual(t, len(c)*fields, ceiling)
					for _, r := range c {
						if r != next {
							t.Fatalf("fields=%d ceiling=%d n=%d: got record %d, want %d", fields, ceiling, n, r, next)
						}
						next++
					}
				}
				require.Equal(t, n, next)
			}
		}
	}
}

func TestChunksRestartable(t *testing.T) {
	records := []string{"a", "b", "c", "d", "e"}
	seq := ChunksWithMargin(records, 1, 2, 1.0)

	var first, second [][]string
	for c := range seq {
		first = append(first, c)
	}
	for c := range seq {
		second = append(second, c)
	}

	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, first)
	assert.Equal(t, first, second)
}

func TestChunksEarlyStop(t *testing.T) {
	records := make([]int, 100)
	seen := 0
	for range ChunksWithMargin(records, 1, 10, 1.0) {
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)
}

func TestChunksDoNotAlias(t *testing.T) {
	records := []int{1, 2, 3, 4}
	var chunks [][]int
	for c := range ChunksWithMargin(records, 1, 2, 1.0) {
		chunks = append(chunks, c)
	}
	require.Len(t, chunks, 2)
	chunks[0] = append(chunks[0], 99)
	assert.Equal(t, 3, records[2])
}
