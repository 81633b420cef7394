package spool

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/health-ingest/internal/ingest"
	"github.com/harperreed/health-ingest/internal/models"
)

func body(name string) []byte {
	return []byte(`{"data":{"metrics":[{"name":"` + name + `","units":"count","data":[{"date":"2024-01-01T00:00:00Z","qty":5}]}]}}`)
}

type scriptedIngester struct {
	names []string
	errs  map[string]error
}

func (s *scriptedIngester) Ingest(_ context.Context, p *models.Payload) (*ingest.Result, error) {
	name := p.Metrics[0].Name
	if err := s.errs[name]; err != nil {
		return nil, err
	}
	s.names = append(s.names, name)
	return &ingest.Result{Status: ingest.StatusSuccess, PayloadID: uuid.New(), MetricsProcessed: 1}, nil
}

func openMem(t *testing.T) *Spool {
	t.Helper()
	s, err := Open("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReplayInArrivalOrder(t *testing.T) {
	s := openMem(t)
	for _, name := range []string{"a", "b", "c"} {
		_, err := s.Put(body(name))
		require.NoError(t, err)
	}
	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ing := &scriptedIngester{}
	stats, err := s.Replay(context.Background(), ing)
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{Stored: 3}, stats)
	assert.Equal(t, []string{"a", "b", "c"}, ing.names)

	n, err = s.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReplayStopsOnStorageFault(t *testing.T) {
	s := openMem(t)
	for _, name := range []string{"a", "b", "c"} {
		_, err := s.Put(body(name))
		require.NoError(t, err)
	}

	fault := &ingest.StorageFault{Op: "begin", Err: errors.New("database is locked"), Retryable: true}
	ing := &scriptedIngester{errs: map[string]error{"b": fault}}
	stats, err := s.Replay(context.Background(), ing)
	require.ErrorIs(t, err, ingest.ErrStorageFault)
	assert.Equal(t, ReplayStats{Stored: 1, Remaining: 2}, stats)

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	delete(ing.errs, "b")
	stats, err = s.Replay(context.Background(), ing)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Stored)
	assert.Equal(t, []string{"a", "b", "c"}, ing.names)
}

func TestReplayDropsUndecodable(t *testing.T) {
	s := openMem(t)
	_, err := s.Put([]byte("{nope"))
	require.NoError(t, err)
	_, err = s.Put(body("a"))
	require.NoError(t, err)

	stats, err := s.Replay(context.Background(), &scriptedIngester{})
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{Stored: 1, Dropped: 1}, stats)
}

func TestPutCopiesBody(t *testing.T) {
	s := openMem(t)
	b := body("a")
	_, err := s.Put(b)
	require.NoError(t, err)
	copy(b, strings.Repeat("x", len(b)))

	ing := &scriptedIngester{}
	_, err = s.Replay(context.Background(), ing)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ing.names)
}

func TestSpoolSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "spool")
	s, err := Open(dir, nil)
	require.NoError(t, err)
	_, err = s.Put(body("a"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunDrainsUntilCancelled(t *testing.T) {
	s := openMem(t)
	_, err := s.Put(body("a"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, &scriptedIngester{}, 10*time.Millisecond) }()

	require.Eventually(t, func() bool {
		n, err := s.Len()
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
