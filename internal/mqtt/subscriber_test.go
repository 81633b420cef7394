package mqtt

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/health-ingest/internal/ingest"
	"github.com/harperreed/health-ingest/internal/models"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 7 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type fakeIngester struct {
	res *ingest.Result
	err error
	got []*models.Payload
}

func (f *fakeIngester) Ingest(_ context.Context, p *models.Payload) (*ingest.Result, error) {
	f.got = append(f.got, p)
	return f.res, f.err
}

func TestHandleIngestsMessage(t *testing.T) {
	ing := &fakeIngester{res: &ingest.Result{Status: ingest.StatusSuccess, PayloadID: uuid.New(), MetricsProcessed: 1}}
	s := New(Config{Topic: "health/export"}, ing, nil)

	msg := &fakeMessage{
		topic:   "health/export",
		payload: []byte(`{"data":{"metrics":[{"name":"step_count","units":"count","data":[{"date":"2024-01-01T00:00:00Z","qty":5}]}]}}`),
	}
	res, err := s.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusSuccess, res.Status)
	require.Len(t, ing.got, 1)
	assert.Equal(t, "step_count", ing.got[0].Metrics[0].Name)
}

func TestHandleRejectsUndecodableMessage(t *testing.T) {
	ing := &fakeIngester{}
	s := New(Config{Topic: "health/export"}, ing, nil)

	_, err := s.Handle(context.Background(), &fakeMessage{payload: []byte("nope")})
	assert.ErrorIs(t, err, models.ErrInvalidPayload)
	assert.Empty(t, ing.got)
}

func TestHandleReportsFault(t *testing.T) {
	fault := &ingest.StorageFault{Op: "commit", Err: errors.New("gone"), Retryable: true}
	s := New(Config{Topic: "health/export"}, &fakeIngester{err: fault}, nil)

	_, err := s.Handle(context.Background(), &fakeMessage{payload: []byte(`{"workouts":[{"name":"Walk","start":"2024-01-01T00:00:00Z"}]}`)})
	assert.ErrorIs(t, err, ingest.ErrStorageFault)
}

type fakeSpool struct{ bodies [][]byte }

func (f *fakeSpool) Put(body []byte) (string, error) {
	f.bodies = append(f.bodies, body)
	return "01HZX", nil
}

func TestHandleSpoolsOnFault(t *testing.T) {
	body := []byte(`{"workouts":[{"name":"Walk","start":"2024-01-01T00:00:00Z"}]}`)
	fault := &ingest.StorageFault{Op: "commit", Err: errors.New("gone")}
	sp := &fakeSpool{}
	s := New(Config{Topic: "health/export"}, &fakeIngester{err: fault}, nil).WithSpool(sp)

	_, err := s.Handle(context.Background(), &fakeMessage{payload: body})
	assert.ErrorIs(t, err, ingest.ErrStorageFault)
	require.Len(t, sp.bodies, 1)
	assert.Equal(t, body, sp.bodies[0])

	_, err = s.Handle(context.Background(), &fakeMessage{payload: []byte("nope")})
	assert.Error(t, err)
	assert.Len(t, sp.bodies, 1, "undecodable messages are not spooled")
}

func TestRunRequiresBrokerAndTopic(t *testing.T) {
	s := New(Config{}, &fakeIngester{}, nil)
	assert.Error(t, s.Run(context.Background()))
}
