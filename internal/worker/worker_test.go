package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babblebase/filecount/internal/counter"
	"github.com/babblebase/filecount/internal/report"
	"github.com/babblebase/filecount/pkg/config"
	apperrors "github.com/babblebase/filecount/pkg/errors"
	"github.com/babblebase/filecount/pkg/kafka"
	"github.com/babblebase/filecount/pkg/metrics"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	fail   error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) only(t *testing.T) AnalysisResult {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.Len(t, p.events, 1)
	result, ok := p.events[0].Value.(AnalysisResult)
	require.True(t, ok)
	assert.Equal(t, result.ID, p.events[0].Key)
	return result
}

type failingStore struct{ report.Repository }

func (failingStore) Save(context.Context, *counter.Report) error {
	return errors.New("connection refused")
}

type blockingCounter struct{}

func (blockingCounter) CountBytes(ctx context.Context, _ string, _ []byte) (*counter.Report, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newWorker(t *testing.T) (*Worker, *recordingPublisher, *report.MemoryStore, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	engine, err := counter.NewEngine(config.Default().Counter, m)
	require.NoError(t, err)
	pub := &recordingPublisher{}
	store := report.NewMemoryStore(10)
	return New(engine, store, pub, m, time.Second), pub, store, m
}

func encode(t *testing.T, req AnalysisRequest) []byte {
	t.Helper()
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return b
}

func TestHandleMessageSuccess(t *testing.T) {
	w, pub, store, m := newWorker(t)
	value := encode(t, AnalysisRequest{ID: "req-1", Filename: "doc.txt", Content: []byte("Hi there. Hi there.")})

	require.NoError(t, w.HandleMessage(context.Background(), []byte("req-1"), value))

	result := pub.only(t)
	assert.Equal(t, StatusOK, result.Status)
	require.NotNil(t, result.Report)
	assert.Equal(t, 2, result.Report.Analysis.Total.Segments)
	assert.Equal(t, 1, result.Report.Analysis.Repetitions.Segments)

	saved, err := store.Get(context.Background(), result.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Report, saved)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkerMessagesTotal.WithLabelValues("ok")))
}

func TestHandleMessageContentIsBase64(t *testing.T) {
	w, pub, _, _ := newWorker(t)
	value := []byte(`{"id":"b64","filename":"a.txt","content":"T25lLiBUd28u"}`)
	require.NoError(t, w.HandleMessage(context.Background(), nil, value))
	assert.Equal(t, 2, pub.only(t).Report.Analysis.Total.Segments)
}

func TestHandleMessageRejectedDocument(t *testing.T) {
	w, pub, _, m := newWorker(t)
	value := encode(t, AnalysisRequest{ID: "req-2", Filename: "blob.bin", Content: []byte{0, 1, 2}})

	require.NoError(t, w.HandleMessage(context.Background(), nil, value))
	result := pub.only(t)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "unsupported_format", result.Kind)
	assert.Nil(t, result.Report)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkerMessagesTotal.WithLabelValues("failed")))
}

func TestHandleMessageDropsInvalid(t *testing.T) {
	w, pub, _, m := newWorker(t)
	require.NoError(t, w.HandleMessage(context.Background(), []byte("k"), []byte("not json")))
	require.NoError(t, w.HandleMessage(context.Background(), nil, encode(t, AnalysisRequest{Filename: "a.txt"})))
	assert.Empty(t, pub.events)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WorkerMessagesTotal.WithLabelValues("invalid")))
}

func TestHandleMessageUsesKeyAsID(t *testing.T) {
	w, pub, _, _ := newWorker(t)
	value := encode(t, AnalysisRequest{Filename: "a.txt", Content: []byte("Hello.")})
	require.NoError(t, w.HandleMessage(context.Background(), []byte("from-key"), value))
	assert.Equal(t, "from-key", pub.only(t).ID)
}

func TestHandleMessageTransientFailuresAreReturned(t *testing.T) {
	w, pub, _, _ := newWorker(t)
	value := encode(t, AnalysisRequest{ID: "r", Filename: "a.txt", Content: []byte("Hello.")})

	pub.fail = errors.New("broker down")
	assert.ErrorContains(t, w.HandleMessage(context.Background(), nil, value), "broker down")

	pub.fail = nil
	w.store = failingStore{}
	assert.ErrorContains(t, w.HandleMessage(context.Background(), nil, value), "connection refused")
	assert.Empty(t, pub.events)
}

func TestHandleMessageTimeout(t *testing.T) {
	pub := &recordingPublisher{}
	w := New(blockingCounter{}, nil, pub, nil, 10*time.Millisecond)
	value := encode(t, AnalysisRequest{ID: "slow", Filename: "a.txt", Content: []byte("x")})

	require.NoError(t, w.HandleMessage(context.Background(), nil, value))
	result := pub.only(t)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "timeout", result.Kind)
}

func TestHandleMessageCancelled(t *testing.T) {
	pub := &recordingPublisher{}
	w := New(blockingCounter{}, nil, pub, nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.HandleMessage(ctx, nil, encode(t, AnalysisRequest{ID: "c", Filename: "a.txt", Content: []byte("x")}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pub.events)
}

func TestSubmitPublishesRequest(t *testing.T) {
	pub := &recordingPublisher{}
	sub, err := NewSubmitter(pub).Submit(context.Background(), "doc.txt", []byte("Hello."))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, sub.Status)
	assert.Equal(t, "doc.txt", sub.Filename)

	require.Len(t, pub.events, 1)
	assert.Equal(t, sub.ID, pub.events[0].Key)
	req, ok := pub.events[0].Value.(AnalysisRequest)
	require.True(t, ok)
	assert.Equal(t, sub.ID, req.ID)
	assert.Equal(t, []byte("Hello."), req.Content)
}

func TestSubmitThenHandle(t *testing.T) {
	requests := &recordingPublisher{}
	sub, err := NewSubmitter(requests).Submit(context.Background(), "doc.txt", []byte("One. One."))
	require.NoError(t, err)
	require.Len(t, requests.events, 1)
	value, err := json.Marshal(requests.events[0].Value)
	require.NoError(t, err)

	w, results, _, _ := newWorker(t)
	require.NoError(t, w.HandleMessage(context.Background(), []byte(sub.ID), value))
	result := results.only(t)
	assert.Equal(t, sub.ID, result.ID)
	assert.Equal(t, 1, result.Report.Analysis.Repetitions.Segments)
}

func TestSubmitErrors(t *testing.T) {
	_, err := NewSubmitter(&recordingPublisher{}).Submit(context.Background(), "", []byte("x"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = NewSubmitter(&recordingPublisher{fail: errors.New("broker down")}).Submit(context.Background(), "a.txt", []byte("x"))
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}
