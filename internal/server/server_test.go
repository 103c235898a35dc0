package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babblebase/filecount/internal/counter"
	"github.com/babblebase/filecount/internal/report"
	"github.com/babblebase/filecount/internal/worker"
	"github.com/babblebase/filecount/pkg/config"
	apperrors "github.com/babblebase/filecount/pkg/errors"
	"github.com/babblebase/filecount/pkg/health"
	"github.com/babblebase/filecount/pkg/metrics"
	"github.com/babblebase/filecount/pkg/middleware"
)

type mapBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (b *mapBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return nil, report.ErrMiss
	}
	return v, nil
}

func (b *mapBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	return nil
}

func (b *mapBackend) FlushByPattern(_ context.Context, _ string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := int64(len(b.data))
	clear(b.data)
	return n, nil
}

type fixture struct {
	engine  *counter.Engine
	backend *mapBackend
	handler http.Handler
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Server.MaxUploadSize = 1024
	if mutate != nil {
		mutate(cfg)
	}
	m := metrics.New()
	engine, err := counter.NewEngine(cfg.Counter, m)
	require.NoError(t, err)
	backend := &mapBackend{data: map[string][]byte{}}
	cache := report.NewCache(backend, time.Minute, m)
	h := NewHandler(engine, cache, report.NewMemoryStore(10), cfg.Server.MaxUploadSize)
	var limiter *middleware.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
	}
	checker := health.NewChecker()
	checker.Register("counter", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp}
	})
	return &fixture{
		engine:  engine,
		backend: backend,
		handler: NewRouter(h, checker, m, limiter, cfg.Server),
	}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) AnalysisResponse {
	t.Helper()
	var resp AnalysisResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestAnalyzeThenGet(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.Remember("Hello world.")

	rec := f.do(http.MethodPost, "/api/v1/analyses?filename=doc.txt", "Hello world. Hello world. Bye.")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "miss", rec.Header().Get("X-Cache"))
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Cached)
	assert.Equal(t, "doc.txt", resp.Document)
	assert.Equal(t, 3, resp.Analysis.Total.Segments)
	assert.Equal(t, 1, resp.Analysis.Repetitions.Segments)
	assert.Equal(t, 2, resp.Analysis.Matches.Segments)

	rec = f.do(http.MethodGet, "/api/v1/analyses/"+resp.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stored counter.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stored))
	assert.Equal(t, resp.ID, stored.ID)
	assert.Equal(t, resp.Analysis, stored.Analysis)

	rec = f.do(http.MethodGet, "/api/v1/analyses", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), resp.ID)
}

func TestAnalyzeServesRepeatsFromCache(t *testing.T) {
	f := newFixture(t, nil)

	first := decodeResponse(t, f.do(http.MethodPost, "/api/v1/analyses?filename=doc.txt", "One. Two."))
	rec := f.do(http.MethodPost, "/api/v1/analyses?filename=doc.txt", "One. Two.")
	assert.Equal(t, "hit", rec.Header().Get("X-Cache"))
	second := decodeResponse(t, rec)
	assert.True(t, second.Cached)
	assert.Equal(t, first.ID, second.ID)

	f.engine.Remember("One.")
	rec = f.do(http.MethodPost, "/api/v1/analyses?filename=doc.txt", "One. Two.")
	assert.Equal(t, "miss", rec.Header().Get("X-Cache"), "a memory change invalidates the key")
	assert.Equal(t, 1, decodeResponse(t, rec).Analysis.Matches.Segments)

	rec = f.do(http.MethodPost, "/api/v1/cache/invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.backend.data)
}

func TestAnalyzeRejectsBadRequests(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		target string
		body   string
		status int
		substr string
	}{
		{"missing filename", "/api/v1/analyses", "Hi.", http.StatusBadRequest, "filename is required"},
		{"path in filename", "/api/v1/analyses?filename=../etc/passwd.txt", "Hi.", http.StatusBadRequest, "must not contain a path"},
		{"no extension", "/api/v1/analyses?filename=README", "Hi.", http.StatusBadRequest, "extension"},
		{"empty body", "/api/v1/analyses?filename=a.txt", "", http.StatusBadRequest, "empty"},
		{"too large", "/api/v1/analyses?filename=a.txt", strings.Repeat("a", 2048), http.StatusRequestEntityTooLarge, "exceeds"},
		{"unsupported", "/api/v1/analyses?filename=a.bin", "\x00\x01\x02", http.StatusUnsupportedMediaType, "no rule matched"},
		{"bad encoding", "/api/v1/analyses?filename=a.txt", "\xff\xfe", http.StatusUnprocessableEntity, "UTF-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.substr)
		})
	}
}

func TestGetAnalysisErrors(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/analyses/not-a-uuid", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/analyses/0b6f7d3e-2c4a-4f7e-9a51-3c2d1e0f9a8b", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/analyses?limit=0", "").Code)
}

func TestMemoryEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.Remember("Hello.")

	rec := f.do(http.MethodGet, "/api/v1/memory", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats counter.MemoryStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, counter.MemoryStats{Loaded: true, Entries: 1, Hasher: "xxh64+trim", Fingerprint: f.engine.Fingerprint()}, stats)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health/ready", "").Code)

	f.do(http.MethodPost, "/api/v1/analyses?filename=doc.txt", "Hello.")
	rec := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `filecount_documents_total{format="txt",status="ok"} 1`)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestMetricsUseRoutePatterns(t *testing.T) {
	f := newFixture(t, nil)
	f.do(http.MethodGet, "/api/v1/analyses/0b6f7d3e-2c4a-4f7e-9a51-3c2d1e0f9a8b", "")
	f.do(http.MethodGet, "/api/v1/analyses/7c1e2f4a-9b3d-4e6f-8a0b-1c2d3e4f5a6b", "")
	f.do(http.MethodGet, "/nowhere/1", "")
	f.do(http.MethodGet, "/nowhere/2", "")

	body := f.do(http.MethodGet, "/metrics", "").Body.String()
	assert.Contains(t, body, `http_requests_total{method="GET",path="GET /api/v1/analyses/{id}",status="404"} 2`)
	assert.Contains(t, body, `http_requests_total{method="GET",path="unmatched",status="404"} 2`)
	assert.NotContains(t, body, "/nowhere")
}

func TestAnalyzeRateLimited(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Server.RateLimit = 1 })
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/analyses?filename=a.txt", "A.").Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/api/v1/analyses?filename=a.txt", "A.").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/memory", "").Code)
}

func TestValidationErrorMessage(t *testing.T) {
	err := validateUpload("", 0)
	require.Error(t, err)
	assert.Equal(t, "body: document body is empty; filename: filename is required", err.Error())
	assert.NoError(t, validateUpload("report.docx", 10))
}

type fakeSubmitter struct {
	got []string
	err error
}

func (s *fakeSubmitter) Submit(_ context.Context, filename string, content []byte) (*worker.Submission, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.got = append(s.got, filename+":"+string(content))
	return &worker.Submission{ID: "job-1", Filename: filename, Status: worker.StatusPending}, nil
}

func TestSubmitJob(t *testing.T) {
	cfg := config.Default()
	engine, err := counter.NewEngine(cfg.Counter, nil)
	require.NoError(t, err)
	h := NewHandler(engine, nil, report.NewMemoryStore(1), 1024)
	router := NewRouter(h, health.NewChecker(), metrics.New(), nil, cfg.Server)
	do := func(target, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, strings.NewReader(body)))
		return rec
	}

	rec := do("/api/v1/jobs?filename=a.txt", "Hello.")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	sub := &fakeSubmitter{}
	h.SetSubmitter(sub)
	rec = do("/api/v1/jobs?filename=a.txt", "Hello.")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var got worker.Submission
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "job-1", got.ID)
	assert.Equal(t, worker.StatusPending, got.Status)
	assert.Equal(t, []string{"a.txt:Hello."}, sub.got)

	assert.Equal(t, http.StatusBadRequest, do("/api/v1/jobs", "Hello.").Code)

	sub.err = apperrors.New(apperrors.ErrUnavailable, "broker down")
	rec = do("/api/v1/jobs?filename=a.txt", "Hello.")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "broker down")
}
