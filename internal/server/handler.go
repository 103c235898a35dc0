// Package server exposes the counter over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/babblebase/filecount/internal/counter"
	"github.com/babblebase/filecount/internal/counter/hashment"
	"github.com/babblebase/filecount/internal/report"
	"github.com/babblebase/filecount/internal/worker"
	apperrors "github.com/babblebase/filecount/pkg/errors"
	"github.com/babblebase/filecount/pkg/logger"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Counter is the part of counter.Engine the handlers use.
type Counter interface {
	CountBytes(ctx context.Context, name string, buf []byte) (*counter.Report, error)
	Hasher() hashment.Hasher
	Fingerprint() string
	MemoryStats() counter.MemoryStats
}

// Submitter queues a document for the asynchronous worker.
// worker.Submitter implements it.
type Submitter interface {
	Submit(ctx context.Context, filename string, content []byte) (*worker.Submission, error)
}

// AnalysisResponse wraps a report with whether it was served from cache.
type AnalysisResponse struct {
	*counter.Report
	Cached bool `json:"cached"`
}

type Handler struct {
	counter   Counter
	cache     *report.Cache
	store     report.Repository
	submitter Submitter
	maxUpload int64
	logger    *slog.Logger
}

// NewHandler wires the handlers. cache may be nil.
func NewHandler(c Counter, cache *report.Cache, store report.Repository, maxUpload int64) *Handler {
	return &Handler{
		counter:   c,
		cache:     cache,
		store:     store,
		maxUpload: maxUpload,
		logger:    slog.Default().With("component", "server"),
	}
}

// SetSubmitter enables POST /api/v1/jobs.
func (h *Handler) SetSubmitter(s Submitter) {
	h.submitter = s
}

// Analyze counts the request body as a document named by the filename
// query parameter.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	filename := r.URL.Query().Get("filename")

	body, ok := h.readUpload(w, r, filename)
	if !ok {
		return
	}

	key := report.Key(body, filename, h.counter.Hasher().Name(), h.counter.Fingerprint())
	rep, cached, err := h.cache.GetOrCompute(ctx, key, func() (*counter.Report, error) {
		return h.counter.CountBytes(ctx, filename, body)
	})
	if err != nil {
		log.Warn("analysis failed", "filename", filename, "error", err)
		h.writeError(w, err)
		return
	}
	if err := h.store.Save(ctx, rep); err != nil {
		log.Error("saving report failed", "id", rep.ID, "error", err)
		h.writeError(w, err)
		return
	}
	log.Info("document analyzed",
		"id", rep.ID,
		"filename", filename,
		"format", rep.Format,
		"segments", rep.Analysis.Total.Segments,
		"cached", cached,
	)
	if cached {
		w.Header().Set("X-Cache", "hit")
	} else {
		w.Header().Set("X-Cache", "miss")
	}
	h.writeJSON(w, http.StatusOK, AnalysisResponse{Report: rep, Cached: cached})
}

// SubmitJob queues the request body for the worker and answers 202 with
// the request ID under which the result will be published.
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	if h.submitter == nil {
		h.writeError(w, apperrors.New(apperrors.ErrUnavailable, "asynchronous analysis is not enabled"))
		return
	}
	filename := r.URL.Query().Get("filename")
	body, ok := h.readUpload(w, r, filename)
	if !ok {
		return
	}
	sub, err := h.submitter.Submit(r.Context(), filename, body)
	if err != nil {
		logger.FromContext(r.Context()).Error("submitting job failed", "filename", filename, "error", err)
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, sub)
}

// readUpload reads and validates an uploaded document. On failure it has
// already written the response.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request, filename string) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, apperrors.Newf(apperrors.ErrTooLarge, "document exceeds %d bytes", h.maxUpload))
			return nil, false
		}
		h.writeError(w, apperrors.Wrap(apperrors.ErrInvalidInput, err, "reading body"))
		return nil, false
	}
	if err := validateUpload(filename, len(body)); err != nil {
		var verr *ValidationError
		errors.As(err, &verr)
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return nil, false
	}
	return body, true
}

// GetAnalysis returns a stored report by ID.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		h.writeError(w, apperrors.Newf(apperrors.ErrInvalidInput, "invalid report id %q", id))
		return
	}
	rep, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

// ListAnalyses returns the most recent reports.
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxListLimit)
	}
	reports, err := h.store.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if reports == nil {
		reports = []*counter.Report{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// Memory describes the loaded translation memory.
func (h *Handler) Memory(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.counter.MemoryStats())
}

// InvalidateCache drops every cached report.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	n, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.writeError(w, apperrors.Wrap(apperrors.ErrUnavailable, err, "invalidating cache"))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"keysDeleted": n})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to its HTTP status. Internal errors are not echoed
// to the client.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
