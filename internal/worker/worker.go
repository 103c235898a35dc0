// Package worker analyzes documents submitted through Kafka. Each request
// is counted, its report persisted, and the outcome published to the
// results topic under the request ID.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/babblebase/filecount/internal/counter"
	"github.com/babblebase/filecount/internal/report"
	apperrors "github.com/babblebase/filecount/pkg/errors"
	"github.com/babblebase/filecount/pkg/kafka"
	"github.com/babblebase/filecount/pkg/metrics"
	"github.com/babblebase/filecount/pkg/resilience"
)

// AnalysisRequest asks for one document to be analyzed. Content is
// base64 in JSON.
type AnalysisRequest struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Content     []byte    `json:"content"`
	RequestedAt time.Time `json:"requestedAt,omitempty"`
}

// AnalysisResult is published for every request that could be decoded.
// Exactly one of Report and Error is set.
type AnalysisResult struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Report *counter.Report `json:"report,omitempty"`
	Error  string          `json:"error,omitempty"`
	Kind   string          `json:"kind,omitempty"`
}

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Counter is the part of counter.Engine the worker uses.
type Counter interface {
	CountBytes(ctx context.Context, name string, buf []byte) (*counter.Report, error)
}

// Publisher sends results. kafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, events ...kafka.Event) error
}

type Worker struct {
	counter   Counter
	store     report.Repository
	publisher Publisher
	metrics   *metrics.Metrics
	timeout   time.Duration
	logger    *slog.Logger
}

// New builds a Worker. store and m may be nil. timeout bounds a single
// analysis; zero means unbounded.
func New(c Counter, store report.Repository, pub Publisher, m *metrics.Metrics, timeout time.Duration) *Worker {
	return &Worker{
		counter:   c,
		store:     store,
		publisher: pub,
		metrics:   m,
		timeout:   timeout,
		logger:    slog.Default().With("component", "worker"),
	}
}

// HandleMessage is the kafka.MessageHandler of the worker. Undecodable
// messages are dropped and documents the counter rejects produce a failed
// result; both are committed. Storage and publishing failures are returned
// so the message is not committed.
func (w *Worker) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	req, err := kafka.DecodeJSON[AnalysisRequest](value)
	if err != nil {
		w.logger.Error("dropping undecodable request", "key", string(key), "error", err)
		w.observe("invalid")
		return nil
	}
	if req.ID == "" {
		req.ID = string(key)
	}
	if req.ID == "" || req.Filename == "" {
		w.logger.Error("dropping request without id or filename", "key", string(key))
		w.observe("invalid")
		return nil
	}
	log := w.logger.With("request_id", req.ID, "filename", req.Filename)

	var rep *counter.Report
	err = resilience.WithTimeout(ctx, w.timeout, "analysis", func(ctx context.Context) error {
		var err error
		rep, err = w.counter.CountBytes(ctx, req.Filename, req.Content)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("analysis failed", "error", err)
		w.observe(StatusFailed)
		return w.publish(ctx, AnalysisResult{ID: req.ID, Status: StatusFailed, Error: err.Error(), Kind: kind(err)})
	}

	if w.store != nil {
		if err := w.store.Save(ctx, rep); err != nil {
			w.observe("error")
			return fmt.Errorf("saving report for %s: %w", req.ID, err)
		}
	}
	if err := w.publish(ctx, AnalysisResult{ID: req.ID, Status: StatusOK, Report: rep}); err != nil {
		w.observe("error")
		return err
	}
	log.Info("request analyzed", "report_id", rep.ID, "segments", rep.Analysis.Total.Segments)
	w.observe(StatusOK)
	return nil
}

func (w *Worker) publish(ctx context.Context, result AnalysisResult) error {
	if err := w.publisher.Publish(ctx, kafka.Event{Key: result.ID, Value: result}); err != nil {
		return fmt.Errorf("publishing result for %s: %w", result.ID, err)
	}
	return nil
}

func (w *Worker) observe(status string) {
	if w.metrics != nil {
		w.metrics.WorkerMessagesTotal.WithLabelValues(status).Inc()
	}
}

// kind names the error class of err for clients of the results topic.
func kind(err error) string {
	for _, k := range []struct {
		name string
		err  error
	}{
		{"unsupported_format", apperrors.ErrUnsupportedFormat},
		{"malformed_markup", apperrors.ErrMalformedMarkup},
		{"invalid_encoding", apperrors.ErrInvalidEncoding},
		{"too_large", apperrors.ErrTooLarge},
		{"timeout", apperrors.ErrTimeout},
		{"invalid_input", apperrors.ErrInvalidInput},
	} {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}
