package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/babblebase/filecount/pkg/errors"
	"github.com/babblebase/filecount/pkg/kafka"
)

// StatusPending is the status of a submitted request no worker has
// answered yet.
const StatusPending = "pending"

// Submission acknowledges a request published for the worker. The outcome
// arrives on the results topic under ID.
type Submission struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Submitter publishes analysis requests to the requests topic.
type Submitter struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewSubmitter(pub Publisher) *Submitter {
	return &Submitter{
		publisher: pub,
		logger:    slog.Default().With("component", "submitter"),
	}
}

// Submit publishes one document under a fresh request ID. Requests are
// keyed by ID, so they spread over the topic's partitions.
func (s *Submitter) Submit(ctx context.Context, filename string, content []byte) (*Submission, error) {
	if filename == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, "filename is required")
	}
	req := AnalysisRequest{
		ID:          uuid.NewString(),
		Filename:    filename,
		Content:     content,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, kafka.Event{Key: req.ID, Value: req}); err != nil {
		s.logger.Error("failed to publish analysis request", "id", req.ID, "filename", filename, "error", err)
		return nil, apperrors.Wrap(apperrors.ErrUnavailable, err, "publishing analysis request")
	}
	s.logger.Info("analysis request submitted", "id", req.ID, "filename", filename, "size", len(content))
	return &Submission{
		ID:          req.ID,
		Filename:    filename,
		Status:      StatusPending,
		SubmittedAt: req.RequestedAt,
	}, nil
}
