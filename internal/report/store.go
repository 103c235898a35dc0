// Package report keeps analysis reports: a PostgreSQL store, an in-process
// fallback store and a Redis-backed result cache.
package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/babblebase/filecount/internal/counter"
	apperrors "github.com/babblebase/filecount/pkg/errors"
	"github.com/babblebase/filecount/pkg/postgres"
	"github.com/babblebase/filecount/pkg/resilience"
)

// Repository persists reports by ID.
type Repository interface {
	Save(ctx context.Context, r *counter.Report) error
	// Get returns an error matching errors.ErrNotFound for unknown IDs.
	Get(ctx context.Context, id string) (*counter.Report, error)
	// List returns up to limit reports, newest first.
	List(ctx context.Context, limit int) ([]*counter.Report, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS analysis_reports (
    id          UUID PRIMARY KEY,
    document    TEXT NOT NULL,
    format      TEXT NOT NULL DEFAULT '',
    segments    INTEGER NOT NULL,
    words       INTEGER NOT NULL,
    data        JSONB NOT NULL,
    analyzed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS analysis_reports_analyzed_at_idx ON analysis_reports (analyzed_at DESC);
`

// Store keeps reports in the analysis_reports table. The full report is
// stored as JSONB next to a few columns for querying.
type Store struct {
	db     *postgres.Client
	retry  resilience.RetryConfig
	logger *slog.Logger
}

var _ Repository = (*Store)(nil)

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db: db,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			Retryable:    retryable,
		},
		logger: slog.Default().With("component", "report-store"),
	}
}

// EnsureSchema creates the table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating analysis_reports: %w", err)
	}
	return nil
}

// Save inserts r. Saving a report ID twice keeps the first copy.
func (s *Store) Save(ctx context.Context, r *counter.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	err = resilience.Retry(ctx, "save-report", s.retry, func() error {
		return s.db.InTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO analysis_reports (id, document, format, segments, words, data, analyzed_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 ON CONFLICT (id) DO NOTHING`,
				r.ID, r.Document, string(r.Format), r.Analysis.Total.Segments, r.Analysis.Total.Words, data, r.AnalyzedAt,
			)
			return err
		})
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrUnavailable, err, "saving report")
	}
	s.logger.Debug("report saved", "id", r.ID, "document", r.Document)
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*counter.Report, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx, `SELECT data FROM analysis_reports WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "report %s", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrUnavailable, err, "querying report")
	}
	return decode(data)
}

func (s *Store) List(ctx context.Context, limit int) ([]*counter.Report, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM analysis_reports ORDER BY analyzed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrUnavailable, err, "listing reports")
	}
	defer rows.Close()

	var reports []*counter.Report
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning report row: %w", err)
		}
		r, err := decode(data)
		if err != nil {
			s.logger.Warn("skipping corrupt report", "error", err)
			continue
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func decode(data []byte) (*counter.Report, error) {
	var r counter.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshaling report: %w", err)
	}
	return &r, nil
}

// retryable excludes cancellation and deadlines, which another attempt
// cannot fix.
func retryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
