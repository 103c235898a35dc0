package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/babblebase/filecount/internal/counter"
	"github.com/babblebase/filecount/internal/worker"
	apperrors "github.com/babblebase/filecount/pkg/errors"
	"github.com/babblebase/filecount/pkg/kafka"
)

func NewSubmitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <path>...",
		Short: "Queue documents for the worker",
		Long: `Publish documents to the analysis requests topic. Each document gets a
request ID; the worker publishes its report under that ID to the results
topic.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			producer := kafka.NewProducer(a.cfg.Kafka, a.cfg.Kafka.Topics.AnalysisRequests)
			defer producer.Close()

			subs, err := submitFiles(cmd.Context(), worker.NewSubmitter(producer), args, a.cfg.Server.MaxUploadSize)
			if err != nil {
				return err
			}
			if asJSON {
				return outputJSON(cmd, subs)
			}
			return outputSubmissions(cmd.OutOrStdout(), subs)
		},
	}

	cmd.Flags().Bool("json", false, "Output in JSON format")
	return cmd
}

// submitFiles publishes every file below paths and stops at the first
// failure. Files larger than maxSize are refused before anything is sent.
func submitFiles(ctx context.Context, sub *worker.Submitter, paths []string, maxSize int64) ([]*worker.Submission, error) {
	files, err := counter.ExpandPaths(paths)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err, "expand paths")
	}
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.Size() > maxSize {
			return nil, apperrors.Newf(apperrors.ErrTooLarge, "%s is %d bytes, limit is %d", path, info.Size(), maxSize)
		}
	}

	subs := make([]*worker.Submission, 0, len(files))
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return subs, fmt.Errorf("reading %s: %w", path, err)
		}
		s, err := sub.Submit(ctx, filepath.Base(path), content)
		if err != nil {
			return subs, fmt.Errorf("submitting %s: %w", path, err)
		}
		subs = append(subs, s)
	}
	return subs, nil
}

func outputSubmissions(w io.Writer, subs []*worker.Submission) error {
	for _, s := range subs {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", s.ID, s.Filename); err != nil {
			return err
		}
	}
	return nil
}
