// Command filecount counts the segments, words and characters of documents
// and classifies them against a translation memory. It runs once over
// local files, or as an HTTP service or Kafka worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"

	apperrors "github.com/babblebase/filecount/pkg/errors"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd(version)
	if err := fang.Execute(ctx, rootCmd); err != nil {
		stop()
		os.Exit(apperrors.ExitCode(err))
	}
}
