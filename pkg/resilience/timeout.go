package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/babblebase/filecount/pkg/errors"
)

// WithTimeout runs fn with a context cancelled after timeout. When fn
// overruns, WithTimeout returns without waiting for it and the error
// matches both context.DeadlineExceeded and errors.ErrTimeout. fn must
// honour ctx to release its resources.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return apperrors.Wrap(apperrors.ErrTimeout, context.DeadlineExceeded, fmt.Sprintf("%s exceeded %v", name, timeout))
	}
}
