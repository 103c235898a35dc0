// Package errors defines the error kinds shared by the counter, its
// persistence layers and its outer surfaces, together with their HTTP status
// and CLI exit code mappings.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnsupportedFormat     = errors.New("unsupported format")
	ErrMalformedMarkup       = errors.New("malformed markup")
	ErrInvalidEncoding       = errors.New("invalid encoding")
	ErrMissingCorpusMetadata = errors.New("missing corpus metadata")
	ErrCorruptSnapshot       = errors.New("corrupt memory snapshot")
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("not found")
	ErrTooLarge              = errors.New("input too large")
	ErrTimeout               = errors.New("operation timed out")
	ErrUnavailable           = errors.New("service unavailable")
	ErrInternal              = errors.New("internal error")
)

// AppError attaches a message, and optionally the underlying cause, to one of
// the sentinel kinds above. errors.Is matches both the kind and the cause.
type AppError struct {
	Err        error
	Message    string
	Cause      error
	StatusCode int
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Err.Error(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap records cause under the given kind.
func Wrap(sentinel error, cause error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
		Cause:   cause,
	}
}

// WithStatus overrides the HTTP status derived from the kind.
func (e *AppError) WithStatus(code int) *AppError {
	e.StatusCode = code
	return e
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrMalformedMarkup), errors.Is(err, ErrInvalidEncoding),
		errors.Is(err, ErrMissingCorpusMetadata), errors.Is(err, ErrCorruptSnapshot):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode maps an error to a process exit status. Usage errors exit with 2,
// unreadable or unsupported input with 3, memory corpus problems with 4 and
// everything else with 1.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidInput):
		return 2
	case errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrMalformedMarkup),
		errors.Is(err, ErrInvalidEncoding), errors.Is(err, ErrTooLarge):
		return 3
	case errors.Is(err, ErrMissingCorpusMetadata), errors.Is(err, ErrCorruptSnapshot):
		return 4
	default:
		return 1
	}
}
