package errors

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorMatchesKindAndCause(t *testing.T) {
	err := Wrap(ErrMalformedMarkup, io.ErrUnexpectedEOF, "docx body")

	assert.ErrorIs(t, err, ErrMalformedMarkup)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, ErrInvalidEncoding)
	assert.Equal(t, "malformed markup: docx body: unexpected EOF", err.Error())
}

func TestAppErrorThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("loading memory: %w", New(ErrMissingCorpusMetadata, "tmx has no header"))

	assert.ErrorIs(t, err, ErrMissingCorpusMetadata)
	var appErr *AppError
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, "tmx has no header", appErr.Message)
}

func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{New(ErrNotFound, "report"), http.StatusNotFound},
		{New(ErrInvalidInput, "filename"), http.StatusBadRequest},
		{New(ErrTooLarge, "body"), http.StatusRequestEntityTooLarge},
		{New(ErrUnsupportedFormat, "bin"), http.StatusUnsupportedMediaType},
		{New(ErrInvalidEncoding, "latin1"), http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", ErrTimeout), http.StatusGatewayTimeout},
		{New(ErrUnavailable, "redis"), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
		{New(ErrNotFound, "gone").WithStatus(http.StatusGone), http.StatusGone},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatusCode(tc.err), tc.err.Error())
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(New(ErrInvalidInput, "no paths")))
	assert.Equal(t, 3, ExitCode(New(ErrUnsupportedFormat, "bin")))
	assert.Equal(t, 4, ExitCode(New(ErrMissingCorpusMetadata, "srclang")))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
}
