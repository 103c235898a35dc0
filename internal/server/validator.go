package server

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"unicode/utf8"
)

const maxFilenameLength = 255

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

// validateUpload checks an analysis request. The filename picks the
// extractor by extension, so it must be a bare name with an extension.
func validateUpload(filename string, size int) error {
	errs := make(map[string]string)
	switch {
	case strings.TrimSpace(filename) == "":
		errs["filename"] = "filename is required"
	case len(filename) > maxFilenameLength:
		errs["filename"] = fmt.Sprintf("filename must be at most %d bytes", maxFilenameLength)
	case !utf8.ValidString(filename):
		errs["filename"] = "filename must be valid UTF-8"
	case strings.ContainsAny(filename, `/\`) || filename == "." || filename == "..":
		errs["filename"] = "filename must not contain a path"
	case path.Ext(filename) == "":
		errs["filename"] = "filename must have an extension"
	}
	if size == 0 {
		errs["body"] = "document body is empty"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
