// Package extract pulls the translatable text sections out of documents.
//
// Every supported format has an Extractor. Rules holds them in priority
// order and dispatches a document to the first one that accepts it, based
// on the file extension and the content's sniffed media type.
//
// Supported formats:
//   - XLIFF 1.2 and 2.x (.xlf, .xliff): untranslated sources
//   - plain text (.txt): the whole file
//   - XML (sniffed): every text node
//   - DOCX (sniffed): one section per paragraph
//   - JSON (.json): every string value
//   - PPTX (sniffed): every text run of every slide
//   - XLSX (sniffed): every shared string
//   - HTML (.html, .htm, .htmlx or sniffed): visible text blocks
package extract

import (
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	apperrors "github.com/babblebase/filecount/pkg/errors"
)

// Format names a document format.
type Format string

const (
	FormatTXT   Format = "txt"
	FormatXML   Format = "xml"
	FormatJSON  Format = "json"
	FormatHTML  Format = "html"
	FormatXLIFF Format = "xliff"
	FormatDOCX  Format = "docx"
	FormatPPTX  Format = "pptx"
	FormatXLSX  Format = "xlsx"
)

// Extractor handles one document format.
type Extractor interface {
	Format() Format
	// CanExtract reports whether buf, whose file extension is ext (lower
	// case, without the dot), is in this extractor's format.
	CanExtract(buf []byte, ext string) bool
	// Extract returns the sections of buf in document order.
	Extract(buf []byte) ([]string, error)
}

// Options tunes the default extractors.
type Options struct {
	// SkipTranslated leaves out XLIFF sources whose target is already
	// filled in, so only outstanding work is counted.
	SkipTranslated bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{SkipTranslated: true}
}

// Rules is an ordered set of extractors. The first extractor that accepts a
// document wins.
type Rules struct {
	rules  []Extractor
	logger *slog.Logger
}

// NewRules returns Rules trying the given extractors in order.
func NewRules(rules ...Extractor) *Rules {
	return &Rules{
		rules:  rules,
		logger: slog.Default().With("component", "extract"),
	}
}

// DefaultRules returns the built-in extractors. XLIFF precedes the generic
// XML rule and HTML comes last, since XHTML also sniffs as XML.
func DefaultRules(opts Options) *Rules {
	return NewRules(
		XLIFF{SkipTranslated: opts.SkipTranslated},
		TXT{},
		XML{},
		DOCX{},
		JSON{},
		PPTX{},
		XLSX{},
		HTML{},
	)
}

// Add appends an extractor with the lowest priority.
func (r *Rules) Add(rule Extractor) {
	r.rules = append(r.rules, rule)
}

// Formats lists the formats in priority order.
func (r *Rules) Formats() []Format {
	out := make([]Format, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule.Format())
	}
	return out
}

// Detect returns the extractor for a document without extracting it.
func (r *Rules) Detect(buf []byte, name string) (Extractor, error) {
	ext := Ext(name)
	for _, rule := range r.rules {
		if rule.CanExtract(buf, ext) {
			return rule, nil
		}
	}
	return nil, apperrors.Newf(apperrors.ErrUnsupportedFormat, "no rule matched %q", name)
}

// Extract returns the format and sections of a document named name.
func (r *Rules) Extract(buf []byte, name string) (Format, []string, error) {
	rule, err := r.Detect(buf, name)
	if err != nil {
		return "", nil, err
	}
	sections, err := rule.Extract(buf)
	if err != nil {
		return rule.Format(), nil, err
	}
	r.logger.Debug("document extracted",
		"name", name,
		"format", rule.Format(),
		"sections", len(sections),
	)
	return rule.Format(), sections, nil
}

// Ext returns the lower-case extension of name without the dot.
func Ext(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// sniffed reports whether buf's detected media type is mime or a subtype of
// it, such as image/svg+xml under text/xml.
func sniffed(buf []byte, mime string) bool {
	for m := mimetype.Detect(buf); m != nil; m = m.Parent() {
		if m.Is(mime) {
			return true
		}
	}
	return false
}

func validUTF8(what string, buf []byte) error {
	if !utf8.Valid(buf) {
		return apperrors.Newf(apperrors.ErrInvalidEncoding, "%s is not valid UTF-8", what)
	}
	return nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func trimBOM(buf []byte) []byte {
	if len(buf) >= 3 && buf[0] == utf8BOM[0] && buf[1] == utf8BOM[1] && buf[2] == utf8BOM[2] {
		return buf[3:]
	}
	return buf
}
