// Package markup holds the XML decoding conventions shared by the memory
// corpus reader and the document extractors.
package markup

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"unicode"

	"golang.org/x/net/html/charset"

	apperrors "github.com/babblebase/filecount/pkg/errors"
)

// NewDecoder returns a strict XML decoder that also accepts documents
// declaring a legacy encoding such as ISO-8859-1 or UTF-16.
func NewDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

// DecodeError classifies a decoder error as an encoding or markup problem.
func DecodeError(what string, err error) error {
	if strings.Contains(err.Error(), "invalid UTF-8") {
		return apperrors.Wrap(apperrors.ErrInvalidEncoding, err, what)
	}
	return apperrors.Wrap(apperrors.ErrMalformedMarkup, err, what)
}

// IsBlank reports whether s holds only whitespace.
func IsBlank(s string) bool {
	return strings.TrimFunc(s, unicode.IsSpace) == ""
}

// Attr finds an attribute by local name, so xml:lang and lang both match.
func Attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// TextNodes returns the non-blank text nodes of an XML document in document
// order. Adjacent character data, such as text followed by a CDATA section,
// forms one node.
func TextNodes(r io.Reader, what string) ([]string, error) {
	dec := NewDecoder(r)

	var (
		out  []string
		text strings.Builder
	)
	flush := func() {
		if text.Len() == 0 {
			return
		}
		if s := text.String(); !IsBlank(s) {
			out = append(out, s)
		}
		text.Reset()
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, DecodeError(what, err)
		}
		switch t := tok.(type) {
		case xml.StartElement, xml.EndElement:
			flush()
		case xml.CharData:
			text.Write(t)
		}
	}
	flush()
	return out, nil
}
