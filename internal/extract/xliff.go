package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/babblebase/filecount/internal/markup"
)

// XLIFF returns the source text of every translation unit: segment elements
// in XLIFF 2.x and trans-unit elements in XLIFF 1.2. Inline markup inside a
// source is flattened into its text. Alternative translations (alt-trans)
// are ignored.
type XLIFF struct {
	// SkipTranslated leaves out units that already have a non-blank target.
	SkipTranslated bool
}

var _ Extractor = XLIFF{}

func (XLIFF) Format() Format { return FormatXLIFF }

func (XLIFF) CanExtract(buf []byte, ext string) bool {
	switch ext {
	case "xlf", "xliff":
		return true
	}
	return sniffed(buf, "application/x-xliff+xml")
}

func (x XLIFF) Extract(buf []byte) ([]string, error) {
	dec := markup.NewDecoder(bytes.NewReader(buf))

	var (
		out          []string
		stack        []string
		text         strings.Builder
		unitDepth    int
		captureDepth int
		altDepth     int
		sources      []string
		translated   bool
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, markup.DecodeError("xliff", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			stack = append(stack, name)
			switch {
			case altDepth > 0:
			case name == "alt-trans":
				altDepth = len(stack)
			case unitDepth == 0 && (name == "segment" || name == "trans-unit"):
				unitDepth = len(stack)
				sources = sources[:0]
				translated = false
			case unitDepth > 0 && captureDepth == 0 && (name == "source" || name == "target"):
				captureDepth = len(stack)
				text.Reset()
			}
		case xml.CharData:
			if captureDepth > 0 && altDepth == 0 {
				text.Write(t)
			}
		case xml.EndElement:
			depth := len(stack)
			switch {
			case depth == altDepth:
				altDepth = 0
			case depth == captureDepth:
				s := text.String()
				if !markup.IsBlank(s) {
					if stack[depth-1] == "source" {
						sources = append(sources, s)
					} else {
						translated = true
					}
				}
				captureDepth = 0
			case depth == unitDepth:
				if !(x.SkipTranslated && translated) {
					out = append(out, sources...)
				}
				unitDepth = 0
			}
			stack = stack[:depth-1]
		}
	}
	return out, nil
}
