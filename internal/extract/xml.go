package extract

import (
	"bytes"

	"github.com/babblebase/filecount/internal/markup"
)

// XML returns every text node of a generic XML document.
type XML struct{}

var _ Extractor = XML{}

func (XML) Format() Format { return FormatXML }

func (XML) CanExtract(buf []byte, _ string) bool {
	return sniffed(buf, "text/xml")
}

func (XML) Extract(buf []byte) ([]string, error) {
	return markup.TextNodes(bytes.NewReader(buf), "xml")
}
