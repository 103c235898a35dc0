package extract

import (
	"archive/zip"
	"bytes"
	"cmp"
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/babblebase/filecount/internal/markup"
	apperrors "github.com/babblebase/filecount/pkg/errors"
)

const (
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeZIP  = "application/zip"

	// maxPartSize bounds the decompressed size of a single archive part.
	maxPartSize = 256 << 20
)

// DOCX returns one section per paragraph of word/document.xml. Runs are
// concatenated, tabs become two spaces and line breaks become newlines.
type DOCX struct{}

var _ Extractor = DOCX{}

func (DOCX) Format() Format { return FormatDOCX }

func (DOCX) CanExtract(buf []byte, ext string) bool {
	return officeSniff(buf, ext, "docx", mimeDOCX)
}

func (DOCX) Extract(buf []byte) ([]string, error) {
	zr, err := openZip(buf, "docx")
	if err != nil {
		return nil, err
	}
	return partParagraphs(zr, "word/document.xml", "docx", paragraphSpec{para: "p", text: "t"})
}

// PPTX returns one section per text paragraph of every slide, slides in
// slide-number order.
type PPTX struct{}

var _ Extractor = PPTX{}

func (PPTX) Format() Format { return FormatPPTX }

func (PPTX) CanExtract(buf []byte, ext string) bool {
	return officeSniff(buf, ext, "pptx", mimePPTX)
}

var slidePart = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func (PPTX) Extract(buf []byte) ([]string, error) {
	zr, err := openZip(buf, "pptx")
	if err != nil {
		return nil, err
	}

	type slide struct {
		num  int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		m := slidePart.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, name: f.Name})
	}
	slices.SortFunc(slides, func(a, b slide) int { return cmp.Compare(a.num, b.num) })

	var out []string
	for _, s := range slides {
		paras, err := partParagraphs(zr, s.name, "pptx", paragraphSpec{para: "p", text: "t"})
		if err != nil {
			return nil, err
		}
		out = append(out, paras...)
	}
	return out, nil
}

// XLSX returns every shared string of a workbook. Rich-text runs of a
// string are concatenated; phonetic guides are left out.
type XLSX struct{}

var _ Extractor = XLSX{}

func (XLSX) Format() Format { return FormatXLSX }

func (XLSX) CanExtract(buf []byte, ext string) bool {
	return officeSniff(buf, ext, "xlsx", mimeXLSX)
}

func (XLSX) Extract(buf []byte) ([]string, error) {
	zr, err := openZip(buf, "xlsx")
	if err != nil {
		return nil, err
	}
	if findPart(zr, "xl/sharedStrings.xml") == nil {
		return nil, nil
	}
	return partParagraphs(zr, "xl/sharedStrings.xml", "xlsx", paragraphSpec{para: "si", text: "t", skip: "rPh"})
}

// officeSniff accepts content sniffed as the given OOXML type, or a zip
// archive carrying the matching extension, since sniffing relies on the
// archive's entry order.
func officeSniff(buf []byte, ext, wantExt, mime string) bool {
	if sniffed(buf, mime) {
		return true
	}
	return ext == wantExt && sniffed(buf, mimeZIP)
}

func openZip(buf []byte, what string) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMalformedMarkup, err, what+" archive")
	}
	return zr, nil
}

func findPart(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func openPart(zr *zip.Reader, name, what string) (io.ReadCloser, error) {
	f := findPart(zr, name)
	if f == nil {
		return nil, apperrors.Newf(apperrors.ErrMalformedMarkup, "%s archive has no %s", what, name)
	}
	if f.UncompressedSize64 > maxPartSize {
		return nil, apperrors.Newf(apperrors.ErrTooLarge, "%s part %s expands to %d bytes", what, name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMalformedMarkup, err, what+" "+name)
	}
	return rc, nil
}

// paragraphSpec names the elements of an OOXML part: para delimits a
// section, text holds its characters and skip marks subtrees to ignore.
type paragraphSpec struct {
	para string
	text string
	skip string
}

func partParagraphs(zr *zip.Reader, name, what string, spec paragraphSpec) ([]string, error) {
	rc, err := openPart(zr, name, what)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return paragraphs(io.LimitReader(rc, maxPartSize), what, spec)
}

// paragraphs collects the text of every para element in start order.
// Nested paragraphs, such as text boxes inside a Word paragraph, get their
// own section and do not repeat in the enclosing one.
func paragraphs(r io.Reader, what string, spec paragraphSpec) ([]string, error) {
	dec := markup.NewDecoder(r)

	var (
		stack     []string
		bufs      []*strings.Builder
		open      []int
		skipDepth int
	)
	current := func() *strings.Builder {
		if len(open) == 0 {
			return nil
		}
		return bufs[open[len(open)-1]]
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, markup.DecodeError(what, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			parent := ""
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}
			stack = append(stack, name)
			if skipDepth > 0 {
				skipDepth++
				continue
			}
			switch {
			case spec.skip != "" && name == spec.skip:
				skipDepth = 1
			case name == spec.para:
				bufs = append(bufs, &strings.Builder{})
				open = append(open, len(bufs)-1)
			case name == "tab" && parent == "r":
				if b := current(); b != nil {
					b.WriteString("  ")
				}
			case name == "br" || name == "cr":
				if b := current(); b != nil {
					b.WriteByte('\n')
				}
			}
		case xml.CharData:
			if skipDepth == 0 && len(stack) > 0 && stack[len(stack)-1] == spec.text {
				if b := current(); b != nil {
					b.Write(t)
				}
			}
		case xml.EndElement:
			if skipDepth > 0 {
				skipDepth--
			} else if t.Name.Local == spec.para && len(open) > 0 {
				open = open[:len(open)-1]
			}
			stack = stack[:len(stack)-1]
		}
	}

	out := make([]string, 0, len(bufs))
	for _, b := range bufs {
		if s := b.String(); !markup.IsBlank(s) {
			out = append(out, s)
		}
	}
	return out, nil
}
