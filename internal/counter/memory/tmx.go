package memory

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"golang.org/x/text/language"

	"github.com/babblebase/filecount/internal/counter/hashment"
	"github.com/babblebase/filecount/internal/markup"
	apperrors "github.com/babblebase/filecount/pkg/errors"
)

// FromTMX builds an Index with the default hasher from a TMX document.
func FromTMX(r io.Reader) (*Index, error) {
	return ParseTMX(r, nil)
}

// ParseTMX builds an Index with hasher from a TMX document. Every text node
// inside a tuv whose lang matches the header's srclang is added. Other
// languages are ignored.
func ParseTMX(r io.Reader, hasher hashment.Hasher) (*Index, error) {
	x := NewWithHasher(hasher)
	if err := x.LoadTMX(r); err != nil {
		return nil, err
	}
	return x, nil
}

type langText struct {
	lang string
	text string
}

// LoadTMX adds the source-language segments of a TMX document to x. It needs
// the same exclusive access as Add. On error x may hold part of the
// document.
func (x *Index) LoadTMX(r io.Reader) error {
	dec := markup.NewDecoder(r)

	var (
		srclang    string
		haveHeader bool
		tuvDepth   int
		tuvLang    string
		text       strings.Builder
		pending    []langText
	)

	flush := func() {
		if text.Len() == 0 {
			return
		}
		s := text.String()
		text.Reset()
		if tuvDepth == 0 || markup.IsBlank(s) {
			return
		}
		if !haveHeader {
			pending = append(pending, langText{lang: tuvLang, text: s})
			return
		}
		if sameLanguage(tuvLang, srclang) {
			x.Add(s)
		}
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return markup.DecodeError("tmx", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			flush()
			switch {
			case t.Name.Local == "header" && !haveHeader:
				srclang = markup.Attr(t, "srclang")
				if srclang == "" {
					return apperrors.New(apperrors.ErrMissingCorpusMetadata, "tmx header has no srclang")
				}
				haveHeader = true
				for _, p := range pending {
					if sameLanguage(p.lang, srclang) {
						x.Add(p.text)
					}
				}
				pending = nil
			case tuvDepth > 0:
				tuvDepth++
			case t.Name.Local == "tuv":
				tuvDepth = 1
				tuvLang = markup.Attr(t, "lang")
			}
		case xml.EndElement:
			flush()
			if tuvDepth > 0 {
				tuvDepth--
			}
		case xml.CharData:
			if tuvDepth > 0 {
				text.Write(t)
			}
		}
	}

	if !haveHeader {
		return apperrors.New(apperrors.ErrMissingCorpusMetadata, "tmx has no header")
	}
	return nil
}

// sameLanguage compares BCP 47 tags, ignoring case and accepting the
// deprecated underscore separator.
func sameLanguage(a, b string) bool {
	if strings.EqualFold(a, b) {
		return true
	}
	ta, errA := language.Parse(strings.ReplaceAll(a, "_", "-"))
	tb, errB := language.Parse(strings.ReplaceAll(b, "_", "-"))
	return errA == nil && errB == nil && ta == tb
}
