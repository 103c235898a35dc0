package extract

import (
	"github.com/tidwall/gjson"

	apperrors "github.com/babblebase/filecount/pkg/errors"
)

// JSON returns every string value of a JSON document, recursing through
// arrays and objects in document order. Object keys are not text.
type JSON struct{}

var _ Extractor = JSON{}

func (JSON) Format() Format { return FormatJSON }

func (JSON) CanExtract(_ []byte, ext string) bool {
	return ext == "json"
}

func (JSON) Extract(buf []byte) ([]string, error) {
	if err := validUTF8("json", buf); err != nil {
		return nil, err
	}
	buf = trimBOM(buf)
	if !gjson.ValidBytes(buf) {
		return nil, apperrors.New(apperrors.ErrMalformedMarkup, "json is not well formed")
	}
	var out []string
	collectStrings(gjson.ParseBytes(buf), &out)
	return out, nil
}

func collectStrings(v gjson.Result, out *[]string) {
	switch {
	case v.Type == gjson.String:
		if v.Str != "" {
			*out = append(*out, v.Str)
		}
	case v.IsArray(), v.IsObject():
		v.ForEach(func(_, value gjson.Result) bool {
			collectStrings(value, out)
			return true
		})
	}
}
