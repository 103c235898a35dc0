// Package segmentation splits a section of text into countable segments and
// measures each segment in words and characters. The default rules follow
// the sentence and word boundaries of Unicode Standard Annex #29.
package segmentation

import (
	"fmt"
	"unicode"

	"github.com/clipperhouse/uax29/v2/sentences"
	"github.com/clipperhouse/uax29/v2/words"
	"github.com/rivo/uniseg"
)

// Policy decides where segments start and end and how large they are.
// Implementations must be pure: the same input always gives the same output.
type Policy interface {
	// Segment returns contiguous, disjoint substrings of section that cover
	// it from left to right. Whitespace stays attached to a segment.
	Segment(section string) []string
	CountWords(segment string) int
	CountCharacters(segment string) int
}

// Characters selects the unit used by CountCharacters.
type Characters int

const (
	// CodePoints counts non-whitespace Unicode scalar values.
	CodePoints Characters = iota
	// Graphemes counts user-perceived characters, so a base letter with
	// combining marks or a multi-rune emoji counts once.
	Graphemes
)

// ParseCharacters maps a configuration value to a Characters mode.
func ParseCharacters(s string) (Characters, error) {
	switch s {
	case "", "codepoints":
		return CodePoints, nil
	case "graphemes":
		return Graphemes, nil
	default:
		return CodePoints, fmt.Errorf("unknown character mode %q", s)
	}
}

// New builds the Policy named by mode: "sentence" for UnicodeRules, or
// "section" for SectionRules.
func New(mode string, chars Characters) (Policy, error) {
	switch mode {
	case "", "sentence":
		return UnicodeRules{Characters: chars}, nil
	case "section":
		return SectionRules{UnicodeRules{Characters: chars}}, nil
	default:
		return nil, fmt.Errorf("unknown segmentation mode %q", mode)
	}
}

// UnicodeRules segments on UAX #29 sentence boundaries.
type UnicodeRules struct {
	Characters Characters
}

var _ Policy = UnicodeRules{}

func (u UnicodeRules) Segment(section string) []string {
	return Sentences(section)
}

func (u UnicodeRules) CountWords(segment string) int {
	return CountWords(segment)
}

func (u UnicodeRules) CountCharacters(segment string) int {
	if u.Characters == Graphemes {
		return countGraphemes(segment)
	}
	return CountCharacters(segment)
}

// SectionRules treats every section as a single segment. It suits content
// that is already segmented, such as spreadsheet cells or XLIFF sources.
type SectionRules struct {
	UnicodeRules
}

var _ Policy = SectionRules{}

func (s SectionRules) Segment(section string) []string {
	if section == "" {
		return nil
	}
	return []string{section}
}

// Sentences splits text on UAX #29 sentence boundaries. Concatenating the
// result gives back text.
func Sentences(text string) []string {
	if text == "" {
		return nil
	}
	out := make([]string, 0, 4)
	iter := sentences.FromString(text)
	for iter.Next() {
		out = append(out, iter.Value())
	}
	return out
}

// CountWords counts the UAX #29 word tokens of text that contain at least
// one letter or digit. Punctuation and whitespace tokens are not words.
func CountWords(text string) int {
	n := 0
	iter := words.FromString(text)
	for iter.Next() {
		if isWord(iter.Value()) {
			n++
		}
	}
	return n
}

// CountCharacters counts the code points of text that are not whitespace.
func CountCharacters(text string) int {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

func countGraphemes(text string) int {
	n := 0
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		if !isBlank(g.Str()) {
			n++
		}
	}
	return n
}

func isWord(token string) bool {
	for _, r := range token {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}

func isBlank(cluster string) bool {
	for _, r := range cluster {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
