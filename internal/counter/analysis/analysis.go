// Package analysis classifies a document's hashments into totals,
// repetitions and translation-memory matches in a single ordered pass.
package analysis

import (
	"iter"
	"slices"

	"github.com/babblebase/filecount/internal/counter/hashment"
)

// Counts is a size tally. The zero value is the identity of Add.
type Counts struct {
	Segments   int `json:"segments"`
	Words      int `json:"words"`
	Characters int `json:"characters"`
}

// Of returns the Counts of a single hashment.
func Of(h hashment.Hashment) Counts {
	return Counts{Segments: 1, Words: h.Words, Characters: h.Characters}
}

// Add sums two tallies field by field.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Segments:   c.Segments + o.Segments,
		Words:      c.Words + o.Words,
		Characters: c.Characters + o.Characters,
	}
}

func (c Counts) IsZero() bool {
	return c == Counts{}
}

// Analysis is the result of one run. Repetitions and Matches are subsets of
// Total but not of each other: a repeated segment that is also in memory
// counts in both.
type Analysis struct {
	Total       Counts `json:"total"`
	Repetitions Counts `json:"repetitions"`
	Matches     Counts `json:"matches"`
}

// Add sums two analyses classwise. Summing per-document analyses does not
// give the analysis of the concatenated documents, because repetitions
// across documents are only seen by a single run.
func (a Analysis) Add(o Analysis) Analysis {
	return Analysis{
		Total:       a.Total.Add(o.Total),
		Repetitions: a.Repetitions.Add(o.Repetitions),
		Matches:     a.Matches.Add(o.Matches),
	}
}

// Membership answers whether an ID is in a translation memory.
// memory.Index and memfile.Reader implement it.
type Membership interface {
	ContainsID(id hashment.ID) bool
}

// Analyze classifies hashments in order. A nil memory means no translation
// memory, so Matches stays zero. The first occurrence of an ID is never a
// repetition; every later occurrence is.
//
// Analyze only reads memory. The caller must keep writers away from it for
// the duration of the call.
func Analyze(hashments []hashment.Hashment, memory Membership) Analysis {
	return AnalyzeSeq(slices.Values(hashments), memory)
}

// AnalyzeSeq is Analyze over a sequence. Stopping the sequence early yields
// the analysis of the prefix consumed so far.
func AnalyzeSeq(hashments iter.Seq[hashment.Hashment], memory Membership) Analysis {
	var a Analysis
	seen := make(map[hashment.ID]struct{})
	for h := range hashments {
		c := Of(h)
		a.Total = a.Total.Add(c)
		if memory != nil && memory.ContainsID(h.ID) {
			a.Matches = a.Matches.Add(c)
		}
		if _, repeated := seen[h.ID]; repeated {
			a.Repetitions = a.Repetitions.Add(c)
		} else {
			seen[h.ID] = struct{}{}
		}
	}
	return a
}

// Sum adds up analyses.
func Sum(analyses ...Analysis) Analysis {
	var total Analysis
	for _, a := range analyses {
		total = total.Add(a)
	}
	return total
}
