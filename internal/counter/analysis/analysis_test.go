package analysis

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/babblebase/filecount/internal/counter/hashment"
)

type idSet map[hashment.ID]bool

func (s idSet) ContainsID(id hashment.ID) bool { return s[id] }

func hm(id hashment.ID, words, chars int) hashment.Hashment {
	return hashment.Hashment{ID: id, Words: words, Characters: chars}
}

func TestAnalyzeRepeatAndMatch(t *testing.T) {
	a := hm(1, 3, 10)
	b := hm(2, 2, 5)

	got := Analyze([]hashment.Hashment{a, a, b}, idSet{1: true})

	assert.Equal(t, Counts{3, 8, 25}, got.Total)
	assert.Equal(t, Counts{1, 3, 10}, got.Repetitions)
	assert.Equal(t, Counts{2, 6, 15}, got.Matches)
}

func TestAnalyzeEmpty(t *testing.T) {
	got := Analyze(nil, nil)
	assert.Equal(t, Analysis{}, got)
	assert.True(t, got.Total.IsZero())
}

func TestAnalyzeWithoutMemory(t *testing.T) {
	got := Analyze([]hashment.Hashment{hm(1, 1, 1), hm(1, 1, 1)}, nil)
	assert.Equal(t, Counts{}, got.Matches)
	assert.Equal(t, Counts{1, 1, 1}, got.Repetitions)
}

func TestAnalyzeNRepeats(t *testing.T) {
	hs := make([]hashment.Hashment, 7)
	for i := range hs {
		hs[i] = hm(9, 4, 20)
	}
	got := Analyze(hs, nil)
	assert.Equal(t, Counts{7, 28, 140}, got.Total)
	assert.Equal(t, Counts{6, 24, 120}, got.Repetitions)
}

func TestAnalyzeFirstOccurrenceNeverRepeats(t *testing.T) {
	// A B A B C: only the second A and second B repeat.
	hs := []hashment.Hashment{hm(1, 1, 2), hm(2, 2, 3), hm(1, 1, 2), hm(2, 2, 3), hm(3, 5, 8)}
	got := Analyze(hs, idSet{3: true})
	assert.Equal(t, Counts{2, 3, 5}, got.Repetitions)
	assert.Equal(t, Counts{1, 5, 8}, got.Matches)
}

func TestAnalyzeInvariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 200; round++ {
		n := rng.IntN(50)
		hs := make([]hashment.Hashment, n)
		mem := idSet{}
		var want Counts
		for i := range hs {
			hs[i] = hm(hashment.ID(rng.IntN(10)), 1+rng.IntN(20), rng.IntN(100))
			want = want.Add(Of(hs[i]))
			if rng.IntN(3) == 0 {
				mem[hs[i].ID] = true
			}
		}

		got := Analyze(hs, mem)
		assert.Equal(t, want, got.Total)
		assert.Equal(t, n, got.Total.Segments)
		assert.LessOrEqual(t, got.Repetitions.Segments, got.Total.Segments)
		assert.LessOrEqual(t, got.Matches.Words, got.Total.Words)
		assert.LessOrEqual(t, got.Repetitions.Characters, got.Total.Characters)
		assert.Equal(t, got, Analyze(hs, mem), "analysis is idempotent")

		distinct := map[hashment.ID]struct{}{}
		for _, h := range hs {
			distinct[h.ID] = struct{}{}
		}
		assert.Equal(t, n-len(distinct), got.Repetitions.Segments)
	}
}

func TestAnalyzeSeqStopsWithPrefix(t *testing.T) {
	hs := []hashment.Hashment{hm(1, 1, 1), hm(1, 1, 1), hm(2, 1, 1), hm(2, 1, 1)}
	prefix := func(yield func(hashment.Hashment) bool) {
		for _, h := range hs[:3] {
			if !yield(h) {
				return
			}
		}
	}
	got := AnalyzeSeq(prefix, nil)
	assert.Equal(t, Analyze(hs[:3], nil), got)
	assert.Equal(t, 3, got.Total.Segments)
	assert.Equal(t, 1, got.Repetitions.Segments)
}

func TestAnalysisAddAndSum(t *testing.T) {
	x := Analysis{Total: Counts{2, 4, 8}, Repetitions: Counts{1, 2, 4}}
	y := Analysis{Total: Counts{1, 1, 1}, Matches: Counts{1, 1, 1}}

	assert.Equal(t, Analysis{
		Total:       Counts{3, 5, 9},
		Repetitions: Counts{1, 2, 4},
		Matches:     Counts{1, 1, 1},
	}, Sum(x, y))
	assert.Equal(t, x, x.Add(Analysis{}))
}

func BenchmarkAnalyze(b *testing.B) {
	hs := make([]hashment.Hashment, 10000)
	mem := idSet{}
	for i := range hs {
		hs[i] = hm(hashment.ID(i%2500), 8, 40)
		if i%7 == 0 {
			mem[hs[i].ID] = true
		}
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Analyze(hs, mem)
	}
}
