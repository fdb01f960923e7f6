package metric

import (
	"math"
	"testing"

	"kato/internal/pattern"
	"kato/internal/segment"
	"kato/internal/symbol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(symbols ...string) symbol.Event { return symbol.Event(symbols) }

func mkCandidate(t *testing.T, name string, stm []symbol.Event, data []symbol.Event, frequency int, similarity float64) Candidate {
	t.Helper()
	seg, ok := segment.Segment(stm, data)
	require.True(t, ok)

	var stmSymbols []string
	for _, e := range stm {
		stmSymbols = append(stmSymbols, []string(e)...)
	}

	return Candidate{
		Pattern:      &pattern.Pattern{Name: name, Data: data, Frequency: frequency, Emotives: map[string][]float64{}},
		Segmentation: seg,
		Similarity:   similarity,
		STMSymbols:   stmSymbols,
	}
}

func TestEvaluateSingleCandidateFullyMatched(t *testing.T) {
	stm := []symbol.Event{ev("a", "b")}
	data := []symbol.Event{ev("a", "b")}
	c := mkCandidate(t, "PTRN|1", stm, data, 1, 1.0)

	stats := pattern.GlobalStats{PatternCount: 1, TotalFrequency: 1, SymbolDF: map[string]int{"a": 1, "b": 1}}
	results := Evaluate([]Candidate{c}, stats)
	require.Len(t, results, 1)

	m := results[0]
	assert.InDelta(t, 1.0, m.Confidence, 1e-9)
	assert.InDelta(t, 1.0, m.Evidence, 1e-9)
	assert.InDelta(t, 1.0, m.SNR, 1e-9)
	assert.Equal(t, 0, m.Fragmentation)
}

func TestEvaluatePosteriorSumsToOne(t *testing.T) {
	stm := []symbol.Event{ev("a", "b")}

	c1 := mkCandidate(t, "PTRN|1", stm, []symbol.Event{ev("a", "b")}, 5, 0.9)
	c2 := mkCandidate(t, "PTRN|2", stm, []symbol.Event{ev("a", "b")}, 3, 0.6)
	c3 := mkCandidate(t, "PTRN|3", stm, []symbol.Event{ev("a", "b")}, 2, 0.3)

	stats := pattern.GlobalStats{PatternCount: 3, TotalFrequency: 10, SymbolDF: map[string]int{"a": 3, "b": 3}}
	results := Evaluate([]Candidate{c1, c2, c3}, stats)

	sum := 0.0
	for _, m := range results {
		sum += m.BayesianPosterior
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestEvaluateEmotivesAreMeaned(t *testing.T) {
	stm := []symbol.Event{ev("a")}
	data := []symbol.Event{ev("a")}
	seg, ok := segment.Segment(stm, data)
	require.True(t, ok)

	c := Candidate{
		Pattern: &pattern.Pattern{
			Name: "PTRN|1", Data: data, Frequency: 1,
			Emotives: map[string][]float64{"joy": {1, 2, 3}},
		},
		Segmentation: seg,
		Similarity:   1.0,
		STMSymbols:   []string{"a"},
	}

	stats := pattern.GlobalStats{PatternCount: 1, TotalFrequency: 1, SymbolDF: map[string]int{"a": 1}}
	results := Evaluate([]Candidate{c}, stats)
	assert.InDelta(t, 2.0, results[0].Emotives["joy"], 1e-9)
}

func TestEvaluateZeroFragmentationSingleBlock(t *testing.T) {
	stm := []symbol.Event{ev("a"), ev("b")}
	data := []symbol.Event{ev("a"), ev("b")}
	c := mkCandidate(t, "PTRN|1", stm, data, 1, 1.0)

	stats := pattern.GlobalStats{PatternCount: 1, TotalFrequency: 1, SymbolDF: map[string]int{"a": 1, "b": 1}}
	results := Evaluate([]Candidate{c}, stats)
	assert.Equal(t, 0, results[0].Fragmentation)
}

func TestEvaluateFragmentedMatchAcrossGap(t *testing.T) {
	stm := []symbol.Event{ev("a"), ev("c")}
	data := []symbol.Event{ev("a"), ev("b"), ev("c")}
	c := mkCandidate(t, "PTRN|1", stm, data, 1, 0.5)

	stats := pattern.GlobalStats{PatternCount: 1, TotalFrequency: 1, SymbolDF: map[string]int{"a": 1, "b": 1, "c": 1}}
	results := Evaluate([]Candidate{c}, stats)
	assert.Equal(t, 1, results[0].Fragmentation, "two matched blocks (a, c) split by unmatched b => 1 fragmentation")
}

func TestEvaluateEntropyIsNonNegative(t *testing.T) {
	stm := []symbol.Event{ev("a")}
	data := []symbol.Event{ev("a", "b", "c")}
	c := mkCandidate(t, "PTRN|1", stm, data, 1, 0.5)

	stats := pattern.GlobalStats{PatternCount: 1, TotalFrequency: 1, SymbolDF: map[string]int{"a": 1, "b": 1, "c": 1}}
	results := Evaluate([]Candidate{c}, stats)
	assert.GreaterOrEqual(t, results[0].Entropy, 0.0)
	assert.False(t, math.IsNaN(results[0].Entropy))
}

func TestEvaluatePredictiveInformationNormalizedToMax(t *testing.T) {
	stm := []symbol.Event{ev("a")}
	c1 := mkCandidate(t, "PTRN|1", stm, []symbol.Event{ev("a"), ev("x", "y")}, 10, 0.5)
	c2 := mkCandidate(t, "PTRN|2", stm, []symbol.Event{ev("a"), ev("z")}, 1, 0.5)

	stats := pattern.GlobalStats{PatternCount: 2, TotalFrequency: 11, SymbolDF: map[string]int{"a": 2, "x": 1, "y": 1, "z": 1}}
	results := Evaluate([]Candidate{c1, c2}, stats)

	maxSeen := 0.0
	for _, m := range results {
		if m.PredictiveInformation > maxSeen {
			maxSeen = m.PredictiveInformation
		}
	}
	assert.InDelta(t, 1.0, maxSeen, 1e-9)
}
