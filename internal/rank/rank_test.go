package rank

import (
	"testing"

	"kato/internal/config"
	"kato/internal/metric"
	"kato/internal/symbol"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(symbols ...string) symbol.Event { return symbol.Event(symbols) }

func TestRankSortsByPotentialDescending(t *testing.T) {
	metrics := []metric.Metrics{
		{Name: "PTRN|low", Potential: 0.1},
		{Name: "PTRN|high", Potential: 0.9},
		{Name: "PTRN|mid", Potential: 0.5},
	}
	env := Rank(metrics, config.RankPotential, 100)
	require.Len(t, env.Predictions, 3)
	assert.Equal(t, "PTRN|high", env.Predictions[0].Name)
	assert.Equal(t, "PTRN|mid", env.Predictions[1].Name)
	assert.Equal(t, "PTRN|low", env.Predictions[2].Name)
}

func TestRankTieBreaksByNameAscending(t *testing.T) {
	metrics := []metric.Metrics{
		{Name: "PTRN|b", Potential: 0.5},
		{Name: "PTRN|a", Potential: 0.5},
	}
	env := Rank(metrics, config.RankPotential, 100)
	require.Len(t, env.Predictions, 2)
	assert.Equal(t, "PTRN|a", env.Predictions[0].Name)
	assert.Equal(t, "PTRN|b", env.Predictions[1].Name)
}

func TestRankTruncatesToMaxPredictions(t *testing.T) {
	metrics := []metric.Metrics{
		{Name: "PTRN|1", Potential: 0.9},
		{Name: "PTRN|2", Potential: 0.8},
		{Name: "PTRN|3", Potential: 0.7},
	}
	env := Rank(metrics, config.RankPotential, 2)
	assert.Len(t, env.Predictions, 2)
	assert.Equal(t, 2, env.Count)
}

func TestRankByFrequencyAlgo(t *testing.T) {
	metrics := []metric.Metrics{
		{Name: "PTRN|a", Frequency: 1, Potential: 0.9},
		{Name: "PTRN|b", Frequency: 10, Potential: 0.1},
	}
	env := Rank(metrics, config.RankFrequency, 100)
	assert.Equal(t, "PTRN|b", env.Predictions[0].Name, "frequency sort algo should ignore potential entirely")
}

func TestRankUnknownAlgoFallsBackToPotential(t *testing.T) {
	metrics := []metric.Metrics{
		{Name: "PTRN|a", Potential: 0.1},
		{Name: "PTRN|b", Potential: 0.9},
	}
	env := Rank(metrics, config.RankSortAlgo("bogus"), 100)
	assert.Equal(t, "PTRN|b", env.Predictions[0].Name)
}

func TestFuturePotentialsAggregateAcrossPredictions(t *testing.T) {
	metrics := []metric.Metrics{
		{Name: "PTRN|1", Potential: 1.0, Future: []symbol.Event{ev("x", "y")}},
		{Name: "PTRN|2", Potential: 2.0, Future: []symbol.Event{ev("x")}},
		{Name: "PTRN|3", Potential: 0.5, Future: []symbol.Event{ev("z")}},
	}
	env := Rank(metrics, config.RankPotential, 100)
	require.Len(t, env.FuturePotentials, 3)

	// x: 1.0 (from PTRN|1) + 2.0 (from PTRN|2) = 3.0, highest -> first.
	assert.Equal(t, "x", env.FuturePotentials[0].Symbol)
	assert.InDelta(t, 3.0, env.FuturePotentials[0].TotalPotential, 1e-9)
	assert.Equal(t, 2, env.FuturePotentials[0].PredictionCount)
	assert.ElementsMatch(t, []string{"PTRN|1", "PTRN|2"}, env.FuturePotentials[0].Patterns)
}

func TestFuturePotentialsCountsEachPatternOnceEvenWithDuplicateSymbolInFuture(t *testing.T) {
	metrics := []metric.Metrics{
		{Name: "PTRN|1", Potential: 1.0, Future: []symbol.Event{ev("x"), ev("x")}},
	}
	env := Rank(metrics, config.RankPotential, 100)
	require.Len(t, env.FuturePotentials, 1)
	assert.Equal(t, 1, env.FuturePotentials[0].PredictionCount)
}

func TestRankEmptyCandidatesProducesEmptyEnvelope(t *testing.T) {
	env := Rank(nil, config.RankPotential, 100)
	assert.Empty(t, env.Predictions)
	assert.Empty(t, env.FuturePotentials)
	assert.Equal(t, 0, env.Count)
}

func TestFromMetricsPreservesFieldShape(t *testing.T) {
	m := metric.Metrics{
		Name:      "PTRN|1",
		Frequency: 4,
		Matches:   []string{"a"},
		Past:      []symbol.Event{ev("p")},
		Present:   []symbol.Event{ev("a")},
		Future:    []symbol.Event{ev("f")},
		Emotives:  map[string]float64{"joy": 0.5},
	}
	preds := FromMetrics([]metric.Metrics{m})
	require.Len(t, preds, 1)
	p := preds[0]
	assert.Equal(t, "prototypical", p.Type)
	assert.Equal(t, [][]string{{"p"}}, p.Past)
	assert.Equal(t, [][]string{{"a"}}, p.Present)
	assert.Equal(t, [][]string{{"f"}}, p.Future)
	assert.Equal(t, 0.5, p.Emotives["joy"])
	assert.Nil(t, p.Anomalies)
}

// TestFuturePotentialAggregationMatchesExpectedShape compares the whole
// aggregated FuturePotential slice against a literal in one shot, rather
// than field by field, so a regression in any field (not just the ones
// an assert.Equal happens to check) shows up as a diff.
func TestFuturePotentialAggregationMatchesExpectedShape(t *testing.T) {
	metrics := []metric.Metrics{
		{Name: "PTRN|1", Potential: 1.0, Future: []symbol.Event{ev("x", "y")}},
		{Name: "PTRN|2", Potential: 2.0, Future: []symbol.Event{ev("x")}},
	}
	env := Rank(metrics, config.RankPotential, 100)

	want := []FuturePotential{
		{Symbol: "x", TotalPotential: 3.0, PredictionCount: 2, Patterns: []string{"PTRN|2", "PTRN|1"}},
		{Symbol: "y", TotalPotential: 1.0, PredictionCount: 1, Patterns: []string{"PTRN|1"}},
	}
	if diff := cmp.Diff(want, env.FuturePotentials); diff != "" {
		t.Errorf("FuturePotentials mismatch (-want +got):\n%s", diff)
	}
}
