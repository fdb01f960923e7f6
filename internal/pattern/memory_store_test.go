package pattern

import (
	"context"
	"testing"

	"kato/internal/symbol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(events ...[]string) []symbol.Event {
	out := make([]symbol.Event, len(events))
	for i, e := range events {
		out[i] = symbol.Event(e)
	}
	return out
}

func TestLearnRejectsFewerThanTwoSymbols(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Learn(context.Background(), "lib1", seq([]string{"a"}), nil, nil, 5)
	require.Error(t, err)
}

func TestLearnNameIsPureFunctionOfData(t *testing.T) {
	s := NewMemoryStore()
	data := seq([]string{"a", "b"}, []string{"c"})

	n1, err := s.Learn(context.Background(), "lib1", data, nil, nil, 5)
	require.NoError(t, err)
	n2, err := s.Learn(context.Background(), "lib1", data, nil, nil, 5)
	require.NoError(t, err)
	assert.Equal(t, n1, n2)
	assert.Regexp(t, `^PTRN\|[0-9a-f]{40}$`, n1)
}

func TestLearnIncrementsFrequencyOnRelearn(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	data := seq([]string{"a", "b"})

	name, err := s.Learn(ctx, "lib1", data, nil, nil, 5)
	require.NoError(t, err)
	_, err = s.Learn(ctx, "lib1", data, nil, nil, 5)
	require.NoError(t, err)

	p, ok, err := s.Get(ctx, "lib1", name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, p.Frequency)
}

func TestLearnCapsEmotivesWindowAtPersistence(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	data := seq([]string{"a", "b"})

	for i := 0; i < 5; i++ {
		_, err := s.Learn(ctx, "lib1", data, map[string][]float64{"joy": {float64(i)}}, nil, 3)
		require.NoError(t, err)
	}

	name := Name(data)
	p, ok, err := s.Get(ctx, "lib1", name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float64{2, 3, 4}, p.Emotives["joy"], "oldest readings dropped FIFO")
}

func TestLearnUnionsMetadata(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	data := seq([]string{"a", "b"})

	_, err := s.Learn(ctx, "lib1", data, nil, map[string][]string{"tag": {"x", "y"}}, 5)
	require.NoError(t, err)
	_, err = s.Learn(ctx, "lib1", data, nil, map[string][]string{"tag": {"y", "z"}}, 5)
	require.NoError(t, err)

	name := Name(data)
	p, ok, err := s.Get(ctx, "lib1", name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"x", "y", "z"}, p.Metadata["tag"].Sorted())
}

func TestGetMissingPattern(t *testing.T) {
	s := NewMemoryStore()
	_, ok, err := s.Get(context.Background(), "lib1", "PTRN|nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGlobalStatsCountsPatternsAndDocumentFrequency(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Learn(ctx, "lib1", seq([]string{"a", "b"}), nil, nil, 5)
	require.NoError(t, err)
	_, err = s.Learn(ctx, "lib1", seq([]string{"a", "c"}), nil, nil, 5)
	require.NoError(t, err)

	stats, err := s.GlobalStats(ctx, "lib1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PatternCount)
	assert.Equal(t, 2, stats.TotalFrequency)
	assert.Equal(t, 2, stats.SymbolDF["a"])
	assert.Equal(t, 1, stats.SymbolDF["b"])
}

func TestGlobalStatsInvalidatesOnLearn(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Learn(ctx, "lib1", seq([]string{"a", "b"}), nil, nil, 5)
	require.NoError(t, err)
	stats, err := s.GlobalStats(ctx, "lib1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PatternCount)

	_, err = s.Learn(ctx, "lib1", seq([]string{"c", "d"}), nil, nil, 5)
	require.NoError(t, err)
	stats, err = s.GlobalStats(ctx, "lib1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PatternCount)
}

func TestDropAllClearsLibrary(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	name, err := s.Learn(ctx, "lib1", seq([]string{"a", "b"}), nil, nil, 5)
	require.NoError(t, err)

	require.NoError(t, s.DropAll(ctx, "lib1"))

	_, ok, err := s.Get(ctx, "lib1", name)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLibrariesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	data := seq([]string{"a", "b"})

	name, err := s.Learn(ctx, "lib1", data, nil, nil, 5)
	require.NoError(t, err)

	_, ok, err := s.Get(ctx, "lib2", name)
	require.NoError(t, err)
	assert.False(t, ok, "pattern learned in lib1 must not be visible from lib2")
}
