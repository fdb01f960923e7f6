package session

import (
	"context"
	"testing"

	"kato/internal/config"
	"kato/internal/pattern"
	"kato/internal/symbol"
	"kato/internal/vectorstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, cfg *config.SessionConfiguration) (*Session, pattern.Store) {
	t.Helper()
	patterns := pattern.NewMemoryStore()
	vectors := vectorstore.NewMemoryStore()
	return New("sess1", "lib1", cfg, patterns, vectors, nil), patterns
}

func obs(strings ...string) symbol.Observation {
	return symbol.Observation{Strings: strings}
}

func TestNewSessionIDProducesDistinctUUIDs(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestObserveAppendsToSTMAndIncrementsTime(t *testing.T) {
	s, _ := newTestSession(t, config.DefaultConfig())
	ctx := context.Background()

	r, err := s.Observe(ctx, obs("a"))
	require.NoError(t, err)
	assert.Equal(t, 1, r.STMLength)
	assert.Equal(t, 1, r.Time)

	r, err = s.Observe(ctx, obs("b"))
	require.NoError(t, err)
	assert.Equal(t, 2, r.STMLength)
	assert.Equal(t, 2, r.Time)

	assert.Equal(t, StateAccumulating, s.State())
}

func TestObserveEmptyObservationIsNoOp(t *testing.T) {
	s, _ := newTestSession(t, config.DefaultConfig())
	ctx := context.Background()

	r, err := s.Observe(ctx, symbol.Observation{})
	require.NoError(t, err)
	assert.Equal(t, 0, r.STMLength)
	assert.Equal(t, 0, r.Time)
	assert.Equal(t, StateEmpty, s.State())
}

func TestLearnRejectsEmptySTM(t *testing.T) {
	s, _ := newTestSession(t, config.DefaultConfig())
	_, err := s.Learn(context.Background())
	require.Error(t, err)
}

func TestLearnStoresCurrentSTM(t *testing.T) {
	s, patterns := newTestSession(t, config.DefaultConfig())
	ctx := context.Background()

	_, err := s.Observe(ctx, obs("a"))
	require.NoError(t, err)
	_, err = s.Observe(ctx, obs("b"))
	require.NoError(t, err)

	name, err := s.Learn(ctx)
	require.NoError(t, err)
	assert.Regexp(t, `^PTRN\|[0-9a-f]{40}$`, name)

	p, ok, err := patterns.Get(ctx, "lib1", name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, p.Frequency)
}

func TestAutoLearnClearModeEmptiesSTM(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxPatternLength = 3
	cfg.STMMode = config.STMClear
	s, _ := newTestSession(t, cfg)
	ctx := context.Background()

	var last ObserveResult
	for _, sym := range []string{"x", "y", "z"} {
		r, err := s.Observe(ctx, obs(sym))
		require.NoError(t, err)
		last = r
	}

	assert.NotEmpty(t, last.AutoLearnedPattern)
	assert.Equal(t, 0, last.STMLength)
	assert.Empty(t, s.STM())
}

func TestAutoLearnRollingModeDropsOldest(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxPatternLength = 3
	cfg.STMMode = config.STMRolling
	s, _ := newTestSession(t, cfg)
	ctx := context.Background()

	var last ObserveResult
	for _, sym := range []string{"x", "y", "z"} {
		r, err := s.Observe(ctx, obs(sym))
		require.NoError(t, err)
		last = r
	}

	assert.NotEmpty(t, last.AutoLearnedPattern)
	assert.Equal(t, 2, last.STMLength)
	stm := s.STM()
	require.Len(t, stm, 2)
	assert.Equal(t, symbol.Event{"y"}, stm[0])
	assert.Equal(t, symbol.Event{"z"}, stm[1])
}

func TestEmotivesWindowCappedAtPersistence(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Persistence = 2
	s, _ := newTestSession(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		o := obs("a")
		o.Emotives = map[string][]float64{"joy": {float64(i)}}
		_, err := s.Observe(ctx, o)
		require.NoError(t, err)
	}
	assert.Equal(t, []float64{1, 2}, s.emotivesWindow["joy"])
}

func TestMetadataIsSetUnioned(t *testing.T) {
	s, _ := newTestSession(t, config.DefaultConfig())
	ctx := context.Background()

	o1 := obs("a")
	o1.Metadata = map[string][]string{"tag": {"x"}}
	o2 := obs("b")
	o2.Metadata = map[string][]string{"tag": {"x", "y"}}

	_, err := s.Observe(ctx, o1)
	require.NoError(t, err)
	_, err = s.Observe(ctx, o2)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"x", "y"}, s.metadataAccum["tag"].Sorted())
}

func TestClearSTMEmptiesWithoutLearning(t *testing.T) {
	s, patterns := newTestSession(t, config.DefaultConfig())
	ctx := context.Background()

	_, err := s.Observe(ctx, obs("a"))
	require.NoError(t, err)
	s.ClearSTM()
	assert.Empty(t, s.STM())

	stats, err := patterns.GlobalStats(ctx, "lib1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.PatternCount)
}

func TestObserveSequenceLearnAtEnd(t *testing.T) {
	s, patterns := newTestSession(t, config.DefaultConfig())
	ctx := context.Background()

	_, err := s.ObserveSequence(ctx, []symbol.Observation{obs("a"), obs("b")}, SequenceOptions{LearnAtEnd: true})
	require.NoError(t, err)

	stats, err := patterns.GlobalStats(ctx, "lib1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PatternCount)
}

func TestObserveSequenceClearBetween(t *testing.T) {
	s, _ := newTestSession(t, config.DefaultConfig())
	ctx := context.Background()

	results, err := s.ObserveSequence(ctx, []symbol.Observation{obs("a"), obs("b")}, SequenceOptions{ClearSTMBetween: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].STMLength)
	assert.Equal(t, 1, results[1].STMLength)
}
