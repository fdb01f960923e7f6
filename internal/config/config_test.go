package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejectsBadMinHashIdentity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinhashBands = 7
	cfg.MinhashRows = 5
	cfg.MinhashNumHashes = 100

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minhash_bands")
}

func TestValidateRejectsUnknownFilterStage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilterPipeline = []FilterStage{"bogus"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filter_pipeline")
}

func TestValidateNormalizesNGramAlias(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilterPipeline = []FilterStage{StageLength, StageNGram}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, StageRapidFuzz, cfg.FilterPipeline[1])
}

func TestValidateRejectsUnknownRankSortAlgo(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RankSortAlgo = "made_up"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rank_sort_algo")
}

func TestValidateHonorsSortSymbolsOverrideWithoutError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseTokenMatching = true
	cfg.SortSymbols = false

	// The auto-sync mismatch is a warning, not a rejection.
	assert.NoError(t, cfg.Validate())
}

func TestValidateRangeChecks(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*SessionConfiguration)
		wantErr string
	}{
		{"persistence too low", func(c *SessionConfiguration) { c.Persistence = 0 }, "persistence"},
		{"persistence too high", func(c *SessionConfiguration) { c.Persistence = 101 }, "persistence"},
		{"recall threshold negative", func(c *SessionConfiguration) { c.RecallThreshold = -0.1 }, "recall_threshold"},
		{"bad stm mode", func(c *SessionConfiguration) { c.STMMode = "PAUSE" }, "stm_mode"},
		{"max predictions zero", func(c *SessionConfiguration) { c.MaxPredictions = 0 }, "max_predictions"},
		{"length ratio inverted", func(c *SessionConfiguration) { c.LengthMinRatio, c.LengthMaxRatio = 2.0, 0.5 }, "length_min_ratio"},
		{"bloom fpr too low", func(c *SessionConfiguration) { c.BloomFalsePositiveRate = 1e-9 }, "bloom_false_positive_rate"},
		{"max candidates too low", func(c *SessionConfiguration) { c.MaxCandidatesPerStage = 10 }, "max_candidates_per_stage"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kato.yaml")
	require.NoError(t, os.WriteFile(path, []byte("persistence: 10\nmax_predictions: 50\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Persistence)
	assert.Equal(t, 50, cfg.MaxPredictions)
	// Untouched fields keep their defaults.
	assert.Equal(t, 0.1, cfg.RecallThreshold)
	assert.Equal(t, RankPotential, cfg.RankSortAlgo)
}

func TestLoadFileRejectsInvalidResult(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kato.yaml")
	require.NoError(t, os.WriteFile(path, []byte("persistence: 500\n"), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.FilterPipeline[0] = StageBloom

	assert.Equal(t, StageLength, cfg.FilterPipeline[0])
	assert.Equal(t, StageBloom, clone.FilterPipeline[0])
}
