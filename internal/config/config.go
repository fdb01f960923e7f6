// Package config defines SessionConfiguration, the caller-settable
// per-session configuration contract (spec §6), its defaults, validation,
// and YAML-backed loading.
package config

import (
	"fmt"
	"os"

	"kato/internal/kerr"
	"kato/internal/logging"

	"gopkg.in/yaml.v3"
)

// STMMode controls what happens to the STM after an auto-learn trigger.
type STMMode string

const (
	STMClear   STMMode = "CLEAR"
	STMRolling STMMode = "ROLLING"
)

// RankSortAlgo is the closed set of fields the Prediction Ranker may sort
// by. Kept as a closed enum (spec §9 Design Notes: "no string-keyed lookup
// in the hot path") — dispatch in internal/rank switches on this type.
type RankSortAlgo string

const (
	RankPotential               RankSortAlgo = "potential"
	RankSimilarity              RankSortAlgo = "similarity"
	RankEvidence                RankSortAlgo = "evidence"
	RankConfidence              RankSortAlgo = "confidence"
	RankSNR                     RankSortAlgo = "snr"
	RankFragmentation           RankSortAlgo = "fragmentation"
	RankFrequency               RankSortAlgo = "frequency"
	RankNormalizedEntropy       RankSortAlgo = "normalized_entropy"
	RankGlobalNormalizedEntropy RankSortAlgo = "global_normalized_entropy"
	RankITFDFSimilarity         RankSortAlgo = "itfdf_similarity"
	RankConfluence              RankSortAlgo = "confluence"
	RankPredictiveInformation   RankSortAlgo = "predictive_information"
	RankBayesianPosterior       RankSortAlgo = "bayesian_posterior"
)

var validRankSortAlgos = map[RankSortAlgo]bool{
	RankPotential: true, RankSimilarity: true, RankEvidence: true,
	RankConfidence: true, RankSNR: true, RankFragmentation: true,
	RankFrequency: true, RankNormalizedEntropy: true,
	RankGlobalNormalizedEntropy: true, RankITFDFSimilarity: true,
	RankConfluence: true, RankPredictiveInformation: true,
	RankBayesianPosterior: true,
}

// FilterStage names one stage of the filter pipeline (spec §4.4).
type FilterStage string

const (
	StageLength    FilterStage = "length"
	StageJaccard   FilterStage = "jaccard"
	StageBloom     FilterStage = "bloom"
	StageMinHash   FilterStage = "minhash"
	StageRapidFuzz FilterStage = "rapidfuzz"
	// StageNGram is an accepted alias for StageRapidFuzz: the spec names
	// this stage "rapidfuzz/ngram" interchangeably (§4.4's stage set and
	// the NGramIndex it reads from, §4.3).
	StageNGram FilterStage = "ngram"
)

func normalizeStage(s FilterStage) FilterStage {
	if s == StageNGram {
		return StageRapidFuzz
	}
	return s
}

var validStages = map[FilterStage]bool{
	StageLength: true, StageJaccard: true, StageBloom: true,
	StageMinHash: true, StageRapidFuzz: true, StageNGram: true,
}

// SessionConfiguration is the caller-settable per-session configuration
// contract (spec §6).
type SessionConfiguration struct {
	MaxPatternLength int     `yaml:"max_pattern_length"`
	Persistence      int     `yaml:"persistence"`
	RecallThreshold  float64 `yaml:"recall_threshold"`
	STMMode          STMMode `yaml:"stm_mode"`
	MaxPredictions   int     `yaml:"max_predictions"`
	SortSymbols      bool    `yaml:"sort_symbols"`
	UseTokenMatching bool    `yaml:"use_token_matching"`
	RankSortAlgo     RankSortAlgo `yaml:"rank_sort_algo"`

	FilterPipeline []FilterStage `yaml:"filter_pipeline"`

	LengthMinRatio float64 `yaml:"length_min_ratio"`
	LengthMaxRatio float64 `yaml:"length_max_ratio"`

	JaccardThreshold   float64 `yaml:"jaccard_threshold"`
	JaccardMinOverlap  int     `yaml:"jaccard_min_overlap"`

	MinhashThreshold float64 `yaml:"minhash_threshold"`
	MinhashBands     int     `yaml:"minhash_bands"`
	MinhashRows      int     `yaml:"minhash_rows"`
	MinhashNumHashes int     `yaml:"minhash_num_hashes"`

	BloomFalsePositiveRate float64 `yaml:"bloom_false_positive_rate"`

	MaxCandidatesPerStage int  `yaml:"max_candidates_per_stage"`
	EnableFilterMetrics   bool `yaml:"enable_filter_metrics"`
}

// DefaultConfig returns the specification's documented defaults (spec §6
// table).
func DefaultConfig() *SessionConfiguration {
	return &SessionConfiguration{
		MaxPatternLength: 0,
		Persistence:      5,
		RecallThreshold:  0.1,
		STMMode:          STMClear,
		MaxPredictions:   100,
		SortSymbols:      true,
		UseTokenMatching: true,
		RankSortAlgo:     RankPotential,
		FilterPipeline:   []FilterStage{StageLength, StageJaccard, StageRapidFuzz},

		LengthMinRatio: 0.5,
		LengthMaxRatio: 2.0,

		JaccardThreshold:  0.3,
		JaccardMinOverlap: 2,

		MinhashThreshold: 0.7,
		MinhashBands:     20,
		MinhashRows:      5,
		MinhashNumHashes: 100,

		BloomFalsePositiveRate: 0.01,

		MaxCandidatesPerStage: 100000,
		EnableFilterMetrics:   true,
	}
}

// LoadFile loads a SessionConfiguration from a YAML file, starting from
// DefaultConfig so unspecified fields keep their documented defaults.
func LoadFile(path string) (*SessionConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kerr.NewStorageError("config.LoadFile", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, kerr.NewValidationError("config", fmt.Sprintf("invalid yaml: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces every invariant in the Configuration Contract (spec
// §6): numeric ranges, the MinHash bands*rows=num_hashes identity,
// filter-pipeline stage names, the rank_sort_algo enum, and the
// token-matching / sort_symbols auto-sync (honored-with-warning, per spec).
func (c *SessionConfiguration) Validate() error {
	log := logging.Get(logging.CategoryEngine)

	if c.MaxPatternLength < 0 {
		return kerr.NewValidationError("max_pattern_length", "must be >= 0")
	}
	if c.Persistence < 1 || c.Persistence > 100 {
		return kerr.NewValidationError("persistence", "must be in [1,100]")
	}
	if c.RecallThreshold < 0.0 || c.RecallThreshold > 1.0 {
		return kerr.NewValidationError("recall_threshold", "must be in [0.0,1.0]")
	}
	if c.STMMode != STMClear && c.STMMode != STMRolling {
		return kerr.NewValidationError("stm_mode", "must be CLEAR or ROLLING")
	}
	if c.MaxPredictions < 1 || c.MaxPredictions > 10000 {
		return kerr.NewValidationError("max_predictions", "must be in [1,10000]")
	}
	if !validRankSortAlgos[c.RankSortAlgo] {
		return kerr.NewValidationError("rank_sort_algo", fmt.Sprintf("unknown rank_sort_algo %q", c.RankSortAlgo))
	}
	for i, s := range c.FilterPipeline {
		if !validStages[s] {
			return kerr.NewValidationError("filter_pipeline", fmt.Sprintf("unknown stage %q at position %d", s, i))
		}
		c.FilterPipeline[i] = normalizeStage(s)
	}
	if c.LengthMinRatio < 0 || c.LengthMaxRatio < c.LengthMinRatio {
		return kerr.NewValidationError("length_min_ratio/length_max_ratio", "must satisfy 0 <= min <= max")
	}
	if c.JaccardThreshold < 0 || c.JaccardThreshold > 1 {
		return kerr.NewValidationError("jaccard_threshold", "must be in [0,1]")
	}
	if c.JaccardMinOverlap < 0 {
		return kerr.NewValidationError("jaccard_min_overlap", "must be >= 0")
	}
	if c.MinhashBands*c.MinhashRows != c.MinhashNumHashes {
		return kerr.NewValidationError("minhash_bands", fmt.Sprintf(
			"bands(%d)*rows(%d)=%d must equal minhash_num_hashes(%d)",
			c.MinhashBands, c.MinhashRows, c.MinhashBands*c.MinhashRows, c.MinhashNumHashes))
	}
	if c.BloomFalsePositiveRate < 1e-4 || c.BloomFalsePositiveRate > 0.1 {
		return kerr.NewValidationError("bloom_false_positive_rate", "must be in [1e-4,0.1]")
	}
	if c.MaxCandidatesPerStage < 100 {
		return kerr.NewValidationError("max_candidates_per_stage", "must be >= 100")
	}

	// Auto-sync check: token matching pairs with sort_symbols=true and
	// character matching with sort_symbols=false. Validate changes neither
	// field; a mismatch is logged as a warning and the values are kept as
	// given (spec §6).
	want := c.UseTokenMatching
	if c.SortSymbols != want {
		log.Warnw("sort_symbols does not match use_token_matching; honoring caller override",
			"use_token_matching", c.UseTokenMatching, "sort_symbols", c.SortSymbols)
	}

	return nil
}

// Clone returns a deep-enough copy of c for safe per-session mutation
// (the FilterPipeline slice is copied; sessions must not share a backing
// array since update_session_config can replace it independently).
func (c *SessionConfiguration) Clone() *SessionConfiguration {
	cp := *c
	cp.FilterPipeline = append([]FilterStage(nil), c.FilterPipeline...)
	return &cp
}
