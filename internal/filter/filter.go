// Package filter implements the Filter Pipeline Executor (spec §4.4,
// component C4): a user-declared ordered list of stages, each seeing only
// the previous stage's output, with a per-stage overflow guard and
// deterministic output ordering.
package filter

import (
	"context"
	"sort"
	"time"

	"kato/internal/config"
	"kato/internal/index"
	"kato/internal/kerr"
	"kato/internal/logging"
)

// Input is everything a stage needs to narrow a candidate set.
type Input struct {
	LibraryID     string
	Index         *index.Index
	STMSymbols    []string // deduplicated short-term-memory symbol set (S)
	STMTotalCount int      // len(flatten(STM)) including duplicates, matching pattern length's own definition
	STMJoined     string   // JoinedSorted(STMSymbols), for the rapidfuzz stage
	Cfg           *config.SessionConfiguration
}

// StageMetric records one stage's observed behavior, reported when
// enable_filter_metrics is set (spec §4.4).
type StageMetric struct {
	Stage       config.FilterStage
	InputCount  int
	OutputCount int
	Overflowed  bool
	Elapsed     time.Duration
}

// Result is the executor's output: the final candidate set and, if
// enabled, the per-stage metrics collected along the way.
type Result struct {
	Candidates []string
	Metrics    []StageMetric
}

// stageFunc narrows candidates to the patterns that pass one filter
// stage's contract.
type stageFunc func(ctx context.Context, in *Input, candidates []string) []string

var stageImpls = map[config.FilterStage]stageFunc{
	config.StageLength:    lengthStage,
	config.StageJaccard:   jaccardStage,
	config.StageBloom:     bloomStage,
	config.StageMinHash:   minhashStage,
	config.StageRapidFuzz: rapidFuzzStage,
}

// Executor runs a session's declared filter pipeline against an
// index-backed candidate pool.
type Executor struct{}

// New returns a stateless Executor; the index and configuration are
// passed per-call via Input.
func New() *Executor { return &Executor{} }

// Run executes in.Cfg.FilterPipeline in order, starting from every
// pattern name in the library if the pipeline is empty (spec §4.4:
// "empty pipeline => load all patterns").
func (e *Executor) Run(ctx context.Context, in *Input) (*Result, error) {
	log := logging.Get(logging.CategoryFilter)

	candidates := in.Index.AllNames(in.LibraryID)
	sort.Strings(candidates)

	var metrics []StageMetric

	for _, stageName := range in.Cfg.FilterPipeline {
		select {
		case <-ctx.Done():
			return nil, kerr.NewCancelled(ctx.Err())
		default:
		}

		impl, ok := stageImpls[stageName]
		if !ok {
			return nil, kerr.NewValidationError("filter_pipeline", "unknown stage "+string(stageName))
		}

		inputCount := len(candidates)
		overflowed := false
		var timer *logging.Timer
		if in.Cfg.EnableFilterMetrics {
			timer = logging.StartTimer(logging.CategoryFilter, "filter stage "+string(stageName))
		}
		if inputCount > in.Cfg.MaxCandidatesPerStage {
			overflowed = true
			log.Warnw("filter stage overflow, degrading to pass-through",
				"stage", stageName, "input_count", inputCount, "limit", in.Cfg.MaxCandidatesPerStage)
		} else {
			candidates = impl(ctx, in, candidates)
		}

		sort.Strings(candidates)

		if in.Cfg.EnableFilterMetrics {
			metrics = append(metrics, StageMetric{
				Stage:       stageName,
				InputCount:  inputCount,
				OutputCount: len(candidates),
				Overflowed:  overflowed,
				Elapsed:     timer.Stop(),
			})
		}
	}

	return &Result{Candidates: candidates, Metrics: metrics}, nil
}

func lengthStage(_ context.Context, in *Input, candidates []string) []string {
	l := float64(in.STMTotalCount)
	minLen := l * in.Cfg.LengthMinRatio
	maxLen := l * in.Cfg.LengthMaxRatio

	out := make([]string, 0, len(candidates))
	for _, name := range candidates {
		length, ok := in.Index.Length(in.LibraryID, name)
		if !ok {
			continue
		}
		lf := float64(length)
		if lf >= minLen && lf <= maxLen {
			out = append(out, name)
		}
	}
	return out
}

func jaccardStage(_ context.Context, in *Input, candidates []string) []string {
	allowed := toSet(candidates)

	intersections := make(map[string]int)
	for _, sym := range in.STMSymbols {
		for _, posting := range in.Index.Postings(in.LibraryID, sym) {
			if _, ok := allowed[posting.PatternName]; !ok {
				continue
			}
			intersections[posting.PatternName]++
		}
	}

	sSize := len(in.STMSymbols)
	out := make([]string, 0, len(intersections))
	for name, inter := range intersections {
		if inter < in.Cfg.JaccardMinOverlap {
			continue
		}
		pSize, ok := in.Index.UniqueSymbolCount(in.LibraryID, name)
		if !ok {
			continue
		}
		union := sSize + pSize - inter
		if union == 0 {
			continue
		}
		jaccard := float64(inter) / float64(union)
		if jaccard >= in.Cfg.JaccardThreshold {
			out = append(out, name)
		}
	}
	return out
}

func bloomStage(_ context.Context, in *Input, candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if in.Index.BloomMayContainAny(in.LibraryID, name, in.STMSymbols) {
			out = append(out, name)
		}
	}
	return out
}

func minhashStage(_ context.Context, in *Input, candidates []string) []string {
	querySig := index.BuildSignature(in.STMSymbols, in.Cfg.MinhashNumHashes)

	out := make([]string, 0, len(candidates))
	for _, name := range candidates {
		sig := in.Index.Signature(in.LibraryID, name)
		if sig == nil {
			continue
		}
		if index.BandsMatch(querySig, sig, in.Cfg.MinhashBands, in.Cfg.MinhashRows) {
			out = append(out, name)
		}
	}
	return out
}

func rapidFuzzStage(_ context.Context, in *Input, candidates []string) []string {
	threshold := in.Cfg.RecallThreshold * 100
	// Narrow via the n-gram index first so we don't pay the full
	// Levenshtein-style scan against every indexed pattern.
	ngramHits := toSet(in.Index.NGramCandidates(in.LibraryID, in.STMJoined))

	out := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if _, hit := ngramHits[name]; !hit {
			continue
		}
		joined, ok := in.Index.JoinedSortedFor(in.LibraryID, name)
		if !ok {
			continue
		}
		score := fuzzyRatio(in.STMJoined, joined)
		if score >= threshold {
			out = append(out, name)
		}
	}
	return out
}

// fuzzyRatio is a rapidfuzz-style similarity ratio in [0,100], computed
// from the Indel (longest-common-subsequence) distance between a and b —
// the same metric rapidfuzz's QRatio uses for short token strings.
func fuzzyRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 100
	}
	lcs := longestCommonSubsequence(a, b)
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	return 200 * float64(lcs) / float64(total)
}

func longestCommonSubsequence(a, b string) int {
	n, m := len(a), len(b)
	prev := make([]int, m+1)
	curr := make([]int, m+1)
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[m]
}

func toSet(values []string) map[string]struct{} {
	s := make(map[string]struct{}, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}
