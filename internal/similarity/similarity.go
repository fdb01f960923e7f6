// Package similarity implements the Similarity Scorer (spec §4.5,
// component C5): two mutually exclusive scoring modes over STM vs. a
// candidate pattern, each requiring its own sort_symbols setting.
package similarity

import (
	"strings"
	"sync"

	"kato/internal/pattern"
	"kato/internal/symbol"

	"github.com/agnivade/levenshtein"
)

// Scorer computes similarity between the current STM and a candidate
// pattern. Token mode and character mode share no code path (spec §9:
// "two similarity modes share no code path").
type Scorer struct {
	useTokenMatching bool

	mu          sync.RWMutex
	joinedCache map[string]string // pattern name -> " ".join(flatten(pattern.Data)), unsorted
}

// New builds a Scorer. useTokenMatching is expected to agree with the
// session's sort_symbols setting; internal/config.Validate logs a warning
// when the two differ but accepts the configuration.
func New(useTokenMatching bool) *Scorer {
	return &Scorer{useTokenMatching: useTokenMatching, joinedCache: make(map[string]string)}
}

// Score computes the similarity between stmSymbols (the flattened,
// ordered short-term-memory symbol sequence) and candidate. The returned
// bool reports whether the score meets recallThreshold; callers should
// drop the candidate when it is false (spec §4.5: "Drop if similarity <
// recall_threshold").
func (s *Scorer) Score(stmSymbols []string, candidate *pattern.Pattern, recallThreshold float64) (float64, bool) {
	var score float64
	if s.useTokenMatching {
		score = s.tokenScore(stmSymbols, candidate)
	} else {
		score = s.characterScore(stmSymbols, candidate)
	}
	return score, score >= recallThreshold
}

func (s *Scorer) tokenScore(stmSymbols []string, candidate *pattern.Pattern) float64 {
	patternTokens := flatten(candidate.Data)
	if len(stmSymbols) == 0 && len(patternTokens) == 0 {
		return 1.0
	}
	lcs := lcsLength(stmSymbols, patternTokens)
	denom := len(stmSymbols) + len(patternTokens)
	if denom == 0 {
		return 0
	}
	return 2 * float64(lcs) / float64(denom)
}

func (s *Scorer) characterScore(stmSymbols []string, candidate *pattern.Pattern) float64 {
	a := strings.Join(stmSymbols, " ")
	b := s.joinedFor(candidate)
	return levenshteinRatio(a, b)
}

// joinedFor returns the cached " ".join(flatten(data)) representation of
// candidate, computing and caching it on first access (spec §4.5:
// "cached on first access").
func (s *Scorer) joinedFor(candidate *pattern.Pattern) string {
	s.mu.RLock()
	joined, ok := s.joinedCache[candidate.Name]
	s.mu.RUnlock()
	if ok {
		return joined
	}

	joined = strings.Join(flatten(candidate.Data), " ")

	s.mu.Lock()
	s.joinedCache[candidate.Name] = joined
	s.mu.Unlock()
	return joined
}

func flatten(data []symbol.Event) []string {
	var out []string
	for _, ev := range data {
		out = append(out, []string(ev)...)
	}
	return out
}

// levenshteinRatio returns a Levenshtein-distance-derived similarity in
// [0,1]: 1 - distance/(len(a)+len(b)-distance is avoided in favor of the
// standard SequenceMatcher-style ratio (len(a)+len(b)-distance)/(len(a)+len(b)),
// which agrees with recall_threshold being a similarity (not a distance).
func levenshteinRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	total := len(a) + len(b)
	if total == 0 {
		return 1.0
	}
	return float64(total-dist) / float64(total)
}

// lcsLength computes the longest common subsequence length between two
// token slices via the standard O(n*m) dynamic program.
func lcsLength(a, b []string) int {
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
