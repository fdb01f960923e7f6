// Package segment implements the Temporal Segmenter (spec §4.6,
// component C6): given the current STM and a candidate pattern's event
// sequence, it locates the matched region and splits the pattern into
// past/present/future, and computes the missing/extras/anomalies sets.
package segment

import (
	"sort"

	"kato/internal/symbol"
)

// Anomaly is a fuzzy-match triple (spec §6); this segmenter performs
// exact symbol matching only, so Anomalies is always empty (spec §4.6:
// "empty for exact matching").
type Anomaly struct {
	Observed   string
	Expected   string
	Similarity float64
}

// Segmentation is C6's output for one candidate pattern.
type Segmentation struct {
	Matches   []string
	Past      []symbol.Event
	Present   []symbol.Event
	Future    []symbol.Event
	Missing   []string
	Extras    []string
	Anomalies []Anomaly
}

// Segment locates the matched event range in pattern (the smallest
// interval of pattern events containing every event with at least one
// stm-symbol) and derives past/present/future/matches/missing/extras
// from it. ok is false when no stm symbol appears anywhere in pattern —
// segmentation is undefined in that case and the caller must drop the
// candidate (spec §4.6 tie-break rule).
func Segment(stm []symbol.Event, pattern []symbol.Event) (*Segmentation, bool) {
	stmSymbols := flatten(stm)
	stmSet := toSet(stmSymbols)

	lo, hi := -1, -1
	for i, ev := range pattern {
		for _, sym := range ev {
			if _, ok := stmSet[sym]; ok {
				if lo == -1 {
					lo = i
				}
				hi = i
			}
		}
	}
	if lo == -1 {
		return nil, false
	}

	past := cloneEvents(pattern[:lo])
	present := cloneEvents(pattern[lo : hi+1])
	future := cloneEvents(pattern[hi+1:])

	patternSymbols := flatten(pattern)
	presentSymbols := flatten(present)

	seg := &Segmentation{
		Matches:   multisetIntersectionSorted(stmSymbols, patternSymbols),
		Past:      past,
		Present:   present,
		Future:    future,
		Missing:   orderedSetDifference(presentSymbols, stmSet),
		Extras:    orderedSetDifference(stmSymbols, toSet(presentSymbols)),
		Anomalies: nil,
	}
	return seg, true
}

func flatten(events []symbol.Event) []string {
	var out []string
	for _, ev := range events {
		out = append(out, []string(ev)...)
	}
	return out
}

func cloneEvents(events []symbol.Event) []symbol.Event {
	out := make([]symbol.Event, len(events))
	for i, ev := range events {
		out[i] = append(symbol.Event(nil), ev...)
	}
	return out
}

func toSet(symbols []string) map[string]struct{} {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	return set
}

// multisetIntersectionSorted returns, for each symbol, min(count in a,
// count in b) copies of it, with the result sorted ascending.
func multisetIntersectionSorted(a, b []string) []string {
	countsA := make(map[string]int)
	for _, s := range a {
		countsA[s]++
	}
	countsB := make(map[string]int)
	for _, s := range b {
		countsB[s]++
	}

	var out []string
	for sym, ca := range countsA {
		cb := countsB[sym]
		n := ca
		if cb < n {
			n = cb
		}
		for i := 0; i < n; i++ {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// orderedSetDifference returns the distinct symbols of src that are not
// members of exclude, preserving src's first-occurrence order.
func orderedSetDifference(src []string, exclude map[string]struct{}) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range src {
		if _, excluded := exclude[s]; excluded {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
