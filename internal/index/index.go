// Package index implements the Candidate Index (spec §4.3, component
// C3): five per-library structures — length buckets, inverted postings,
// per-pattern Bloom filters, per-pattern MinHash signatures, and a
// character n-gram index — that the Filter Pipeline Executor (C4) reads
// from to narrow the candidate set before scoring.
package index

import (
	"sort"
	"sync"

	"kato/internal/logging"
	"kato/internal/pattern"
)

// Posting is one entry in the inverted index: a pattern containing a
// symbol, with that symbol's term frequency within the pattern.
type Posting struct {
	PatternName string
	TF          int
}

// Config controls how the Bloom filter and MinHash signature are sized
// when a pattern is indexed.
type Config struct {
	BloomFalsePositiveRate float64
	MinHashNumHashes       int
}

// Index owns the five candidate structures for every library_id it has
// indexed, matching the "library-scoped ownership" design in spec §9.
type Index struct {
	cfg Config

	mu        sync.RWMutex
	libraries map[string]*libraryIndex
}

type libraryIndex struct {
	mu sync.RWMutex

	// LengthBucket: pattern name -> total symbol count, plus a slice kept
	// sorted by length for O(log n + k) range scans.
	lengths     map[string]int
	sortedByLen []lengthEntry

	// uniqueSymbols: pattern name -> count of distinct symbols, used by
	// the jaccard stage to compute |S∪syms(p)| without re-reading pattern
	// data.
	uniqueSymbols map[string]int

	// InvertedPostings: symbol -> patterns containing it.
	postings map[string][]Posting

	// Per-pattern Bloom filter over that pattern's own symbol set.
	blooms map[string]*BloomFilter

	// Per-pattern MinHash signature over that pattern's own symbol set.
	signatures map[string]Signature

	// Character n-gram index: n-gram -> set of pattern names, plus the
	// cached joined-sorted string per pattern for the rapidfuzz stage.
	ngrams       map[string]map[string]struct{}
	joinedSorted map[string]string
}

type lengthEntry struct {
	name   string
	length int
}

// New builds an empty Index.
func New(cfg Config) *Index {
	return &Index{cfg: cfg, libraries: make(map[string]*libraryIndex)}
}

func (idx *Index) libraryFor(libraryID string) *libraryIndex {
	idx.mu.RLock()
	lib, ok := idx.libraries[libraryID]
	idx.mu.RUnlock()
	if ok {
		return lib
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if lib, ok := idx.libraries[libraryID]; ok {
		return lib
	}
	lib = &libraryIndex{
		lengths:       make(map[string]int),
		uniqueSymbols: make(map[string]int),
		postings:      make(map[string][]Posting),
		blooms:        make(map[string]*BloomFilter),
		signatures:    make(map[string]Signature),
		ngrams:        make(map[string]map[string]struct{}),
		joinedSorted:  make(map[string]string),
	}
	idx.libraries[libraryID] = lib
	return lib
}

// Publish transactionally adds p's entry into every structure of
// libraryID's index, replacing any prior entry for the same pattern name
// (a relearn doesn't change a pattern's data, so this is idempotent in
// practice — but it keeps Publish safe to call unconditionally after
// every Learn). The update is atomic: a concurrent reader never observes
// p indexed in some structures but not others (spec §4.3, §5: "atomic
// publication of new patterns").
func (idx *Index) Publish(libraryID string, p *pattern.Pattern) {
	log := logging.Get(logging.CategoryIndex)
	lib := idx.libraryFor(libraryID)

	symbols := make([]string, 0)
	for _, ev := range p.Data {
		symbols = append(symbols, []string(ev)...)
	}
	length := len(symbols)

	termFreq := make(map[string]int, len(symbols))
	for _, s := range symbols {
		termFreq[s]++
	}

	uniqueSorted := uniqueSortedCopy(symbols)
	sig := BuildSignature(uniqueSorted, idx.cfg.MinHashNumHashes)
	bloom := NewBloomFilter(maxInt(len(uniqueSorted), 1), idx.cfg.BloomFalsePositiveRate)
	for _, s := range uniqueSorted {
		bloom.Add(s)
	}
	joined := JoinedSorted(symbols)

	lib.mu.Lock()
	defer lib.mu.Unlock()

	lib.removeLocked(p.Name)

	lib.lengths[p.Name] = length
	lib.uniqueSymbols[p.Name] = len(uniqueSorted)
	lib.sortedByLen = insertSortedByLen(lib.sortedByLen, lengthEntry{name: p.Name, length: length})

	for sym, tf := range termFreq {
		lib.postings[sym] = append(lib.postings[sym], Posting{PatternName: p.Name, TF: tf})
	}

	lib.blooms[p.Name] = bloom
	lib.signatures[p.Name] = sig
	lib.joinedSorted[p.Name] = joined
	for _, g := range NGrams(joined) {
		set, ok := lib.ngrams[g]
		if !ok {
			set = make(map[string]struct{})
			lib.ngrams[g] = set
		}
		set[p.Name] = struct{}{}
	}

	log.Debugw("pattern published to index", "library_id", libraryID, "name", p.Name, "length", length)
}

// removeLocked drops any prior entry for name. Caller must hold lib.mu.
func (lib *libraryIndex) removeLocked(name string) {
	if _, ok := lib.lengths[name]; !ok {
		return
	}
	delete(lib.lengths, name)
	delete(lib.uniqueSymbols, name)
	filtered := lib.sortedByLen[:0]
	for _, e := range lib.sortedByLen {
		if e.name != name {
			filtered = append(filtered, e)
		}
	}
	lib.sortedByLen = filtered

	for sym, postings := range lib.postings {
		kept := postings[:0]
		for _, p := range postings {
			if p.PatternName != name {
				kept = append(kept, p)
			}
		}
		lib.postings[sym] = kept
	}
	delete(lib.blooms, name)
	delete(lib.signatures, name)
	delete(lib.joinedSorted, name)
	for g, set := range lib.ngrams {
		delete(set, name)
		if len(set) == 0 {
			delete(lib.ngrams, g)
		}
	}
}

// LengthRange returns every pattern name whose indexed symbol count falls
// in [minLen, maxLen], inclusive.
func (idx *Index) LengthRange(libraryID string, minLen, maxLen int) []string {
	lib := idx.libraryFor(libraryID)
	lib.mu.RLock()
	defer lib.mu.RUnlock()

	lo := sort.Search(len(lib.sortedByLen), func(i int) bool { return lib.sortedByLen[i].length >= minLen })
	var out []string
	for i := lo; i < len(lib.sortedByLen) && lib.sortedByLen[i].length <= maxLen; i++ {
		out = append(out, lib.sortedByLen[i].name)
	}
	return out
}

// Length returns the indexed total symbol count for patternName.
func (idx *Index) Length(libraryID, patternName string) (int, bool) {
	lib := idx.libraryFor(libraryID)
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	n, ok := lib.lengths[patternName]
	return n, ok
}

// UniqueSymbolCount returns the count of distinct symbols in patternName.
func (idx *Index) UniqueSymbolCount(libraryID, patternName string) (int, bool) {
	lib := idx.libraryFor(libraryID)
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	n, ok := lib.uniqueSymbols[patternName]
	return n, ok
}

// Postings returns every (pattern, term-frequency) entry for symbol.
func (idx *Index) Postings(libraryID, symbol string) []Posting {
	lib := idx.libraryFor(libraryID)
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	out := make([]Posting, len(lib.postings[symbol]))
	copy(out, lib.postings[symbol])
	return out
}

// BloomMayContainAny reports whether p's Bloom filter tests positive for
// at least one of symbols (the bloom stage contract, spec §4.4).
func (idx *Index) BloomMayContainAny(libraryID, patternName string, symbols []string) bool {
	lib := idx.libraryFor(libraryID)
	lib.mu.RLock()
	bloom, ok := lib.blooms[patternName]
	lib.mu.RUnlock()
	if !ok {
		return false
	}
	for _, s := range symbols {
		if bloom.MayContain(s) {
			return true
		}
	}
	return false
}

// Signature returns the stored MinHash signature for patternName, or nil
// if unindexed.
func (idx *Index) Signature(libraryID, patternName string) Signature {
	lib := idx.libraryFor(libraryID)
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	return lib.signatures[patternName]
}

// JoinedSortedFor returns the cached joined-sorted-symbol string for
// patternName, computed once at Publish time (spec §4.5: "cached on first
// access").
func (idx *Index) JoinedSortedFor(libraryID, patternName string) (string, bool) {
	lib := idx.libraryFor(libraryID)
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	s, ok := lib.joinedSorted[patternName]
	return s, ok
}

// NGramCandidates returns every pattern name sharing at least one n-gram
// with query (after JoinedSorted normalization).
func (idx *Index) NGramCandidates(libraryID, query string) []string {
	lib := idx.libraryFor(libraryID)
	lib.mu.RLock()
	defer lib.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, g := range NGrams(query) {
		for name := range lib.ngrams[g] {
			seen[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	return out
}

// AllNames returns every pattern name indexed for libraryID (used when
// the filter pipeline is empty: spec §4.4 "empty pipeline -> load all
// patterns").
func (idx *Index) AllNames(libraryID string) []string {
	lib := idx.libraryFor(libraryID)
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	out := make([]string, 0, len(lib.lengths))
	for name := range lib.lengths {
		out = append(out, name)
	}
	return out
}

// DropAll removes every indexed structure for libraryID.
func (idx *Index) DropAll(libraryID string) {
	idx.mu.Lock()
	delete(idx.libraries, libraryID)
	idx.mu.Unlock()
}

func insertSortedByLen(s []lengthEntry, e lengthEntry) []lengthEntry {
	i := sort.Search(len(s), func(i int) bool { return s[i].length >= e.length })
	s = append(s, lengthEntry{})
	copy(s[i+1:], s[i:])
	s[i] = e
	return s
}

func uniqueSortedCopy(symbols []string) []string {
	uniq := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := uniq[s]; ok {
			continue
		}
		uniq[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
