package index

import "sort"

// NGramSize is the character n-gram width used by the rapidfuzz/ngram
// filter stage (spec §4.3, §4.4: "n=3 char n-grams").
const NGramSize = 3

// JoinedSorted returns the space-joined, lexicographically sorted,
// deduplicated symbol representation the character-n-gram index and the
// rapidfuzz filter stage key on. The character similarity mode (spec
// §4.5) does not use it; it joins the flattened symbols unsorted.
func JoinedSorted(symbols []string) string {
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
	joined := ""
	for i, s := range out {
		if i > 0 {
			joined += " "
		}
		joined += s
	}
	return joined
}

// NGrams returns the set of NGramSize-character n-grams of s. Strings
// shorter than NGramSize produce a single n-gram equal to s itself so
// short patterns still get indexed.
func NGrams(s string) []string {
	if len(s) < NGramSize {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	grams := make([]string, 0, len(s)-NGramSize+1)
	for i := 0; i+NGramSize <= len(s); i++ {
		grams = append(grams, s[i:i+NGramSize])
	}
	return grams
}
