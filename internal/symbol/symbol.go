// Package symbol implements the Symbolizer (spec §4.1, component C1): it
// turns a raw Observation into a canonical Event of Symbols, hashing any
// embedding vectors into VCTR| symbols and writing them to a vectorstore.
package symbol

import (
	"context"
	"sort"

	"kato/internal/kerr"
	"kato/internal/kvec"
	"kato/internal/logging"
	"kato/internal/vectorstore"
)

// Event is an ordered set of Symbols observed together (spec §3).
type Event []string

// Observation is the raw input to canonicalize (spec §3): strings and
// vectors observed together, plus emotives/metadata/unique_id that the
// Symbolizer passes through untouched for the Session Memory Core.
type Observation struct {
	Strings  []string
	Vectors  [][]float64
	Emotives map[string][]float64
	Metadata map[string][]string
	UniqueID string
}

// Symbolizer canonicalizes observations into Events, persisting any
// vector-derived symbols to its backing vectorstore.
type Symbolizer struct {
	vectors     vectorstore.Store
	sortSymbols bool
}

// New builds a Symbolizer backed by store. sortSymbols mirrors the
// session's sort_symbols configuration (spec §4.1: "sort if
// sort_symbols").
func New(store vectorstore.Store, sortSymbols bool) *Symbolizer {
	return &Symbolizer{vectors: store, sortSymbols: sortSymbols}
}

// Canonicalize implements canonicalize(observation) -> Event | ∅ (spec
// §4.1). Each vector is validated, hashed to a VCTR| symbol, and written
// to the vector store idempotently; string symbols and vector symbols are
// concatenated into one Event; an Observation with no resulting symbols
// returns (nil, nil) signaling ∅ — the Session Memory Core must leave STM
// unchanged in that case.
func (s *Symbolizer) Canonicalize(ctx context.Context, obs Observation) (Event, error) {
	log := logging.Get(logging.CategorySymbol)

	symbols := make([]string, 0, len(obs.Strings)+len(obs.Vectors))
	symbols = append(symbols, obs.Strings...)

	for _, v := range obs.Vectors {
		if err := kvec.Validate(v); err != nil {
			return nil, err
		}
		name := kvec.SymbolName(v)
		if err := s.vectors.PutIfAbsent(ctx, name, v); err != nil {
			return nil, kerr.NewStorageError("symbol.Canonicalize", err)
		}
		symbols = append(symbols, name)
	}

	if len(symbols) == 0 {
		return nil, nil
	}

	if s.sortSymbols {
		sort.Strings(symbols)
	}

	log.Debugw("canonicalized observation", "symbol_count", len(symbols), "unique_id", obs.UniqueID)
	return Event(symbols), nil
}
