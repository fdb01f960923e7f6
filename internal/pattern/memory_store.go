package pattern

import (
	"context"
	"sync"

	"kato/internal/kerr"
	"kato/internal/logging"
	"kato/internal/symbol"

	"golang.org/x/sync/singleflight"
)

// MemoryStore is an in-process, concurrency-safe Store keyed by
// library_id, matching the "library-scoped ownership" design in spec §9:
// one map entry per library, concurrent-safe reads, a per-library write
// lock serializing Learn so frequency increments are never lost.
type MemoryStore struct {
	mu        sync.RWMutex
	libraries map[string]*library

	statsGroup singleflight.Group
}

type library struct {
	mu       sync.Mutex
	patterns map[string]*Pattern

	statsMu    sync.RWMutex
	statsCache *GlobalStats
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{libraries: make(map[string]*library)}
}

func (s *MemoryStore) libraryFor(libraryID string) *library {
	s.mu.RLock()
	lib, ok := s.libraries[libraryID]
	s.mu.RUnlock()
	if ok {
		return lib
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if lib, ok := s.libraries[libraryID]; ok {
		return lib
	}
	lib = &library{patterns: make(map[string]*Pattern)}
	s.libraries[libraryID] = lib
	return lib
}

func (s *MemoryStore) Learn(_ context.Context, libraryID string, data []symbol.Event, emotives map[string][]float64, metadata map[string][]string, persistence int) (string, error) {
	log := logging.Get(logging.CategoryPattern)

	if TotalSymbols(data) < 2 {
		return "", kerr.NewValidationError("data", "pattern must contain at least two total symbols")
	}

	name := Name(data)
	lib := s.libraryFor(libraryID)

	lib.mu.Lock()
	defer lib.mu.Unlock()

	existing, ok := lib.patterns[name]
	if !ok {
		p := &Pattern{
			Name:      name,
			Data:      data,
			Frequency: 1,
			Emotives:  make(map[string][]float64),
			Metadata:  make(map[string]StringSet),
		}
		appendEmotives(p.Emotives, emotives, persistence)
		unionMetadata(p.Metadata, metadata)
		lib.patterns[name] = p
		log.Debugw("pattern learned (new)", "library_id", libraryID, "name", name)
	} else {
		existing.Frequency++
		appendEmotives(existing.Emotives, emotives, persistence)
		unionMetadata(existing.Metadata, metadata)
		log.Debugw("pattern relearned", "library_id", libraryID, "name", name, "frequency", existing.Frequency)
	}

	lib.invalidateStats()
	return name, nil
}

func (s *MemoryStore) Get(_ context.Context, libraryID, name string) (*Pattern, bool, error) {
	lib := s.libraryFor(libraryID)
	lib.mu.Lock()
	defer lib.mu.Unlock()

	p, ok := lib.patterns[name]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (s *MemoryStore) AllFor(_ context.Context, libraryID string) ([]*Pattern, error) {
	lib := s.libraryFor(libraryID)
	lib.mu.Lock()
	defer lib.mu.Unlock()

	out := make([]*Pattern, 0, len(lib.patterns))
	for _, p := range lib.patterns {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (s *MemoryStore) GlobalStats(_ context.Context, libraryID string) (GlobalStats, error) {
	lib := s.libraryFor(libraryID)

	lib.statsMu.RLock()
	if lib.statsCache != nil {
		cached := *lib.statsCache
		lib.statsMu.RUnlock()
		return cached, nil
	}
	lib.statsMu.RUnlock()

	// singleflight so concurrent cache misses for the same library
	// compute the aggregate once, not once per caller.
	v, err, _ := s.statsGroup.Do(libraryID, func() (interface{}, error) {
		lib.mu.Lock()
		stats := GlobalStats{SymbolDF: make(map[string]int)}
		for _, p := range lib.patterns {
			stats.PatternCount++
			stats.TotalFrequency += p.Frequency
			seen := make(map[string]struct{})
			for _, ev := range p.Data {
				for _, sym := range ev {
					if _, dup := seen[sym]; dup {
						continue
					}
					seen[sym] = struct{}{}
					stats.SymbolDF[sym]++
				}
			}
		}
		lib.mu.Unlock()

		lib.statsMu.Lock()
		lib.statsCache = &stats
		lib.statsMu.Unlock()
		return stats, nil
	})
	if err != nil {
		return GlobalStats{}, err
	}
	return v.(GlobalStats), nil
}

func (s *MemoryStore) DropAll(_ context.Context, libraryID string) error {
	s.mu.Lock()
	delete(s.libraries, libraryID)
	s.mu.Unlock()
	return nil
}

func (l *library) invalidateStats() {
	l.statsMu.Lock()
	l.statsCache = nil
	l.statsMu.Unlock()
}

// appendEmotives adds each key's new readings to the pattern's rolling
// window, dropping the oldest entries first-in-first-out once the window
// exceeds persistence (spec §3: "emotives ... capped at persistence,
// FIFO").
func appendEmotives(dst map[string][]float64, incoming map[string][]float64, persistence int) {
	for k, values := range incoming {
		dst[k] = append(dst[k], values...)
		if excess := len(dst[k]) - persistence; excess > 0 {
			dst[k] = dst[k][excess:]
		}
	}
}

// unionMetadata merges incoming key -> value-list pairs into dst using
// set semantics per key (spec §3: "metadata ... set-union on relearn").
func unionMetadata(dst map[string]StringSet, incoming map[string][]string) {
	for k, values := range incoming {
		set, ok := dst[k]
		if !ok {
			set = make(StringSet)
			dst[k] = set
		}
		for _, v := range values {
			set[v] = struct{}{}
		}
	}
}

var _ Store = (*MemoryStore)(nil)
