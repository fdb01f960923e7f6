// Package session implements the Session Memory Core (spec §4.9,
// component C9): per-session STM, emotive rolling window, metadata
// accumulator, and the auto-learn trigger that fires learn() (§4.2)
// once the STM reaches max_pattern_length.
package session

import (
	"context"
	"sync"

	"kato/internal/config"
	"kato/internal/kerr"
	"kato/internal/logging"
	"kato/internal/pattern"
	"kato/internal/symbol"
	"kato/internal/vectorstore"

	"github.com/google/uuid"
)

// NewSessionID generates a fresh session identifier for callers that
// don't already have one of their own (e.g. an interactive CLI
// invocation that wants a new session per run).
func NewSessionID() string {
	return uuid.NewString()
}

// State is the STM state machine (spec §4.9): Empty or Accumulating.
type State int

const (
	StateEmpty State = iota
	StateAccumulating
)

// ObserveResult is observe()'s return value (spec §4.10).
type ObserveResult struct {
	STMLength          int    `json:"stm_length"`
	Time               int    `json:"time"`
	AutoLearnedPattern string `json:"auto_learned_pattern,omitempty"`
}

// SequenceOptions controls observe_sequence (spec §4.10).
type SequenceOptions struct {
	LearnAfterEach  bool
	LearnAtEnd      bool
	ClearSTMBetween bool
}

// Session holds one caller's STM, emotives window, metadata accumulator,
// and per-session configuration. All mutating methods are serialized by
// mu (spec §4.9: "all STM mutation is serialized per session").
type Session struct {
	ID        string
	LibraryID string

	mu             sync.Mutex
	stm            []symbol.Event
	emotivesWindow map[string][]float64
	metadataAccum  map[string]pattern.StringSet
	timeCounter    int
	cfg            *config.SessionConfiguration

	patterns pattern.Store
	vectors  vectorstore.Store
	index    indexPublisher
}

// indexPublisher is the slice of *index.Index that learn needs: publish
// a freshly-learned pattern so it becomes visible to predict (spec
// §4.3: "a learn is only visible to predict once all affected indices
// contain it"). Declared as an interface here so this package does not
// import internal/index just to hold a pointer.
type indexPublisher interface {
	Publish(libraryID string, p *pattern.Pattern)
}

// New builds a Session for id/libraryID, backed by the given Pattern
// Library, vector store, and Candidate Index, with a private copy of
// cfg. idx may be nil in tests that don't exercise predict.
func New(id, libraryID string, cfg *config.SessionConfiguration, patterns pattern.Store, vectors vectorstore.Store, idx indexPublisher) *Session {
	return &Session{
		ID:             id,
		LibraryID:      libraryID,
		emotivesWindow: make(map[string][]float64),
		metadataAccum:  make(map[string]pattern.StringSet),
		cfg:            cfg.Clone(),
		patterns:       patterns,
		vectors:        vectors,
		index:          idx,
	}
}

// State reports the STM state machine's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stm) == 0 {
		return StateEmpty
	}
	return StateAccumulating
}

// UpdateConfig replaces the session's configuration (spec §4.10
// update_session_config). Takes effect on the next observe/learn/predict.
func (s *Session) UpdateConfig(cfg *config.SessionConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg.Clone()
}

// Config returns a copy of the session's current configuration.
func (s *Session) Config() *config.SessionConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Clone()
}

// STM returns a copy of the current short-term memory.
func (s *Session) STM() []symbol.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]symbol.Event, len(s.stm))
	copy(out, s.stm)
	return out
}

// Observe canonicalizes obs and appends it to the STM (spec §4.9): an
// empty canonicalization is a no-op; otherwise time_counter increments,
// emotives are appended (FIFO-capped at persistence), metadata is
// set-unioned, and auto-learn fires if max_pattern_length is reached.
func (s *Session) Observe(ctx context.Context, obs symbol.Observation) (ObserveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	symbolizer := symbol.New(s.vectors, s.cfg.SortSymbols)
	event, err := symbolizer.Canonicalize(ctx, obs)
	if err != nil {
		return ObserveResult{}, err
	}
	if event == nil {
		return ObserveResult{STMLength: len(s.stm), Time: s.timeCounter}, nil
	}

	s.stm = append(s.stm, event)
	s.timeCounter++
	s.appendEmotivesLocked(obs.Emotives)
	s.unionMetadataLocked(obs.Metadata)

	result := ObserveResult{STMLength: len(s.stm), Time: s.timeCounter}

	if s.cfg.MaxPatternLength > 0 && len(s.stm) >= s.cfg.MaxPatternLength {
		name, err := s.learnLocked(ctx)
		if err != nil {
			return ObserveResult{}, err
		}
		result.AutoLearnedPattern = name

		switch s.cfg.STMMode {
		case config.STMClear:
			s.stm = nil
		case config.STMRolling:
			s.stm = s.stm[1:]
		}
		result.STMLength = len(s.stm)
	}

	return result, nil
}

// ObserveSequence implements observe_sequence (spec §4.10): observes each
// item in order, optionally learning after each observation and/or at
// the end, optionally clearing the STM between items.
func (s *Session) ObserveSequence(ctx context.Context, obs []symbol.Observation, opts SequenceOptions) ([]ObserveResult, error) {
	results := make([]ObserveResult, 0, len(obs))
	for _, o := range obs {
		r, err := s.Observe(ctx, o)
		if err != nil {
			return nil, err
		}

		if opts.LearnAfterEach {
			name, err := s.Learn(ctx)
			if err != nil {
				if _, isEmpty := err.(*kerr.EmptyLearnError); !isEmpty {
					return nil, err
				}
			} else {
				r.AutoLearnedPattern = name
			}
		}
		results = append(results, r)

		if opts.ClearSTMBetween {
			s.ClearSTM()
		}
	}

	if opts.LearnAtEnd {
		if _, err := s.Learn(ctx); err != nil {
			if _, isEmpty := err.(*kerr.EmptyLearnError); !isEmpty {
				return nil, err
			}
		}
	}
	return results, nil
}

// Learn implements the explicit learn() path (spec §4.9): rejects an
// empty STM, otherwise calls the Pattern Library (§4.2) with the current
// STM, emotives window, metadata accumulator, and persistence.
func (s *Session) Learn(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.learnLocked(ctx)
}

func (s *Session) learnLocked(ctx context.Context) (string, error) {
	if len(s.stm) == 0 {
		return "", &kerr.EmptyLearnError{}
	}

	metadata := make(map[string][]string, len(s.metadataAccum))
	for k, set := range s.metadataAccum {
		metadata[k] = set.Sorted()
	}

	name, err := s.patterns.Learn(ctx, s.LibraryID, s.stm, s.emotivesWindow, metadata, s.cfg.Persistence)
	if err != nil {
		return "", err
	}

	if s.index != nil {
		p, ok, err := s.patterns.Get(ctx, s.LibraryID, name)
		if err != nil {
			return "", err
		}
		if ok {
			s.index.Publish(s.LibraryID, p)
		}
	}

	logging.Get(logging.CategorySession).Infow("learned pattern",
		"session_id", s.ID, "library_id", s.LibraryID, "pattern_name", name, "stm_length", len(s.stm))

	return name, nil
}

// ClearSTM empties the STM without learning (spec §4.10 clear_stm). The
// emotives window and metadata accumulator are untouched.
func (s *Session) ClearSTM() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stm = nil
}

func (s *Session) appendEmotivesLocked(emotives map[string][]float64) {
	for k, values := range emotives {
		s.emotivesWindow[k] = appendCapped(s.emotivesWindow[k], values, s.cfg.Persistence)
	}
}

func (s *Session) unionMetadataLocked(metadata map[string][]string) {
	for k, values := range metadata {
		set, ok := s.metadataAccum[k]
		if !ok {
			set = pattern.NewStringSet()
			s.metadataAccum[k] = set
		}
		set.Union(pattern.NewStringSet(values...))
	}
}

// appendCapped appends values to window, then drops the oldest entries
// (FIFO) so the result never exceeds limit (spec §4.3 emotives invariant).
func appendCapped(window []float64, values []float64, limit int) []float64 {
	window = append(window, values...)
	if len(window) > limit {
		window = window[len(window)-limit:]
	}
	return window
}
