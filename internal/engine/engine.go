// Package engine implements the Engine Facade (spec §4.10, component
// C10): it orchestrates observe -> (maybe auto-learn) -> predict for one
// session call, wiring together the Session Memory Core (C9), Candidate
// Index (C3), Filter Pipeline (C4), Similarity Scorer (C5), Temporal
// Segmenter (C6), Metric Evaluator (C7) and Prediction Ranker (C8). It
// contains no matching logic of its own.
package engine

import (
	"context"
	"sort"

	"kato/internal/audit"
	"kato/internal/config"
	"kato/internal/filter"
	"kato/internal/index"
	"kato/internal/kerr"
	"kato/internal/logging"
	"kato/internal/metric"
	"kato/internal/pattern"
	"kato/internal/rank"
	"kato/internal/segment"
	"kato/internal/session"
	"kato/internal/similarity"
	"kato/internal/symbol"
	"kato/internal/vectorstore"

	"golang.org/x/sync/errgroup"
)

// Engine is the facade callers use for the full observe/learn/predict
// lifecycle. It owns the Pattern Library, Candidate Index, vector store,
// and the Session Manager, and constructs the per-predict-call pipeline.
type Engine struct {
	patterns   pattern.Store
	vectors    vectorstore.Store
	index      *index.Index
	sessions   *session.Manager
	filterExec *filter.Executor

	// tokenScorer and charScorer are long-lived, one per matching mode,
	// so each Scorer's joinedCache (internal/similarity.Scorer) actually
	// accumulates across repeated Predict calls instead of starting
	// empty every time. A pattern's Data never changes once it exists
	// (its name is a content hash of it), so caching by pattern name
	// across calls and sessions is safe regardless of which mode a
	// given session uses.
	tokenScorer *similarity.Scorer
	charScorer  *similarity.Scorer
}

// New builds an Engine over the given Pattern Library and vector store.
// idxCfg configures the Candidate Index's bloom/minhash sizing.
func New(patterns pattern.Store, vectors vectorstore.Store, idxCfg index.Config) *Engine {
	idx := index.New(idxCfg)
	return &Engine{
		patterns:    patterns,
		vectors:     vectors,
		index:       idx,
		sessions:    session.NewManager(patterns, vectors, idx, 0),
		filterExec:  filter.New(),
		tokenScorer: similarity.New(true),
		charScorer:  similarity.New(false),
	}
}

// scorerFor returns the Engine's long-lived Scorer for the given
// session's matching mode.
func (e *Engine) scorerFor(useTokenMatching bool) *similarity.Scorer {
	if useTokenMatching {
		return e.tokenScorer
	}
	return e.charScorer
}

// Observe implements observe(session, obs) (spec §4.10).
func (e *Engine) Observe(ctx context.Context, sessionID, libraryID string, cfg *config.SessionConfiguration, obs symbol.Observation) (session.ObserveResult, error) {
	sess := e.sessions.GetOrCreate(sessionID, libraryID, cfg)
	r, err := sess.Observe(ctx, obs)
	if err != nil {
		return r, err
	}
	audit.For(sessionID, libraryID).Observe(r.STMLength, r.Time, r.AutoLearnedPattern)
	return r, nil
}

// ObserveSequence implements observe_sequence(session, [obs], opts).
func (e *Engine) ObserveSequence(ctx context.Context, sessionID, libraryID string, cfg *config.SessionConfiguration, obs []symbol.Observation, opts session.SequenceOptions) ([]session.ObserveResult, error) {
	sess := e.sessions.GetOrCreate(sessionID, libraryID, cfg)
	return sess.ObserveSequence(ctx, obs, opts)
}

// Learn implements the explicit learn(session) operation.
func (e *Engine) Learn(ctx context.Context, sessionID string) (string, error) {
	sess, ok := e.sessions.Get(sessionID)
	if !ok {
		return "", kerr.NewValidationError("session_id", "unknown session")
	}
	name, err := sess.Learn(ctx)
	if err != nil {
		return "", err
	}
	frequency := 0
	if p, ok, err := e.patterns.Get(ctx, sess.LibraryID, name); err == nil && ok {
		frequency = p.Frequency
	}
	audit.For(sessionID, sess.LibraryID).Learn(name, frequency)
	return name, nil
}

// ClearSTM implements clear_stm(session).
func (e *Engine) ClearSTM(sessionID string) error {
	sess, ok := e.sessions.Get(sessionID)
	if !ok {
		return kerr.NewValidationError("session_id", "unknown session")
	}
	sess.ClearSTM()
	audit.For(sessionID, sess.LibraryID).ClearSTM()
	return nil
}

// ClearAll implements clear_all(library_id): drops every pattern and
// index entry for the library. Session STMs are untouched (they belong
// to individual sessions, not the library).
func (e *Engine) ClearAll(ctx context.Context, libraryID string) error {
	if err := e.patterns.DropAll(ctx, libraryID); err != nil {
		return err
	}
	e.index.DropAll(libraryID)
	audit.ClearAll(libraryID)
	return nil
}

// GetPattern implements get_pattern(library_id, name).
func (e *Engine) GetPattern(ctx context.Context, libraryID, name string) (*pattern.Pattern, bool, error) {
	return e.patterns.Get(ctx, libraryID, name)
}

// UpdateSessionConfig implements update_session_config(session, cfg).
func (e *Engine) UpdateSessionConfig(sessionID string, cfg *config.SessionConfiguration) error {
	sess, ok := e.sessions.Get(sessionID)
	if !ok {
		return kerr.NewValidationError("session_id", "unknown session")
	}
	sess.UpdateConfig(cfg)
	return nil
}

// SessionConfig returns the named session's current configuration, or
// ok=false if the session does not exist.
func (e *Engine) SessionConfig(sessionID string) (*config.SessionConfiguration, bool) {
	sess, ok := e.sessions.Get(sessionID)
	if !ok {
		return nil, false
	}
	return sess.Config(), true
}

// Predict implements predict(session) -> {predictions, future_potentials,
// count} (spec §4.10), running the full C3-C8 pipeline: filter, then
// parallel similarity/segmentation per candidate, cancelled together on
// first error, then metric evaluation and ranking. Cancellable at stage boundaries;
// partial results are discarded on cancellation (spec §5 "no externally
// visible state is mutated by predict").
func (e *Engine) Predict(ctx context.Context, sessionID string) (rank.Envelope, error) {
	sess, ok := e.sessions.Get(sessionID)
	if !ok {
		return rank.Envelope{}, kerr.NewValidationError("session_id", "unknown session")
	}
	cfg := sess.Config()
	stm := sess.STM()

	// stmOrdered preserves event order and duplicates, matching pattern
	// length's own duplicate-inclusive definition (index.Publish) and the
	// ordered-sequence contract similarity.Score requires. stmSet is the
	// deduplicated, lex-sorted symbol set the set-based filter stages
	// (jaccard/bloom/minhash) and STMJoined operate on.
	stmOrdered := orderedFlatten(stm)
	if len(stmOrdered) == 0 {
		return rank.Envelope{}, nil
	}
	stmSet := uniqueSorted(stmOrdered)

	stats, err := e.patterns.GlobalStats(ctx, sess.LibraryID)
	if err != nil {
		return rank.Envelope{}, err
	}

	filterResult, err := e.filterExec.Run(ctx, &filter.Input{
		LibraryID:     sess.LibraryID,
		Index:         e.index,
		STMSymbols:    stmSet,
		STMTotalCount: len(stmOrdered),
		STMJoined:     index.JoinedSorted(stmSet),
		Cfg:           cfg,
	})
	if err != nil {
		return rank.Envelope{}, err
	}
	auditLog := audit.For(sessionID, sess.LibraryID)
	for _, m := range filterResult.Metrics {
		auditLog.FilterStage(string(m.Stage), m.InputCount, m.OutputCount, m.Overflowed)
	}

	select {
	case <-ctx.Done():
		return rank.Envelope{}, kerr.NewCancelled(ctx.Err())
	default:
	}

	candidates, err := e.scoreCandidates(ctx, sess.LibraryID, cfg, stm, stmOrdered, stmSet, filterResult.Candidates)
	if err != nil {
		return rank.Envelope{}, err
	}

	metrics := metric.Evaluate(candidates, stats)
	envelope := rank.Rank(metrics, cfg.RankSortAlgo, cfg.MaxPredictions)
	auditLog.Predict(len(candidates), envelope.Count)
	return envelope, nil
}

// scoreCandidates fans out similarity -> segmentation over every
// surviving candidate name concurrently, one goroutine per candidate,
// via errgroup, cancelled together on first error. A candidate whose
// pattern lookup fails, whose similarity falls below recall_threshold, or
// whose segmentation is undefined is dropped without failing the whole
// call (spec §7 propagation policy). stmOrdered (order- and
// duplicate-preserving) feeds the Similarity Scorer per spec §4.5;
// stmSet (deduplicated) feeds the Metric Evaluator's fragmentation set
// lookup, where membership is all that matters.
func (e *Engine) scoreCandidates(ctx context.Context, libraryID string, cfg *config.SessionConfiguration, stm []symbol.Event, stmOrdered, stmSet []string, names []string) ([]metric.Candidate, error) {
	scorer := e.scorerFor(cfg.UseTokenMatching)

	results := make([]*metric.Candidate, len(names))
	g, gctx := errgroup.WithContext(ctx)

	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			p, ok, err := e.patterns.Get(gctx, libraryID, name)
			if err != nil {
				logging.Get(logging.CategoryEngine).Warnw("candidate pattern lookup failed, dropping",
					"pattern_name", name, "error", err)
				return nil
			}
			if !ok {
				return nil
			}

			sim, pass := scorer.Score(stmOrdered, p, cfg.RecallThreshold)
			if !pass {
				return nil
			}

			seg, ok := segment.Segment(stm, p.Data)
			if !ok {
				return nil
			}

			results[i] = &metric.Candidate{
				Pattern:      p,
				Segmentation: seg,
				Similarity:   sim,
				STMSymbols:   stmSet,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, kerr.NewCancelled(ctx.Err())
		}
		return nil, err
	}

	out := make([]metric.Candidate, 0, len(results))
	for _, c := range results {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

// orderedFlatten concatenates every event's symbols in STM order,
// keeping duplicates — the definition pattern length and the Similarity
// Scorer require (spec §4.5, index.Publish).
func orderedFlatten(events []symbol.Event) []string {
	var out []string
	for _, ev := range events {
		out = append(out, []string(ev)...)
	}
	return out
}

// uniqueSorted dedupes and lex-sorts symbols, for the set-based filter
// stages (jaccard/bloom/minhash) where only membership matters.
func uniqueSorted(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	var out []string
	for _, s := range symbols {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
