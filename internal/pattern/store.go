package pattern

import (
	"context"

	"kato/internal/symbol"
)

// Store is the Pattern Library contract (spec §4.2). Implementations must
// make Learn atomic: a concurrent Learn and Get on the same name never
// observes a half-updated pattern.
type Store interface {
	// Learn inserts a new pattern or updates an existing one (spec §4.2):
	// on first learn the pattern is created with frequency 1; on relearn
	// frequency increments, emotives are appended per-key capped at
	// persistence (oldest dropped first), and metadata keys are
	// set-unioned. Rejects sequences with fewer than two total symbols.
	Learn(ctx context.Context, libraryID string, data []symbol.Event, emotives map[string][]float64, metadata map[string][]string, persistence int) (name string, err error)

	// Get returns the named pattern, or ok=false if it doesn't exist.
	Get(ctx context.Context, libraryID, name string) (p *Pattern, ok bool, err error)

	// AllFor returns every pattern stored for libraryID. Order is
	// unspecified; callers that need determinism sort by Name themselves.
	AllFor(ctx context.Context, libraryID string) ([]*Pattern, error)

	// GlobalStats returns the cacheable per-library aggregate (spec
	// §4.2), invalidated on every Learn.
	GlobalStats(ctx context.Context, libraryID string) (GlobalStats, error)

	// DropAll deletes every pattern stored for libraryID.
	DropAll(ctx context.Context, libraryID string) error
}
