// Package vectorstore persists the raw embedding vectors the Symbolizer
// (spec §4.1) hashes into VCTR| symbols, and answers the nearest-neighbor
// queries an embedding-aware caller may want layered on top of KATO (spec
// §1: embedding generation and persistent storage engines are external
// collaborators — this package is the narrow seam KATO owns against them).
package vectorstore

import "context"

// Neighbor is one nearest-neighbor hit: the VCTR| hash and its distance
// from the query vector (smaller is closer).
type Neighbor struct {
	Hash     string
	Distance float64
}

// Store is the narrow contract the Symbolizer and any downstream
// nearest-neighbor caller need. Implementations must make PutIfAbsent idempotent:
// writing the same hash twice is a no-op, matching the "idempotent write"
// requirement in spec §4.1.
type Store interface {
	// PutIfAbsent stores v under hash if no vector is stored under that
	// hash yet. It never overwrites an existing entry.
	PutIfAbsent(ctx context.Context, hash string, v []float64) error

	// Get returns the vector stored under hash, or ok=false if absent.
	Get(ctx context.Context, hash string) (v []float64, ok bool, err error)

	// NearestNeighbors returns the k closest stored vectors to v by
	// ascending distance.
	NearestNeighbors(ctx context.Context, v []float64, k int) ([]Neighbor, error)

	// Close releases any underlying resources.
	Close() error
}
