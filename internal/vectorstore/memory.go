package vectorstore

import (
	"context"
	"sort"
	"sync"

	"kato/internal/kvec"
)

// MemoryStore is a brute-force in-process Store, used for tests, small
// deployments, and as the fallback when no sqlite-vec-backed store is
// configured. NearestNeighbors is O(n) in the number of stored vectors.
type MemoryStore struct {
	mu      sync.RWMutex
	vectors map[string][]float64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{vectors: make(map[string][]float64)}
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, hash string, v []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.vectors[hash]; exists {
		return nil
	}
	cp := make([]float64, len(v))
	copy(cp, v)
	s.vectors[hash] = cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, hash string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vectors[hash]
	if !ok {
		return nil, false, nil
	}
	cp := make([]float64, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (s *MemoryStore) NearestNeighbors(_ context.Context, query []float64, k int) ([]Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	neighbors := make([]Neighbor, 0, len(s.vectors))
	for hash, v := range s.vectors {
		sim, err := kvec.CosineSimilarity(query, v)
		if err != nil {
			continue
		}
		neighbors = append(neighbors, Neighbor{Hash: hash, Distance: 1 - sim})
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].Hash < neighbors[j].Hash
	})
	if k < len(neighbors) {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

func (s *MemoryStore) Close() error { return nil }

// Len reports the number of distinct vectors stored, mostly useful in tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

var _ Store = (*MemoryStore)(nil)
