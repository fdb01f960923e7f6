package session

import (
	"sync"
	"time"

	"kato/internal/config"
	"kato/internal/pattern"
	"kato/internal/vectorstore"
)

// entry pairs a Session with its last-touched time, for TTL eviction
// (spec §6: "Session record keyed by session_id, TTL-expiring"). The
// session store itself is an external collaborator (spec §1 Non-goals);
// this in-memory manager is the minimal stand-in the Engine Facade needs
// to hold session state between calls.
type entry struct {
	session   *Session
	lastTouch time.Time
}

// Manager owns the set of live sessions for one process, keyed by
// session_id, with TTL-based eviction of idle sessions.
type Manager struct {
	mu    sync.Mutex
	ttl   time.Duration
	store map[string]*entry

	patterns pattern.Store
	vectors  vectorstore.Store
	index    indexPublisher
}

// NewManager builds a Manager backed by the given Pattern Library,
// vector store, and Candidate Index. Sessions idle longer than ttl are
// evicted on Sweep; ttl <= 0 disables eviction.
func NewManager(patterns pattern.Store, vectors vectorstore.Store, idx indexPublisher, ttl time.Duration) *Manager {
	return &Manager{
		ttl:      ttl,
		store:    make(map[string]*entry),
		patterns: patterns,
		vectors:  vectors,
		index:    idx,
	}
}

// GetOrCreate returns the session for id, creating it with libraryID and
// cfg if it doesn't exist yet. An existing session's library_id and
// config are left untouched; use Session.UpdateConfig to change them.
func (m *Manager) GetOrCreate(id, libraryID string, cfg *config.SessionConfiguration) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.store[id]
	if !ok {
		s := New(id, libraryID, cfg, m.patterns, m.vectors, m.index)
		e = &entry{session: s}
		m.store[id] = e
	}
	e.lastTouch = time.Now()
	return e.session
}

// Get returns the existing session for id, or ok=false.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[id]
	if !ok {
		return nil, false
	}
	e.lastTouch = time.Now()
	return e.session, true
}

// Delete removes a session immediately (used by tests; clear_all leaves
// sessions in place).
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, id)
}

// Sweep evicts every session idle longer than the manager's ttl. Callers
// run this on a ticker; it is a no-op when ttl <= 0.
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.ttl)
	evicted := 0
	for id, e := range m.store {
		if e.lastTouch.Before(cutoff) {
			delete(m.store, id)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}
