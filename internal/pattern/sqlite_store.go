package pattern

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"

	"kato/internal/kerr"
	"kato/internal/logging"
	"kato/internal/symbol"

	"golang.org/x/sync/singleflight"
)

// SQLiteStore persists patterns to a SQL database through the standard
// database/sql interface, so it works unmodified against either the cgo
// mattn/go-sqlite3 driver or the pure-Go modernc.org/sqlite driver — the
// caller picks by dialing sql.Open with the matching driver name before
// handing the *sql.DB to NewSQLiteStore.
type SQLiteStore struct {
	db *sql.DB

	mu         sync.Mutex // serializes Learn per process; see the note in Learn
	statsGroup singleflight.Group
}

// NewSQLiteStore wraps an already-open database handle. The caller owns
// its lifecycle (including Close).
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS patterns (
			library_id TEXT NOT NULL,
			name       TEXT NOT NULL,
			data       TEXT NOT NULL,
			frequency  INTEGER NOT NULL,
			emotives   TEXT NOT NULL,
			metadata   TEXT NOT NULL,
			PRIMARY KEY (library_id, name)
		)`)
	if err != nil {
		return kerr.NewStorageError("pattern.migrate", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_patterns_library ON patterns(library_id)`)
	if err != nil {
		return kerr.NewStorageError("pattern.migrate", err)
	}
	return nil
}

type serializedPattern struct {
	Data      [][]string           `json:"data"`
	Frequency int                  `json:"frequency"`
	Emotives  map[string][]float64 `json:"emotives"`
	Metadata  map[string][]string  `json:"metadata"`
}

func (s *SQLiteStore) Learn(ctx context.Context, libraryID string, data []symbol.Event, emotives map[string][]float64, metadata map[string][]string, persistence int) (string, error) {
	log := logging.Get(logging.CategoryPattern)

	if TotalSymbols(data) < 2 {
		return "", kerr.NewValidationError("data", "pattern must contain at least two total symbols")
	}
	name := Name(data)

	// SQLite serializes writers itself, but the read-modify-write of
	// frequency/emotives/metadata below must be atomic with respect to a
	// concurrent Learn on the same name within this process too.
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", kerr.NewStorageError("pattern.Learn", err)
	}
	defer tx.Rollback()

	existing, found, err := s.loadRow(ctx, tx, libraryID, name)
	if err != nil {
		return "", err
	}

	var sp serializedPattern
	if found {
		sp = existing
		sp.Frequency++
		appendEmotives(sp.Emotives, emotives, persistence)
		mergedMeta := stringSetMapFromLists(sp.Metadata)
		unionMetadata(mergedMeta, metadata)
		sp.Metadata = stringSetMapToLists(mergedMeta)
	} else {
		sp = serializedPattern{
			Data:      eventsToRaw(data),
			Frequency: 1,
			Emotives:  make(map[string][]float64),
			Metadata:  make(map[string][]string),
		}
		appendEmotives(sp.Emotives, emotives, persistence)
		meta := make(map[string]StringSet)
		unionMetadata(meta, metadata)
		sp.Metadata = stringSetMapToLists(meta)
	}

	dataJSON, err := json.Marshal(sp.Data)
	if err != nil {
		return "", kerr.NewStorageError("pattern.Learn", err)
	}
	emotivesJSON, err := json.Marshal(sp.Emotives)
	if err != nil {
		return "", kerr.NewStorageError("pattern.Learn", err)
	}
	metadataJSON, err := json.Marshal(sp.Metadata)
	if err != nil {
		return "", kerr.NewStorageError("pattern.Learn", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO patterns(library_id, name, data, frequency, emotives, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(library_id, name) DO UPDATE SET
			frequency = excluded.frequency,
			emotives = excluded.emotives,
			metadata = excluded.metadata`,
		libraryID, name, string(dataJSON), sp.Frequency, string(emotivesJSON), string(metadataJSON))
	if err != nil {
		return "", kerr.NewStorageError("pattern.Learn", err)
	}
	if err := tx.Commit(); err != nil {
		return "", kerr.NewStorageError("pattern.Learn", err)
	}

	log.Debugw("pattern learned", "library_id", libraryID, "name", name, "frequency", sp.Frequency)
	return name, nil
}

// loadRow reads and decodes one pattern row, or found=false if absent.
func (s *SQLiteStore) loadRow(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}, libraryID, name string) (serializedPattern, bool, error) {
	var dataJSON, emotivesJSON, metadataJSON string
	var frequency int
	err := q.QueryRowContext(ctx, `SELECT data, frequency, emotives, metadata FROM patterns WHERE library_id = ? AND name = ?`, libraryID, name).
		Scan(&dataJSON, &frequency, &emotivesJSON, &metadataJSON)
	if err == sql.ErrNoRows {
		return serializedPattern{}, false, nil
	}
	if err != nil {
		return serializedPattern{}, false, kerr.NewStorageError("pattern.loadRow", err)
	}

	var sp serializedPattern
	sp.Frequency = frequency
	if err := json.Unmarshal([]byte(dataJSON), &sp.Data); err != nil {
		return serializedPattern{}, false, kerr.NewStorageError("pattern.loadRow", err)
	}
	if err := json.Unmarshal([]byte(emotivesJSON), &sp.Emotives); err != nil {
		return serializedPattern{}, false, kerr.NewStorageError("pattern.loadRow", err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &sp.Metadata); err != nil {
		return serializedPattern{}, false, kerr.NewStorageError("pattern.loadRow", err)
	}
	return sp, true, nil
}

func (s *SQLiteStore) Get(ctx context.Context, libraryID, name string) (*Pattern, bool, error) {
	sp, found, err := s.loadRow(ctx, s.db, libraryID, name)
	if err != nil || !found {
		return nil, found, err
	}
	return rowToPattern(name, sp), true, nil
}

func (s *SQLiteStore) AllFor(ctx context.Context, libraryID string) ([]*Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, data, frequency, emotives, metadata FROM patterns WHERE library_id = ?`, libraryID)
	if err != nil {
		return nil, kerr.NewStorageError("pattern.AllFor", err)
	}
	defer rows.Close()

	var out []*Pattern
	for rows.Next() {
		var name, dataJSON, emotivesJSON, metadataJSON string
		var frequency int
		if err := rows.Scan(&name, &dataJSON, &frequency, &emotivesJSON, &metadataJSON); err != nil {
			return nil, kerr.NewStorageError("pattern.AllFor", err)
		}
		var sp serializedPattern
		sp.Frequency = frequency
		if err := json.Unmarshal([]byte(dataJSON), &sp.Data); err != nil {
			return nil, kerr.NewStorageError("pattern.AllFor", err)
		}
		if err := json.Unmarshal([]byte(emotivesJSON), &sp.Emotives); err != nil {
			return nil, kerr.NewStorageError("pattern.AllFor", err)
		}
		if err := json.Unmarshal([]byte(metadataJSON), &sp.Metadata); err != nil {
			return nil, kerr.NewStorageError("pattern.AllFor", err)
		}
		out = append(out, rowToPattern(name, sp))
	}
	if err := rows.Err(); err != nil {
		return nil, kerr.NewStorageError("pattern.AllFor", err)
	}
	return out, nil
}

func (s *SQLiteStore) GlobalStats(ctx context.Context, libraryID string) (GlobalStats, error) {
	v, err, _ := s.statsGroup.Do(libraryID, func() (interface{}, error) {
		patterns, err := s.AllFor(ctx, libraryID)
		if err != nil {
			return GlobalStats{}, err
		}
		stats := GlobalStats{SymbolDF: make(map[string]int)}
		for _, p := range patterns {
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
		return stats, nil
	})
	if err != nil {
		return GlobalStats{}, err
	}
	return v.(GlobalStats), nil
}

func (s *SQLiteStore) DropAll(ctx context.Context, libraryID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM patterns WHERE library_id = ?`, libraryID)
	if err != nil {
		return kerr.NewStorageError("pattern.DropAll", err)
	}
	return nil
}

func eventsToRaw(data []symbol.Event) [][]string {
	raw := make([][]string, len(data))
	for i, ev := range data {
		raw[i] = []string(ev)
	}
	return raw
}

func rowToPattern(name string, sp serializedPattern) *Pattern {
	data := make([]symbol.Event, len(sp.Data))
	for i, ev := range sp.Data {
		data[i] = symbol.Event(ev)
	}
	meta := stringSetMapFromLists(sp.Metadata)
	return &Pattern{
		Name:      name,
		Data:      data,
		Frequency: sp.Frequency,
		Emotives:  sp.Emotives,
		Metadata:  meta,
	}
}

func stringSetMapFromLists(m map[string][]string) map[string]StringSet {
	out := make(map[string]StringSet, len(m))
	for k, values := range m {
		out[k] = NewStringSet(values...)
	}
	return out
}

func stringSetMapToLists(m map[string]StringSet) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, set := range m {
		out[k] = set.Sorted()
	}
	return out
}

var _ Store = (*SQLiteStore)(nil)
