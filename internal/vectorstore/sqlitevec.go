package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"kato/internal/kerr"
	"kato/internal/kvec"
	"kato/internal/logging"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// SQLiteVecStore is the production Store: a sqlite-vec virtual table
// (vec0) for the embeddings themselves, joined against a hash index table
// so lookups and idempotent writes are keyed by the VCTR| hash rather
// than sqlite-vec's internal rowid.
type SQLiteVecStore struct {
	db *sql.DB
}

// OpenSQLiteVecStore opens (creating if necessary) a sqlite-vec-backed
// Store at path. Pass ":memory:" for an ephemeral store in tests that do
// exercise the real cgo driver.
func OpenSQLiteVecStore(path string) (*SQLiteVecStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, kerr.NewStorageError("vectorstore.Open", err)
	}
	db.SetMaxOpenConns(1) // sqlite-vec virtual tables are not safe for concurrent writers

	store := &SQLiteVecStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteVecStore) migrate() error {
	stmts := []string{
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(embedding float[%d])`, kvec.Dim),
		`CREATE TABLE IF NOT EXISTS vector_hashes (
			hash TEXT PRIMARY KEY,
			rowid_ref INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return kerr.NewStorageError("vectorstore.migrate", err)
		}
	}
	return nil
}

// PutIfAbsent stores v under hash unless a row already exists for it.
// The existence check and the write happen inside one transaction so
// the two don't interleave with another caller's PutIfAbsent for the
// same hash: with db.SetMaxOpenConns(1), BeginTx holds the store's only
// connection until Commit/Rollback, serializing concurrent callers
// against each other.
func (s *SQLiteVecStore) PutIfAbsent(ctx context.Context, hash string, v []float64) error {
	log := logging.Get(logging.CategoryStore)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kerr.NewStorageError("vectorstore.PutIfAbsent", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM vector_hashes WHERE hash = ?`, hash).Scan(&exists)
	if err == nil {
		return tx.Commit() // already present: idempotent no-op
	}
	if err != sql.ErrNoRows {
		return kerr.NewStorageError("vectorstore.PutIfAbsent", err)
	}

	payload, err := serializeVector(v)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO vec_embeddings(embedding) VALUES (?)`, payload)
	if err != nil {
		return kerr.NewStorageError("vectorstore.PutIfAbsent", err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return kerr.NewStorageError("vectorstore.PutIfAbsent", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO vector_hashes(hash, rowid_ref) VALUES (?, ?)`, hash, rowID); err != nil {
		return kerr.NewStorageError("vectorstore.PutIfAbsent", err)
	}
	if err := tx.Commit(); err != nil {
		return kerr.NewStorageError("vectorstore.PutIfAbsent", err)
	}
	log.Debugw("vector stored", "hash", hash)
	return nil
}

func (s *SQLiteVecStore) Get(ctx context.Context, hash string) ([]float64, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT vec_to_json(e.embedding) FROM vec_embeddings e
		JOIN vector_hashes h ON h.rowid_ref = e.rowid
		WHERE h.hash = ?`, hash).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, kerr.NewStorageError("vectorstore.Get", err)
	}
	v, err := deserializeVector(payload)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *SQLiteVecStore) NearestNeighbors(ctx context.Context, query []float64, k int) ([]Neighbor, error) {
	payload, err := serializeVector(query)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT h.hash, e.distance
		FROM vec_embeddings e
		JOIN vector_hashes h ON h.rowid_ref = e.rowid
		WHERE e.embedding MATCH ? AND k = ?
		ORDER BY e.distance`, payload, k)
	if err != nil {
		return nil, kerr.NewStorageError("vectorstore.NearestNeighbors", err)
	}
	defer rows.Close()

	var out []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.Hash, &n.Distance); err != nil {
			return nil, kerr.NewStorageError("vectorstore.NearestNeighbors", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, kerr.NewStorageError("vectorstore.NearestNeighbors", err)
	}
	return out, nil
}

func (s *SQLiteVecStore) Close() error { return s.db.Close() }

func serializeVector(v []float64) (string, error) {
	f32 := make([]float32, len(v))
	for i, f := range v {
		f32[i] = float32(f)
	}
	b, err := sqlite_vec.SerializeFloat32(f32)
	if err != nil {
		return "", kerr.NewStorageError("vectorstore.serialize", err)
	}
	return string(b), nil
}

// deserializeVector decodes the JSON array form sqlite-vec also accepts,
// used when reading a stored embedding back out for exact comparisons
// (nearest-neighbor search goes through MATCH instead and never calls
// this).
func deserializeVector(payload string) ([]float64, error) {
	var f32 []float32
	if err := json.Unmarshal([]byte(payload), &f32); err != nil {
		return nil, kerr.NewStorageError("vectorstore.deserialize", err)
	}
	out := make([]float64, len(f32))
	for i, f := range f32 {
		out[i] = float64(f)
	}
	return out, nil
}

var _ Store = (*SQLiteVecStore)(nil)
