package pattern

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteStoreLearnAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store, err := NewSQLiteStore(db)
	require.NoError(t, err)

	data := seq([]string{"a", "b"}, []string{"c"})
	name, err := store.Learn(ctx, "lib1", data, map[string][]float64{"joy": {0.5}}, map[string][]string{"tag": {"x"}}, 5)
	require.NoError(t, err)
	assert.Equal(t, Name(data), name)

	p, ok, err := store.Get(ctx, "lib1", name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, p.Frequency)
	assert.Equal(t, []float64{0.5}, p.Emotives["joy"])
	assert.Equal(t, []string{"x"}, p.Metadata["tag"].Sorted())
}

func TestSQLiteStoreRelearnIncrementsAndMerges(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store, err := NewSQLiteStore(db)
	require.NoError(t, err)

	data := seq([]string{"a", "b"})
	_, err = store.Learn(ctx, "lib1", data, map[string][]float64{"joy": {0.1}}, map[string][]string{"tag": {"x"}}, 5)
	require.NoError(t, err)
	name, err := store.Learn(ctx, "lib1", data, map[string][]float64{"joy": {0.2}}, map[string][]string{"tag": {"y"}}, 5)
	require.NoError(t, err)

	p, ok, err := store.Get(ctx, "lib1", name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, p.Frequency)
	assert.Equal(t, []float64{0.1, 0.2}, p.Emotives["joy"])
	assert.Equal(t, []string{"x", "y"}, p.Metadata["tag"].Sorted())
}

func TestSQLiteStoreGlobalStats(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store, err := NewSQLiteStore(db)
	require.NoError(t, err)

	_, err = store.Learn(ctx, "lib1", seq([]string{"a", "b"}), nil, nil, 5)
	require.NoError(t, err)
	_, err = store.Learn(ctx, "lib1", seq([]string{"a", "c"}), nil, nil, 5)
	require.NoError(t, err)

	stats, err := store.GlobalStats(ctx, "lib1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PatternCount)
	assert.Equal(t, 2, stats.SymbolDF["a"])
}

func TestSQLiteStoreDropAll(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store, err := NewSQLiteStore(db)
	require.NoError(t, err)

	name, err := store.Learn(ctx, "lib1", seq([]string{"a", "b"}), nil, nil, 5)
	require.NoError(t, err)

	require.NoError(t, store.DropAll(ctx, "lib1"))
	_, ok, err := store.Get(ctx, "lib1", name)
	require.NoError(t, err)
	assert.False(t, ok)
}
