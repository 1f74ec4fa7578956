package graphwriter

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Rubentxu/code-context-graph/api"
)

func TestSQLiteStoreUpsertAndLookupByName(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	e := api.Entity{ID: "a.py#Function#f/0", Kind: api.EntityFunction, Name: "f", FilePath: "a.py"}
	require.NoError(t, store.UpsertEntity(ctx, e))

	ids := store.LookupByName("f")
	require.Contains(t, ids, e.ID)
}

func TestSQLiteStoreDeleteEntityIsNoOpWhenAbsent(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.DeleteEntity(context.Background(), "nonexistent"))
}

func TestSQLiteStoreMarkerRoundTrip(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	_, ok, err := store.GetMarker(ctx, ApplyMarkerKey)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.SetMarker(ctx, ApplyMarkerKey, `{"version_id":"v1"}`))
	value, ok, err := store.GetMarker(ctx, ApplyMarkerKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"version_id":"v1"}`, value)
}

func TestSQLiteStoreUpsertIsIdempotent(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	e := api.Entity{ID: "x", Kind: api.EntityFunction, Name: "x", FilePath: "a.py"}
	require.NoError(t, store.UpsertEntity(ctx, e))
	require.NoError(t, store.UpsertEntity(ctx, e))

	var count int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM entities WHERE id = ?", "x").Scan(&count))
	require.Equal(t, 1, count)
}
