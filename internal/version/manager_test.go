package version

import (
	"path/filepath"
	"testing"

	"github.com/Rubentxu/code-context-graph/internal/casstore"
	"github.com/Rubentxu/code-context-graph/internal/merkle"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *casstore.Store) {
	t.Helper()
	dir := t.TempDir()
	cas, err := casstore.Open(casstore.Config{StoragePath: filepath.Join(dir, "cas")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cas.Close() })

	mgr, err := Open(filepath.Join(dir, "versions.db"), cas, Retention{RetentionDays: 30, MinVersionsToKeep: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr, cas
}

func TestCreateFirstVersionDiffsAgainstEmptyTree(t *testing.T) {
	mgr, cas := newTestManager(t)

	leaves := []merkle.FileRecord{
		{Path: "a.py", ContentHash: casstore.HashBytes([]byte("a"))},
		{Path: "b.py", ContentHash: casstore.HashBytes([]byte("b"))},
	}
	root, _, err := merkle.Build(cas, leaves, 16)
	require.NoError(t, err)

	v, err := mgr.Create(root, "", "alice", "initial import")
	require.NoError(t, err)
	require.Equal(t, uint64(1), v.Ordinal)
	require.Equal(t, 2, v.ChangeSummary.Added)
	require.Zero(t, v.ChangeSummary.Modified)
	require.Zero(t, v.ChangeSummary.Deleted)

	got, err := mgr.Get(v.ID)
	require.NoError(t, err)
	require.Equal(t, v.RootHash, got.RootHash)
}

func TestCreateSecondVersionDiffsAgainstParent(t *testing.T) {
	mgr, cas := newTestManager(t)

	a1, err := cas.Put([]byte("a-v1"))
	require.NoError(t, err)
	leaves1 := []merkle.FileRecord{{Path: "a.py", ContentHash: a1}}
	root1, _, err := merkle.Build(cas, leaves1, 16)
	require.NoError(t, err)
	v1, err := mgr.Create(root1, "", "alice", "first")
	require.NoError(t, err)

	a2, err := cas.Put([]byte("a-v2"))
	require.NoError(t, err)
	b, err := cas.Put([]byte("b"))
	require.NoError(t, err)
	leaves2 := []merkle.FileRecord{
		{Path: "a.py", ContentHash: a2},
		{Path: "b.py", ContentHash: b},
	}
	root2, _, err := merkle.Build(cas, leaves2, 16)
	require.NoError(t, err)
	v2, err := mgr.Create(root2, v1.ID, "alice", "second")
	require.NoError(t, err)

	require.Equal(t, uint64(2), v2.Ordinal)
	require.Equal(t, v1.ID, v2.ParentID)
	require.Equal(t, 1, v2.ChangeSummary.Added)   // b.py
	require.Equal(t, 1, v2.ChangeSummary.Modified) // a.py
}

func TestListOrdersNewestOrdinalFirst(t *testing.T) {
	mgr, cas := newTestManager(t)

	var last string
	for i := 0; i < 3; i++ {
		h, err := cas.Put([]byte{byte(i)})
		require.NoError(t, err)
		leaves := []merkle.FileRecord{{Path: "f.py", ContentHash: h}}
		root, _, err := merkle.Build(cas, leaves, 16)
		require.NoError(t, err)
		v, err := mgr.Create(root, last, "bob", "")
		require.NoError(t, err)
		last = v.ID
	}

	list, err := mgr.List(Filter{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, uint64(3), list[0].Ordinal)
	require.Equal(t, uint64(1), list[2].Ordinal)
}

func TestGCRetainsMinVersionsToKeep(t *testing.T) {
	dir := t.TempDir()
	cas, err := casstore.Open(casstore.Config{StoragePath: filepath.Join(dir, "cas")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cas.Close() })

	// RetentionDays: 0 so the age clause can never retain a version on its
	// own; only the "among the min_versions_to_keep most recent" clause can.
	mgr, err := Open(filepath.Join(dir, "versions.db"), cas, Retention{RetentionDays: 0, MinVersionsToKeep: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	var last string
	for i := 0; i < 5; i++ {
		h, err := cas.Put([]byte{byte(i)})
		require.NoError(t, err)
		leaves := []merkle.FileRecord{{Path: "f.py", ContentHash: h}}
		root, _, err := merkle.Build(cas, leaves, 16)
		require.NoError(t, err)
		v, err := mgr.Create(root, last, "bob", "")
		require.NoError(t, err)
		last = v.ID
	}

	_, err = mgr.GC()
	require.NoError(t, err)

	list, err := mgr.List(Filter{})
	require.NoError(t, err)
	require.Len(t, list, 2, "MinVersionsToKeep=2 should retain only the 2 newest versions once age cannot rescue the rest")
	require.Equal(t, uint64(5), list[0].Ordinal)
	require.Equal(t, uint64(4), list[1].Ordinal)
}

func TestGetMissingVersionReturnsNotFound(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.Get("does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)
}
