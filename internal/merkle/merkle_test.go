package merkle

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Rubentxu/code-context-graph/internal/casstore"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *casstore.Store {
	t.Helper()
	s, err := casstore.Open(casstore.Config{StoragePath: filepath.Join(t.TempDir(), "cas")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rec(path string, content string) FileRecord {
	return FileRecord{
		Path:        path,
		ContentHash: casstore.HashBytes([]byte(content)),
		Size:        int64(len(content)),
		ModTime:     time.Unix(1700000000, 0),
	}
}

func TestBuildEmptyTreeIsSentinel(t *testing.T) {
	store := newStore(t)
	root, stats, err := Build(store, nil, 16)
	require.NoError(t, err)
	require.Equal(t, EmptyTreeHash, root)
	require.Zero(t, stats.FileCount)
}

func TestBuildSingleFileWrapsLeafDirectly(t *testing.T) {
	store := newStore(t)
	leaf := rec("a.py", "print(1)")

	root, stats, err := Build(store, []FileRecord{leaf}, 16)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.FileCount)

	raw, err := store.Get(root)
	require.NoError(t, err)
	require.Equal(t, byte('L'), raw[0], "single-file root must be the leaf record itself")
}

func TestBuildIsDeterministicRegardlessOfInputOrder(t *testing.T) {
	store := newStore(t)
	leaves := []FileRecord{rec("b.py", "b"), rec("a.py", "a"), rec("c.py", "c")}

	root1, _, err := Build(store, leaves, 2)
	require.NoError(t, err)

	reversed := []FileRecord{leaves[2], leaves[1], leaves[0]}
	root2, _, err := Build(store, reversed, 2)
	require.NoError(t, err)

	require.Equal(t, root1, root2)
}

func TestDiffNoOpOnIdenticalRoots(t *testing.T) {
	store := newStore(t)
	leaves := []FileRecord{rec("a.py", "a"), rec("b.py", "b")}
	root, _, err := Build(store, leaves, 16)
	require.NoError(t, err)

	diff, err := Diff(store, root, root)
	require.NoError(t, err)
	require.EqualValues(t, 2, diff.UnchangedCount)
	require.Empty(t, diff.Added)
	require.Empty(t, diff.Modified)
	require.Empty(t, diff.Deleted)
}

func TestDiffDetectsAddedModifiedDeleted(t *testing.T) {
	store := newStore(t)
	oldLeaves := []FileRecord{rec("a.py", "a-v1"), rec("b.py", "b"), rec("z.py", "z")}
	oldRoot, _, err := Build(store, oldLeaves, 2)
	require.NoError(t, err)

	newLeaves := []FileRecord{rec("a.py", "a-v2"), rec("b.py", "b"), rec("c.py", "c")}
	newRoot, _, err := Build(store, newLeaves, 2)
	require.NoError(t, err)

	diff, err := Diff(store, oldRoot, newRoot)
	require.NoError(t, err)

	require.Len(t, diff.Modified, 1)
	require.Equal(t, "a.py", diff.Modified[0].Path)

	require.Len(t, diff.Added, 1)
	require.Equal(t, "c.py", diff.Added[0].Path)

	require.Len(t, diff.Deleted, 1)
	require.Equal(t, "z.py", diff.Deleted[0].Path)

	require.EqualValues(t, 1, diff.UnchangedCount) // b.py
}

func TestDiffAgainstEmptyTreeIsAllAdded(t *testing.T) {
	store := newStore(t)
	leaves := []FileRecord{rec("a.py", "a"), rec("b.py", "b")}
	root, _, err := Build(store, leaves, 16)
	require.NoError(t, err)

	diff, err := Diff(store, EmptyTreeHash, root)
	require.NoError(t, err)
	require.Len(t, diff.Added, 2)
	require.Empty(t, diff.Modified)
	require.Empty(t, diff.Deleted)
}

func TestNormalizePathRejectsNonUTF8(t *testing.T) {
	_, err := NormalizePath(string([]byte{0xff, 0xfe}))
	require.Error(t, err)
}

func TestBuildRejectsDuplicatePaths(t *testing.T) {
	store := newStore(t)
	leaves := []FileRecord{rec("a.py", "1"), rec("a.py", "2")}
	_, _, err := Build(store, leaves, 16)
	require.Error(t, err)
}
