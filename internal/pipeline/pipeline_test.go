package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Rubentxu/code-context-graph/api"
	"github.com/Rubentxu/code-context-graph/internal/casstore"
	"github.com/Rubentxu/code-context-graph/internal/config"
	"github.com/Rubentxu/code-context-graph/internal/version"
)

// fakeGraphStore is an in-memory GraphStoreClient, standing in for a
// real graph database the same way the graph writer tests use one.
type fakeGraphStore struct {
	entities map[string]api.Entity
	edges    map[string]api.Relation
	markers  map[string]string
}

func newFakeGraphStore() *fakeGraphStore {
	return &fakeGraphStore{
		entities: map[string]api.Entity{},
		edges:    map[string]api.Relation{},
		markers:  map[string]string{},
	}
}

func (f *fakeGraphStore) UpsertEntity(ctx context.Context, e api.Entity) error {
	f.entities[e.ID] = e
	return nil
}
func (f *fakeGraphStore) UpsertEdge(ctx context.Context, r api.Relation) error {
	f.edges[r.EdgeID()] = r
	return nil
}
func (f *fakeGraphStore) DeleteEntity(ctx context.Context, id string) error {
	delete(f.entities, id)
	return nil
}
func (f *fakeGraphStore) DeleteEdge(ctx context.Context, edgeID string) error {
	delete(f.edges, edgeID)
	return nil
}
func (f *fakeGraphStore) GetMarker(ctx context.Context, key string) (string, bool, error) {
	v, ok := f.markers[key]
	return v, ok, nil
}
func (f *fakeGraphStore) SetMarker(ctx context.Context, key, value string) error {
	f.markers[key] = value
	return nil
}

type fixture struct {
	root  string
	cas   *casstore.Store
	vers  *version.Manager
	store *fakeGraphStore
	pipe  *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(root, 0o755))

	cas, err := casstore.Open(casstore.Config{StoragePath: filepath.Join(dir, "cas")})
	require.NoError(t, err)
	t.Cleanup(func() { cas.Close() })

	vers, err := version.Open(filepath.Join(dir, "versions.db"), cas, version.Retention{MinVersionsToKeep: 10})
	require.NoError(t, err)
	t.Cleanup(func() { vers.Close() })

	store := newFakeGraphStore()
	cfg := config.Default()
	cfg.Parser.ParallelWorkers = 2

	return &fixture{
		root:  root,
		cas:   cas,
		vers:  vers,
		store: store,
		pipe:  New(root, cfg, cas, vers, store),
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const pySource = `class Greeter:
    def greet(self, name):
        return f"hello {name}"


def main():
    g = Greeter()
    print(g.greet("world"))
`

func TestRunSyncIndexesNewFiles(t *testing.T) {
	fx := newFixture(t)
	defer fx.pipe.Close()

	writeFile(t, fx.root, "greeter.py", pySource)

	v, err := fx.pipe.RunSync(context.Background(), "tester", "initial index")
	require.NoError(t, err)
	require.False(t, v.RootHash.IsZero())

	foundClass, foundMethod, foundFunc := false, false, false
	for _, e := range fx.store.entities {
		switch {
		case e.Kind == api.EntityClass && e.Name == "Greeter":
			foundClass = true
		case e.Kind == api.EntityMethod && e.Name == "greet":
			foundMethod = true
		case e.Kind == api.EntityFunction && e.Name == "main":
			foundFunc = true
		}
	}
	require.True(t, foundClass, "expected a Greeter class entity")
	require.True(t, foundMethod, "expected a greet method entity")
	require.True(t, foundFunc, "expected a main function entity")

	marker, ok := fx.store.markers["__ccg_apply_marker"]
	require.True(t, ok)
	require.Contains(t, marker, v.ID)
}

func TestRunSyncSecondPassIsIncremental(t *testing.T) {
	fx := newFixture(t)
	defer fx.pipe.Close()

	writeFile(t, fx.root, "greeter.py", pySource)
	_, err := fx.pipe.RunSync(context.Background(), "tester", "initial index")
	require.NoError(t, err)

	firstCount := len(fx.store.entities)
	require.NotZero(t, firstCount)

	// Re-running over unchanged content should be a no-op: same entity
	// count, no churn in the graph store.
	v2, err := fx.pipe.RunSync(context.Background(), "tester", "no-op rerun")
	require.NoError(t, err)
	require.Len(t, fx.store.entities, firstCount)
	require.NotEmpty(t, v2.ID)

	// Adding a second file should only add to the graph, not touch the
	// first file's entities.
	writeFile(t, fx.root, "util.py", "def helper():\n    return 1\n")
	_, err = fx.pipe.RunSync(context.Background(), "tester", "add util")
	require.NoError(t, err)
	require.Greater(t, len(fx.store.entities), firstCount)
}

func TestRunSyncSkipsOversizeFiles(t *testing.T) {
	fx := newFixture(t)
	defer fx.pipe.Close()
	fx.pipe.cfg.Parser.MaxFileBytes = 8

	writeFile(t, fx.root, "big.py", pySource)

	events, err := fx.pipe.Run(context.Background(), "tester", "oversize run")
	require.NoError(t, err)

	sawSkipped := false
	for ev := range events {
		if ev.Kind == EventSkippedOversize {
			sawSkipped = true
		}
	}
	require.True(t, sawSkipped)
}
