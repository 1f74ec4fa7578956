package graphwriter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Rubentxu/code-context-graph/api"
)

type fakeStore struct {
	entities       map[string]api.Entity
	edges          map[string]api.Relation
	markers        map[string]string
	failEntityOnce map[string]bool
	permanentFail  map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entities:       map[string]api.Entity{},
		edges:          map[string]api.Relation{},
		markers:        map[string]string{},
		failEntityOnce: map[string]bool{},
		permanentFail:  map[string]bool{},
	}
}

func (f *fakeStore) UpsertEntity(ctx context.Context, e api.Entity) error {
	if f.permanentFail[e.ID] {
		return errors.New("permanent: constraint violation")
	}
	if f.failEntityOnce[e.ID] {
		delete(f.failEntityOnce, e.ID)
		return ErrTransient
	}
	f.entities[e.ID] = e
	return nil
}
func (f *fakeStore) UpsertEdge(ctx context.Context, r api.Relation) error {
	f.edges[r.EdgeID()] = r
	return nil
}
func (f *fakeStore) DeleteEntity(ctx context.Context, id string) error {
	delete(f.entities, id)
	return nil
}
func (f *fakeStore) DeleteEdge(ctx context.Context, edgeID string) error {
	delete(f.edges, edgeID)
	return nil
}
func (f *fakeStore) GetMarker(ctx context.Context, key string) (string, bool, error) {
	v, ok := f.markers[key]
	return v, ok, nil
}
func (f *fakeStore) SetMarker(ctx context.Context, key, value string) error {
	f.markers[key] = value
	return nil
}

func TestApplyWritesMarkerOnFullSuccess(t *testing.T) {
	store := newFakeStore()
	w := New(store, Config{RetryBackoffMs: 1})

	plan := api.Plan{
		FromVersion: "v1", ToVersion: "v2",
		Ops: []api.Op{{Kind: api.OpUpsertEntity, EntityID: "e1", Entity: &api.Entity{ID: "e1"}}},
	}
	result, err := w.Apply(context.Background(), plan)
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.Empty(t, result.Failures)

	marker, ok := store.markers[ApplyMarkerKey]
	require.True(t, ok)
	require.Contains(t, marker, "v2")
}

func TestApplyRetriesTransientFailureThenSucceeds(t *testing.T) {
	store := newFakeStore()
	store.failEntityOnce["e1"] = true
	w := New(store, Config{RetryBackoffMs: 1, RetryMax: 3})

	plan := api.Plan{
		FromVersion: "v1", ToVersion: "v2",
		Ops: []api.Op{{Kind: api.OpUpsertEntity, EntityID: "e1", Entity: &api.Entity{ID: "e1"}}},
	}
	result, err := w.Apply(context.Background(), plan)
	require.NoError(t, err)
	require.True(t, result.Applied)
	_, exists := store.entities["e1"]
	require.True(t, exists)
}

func TestApplyWithholdsMarkerOnPermanentFailure(t *testing.T) {
	store := newFakeStore()
	store.permanentFail["bad"] = true
	w := New(store, Config{RetryBackoffMs: 1})

	plan := api.Plan{
		FromVersion: "v1", ToVersion: "v2",
		Ops: []api.Op{
			{Kind: api.OpUpsertEntity, EntityID: "bad", Entity: &api.Entity{ID: "bad"}},
			{Kind: api.OpUpsertEntity, EntityID: "good", Entity: &api.Entity{ID: "good"}},
		},
	}
	result, err := w.Apply(context.Background(), plan)
	require.NoError(t, err)
	require.False(t, result.Applied)
	require.Len(t, result.Failures, 1)

	// The good op in the same batch still went through — one op's
	// permanent failure does not abort the rest of the batch.
	_, exists := store.entities["good"]
	require.True(t, exists)

	_, hasMarker := store.markers[ApplyMarkerKey]
	require.False(t, hasMarker)
}

func TestResolveRestartDetectsLaggingMarker(t *testing.T) {
	store := newFakeStore()
	store.markers[ApplyMarkerKey] = `{"version_id":"v1"}`

	applied, lagging, err := ResolveRestart(context.Background(), store, "v2")
	require.NoError(t, err)
	require.True(t, lagging)
	require.Equal(t, "v1", applied)
}

func TestResolveRestartNoMarkerIsLagging(t *testing.T) {
	store := newFakeStore()
	_, lagging, err := ResolveRestart(context.Background(), store, "v1")
	require.NoError(t, err)
	require.True(t, lagging)
}
