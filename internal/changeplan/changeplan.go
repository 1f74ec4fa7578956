// Package changeplan computes the ordered, minimal graph mutation Plan
// from a Merkle diff plus the entity/edge sets extracted on either side
// of it (spec.md §4.6). It never talks to CAS or the graph store itself
// — callers hand it FileExtraction snapshots already resolved from
// wherever they are recorded (mirroring the teacher's
// bufferingTarget/ReplaceFileNodes pattern: buffer the new file's nodes,
// then atomically swap them in against whatever the old file recorded).
package changeplan

import (
	"sort"

	"github.com/Rubentxu/code-context-graph/api"
	"github.com/Rubentxu/code-context-graph/internal/extract"
	"github.com/Rubentxu/code-context-graph/internal/merkle"
)

// FileExtraction is one file's previously-extracted entity/edge set,
// keyed for lookup by file path.
type FileExtraction struct {
	Path      string
	Entities  []api.Entity
	Relations []api.Relation
}

// Build computes the ordered Plan transitioning fromVersion to
// toVersion. diff is the Merkle diff between their roots. oldByPath
// holds the entity/edge sets recorded for files touched by the diff as
// of fromVersion; newByPath holds freshly extracted sets for the same
// files as of toVersion (added files have no oldByPath entry; deleted
// files have no newByPath entry).
func Build(fromVersion, toVersion string, diff merkle.DiffResult, oldByPath, newByPath map[string]FileExtraction) api.Plan {
	var (
		deletedEdges    = map[string]api.Relation{}
		deletedEntities = map[string]api.Entity{}
		upsertEntities  = map[string]api.Entity{}
		upsertEdges     = map[string]api.Relation{}
	)

	for _, entry := range diff.Deleted {
		old := oldByPath[entry.Path]
		for _, e := range old.Relations {
			deletedEdges[e.EdgeID()] = e
		}
		for _, e := range old.Entities {
			deletedEntities[e.ID] = e
		}
	}

	changedPaths := make([]string, 0, len(diff.Added)+len(diff.Modified))
	for _, entry := range diff.Added {
		changedPaths = append(changedPaths, entry.Path)
	}
	for _, entry := range diff.Modified {
		changedPaths = append(changedPaths, entry.Path)
	}

	for _, path := range changedPaths {
		old := oldByPath[path]
		neu := newByPath[path]

		oldEntities := indexEntities(old.Entities)
		for id, oe := range oldEntities {
			if ne, ok := indexEntitiesByID(neu.Entities)[id]; !ok || ne.BodyHash != oe.BodyHash || !sameRange(ne.Range, oe.Range) {
				deletedEntities[id] = oe
			}
		}
		for _, ne := range neu.Entities {
			oe, existed := oldEntities[ne.ID]
			if !existed || oe.BodyHash != ne.BodyHash || !sameRange(oe.Range, ne.Range) {
				upsertEntities[ne.ID] = ne
			}
		}

		oldEdges := indexRelations(old.Relations)
		for id, oe := range oldEdges {
			if ne, ok := indexRelations(neu.Relations)[id]; !ok || !sameEdge(ne, oe) {
				deletedEdges[id] = oe
			}
		}
		for _, ne := range neu.Relations {
			id := ne.EdgeID()
			oe, existed := oldEdges[id]
			if !existed || !sameEdge(oe, ne) {
				upsertEdges[id] = ne
			}
		}
	}

	// An entity slated for deletion and also for upsert (changed, not
	// removed) should only upsert — drop it from the delete set.
	for id := range upsertEntities {
		delete(deletedEntities, id)
	}
	for id := range upsertEdges {
		delete(deletedEdges, id)
	}

	plan := api.Plan{FromVersion: fromVersion, ToVersion: toVersion}
	plan.Ops = append(plan.Ops, sortedEdgeDeletes(deletedEdges)...)
	plan.Ops = append(plan.Ops, sortedEntityDeletes(deletedEntities)...)
	plan.Ops = append(plan.Ops, sortedEntityUpserts(upsertEntities)...)
	plan.Ops = append(plan.Ops, sortedEdgeUpserts(upsertEdges)...)
	return plan
}

// FromExtraction adapts an extract.Result (a single file's fresh
// extraction) into the FileExtraction shape Build expects.
func FromExtraction(path string, res extract.Result) FileExtraction {
	return FileExtraction{Path: path, Entities: res.Entities, Relations: res.Relations}
}

func indexEntities(entities []api.Entity) map[string]api.Entity {
	out := make(map[string]api.Entity, len(entities))
	for _, e := range entities {
		out[e.ID] = e
	}
	return out
}

func indexEntitiesByID(entities []api.Entity) map[string]api.Entity { return indexEntities(entities) }

func indexRelations(relations []api.Relation) map[string]api.Relation {
	out := make(map[string]api.Relation, len(relations))
	for _, r := range relations {
		out[r.EdgeID()] = r
	}
	return out
}

func sameRange(a, b api.LineRange) bool { return a == b }

func sameEdge(a, b api.Relation) bool {
	if a.Resolved != b.Resolved {
		return false
	}
	if len(a.Attributes) != len(b.Attributes) {
		return false
	}
	for k, v := range a.Attributes {
		if b.Attributes[k] != v {
			return false
		}
	}
	return true
}

func sortedEdgeDeletes(m map[string]api.Relation) []api.Op {
	ids := sortedKeys(m)
	ops := make([]api.Op, 0, len(ids))
	for _, id := range ids {
		ops = append(ops, api.Op{Kind: api.OpDeleteEdge, EdgeID: id})
	}
	return ops
}

func sortedEntityDeletes(m map[string]api.Entity) []api.Op {
	ids := sortedKeys(m)
	ops := make([]api.Op, 0, len(ids))
	for _, id := range ids {
		ops = append(ops, api.Op{Kind: api.OpDeleteEntity, EntityID: id})
	}
	return ops
}

func sortedEntityUpserts(m map[string]api.Entity) []api.Op {
	ids := sortedKeys(m)
	ops := make([]api.Op, 0, len(ids))
	for _, id := range ids {
		e := m[id]
		ops = append(ops, api.Op{Kind: api.OpUpsertEntity, EntityID: id, Entity: &e})
	}
	return ops
}

func sortedEdgeUpserts(m map[string]api.Relation) []api.Op {
	ids := sortedKeys(m)
	ops := make([]api.Op, 0, len(ids))
	for _, id := range ids {
		r := m[id]
		ops = append(ops, api.Op{Kind: api.OpUpsertEdge, EdgeID: id, Edge: &r})
	}
	return ops
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
