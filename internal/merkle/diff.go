package merkle

import (
	"fmt"

	"github.com/Rubentxu/code-context-graph/api"
)

// Getter is the subset of the CAS the differ needs.
type Getter interface {
	Get(hash api.Hash) ([]byte, error)
}

// DiffEntry describes one changed file.
type DiffEntry struct {
	Path    string
	OldHash api.Hash
	NewHash api.Hash
	Size    int64
}

// DiffResult classifies every file between two roots (spec.md §4.2).
type DiffResult struct {
	Added          []DiffEntry
	Modified       []DiffEntry
	Deleted        []DiffEntry
	UnchangedCount int64
}

// Diff computes the file-level difference between two roots. Identical
// roots short-circuit without touching the store beyond a single
// lookup, which is what makes re-indexing an unchanged tree free at
// this layer (spec.md §4.6's minimality rule depends on this).
//
// Groupings are positional (ordered, not path-keyed), so a changed leaf
// count shifts sibling groupings for everything after it; recursing on
// subtree-hash equality alone would therefore misclassify unrelated
// trailing files as modified whenever the file count changes. Diff
// instead flattens each side to its full sorted leaf list, descending
// into every subtree, and merges the two sorted lists by path. Only
// equal roots are short-circuited.
func Diff(store Getter, oldRoot, newRoot api.Hash) (DiffResult, error) {
	if oldRoot == newRoot {
		count, err := leafCount(store, newRoot)
		if err != nil {
			return DiffResult{}, err
		}
		return DiffResult{UnchangedCount: count}, nil
	}

	oldLeaves, err := flatten(store, oldRoot)
	if err != nil {
		return DiffResult{}, fmt.Errorf("merkle: flatten old root: %w", err)
	}
	newLeaves, err := flatten(store, newRoot)
	if err != nil {
		return DiffResult{}, fmt.Errorf("merkle: flatten new root: %w", err)
	}

	var result DiffResult
	i, j := 0, 0
	for i < len(oldLeaves) && j < len(newLeaves) {
		o, n := oldLeaves[i], newLeaves[j]
		switch {
		case o.Path == n.Path:
			if o.ContentHash == n.ContentHash {
				result.UnchangedCount++
			} else {
				result.Modified = append(result.Modified, DiffEntry{Path: n.Path, OldHash: o.ContentHash, NewHash: n.ContentHash, Size: n.Size})
			}
			i++
			j++
		case o.Path < n.Path:
			result.Deleted = append(result.Deleted, DiffEntry{Path: o.Path, OldHash: o.ContentHash, Size: o.Size})
			i++
		default:
			result.Added = append(result.Added, DiffEntry{Path: n.Path, NewHash: n.ContentHash, Size: n.Size})
			j++
		}
	}
	for ; i < len(oldLeaves); i++ {
		result.Deleted = append(result.Deleted, DiffEntry{Path: oldLeaves[i].Path, OldHash: oldLeaves[i].ContentHash, Size: oldLeaves[i].Size})
	}
	for ; j < len(newLeaves); j++ {
		result.Added = append(result.Added, DiffEntry{Path: newLeaves[j].Path, NewHash: newLeaves[j].ContentHash, Size: newLeaves[j].Size})
	}

	return result, nil
}

// leafCount reports a root's file count using only its own record —
// branch counters or the leaf/empty special cases — without descending.
func leafCount(store Getter, root api.Hash) (int64, error) {
	if root == EmptyTreeHash {
		return 0, nil
	}
	raw, err := store.Get(root)
	if err != nil {
		return 0, fmt.Errorf("merkle: get root %s: %w", root, err)
	}
	switch raw[0] {
	case tagLeaf:
		return 1, nil
	case tagBranch:
		b, err := decodeBranch(raw)
		if err != nil {
			return 0, err
		}
		return b.FileCount, nil
	default:
		return 0, fmt.Errorf("merkle: unknown record tag %x at root %s", raw[0], root)
	}
}

// flatten returns every leaf reachable from hash, in path order,
// descending only into subtrees (there's only one shape per side here,
// so every node is visited exactly once per side of a Diff call).
func flatten(store Getter, hash api.Hash) ([]FileRecord, error) {
	if hash == EmptyTreeHash {
		return nil, nil
	}
	raw, err := store.Get(hash)
	if err != nil {
		return nil, fmt.Errorf("merkle: get node %s: %w", hash, err)
	}
	switch raw[0] {
	case tagLeaf:
		leaf, err := decodeLeaf(raw)
		if err != nil {
			return nil, err
		}
		return []FileRecord{leaf}, nil
	case tagBranch:
		b, err := decodeBranch(raw)
		if err != nil {
			return nil, err
		}
		out := make([]FileRecord, 0, b.FileCount)
		for _, child := range b.Children {
			leaves, err := flatten(store, child)
			if err != nil {
				return nil, err
			}
			out = append(out, leaves...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("merkle: unknown record tag %x at node %s", raw[0], hash)
	}
}
