package merkle

import (
	"fmt"
	"sort"

	"github.com/Rubentxu/code-context-graph/api"
)

// EmptyTreeHash is the well-known sentinel hash of the empty tree
// (spec.md §4.2 edge cases). It does not depend on the CAS backend —
// any two CAS instances agree on it without writing anything.
var EmptyTreeHash = hashRecord([]byte{tagEmpty})

// Putter is the subset of the CAS the builder needs.
type Putter interface {
	Put(content []byte) (api.Hash, error)
}

// BuildStats summarizes a completed build.
type BuildStats struct {
	FileCount int64
	TotalSize int64
}

// Build deterministically builds a tree over leaves, writing every
// node record through store, and returns the resulting root hash.
// Leaves are sorted by normalized path before grouping so identical
// file sets always yield the identical tree regardless of input order.
func Build(store Putter, leaves []FileRecord, fanout int) (api.Hash, BuildStats, error) {
	if fanout <= 0 {
		return api.Hash{}, BuildStats{}, fmt.Errorf("merkle: fanout must be positive, got %d", fanout)
	}
	if len(leaves) == 0 {
		return EmptyTreeHash, BuildStats{}, nil
	}

	sorted := make([]FileRecord, len(leaves))
	copy(sorted, leaves)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Path == sorted[i-1].Path {
			return api.Hash{}, BuildStats{}, fmt.Errorf("merkle: duplicate leaf path %q", sorted[i].Path)
		}
	}

	hashes := make([]api.Hash, len(sorted))
	counts := make([]int64, len(sorted))
	sizes := make([]int64, len(sorted))
	for i, leaf := range sorted {
		h, err := store.Put(encodeLeaf(leaf))
		if err != nil {
			return api.Hash{}, BuildStats{}, fmt.Errorf("merkle: put leaf %q: %w", leaf.Path, err)
		}
		hashes[i] = h
		counts[i] = 1
		sizes[i] = leaf.Size
	}

	totalFiles, totalSize := int64(len(sorted)), int64(0)
	for _, s := range sizes {
		totalSize += s
	}

	// Single-file trees: the root wraps the leaf hash directly, no
	// branch wrapping (spec.md §4.2 edge cases).
	for len(hashes) > 1 {
		var nextHashes []api.Hash
		var nextCounts, nextSizes []int64
		for i := 0; i < len(hashes); i += fanout {
			end := i + fanout
			if end > len(hashes) {
				end = len(hashes)
			}
			group := hashes[i:end]
			var fc, ts int64
			for j := i; j < end; j++ {
				fc += counts[j]
				ts += sizes[j]
			}
			rec := branchRecord{Children: append([]api.Hash(nil), group...), FileCount: fc, TotalSize: ts}
			h, err := store.Put(encodeBranch(rec))
			if err != nil {
				return api.Hash{}, BuildStats{}, fmt.Errorf("merkle: put branch: %w", err)
			}
			nextHashes = append(nextHashes, h)
			nextCounts = append(nextCounts, fc)
			nextSizes = append(nextSizes, ts)
		}
		hashes, counts, sizes = nextHashes, nextCounts, nextSizes
	}

	return hashes[0], BuildStats{FileCount: totalFiles, TotalSize: totalSize}, nil
}
