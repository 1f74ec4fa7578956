package merkle

import (
	"fmt"

	"github.com/Rubentxu/code-context-graph/api"
)

// Reachable walks every node (leaf and branch records, as stored in the
// CAS by Build) under root and returns both the node hashes themselves
// and the file content hashes their leaves point to. Both sets need to
// survive a GC mark-and-sweep pass: the tree's own structure records and
// the file bodies they reference (spec.md §4.3).
func Reachable(store Getter, root api.Hash) (nodeHashes, contentHashes []api.Hash, err error) {
	if root == EmptyTreeHash {
		return nil, nil, nil
	}
	raw, err := store.Get(root)
	if err != nil {
		return nil, nil, fmt.Errorf("merkle: get node %s: %w", root, err)
	}
	nodeHashes = append(nodeHashes, root)
	switch raw[0] {
	case tagLeaf:
		leaf, err := decodeLeaf(raw)
		if err != nil {
			return nil, nil, err
		}
		contentHashes = append(contentHashes, leaf.ContentHash)
		return nodeHashes, contentHashes, nil
	case tagBranch:
		b, err := decodeBranch(raw)
		if err != nil {
			return nil, nil, err
		}
		for _, child := range b.Children {
			cn, cc, err := Reachable(store, child)
			if err != nil {
				return nil, nil, err
			}
			nodeHashes = append(nodeHashes, cn...)
			contentHashes = append(contentHashes, cc...)
		}
		return nodeHashes, contentHashes, nil
	default:
		return nil, nil, fmt.Errorf("merkle: unknown record tag %x at node %s", raw[0], root)
	}
}
