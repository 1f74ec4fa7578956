package merkle

import (
	"github.com/Rubentxu/code-context-graph/api"
	"lukechampine.com/blake3"
)

// hashRecord computes the same content hash a CAS Put would assign to
// record, without requiring a store round-trip. Used for the empty-tree
// sentinel, which every CAS agrees on without ever writing it.
func hashRecord(record []byte) api.Hash {
	return api.Hash(blake3.Sum256(record))
}
