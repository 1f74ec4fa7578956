package casstore

import (
	"github.com/Rubentxu/code-context-graph/api"
	"lukechampine.com/blake3"
)

// HashBytes computes the content hash of b. Hash of empty input is
// well-defined (spec.md §3) — blake3.Sum256(nil) is a stable, documented
// value.
func HashBytes(b []byte) api.Hash {
	return api.Hash(blake3.Sum256(b))
}
