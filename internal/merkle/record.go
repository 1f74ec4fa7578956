// Package merkle builds and diffs the project's file Merkle tree
// (spec.md §4.2): leaves are serialized file records, branches are
// ordered groups of child hashes bounded by a fanout, and a root wraps
// the final hash with version metadata. All node bodies are written
// through the content-addressed store, so two trees with identical
// children always hash identically — the property the rest of the
// pipeline leans on for structural sharing and no-op re-indexing.
package merkle

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Rubentxu/code-context-graph/api"
	"golang.org/x/text/unicode/norm"
)

// node tags, stored as the first byte of every record written to the
// CAS so a hash can be dereferenced without external bookkeeping.
const (
	tagLeaf   byte = 'L'
	tagBranch byte = 'B'
	tagEmpty  byte = 'E'
)

// FileRecord is one Merkle leaf: a file's identity as of one scan.
type FileRecord struct {
	Path        string // relative, forward-slash, NFC-normalized
	ContentHash api.Hash
	Size        int64
	ModTime     time.Time
}

// NormalizePath converts a raw relative path to the canonical form
// leaves are keyed by: forward slashes, Unicode NFC.
func NormalizePath(p string) (string, error) {
	clean := bytes.ReplaceAll([]byte(p), []byte{'\\'}, []byte{'/'})
	if !utf8.Valid(clean) {
		return "", fmt.Errorf("merkle: non-UTF8 path %q", p)
	}
	return norm.NFC.String(string(clean)), nil
}

func encodeLeaf(f FileRecord) []byte {
	var buf bytes.Buffer
	buf.WriteByte(tagLeaf)
	writeUvarintString(&buf, f.Path)
	buf.Write(f.ContentHash[:])
	writeUvarint(&buf, uint64(f.Size))
	writeUvarint(&buf, uint64(f.ModTime.UTC().UnixNano()))
	return buf.Bytes()
}

func decodeLeaf(b []byte) (FileRecord, error) {
	if len(b) == 0 || b[0] != tagLeaf {
		return FileRecord{}, fmt.Errorf("merkle: not a leaf record")
	}
	r := bytes.NewReader(b[1:])
	path, err := readUvarintString(r)
	if err != nil {
		return FileRecord{}, fmt.Errorf("merkle: decode leaf path: %w", err)
	}
	var h api.Hash
	if _, err := r.Read(h[:]); err != nil {
		return FileRecord{}, fmt.Errorf("merkle: decode leaf hash: %w", err)
	}
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return FileRecord{}, fmt.Errorf("merkle: decode leaf size: %w", err)
	}
	modNs, err := binary.ReadUvarint(r)
	if err != nil {
		return FileRecord{}, fmt.Errorf("merkle: decode leaf mtime: %w", err)
	}
	return FileRecord{
		Path:        path,
		ContentHash: h,
		Size:        int64(size),
		ModTime:     time.Unix(0, int64(modNs)).UTC(),
	}, nil
}

type branchRecord struct {
	Children  []api.Hash
	FileCount int64
	TotalSize int64
}

func encodeBranch(b branchRecord) []byte {
	var buf bytes.Buffer
	buf.WriteByte(tagBranch)
	writeUvarint(&buf, uint64(len(b.Children)))
	for _, c := range b.Children {
		buf.Write(c[:])
	}
	writeUvarint(&buf, uint64(b.FileCount))
	writeUvarint(&buf, uint64(b.TotalSize))
	return buf.Bytes()
}

func decodeBranch(b []byte) (branchRecord, error) {
	if len(b) == 0 || b[0] != tagBranch {
		return branchRecord{}, fmt.Errorf("merkle: not a branch record")
	}
	r := bytes.NewReader(b[1:])
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return branchRecord{}, fmt.Errorf("merkle: decode branch count: %w", err)
	}
	children := make([]api.Hash, n)
	for i := range children {
		if _, err := r.Read(children[i][:]); err != nil {
			return branchRecord{}, fmt.Errorf("merkle: decode branch child %d: %w", i, err)
		}
	}
	fc, err := binary.ReadUvarint(r)
	if err != nil {
		return branchRecord{}, fmt.Errorf("merkle: decode branch file_count: %w", err)
	}
	ts, err := binary.ReadUvarint(r)
	if err != nil {
		return branchRecord{}, fmt.Errorf("merkle: decode branch total_size: %w", err)
	}
	return branchRecord{Children: children, FileCount: int64(fc), TotalSize: int64(ts)}, nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeUvarintString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readUvarintString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	out := make([]byte, n)
	if _, err := r.Read(out); err != nil {
		return "", err
	}
	return string(out), nil
}
