package casstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Rubentxu/code-context-graph/api"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(Config{
		StoragePath:      filepath.Join(dir, "cas"),
		Compression:      CompressionZstd,
		CompressionLevel: 3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	body := []byte("package main\n\nfunc main() {}\n")
	h, err := s.Put(body)
	require.NoError(t, err)

	got, err := s.Get(h)
	require.NoError(t, err)
	require.Equal(t, body, got)
	require.Equal(t, HashBytes(body), h)
}

func TestPutIsDeduplicated(t *testing.T) {
	s := newTestStore(t)

	body := []byte("duplicate content")
	h1, err := s.Put(body)
	require.NoError(t, err)
	h2, err := s.Put(body)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	meta, err := s.Stat(h1)
	require.NoError(t, err)
	require.Equal(t, int64(2), meta.RefCount)
}

func TestEmptyBody(t *testing.T) {
	s := newTestStore(t)

	h, err := s.Put(nil)
	require.NoError(t, err)

	got, err := s.Get(h)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)

	var h [32]byte
	h[0] = 0xff
	_, err := s.Get(h)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCompressedBodiesRoundTripAboveThreshold(t *testing.T) {
	s := newTestStore(t)
	s.cfg.CompressThreshold = 4 // force compression for this test

	body := make([]byte, 4096)
	for i := range body {
		body[i] = byte(i % 7)
	}
	h, err := s.Put(body)
	require.NoError(t, err)

	meta, err := s.Stat(h)
	require.NoError(t, err)
	require.Equal(t, CompressionZstd, meta.Compression)
	require.Less(t, meta.StoredSize, meta.OriginalSize)

	got, err := s.Get(h)
	require.NoError(t, err)
	require.Equal(t, body, got)
}

func TestIncRefDecRefAndDeleteIfUnreferenced(t *testing.T) {
	s := newTestStore(t)

	h, err := s.Put([]byte("ref counted"))
	require.NoError(t, err)

	require.NoError(t, s.IncRef(h))
	meta, err := s.Stat(h)
	require.NoError(t, err)
	require.Equal(t, int64(2), meta.RefCount)

	deleted, err := s.DeleteIfUnreferenced(h)
	require.NoError(t, err)
	require.False(t, deleted, "blob still referenced, must not be deleted")

	require.NoError(t, s.DecRef(h))
	require.NoError(t, s.DecRef(h))

	deleted, err = s.DeleteIfUnreferenced(h)
	require.NoError(t, err)
	require.True(t, deleted)

	_, err = s.Get(h)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDecRefBelowZeroIsInvariantViolation(t *testing.T) {
	s := newTestStore(t)

	h, err := s.Put([]byte("single ref"))
	require.NoError(t, err)
	require.NoError(t, s.DecRef(h))

	err = s.DecRef(h)
	var iv *InvariantViolation
	require.ErrorAs(t, err, &iv)
}

func TestCorruptedBlobDetected(t *testing.T) {
	s := newTestStore(t)

	body := []byte("will be corrupted on disk")
	h, err := s.Put(body)
	require.NoError(t, err)

	path := s.shardPath(h)
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o644))

	_, err = s.Get(h)
	require.ErrorIs(t, err, ErrCorruption)
}

func TestPutRejectsOversizeBody(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Config{
		StoragePath:  filepath.Join(dir, "cas"),
		MaxBodyBytes: 8,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.Put([]byte("way too long for the quota"))
	require.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestMarkReachableBitmapTracksIndexedHashes(t *testing.T) {
	s := newTestStore(t)

	h1, err := s.Put([]byte("one"))
	require.NoError(t, err)
	h2, err := s.Put([]byte("two"))
	require.NoError(t, err)
	_, err = s.Put([]byte("three")) // unreferenced by the mark set below
	require.NoError(t, err)

	bm := s.MarkReachable([]api.Hash{h1, h2})
	require.EqualValues(t, 2, bm.GetCardinality())
}
