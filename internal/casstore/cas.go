// Package casstore implements the content-addressed object store from
// spec.md §4.1: immutable blobs keyed by content hash, deduplicated on
// write, reference-counted, and deleted only when unreferenced.
//
// Bodies live in a two-level sharded directory tree under StoragePath
// (spec.md §6 Persisted layout); sidecar metadata (size, compression tag,
// refcount, timestamps) lives in a SQLite side database, following the
// same "source of truth is a small SQLite file next to the blobs" shape
// the ingestion engine uses for its node index.
package casstore

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Rubentxu/code-context-graph/api"
	"github.com/RoaringBitmap/roaring"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

// Compression tags (spec.md §3).
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// schemaTag versions the sidecar metadata format. An unknown tag aborts
// startup (spec.md §6).
const schemaTag = 1

// Config controls one CAS instance.
type Config struct {
	StoragePath      string
	Compression      string // CompressionNone or CompressionZstd
	CompressionLevel int
	// MaxBodyBytes, when > 0, causes Put to return ErrQuotaExceeded for
	// any body larger than this.
	MaxBodyBytes int64
	// CompressThreshold is the minimum size (bytes) a body must reach
	// before compression is attempted; smaller bodies are stored raw
	// even when Compression is zstd (compression overhead isn't worth it).
	CompressThreshold int64
}

// BlobMeta is the sidecar metadata record for one stored blob.
type BlobMeta struct {
	Hash         api.Hash
	OriginalSize int64
	StoredSize   int64
	Compression  string
	RefCount     int64
	CreatedAt    time.Time
	LastAccessed time.Time
}

// Store is a CAS backed by a sharded directory tree + SQLite sidecar.
type Store struct {
	cfg Config

	mu sync.Mutex // serializes put/incref/decref per-key via a single DB transaction at a time
	db *sql.DB

	encOnce sync.Once
	enc     *zstd.Encoder
	decOnce sync.Once
	dec     *zstd.Decoder

	// intID/reverse mapping + reachability bitmap, mirroring the
	// teacher's fileToNodes roaring-bitmap index, here used to mark
	// blobs reachable from retained version roots during GC.
	idMu      sync.Mutex
	nextIntID uint32
	hashToInt map[api.Hash]uint32
	intToHash []api.Hash
}

// Open opens (creating if necessary) a CAS rooted at cfg.StoragePath.
func Open(cfg Config) (*Store, error) {
	if cfg.StoragePath == "" {
		return nil, fmt.Errorf("casstore: StoragePath required")
	}
	if cfg.Compression == "" {
		cfg.Compression = CompressionNone
	}
	if cfg.CompressThreshold == 0 {
		cfg.CompressThreshold = 256
	}
	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		return nil, fmt.Errorf("casstore: mkdir storage path: %w", err)
	}

	dbPath := filepath.Join(cfg.StoragePath, "meta.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open meta db: %v", ErrBackendUnavailable, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: wal mode: %v", ErrBackendUnavailable, err)
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		cfg:       cfg,
		db:        db,
		hashToInt: make(map[api.Hash]uint32),
	}, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS meta_info (key TEXT PRIMARY KEY, value INTEGER);
		CREATE TABLE IF NOT EXISTS blobs (
			hash TEXT PRIMARY KEY,
			orig_size INTEGER NOT NULL,
			stored_size INTEGER NOT NULL,
			compression TEXT NOT NULL,
			refcount INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			last_accessed INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("%w: create schema: %v", ErrBackendUnavailable, err)
	}

	row := db.QueryRow(`SELECT value FROM meta_info WHERE key = 'schema_tag'`)
	var existing int
	if err := row.Scan(&existing); err == sql.ErrNoRows {
		if _, err := db.Exec(`INSERT INTO meta_info (key, value) VALUES ('schema_tag', ?)`, schemaTag); err != nil {
			return fmt.Errorf("%w: write schema tag: %v", ErrBackendUnavailable, err)
		}
	} else if err != nil {
		return fmt.Errorf("%w: read schema tag: %v", ErrBackendUnavailable, err)
	} else if existing != schemaTag {
		return fmt.Errorf("casstore: unknown schema tag %d (expected %d)", existing, schemaTag)
	}
	return nil
}

func (s *Store) shardPath(h api.Hash) string {
	hex := h.String()
	return filepath.Join(s.cfg.StoragePath, "objects", hex[0:2], hex[2:4], hex)
}

func (s *Store) encoder() *zstd.Encoder {
	s.encOnce.Do(func() {
		level := zstd.EncoderLevelFromZstd(s.cfg.CompressionLevel)
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
		if err != nil {
			// Fall back to default level; NewWriter only errors on bad options.
			enc, _ = zstd.NewWriter(nil)
		}
		s.enc = enc
	})
	return s.enc
}

func (s *Store) decoder() *zstd.Decoder {
	s.decOnce.Do(func() {
		dec, _ := zstd.NewReader(nil)
		s.dec = dec
	})
	return s.dec
}

// Put stores bytes content-addressed by its hash. If the hash already
// exists, its reference count is incremented and last-accessed touched;
// otherwise the body is (optionally) compressed and written durably
// before Put returns success (spec.md §4.1 "flushed before success").
func (s *Store) Put(content []byte) (api.Hash, error) {
	if s.cfg.MaxBodyBytes > 0 && int64(len(content)) > s.cfg.MaxBodyBytes {
		return api.Hash{}, ErrQuotaExceeded
	}
	h := HashBytes(content)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.Exec(`UPDATE blobs SET refcount = refcount + 1, last_accessed = ? WHERE hash = ?`,
		now.UnixNano(), h.String())
	if err != nil {
		return api.Hash{}, fmt.Errorf("%w: touch existing blob: %v", ErrBackendUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return h, nil
	}

	// New blob: write body, then register metadata. Exactly one stored
	// body per hash — os.Rename into the shard path is atomic, so a
	// concurrent Put of the same hash either finds the file already
	// there (handled by the UPDATE above racing harmlessly) or wins the
	// rename; both produce identical bytes since the hash is the content.
	compression := CompressionNone
	stored := content
	if s.cfg.Compression == CompressionZstd && int64(len(content)) >= s.cfg.CompressThreshold {
		stored = s.encoder().EncodeAll(content, nil)
		compression = CompressionZstd
	}

	path := s.shardPath(h)
	if err := writeAtomic(path, stored); err != nil {
		return api.Hash{}, fmt.Errorf("casstore: write blob %s: %w", h, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO blobs (hash, orig_size, stored_size, compression, refcount, created_at, last_accessed)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET refcount = refcount + 1, last_accessed = excluded.last_accessed
	`, h.String(), len(content), len(stored), compression, now.UnixNano(), now.UnixNano())
	if err != nil {
		return api.Hash{}, fmt.Errorf("%w: insert blob metadata: %v", ErrBackendUnavailable, err)
	}

	s.indexHash(h)
	return h, nil
}

// writeAtomic durably writes data to path: temp file in the same
// directory, fsync, rename into place — adapted from the write-back
// splice pattern so CAS writes are "flushed before success".
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil // already present; identical content since path is content-derived
	}

	tmp, err := os.CreateTemp(dir, ".cas-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

// Get returns the decompressed body for hash, failing with ErrNotFound
// if absent. The stored hash is recomputed and compared to the key;
// mismatch is reported as ErrCorruption (spec.md §4.1 hash-integrity).
func (s *Store) Get(h api.Hash) ([]byte, error) {
	path := s.shardPath(h)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: read blob %s: %v", ErrBackendUnavailable, h, err)
	}

	var compression string
	row := s.db.QueryRow(`SELECT compression FROM blobs WHERE hash = ?`, h.String())
	if err := row.Scan(&compression); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: read blob metadata: %v", ErrBackendUnavailable, err)
	}

	content := raw
	if compression == CompressionZstd {
		content, err = s.decoder().DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress %s: %v", ErrCorruption, h, err)
		}
	}

	if HashBytes(content) != h {
		return nil, ErrCorruption
	}

	go s.touch(h) // best-effort, not required for correctness (spec.md §4.1)
	return content, nil
}

func (s *Store) touch(h api.Hash) {
	_, err := s.db.Exec(`UPDATE blobs SET last_accessed = ? WHERE hash = ?`, time.Now().UTC().UnixNano(), h.String())
	if err != nil {
		log.Printf("casstore: touch %s failed (non-fatal): %v", h, err)
	}
}

// Exists reports whether hash h is stored.
func (s *Store) Exists(h api.Hash) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM blobs WHERE hash = ?`, h.String()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return true, nil
}

// IncRef increments the reference count for an existing blob.
func (s *Store) IncRef(h api.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`UPDATE blobs SET refcount = refcount + 1 WHERE hash = ?`, h.String())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DecRef decrements the reference count. Decrementing below zero is a
// programmer error and fails with InvariantViolation (spec.md §4.1).
func (s *Store) DecRef(h api.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var refcount int64
	err := s.db.QueryRow(`SELECT refcount FROM blobs WHERE hash = ?`, h.String()).Scan(&refcount)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if refcount <= 0 {
		return &InvariantViolation{Msg: fmt.Sprintf("decref %s below zero", h)}
	}
	if _, err := s.db.Exec(`UPDATE blobs SET refcount = refcount - 1 WHERE hash = ?`, h.String()); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// DeleteIfUnreferenced deletes the blob only when its refcount is zero,
// returning whether a deletion occurred.
func (s *Store) DeleteIfUnreferenced(h api.Hash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var refcount int64
	err := s.db.QueryRow(`SELECT refcount FROM blobs WHERE hash = ?`, h.String()).Scan(&refcount)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if refcount != 0 {
		return false, nil
	}

	if _, err := s.db.Exec(`DELETE FROM blobs WHERE hash = ?`, h.String()); err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := os.Remove(s.shardPath(h)); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("%w: remove blob body: %v", ErrBackendUnavailable, err)
	}
	return true, nil
}

// Stat returns the sidecar metadata record for hash h.
func (s *Store) Stat(h api.Hash) (BlobMeta, error) {
	var origSize, storedSize, refcount, createdNs, accessedNs int64
	var compression string
	row := s.db.QueryRow(`SELECT orig_size, stored_size, compression, refcount, created_at, last_accessed FROM blobs WHERE hash = ?`, h.String())
	if err := row.Scan(&origSize, &storedSize, &compression, &refcount, &createdNs, &accessedNs); err != nil {
		if err == sql.ErrNoRows {
			return BlobMeta{}, ErrNotFound
		}
		return BlobMeta{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return BlobMeta{
		Hash:         h,
		OriginalSize: origSize,
		StoredSize:   storedSize,
		Compression:  compression,
		RefCount:     refcount,
		CreatedAt:    time.Unix(0, createdNs).UTC(),
		LastAccessed: time.Unix(0, accessedNs).UTC(),
	}, nil
}

func (s *Store) indexHash(h api.Hash) {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	if _, ok := s.hashToInt[h]; ok {
		return
	}
	id := s.nextIntID
	s.nextIntID++
	s.hashToInt[h] = id
	s.intToHash = append(s.intToHash, h)
}

// MarkReachable builds a roaring bitmap of internal ids for the given
// reachable hashes, for use by a GC mark-and-sweep pass (spec.md §4.3).
func (s *Store) MarkReachable(hashes []api.Hash) *roaring.Bitmap {
	bm := roaring.New()
	s.idMu.Lock()
	defer s.idMu.Unlock()
	for _, h := range hashes {
		id, ok := s.hashToInt[h]
		if !ok {
			continue
		}
		bm.Add(id)
	}
	return bm
}

// AllHashes returns every hash currently tracked by the sidecar index,
// for use as the GC sweep candidate set.
func (s *Store) AllHashes() ([]api.Hash, error) {
	rows, err := s.db.Query(`SELECT hash FROM blobs`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var out []api.Hash
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		h, err := parseHash(hex)
		if err != nil {
			return nil, err
		}
		s.indexHash(h)
		out = append(out, h)
	}
	return out, rows.Err()
}

func parseHash(hex string) (api.Hash, error) {
	var h api.Hash
	if len(hex) != len(h)*2 {
		return h, fmt.Errorf("casstore: malformed hash %q", hex)
	}
	for i := range h {
		v, err := hexByte(hex[i*2], hex[i*2+1])
		if err != nil {
			return h, err
		}
		h[i] = v
	}
	return h, nil
}

func hexByte(hi, lo byte) (byte, error) {
	h, err := hexNibble(hi)
	if err != nil {
		return 0, err
	}
	l, err := hexNibble(lo)
	if err != nil {
		return 0, err
	}
	return h<<4 | l, nil
}

func hexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	default:
		return 0, fmt.Errorf("casstore: invalid hex digit %q", c)
	}
}

// Close releases the sidecar database handle.
func (s *Store) Close() error {
	if s.dec != nil {
		s.dec.Close()
	}
	return s.db.Close()
}

var _ io.Closer = (*Store)(nil)
