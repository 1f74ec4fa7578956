package graphwriter

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring"
	_ "modernc.org/sqlite"

	"github.com/Rubentxu/code-context-graph/api"
)

// SQLiteStore is the default reference GraphStoreClient (spec.md §6
// leaves the backing store's query dialect unconstrained; this is the
// one shipped with the pipeline for standalone/local use). Adapted from
// the teacher's ingest.SQLiteWriter: INSERT OR REPLACE for upsert-by-
// identity, a dedicated key/value table for the apply marker.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex

	// tokenIndex maps a bare (unqualified) entity name to the roaring
	// bitmap of internal row ids of the entities upserted under that name,
	// mirroring the teacher's refsvtab reverse-lookup — kept
	// in-process here rather than as a registered SQLite virtual table
	// module, since this store only ever serves one writer at a time and
	// doesn't need SQL-query-time access to the bitmap.
	tokenIndex map[string]*roaring.Bitmap
	idByRow    map[uint32]string
	rowByID    map[string]uint32
	nextRow    uint32
}

// Open creates/opens a SQLite-backed graph store at dbPath.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("graphwriter: open sqlite %s: %w", dbPath, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("graphwriter: set wal mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		language TEXT,
		file_path TEXT NOT NULL,
		start_line INTEGER, start_col INTEGER, end_line INTEGER, end_col INTEGER,
		start_byte INTEGER, end_byte INTEGER,
		metadata JSON,
		body_hash TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);
	CREATE INDEX IF NOT EXISTS idx_entities_file ON entities(file_path);

	CREATE TABLE IF NOT EXISTS edges (
		edge_id TEXT PRIMARY KEY,
		from_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		to_id TEXT NOT NULL,
		site TEXT NOT NULL,
		resolved INTEGER NOT NULL,
		attributes JSON
	);
	CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id);
	CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id);

	CREATE TABLE IF NOT EXISTS markers (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("graphwriter: create schema: %w", err)
	}

	s := &SQLiteStore{
		db:         db,
		tokenIndex: make(map[string]*roaring.Bitmap),
		idByRow:    make(map[uint32]string),
		rowByID:    make(map[string]uint32),
	}
	if err := s.loadTokenIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) loadTokenIndex() error {
	rows, err := s.db.Query("SELECT id, name FROM entities")
	if err != nil {
		return fmt.Errorf("graphwriter: load token index: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return err
		}
		s.indexToken(id, name)
	}
	return rows.Err()
}

func (s *SQLiteStore) indexToken(id, name string) {
	row, ok := s.rowByID[id]
	if !ok {
		row = s.nextRow
		s.nextRow++
		s.rowByID[id] = row
		s.idByRow[row] = id
	}
	bm, ok := s.tokenIndex[name]
	if !ok {
		bm = roaring.New()
		s.tokenIndex[name] = bm
	}
	bm.Add(row)
}

// LookupByName returns every entity id previously upserted under name,
// the in-process equivalent of the teacher's mache_refs virtual table
// reverse query — used by a later cross-file resolution pass to turn an
// extract.Result's unresolved Calls/Extends/Implements edges into
// resolved ones once the target's file has also been indexed.
func (s *SQLiteStore) LookupByName(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	bm, ok := s.tokenIndex[name]
	if !ok {
		return nil
	}
	ids := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		ids = append(ids, s.idByRow[it.Next()])
	}
	return ids
}

// UpsertEntity is a match-or-create on entity id (INSERT OR REPLACE),
// so replaying a plan converges to the same row regardless of how many
// times it runs (spec.md §4.7's idempotence requirement).
func (s *SQLiteStore) UpsertEntity(ctx context.Context, e api.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("graphwriter: marshal entity metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO entities
			(id, kind, name, language, file_path, start_line, start_col, end_line, end_col, start_byte, end_byte, metadata, body_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, string(e.Kind), e.Name, string(e.Language), e.FilePath,
		e.Range.StartLine, e.Range.StartCol, e.Range.EndLine, e.Range.EndCol,
		e.Range.StartByte, e.Range.EndByte, string(meta), e.BodyHash.String(),
	)
	if err != nil {
		return classifyErr(err)
	}
	s.indexToken(e.ID, e.Name)
	return nil
}

// UpsertEdge is a match-or-create on the (from, kind, to, site) edge id.
func (s *SQLiteStore) UpsertEdge(ctx context.Context, r api.Relation) error {
	attrs, err := json.Marshal(r.Attributes)
	if err != nil {
		return fmt.Errorf("graphwriter: marshal edge attributes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO edges (edge_id, from_id, kind, to_id, site, resolved, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.EdgeID(), r.FromID, string(r.Kind), r.ToID, r.Site, boolToInt(r.Resolved), string(attrs))
	return classifyErr(err)
}

// DeleteEntity is a match-and-remove, a no-op if the id is already gone.
func (s *SQLiteStore) DeleteEntity(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM entities WHERE id = ?", id)
	return classifyErr(err)
}

// DeleteEdge is a match-and-remove, a no-op if the edge is already gone.
func (s *SQLiteStore) DeleteEdge(ctx context.Context, edgeID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM edges WHERE edge_id = ?", edgeID)
	return classifyErr(err)
}

// GetMarker reads the apply-marker key/value row.
func (s *SQLiteStore) GetMarker(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM markers WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, classifyErr(err)
	}
	return value, true, nil
}

// SetMarker writes the apply-marker key/value row.
func (s *SQLiteStore) SetMarker(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO markers (key, value) VALUES (?, ?)", key, value)
	return classifyErr(err)
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// classifyErr maps a raw sqlite error to ErrTransient when it looks like
// a lock/busy/connectivity condition the writer should retry, matching
// spec.md §4.7's transient-vs-permanent failure classification.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "locked") || strings.Contains(msg, "busy") || strings.Contains(msg, "i/o error") {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ GraphStoreClient = (*SQLiteStore)(nil)
