// Package version implements the Version Manager (spec.md §4.3): it
// names Merkle roots, links them into parent chains, computes change
// summaries against the parent root, and drives retention/GC.
package version

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/Rubentxu/code-context-graph/api"
	"github.com/Rubentxu/code-context-graph/internal/casstore"
	"github.com/Rubentxu/code-context-graph/internal/merkle"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Retention mirrors the Merkle/Versioning config block (spec.md §6).
type Retention struct {
	RetentionDays     int
	MinVersionsToKeep int
}

// Manager persists version records in a SQLite index next to the CAS,
// the same "small SQLite file as index, bulk data elsewhere" split the
// CAS sidecar uses.
type Manager struct {
	db        *sql.DB
	cas       *casstore.Store
	retention Retention
}

// Open opens (creating if necessary) a version index at dbPath.
func Open(dbPath string, cas *casstore.Store, retention Retention) (*Manager, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("version: open index: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS versions (
			id TEXT PRIMARY KEY,
			root_hash TEXT NOT NULL,
			parent_id TEXT,
			ordinal INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			author TEXT,
			message TEXT,
			added INTEGER NOT NULL,
			modified INTEGER NOT NULL,
			deleted INTEGER NOT NULL,
			unchanged INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS versions_ordinal ON versions(ordinal);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("version: create schema: %w", err)
	}
	return &Manager{db: db, cas: cas, retention: retention}, nil
}

func (m *Manager) Close() error { return m.db.Close() }

// Create names a new version at rootHash, diffing against parent's root
// (or the empty tree if parent is empty) to derive its change summary.
// Reference counts for the new root's objects are already current by
// the time Create runs: Build put every leaf/branch record of the full
// new tree (incrementing on each observation, whether or not the
// record already existed), and the caller's scan put every live file
// body the same way. What Build/scan never account for is the other
// side of the ledger: objects the *parent* root held that rootHash no
// longer does. Create closes that gap itself — by the time the version
// record is persisted, every CAS object the parent exclusively
// referenced has been decremented, so a later GC's mark-and-sweep over
// retained roots can actually reclaim them (spec.md §4.1, §4.3).
func (m *Manager) Create(rootHash api.Hash, parentID, author, message string) (api.Version, error) {
	var parentRoot api.Hash = merkle.EmptyTreeHash
	if parentID != "" {
		parent, err := m.Get(parentID)
		if err != nil {
			return api.Version{}, fmt.Errorf("version: resolve parent %s: %w", parentID, err)
		}
		parentRoot = parent.RootHash
	}

	diff, err := merkle.Diff(m.cas, parentRoot, rootHash)
	if err != nil {
		return api.Version{}, fmt.Errorf("version: diff against parent: %w", err)
	}

	if err := m.decrefSuperseded(parentRoot, rootHash); err != nil {
		return api.Version{}, fmt.Errorf("version: decref superseded objects: %w", err)
	}

	ordinal, err := m.nextOrdinal()
	if err != nil {
		return api.Version{}, err
	}

	v := api.Version{
		ID:        uuid.NewString(),
		RootHash:  rootHash,
		ParentID:  parentID,
		Ordinal:   ordinal,
		Timestamp: time.Now().UTC(),
		Author:    author,
		Message:   message,
		ChangeSummary: api.ChangeSummary{
			Added:     len(diff.Added),
			Modified:  len(diff.Modified),
			Deleted:   len(diff.Deleted),
			Unchanged: int(diff.UnchangedCount),
		},
	}

	_, err = m.db.Exec(`
		INSERT INTO versions (id, root_hash, parent_id, ordinal, ts, author, message, added, modified, deleted, unchanged)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.RootHash.String(), nullableString(v.ParentID), v.Ordinal, v.Timestamp.UnixNano(), v.Author, v.Message,
		v.ChangeSummary.Added, v.ChangeSummary.Modified, v.ChangeSummary.Deleted, v.ChangeSummary.Unchanged)
	if err != nil {
		return api.Version{}, fmt.Errorf("version: persist version record: %w", err)
	}

	return v, nil
}

// decrefSuperseded walks both roots' object graphs and decrements every
// CAS object (tree node or file body) the old root reached one more
// time than the new root does: file bodies that were modified or
// deleted, and the branch/leaf records that pointed at them. Counts,
// not sets, are compared — two files can share one content-addressed
// body (spec.md §7 "identical body bytes at different paths"), so
// losing one of those leaves must decref exactly once, not zero times
// because the hash is "still reachable" via the surviving leaf, and
// not once-per-occurrence either. A root equal to merkle.EmptyTreeHash
// reaches nothing, so the very first version (no parent) correctly
// decrefs nothing.
func (m *Manager) decrefSuperseded(oldRoot, newRoot api.Hash) error {
	if oldRoot == newRoot {
		return nil
	}

	oldNodes, oldContent, err := merkle.Reachable(m.cas, oldRoot)
	if err != nil {
		return fmt.Errorf("walk old root %s: %w", oldRoot, err)
	}
	if len(oldNodes) == 0 && len(oldContent) == 0 {
		return nil
	}

	newNodes, newContent, err := merkle.Reachable(m.cas, newRoot)
	if err != nil {
		return fmt.Errorf("walk new root %s: %w", newRoot, err)
	}

	oldCount := make(map[api.Hash]int, len(oldNodes)+len(oldContent))
	for _, h := range oldNodes {
		oldCount[h]++
	}
	for _, h := range oldContent {
		oldCount[h]++
	}
	newCount := make(map[api.Hash]int, len(newNodes)+len(newContent))
	for _, h := range newNodes {
		newCount[h]++
	}
	for _, h := range newContent {
		newCount[h]++
	}

	for h, oldN := range oldCount {
		for i := 0; i < oldN-newCount[h]; i++ {
			if err := m.cas.DecRef(h); err != nil {
				return fmt.Errorf("decref %s: %w", h, err)
			}
		}
	}
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (m *Manager) nextOrdinal() (uint64, error) {
	var max sql.NullInt64
	if err := m.db.QueryRow(`SELECT MAX(ordinal) FROM versions`).Scan(&max); err != nil {
		return 0, fmt.Errorf("version: read max ordinal: %w", err)
	}
	if !max.Valid {
		return 1, nil
	}
	return uint64(max.Int64) + 1, nil
}

// Get returns the version identified by id.
func (m *Manager) Get(id string) (api.Version, error) {
	row := m.db.QueryRow(`SELECT id, root_hash, parent_id, ordinal, ts, author, message, added, modified, deleted, unchanged FROM versions WHERE id = ?`, id)
	return scanVersion(row)
}

func scanVersion(row *sql.Row) (api.Version, error) {
	var v api.Version
	var rootHashHex string
	var parentID sql.NullString
	var ts int64
	err := row.Scan(&v.ID, &rootHashHex, &parentID, &v.Ordinal, &ts, &v.Author, &v.Message,
		&v.ChangeSummary.Added, &v.ChangeSummary.Modified, &v.ChangeSummary.Deleted, &v.ChangeSummary.Unchanged)
	if err == sql.ErrNoRows {
		return api.Version{}, ErrNotFound
	}
	if err != nil {
		return api.Version{}, fmt.Errorf("version: scan: %w", err)
	}
	h, err := parseHashHex(rootHashHex)
	if err != nil {
		return api.Version{}, err
	}
	v.RootHash = h
	v.ParentID = parentID.String
	v.Timestamp = time.Unix(0, ts).UTC()
	return v, nil
}

// Filter narrows List results.
type Filter struct {
	Author string
	Since  time.Time
	Limit  int
	Offset int
}

// List returns versions matching filter, newest ordinal first.
func (m *Manager) List(filter Filter) ([]api.Version, error) {
	query := `SELECT id, root_hash, parent_id, ordinal, ts, author, message, added, modified, deleted, unchanged FROM versions WHERE 1=1`
	var args []interface{}
	if filter.Author != "" {
		query += ` AND author = ?`
		args = append(args, filter.Author)
	}
	if !filter.Since.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, filter.Since.UnixNano())
	}
	query += ` ORDER BY ordinal DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("version: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []api.Version
	for rows.Next() {
		var v api.Version
		var rootHashHex string
		var parentID sql.NullString
		var ts int64
		if err := rows.Scan(&v.ID, &rootHashHex, &parentID, &v.Ordinal, &ts, &v.Author, &v.Message,
			&v.ChangeSummary.Added, &v.ChangeSummary.Modified, &v.ChangeSummary.Deleted, &v.ChangeSummary.Unchanged); err != nil {
			return nil, fmt.Errorf("version: scan row: %w", err)
		}
		h, err := parseHashHex(rootHashHex)
		if err != nil {
			return nil, err
		}
		v.RootHash = h
		v.ParentID = parentID.String
		v.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, v)
	}
	return out, rows.Err()
}

// retainedSet returns the ids of the versions that survive GC: age within
// RetentionDays, OR among the most recent MinVersionsToKeep by ordinal
// (spec.md §4.3).
func retainedSet(all []api.Version, retention Retention, now time.Time) map[string]bool {
	sorted := make([]api.Version, len(all))
	copy(sorted, all)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ordinal > sorted[j].Ordinal })

	keep := make(map[string]bool, len(sorted))
	for i, v := range sorted {
		if i < retention.MinVersionsToKeep {
			keep[v.ID] = true
			continue
		}
		if retention.RetentionDays > 0 && now.Sub(v.Timestamp) <= time.Duration(retention.RetentionDays)*24*time.Hour {
			keep[v.ID] = true
		}
	}
	return keep
}

// GC runs mark-and-sweep: every CAS object reachable from a retained
// version's root is marked; everything else that has hit refcount zero
// is swept via DeleteIfUnreferenced. Must not run concurrently with
// Create (spec.md §4.3) — callers serialize this externally.
func (m *Manager) GC() (swept int, err error) {
	all, err := m.List(Filter{})
	if err != nil {
		return 0, err
	}
	keep := retainedSet(all, m.retention, time.Now().UTC())

	var reachable []api.Hash
	for _, v := range all {
		if !keep[v.ID] {
			continue
		}
		nodeHashes, contentHashes, err := merkle.Reachable(m.cas, v.RootHash)
		if err != nil {
			return 0, fmt.Errorf("version: walk retained root %s: %w", v.ID, err)
		}
		reachable = append(reachable, nodeHashes...)
		reachable = append(reachable, contentHashes...)
	}
	m.cas.MarkReachable(reachable) // bitmap kept for future incremental sweep strategies

	reachableSet := make(map[api.Hash]bool, len(reachable))
	for _, h := range reachable {
		reachableSet[h] = true
	}

	candidates, err := m.cas.AllHashes()
	if err != nil {
		return 0, err
	}
	for _, h := range candidates {
		if reachableSet[h] {
			continue
		}
		deleted, err := m.cas.DeleteIfUnreferenced(h)
		if err != nil {
			return swept, fmt.Errorf("version: sweep %s: %w", h, err)
		}
		if deleted {
			swept++
		}
	}

	for _, v := range all {
		if keep[v.ID] {
			continue
		}
		if _, err := m.db.Exec(`DELETE FROM versions WHERE id = ?`, v.ID); err != nil {
			return swept, fmt.Errorf("version: delete retired record %s: %w", v.ID, err)
		}
	}

	return swept, nil
}

func parseHashHex(hexStr string) (api.Hash, error) {
	var h api.Hash
	decoded, err := hex.DecodeString(hexStr)
	if err != nil || len(decoded) != len(h) {
		return h, fmt.Errorf("version: malformed hash %q", hexStr)
	}
	copy(h[:], decoded)
	return h, nil
}
