package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// InsertRaw stores one episodic observation. Rows are integer-keyed since
// the public surface only needs project-local ids.
func (s *Store) InsertRaw(content, kind, sessionID string) (int64, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, &ValidationError{Msg: "content must not be empty"}
	}
	if !ValidKind(kind) {
		return 0, &ValidationError{Msg: fmt.Sprintf("unknown kind %q", kind)}
	}

	res, err := s.raw.Exec(`
		INSERT INTO raw_memories (content, kind, session_id)
		VALUES (?, ?, ?)
	`, content, kind, sessionID)
	if err != nil {
		return 0, fmt.Errorf("insert raw memory: %w", err)
	}

	return res.LastInsertId()
}

// MarkConsolidated idempotently flips consolidated=1 for the given ids;
// ids that don't exist are ignored.
func (s *Store) MarkConsolidated(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.BeginRawTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.MarkConsolidated(ids); err != nil {
		return err
	}
	return tx.Commit()
}

// RawTx groups a pass's mutations of raw.db into one transaction.
type RawTx struct {
	tx *sql.Tx
}

// BeginRawTx opens a transaction on the raw store. The caller must Commit or
// Rollback it.
func (s *Store) BeginRawTx() (*RawTx, error) {
	tx, err := s.raw.Begin()
	if err != nil {
		return nil, asLockContention("raw.db", err)
	}
	return &RawTx{tx: tx}, nil
}

// MarkConsolidated behaves like Store.MarkConsolidated inside the
// transaction.
func (t *RawTx) MarkConsolidated(ids []int64) error {
	stmt, err := t.tx.Prepare(`UPDATE raw_memories SET consolidated = 1 WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare mark_consolidated: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			return fmt.Errorf("mark raw id %d consolidated: %w", id, err)
		}
	}
	return nil
}

func (t *RawTx) Commit() error {
	return asLockContention("raw.db", t.tx.Commit())
}

func (t *RawTx) Rollback() error {
	return t.tx.Rollback()
}

// UnconsolidatedBacklog returns the oldest-first unconsolidated rows, up to
// limit.
func (s *Store) UnconsolidatedBacklog(limit int) ([]RawMemory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.raw.Query(`
		SELECT id, content, kind, created_at, consolidated, session_id, access_count
		FROM raw_memories
		WHERE consolidated = 0
		ORDER BY created_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unconsolidated backlog: %w", err)
	}
	defer rows.Close()

	return scanRawMemories(rows)
}

// UnconsolidatedCount counts raw rows with consolidated = 0.
func (s *Store) UnconsolidatedCount() (int, error) {
	var count int
	err := s.raw.QueryRow(`SELECT COUNT(*) FROM raw_memories WHERE consolidated = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unconsolidated: %w", err)
	}
	return count, nil
}

// RawCount is the total row count in raw.db.
func (s *Store) RawCount() (int, error) {
	var count int
	err := s.raw.QueryRow(`SELECT COUNT(*) FROM raw_memories`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count raw: %w", err)
	}
	return count, nil
}

// RecentRaw returns raw rows created since the given instant, newest first,
// used by the recent-raw leg of recall.
func (s *Store) RecentRaw(since time.Time, limit int) ([]RawMemory, error) {
	rows, err := s.raw.Query(`
		SELECT id, content, kind, created_at, consolidated, session_id, access_count
		FROM raw_memories
		WHERE created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent raw: %w", err)
	}
	defer rows.Close()

	return scanRawMemories(rows)
}

// RawSearchResult pairs a raw row with its raw FTS5 bm25() score.
type RawSearchResult struct {
	Memory RawMemory
	BM25   float64
}

// SearchRawFTS runs the FTS5 MATCH query against raw_fts, restricted to rows
// created since the given instant, returning raw bm25() scores for retrieval
// to remap.
func (s *Store) SearchRawFTS(ftsQuery string, since time.Time, limit int) ([]RawSearchResult, error) {
	if limit <= 0 {
		limit = 15
	}
	rows, err := s.raw.Query(`
		SELECT m.id, m.content, m.kind, m.created_at, m.consolidated, m.session_id, m.access_count,
		       bm25(raw_fts) as score
		FROM raw_fts fts
		JOIN raw_memories m ON m.id = fts.id
		WHERE raw_fts MATCH ? AND m.created_at >= ?
		ORDER BY score
		LIMIT ?
	`, ftsQuery, since, limit)
	if err != nil {
		return nil, fmt.Errorf("search raw fts: %w", err)
	}
	defer rows.Close()

	var out []RawSearchResult
	for rows.Next() {
		var m RawMemory
		var kind string
		var score float64
		if err := rows.Scan(&m.ID, &m.Content, &kind, &m.CreatedAt, &m.Consolidated, &m.SessionID, &m.AccessCount, &score); err != nil {
			return nil, fmt.Errorf("scan raw search result: %w", err)
		}
		m.Kind = Kind(kind)
		out = append(out, RawSearchResult{Memory: m, BM25: score})
	}
	return out, rows.Err()
}

// BumpRawAccessCount increments access_count for the given raw ids. Called
// best-effort on retrieval hits; counts may lag under contention.
func (s *Store) BumpRawAccessCount(ids []int64) {
	for _, id := range ids {
		s.raw.Exec(`UPDATE raw_memories SET access_count = access_count + 1 WHERE id = ?`, id)
	}
}

// CollapseExactDuplicateRaw implements micro pass step 1: within the
// unconsolidated set, rows sharing (kind, content) are collapsed to the
// oldest, summing access_count from the duplicates. Returns the number of
// rows removed.
func (s *Store) CollapseExactDuplicateRaw() (int, error) {
	tx, err := s.raw.Begin()
	if err != nil {
		return 0, asLockContention("raw.db", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT kind, content, MIN(id) as survivor, COUNT(*) as n, SUM(access_count) as total_access
		FROM raw_memories
		WHERE consolidated = 0
		GROUP BY kind, content
		HAVING COUNT(*) > 1
	`)
	if err != nil {
		return 0, fmt.Errorf("find duplicate groups: %w", err)
	}

	type group struct {
		kind, content  string
		survivor       int64
		n, totalAccess int
	}
	var groups []group
	for rows.Next() {
		var g group
		if err := rows.Scan(&g.kind, &g.content, &g.survivor, &g.n, &g.totalAccess); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan duplicate group: %w", err)
		}
		groups = append(groups, g)
	}
	rows.Close()

	removed := 0
	for _, g := range groups {
		if _, err := tx.Exec(`UPDATE raw_memories SET access_count = ? WHERE id = ?`, g.totalAccess, g.survivor); err != nil {
			return 0, fmt.Errorf("update survivor access_count: %w", err)
		}
		res, err := tx.Exec(`
			DELETE FROM raw_memories
			WHERE kind = ? AND content = ? AND consolidated = 0 AND id != ?
		`, g.kind, g.content, g.survivor)
		if err != nil {
			return 0, fmt.Errorf("delete duplicates: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += int(n)
	}

	return removed, asLockContention("raw.db", tx.Commit())
}

// DeleteStaleUnconsolidated implements micro pass step 3: unconsolidated rows
// older than horizon with access_count == 0 are deleted. Returns count removed.
func (s *Store) DeleteStaleUnconsolidated(horizon time.Duration) (int, error) {
	cutoff := time.Now().Add(-horizon)
	res, err := s.raw.Exec(`
		DELETE FROM raw_memories
		WHERE consolidated = 0 AND access_count = 0 AND created_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale unconsolidated: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// MarkConsolidatedByExistingContent implements micro pass step 4: raw rows
// that exactly match an existing consolidated row (case-insensitive) are
// marked consolidated without creating a new entry.
func (s *Store) MarkConsolidatedByExistingContent(existingContents map[string]bool) (int, error) {
	if len(existingContents) == 0 {
		return 0, nil
	}

	rows, err := s.raw.Query(`SELECT id, content FROM raw_memories WHERE consolidated = 0`)
	if err != nil {
		return 0, fmt.Errorf("scan unconsolidated for content match: %w", err)
	}

	var matchIDs []int64
	for rows.Next() {
		var id int64
		var content string
		if err := rows.Scan(&id, &content); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan raw row: %w", err)
		}
		if existingContents[strings.ToLower(content)] {
			matchIDs = append(matchIDs, id)
		}
	}
	rows.Close()

	if len(matchIDs) == 0 {
		return 0, nil
	}

	if err := s.MarkConsolidated(matchIDs); err != nil {
		return 0, err
	}
	return len(matchIDs), nil
}

func scanRawMemories(rows *sql.Rows) ([]RawMemory, error) {
	var out []RawMemory
	for rows.Next() {
		var m RawMemory
		var kind string
		if err := rows.Scan(&m.ID, &m.Content, &kind, &m.CreatedAt, &m.Consolidated, &m.SessionID, &m.AccessCount); err != nil {
			return nil, fmt.Errorf("scan raw memory: %w", err)
		}
		m.Kind = Kind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}
