package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// maxDreamCrossLinks bounds cross-linking references a dream pass may add
// to a single consolidated row's source_ids beyond its primary cluster, so
// a pathological dream loop can't grow the reference list unboundedly.
const maxDreamCrossLinks = 3

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx, so row
// operations can run either self-committed or inside a caller-owned
// transaction.
type dbtx interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

// InsertConsolidated inserts or merges a long-term entry into the project
// consolidated store. Dedup is by exact (kind, content) match, enforced by
// the unique index in schema.go; on conflict the existing row's source_ids
// are extended and its id is returned.
func (s *Store) InsertConsolidated(content, kind string, confidence float64, sourceIDs []int64) (int64, error) {
	return insertConsolidatedInto(s.consolidated, content, kind, confidence, sourceIDs)
}

func insertConsolidatedInto(db *sql.DB, content, kind string, confidence float64, sourceIDs []int64) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, asLockContention("consolidated.db", err)
	}
	defer tx.Rollback()

	id, err := insertConsolidatedTx(tx, content, kind, confidence, sourceIDs)
	if err != nil {
		return 0, err
	}
	return id, asLockContention("consolidated.db", tx.Commit())
}

func insertConsolidatedTx(q dbtx, content, kind string, confidence float64, sourceIDs []int64) (int64, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, &ValidationError{Msg: "content must not be empty"}
	}
	if !ValidKind(kind) {
		return 0, &ValidationError{Msg: fmt.Sprintf("unknown kind %q", kind)}
	}
	confidence = clampConfidence(confidence)

	var existingID int64
	var existingSourceJSON string
	err := q.QueryRow(`
		SELECT id, source_ids FROM consolidated_memories WHERE kind = ? AND content = ?
	`, kind, content).Scan(&existingID, &existingSourceJSON)

	switch {
	case err == sql.ErrNoRows:
		sourceJSON, merr := json.Marshal(sourceIDs)
		if merr != nil {
			return 0, fmt.Errorf("marshal source_ids: %w", merr)
		}
		res, ierr := q.Exec(`
			INSERT INTO consolidated_memories (content, kind, confidence, source_ids)
			VALUES (?, ?, ?, ?)
		`, content, kind, confidence, string(sourceJSON))
		if ierr != nil {
			return 0, fmt.Errorf("insert consolidated: %w", ierr)
		}
		return res.LastInsertId()

	case err != nil:
		return 0, fmt.Errorf("check existing consolidated row: %w", err)

	default:
		var existing []int64
		json.Unmarshal([]byte(existingSourceJSON), &existing)
		merged := mergeIDs(existing, sourceIDs)
		mergedJSON, merr := json.Marshal(merged)
		if merr != nil {
			return 0, fmt.Errorf("marshal merged source_ids: %w", merr)
		}
		if _, uerr := q.Exec(`
			UPDATE consolidated_memories SET source_ids = ?, updated_at = strftime('%Y-%m-%d %H:%M:%f','now') WHERE id = ?
		`, string(mergedJSON), existingID); uerr != nil {
			return 0, fmt.Errorf("merge source_ids: %w", uerr)
		}
		return existingID, nil
	}
}

// UpdateConsolidated applies a partial update (content, confidence, and/or
// kind); updated_at is always bumped to now.
func (s *Store) UpdateConsolidated(id int64, upd ConsolidatedUpdate) error {
	return updateConsolidatedIn(s.consolidated, id, upd)
}

func updateConsolidatedIn(db dbtx, id int64, upd ConsolidatedUpdate) error {
	var sets []string
	var args []interface{}

	if upd.Content != nil {
		content := strings.TrimSpace(*upd.Content)
		if content == "" {
			return &ValidationError{Msg: "content must not be empty"}
		}
		sets = append(sets, "content = ?")
		args = append(args, content)
	}
	if upd.Confidence != nil {
		sets = append(sets, "confidence = ?")
		args = append(args, clampConfidence(*upd.Confidence))
	}
	if upd.Kind != nil {
		if !ValidKind(string(*upd.Kind)) {
			return &ValidationError{Msg: fmt.Sprintf("unknown kind %q", *upd.Kind)}
		}
		sets = append(sets, "kind = ?")
		args = append(args, string(*upd.Kind))
	}

	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = strftime('%Y-%m-%d %H:%M:%f','now')")

	query := fmt.Sprintf("UPDATE consolidated_memories SET %s WHERE id = ?", strings.Join(sets, ", "))
	args = append(args, id)

	res, err := db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("update consolidated %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ValidationError{Msg: fmt.Sprintf("consolidated id %d not found", id)}
	}
	return nil
}

// DeleteConsolidated removes the base row; its FTS shadow is removed by the
// AFTER DELETE trigger in schema.go.
func (s *Store) DeleteConsolidated(id int64) error {
	return deleteConsolidatedFrom(s.consolidated, id)
}

func deleteConsolidatedFrom(db dbtx, id int64) error {
	_, err := db.Exec(`DELETE FROM consolidated_memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete consolidated %d: %w", id, err)
	}
	return nil
}

// ConsolidatedTx groups a pass's mutations of consolidated.db into one
// transaction, so a failed plan application rolls back as a unit instead of
// leaving the rows committed so far behind.
type ConsolidatedTx struct {
	tx *sql.Tx
}

// BeginConsolidatedTx opens a transaction on the project consolidated store.
// The caller must Commit or Rollback it.
func (s *Store) BeginConsolidatedTx() (*ConsolidatedTx, error) {
	tx, err := s.consolidated.Begin()
	if err != nil {
		return nil, asLockContention("consolidated.db", err)
	}
	return &ConsolidatedTx{tx: tx}, nil
}

// Insert behaves like Store.InsertConsolidated inside the transaction.
func (t *ConsolidatedTx) Insert(content, kind string, confidence float64, sourceIDs []int64) (int64, error) {
	return insertConsolidatedTx(t.tx, content, kind, confidence, sourceIDs)
}

// Update behaves like Store.UpdateConsolidated inside the transaction.
func (t *ConsolidatedTx) Update(id int64, upd ConsolidatedUpdate) error {
	return updateConsolidatedIn(t.tx, id, upd)
}

// Delete behaves like Store.DeleteConsolidated inside the transaction.
func (t *ConsolidatedTx) Delete(id int64) error {
	return deleteConsolidatedFrom(t.tx, id)
}

func (t *ConsolidatedTx) Commit() error {
	return asLockContention("consolidated.db", t.tx.Commit())
}

func (t *ConsolidatedTx) Rollback() error {
	return t.tx.Rollback()
}

// Decay deletes consolidated rows with confidence below threshold, in a
// single bounded batch. Returns count removed.
func (s *Store) Decay(threshold float64) (int, error) {
	return decayIn(s.consolidated, threshold)
}

func decayIn(db *sql.DB, threshold float64) (int, error) {
	const batchCap = 500
	res, err := db.Exec(`
		DELETE FROM consolidated_memories
		WHERE id IN (
			SELECT id FROM consolidated_memories WHERE confidence < ? LIMIT ?
		)
	`, threshold, batchCap)
	if err != nil {
		return 0, fmt.Errorf("decay consolidated rows: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ListConsolidatedByRecency implements recency-mode retrieval: order by
// updated_at DESC, limit N.
func (s *Store) ListConsolidatedByRecency(limit int) ([]ConsolidatedMemory, error) {
	return listConsolidatedByRecencyFrom(s.consolidated, limit)
}

func listConsolidatedByRecencyFrom(db *sql.DB, limit int) ([]ConsolidatedMemory, error) {
	if limit <= 0 {
		limit = 15
	}
	rows, err := db.Query(`
		SELECT id, content, kind, confidence, created_at, updated_at, source_ids, access_count
		FROM consolidated_memories
		ORDER BY updated_at DESC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list consolidated by recency: %w", err)
	}
	defer rows.Close()
	return scanConsolidatedMemories(rows)
}

// SearchResult pairs a consolidated row with its raw FTS5 bm25() score.
type SearchResult struct {
	Memory ConsolidatedMemory
	BM25   float64
}

// SearchConsolidatedFTS runs the FTS5 MATCH query against consolidated_fts
// and joins back to the base table, returning the raw bm25() score for
// retrieval to remap.
func (s *Store) SearchConsolidatedFTS(ftsQuery string, limit int) ([]SearchResult, error) {
	return searchConsolidatedFTSIn(s.consolidated, ftsQuery, limit)
}

func searchConsolidatedFTSIn(db *sql.DB, ftsQuery string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 15
	}
	rows, err := db.Query(`
		SELECT m.id, m.content, m.kind, m.confidence, m.created_at, m.updated_at, m.source_ids, m.access_count,
		       bm25(consolidated_fts) as score
		FROM consolidated_fts fts
		JOIN consolidated_memories m ON m.id = fts.id
		WHERE consolidated_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("search consolidated fts: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var m ConsolidatedMemory
		var kind, sourceJSON string
		var score float64
		if err := rows.Scan(&m.ID, &m.Content, &kind, &m.Confidence, &m.CreatedAt, &m.UpdatedAt, &sourceJSON, &m.AccessCount, &score); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		m.Kind = Kind(kind)
		json.Unmarshal([]byte(sourceJSON), &m.SourceIDs)
		out = append(out, SearchResult{Memory: m, BM25: score})
	}
	return out, rows.Err()
}

// AllConsolidatedContents returns every project consolidated row's content,
// lowercased, for micro pass step 4 (raw rows that exactly match an existing
// consolidated row are marked consolidated without creating a new entry).
func (s *Store) AllConsolidatedContents() (map[string]bool, error) {
	rows, err := s.consolidated.Query(`SELECT content FROM consolidated_memories`)
	if err != nil {
		return nil, fmt.Errorf("list consolidated contents: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan consolidated content: %w", err)
		}
		out[strings.ToLower(content)] = true
	}
	return out, rows.Err()
}

// GetConsolidated fetches one row by id, or (nil, nil) if absent.
func (s *Store) GetConsolidated(id int64) (*ConsolidatedMemory, error) {
	return getConsolidatedFrom(s.consolidated, id)
}

func getConsolidatedFrom(db *sql.DB, id int64) (*ConsolidatedMemory, error) {
	var m ConsolidatedMemory
	var kind, sourceJSON string
	err := db.QueryRow(`
		SELECT id, content, kind, confidence, created_at, updated_at, source_ids, access_count
		FROM consolidated_memories WHERE id = ?
	`, id).Scan(&m.ID, &m.Content, &kind, &m.Confidence, &m.CreatedAt, &m.UpdatedAt, &sourceJSON, &m.AccessCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get consolidated %d: %w", id, err)
	}
	m.Kind = Kind(kind)
	json.Unmarshal([]byte(sourceJSON), &m.SourceIDs)
	return &m, nil
}

// AddCrossLink appends a secondary reference to a consolidated row's
// source_ids, capped at maxDreamCrossLinks beyond the primary cluster (see
// the doc comment on maxDreamCrossLinks).
func (s *Store) AddCrossLink(id int64, rawID int64) error {
	m, err := s.GetConsolidated(id)
	if err != nil {
		return err
	}
	if m == nil {
		return &ValidationError{Msg: fmt.Sprintf("consolidated id %d not found", id)}
	}
	extra := 0
	for _, existing := range m.SourceIDs {
		if existing == rawID {
			return nil
		}
	}
	if len(m.SourceIDs) > 0 {
		extra = len(m.SourceIDs) - 1
	}
	if extra >= maxDreamCrossLinks {
		return nil
	}
	merged := append(append([]int64{}, m.SourceIDs...), rawID)
	sourceJSON, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal cross-link source_ids: %w", err)
	}
	_, err = s.consolidated.Exec(`
		UPDATE consolidated_memories SET source_ids = ?, updated_at = strftime('%Y-%m-%d %H:%M:%f','now') WHERE id = ?
	`, string(sourceJSON), id)
	return err
}

// BumpConsolidatedAccessCount increments access_count best-effort.
func (s *Store) BumpConsolidatedAccessCount(ids []int64) {
	for _, id := range ids {
		s.consolidated.Exec(`UPDATE consolidated_memories SET access_count = access_count + 1 WHERE id = ?`, id)
	}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func mergeIDs(existing, add []int64) []int64 {
	seen := make(map[int64]bool, len(existing))
	out := make([]int64, 0, len(existing)+len(add))
	for _, id := range existing {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range add {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func scanConsolidatedMemories(rows *sql.Rows) ([]ConsolidatedMemory, error) {
	var out []ConsolidatedMemory
	for rows.Next() {
		var m ConsolidatedMemory
		var kind, sourceJSON string
		if err := rows.Scan(&m.ID, &m.Content, &kind, &m.Confidence, &m.CreatedAt, &m.UpdatedAt, &sourceJSON, &m.AccessCount); err != nil {
			return nil, fmt.Errorf("scan consolidated memory: %w", err)
		}
		m.Kind = Kind(kind)
		json.Unmarshal([]byte(sourceJSON), &m.SourceIDs)
		out = append(out, m)
	}
	return out, rows.Err()
}
