package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
)

// lazyInitGlobal creates ~/.cortex/ and its consolidated database on first
// global use. Safe to call repeatedly.
func (s *Store) lazyInitGlobal() error {
	if s.global != nil {
		return nil
	}

	if err := os.MkdirAll(s.globalDir, 0755); err != nil {
		return fmt.Errorf("create global directory %s: %w", s.globalDir, err)
	}

	globalPath := filepath.Join(s.globalDir, "consolidated.db")
	db, err := openDB(globalPath)
	if err != nil {
		return fmt.Errorf("open global store: %w", err)
	}
	if err := ensureSchema(db, globalPath, kindConsolidated); err != nil {
		db.Close()
		return err
	}

	s.global = db
	s.globalPath = globalPath
	return nil
}

// GlobalSkillsDir returns ~/.cortex/skills, creating the parent if needed is
// the caller's responsibility (SkillWriter does this itself).
func (s *Store) GlobalSkillsDir() string {
	return filepath.Join(s.globalDir, "skills")
}

// GlobalDir returns the ~/.cortex directory path.
func (s *Store) GlobalDir() string {
	return s.globalDir
}

// PromoteGlobal copies a project consolidated row into the global store
// unless an exact-content match (case-insensitive) already exists there; in
// that case it bumps the existing row's updated_at/access_count instead.
// Returns the (positive, internal) global id; negation for the public
// surface is applied by the caller.
func (s *Store) PromoteGlobal(projectID int64) (int64, error) {
	if err := s.lazyInitGlobal(); err != nil {
		return 0, err
	}

	m, err := s.GetConsolidated(projectID)
	if err != nil {
		return 0, err
	}
	if m == nil {
		return 0, &ValidationError{Msg: fmt.Sprintf("consolidated id %d not found", projectID)}
	}

	existingID, found, err := findGlobalByContent(s.global, m.Content)
	if err != nil {
		return 0, err
	}
	if found {
		if _, err := s.global.Exec(`
			UPDATE consolidated_memories SET updated_at = strftime('%Y-%m-%d %H:%M:%f','now'), access_count = access_count + 1 WHERE id = ?
		`, existingID); err != nil {
			return 0, fmt.Errorf("bump promoted row: %w", err)
		}
		return existingID, nil
	}

	return insertConsolidatedInto(s.global, m.Content, string(m.Kind), m.Confidence, nil)
}

// findGlobalByContent looks for a case-insensitive exact content match in
// the global store.
func findGlobalByContent(db *sql.DB, content string) (int64, bool, error) {
	var id int64
	err := db.QueryRow(`
		SELECT id FROM consolidated_memories WHERE lower(content) = lower(?) LIMIT 1
	`, content).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup global by content: %w", err)
	}
	return id, true, nil
}

// InsertGlobalConsolidated inserts a meta-note directly into the global
// store, used by the dream pass's Mine phase when running with --global.
// Dedup follows the same (kind, content) unique index as the project store.
func (s *Store) InsertGlobalConsolidated(content, kind string, confidence float64) (int64, error) {
	if err := s.lazyInitGlobal(); err != nil {
		return 0, err
	}
	return insertConsolidatedInto(s.global, content, kind, confidence, nil)
}

// GlobalConsolidatedCount is used to gate the 24-hour auto-dream schedule.
func (s *Store) GlobalConsolidatedCount() (int, error) {
	if err := s.lazyInitGlobal(); err != nil {
		return 0, err
	}
	var count int
	if err := s.global.QueryRow(`SELECT COUNT(*) FROM consolidated_memories`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count global consolidated: %w", err)
	}
	return count, nil
}

// GlobalListByRecency is the global-store counterpart of
// ListConsolidatedByRecency, used by ContextFormatter's Global Knowledge
// section and Retrieval's recency-mode recall leg.
func (s *Store) GlobalListByRecency(limit int) ([]ConsolidatedMemory, error) {
	if err := s.lazyInitGlobal(); err != nil {
		return nil, err
	}
	return listConsolidatedByRecencyFrom(s.global, limit)
}

// GlobalSearchFTS is the global-store counterpart of SearchConsolidatedFTS.
func (s *Store) GlobalSearchFTS(ftsQuery string, limit int) ([]SearchResult, error) {
	if err := s.lazyInitGlobal(); err != nil {
		return nil, err
	}
	return searchConsolidatedFTSIn(s.global, ftsQuery, limit)
}

// GlobalGet fetches a global consolidated row by its (positive, internal) id.
func (s *Store) GlobalGet(id int64) (*ConsolidatedMemory, error) {
	if err := s.lazyInitGlobal(); err != nil {
		return nil, err
	}
	return getConsolidatedFrom(s.global, id)
}

// GlobalUpdate applies a partial update to a global consolidated row.
func (s *Store) GlobalUpdate(id int64, upd ConsolidatedUpdate) error {
	if err := s.lazyInitGlobal(); err != nil {
		return err
	}
	return updateConsolidatedIn(s.global, id, upd)
}

// GlobalDelete removes a global consolidated row.
func (s *Store) GlobalDelete(id int64) error {
	if err := s.lazyInitGlobal(); err != nil {
		return err
	}
	return deleteConsolidatedFrom(s.global, id)
}
