// Package store owns the two project-local SQLite databases (raw, tracked
// outside VCS, and consolidated, tracked in VCS) and the lazily-created
// user-global consolidated database, including their schemas, migrations,
// FTS5 search indexes, and sync triggers.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cortexmem/cortex/internal/logging"
)

// parseMetaTime parses the RFC3339 timestamps stamped into the meta table by
// SetLastSleepAt/SetLastDreamAt.
func parseMetaTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, value)
}

// Store coordinates the raw, consolidated, and global databases.
type Store struct {
	dir          string
	raw          *sql.DB
	consolidated *sql.DB
	global       *sql.DB
	globalDir    string
	globalPath   string
	log          *logging.Logger
}

// Open opens (creating if necessary) raw.db and consolidated.db under
// projectDir, running schema migrations on each. The global store is left
// unopened until a global operation needs it (lazyInitGlobal).
func Open(projectDir string) (*Store, error) {
	log := logging.GetLogger("store")

	rawPath := filepath.Join(projectDir, "raw.db")
	consolidatedPath := filepath.Join(projectDir, "consolidated.db")

	rawDB, err := openDB(rawPath)
	if err != nil {
		return nil, &StoreUnavailableError{Path: rawPath, Err: err}
	}
	if err := ensureSchema(rawDB, rawPath, kindRaw); err != nil {
		rawDB.Close()
		return nil, wrapOpenErr(rawPath, err)
	}

	consolidatedDB, err := openDB(consolidatedPath)
	if err != nil {
		rawDB.Close()
		return nil, &StoreUnavailableError{Path: consolidatedPath, Err: err}
	}
	if err := ensureSchema(consolidatedDB, consolidatedPath, kindConsolidated); err != nil {
		rawDB.Close()
		consolidatedDB.Close()
		return nil, wrapOpenErr(consolidatedPath, err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	log.Info("store opened", "project_dir", projectDir)

	return &Store{
		dir:          projectDir,
		raw:          rawDB,
		consolidated: consolidatedDB,
		globalDir:    filepath.Join(homeDir, ".cortex"),
		log:          log,
	}, nil
}

func wrapOpenErr(path string, err error) error {
	if ics, ok := err.(*IncompatibleSchemaError); ok {
		return ics
	}
	return &StoreUnavailableError{Path: path, Err: err}
}

// Close closes every database handle that was opened.
func (s *Store) Close() error {
	var firstErr error
	if s.raw != nil {
		if err := s.raw.Close(); err != nil {
			firstErr = err
		}
	}
	if s.consolidated != nil {
		if err := s.consolidated.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.global != nil {
		if err := s.global.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Checkpoint forces a WAL checkpoint on every open database.
func (s *Store) Checkpoint() error {
	if err := checkpoint(s.raw); err != nil {
		return fmt.Errorf("checkpoint raw.db: %w", err)
	}
	if err := checkpoint(s.consolidated); err != nil {
		return fmt.Errorf("checkpoint consolidated.db: %w", err)
	}
	if s.global != nil {
		if err := checkpoint(s.global); err != nil {
			return fmt.Errorf("checkpoint global consolidated.db: %w", err)
		}
	}
	return nil
}

// ProjectDir returns the project's .cortex directory.
func (s *Store) ProjectDir() string {
	return s.dir
}

// SkillsDir returns the project's skills directory.
func (s *Store) SkillsDir() string {
	return filepath.Join(s.dir, "skills")
}

// LastSleepAt, SetLastSleepAt, LastDreamAt, and SetLastDreamAt track the
// meta timestamps consumed by the auto-dream schedule and the Stats
// snapshot.
func (s *Store) LastSleepAt() (string, bool, error) {
	return getMeta(s.consolidated, "last_sleep_at")
}

func (s *Store) SetLastSleepAt(value string) error {
	return setMeta(s.consolidated, "last_sleep_at", value)
}

func (s *Store) LastDreamAt() (string, bool, error) {
	return getMeta(s.consolidated, "last_dream_at")
}

func (s *Store) SetLastDreamAt(value string) error {
	return setMeta(s.consolidated, "last_dream_at", value)
}

// GlobalLastDreamAt tracks the dream timestamp for the global store, used to
// gate the 24-hour auto-dream rule independently of the project's own.
func (s *Store) GlobalLastDreamAt() (string, bool, error) {
	if err := s.lazyInitGlobal(); err != nil {
		return "", false, err
	}
	return getMeta(s.global, "last_dream_at")
}

func (s *Store) SetGlobalLastDreamAt(value string) error {
	if err := s.lazyInitGlobal(); err != nil {
		return err
	}
	return setMeta(s.global, "last_dream_at", value)
}

// Stats computes the read-only stats snapshot. The skill count is supplied
// by the caller (the skills package owns the filesystem listing); pass 0 if
// unavailable.
func (s *Store) Stats(skillCount int) (*Stats, error) {
	raw, err := s.RawCount()
	if err != nil {
		return nil, err
	}
	unconsolidated, err := s.UnconsolidatedCount()
	if err != nil {
		return nil, err
	}

	var consolidatedCount int
	if err := s.consolidated.QueryRow(`SELECT COUNT(*) FROM consolidated_memories`).Scan(&consolidatedCount); err != nil {
		return nil, fmt.Errorf("count consolidated: %w", err)
	}

	stats := &Stats{
		Raw:            raw,
		Unconsolidated: unconsolidated,
		Consolidated:   consolidatedCount,
		Skills:         skillCount,
	}

	if v, ok, err := s.LastSleepAt(); err == nil && ok {
		if t, perr := parseMetaTime(v); perr == nil {
			stats.LastSleepAt = &t
		}
	}
	if v, ok, err := s.LastDreamAt(); err == nil && ok {
		if t, perr := parseMetaTime(v); perr == nil {
			stats.LastDreamAt = &t
		}
	}

	return stats, nil
}

// GlobalStats computes the `--global` variant of the stats snapshot. The
// global store has no raw tier (it only ever holds promoted consolidated
// rows), so Raw and Unconsolidated are always zero; LastSleepAt is likewise
// always nil since quick-sleep only ever runs against the project store.
// Only the dream pass has a global variant.
func (s *Store) GlobalStats(skillCount int) (*Stats, error) {
	if err := s.lazyInitGlobal(); err != nil {
		return nil, err
	}

	consolidatedCount, err := s.GlobalConsolidatedCount()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Consolidated: consolidatedCount,
		Skills:       skillCount,
	}

	if v, ok, err := s.GlobalLastDreamAt(); err == nil && ok {
		if t, perr := parseMetaTime(v); perr == nil {
			stats.LastDreamAt = &t
		}
	}

	return stats, nil
}
