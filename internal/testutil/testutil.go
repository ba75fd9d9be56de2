// Package testutil provides shared fixtures for the engine's tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/cortexmem/cortex/internal/skills"
	"github.com/cortexmem/cortex/internal/store"
)

// OpenStore opens a fresh project store in a temp directory. HOME is pointed
// at a second temp directory so the lazily-created global store never touches
// the real ~/.cortex, and every test run starts from an empty global tier.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// NewSkillsWriter returns a Writer rooted at throwaway project and global
// skill directories.
func NewSkillsWriter(t *testing.T) *skills.Writer {
	t.Helper()
	dir := t.TempDir()
	return skills.NewWriter(filepath.Join(dir, "skills"), filepath.Join(dir, "global-skills"))
}

// MustInsertRaw saves one raw memory and fails the test on error.
func MustInsertRaw(t *testing.T, s *store.Store, content, kind string) int64 {
	t.Helper()
	id, err := s.InsertRaw(content, kind, "test-session")
	if err != nil {
		t.Fatalf("InsertRaw(%q): %v", content, err)
	}
	return id
}

// MustInsertConsolidated inserts one consolidated memory and fails the test
// on error.
func MustInsertConsolidated(t *testing.T, s *store.Store, content, kind string, confidence float64) int64 {
	t.Helper()
	id, err := s.InsertConsolidated(content, kind, confidence, nil)
	if err != nil {
		t.Fatalf("InsertConsolidated(%q): %v", content, err)
	}
	return id
}
