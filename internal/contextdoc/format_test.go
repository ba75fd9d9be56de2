package contextdoc

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cortexmem/cortex/internal/skills"
	"github.com/cortexmem/cortex/internal/store"
	"github.com/cortexmem/cortex/internal/testutil"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return testutil.OpenStore(t)
}

func TestFormatIncludesAllFiveSections(t *testing.T) {
	s := newTestStore(t)
	s.InsertRaw("fixed a race condition", "bugfix", "sess")
	s.InsertConsolidated("we use cobra for CLIs", "decision", 0.9, nil)

	dir := t.TempDir()
	w := skills.NewWriter(filepath.Join(dir, "skills"), filepath.Join(dir, "global-skills"))
	w.WriteProject("cli-conventions", "use cobra", nil)

	doc, err := Format(s, w, Options{Limit: 15}, time.Now())
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	for _, section := range []string{
		"## Recent Activity",
		"## Patterns & Decisions",
		"## Global Knowledge",
		"## Global Skills",
		"## Project Skills",
	} {
		if !strings.Contains(doc, section) {
			t.Errorf("expected section %q in document", section)
		}
	}
	if !strings.Contains(doc, "cli-conventions") {
		t.Error("expected project skill name in document")
	}
	if !strings.Contains(doc, "we use cobra for CLIs") {
		t.Error("expected consolidated content in document")
	}
}

func TestFormatCompactCollapsesSections(t *testing.T) {
	s := newTestStore(t)
	longContent := strings.Repeat("x", 200)
	s.InsertConsolidated(longContent, "pattern", 0.8, nil)

	dir := t.TempDir()
	w := skills.NewWriter(filepath.Join(dir, "skills"), filepath.Join(dir, "global-skills"))

	doc, err := Format(s, w, Options{Limit: 15, Compact: true}, time.Now())
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	if !strings.Contains(doc, "(collapsed)") {
		t.Error("expected collapsed marker for section 1/4/5")
	}
	if strings.Contains(doc, longContent) {
		t.Error("expected entry to be truncated under --compact")
	}
}

func TestFormatWithNoDataIsStillWellFormed(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	w := skills.NewWriter(filepath.Join(dir, "skills"), filepath.Join(dir, "global-skills"))

	doc, err := Format(s, w, Options{Limit: 15}, time.Now())
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if !strings.Contains(doc, "(none)") {
		t.Error("expected (none) placeholder for empty sections")
	}
}
