package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteProjectCreatesFileWithFrontMatter(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(filepath.Join(dir, "skills"), filepath.Join(dir, "global-skills"))

	if err := w.WriteProject("Go Error Handling", "Always wrap errors with context.", []int64{1, 2, 3}); err != nil {
		t.Fatalf("WriteProject: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "skills", "go-error-handling.md"))
	if err != nil {
		t.Fatalf("expected skill file: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "---\n") {
		t.Error("expected front matter delimiter")
	}
	if !strings.Contains(content, "name: Go Error Handling") {
		t.Error("expected name in front matter")
	}
	if !strings.Contains(content, "source_memory_ids: [1, 2, 3]") {
		t.Error("expected source ids in front matter")
	}
	if !strings.Contains(content, "Always wrap errors with context.") {
		t.Error("expected body content")
	}
}

func TestWriteProjectOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(filepath.Join(dir, "skills"), filepath.Join(dir, "global-skills"))

	if err := w.WriteProject("dup", "first", nil); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteProject("dup", "second", nil); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "skills", "dup.md"))
	if !strings.Contains(string(data), "second") {
		t.Error("expected overwritten content")
	}
	if strings.Contains(string(data), "first") {
		t.Error("expected old content gone")
	}

	entries, _ := os.ReadDir(filepath.Join(dir, "skills"))
	if len(entries) != 1 {
		t.Errorf("expected exactly one file, got %d", len(entries))
	}
}

func TestSlugifyHandlesSpecialCharacters(t *testing.T) {
	cases := map[string]string{
		"Go Error Handling":  "go-error-handling",
		"C++ Patterns!!":     "c-patterns",
		"  spaced  ":         "spaced",
		"":                   "skill",
	}
	for in, want := range cases {
		if got := slugify(in); got != want {
			t.Errorf("slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSweepObsoleteRemovesOldFilesOutsideCurrentSet(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(filepath.Join(dir, "skills"), filepath.Join(dir, "global-skills"))

	if err := w.WriteProject("stale", "old content", nil); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteProject("fresh", "new content", nil); err != nil {
		t.Fatal(err)
	}

	stalePath := filepath.Join(dir, "skills", "stale.md")
	old := time.Now().Add(-40 * 24 * time.Hour)
	if err := os.Chtimes(stalePath, old, old); err != nil {
		t.Fatal(err)
	}

	removed, err := w.SweepObsolete(filepath.Join(dir, "skills"), []string{"fresh"}, 30*24*time.Hour, time.Now())
	if err != nil {
		t.Fatalf("SweepObsolete: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Error("expected stale.md to be removed")
	}
	if _, err := os.Stat(filepath.Join(dir, "skills", "fresh.md")); err != nil {
		t.Error("expected fresh.md to remain")
	}
}

func TestSweepObsoleteKeepsOldFilesStillInCurrentSet(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(filepath.Join(dir, "skills"), filepath.Join(dir, "global-skills"))

	// An unchanged cluster is never rewritten, so its file keeps an old
	// mtime; being in the current set must protect it from the sweep.
	if err := w.WriteProject("Stable Cluster", "unchanged content", nil); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteProject("retired", "abandoned content", nil); err != nil {
		t.Fatal(err)
	}

	old := time.Now().Add(-40 * 24 * time.Hour)
	for _, name := range []string{"stable-cluster.md", "retired.md"} {
		if err := os.Chtimes(filepath.Join(dir, "skills", name), old, old); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := w.SweepObsolete(filepath.Join(dir, "skills"), []string{"Stable Cluster"}, 30*24*time.Hour, time.Now())
	if err != nil {
		t.Fatalf("SweepObsolete: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := os.Stat(filepath.Join(dir, "skills", "stable-cluster.md")); err != nil {
		t.Error("expected stable-cluster.md to survive the sweep despite its age")
	}
	if _, err := os.Stat(filepath.Join(dir, "skills", "retired.md")); !os.IsNotExist(err) {
		t.Error("expected retired.md to be removed")
	}
}

func TestSweepObsoleteIsNoOpWithEmptyCurrentSet(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(filepath.Join(dir, "skills"), filepath.Join(dir, "global-skills"))

	if err := w.WriteProject("lonely", "content", nil); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-40 * 24 * time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "skills", "lonely.md"), old, old); err != nil {
		t.Fatal(err)
	}

	removed, err := w.SweepObsolete(filepath.Join(dir, "skills"), nil, 30*24*time.Hour, time.Now())
	if err != nil {
		t.Fatalf("SweepObsolete: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0 when no current set is supplied", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "skills", "lonely.md")); err != nil {
		t.Error("expected lonely.md to remain")
	}
}

func TestListOrdersByRecency(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(filepath.Join(dir, "skills"), filepath.Join(dir, "global-skills"))

	w.WriteProject("older", "body", nil)
	olderPath := filepath.Join(dir, "skills", "older.md")
	older := time.Now().Add(-2 * time.Hour)
	os.Chtimes(olderPath, older, older)

	w.WriteProject("newer", "body", nil)

	names, err := w.List(filepath.Join(dir, "skills"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 || names[0] != "newer" {
		t.Errorf("List = %v, want [newer older]", names)
	}
}
