// Package skills renders consolidated knowledge clusters into standalone
// markdown skill files under .cortex/skills/ (project) or ~/.cortex/skills/
// (global).
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cortexmem/cortex/internal/logging"
)

// Writer writes project and global skill files.
type Writer struct {
	projectDir string
	globalDir  string
	log        *logging.Logger
}

// NewWriter constructs a Writer rooted at the given project skills directory
// and global skills directory (typically store.SkillsDir() / store.GlobalSkillsDir()).
func NewWriter(projectSkillsDir, globalSkillsDir string) *Writer {
	return &Writer{
		projectDir: projectSkillsDir,
		globalDir:  globalSkillsDir,
		log:        logging.GetLogger("skills"),
	}
}

var slugNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// slugify turns a skill name into a filesystem-safe, stable file stem.
func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugNonAlnum.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "skill"
	}
	return s
}

// WriteProject writes name/body as a project skill file.
func (w *Writer) WriteProject(name, body string, sourceMemoryIDs []int64) error {
	return w.write(w.projectDir, name, body, sourceMemoryIDs)
}

// WriteGlobal writes name/body as a global skill file.
func (w *Writer) WriteGlobal(name, body string, sourceMemoryIDs []int64) error {
	return w.write(w.globalDir, name, body, sourceMemoryIDs)
}

// write renders front-matter plus body and writes it atomically: write to a
// temp file in the same directory, then rename over the destination, so a
// reader never observes a partially-written skill file.
func (w *Writer) write(dir, name, body string, sourceMemoryIDs []int64) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create skills directory %s: %w", dir, err)
	}

	slug := slugify(name)
	dest := filepath.Join(dir, slug+".md")
	content := renderSkill(name, body, sourceMemoryIDs)

	tmp, err := os.CreateTemp(dir, ".skill-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp skill file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp skill file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp skill file: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp skill file into place: %w", err)
	}

	w.log.Info("wrote skill file", "path", dest, "sources", len(sourceMemoryIDs))
	return nil
}

func renderSkill(name string, body string, sourceMemoryIDs []int64) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "name: %s\n", name)
	fmt.Fprintf(&b, "generated_at: %s\n", time.Now().UTC().Format(time.RFC3339))
	b.WriteString("source_memory_ids: [")
	for i, id := range sourceMemoryIDs {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d", id)
	}
	b.WriteString("]\n")
	b.WriteString("---\n\n")
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n")
	return b.String()
}

// Count returns the number of skill files present in a directory (used,
// through ProjectCount/GlobalCount, for the Stats snapshot's skillCount).
func (w *Writer) Count(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			n++
		}
	}
	return n
}

// ProjectCount and GlobalCount are convenience wrappers over Count for the
// Writer's own configured directories.
func (w *Writer) ProjectCount() int { return w.Count(w.projectDir) }
func (w *Writer) GlobalCount() int  { return w.Count(w.globalDir) }

// List returns the names (slug stems, without extension) of skill files in
// a directory, sorted by most-recently-modified first, for
// ContextFormatter's Project/Global Skills sections.
func (w *Writer) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list skills directory %s: %w", dir, err)
	}

	type named struct {
		name    string
		modTime time.Time
	}
	var items []named
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, named{name: strings.TrimSuffix(e.Name(), ".md"), modTime: info.ModTime()})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].modTime.After(items[j].modTime)
	})

	out := make([]string, len(items))
	for i, n := range items {
		out[i] = n.name
	}
	return out, nil
}

// Read returns the raw content of one skill file in dir by its slug name
// (without extension).
func (w *Writer) Read(dir, slug string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, slug+".md"))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ProjectDir and GlobalDir expose the configured roots for callers that
// need to pass them on to List/Read (e.g. ContextFormatter).
func (w *Writer) ProjectDir() string { return w.projectDir }
func (w *Writer) GlobalDir() string  { return w.globalDir }

// SweepObsolete deletes skill files in dir that are not part of the current
// skill set AND haven't been modified in more than maxAge, so renamed or
// merged clusters don't leave stale files behind forever. A file whose
// cluster is still current is kept no matter how old it is: an unchanged
// cluster is never rewritten, so an old mtime alone doesn't mean obsolete.
// When current is empty the sweep is a no-op, since a pass that produced no
// skill set has nothing to compare against.
func (w *Writer) SweepObsolete(dir string, current []string, maxAge time.Duration, now time.Time) (int, error) {
	if len(current) == 0 {
		return 0, nil
	}

	keep := make(map[string]bool, len(current))
	for _, name := range current {
		keep[slugify(name)] = true
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sweep skills directory %s: %w", dir, err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		if keep[strings.TrimSuffix(e.Name(), ".md")] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > maxAge {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				return removed, fmt.Errorf("remove stale skill file %s: %w", e.Name(), err)
			}
			removed++
		}
	}
	if removed > 0 {
		w.log.Info("swept obsolete skill files", "dir", dir, "removed", removed)
	}
	return removed, nil
}
