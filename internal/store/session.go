package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DetectSessionID returns a session grouping key for the current process:
// the sanitized git root name when one is found, otherwise a fresh uuid.
// The id is purely a grouping key, not a stable cross-run identity.
func DetectSessionID() string {
	cwd, err := os.Getwd()
	if err != nil {
		return uuid.New().String()
	}

	root := findGitRoot(cwd)
	if root == "" {
		return uuid.New().String()
	}

	return "session-" + sanitizeDirectoryName(filepath.Base(root))
}

func findGitRoot(startDir string) string {
	dir := startDir
	for {
		gitPath := filepath.Join(dir, ".git")
		if _, err := os.Stat(gitPath); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func sanitizeDirectoryName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('-')
		}
	}
	return strings.ToLower(b.String())
}
