package wake

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/skills"
	"github.com/cortexmem/cortex/internal/store"
	"github.com/cortexmem/cortex/internal/testutil"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return testutil.OpenStore(t)
}

func TestRunWithNoBacklogIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	dir := t.TempDir()
	w := skills.NewWriter(filepath.Join(dir, "skills"), filepath.Join(dir, "global-skills"))
	cfg := config.DefaultConfig().Consolidation

	result, err := Run(context.Background(), s, nil, w, cfg, time.Now())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.RanQuickSleep || result.RanMicro {
		t.Error("expected no-op when backlog is empty")
	}
	if result.Context == "" {
		t.Error("expected a context document")
	}
}

func TestRunFallsBackToMicroWithoutProvider(t *testing.T) {
	s := newTestStore(t)
	s.InsertRaw("a", "observation", "sess")
	s.InsertRaw("a", "observation", "sess")

	dir := t.TempDir()
	w := skills.NewWriter(filepath.Join(dir, "skills"), filepath.Join(dir, "global-skills"))
	cfg := config.DefaultConfig().Consolidation

	result, err := Run(context.Background(), s, nil, w, cfg, time.Now())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.RanMicro {
		t.Error("expected micro pass when no provider is configured")
	}
	if result.Micro == nil || result.Micro.DuplicatesCollapsed != 1 {
		t.Errorf("expected micro pass to collapse 1 duplicate, got %+v", result.Micro)
	}
}
