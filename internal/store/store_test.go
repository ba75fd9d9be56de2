package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	// Isolate the lazily-created global store from the real ~/.cortex.
	t.Setenv("HOME", t.TempDir())
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesDatabases(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	for _, name := range []string{"raw.db", "consolidated.db"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := setMeta(s.consolidated, "schema_version", "999"); err != nil {
		t.Fatalf("setMeta: %v", err)
	}
	s.Close()

	_, err = Open(dir)
	if err == nil {
		t.Fatal("expected IncompatibleSchemaError reopening a newer-versioned store")
	}
	if _, ok := err.(*IncompatibleSchemaError); !ok {
		t.Errorf("expected *IncompatibleSchemaError, got %T: %v", err, err)
	}
}

func TestInsertRawValidation(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.InsertRaw("   ", string(KindObservation), "sess"); err == nil {
		t.Error("expected error for empty content")
	}
	if _, err := s.InsertRaw("hello", "not-a-kind", "sess"); err == nil {
		t.Error("expected error for unknown kind")
	}

	id, err := s.InsertRaw("fixed a race in the poller", string(KindBugfix), "sess-1")
	if err != nil {
		t.Fatalf("InsertRaw: %v", err)
	}
	if id == 0 {
		t.Error("expected nonzero id")
	}
}

func TestCollapseExactDuplicateRawMergesAccessCount(t *testing.T) {
	s := newTestStore(t)

	id1, _ := s.InsertRaw("use context.Context for cancellation", string(KindPattern), "s1")
	id2, _ := s.InsertRaw("use context.Context for cancellation", string(KindPattern), "s1")
	s.BumpRawAccessCount([]int64{id1, id1, id2})

	removed, err := s.CollapseExactDuplicateRaw()
	if err != nil {
		t.Fatalf("CollapseExactDuplicateRaw: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 row removed, got %d", removed)
	}

	backlog, err := s.UnconsolidatedBacklog(10)
	if err != nil {
		t.Fatalf("UnconsolidatedBacklog: %v", err)
	}
	if len(backlog) != 1 {
		t.Fatalf("expected 1 surviving row, got %d", len(backlog))
	}
	if backlog[0].AccessCount != 3 {
		t.Errorf("expected merged access_count 3, got %d", backlog[0].AccessCount)
	}

	// Idempotent: a second pass over a now-deduplicated set removes nothing.
	removed, err = s.CollapseExactDuplicateRaw()
	if err != nil {
		t.Fatalf("CollapseExactDuplicateRaw (second pass): %v", err)
	}
	if removed != 0 {
		t.Errorf("expected second pass to be a no-op, removed %d", removed)
	}
}

func TestDeleteStaleUnconsolidatedKeepsAccessedRows(t *testing.T) {
	s := newTestStore(t)

	staleID, _ := s.InsertRaw("stale never-touched note", string(KindObservation), "s1")
	touchedID, _ := s.InsertRaw("touched note", string(KindObservation), "s1")
	s.BumpRawAccessCount([]int64{touchedID})

	// Backdate both rows past the horizon.
	past := time.Now().Add(-48 * time.Hour)
	if _, err := s.raw.Exec(`UPDATE raw_memories SET created_at = ? WHERE id IN (?, ?)`, past, staleID, touchedID); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	removed, err := s.DeleteStaleUnconsolidated(24 * time.Hour)
	if err != nil {
		t.Fatalf("DeleteStaleUnconsolidated: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 stale row removed, got %d", removed)
	}

	backlog, _ := s.UnconsolidatedBacklog(10)
	if len(backlog) != 1 || backlog[0].ID != touchedID {
		t.Errorf("expected only the touched row to survive, got %+v", backlog)
	}
}

func TestInsertConsolidatedDedupMergesSourceIDs(t *testing.T) {
	s := newTestStore(t)

	id1, err := s.InsertConsolidated("prefer small PRs", string(KindPreference), 0.6, []int64{1, 2})
	if err != nil {
		t.Fatalf("InsertConsolidated: %v", err)
	}

	id2, err := s.InsertConsolidated("prefer small PRs", string(KindPreference), 0.9, []int64{2, 3})
	if err != nil {
		t.Fatalf("InsertConsolidated (dup): %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected dedup to return the same id, got %d and %d", id1, id2)
	}

	m, err := s.GetConsolidated(id1)
	if err != nil {
		t.Fatalf("GetConsolidated: %v", err)
	}
	if len(m.SourceIDs) != 3 {
		t.Errorf("expected merged source_ids of length 3, got %v", m.SourceIDs)
	}
}

func TestDecayRemovesBelowThreshold(t *testing.T) {
	s := newTestStore(t)

	s.InsertConsolidated("low confidence guess", string(KindObservation), 0.1, nil)
	keepID, _ := s.InsertConsolidated("well-established pattern", string(KindPattern), 0.8, nil)

	removed, err := s.Decay(0.3)
	if err != nil {
		t.Fatalf("Decay: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 row decayed, got %d", removed)
	}

	m, err := s.GetConsolidated(keepID)
	if err != nil {
		t.Fatalf("GetConsolidated: %v", err)
	}
	if m == nil {
		t.Error("expected high-confidence row to survive decay")
	}
}

func TestSearchConsolidatedFTS(t *testing.T) {
	s := newTestStore(t)

	s.InsertConsolidated("retry requests with exponential backoff", string(KindPattern), 0.7, nil)
	s.InsertConsolidated("unrelated note about formatting", string(KindObservation), 0.7, nil)

	results, err := s.SearchConsolidatedFTS("backoff", 10)
	if err != nil {
		t.Fatalf("SearchConsolidatedFTS: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 match, got %d", len(results))
	}
}

func TestAddCrossLinkCapsAtMaxDreamCrossLinks(t *testing.T) {
	s := newTestStore(t)

	id, _ := s.InsertConsolidated("central pattern", string(KindPattern), 0.7, []int64{1})

	for i, rawID := range []int64{2, 3, 4, 5} {
		if err := s.AddCrossLink(id, rawID); err != nil {
			t.Fatalf("AddCrossLink #%d: %v", i, err)
		}
	}

	m, err := s.GetConsolidated(id)
	if err != nil {
		t.Fatalf("GetConsolidated: %v", err)
	}
	// Primary (1) plus at most maxDreamCrossLinks extras.
	if len(m.SourceIDs) > 1+maxDreamCrossLinks {
		t.Errorf("expected source_ids capped at %d, got %d: %v", 1+maxDreamCrossLinks, len(m.SourceIDs), m.SourceIDs)
	}
}

func TestPromoteGlobalDedupsByContent(t *testing.T) {
	s := newTestStore(t)

	id1, _ := s.InsertConsolidated("always run tests before pushing", string(KindPreference), 0.7, nil)

	globalID1, err := s.PromoteGlobal(id1)
	if err != nil {
		t.Fatalf("PromoteGlobal: %v", err)
	}

	id2, _ := s.InsertConsolidated("Always Run Tests Before Pushing", string(KindPreference), 0.5, nil)
	globalID2, err := s.PromoteGlobal(id2)
	if err != nil {
		t.Fatalf("PromoteGlobal (case-insensitive dup): %v", err)
	}

	if globalID1 != globalID2 {
		t.Errorf("expected case-insensitive content match to dedup to the same global id, got %d and %d", globalID1, globalID2)
	}

	count, err := s.GlobalConsolidatedCount()
	if err != nil {
		t.Fatalf("GlobalConsolidatedCount: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 global row, got %d", count)
	}
}

func TestStatsReflectsCounts(t *testing.T) {
	s := newTestStore(t)

	s.InsertRaw("episodic note one", string(KindObservation), "s1")
	rawID, _ := s.InsertRaw("episodic note two", string(KindObservation), "s1")
	s.MarkConsolidated([]int64{rawID})
	s.InsertConsolidated("a durable fact", string(KindDecision), 0.7, []int64{rawID})

	stats, err := s.Stats(0)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Raw != 2 {
		t.Errorf("expected Raw=2, got %d", stats.Raw)
	}
	if stats.Unconsolidated != 1 {
		t.Errorf("expected Unconsolidated=1, got %d", stats.Unconsolidated)
	}
	if stats.Consolidated != 1 {
		t.Errorf("expected Consolidated=1, got %d", stats.Consolidated)
	}
}

func TestSetAndLastSleepAt(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.LastSleepAt(); err != nil || ok {
		t.Fatalf("expected no last_sleep_at set yet, ok=%v err=%v", ok, err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if err := s.SetLastSleepAt(now.Format(time.RFC3339)); err != nil {
		t.Fatalf("SetLastSleepAt: %v", err)
	}

	v, ok, err := s.LastSleepAt()
	if err != nil || !ok {
		t.Fatalf("expected last_sleep_at to be set, ok=%v err=%v", ok, err)
	}
	parsed, err := parseMetaTime(v)
	if err != nil {
		t.Fatalf("parseMetaTime: %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("expected %v, got %v", now, parsed)
	}
}

func TestCheckpointIsSafeOnFreshStore(t *testing.T) {
	s := newTestStore(t)
	if err := s.Checkpoint(); err != nil {
		t.Errorf("Checkpoint: %v", err)
	}
}
