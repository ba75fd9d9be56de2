package consolidate

import (
	"context"
	"testing"
	"time"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/store"
	"github.com/cortexmem/cortex/internal/testutil"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return testutil.OpenStore(t)
}

func TestMicroPassCollapsesDuplicates(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 4; i++ {
		if _, err := s.InsertRaw("fixed a thing", "observation", "sess"); err != nil {
			t.Fatalf("InsertRaw: %v", err)
		}
	}

	result, err := MicroPass(s, config.DefaultConfig().Consolidation)
	if err != nil {
		t.Fatalf("MicroPass: %v", err)
	}
	if result.DuplicatesCollapsed != 3 {
		t.Errorf("DuplicatesCollapsed = %d, want 3", result.DuplicatesCollapsed)
	}

	count, err := s.RawCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("RawCount = %d, want 1", count)
	}
}

func TestMicroPassIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	s.InsertRaw("a", "observation", "sess")
	s.InsertRaw("a", "observation", "sess")

	cfg := config.DefaultConfig().Consolidation
	if _, err := MicroPass(s, cfg); err != nil {
		t.Fatalf("first MicroPass: %v", err)
	}
	second, err := MicroPass(s, cfg)
	if err != nil {
		t.Fatalf("second MicroPass: %v", err)
	}
	if second.DuplicatesCollapsed != 0 {
		t.Errorf("second pass collapsed %d, want 0 (idempotent)", second.DuplicatesCollapsed)
	}
}

type fakeProvider struct {
	response string
	err      error
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Complete(ctx context.Context, system, user, model string, maxTokens int) (string, error) {
	return f.response, f.err
}

type noopSkillWriter struct{ writes int }

func (w *noopSkillWriter) WriteProject(name, body string, sourceMemoryIDs []int64) error {
	w.writes++
	return nil
}

func TestQuickSleepHappyPath(t *testing.T) {
	s := newTestStore(t)
	id1, _ := s.InsertRaw("pattern observation", "pattern", "sess")
	id2, _ := s.InsertRaw("a decision was made", "decision", "sess")
	id3, _ := s.InsertRaw("fixed the bug", "bugfix", "sess")

	plan := `{
		"consolidations": [{"content": "merged cluster", "kind": "pattern", "confidence": 0.8, "source_ids": [` +
		itoa(id1) + `,` + itoa(id2) + `,` + itoa(id3) + `]}],
		"contradictions": [],
		"promotions": [],
		"decays": [],
		"skills": []
	}`

	provider := &fakeProvider{response: plan}
	writer := &noopSkillWriter{}
	cfg := config.DefaultConfig().Consolidation

	result, err := QuickSleep(context.Background(), s, provider, writer, cfg, time.Now())
	if err != nil {
		t.Fatalf("QuickSleep: %v", err)
	}
	if result.Consolidated != 1 {
		t.Errorf("Consolidated = %d, want 1", result.Consolidated)
	}
	if result.FellBackToMicro {
		t.Error("should not have fallen back to micro")
	}

	for _, id := range []int64{id1, id2, id3} {
		m, err := rawByID(s, id)
		if err != nil {
			t.Fatal(err)
		}
		if !m.Consolidated {
			t.Errorf("raw id %d should be marked consolidated", id)
		}
	}

	lastSleep, ok, err := s.LastSleepAt()
	if err != nil || !ok || lastSleep == "" {
		t.Error("expected last_sleep_at to be set")
	}
}

func TestQuickSleepFallsBackOnMalformedJSON(t *testing.T) {
	s := newTestStore(t)
	s.InsertRaw("something happened", "observation", "sess")

	provider := &fakeProvider{response: "not json at all"}
	cfg := config.DefaultConfig().Consolidation

	result, err := QuickSleep(context.Background(), s, provider, nil, cfg, time.Now())
	if err != nil {
		t.Fatalf("QuickSleep should not error on malformed plan: %v", err)
	}
	if !result.FellBackToMicro {
		t.Error("expected fallback to micro on malformed plan")
	}

	count, err := s.RawCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("raw row should remain, got count %d", count)
	}
}

func TestQuickSleepFailedApplyRollsBackBothDatabases(t *testing.T) {
	s := newTestStore(t)
	id1, _ := s.InsertRaw("first observation", "observation", "sess")
	id2, _ := s.InsertRaw("second observation", "observation", "sess")

	// The second consolidation targets a replaces_id that doesn't exist, so
	// plan application fails after the first insert succeeded. Both the
	// consolidated insert and the raw marks must roll back together.
	plan := `{
		"consolidations": [
			{"content": "a new cluster", "kind": "pattern", "confidence": 0.8, "source_ids": [` + itoa(id1) + `]},
			{"content": "an update to nothing", "kind": "pattern", "confidence": 0.8, "source_ids": [` + itoa(id2) + `], "replaces_id": 9999}
		],
		"contradictions": [],
		"promotions": [],
		"decays": [],
		"skills": []
	}`

	provider := &fakeProvider{response: plan}
	cfg := config.DefaultConfig().Consolidation

	if _, err := QuickSleep(context.Background(), s, provider, nil, cfg, time.Now()); err == nil {
		t.Fatal("expected QuickSleep to fail on the bad replaces_id")
	}

	stats, err := s.Stats(0)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Consolidated != 0 {
		t.Errorf("Consolidated = %d, want 0 after rollback", stats.Consolidated)
	}
	if stats.Unconsolidated != 2 {
		t.Errorf("Unconsolidated = %d, want 2 (raw marks rolled back)", stats.Unconsolidated)
	}

	if _, ok, _ := s.LastSleepAt(); ok {
		t.Error("expected last_sleep_at to remain unset after failed apply")
	}
}

func TestQuickSleepWithNoProviderFallsBackToMicro(t *testing.T) {
	s := newTestStore(t)
	s.InsertRaw("x", "observation", "sess")
	s.InsertRaw("x", "observation", "sess")

	cfg := config.DefaultConfig().Consolidation
	result, err := QuickSleep(context.Background(), s, nil, nil, cfg, time.Now())
	if err != nil {
		t.Fatalf("QuickSleep: %v", err)
	}
	if !result.FellBackToMicro {
		t.Error("expected fallback when no provider configured")
	}
}

func rawByID(s *store.Store, id int64) (*store.RawMemory, error) {
	rows, err := s.RecentRaw(time.Now().Add(-24*time.Hour), 1000)
	if err != nil {
		return nil, err
	}
	for _, m := range rows {
		if m.ID == id {
			return &m, nil
		}
	}
	return &store.RawMemory{}, nil
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
