package retrieval

import (
	"testing"
	"time"

	"github.com/cortexmem/cortex/internal/store"
	"github.com/cortexmem/cortex/internal/testutil"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return testutil.OpenStore(t)
}

func TestRecallEmptyQueryUsesRecencyMode(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	s.InsertConsolidated("older note", string(store.KindObservation), 0.6, nil)
	time.Sleep(10 * time.Millisecond)
	s.InsertConsolidated("newer note", string(store.KindObservation), 0.6, nil)

	env, err := Recall(s, "", 10, now)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(env.Results) < 2 {
		t.Fatalf("expected at least 2 results, got %d", len(env.Results))
	}
	if env.Results[0].Content != "newer note" {
		t.Errorf("expected newest row first in recency mode, got %q", env.Results[0].Content)
	}
}

func TestRecallRelevanceModeRanksMatches(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	s.InsertConsolidated("retry with exponential backoff on failure", string(store.KindPattern), 0.9, nil)
	s.InsertConsolidated("unrelated formatting preference", string(store.KindPreference), 0.9, nil)

	env, err := Recall(s, "backoff", 10, now)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	found := false
	for _, r := range env.Results {
		if r.Content == "retry with exponential backoff on failure" {
			found = true
		}
		if r.Content == "unrelated formatting preference" {
			t.Error("expected non-matching row to be excluded from relevance mode results")
		}
	}
	if !found {
		t.Error("expected matching row in results")
	}
}

func TestRecallTagsAndNegatesGlobalIDs(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	projID, err := s.InsertConsolidated("promoted team convention", string(store.KindDecision), 0.9, nil)
	if err != nil {
		t.Fatalf("InsertConsolidated: %v", err)
	}
	if _, err := s.PromoteGlobal(projID); err != nil {
		t.Fatalf("PromoteGlobal: %v", err)
	}
	// Remove the project row so only the global copy surfaces in this leg's results.
	if err := s.DeleteConsolidated(projID); err != nil {
		t.Fatalf("DeleteConsolidated: %v", err)
	}

	env, err := Recall(s, "", 10, now)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}

	var sawGlobal bool
	for _, r := range env.Results {
		if r.Source == SourceGlobalConsolidated {
			sawGlobal = true
			if r.ID >= 0 {
				t.Errorf("expected negated id for global result, got %d", r.ID)
			}
		}
	}
	if !sawGlobal {
		t.Error("expected a global_consolidated result")
	}
}

func TestRecallMalformedQueryDegradesToRecency(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	s.InsertConsolidated("some note", string(store.KindObservation), 0.6, nil)

	env, err := Recall(s, `unterminated "phrase`, 10, now)
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	foundWarning := false
	for _, w := range env.Warnings {
		if w == DegradedQuery {
			foundWarning = true
		}
	}
	if !foundWarning {
		t.Error("expected DegradedQuery warning for malformed query")
	}
}
