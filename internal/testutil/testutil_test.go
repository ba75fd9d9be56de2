package testutil

import (
	"os"
	"strings"
	"testing"
)

func TestOpenStoreIsolatesGlobalTier(t *testing.T) {
	realHome, _ := os.UserHomeDir()

	s := OpenStore(t)

	isolatedHome, _ := os.UserHomeDir()
	if isolatedHome == realHome && realHome != "" {
		t.Fatal("expected HOME to be redirected to a temp directory")
	}
	if !strings.HasPrefix(s.GlobalDir(), isolatedHome) {
		t.Errorf("global dir %q escapes the isolated home %q", s.GlobalDir(), isolatedHome)
	}

	count, err := s.GlobalConsolidatedCount()
	if err != nil {
		t.Fatalf("GlobalConsolidatedCount: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty global store, got %d rows", count)
	}
}

func TestMustInsertHelpers(t *testing.T) {
	s := OpenStore(t)

	rawID := MustInsertRaw(t, s, "observed a thing", "observation")
	if rawID == 0 {
		t.Error("expected nonzero raw id")
	}

	consID := MustInsertConsolidated(t, s, "a durable thing", "pattern", 0.7)
	if consID == 0 {
		t.Error("expected nonzero consolidated id")
	}
}
