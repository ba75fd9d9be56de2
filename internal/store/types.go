package store

import "time"

// Kind is the closed set of memory categories.
type Kind string

const (
	KindBugfix      Kind = "bugfix"
	KindDecision    Kind = "decision"
	KindPattern     Kind = "pattern"
	KindPreference  Kind = "preference"
	KindObservation Kind = "observation"
)

var validKinds = map[Kind]bool{
	KindBugfix:      true,
	KindDecision:    true,
	KindPattern:     true,
	KindPreference:  true,
	KindObservation: true,
}

// ValidKind reports whether k is one of the recognized memory kinds.
func ValidKind(k string) bool {
	return validKinds[Kind(k)]
}

// RawMemory is one episodic observation in raw.db.
type RawMemory struct {
	ID           int64
	Content      string
	Kind         Kind
	CreatedAt    time.Time
	Consolidated bool
	SessionID    string
	AccessCount  int
}

// ConsolidatedMemory is one long-term entry in consolidated.db (project or global).
type ConsolidatedMemory struct {
	ID          int64
	Content     string
	Kind        Kind
	Confidence  float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	SourceIDs   []int64
	AccessCount int
}

// ConsolidatedUpdate carries a partial update for an existing consolidated row.
type ConsolidatedUpdate struct {
	Content    *string
	Confidence *float64
	Kind       *Kind
}

// Stats is the read-only snapshot of store counts and pass timestamps.
type Stats struct {
	Raw            int
	Unconsolidated int
	Consolidated   int
	Skills         int
	LastSleepAt    *time.Time
	LastDreamAt    *time.Time
}

// maxFTSIndexChars is the prefix of content handed to FTS for matching by the
// sync triggers in schema.go; full content is always stored and returned
// regardless of length.
const maxFTSIndexChars = 8 * 1024
