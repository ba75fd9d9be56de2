package retrieval

import (
	"sort"
	"time"

	"github.com/cortexmem/cortex/internal/store"
)

// Source tags which leg of the unified recall a Result came from.
type Source string

const (
	SourceProjectConsolidated Source = "project_consolidated"
	SourceGlobalConsolidated  Source = "global_consolidated"
	SourceRecentRaw           Source = "recent_raw"
)

// Warning labels a non-fatal degradation surfaced in a recall Envelope.
type Warning string

const (
	// DegradedQuery means the query couldn't be parsed as an FTS5
	// expression and recall fell back to recency mode.
	DegradedQuery Warning = "degraded_query"
	// PartialResults means one store leg failed and was dropped rather
	// than failing the whole recall.
	PartialResults Warning = "partial_results"
)

// Result is one ranked row returned from recall, independent of which store
// it came from. Global-store ids are negated so callers can tell a project
// id from a global one without a side channel.
type Result struct {
	ID         int64
	Content    string
	Kind       store.Kind
	Confidence float64
	UpdatedAt  time.Time
	Score      float64
	Source     Source
}

// Envelope is the outcome of a recall call, including any degradation
// warnings.
type Envelope struct {
	Results  []Result
	Warnings []Warning
}

// recentRawWindow bounds the "recent episodic" leg of recall.
const recentRawWindow = 7 * 24 * time.Hour

// Recall unifies ranked search across the project consolidated store, the
// global consolidated store, and recently-written raw memory, merging all
// three by descending score. now is passed in rather than read from
// time.Now() so scoring is deterministic in tests.
func Recall(s *store.Store, rawQuery string, limit int, now time.Time) (*Envelope, error) {
	if limit <= 0 {
		limit = 15
	}

	ftsQuery, perr := parseQuery(rawQuery)
	env := &Envelope{}
	relevanceMode := rawQuery != "" && perr == nil && ftsQuery != ""
	if perr != nil {
		env.Warnings = append(env.Warnings, DegradedQuery)
	}

	var results []Result

	if relevanceMode {
		projectRows, err := s.SearchConsolidatedFTS(ftsQuery, limit)
		if err != nil {
			return nil, &store.StoreUnavailableError{Path: "consolidated.db", Err: err}
		}
		for _, r := range projectRows {
			results = append(results, Result{
				ID:         r.Memory.ID,
				Content:    r.Memory.Content,
				Kind:       r.Memory.Kind,
				Confidence: r.Memory.Confidence,
				UpdatedAt:  r.Memory.UpdatedAt,
				Score:      relevanceScore(r.BM25, r.Memory.Confidence, r.Memory.UpdatedAt, now),
				Source:     SourceProjectConsolidated,
			})
		}

		globalRows, gerr := s.GlobalSearchFTS(ftsQuery, limit)
		if gerr != nil {
			env.Warnings = append(env.Warnings, PartialResults)
		}
		for _, r := range globalRows {
			results = append(results, Result{
				ID:         -r.Memory.ID,
				Content:    r.Memory.Content,
				Kind:       r.Memory.Kind,
				Confidence: r.Memory.Confidence,
				UpdatedAt:  r.Memory.UpdatedAt,
				Score:      relevanceScore(r.BM25, r.Memory.Confidence, r.Memory.UpdatedAt, now),
				Source:     SourceGlobalConsolidated,
			})
		}
	} else {
		projectRows, err := s.ListConsolidatedByRecency(limit)
		if err != nil {
			return nil, &store.StoreUnavailableError{Path: "consolidated.db", Err: err}
		}
		for _, m := range projectRows {
			results = append(results, Result{
				ID:         m.ID,
				Content:    m.Content,
				Kind:       m.Kind,
				Confidence: m.Confidence,
				UpdatedAt:  m.UpdatedAt,
				Score:      recencyModeScore(m.UpdatedAt, now),
				Source:     SourceProjectConsolidated,
			})
		}

		globalRows, gerr := s.GlobalListByRecency(limit)
		if gerr != nil {
			env.Warnings = append(env.Warnings, PartialResults)
		}
		for _, m := range globalRows {
			results = append(results, Result{
				ID:         -m.ID,
				Content:    m.Content,
				Kind:       m.Kind,
				Confidence: m.Confidence,
				UpdatedAt:  m.UpdatedAt,
				Score:      recencyModeScore(m.UpdatedAt, now),
				Source:     SourceGlobalConsolidated,
			})
		}
	}

	since := now.Add(-recentRawWindow)
	if relevanceMode {
		rawRows, rerr := s.SearchRawFTS(ftsQuery, since, limit)
		if rerr != nil {
			env.Warnings = append(env.Warnings, PartialResults)
		}
		for _, r := range rawRows {
			results = append(results, Result{
				ID:         r.Memory.ID,
				Content:    r.Memory.Content,
				Kind:       r.Memory.Kind,
				Confidence: 0,
				UpdatedAt:  r.Memory.CreatedAt,
				Score:      relevanceScore(r.BM25, 0, r.Memory.CreatedAt, now),
				Source:     SourceRecentRaw,
			})
		}
	} else {
		rawRows, rerr := s.RecentRaw(since, limit)
		if rerr != nil {
			env.Warnings = append(env.Warnings, PartialResults)
		}
		for _, m := range rawRows {
			results = append(results, Result{
				ID:         m.ID,
				Content:    m.Content,
				Kind:       m.Kind,
				Confidence: 0,
				UpdatedAt:  m.CreatedAt,
				Score:      recencyModeScore(m.CreatedAt, now),
				Source:     SourceRecentRaw,
			})
		}
	}

	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	env.Results = results

	bumpAccessCounts(s, results)
	return env, nil
}

// bumpAccessCounts records retrieval hits best-effort; a lagging count under
// contention is acceptable.
func bumpAccessCounts(s *store.Store, results []Result) {
	var rawIDs, consolidatedIDs []int64
	for _, r := range results {
		switch r.Source {
		case SourceRecentRaw:
			rawIDs = append(rawIDs, r.ID)
		case SourceProjectConsolidated:
			consolidatedIDs = append(consolidatedIDs, r.ID)
		}
	}
	s.BumpRawAccessCount(rawIDs)
	s.BumpConsolidatedAccessCount(consolidatedIDs)
}

// sortResults orders by descending score, then by descending UpdatedAt, then
// project-before-global on exact ties, then ascending id: a stable total
// order so recall output is reproducible.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		aProject := a.Source != SourceGlobalConsolidated
		bProject := b.Source != SourceGlobalConsolidated
		if aProject != bProject {
			return aProject
		}
		return a.ID < b.ID
	})
}
