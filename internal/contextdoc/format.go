// Package contextdoc assembles the markdown prompt-injection document
// emitted by `cortex context`, `cortex_context`, and wake.
package contextdoc

import (
	"fmt"
	"strings"
	"time"

	"github.com/cortexmem/cortex/internal/retrieval"
	"github.com/cortexmem/cortex/internal/skills"
	"github.com/cortexmem/cortex/internal/store"
)

// compactEntryCap is the per-entry character cap applied under --compact.
const compactEntryCap = 120

// recentActivityCount caps the Recent Activity section at min(limit, 5).
const recentActivityCount = 5

// Options configures one Format call.
type Options struct {
	Query   string
	Limit   int
	Compact bool
}

// Format renders the five-section document. now is passed in for
// deterministic recency scoring, matching retrieval.Recall's convention.
func Format(s *store.Store, writer *skills.Writer, opts Options, now time.Time) (string, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 15
	}

	var b strings.Builder

	if err := writeRecentActivity(&b, s, limit, opts.Compact, now); err != nil {
		return "", err
	}
	if err := writePatternsAndDecisions(&b, s, opts, limit, now); err != nil {
		return "", err
	}
	if err := writeGlobalKnowledge(&b, s, opts, limit, now); err != nil {
		return "", err
	}
	if writer != nil {
		if err := writeGlobalSkills(&b, writer, opts.Compact); err != nil {
			return "", err
		}
		if err := writeProjectSkills(&b, writer, opts.Compact); err != nil {
			return "", err
		}
	}

	return b.String(), nil
}

func truncate(s string, compact bool) string {
	if !compact || len(s) <= compactEntryCap {
		return s
	}
	return s[:compactEntryCap-1] + "…"
}

func writeRecentActivity(b *strings.Builder, s *store.Store, limit int, compact bool, now time.Time) error {
	b.WriteString("## Recent Activity\n\n")
	if compact {
		b.WriteString("(collapsed)\n\n")
		return nil
	}

	n := recentActivityCount
	if limit < n {
		n = limit
	}
	rows, err := s.RecentRaw(now.Add(-30*24*time.Hour), n)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		b.WriteString("(none)\n\n")
		return nil
	}
	for _, m := range rows {
		fmt.Fprintf(b, "- [%s] %s (%s)\n", m.Kind, truncate(m.Content, compact), m.CreatedAt.Format(time.RFC3339))
	}
	b.WriteString("\n")
	return nil
}

func writePatternsAndDecisions(b *strings.Builder, s *store.Store, opts Options, limit int, now time.Time) error {
	b.WriteString("## Patterns & Decisions\n\n")

	rows, err := projectConsolidated(s, opts.Query, limit, now)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		b.WriteString("(none)\n\n")
		return nil
	}
	for _, r := range rows {
		fmt.Fprintf(b, "- [%s] (confidence %.2f) %s\n", r.Kind, r.Confidence, truncate(r.Content, opts.Compact))
	}
	b.WriteString("\n")
	return nil
}

func writeGlobalKnowledge(b *strings.Builder, s *store.Store, opts Options, limit int, now time.Time) error {
	b.WriteString("## Global Knowledge\n\n")

	globalLimit := limit / 2
	if globalLimit < 1 {
		globalLimit = 1
	}

	rows, err := globalConsolidated(s, opts.Query, globalLimit, now)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		b.WriteString("(none)\n\n")
		return nil
	}
	for _, r := range rows {
		fmt.Fprintf(b, "- [%s] (confidence %.2f) %s\n", r.Kind, r.Confidence, truncate(r.Content, opts.Compact))
	}
	b.WriteString("\n")
	return nil
}

func writeGlobalSkills(b *strings.Builder, writer *skills.Writer, compact bool) error {
	b.WriteString("## Global Skills\n\n")
	if compact {
		b.WriteString("(collapsed)\n\n")
		return nil
	}
	names, err := writer.List(writer.GlobalDir())
	if err != nil {
		return err
	}
	if len(names) == 0 {
		b.WriteString("(none)\n\n")
		return nil
	}
	for _, name := range names {
		fmt.Fprintf(b, "- %s\n", name)
	}
	b.WriteString("\n")
	return nil
}

func writeProjectSkills(b *strings.Builder, writer *skills.Writer, compact bool) error {
	b.WriteString("## Project Skills\n\n")
	if compact {
		b.WriteString("(collapsed)\n\n")
		return nil
	}
	names, err := writer.List(writer.ProjectDir())
	if err != nil {
		return err
	}
	if len(names) == 0 {
		b.WriteString("(none)\n\n")
		return nil
	}
	for _, name := range names {
		fmt.Fprintf(b, "- %s\n", name)
	}
	return nil
}

// consolidatedRow is a source-agnostic view used to render sections 2 and 3.
type consolidatedRow struct {
	Kind       store.Kind
	Confidence float64
	Content    string
}

func projectConsolidated(s *store.Store, query string, limit int, now time.Time) ([]consolidatedRow, error) {
	if strings.TrimSpace(query) == "" {
		rows, err := s.ListConsolidatedByRecency(limit)
		if err != nil {
			return nil, err
		}
		return toRows(rows), nil
	}

	env, err := retrieval.Recall(s, query, limit, now)
	if err != nil {
		return nil, err
	}
	var out []consolidatedRow
	for _, r := range env.Results {
		if r.Source != retrieval.SourceProjectConsolidated {
			continue
		}
		out = append(out, consolidatedRow{Kind: r.Kind, Confidence: r.Confidence, Content: r.Content})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func globalConsolidated(s *store.Store, query string, limit int, now time.Time) ([]consolidatedRow, error) {
	if strings.TrimSpace(query) == "" {
		rows, err := s.GlobalListByRecency(limit)
		if err != nil {
			return nil, err
		}
		return toRows(rows), nil
	}

	env, err := retrieval.Recall(s, query, limit*2, now)
	if err != nil {
		return nil, err
	}
	var out []consolidatedRow
	for _, r := range env.Results {
		if r.Source != retrieval.SourceGlobalConsolidated {
			continue
		}
		out = append(out, consolidatedRow{Kind: r.Kind, Confidence: r.Confidence, Content: r.Content})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func toRows(ms []store.ConsolidatedMemory) []consolidatedRow {
	out := make([]consolidatedRow, len(ms))
	for i, m := range ms {
		out[i] = consolidatedRow{Kind: m.Kind, Confidence: m.Confidence, Content: m.Content}
	}
	return out
}
