package consolidate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/llm"
	"github.com/cortexmem/cortex/internal/logging"
	"github.com/cortexmem/cortex/internal/store"
)

// SkillWriter is the subset of internal/skills.Writer the quick-sleep pass
// needs, kept as a narrow interface here so consolidate does not import
// the skills package.
type SkillWriter interface {
	WriteProject(name, body string, sourceMemoryIDs []int64) error
}

// SleepResult is the `cortex_sleep` result envelope.
type SleepResult struct {
	Consolidated    int
	Promoted        int
	Deleted         int
	SkillsWritten   int
	FellBackToMicro bool
	ScheduleDream   bool

	// SkillNames are the skill clusters this pass produced; the obsolete-file
	// sweep compares existing files against this set.
	SkillNames []string
}

// minGlobalEntriesForAutoDream and globalDreamInterval gate the 24-hour
// global auto-dream rule evaluated at the end of a project quick-sleep.
const (
	minGlobalEntriesForAutoDream = 5
	globalDreamInterval          = 24 * time.Hour
)

// QuickSleep runs the single-LLM-call consolidation pass: collect the
// unconsolidated backlog, ask the model for a structured plan, apply it
// transactionally. If the LLM call fails or returns an unparsable plan it
// falls back to micro semantics so state still improves.
func QuickSleep(ctx context.Context, s *store.Store, provider llm.Provider, writer SkillWriter, cfg config.ConsolidationConfig, now time.Time) (*SleepResult, error) {
	log := logging.GetLogger("consolidate")

	backlog, err := s.UnconsolidatedBacklog(cfg.BatchMax)
	if err != nil {
		return nil, err
	}

	if provider == nil {
		log.Info("no LLM credential configured, falling back to micro pass")
		return fallbackToMicro(s, cfg)
	}

	if len(backlog) == 0 {
		return &SleepResult{}, nil
	}

	existing, err := s.ListConsolidatedByRecency(1000)
	if err != nil {
		return nil, err
	}

	prompt := buildQuickSleepPrompt(backlog, existing)

	raw, err := provider.Complete(ctx, quickSleepSystemPrompt, prompt, cfg.Model, 4096)
	if err != nil {
		log.Warn("llm call failed, falling back to micro pass", "error", err)
		return fallbackToMicro(s, cfg)
	}

	plan, err := ParsePlan(raw)
	if err != nil {
		log.Warn("llm response failed to parse, falling back to micro pass", "error", err)
		return fallbackToMicro(s, cfg)
	}

	result, err := applyPlan(s, writer, plan)
	if err != nil {
		return nil, err
	}

	if err := s.SetLastSleepAt(now.Format(time.RFC3339)); err != nil {
		return nil, err
	}

	globalCount, err := s.GlobalConsolidatedCount()
	if err == nil && globalCount >= minGlobalEntriesForAutoDream {
		lastDream, ok, derr := s.GlobalLastDreamAt()
		if derr == nil {
			if !ok {
				result.ScheduleDream = true
			} else if t, perr := time.Parse(time.RFC3339, lastDream); perr == nil && now.Sub(t) > globalDreamInterval {
				result.ScheduleDream = true
			}
		}
	}

	return result, nil
}

func fallbackToMicro(s *store.Store, cfg config.ConsolidationConfig) (*SleepResult, error) {
	micro, err := MicroPass(s, cfg)
	if err != nil {
		return nil, err
	}
	return &SleepResult{
		Deleted:         micro.Decayed + micro.StaleDeleted,
		FellBackToMicro: true,
	}, nil
}

// applyPlan applies the parsed plan transactionally per database: all
// consolidated.db mutations in one transaction, all raw.db marks in
// another, committed together at the end so a mid-plan failure rolls both
// back rather than leaving a half-applied plan behind. Promotions (the
// global database) and skill files follow only after both commits.
func applyPlan(s *store.Store, writer SkillWriter, plan *Plan) (*SleepResult, error) {
	result := &SleepResult{}

	consTx, err := s.BeginConsolidatedTx()
	if err != nil {
		return nil, err
	}
	defer consTx.Rollback()

	var markIDs []int64
	for _, c := range plan.Consolidations {
		if c.ReplacesID != nil {
			upd := store.ConsolidatedUpdate{Content: &c.Content, Confidence: &c.Confidence}
			if err := consTx.Update(*c.ReplacesID, upd); err != nil {
				return nil, err
			}
		} else {
			if _, err := consTx.Insert(c.Content, c.Kind, c.Confidence, c.SourceIDs); err != nil {
				return nil, err
			}
		}
		result.Consolidated++
		markIDs = append(markIDs, c.SourceIDs...)
	}

	for _, contradiction := range plan.Contradictions {
		if err := consTx.Delete(contradiction.SupersededID); err != nil {
			return nil, err
		}
		result.Deleted++
	}

	for _, id := range plan.Decays {
		if err := consTx.Delete(id); err != nil {
			return nil, err
		}
		result.Deleted++
	}

	rawTx, err := s.BeginRawTx()
	if err != nil {
		return nil, err
	}
	defer rawTx.Rollback()

	if err := rawTx.MarkConsolidated(markIDs); err != nil {
		return nil, err
	}

	if err := consTx.Commit(); err != nil {
		return nil, err
	}
	if err := rawTx.Commit(); err != nil {
		return nil, err
	}

	promoted, err := PromoteIDs(s, plan.Promotions)
	if err != nil {
		return nil, err
	}
	result.Promoted = promoted

	if writer != nil {
		for _, skill := range plan.Skills {
			if err := writer.WriteProject(skill.Name, skill.Body, skill.SourceMemoryIDs); err != nil {
				return nil, err
			}
			result.SkillsWritten++
			result.SkillNames = append(result.SkillNames, skill.Name)
		}
	}

	return result, nil
}

const quickSleepSystemPrompt = `You are the consolidation engine for Cortex, a repo-local memory store for AI coding agents. You will be given a batch of raw episodic observations and a snapshot of existing long-term (consolidated) entries. Respond with ONLY a single JSON object matching this shape, no prose, no markdown fences:

{
  "consolidations": [{"content": "...", "kind": "bugfix|decision|pattern|preference|observation", "confidence": 0.0-1.0, "source_ids": [1,2], "replaces_id": null}],
  "contradictions": [{"superseded_id": 1, "superseding_id": 2}],
  "promotions": [1, 2],
  "decays": [3],
  "skills": [{"name": "...", "body": "...", "source_memory_ids": [1,2]}]
}

Merge near-duplicate observations into a single higher-confidence consolidation. Only promote entries that are durable cross-project knowledge: preferences, identity, tool choices, habits. Only decay entries that are clearly obsolete or wrong.`

func buildQuickSleepPrompt(backlog []store.RawMemory, existing []store.ConsolidatedMemory) string {
	var b strings.Builder
	b.WriteString("## Unconsolidated raw observations\n\n")
	for _, m := range backlog {
		fmt.Fprintf(&b, "- id=%d kind=%s: %s\n", m.ID, m.Kind, m.Content)
	}

	b.WriteString("\n## Existing consolidated entries\n\n")
	if len(existing) == 0 {
		b.WriteString("(none)\n")
	}
	for _, m := range existing {
		fmt.Fprintf(&b, "- id=%d kind=%s confidence=%.2f: %s\n", m.ID, m.Kind, m.Confidence, m.Content)
	}

	return b.String()
}
