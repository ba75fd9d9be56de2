// Package dream implements the deep reflection pass: cross-session pattern
// mining, meta-notes, and skill-file regeneration from the full consolidated
// store.
package dream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cortexmem/cortex/internal/llm"
	"github.com/cortexmem/cortex/internal/logging"
	"github.com/cortexmem/cortex/internal/store"
)

// maxConfidenceDelta bounds how much a single dream pass may move a
// consolidated row's confidence, in either direction.
const maxConfidenceDelta = 0.2

// SkillWriter is the subset of internal/skills.Writer the dream pass needs
// (both project and global targets, since dream can run with --global).
type SkillWriter interface {
	WriteProject(name, body string, sourceMemoryIDs []int64) error
	WriteGlobal(name, body string, sourceMemoryIDs []int64) error
}

// Result summarizes what one dream pass did.
type Result struct {
	ClustersSurveyed      int
	PatternsFound         int
	MetaNotesWritten      int
	ConfidenceAdjustments int
	SkillsWritten         int

	// SkillNames are the skill clusters the Rewrite phase produced; the
	// obsolete-file sweep compares existing files against this set.
	SkillNames []string
}

// survey groups consolidated rows by kind for the Survey phase.
type survey struct {
	ByKind map[store.Kind][]store.ConsolidatedMemory
	Total  int
}

func surveyStore(s *store.Store, global bool) (*survey, error) {
	var rows []store.ConsolidatedMemory
	var err error
	if global {
		rows, err = s.GlobalListByRecency(100000)
	} else {
		rows, err = s.ListConsolidatedByRecency(100000)
	}
	if err != nil {
		return nil, err
	}

	sv := &survey{ByKind: make(map[store.Kind][]store.ConsolidatedMemory), Total: len(rows)}
	for _, r := range rows {
		sv.ByKind[r.Kind] = append(sv.ByKind[r.Kind], r)
	}
	return sv, nil
}

// mineResponse is the structured output of the Mine phase's LLM call.
type mineResponse struct {
	Patterns []struct {
		Description string  `json:"description"`
		MemberIDs   []int64 `json:"member_ids"`
	} `json:"patterns"`
	Contradictions []struct {
		A int64 `json:"a"`
		B int64 `json:"b"`
	} `json:"contradictions"`
	MetaNotes []struct {
		Content    string  `json:"content"`
		Kind       string  `json:"kind"`
		Confidence float64 `json:"confidence"`
	} `json:"meta_notes"`
	ConfidenceAdjustments []struct {
		ID    int64   `json:"id"`
		Delta float64 `json:"delta"`
	} `json:"confidence_adjustments"`
}

// rewriteResponse is the structured output of the Rewrite phase's LLM call.
type rewriteResponse struct {
	Skills []struct {
		Name            string  `json:"name"`
		Body            string  `json:"body"`
		SourceMemoryIDs []int64 `json:"source_memory_ids"`
	} `json:"skills"`
}

// Run executes the Survey/Mine/Rewrite sequence and records last_dream_at
// on success.
func Run(ctx context.Context, s *store.Store, provider llm.Provider, writer SkillWriter, global bool, model string, now time.Time) (*Result, error) {
	log := logging.GetLogger("dream")
	result := &Result{}

	if provider == nil {
		return nil, fmt.Errorf("dream requires an LLM credential")
	}

	sv, err := surveyStore(s, global)
	if err != nil {
		return nil, err
	}
	result.ClustersSurveyed = len(sv.ByKind)

	mined, err := mine(ctx, provider, sv, model)
	if err != nil {
		// Abort with no mutation; a failed mine phase must not touch state.
		return nil, err
	}
	result.PatternsFound = len(mined.Patterns)

	for _, note := range mined.MetaNotes {
		kind := note.Kind
		if !store.ValidKind(kind) {
			kind = string(store.KindPattern)
		}
		confidence := note.Confidence
		if confidence <= 0 {
			confidence = 0.5
		}
		var insertErr error
		if global {
			_, insertErr = s.InsertGlobalConsolidated(note.Content, kind, confidence)
		} else {
			_, insertErr = s.InsertConsolidated(note.Content, kind, confidence, nil)
		}
		if insertErr != nil {
			return nil, insertErr
		}
		result.MetaNotesWritten++
	}

	for _, adj := range mined.ConfidenceAdjustments {
		delta := adj.Delta
		if delta > maxConfidenceDelta {
			delta = maxConfidenceDelta
		}
		if delta < -maxConfidenceDelta {
			delta = -maxConfidenceDelta
		}
		var current *store.ConsolidatedMemory
		var getErr error
		if global {
			current, getErr = s.GlobalGet(adj.ID)
		} else {
			current, getErr = s.GetConsolidated(adj.ID)
		}
		if getErr != nil || current == nil {
			continue
		}
		newConfidence := current.Confidence + delta
		upd := store.ConsolidatedUpdate{Confidence: &newConfidence}
		var updErr error
		if global {
			updErr = s.GlobalUpdate(adj.ID, upd)
		} else {
			updErr = s.UpdateConsolidated(adj.ID, upd)
		}
		if updErr != nil {
			return nil, updErr
		}
		result.ConfidenceAdjustments++
	}

	rewritten, err := rewrite(ctx, provider, sv, mined, model)
	if err != nil {
		return nil, err
	}

	if writer != nil {
		for _, skill := range rewritten.Skills {
			var writeErr error
			if global {
				writeErr = writer.WriteGlobal(skill.Name, skill.Body, skill.SourceMemoryIDs)
			} else {
				writeErr = writer.WriteProject(skill.Name, skill.Body, skill.SourceMemoryIDs)
			}
			if writeErr != nil {
				return nil, writeErr
			}
			result.SkillsWritten++
			result.SkillNames = append(result.SkillNames, skill.Name)
		}
	}

	var setErr error
	if global {
		setErr = s.SetGlobalLastDreamAt(now.Format(time.RFC3339))
	} else {
		setErr = s.SetLastDreamAt(now.Format(time.RFC3339))
	}
	if setErr != nil {
		return nil, setErr
	}

	log.Info("dream pass complete",
		"global", global,
		"patterns_found", result.PatternsFound,
		"meta_notes_written", result.MetaNotesWritten,
		"confidence_adjustments", result.ConfidenceAdjustments,
		"skills_written", result.SkillsWritten,
	)

	return result, nil
}

func mine(ctx context.Context, provider llm.Provider, sv *survey, model string) (*mineResponse, error) {
	prompt := buildSurveyPrompt(sv)
	raw, err := provider.Complete(ctx, mineSystemPrompt, prompt, model, 4096)
	if err != nil {
		return nil, fmt.Errorf("mine phase: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("mine phase: empty response")
	}
	var resp mineResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("mine phase: %w", err)
	}
	return &resp, nil
}

func rewrite(ctx context.Context, provider llm.Provider, sv *survey, mined *mineResponse, model string) (*rewriteResponse, error) {
	prompt := buildRewritePrompt(sv, mined)
	raw, err := provider.Complete(ctx, rewriteSystemPrompt, prompt, model, 4096)
	if err != nil {
		return nil, fmt.Errorf("rewrite phase: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &rewriteResponse{}, nil
	}
	var resp rewriteResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("rewrite phase: %w", err)
	}
	return &resp, nil
}

const mineSystemPrompt = `You are Cortex's deep-reflection engine. Given a survey of a memory store grouped by kind, find cross-cluster patterns, unresolved contradictions, and meta-observations about tendencies across sessions. Respond with ONLY a JSON object: {"patterns":[{"description":"...","member_ids":[1,2]}],"contradictions":[{"a":1,"b":2}],"meta_notes":[{"content":"...","kind":"pattern","confidence":0.7}],"confidence_adjustments":[{"id":1,"delta":0.1}]}`

const rewriteSystemPrompt = `You are Cortex's skill-file writer. Given the mined patterns and the underlying survey, produce a skill-file set keyed by stable cluster names. Respond with ONLY a JSON object: {"skills":[{"name":"kebab-case-name","body":"markdown body","source_memory_ids":[1,2]}]}`

func buildSurveyPrompt(sv *survey) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total consolidated entries: %d\n\n", sv.Total)
	for kind, rows := range sv.ByKind {
		fmt.Fprintf(&b, "## %s (%d entries)\n", kind, len(rows))
		for _, r := range rows {
			fmt.Fprintf(&b, "- id=%d confidence=%.2f: %s\n", r.ID, r.Confidence, r.Content)
		}
	}
	return b.String()
}

func buildRewritePrompt(sv *survey, mined *mineResponse) string {
	var b strings.Builder
	b.WriteString(buildSurveyPrompt(sv))
	b.WriteString("\n## Mined patterns\n")
	for _, p := range mined.Patterns {
		fmt.Fprintf(&b, "- %s (members: %v)\n", p.Description, p.MemberIDs)
	}
	return b.String()
}
