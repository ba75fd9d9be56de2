// Package consolidate implements the micro and quick-sleep passes of the
// three-tier consolidation pipeline, plus the global-promotion subpass.
package consolidate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cortexmem/cortex/internal/store"
)

// Plan is the structured document a quick-sleep LLM call returns. It is
// parsed strictly; any field of the wrong shape fails the whole parse with
// LlmProtocolError, never a partial plan.
type Plan struct {
	Consolidations []PlanConsolidation `json:"consolidations"`
	Contradictions []PlanContradiction `json:"contradictions"`
	Promotions     []int64             `json:"promotions"`
	Decays         []int64             `json:"decays"`
	Skills         []PlanSkill         `json:"skills"`
}

// PlanConsolidation is one new-or-updated long-term entry the plan asks the
// engine to write.
type PlanConsolidation struct {
	Content    string  `json:"content"`
	Kind       string  `json:"kind"`
	Confidence float64 `json:"confidence"`
	SourceIDs  []int64 `json:"source_ids"`
	ReplacesID *int64  `json:"replaces_id,omitempty"`
}

// PlanContradiction names a pair of consolidated ids where the second
// supersedes the first.
type PlanContradiction struct {
	SupersededID  int64 `json:"superseded_id"`
	SupersedingID int64 `json:"superseding_id"`
}

// PlanSkill is one skill-file cluster the plan asks SkillWriter to render.
type PlanSkill struct {
	Name            string  `json:"name"`
	Body            string  `json:"body"`
	SourceMemoryIDs []int64 `json:"source_memory_ids"`
}

// LlmProtocolError means the LLM response was non-JSON, empty, or violated
// the plan schema. Quick-sleep downgrades to micro on this.
type LlmProtocolError struct {
	Msg string
	Err error
}

func (e *LlmProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm protocol error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("llm protocol error: %s", e.Msg)
}

func (e *LlmProtocolError) Unwrap() error { return e.Err }

// ParsePlan strictly parses raw LLM output into a Plan, rejecting empty
// responses, non-JSON responses, and schema violations.
func ParsePlan(raw string) (*Plan, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, &LlmProtocolError{Msg: "empty response"}
	}

	// Models sometimes wrap JSON in a fenced code block despite
	// instructions not to; strip a single leading/trailing fence rather
	// than rejecting outright, since that would throw away an otherwise
	// well-formed plan over pure formatting noise.
	trimmed = stripCodeFence(trimmed)

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.DisallowUnknownFields()

	var plan Plan
	if err := dec.Decode(&plan); err != nil {
		return nil, &LlmProtocolError{Msg: "response is not a valid plan document", Err: err}
	}

	if err := validatePlan(&plan); err != nil {
		return nil, err
	}

	return &plan, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.SplitN(s, "\n", 2)
	if len(lines) < 2 {
		return s
	}
	body := lines[1]
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}

func validatePlan(p *Plan) error {
	for i, c := range p.Consolidations {
		if strings.TrimSpace(c.Content) == "" {
			return &LlmProtocolError{Msg: fmt.Sprintf("consolidations[%d].content is empty", i)}
		}
		if !store.ValidKind(c.Kind) {
			return &LlmProtocolError{Msg: fmt.Sprintf("consolidations[%d].kind %q is not a recognized kind", i, c.Kind)}
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			return &LlmProtocolError{Msg: fmt.Sprintf("consolidations[%d].confidence %v is out of [0,1]", i, c.Confidence)}
		}
	}
	for i, s := range p.Skills {
		if strings.TrimSpace(s.Name) == "" {
			return &LlmProtocolError{Msg: fmt.Sprintf("skills[%d].name is empty", i)}
		}
		if strings.TrimSpace(s.Body) == "" {
			return &LlmProtocolError{Msg: fmt.Sprintf("skills[%d].body is empty", i)}
		}
	}
	return nil
}
