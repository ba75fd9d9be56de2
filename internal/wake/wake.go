// Package wake implements the session-start catch-up sequence used by the
// `cortex wake` CLI verb.
package wake

import (
	"context"
	"time"

	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/consolidate"
	"github.com/cortexmem/cortex/internal/contextdoc"
	"github.com/cortexmem/cortex/internal/llm"
	"github.com/cortexmem/cortex/internal/logging"
	"github.com/cortexmem/cortex/internal/skills"
	"github.com/cortexmem/cortex/internal/store"
)

// Result reports what wake did before emitting context.
type Result struct {
	RanQuickSleep bool
	RanMicro      bool
	Sleep         *consolidate.SleepResult
	Micro         *consolidate.MicroResult
	Context       string
}

// Run performs: (1) if unconsolidated backlog exists and an LLM provider is
// configured, quick-sleep; otherwise micro pass; (2) emit a context
// document. Safe to call every session start; idempotent when the backlog
// is empty.
func Run(ctx context.Context, s *store.Store, provider llm.Provider, writer *skills.Writer, cfg config.ConsolidationConfig, now time.Time) (*Result, error) {
	log := logging.GetLogger("wake")
	result := &Result{}

	backlog, err := s.UnconsolidatedCount()
	if err != nil {
		return nil, err
	}

	if backlog > 0 {
		var sleepWriter consolidate.SkillWriter
		if writer != nil {
			sleepWriter = writer
		}
		if provider != nil {
			sleep, err := consolidate.QuickSleep(ctx, s, provider, sleepWriter, cfg, now)
			if err != nil {
				return nil, err
			}
			result.Sleep = sleep
			result.RanQuickSleep = !sleep.FellBackToMicro
			result.RanMicro = sleep.FellBackToMicro
		} else {
			micro, err := consolidate.MicroPass(s, cfg)
			if err != nil {
				return nil, err
			}
			result.Micro = micro
			result.RanMicro = true
		}
	}

	doc, err := contextdoc.Format(s, writer, contextdoc.Options{Limit: 15}, now)
	if err != nil {
		return nil, err
	}
	result.Context = doc

	log.Info("wake complete", "backlog", backlog, "ran_quick_sleep", result.RanQuickSleep, "ran_micro", result.RanMicro)
	return result, nil
}
