package consolidate

import (
	"github.com/cortexmem/cortex/internal/config"
	"github.com/cortexmem/cortex/internal/logging"
	"github.com/cortexmem/cortex/internal/store"
)

// MicroResult reports what a micro pass actually changed, for CLI/RPC
// callers and for the `cortex_sleep` result envelope.
type MicroResult struct {
	DuplicatesCollapsed int
	Decayed             int
	StaleDeleted        int
	MarkedConsolidated  int
}

// MicroPass runs the no-LLM, SQL-only cleanup: exact-duplicate collapse,
// decay, stale-unconsolidated sweep, and mark-by-existing-content. It is
// idempotent; a second run on unchanged state is a no-op.
func MicroPass(s *store.Store, cfg config.ConsolidationConfig) (*MicroResult, error) {
	log := logging.GetLogger("consolidate")
	result := &MicroResult{}

	collapsed, err := s.CollapseExactDuplicateRaw()
	if err != nil {
		return nil, err
	}
	result.DuplicatesCollapsed = collapsed

	decayed, err := s.Decay(cfg.DecayThreshold)
	if err != nil {
		return nil, err
	}
	result.Decayed = decayed

	stale, err := s.DeleteStaleUnconsolidated(cfg.StaleHorizon)
	if err != nil {
		return nil, err
	}
	result.StaleDeleted = stale

	existing, err := s.AllConsolidatedContents()
	if err != nil {
		return nil, err
	}
	marked, err := s.MarkConsolidatedByExistingContent(existing)
	if err != nil {
		return nil, err
	}
	result.MarkedConsolidated = marked

	log.Info("micro pass complete",
		"duplicates_collapsed", result.DuplicatesCollapsed,
		"decayed", result.Decayed,
		"stale_deleted", result.StaleDeleted,
		"marked_consolidated", result.MarkedConsolidated,
	)

	return result, nil
}
