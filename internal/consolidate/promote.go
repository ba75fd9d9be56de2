package consolidate

import (
	"github.com/cortexmem/cortex/internal/logging"
	"github.com/cortexmem/cortex/internal/store"
)

// PromoteIDs runs the global-promotion subpass over an explicit id list: for
// each project consolidated id, promote it to the global store unless an
// exact-content match (case-insensitive) already exists there, in which
// case its existing row is bumped instead. The dedup lives in
// store.PromoteGlobal; this is the batch entry point, used by applyPlan for
// a quick-sleep plan's promotions list.
func PromoteIDs(s *store.Store, ids []int64) (int, error) {
	log := logging.GetLogger("consolidate")
	count := 0
	for _, id := range ids {
		if _, err := s.PromoteGlobal(id); err != nil {
			return count, err
		}
		count++
	}
	log.Info("promoted to global store", "count", count)
	return count, nil
}
