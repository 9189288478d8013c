package catalog

import (
	"time"

	"github.com/cuemby/dswarm/pkg/types"
)

// SelectTrimTargets picks which idle workers (zero running tasks) to
// disconnect so a factory's connected count drops to its advertised
// cap. idleWorkerAddrs should list only workers with no committed
// tasks, in the order the caller prefers to drop them (spec §4.11).
func SelectTrimTargets(f *types.FactoryInfo, idleWorkerAddrs []string) []string {
	over := f.ConnectedWorkers - f.MaxWorkers
	if over <= 0 {
		return nil
	}
	if over > len(idleWorkerAddrs) {
		over = len(idleWorkerAddrs)
	}
	return idleWorkerAddrs[:over]
}

// ShouldDropFactory reports whether a factory has gone unseen across a
// full query cycle with no workers still connected, and so should be
// removed from the persisted factory table (spec §4.11).
func ShouldDropFactory(f *types.FactoryInfo, now time.Time, queryInterval time.Duration) bool {
	return f.ConnectedWorkers == 0 && now.Sub(f.SeenAtCatalog) > queryInterval
}
