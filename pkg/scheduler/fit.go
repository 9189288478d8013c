package scheduler

import (
	"time"

	"github.com/cuemby/dswarm/pkg/resources"
	"github.com/cuemby/dswarm/pkg/types"
)

// FitParams carries the task-side facts the seven fit conditions need
// beyond what's already on types.Worker (spec §4.6).
type FitParams struct {
	Box            resources.Box
	Features       []string
	MinRunningTime time.Duration
	TaskEndTime    time.Time // zero = no deadline
	Overcommit     resources.Overcommit
	Blocked        bool // host is blocklisted and not expired
	FactoryOverCap bool // worker's factory is over its advertised max
	Now            time.Time
}

// Fits reports whether w satisfies all seven conditions in spec §4.6
// for dispatching a task needing p.Box/p.Features/etc.
func Fits(w *types.Worker, p FitParams) bool {
	if w.State != types.WorkerReady || w.Resources.Workers.Total < 1 {
		return false
	}
	if w.Draining {
		return false
	}
	if p.FactoryOverCap {
		return false
	}
	if p.Blocked {
		return false
	}
	if !fitsResources(w, p.Box, p.Overcommit) {
		return false
	}
	if !fitsDeadline(w, p) {
		return false
	}
	for _, f := range p.Features {
		if !w.HasFeature(f) {
			return false
		}
	}
	return true
}

func fitsResources(w *types.Worker, box resources.Box, oc resources.Overcommit) bool {
	r := w.Resources
	if r.Cores.InUse+box.Cores > oc.EffectiveCapacity(r.Cores.Total, false) {
		return false
	}
	if r.Memory.InUse+box.MemoryMB > oc.EffectiveCapacity(r.Memory.Total, false) {
		return false
	}
	// disk is never overcommitted (spec §4.2, §8).
	if r.Disk.InUse+box.DiskMB > r.Disk.Total {
		return false
	}
	if box.GPUs > 0 && r.GPUs.InUse+box.GPUs > oc.EffectiveCapacity(r.GPUs.Total, false) {
		return false
	}
	return true
}

func fitsDeadline(w *types.Worker, p FitParams) bool {
	if w.EndTime.IsZero() {
		return true
	}
	deadline := p.Now.Add(p.MinRunningTime)
	if !p.TaskEndTime.IsZero() && p.TaskEndTime.After(deadline) {
		deadline = p.TaskEndTime
	}
	return !w.EndTime.Before(deadline)
}
