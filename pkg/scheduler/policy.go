package scheduler

import (
	"math/rand"
	"time"

	"github.com/cuemby/dswarm/pkg/types"
)

// Candidate is one worker that has already passed Fits, along with the
// per-policy facts a Pick call needs to rank it.
type Candidate struct {
	Worker *types.Worker

	// CachedBytes is the sum of this task's input bytes the worker
	// already holds cached, used by PolicyFiles (spec §4.6).
	CachedBytes int64

	// AvgTaskTime is the worker's (or its category's) mean completion
	// time; zero means unknown, which falls PolicyTime back to FCFS.
	AvgTaskTime time.Duration
}

// Pick selects one candidate under the given policy. Candidates must
// already satisfy Fits; Pick never re-checks fit. order is assumed to
// already be in the caller's preferred FCFS order (e.g. hash-iteration
// order over the worker table).
func Pick(policy types.SchedulingPolicy, candidates []*Candidate) *Candidate {
	if len(candidates) == 0 {
		return nil
	}
	switch policy {
	case types.PolicyFiles:
		return pickFiles(candidates)
	case types.PolicyTime:
		return pickTime(candidates)
	case types.PolicyWorstFit:
		return pickWorstFit(candidates)
	case types.PolicyRandom:
		return candidates[rand.Intn(len(candidates))]
	default: // FCFS, and any unrecognized policy
		return candidates[0]
	}
}

func pickFiles(cs []*Candidate) *Candidate {
	best := cs[0]
	for _, c := range cs[1:] {
		if c.CachedBytes > best.CachedBytes {
			best = c
			continue
		}
		if c.CachedBytes == best.CachedBytes && worstFitLess(best, c) {
			best = c
		}
	}
	return best
}

func pickTime(cs []*Candidate) *Candidate {
	var best *Candidate
	for _, c := range cs {
		if c.AvgTaskTime <= 0 {
			continue
		}
		if best == nil || c.AvgTaskTime < best.AvgTaskTime {
			best = c
		}
	}
	if best != nil {
		return best
	}
	return cs[0] // no worker has a mean time yet: fall back to FCFS
}

func pickWorstFit(cs []*Candidate) *Candidate {
	best := cs[0]
	for _, c := range cs[1:] {
		if worstFitLess(best, c) {
			best = c
		}
	}
	return best
}

// worstFitLess reports whether b has strictly more free resources than
// a, compared lexicographically cores > memory > disk > gpus.
func worstFitLess(a, b *Candidate) bool {
	fa, fb := freeVector(a.Worker), freeVector(b.Worker)
	for i := range fa {
		if fa[i] != fb[i] {
			return fb[i] > fa[i]
		}
	}
	return false
}

func freeVector(w *types.Worker) [4]int64 {
	return [4]int64{
		w.Resources.Cores.Free(),
		w.Resources.Memory.Free(),
		w.Resources.Disk.Free(),
		w.Resources.GPUs.Free(),
	}
}
