// Package category implements the per-category online allocation
// learning loop from spec §4.5: accumulating measured task resource
// usage and deriving a first_allocation (what a fresh attempt should
// request) and max_allocation (the retry ceiling).
//
// Grounded on spec §4.5 and the category/allocation-mode vocabulary in
// _examples/original_source/dataswarm/src/manager/ds_manager.c
// (CATEGORY_ALLOCATION_MODE_{FIXED,MAX,MIN_WASTE,MAX_THROUGHPUT}).
package category

import (
	"sort"
	"sync"

	"github.com/cuemby/dswarm/pkg/types"
)

// percentile choices for the two learning modes. MIN_WASTE picks a
// high percentile so most tasks succeed on the first try, minimizing
// wasted re-dispatch work. MAX_THROUGHPUT picks a lower percentile so
// more tasks pack onto a worker concurrently, accepting more retries
// in exchange for higher aggregate concurrency. These are the same
// trade-off CCTools' category allocation modes describe; the exact
// percentile values are this port's choice, not a transcription of the
// original's bucketed-histogram search.
const (
	minWastePercentile      = 0.95
	maxThroughputPercentile = 0.6
)

// Engine owns the set of categories known to a manager and computes
// allocations for them. It is not safe to share across managers but is
// safe for concurrent use within one.
type Engine struct {
	mu         sync.Mutex
	categories map[string]*types.Category
}

// NewEngine creates an empty category engine. The "default" category
// always exists.
func NewEngine() *Engine {
	e := &Engine{categories: make(map[string]*types.Category)}
	e.getOrCreate(types.DefaultCategory)
	return e
}

// getOrCreate must be called with mu held.
func (e *Engine) getOrCreate(name string) *types.Category {
	c, ok := e.categories[name]
	if !ok {
		c = &types.Category{Name: name, Mode: types.AllocationMax}
		e.categories[name] = c
	}
	return c
}

// Get returns a category by name, creating it with default settings
// if it doesn't exist yet.
func (e *Engine) Get(name string) *types.Category {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.getOrCreate(name)
}

// SetMode changes a category's allocation mode.
func (e *Engine) SetMode(name string, mode types.AllocationMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.getOrCreate(name).Mode = mode
}

// SetMaxAllocation installs a user-declared hard ceiling.
func (e *Engine) SetMaxAllocation(name string, max types.ResourceSpec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.getOrCreate(name)
	c.MaxAllocation = max
	c.HasMaxCap = true
}

// SetFastAbortMultiplier sets the per-category fast-abort factor
// (spec §4.9); 0 disables fast-abort for the category.
func (e *Engine) SetFastAbortMultiplier(name string, m float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.getOrCreate(name).FastAbortMultiplier = m
}

// RecordCompletion folds a completed task's measured peak resources
// and runtime into its category's running statistics (spec §4.5).
func (e *Engine) RecordCompletion(name string, measured types.ResourceSpec, runtimeSeconds float64, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.getOrCreate(name)

	c.Samples = append(c.Samples, measured)
	c.MaxSeen = maxSpec(c.MaxSeen, measured)

	if success {
		c.CompletedCount++
		c.TotalRunTime += runtimeSeconds
	}
}

// FirstAllocation returns the size a fresh attempt in this category
// should request, given explicit per-task overrides (any nonzero
// field in explicit wins over the learned value).
func (e *Engine) FirstAllocation(name string, explicit types.ResourceSpec) types.ResourceSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.getOrCreate(name)
	return mergeExplicit(explicit, e.computeFirst(c))
}

// MaxAllocation returns the hard ceiling for retries in this category,
// merged with any explicit per-task overrides.
func (e *Engine) MaxAllocation(name string, explicit types.ResourceSpec) types.ResourceSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.getOrCreate(name)
	return mergeExplicit(explicit, e.computeMax(c))
}

// computeFirst must be called with mu held.
func (e *Engine) computeFirst(c *types.Category) types.ResourceSpec {
	if c.Mode == types.AllocationFixed || c.Mode == types.AllocationMax {
		return e.computeMax(c)
	}
	if len(c.Samples) == 0 {
		// No samples yet: fall back to the user's declared max, if
		// any, else leave zero so the scheduler takes the whole
		// worker (spec §4.5 "worker-fit defaults", §4.6).
		if c.HasMaxCap {
			return c.MaxAllocation
		}
		return types.ResourceSpec{}
	}

	pct := minWastePercentile
	if c.Mode == types.AllocationMaxThroughput {
		pct = maxThroughputPercentile
	}

	return types.ResourceSpec{
		Cores:    percentileInt(c.Samples, pct, func(r types.ResourceSpec) int64 { return r.Cores }),
		MemoryMB: percentileInt(c.Samples, pct, func(r types.ResourceSpec) int64 { return r.MemoryMB }),
		DiskMB:   percentileInt(c.Samples, pct, func(r types.ResourceSpec) int64 { return r.DiskMB }),
		GPUs:     percentileInt(c.Samples, pct, func(r types.ResourceSpec) int64 { return r.GPUs }),
	}
}

// computeMax must be called with mu held.
func (e *Engine) computeMax(c *types.Category) types.ResourceSpec {
	if c.HasMaxCap {
		return c.MaxAllocation
	}
	return c.MaxSeen
}

// NextLevel implements the retry-escalation rule from spec §4.4/§4.5:
// FIRST exhausts to MAX, MAX exhausts to ERROR (give up).
func NextLevel(current types.RequestLevel) types.RequestLevel {
	switch current {
	case types.RequestFirst:
		return types.RequestMax
	case types.RequestMax:
		return types.RequestError
	default:
		return types.RequestError
	}
}

func mergeExplicit(explicit, learned types.ResourceSpec) types.ResourceSpec {
	out := learned
	if explicit.Cores > 0 {
		out.Cores = explicit.Cores
	}
	if explicit.MemoryMB > 0 {
		out.MemoryMB = explicit.MemoryMB
	}
	if explicit.DiskMB > 0 {
		out.DiskMB = explicit.DiskMB
	}
	if explicit.GPUs > 0 {
		out.GPUs = explicit.GPUs
	}
	if explicit.WallTime > 0 {
		out.WallTime = explicit.WallTime
	}
	if !explicit.EndTime.IsZero() {
		out.EndTime = explicit.EndTime
	}
	return out
}

func maxSpec(a, b types.ResourceSpec) types.ResourceSpec {
	return types.ResourceSpec{
		Cores:    max64(a.Cores, b.Cores),
		MemoryMB: max64(a.MemoryMB, b.MemoryMB),
		DiskMB:   max64(a.DiskMB, b.DiskMB),
		GPUs:     max64(a.GPUs, b.GPUs),
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// percentileInt extracts one dimension from every sample, sorts it,
// and returns the value at index floor(pct*n), clamped to the last
// element.
func percentileInt(samples []types.ResourceSpec, pct float64, pick func(types.ResourceSpec) int64) int64 {
	values := make([]int64, len(samples))
	for i, s := range samples {
		values[i] = pick(s)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	idx := int(pct * float64(len(values)))
	if idx >= len(values) {
		idx = len(values) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return values[idx]
}
