package category

import (
	"testing"

	"github.com/cuemby/dswarm/pkg/types"
)

func TestNextLevelEscalation(t *testing.T) {
	if got := NextLevel(types.RequestFirst); got != types.RequestMax {
		t.Fatalf("expected MAX after FIRST exhaustion, got %s", got)
	}
	if got := NextLevel(types.RequestMax); got != types.RequestError {
		t.Fatalf("expected ERROR after MAX exhaustion, got %s", got)
	}
}

func TestFirstAllocationFallsBackToMaxCapWithoutSamples(t *testing.T) {
	e := NewEngine()
	e.SetMode("big", types.AllocationMax)
	e.SetMaxAllocation("big", types.ResourceSpec{Cores: 4, MemoryMB: 4096})

	first := e.FirstAllocation("big", types.ResourceSpec{})
	if first.Cores != 4 || first.MemoryMB != 4096 {
		t.Fatalf("expected fallback to max allocation, got %+v", first)
	}
}

func TestFirstAllocationNoSamplesNoCapIsZero(t *testing.T) {
	e := NewEngine()
	e.SetMode("small", types.AllocationMinWaste)
	first := e.FirstAllocation("small", types.ResourceSpec{})
	if first.Cores != 0 || first.MemoryMB != 0 {
		t.Fatalf("expected zero-value allocation (whole worker), got %+v", first)
	}
}

func TestExplicitOverridesLearned(t *testing.T) {
	e := NewEngine()
	e.SetMaxAllocation("x", types.ResourceSpec{Cores: 4})
	first := e.FirstAllocation("x", types.ResourceSpec{Cores: 2})
	if first.Cores != 2 {
		t.Fatalf("expected explicit override of 2 cores, got %d", first.Cores)
	}
}

func TestRecordCompletionUpdatesMaxSeenAndStats(t *testing.T) {
	e := NewEngine()
	e.RecordCompletion("c", types.ResourceSpec{Cores: 2, MemoryMB: 512}, 10.0, true)
	e.RecordCompletion("c", types.ResourceSpec{Cores: 4, MemoryMB: 256}, 20.0, true)

	c := e.Get("c")
	if c.MaxSeen.Cores != 4 || c.MaxSeen.MemoryMB != 512 {
		t.Fatalf("unexpected max seen: %+v", c.MaxSeen)
	}
	if c.CompletedCount != 2 {
		t.Fatalf("expected 2 completions, got %d", c.CompletedCount)
	}
	if got := c.AvgTaskTime(); got != 15.0 {
		t.Fatalf("expected avg task time 15, got %v", got)
	}
}

// A MAX-mode category "big" with a declared max allocation
// {cores:4, memory:4096} and no samples requests that max from the
// first dispatch; after RESOURCE_EXHAUSTION the next level is MAX,
// whose allocation is the same declared max.
func TestResourceExhaustionEscalatesToMax(t *testing.T) {
	e := NewEngine()
	e.SetMode("big", types.AllocationMax)
	e.SetMaxAllocation("big", types.ResourceSpec{Cores: 4, MemoryMB: 4096})

	level := types.RequestFirst
	first := e.FirstAllocation("big", types.ResourceSpec{})
	if first.Cores != 4 {
		t.Fatalf("MAX-mode category should request max allocation from the start, got %+v", first)
	}

	level = NextLevel(level)
	if level != types.RequestMax {
		t.Fatalf("expected level MAX, got %s", level)
	}
	max := e.MaxAllocation("big", types.ResourceSpec{})
	if max.Cores != 4 || max.MemoryMB != 4096 {
		t.Fatalf("unexpected max allocation: %+v", max)
	}
}
