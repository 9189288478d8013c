package resources

import "testing"

func TestDimensionAdd(t *testing.T) {
	a := Dimension{Total: 4, InUse: 1, Smallest: 4, Largest: 4}
	b := Dimension{Total: 8, InUse: 2, Smallest: 8, Largest: 8}
	a.Add(b)

	if a.Total != 12 || a.InUse != 3 {
		t.Fatalf("unexpected sum: %+v", a)
	}
	if a.Smallest != 4 || a.Largest != 8 {
		t.Fatalf("unexpected min/max: %+v", a)
	}
}

func TestDimensionFreeNeverNegative(t *testing.T) {
	d := Dimension{Total: 4, InUse: 6}
	if d.Free() != 0 {
		t.Fatalf("expected clamped free of 0, got %d", d.Free())
	}
}

func TestOvercommitDiskNeverScaled(t *testing.T) {
	o := Overcommit{Multiplier: 2.0}
	if got := o.EffectiveCapacity(100, true); got != 100 {
		t.Fatalf("disk overcommitted: got %d", got)
	}
	if got := o.EffectiveCapacity(4, false); got != 8 {
		t.Fatalf("expected 8 cores with 2x multiplier, got %d", got)
	}
}

func TestOvercommitCeiling(t *testing.T) {
	o := Overcommit{Multiplier: 1.5}
	// 4 cores * 1.5 = 6, exact.
	if got := o.EffectiveCapacity(4, false); got != 6 {
		t.Fatalf("expected 6, got %d", got)
	}
	// 3 cores * 1.5 = 4.5, ceil to 5.
	if got := o.EffectiveCapacity(3, false); got != 5 {
		t.Fatalf("expected ceil(4.5)=5, got %d", got)
	}
}

func TestSumBoxes(t *testing.T) {
	boxes := []Box{
		{Cores: 1, MemoryMB: 512},
		{Cores: 2, MemoryMB: 1024},
	}
	total := Sum(boxes)
	if total.Cores != 3 || total.MemoryMB != 1536 {
		t.Fatalf("unexpected total: %+v", total)
	}
}

func TestAggregateAcrossWorkers(t *testing.T) {
	sets := []Set{
		{Cores: Dimension{Total: 4, Smallest: 4, Largest: 4}},
		{Cores: Dimension{Total: 8, Smallest: 8, Largest: 8}},
	}
	agg := Aggregate(sets)
	if agg.Cores.Total != 12 {
		t.Fatalf("expected total cores 12, got %d", agg.Cores.Total)
	}
	if agg.Cores.Smallest != 4 || agg.Cores.Largest != 8 {
		t.Fatalf("unexpected min/max cores: %+v", agg.Cores)
	}
}
