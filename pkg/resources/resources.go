// Package resources implements the per-dimension resource tuple and
// aggregation rules from spec §4.2: {total, inuse, smallest, largest}
// for cores, memory, disk, gpus, and workers, plus the overcommit rule.
//
// Grounded on _examples/original_source/taskvine/src/manager/vine_resources.c
// and dataswarm/src/manager/ds_resources.c (vine_resource_add /
// ds_resources_add): total and inuse sum, smallest/largest take min/max.
package resources

// Dimension is one resource tuple: capacity, commitment, and the
// min/max size of a single observed instance in the aggregate.
type Dimension struct {
	Total    int64
	InUse    int64
	Smallest int64
	Largest  int64
}

// Add folds another dimension's values into this one, the way a
// worker's resources are folded into the manager's aggregate totals.
func (d *Dimension) Add(o Dimension) {
	d.Total += o.Total
	d.InUse += o.InUse
	d.Smallest = minNonZero(d.Smallest, o.Smallest)
	d.Largest = max64(d.Largest, o.Largest)
}

// Free returns the uncommitted capacity.
func (d Dimension) Free() int64 {
	f := d.Total - d.InUse
	if f < 0 {
		return 0
	}
	return f
}

func minNonZero(a, b int64) int64 {
	if a == 0 {
		return b
	}
	if b == 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Set is the full per-worker or aggregate resource description: the
// five dimensions the wire protocol's "resource <name> ..." lines name.
type Set struct {
	Cores   Dimension
	Memory  Dimension
	Disk    Dimension
	GPUs    Dimension
	Workers Dimension
}

// Add aggregates another Set into this one across all five dimensions.
func (s *Set) Add(o Set) {
	s.Cores.Add(o.Cores)
	s.Memory.Add(o.Memory)
	s.Disk.Add(o.Disk)
	s.GPUs.Add(o.GPUs)
	s.Workers.Add(o.Workers)
}

// Aggregate sums a slice of per-worker Sets into one cluster-wide Set.
func Aggregate(sets []Set) Set {
	var total Set
	for _, s := range sets {
		total.Add(s)
	}
	return total
}

// Overcommit describes the submit-time multiplier applied to cores,
// memory, and gpus. Disk is never overcommitted regardless of the
// configured value (spec §4.2, §8 boundary test).
type Overcommit struct {
	Multiplier float64 // e.g. 1.0 = no overcommit, 2.0 = double
}

// EffectiveCapacity returns the capacity available for scheduling
// purposes for one dimension, applying the overcommit multiplier
// (ceil(total*multiplier)) except for disk.
func (o Overcommit) EffectiveCapacity(total int64, isDisk bool) int64 {
	if isDisk || o.Multiplier <= 1.0 {
		return total
	}
	scaled := float64(total) * o.Multiplier
	return ceilInt64(scaled)
}

func ceilInt64(f float64) int64 {
	i := int64(f)
	if float64(i) < f {
		i++
	}
	return i
}

// Box is the exact per-dimension allocation committed to one task on
// one worker at dispatch time (spec §3 "resource box").
type Box struct {
	Cores    int64
	MemoryMB int64
	DiskMB   int64
	GPUs     int64
}

// Sum adds up a set of boxes, used to check the invariant
// worker.resources.inuse == sum of per-task boxes (spec §3, §8).
func Sum(boxes []Box) Box {
	var total Box
	for _, b := range boxes {
		total.Cores += b.Cores
		total.MemoryMB += b.MemoryMB
		total.DiskMB += b.DiskMB
		total.GPUs += b.GPUs
	}
	return total
}
