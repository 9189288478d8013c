package scheduler

import (
	"math"

	"github.com/cuemby/dswarm/pkg/resources"
	"github.com/cuemby/dswarm/pkg/types"
)

// ComputeBox turns a task's requested resources into an exact
// allocation against one worker's largest-observed dimensions,
// applying the proportional-scaling formula from spec §4.6: if any
// requested dimension meets or exceeds the worker's largest, the task
// takes the whole worker; otherwise p = max(requested_d/largest_d) is
// rounded down to 1/floor(1/p) so an integer number of tasks tile the
// worker, and unspecified dimensions scale to floor(largest_d*p).
func ComputeBox(requested types.ResourceSpec, worker resources.Set) resources.Box {
	dims := []struct{ req, largest int64 }{
		{requested.Cores, worker.Cores.Largest},
		{requested.MemoryMB, worker.Memory.Largest},
		{requested.DiskMB, worker.Disk.Largest},
		{requested.GPUs, worker.GPUs.Largest},
	}

	for _, d := range dims {
		if d.req > 0 && d.largest > 0 && d.req >= d.largest {
			return wholeWorker(worker)
		}
	}

	var p float64
	for _, d := range dims {
		if d.req > 0 && d.largest > 0 {
			if ratio := float64(d.req) / float64(d.largest); ratio > p {
				p = ratio
			}
		}
	}
	if p == 0 {
		// Task declared no resources at all: worker-fit default is the
		// whole worker (spec §4.5 "worker-fit defaults").
		return wholeWorker(worker)
	}
	if p < 1 {
		p = 1 / math.Floor(1/p)
	}

	return resources.Box{
		Cores:    scaledDim(requested.Cores, worker.Cores.Largest, p),
		MemoryMB: scaledDim(requested.MemoryMB, worker.Memory.Largest, p),
		DiskMB:   scaledDim(requested.DiskMB, worker.Disk.Largest, p),
		GPUs:     scaledDim(requested.GPUs, worker.GPUs.Largest, p),
	}
}

func scaledDim(req, largest int64, p float64) int64 {
	if req > 0 {
		return req
	}
	return int64(math.Floor(float64(largest) * p))
}

func wholeWorker(worker resources.Set) resources.Box {
	return resources.Box{
		Cores:    worker.Cores.Largest,
		MemoryMB: worker.Memory.Largest,
		DiskMB:   worker.Disk.Largest,
		GPUs:     worker.GPUs.Largest,
	}
}
