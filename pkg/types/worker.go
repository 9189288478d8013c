package types

import (
	"time"

	"github.com/cuemby/dswarm/pkg/resources"
)

// WorkerState is the lifecycle of a manager-side worker record.
type WorkerState string

const (
	WorkerConnecting WorkerState = "CONNECTING" // accepted, not yet authenticated/ready
	WorkerReady      WorkerState = "READY"      // resources known, can receive tasks
	WorkerGone       WorkerState = "GONE"       // disconnected, record retained for stats only
)

// Worker is the manager's view of one connected remote worker process
// (spec §3). The worker process itself is out of scope; this struct
// models only what the manager observes about it.
type Worker struct {
	ID   string // opaque handle assigned at accept (spec §9 itable note)
	Addr string // host:port key

	Hostname string
	OS       string
	Arch     string
	Version  string
	Proto    int

	Resources resources.Set
	Features  map[string]bool

	// TaskBoxes is the exact resource commitment per task id running
	// on this worker (spec §3 "resource box").
	TaskBoxes map[int64]resources.Box
	TaskIDs   map[int64]bool

	Cache map[string]*CacheEntry

	State WorkerState

	FactoryName string
	Draining    bool

	StartTime      time.Time
	LastMsgRecv    time.Time
	LastUpdateMsg  time.Time
	EndTime        time.Time // worker-declared wall-clock deadline, zero = none

	FastAbortAlarm bool

	TransferAddr string // peer-transfer listen address, if advertised
	TransferPort int

	TotalBytesSent     int64
	TotalBytesReceived int64
	TotalTransferTime  time.Duration // accumulated wall time spent transferring, for the bandwidth estimate (spec §4.1)

	TasksCompleted int64
	TasksFailed    int64
}

// CacheEntry is one object in a worker's cache index (spec §4.3).
type CacheEntry struct {
	CacheName    string
	Kind         FileKind
	Size         int64
	MTime        time.Time
	TransferTime time.Duration
}

// NewWorker constructs a worker record in the CONNECTING state.
func NewWorker(id, addr string) *Worker {
	return &Worker{
		ID:        id,
		Addr:      addr,
		Features:  make(map[string]bool),
		TaskBoxes: make(map[int64]resources.Box),
		TaskIDs:   make(map[int64]bool),
		Cache:     make(map[string]*CacheEntry),
		State:     WorkerConnecting,
		StartTime: time.Now(),
	}
}

// HasFeature reports whether the worker advertised the named feature.
func (w *Worker) HasFeature(name string) bool {
	return w.Features[name]
}

// CommitTask records a task's resource box against the worker and
// bumps inuse for each dimension, preserving the invariant
// worker.resources.{cores,memory,disk}.inuse == sum of per-task boxes.
func (w *Worker) CommitTask(taskID int64, box resources.Box) {
	w.TaskBoxes[taskID] = box
	w.TaskIDs[taskID] = true
	w.Resources.Cores.InUse += box.Cores
	w.Resources.Memory.InUse += box.MemoryMB
	w.Resources.Disk.InUse += box.DiskMB
	w.Resources.GPUs.InUse += box.GPUs
}

// ReleaseTask undoes CommitTask, e.g. on task completion or requeue.
func (w *Worker) ReleaseTask(taskID int64) {
	box, ok := w.TaskBoxes[taskID]
	if !ok {
		return
	}
	w.Resources.Cores.InUse -= box.Cores
	w.Resources.Memory.InUse -= box.MemoryMB
	w.Resources.Disk.InUse -= box.DiskMB
	w.Resources.GPUs.InUse -= box.GPUs
	delete(w.TaskBoxes, taskID)
	delete(w.TaskIDs, taskID)
}

// CommittedBoxSum returns the sum of all boxes currently committed on
// this worker, for the invariant check in spec §8.
func (w *Worker) CommittedBoxSum() resources.Box {
	boxes := make([]resources.Box, 0, len(w.TaskBoxes))
	for _, b := range w.TaskBoxes {
		boxes = append(boxes, b)
	}
	return resources.Sum(boxes)
}
