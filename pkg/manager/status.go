package manager

import (
	"context"
	"time"

	"github.com/cuemby/dswarm/pkg/types"
)

// statusRequest carries a read-only snapshot function into the event
// loop and returns its result; this is the only way the HTTP status
// surface (pkg/httpapi) may observe manager state, keeping every read
// on the same single-owner goroutine as every write (spec §5, §9).
type statusRequest struct {
	fn     func(*Manager) any
	result chan any
}

func (m *Manager) onStatusQuery(req *statusRequest) {
	req.result <- req.fn(m)
}

func (m *Manager) query(ctx context.Context, fn func(*Manager) any) (any, error) {
	result := make(chan any, 1)
	select {
	case m.inbound <- inboundEvent{statusQuery: &statusRequest{fn: fn, result: result}}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.doneCh:
		return nil, context.Canceled
	}
	select {
	case v := <-result:
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// QueueStatusReport mirrors the original's /queue_status JSON shape:
// counts of tasks by lifecycle bucket plus connected worker count.
type QueueStatusReport struct {
	Project          string `json:"project,omitempty"`
	TasksWaiting     int    `json:"tasks_waiting"`
	TasksRunning     int    `json:"tasks_running"`
	TasksWaitingRetr int    `json:"tasks_waiting_retrieval"`
	TasksDone        int    `json:"tasks_done"`
	TasksCanceled    int    `json:"tasks_canceled"`
	WorkersConnected int    `json:"workers_connected"`
	Uptime           string `json:"uptime"`
}

// QueueStatus answers /queue_status.
func (m *Manager) QueueStatus(ctx context.Context) (QueueStatusReport, error) {
	v, err := m.query(ctx, func(m *Manager) any {
		r := QueueStatusReport{Project: m.cfg.Project, WorkersConnected: len(m.workers)}
		if !m.startedAt.IsZero() {
			r.Uptime = time.Since(m.startedAt).String()
		}
		for _, t := range m.tasks {
			switch t.State {
			case types.TaskReady:
				r.TasksWaiting++
			case types.TaskRunning:
				r.TasksRunning++
			case types.TaskWaitingRetrieval, types.TaskRetrieved:
				r.TasksWaitingRetr++
			case types.TaskDone:
				r.TasksDone++
			case types.TaskCanceled:
				r.TasksCanceled++
			}
		}
		return r
	})
	if err != nil {
		return QueueStatusReport{}, err
	}
	return v.(QueueStatusReport), nil
}

// TaskSummary is one row of /task_status.
type TaskSummary struct {
	ID       int64           `json:"id"`
	Tag      string          `json:"tag,omitempty"`
	Category string          `json:"category"`
	State    types.TaskState `json:"state"`
	Worker   string          `json:"worker,omitempty"`
	Tries    int             `json:"tries"`
	Result   types.Result    `json:"result,omitempty"`
	ExitCode int             `json:"exit_code,omitempty"`
}

// TaskStatus answers /task_status.
func (m *Manager) TaskStatus(ctx context.Context) ([]TaskSummary, error) {
	v, err := m.query(ctx, func(m *Manager) any {
		out := make([]TaskSummary, 0, len(m.tasks))
		for _, t := range m.tasks {
			out = append(out, TaskSummary{
				ID: t.ID, Tag: t.Tag, Category: t.Category, State: t.State,
				Worker: t.WorkerAddr, Tries: t.Tries, Result: t.Result, ExitCode: t.ExitCode,
			})
		}
		return out
	})
	if err != nil {
		return nil, err
	}
	return v.([]TaskSummary), nil
}

// WorkerSummary is one row of /worker_status.
type WorkerSummary struct {
	ID             string `json:"id"`
	Addr           string `json:"addr"`
	Hostname       string `json:"hostname,omitempty"`
	FactoryName    string `json:"factory_name,omitempty"`
	TasksRunning   int    `json:"tasks_running"`
	TasksCompleted int64  `json:"tasks_completed"`
	TasksFailed    int64  `json:"tasks_failed"`
	Cores          int64  `json:"cores_total"`
	CoresInUse     int64  `json:"cores_inuse"`
	MemoryMB       int64  `json:"memory_total_mb"`
	MemoryInUseMB  int64  `json:"memory_inuse_mb"`
}

// WorkerStatus answers /worker_status.
func (m *Manager) WorkerStatus(ctx context.Context) ([]WorkerSummary, error) {
	v, err := m.query(ctx, func(m *Manager) any {
		out := make([]WorkerSummary, 0, len(m.workers))
		for _, wc := range m.workers {
			w := wc.worker
			out = append(out, WorkerSummary{
				ID: w.ID, Addr: w.Addr, Hostname: w.Hostname, FactoryName: w.FactoryName,
				TasksRunning: len(w.TaskIDs), TasksCompleted: w.TasksCompleted, TasksFailed: w.TasksFailed,
				Cores: w.Resources.Cores.Total, CoresInUse: w.Resources.Cores.InUse,
				MemoryMB: w.Resources.Memory.Total, MemoryInUseMB: w.Resources.Memory.InUse,
			})
		}
		return out
	})
	if err != nil {
		return nil, err
	}
	return v.([]WorkerSummary), nil
}

// ResourcesStatusReport answers /resources_status: the aggregate
// resource set across all connected workers (spec §4.2).
type ResourcesStatusReport struct {
	Cores    ResourceDimensionReport `json:"cores"`
	MemoryMB ResourceDimensionReport `json:"memory_mb"`
	DiskMB   ResourceDimensionReport `json:"disk_mb"`
	GPUs     ResourceDimensionReport `json:"gpus"`
}

type ResourceDimensionReport struct {
	Total    int64 `json:"total"`
	InUse    int64 `json:"inuse"`
	Smallest int64 `json:"smallest_worker"`
	Largest  int64 `json:"largest_worker"`
}

// ResourcesStatus answers /resources_status.
func (m *Manager) ResourcesStatus(ctx context.Context) (ResourcesStatusReport, error) {
	v, err := m.query(ctx, func(m *Manager) any {
		agg := m.aggregateResources()
		return ResourcesStatusReport{
			Cores:    ResourceDimensionReport{agg.Cores.Total, agg.Cores.InUse, agg.Cores.Smallest, agg.Cores.Largest},
			MemoryMB: ResourceDimensionReport{agg.Memory.Total, agg.Memory.InUse, agg.Memory.Smallest, agg.Memory.Largest},
			DiskMB:   ResourceDimensionReport{agg.Disk.Total, agg.Disk.InUse, agg.Disk.Smallest, agg.Disk.Largest},
			GPUs:     ResourceDimensionReport{agg.GPUs.Total, agg.GPUs.InUse, agg.GPUs.Smallest, agg.GPUs.Largest},
		}
	})
	if err != nil {
		return ResourcesStatusReport{}, err
	}
	return v.(ResourcesStatusReport), nil
}

// AvailabilityReport is one row of /wable_status: whether a category's
// first_allocation currently fits on at least one connected worker,
// the original tool's "is anything workable" check.
type AvailabilityReport struct {
	Category       string `json:"category"`
	Mode           string `json:"mode"`
	FirstAllocCore int64  `json:"first_allocation_cores"`
	FirstAllocMemo int64  `json:"first_allocation_memory_mb"`
	Workable       bool   `json:"workable"`
}

// AvailabilityStatus answers /wable_status: per-category, whether any
// connected worker currently has room for that category's
// first_allocation box.
func (m *Manager) AvailabilityStatus(ctx context.Context) ([]AvailabilityReport, error) {
	v, err := m.query(ctx, func(m *Manager) any {
		seen := make(map[string]bool)
		out := make([]AvailabilityReport, 0)
		for _, t := range m.tasks {
			if seen[t.Category] {
				continue
			}
			seen[t.Category] = true
			c := m.categories.Get(t.Category)
			alloc := m.effectiveResources(t)
			workable := false
			for _, wc := range m.workers {
				if alloc.Cores <= availableCores(wc) && alloc.MemoryMB <= availableMemory(wc) {
					workable = true
					break
				}
			}
			out = append(out, AvailabilityReport{
				Category: t.Category, Mode: string(c.Mode),
				FirstAllocCore: alloc.Cores, FirstAllocMemo: alloc.MemoryMB, Workable: workable,
			})
		}
		return out
	})
	if err != nil {
		return nil, err
	}
	return v.([]AvailabilityReport), nil
}

func availableCores(wc *workerConn) int64 {
	return wc.worker.Resources.Cores.Total - wc.worker.Resources.Cores.InUse
}

func availableMemory(wc *workerConn) int64 {
	return wc.worker.Resources.Memory.Total - wc.worker.Resources.Memory.InUse
}
