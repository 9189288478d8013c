package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/dswarm/pkg/cache"
	"github.com/cuemby/dswarm/pkg/events"
	"github.com/cuemby/dswarm/pkg/metrics"
	"github.com/cuemby/dswarm/pkg/resources"
	"github.com/cuemby/dswarm/pkg/scheduler"
	"github.com/cuemby/dswarm/pkg/staging"
	"github.com/cuemby/dswarm/pkg/types"
	"github.com/cuemby/dswarm/pkg/wire"
)

// dispatchCycle walks the ready queue once, in priority order, and
// commits each task it can fit to a worker (spec §5). A task that
// fits nowhere this cycle stays at its position and is retried next
// tick; nothing here blocks waiting for a worker to become free.
func (m *Manager) dispatchCycle() {
	if len(m.ready) == 0 || len(m.workers) == 0 {
		return
	}

	still := m.ready[:0:0]
	for _, t := range m.ready {
		if !m.tryDispatch(t) {
			still = append(still, t)
		}
	}
	m.ready = still
}

func (m *Manager) tryDispatch(t *types.Task) bool {
	timer := metrics.NewTimer()
	requested := m.effectiveResources(t)
	candidates := m.collectCandidates(t, requested)
	if len(candidates) == 0 {
		return false
	}

	winner := scheduler.Pick(m.cfg.Policy, candidates)
	if winner == nil {
		return false
	}
	timer.ObserveDuration(metrics.SchedulingLatency)

	box := scheduler.ComputeBox(requested, winner.Worker.Resources)
	m.commitTask(t, winner.Worker, box)
	metrics.TasksDispatchedTotal.WithLabelValues(string(m.cfg.Policy)).Inc()
	return true
}

// effectiveResources applies the category's learned first/max
// allocation over whatever the task explicitly requested, escalating
// to max_allocation when a prior attempt on this task returned
// RESOURCE_EXHAUSTION (spec §4.5, §4.6 retry escalation).
func (m *Manager) effectiveResources(t *types.Task) types.ResourceSpec {
	switch t.RequestLevel {
	case types.RequestMax:
		return m.categories.MaxAllocation(t.Category, t.Resources)
	case types.RequestError:
		return t.Resources
	default:
		return m.categories.FirstAllocation(t.Category, t.Resources)
	}
}

func (m *Manager) collectCandidates(t *types.Task, requested types.ResourceSpec) []*scheduler.Candidate {
	now := time.Now()
	cat := m.categories.Get(t.Category)

	var candidates []*scheduler.Candidate
	for _, wc := range m.workers {
		w := wc.worker
		box := scheduler.ComputeBox(requested, w.Resources)

		params := scheduler.FitParams{
			Box:            box,
			Features:       t.Features,
			MinRunningTime: requested.WallTime,
			TaskEndTime:    requested.EndTime,
			Overcommit:     m.cfg.Overcommit,
			Blocked:        m.hostBlocked(hostOf(w.Addr), now),
			FactoryOverCap: m.factoryOverCap(w.FactoryName),
			Now:            now,
		}
		if !scheduler.Fits(w, params) {
			continue
		}

		var avg time.Duration
		if cat != nil {
			if secs := cat.AvgTaskTime(); secs > 0 {
				avg = time.Duration(secs * float64(time.Second))
			}
		}
		cached := cache.CachedBytes(w, t.Inputs, m.localFileStat)

		candidates = append(candidates, &scheduler.Candidate{
			Worker:      w,
			CachedBytes: cached,
			AvgTaskTime: avg,
		})
	}
	return candidates
}

func (m *Manager) hostBlocked(host string, now time.Time) bool {
	e, ok := m.blocklist[host]
	if !ok {
		return false
	}
	return !e.Expired(now)
}

func (m *Manager) factoryOverCap(name string) bool {
	if name == "" {
		return false
	}
	f, ok := m.factories[name]
	if !ok || f.MaxWorkers <= 0 {
		return false
	}
	return f.ConnectedWorkers > f.MaxWorkers
}

// localFileStat resolves a cached input's current mtime/size on the
// manager's own filesystem, for cache staleness comparisons
// (pkg/cache.CachedBytes, pkg/cache.Evaluate). Non-LOCAL_PATH sources
// have nothing to compare against and are reported unknown.
func (m *Manager) localFileStat(cacheName string) (time.Time, int64, bool) {
	for _, t := range m.tasks {
		for _, f := range t.Inputs {
			if f.CacheName == cacheName && f.Kind == types.FileLocalPath {
				return time.Time{}, f.Size, true
			}
		}
	}
	return time.Time{}, 0, false
}

// commitTask reserves the box on the worker, flips the task to
// RUNNING, and sends the dispatch command plus staged inputs. Input
// staging runs on its own goroutine so a slow transfer never stalls
// the event loop; the short command header is written synchronously,
// bounded by ShortTimeout, the same way ds_manager.c writes its
// control packets inline within its own single-threaded select loop.
func (m *Manager) commitTask(t *types.Task, w *types.Worker, box resources.Box) {
	w.CommitTask(t.ID, box)
	t.State = types.TaskRunning
	t.CommitStartAt = time.Now()
	t.WorkerAddr = w.Addr
	t.Tries++
	m.tasks[t.ID] = t

	wc := m.workers[w.ID]
	deadline := time.Now().Add(m.cfg.ShortTimeout)

	header := fmt.Sprintf("task %d", t.ID)
	if err := wc.conn.WriteLine(header, deadline); err != nil {
		m.requeue(t)
		return
	}
	cmdHeader := fmt.Sprintf("cmd %d", len(t.Command))
	if err := wc.conn.WritePayload(cmdHeader, []byte(t.Command), deadline); err != nil {
		m.requeue(t)
		return
	}
	for _, line := range []string{
		fmt.Sprintf("cores %d", box.Cores),
		fmt.Sprintf("memory %d", box.MemoryMB),
		fmt.Sprintf("disk %d", box.DiskMB),
		fmt.Sprintf("gpus %d", box.GPUs),
		"end",
	} {
		if err := wc.conn.WriteLine(line, deadline); err != nil {
			m.requeue(t)
			return
		}
	}

	go m.stageInputs(t, wc)

	m.txlog.writeTaskState(t.ID, string(t.State))
	m.eventBroker.Publish(&events.Event{
		Type:     events.EventTaskDispatched,
		Message:  fmt.Sprintf("task %d -> %s", t.ID, w.Addr),
		Metadata: map[string]string{"task_id": fmt.Sprintf("%d", t.ID), "worker": w.Addr},
	})
}

// stageInputs streams every LOCAL_PATH/LITERAL/DIRECTORY input not
// already satisfied by the worker's cache (spec §4.3, §4.7). It runs
// off the event loop and never touches shared manager state. Each
// transfer's deadline comes from TransferStoptime rather than a flat
// bound, and throttle paces the write against the manager-wide
// transfer rate limit (spec §4.1, §5).
func (m *Manager) stageInputs(t *types.Task, wc *workerConn) {
	ctx := context.Background()
	for _, f := range t.Inputs {
		deadline := wire.TransferStoptime(time.Now(), m.cfg.Timeout, wc.worker, wire.QueueBandwidth{}, f.Size)
		switch f.Kind {
		case types.FileLocalPath:
			switch cache.Evaluate(wc.worker, f, time.Time{}, f.Size) {
			case cache.Hit:
				continue
			case cache.StaleHit:
				m.logger.Warn().Int64("task_id", t.ID).Str("file", f.RemoteName).Msg("local input differs from the worker's cached copy; using the cached copy")
				continue
			}
			m.throttle(ctx, int(f.Size))
			_ = staging.WriteTree(wc.conn, f.RemoteName, f.Path, deadline)
		case types.FileLiteral:
			m.throttle(ctx, len(f.Source))
			_ = staging.WriteFile(wc.conn, f.RemoteName, f.Source, 0o644, deadline)
		case types.FileDirectory:
			_ = staging.WriteDir(wc.conn, f.RemoteName, deadline)
		}
	}
	_ = staging.WriteEnd(wc.conn, time.Now().Add(m.cfg.ShortTimeout))
}
