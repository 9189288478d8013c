package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/dswarm/pkg/catalog"
	"github.com/cuemby/dswarm/pkg/metrics"
	"github.com/cuemby/dswarm/pkg/types"
)

// maintenanceCycle sweeps expired blocklist entries, finalizes tasks
// that timed out before or during dispatch, and, when a catalog is
// configured, refreshes and trims known factories (spec §4.4, §4.6
// scenario 6, §4.11). This generalizes the old "replace failed
// containers" reconciliation sweep into "release expired blocks, honor
// task deadlines, and keep factory caps honest".
func (m *Manager) maintenanceCycle() {
	now := time.Now()
	for host, e := range m.blocklist {
		if e.Expired(now) {
			delete(m.blocklist, host)
			_ = m.store.DeleteBlocklistEntry(host)
		}
	}

	m.expireTasks(now)

	if m.catalog == nil {
		return
	}
	m.refreshFactories(now)
}

// expireTasks finalizes READY tasks whose end-time already elapsed or
// whose retry ceiling was exhausted before ever being dispatched, and
// kills RUNNING tasks that have exceeded their wall-time budget.
// Grounded on expire_waiting_tasks in
// _examples/original_source/dataswarm/src/manager/ds_manager.c, which
// walks the ready list comparing resources_requested->end/max_retries
// against try_count.
func (m *Manager) expireTasks(now time.Time) {
	still := m.ready[:0:0]
	for _, t := range m.ready {
		switch {
		case !t.Resources.EndTime.IsZero() && !now.Before(t.Resources.EndTime):
			m.finishExpired(t, types.ResultTaskTimeout)
		case t.MaxRetries > 0 && t.Tries > t.MaxRetries:
			m.finishExpired(t, types.ResultMaxRetries)
		default:
			still = append(still, t)
		}
	}
	m.ready = still

	deadline := now.Add(m.cfg.ShortTimeout)
	for _, t := range m.tasks {
		if t.State != types.TaskRunning || t.Resources.WallTime <= 0 {
			continue
		}
		if now.Sub(t.CommitStartAt) <= t.Resources.WallTime {
			continue
		}
		if wc, ok := m.workers[workerIDForAddr(m.workers, t.WorkerAddr)]; ok {
			_ = wc.conn.WriteLine(fmt.Sprintf("kill %d", t.ID), deadline)
			wc.worker.ReleaseTask(t.ID)
		}
		m.finishExpired(t, types.ResultMaxRunTime)
	}
}

// finishExpired moves a task straight to RETRIEVED with a terminal
// result assigned locally rather than reported by a worker, so it
// flows through the same deliverTerminal/satisfyWaiters path as any
// other finished task (spec §4.4).
func (m *Manager) finishExpired(t *types.Task, result types.Result) {
	t.Result = result
	t.State = types.TaskRetrieved
	t.RetrievedAt = time.Now()
	t.CommitEndAt = time.Now()
	m.txlog.writeTaskState(t.ID, string(t.State))
	m.satisfyWaiters()
}

func (m *Manager) refreshFactories(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ShortTimeout)
	defer cancel()

	for _, host := range m.cfg.CatalogHosts {
		entries, err := m.catalog.QueryFactories(ctx, host, m.cfg.Project)
		if err != nil {
			continue
		}
		for _, e := range entries {
			f := m.factories[e.Name]
			if f == nil {
				f = &types.FactoryInfo{Name: e.Name}
			}
			f.MaxWorkers = e.MaxWorkers
			f.SeenAtCatalog = now
			f.ConnectedWorkers = m.countFactoryWorkers(e.Name)
			m.factories[e.Name] = f
			_ = m.store.SaveFactory(f)
		}
	}

	for name, f := range m.factories {
		if catalog.ShouldDropFactory(f, now, m.cfg.FactoryQueryInterval) {
			delete(m.factories, name)
			_ = m.store.DeleteFactory(name)
			continue
		}
		m.trimFactory(f)
	}

	metrics.FactoriesTotal.Set(float64(len(m.factories)))
}

func (m *Manager) trimFactory(f *types.FactoryInfo) {
	var idle []string
	for id, wc := range m.workers {
		if wc.worker.FactoryName != f.Name {
			continue
		}
		if len(wc.worker.TaskIDs) == 0 {
			idle = append(idle, id)
		}
	}
	targets := catalog.SelectTrimTargets(f, idle)
	deadline := time.Now().Add(m.cfg.ShortTimeout)
	for _, id := range targets {
		wc, ok := m.workers[id]
		if !ok {
			continue
		}
		_ = wc.conn.WriteLine("exit", deadline)
		m.dropWorker(id, "FACTORY_TRIM")
	}
}

func (m *Manager) countFactoryWorkers(name string) int {
	n := 0
	for _, wc := range m.workers {
		if wc.worker.FactoryName == name {
			n++
		}
	}
	return n
}
