package manager

import (
	"fmt"
	"time"

	"github.com/cuemby/dswarm/pkg/metrics"
	"github.com/cuemby/dswarm/pkg/types"
)

// keepaliveCycle implements spec §4.9: ping workers that have gone
// quiet, drop ones that never answer, and fast-abort tasks that are
// running far longer than their category's average.
func (m *Manager) keepaliveCycle() {
	now := time.Now()
	deadline := now.Add(m.cfg.ShortTimeout)

	for id, wc := range m.workers {
		w := wc.worker
		silentFor := now.Sub(w.LastMsgRecv)

		if silentFor > m.cfg.KeepaliveInterval+m.cfg.KeepaliveTimeout {
			metrics.KeepaliveTimeoutsTotal.Inc()
			m.dropWorker(id, "KEEPALIVE_TIMEOUT")
			continue
		}
		if silentFor > m.cfg.KeepaliveInterval {
			_ = wc.conn.WriteLine("check", deadline)
		}
	}

	m.fastAbortSweep(now)
}

// dropWorker performs the same cleanup onWorkerGone would, for a
// keepalive failure detected by the event loop itself rather than a
// read-loop disconnect.
func (m *Manager) dropWorker(id, reason string) {
	m.onWorkerGone(&workerGoneEvent{workerID: id, reason: reason})
}

// fastAbortSweep kills tasks running past multiplier*avg_task_time for
// their category (spec §4.9 scenario 3) and blocklists a worker that
// fast-aborts twice in a row (scenario 4).
func (m *Manager) fastAbortSweep(now time.Time) {
	deadline := now.Add(m.cfg.ShortTimeout)

	for _, t := range m.tasks {
		if t.State != types.TaskRunning {
			continue
		}
		cat := m.categories.Get(t.Category)
		if cat == nil || cat.FastAbortMultiplier <= 0 {
			continue
		}
		avg := cat.AvgTaskTime()
		if avg <= 0 {
			continue
		}
		limit := avg * (cat.FastAbortMultiplier + float64(t.FastAbortCount))
		elapsed := now.Sub(t.CommitStartAt).Seconds()
		if elapsed <= limit {
			continue
		}

		wc, ok := m.workers[workerIDForAddr(m.workers, t.WorkerAddr)]
		if !ok {
			continue
		}
		_ = wc.conn.WriteLine(fmt.Sprintf("kill %d", t.ID), deadline)
		metrics.FastAbortsTotal.Inc()

		t.FastAbortCount++
		wc.worker.ReleaseTask(t.ID)
		m.requeue(t)

		if wc.worker.FastAbortAlarm {
			host := hostOf(wc.worker.Addr)
			m.blockHostFor(host, m.cfg.SlowWorkerTimeout)
			m.dropWorker(wc.worker.ID, "FAST_ABORT")
		} else {
			wc.worker.FastAbortAlarm = true
		}
	}
}

func workerIDForAddr(workers map[string]*workerConn, addr string) string {
	for id, wc := range workers {
		if wc.worker.Addr == addr {
			return id
		}
	}
	return ""
}

func (m *Manager) blockHostFor(host string, d time.Duration) {
	entry := &types.BlocklistEntry{Host: host, Blocked: true, ReleaseAt: time.Now().Add(d)}
	entry.TimesBlocked = 1
	if existing, ok := m.blocklist[host]; ok {
		entry.TimesBlocked = existing.TimesBlocked + 1
	}
	m.blocklist[host] = entry
	_ = m.store.SaveBlocklistEntry(entry)
	metrics.WorkersBlocklistedTotal.Inc()
}
