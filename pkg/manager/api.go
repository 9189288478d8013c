package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/dswarm/pkg/events"
	"github.com/cuemby/dswarm/pkg/metrics"
	"github.com/cuemby/dswarm/pkg/types"
)

// Submit enqueues a new task and returns its assigned id. Safe to call
// from any goroutine; the actual enqueue happens inside the event loop.
func (m *Manager) Submit(ctx context.Context, t *types.Task) (int64, error) {
	t.State = types.TaskReady
	t.SubmittedAt = time.Now()
	if t.Category == "" {
		t.Category = types.DefaultCategory
	}

	result := make(chan int64, 1)
	select {
	case m.inbound <- inboundEvent{submit: &submitRequest{task: t, result: result}}:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-m.doneCh:
		return 0, fmt.Errorf("manager: shut down")
	}

	select {
	case id := <-result:
		return id, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (m *Manager) onSubmit(req *submitRequest) {
	m.nextTaskID++
	req.task.ID = m.nextTaskID
	m.tasks[req.task.ID] = req.task
	pos := len(m.ready)
	for i, rt := range m.ready {
		if rt.Priority < req.task.Priority {
			pos = i
			break
		}
	}
	m.ready = append(m.ready, nil)
	copy(m.ready[pos+1:], m.ready[pos:])
	m.ready[pos] = req.task

	metrics.TasksSubmittedTotal.Inc()
	m.txlog.writeTaskState(req.task.ID, string(req.task.State))
	m.eventBroker.Publish(&events.Event{
		Type:     events.EventTaskSubmitted,
		Message:  fmt.Sprintf("task %d submitted", req.task.ID),
		Metadata: map[string]string{"task_id": fmt.Sprintf("%d", req.task.ID)},
	})
	req.result <- req.task.ID
}

// Wait blocks until a task reaches RETRIEVED or CANCELED, or ctx is
// done, mirroring the original's batch_job wait semantics (spec §4.8):
// any not-yet-delivered terminal task may be returned, not necessarily
// the one the caller is thinking of. A delivered RETRIEVED task is
// advanced to DONE as part of being handed back.
func (m *Manager) Wait(ctx context.Context, timeout time.Duration) (*types.Task, error) {
	ch := make(chan *types.Task, 1)
	select {
	case m.inbound <- inboundEvent{waitRequest: ch}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case t := <-ch:
		return t, nil
	case <-timeoutCh:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) onWait(ch chan *types.Task) {
	for _, t := range m.tasks {
		if !t.Delivered && isTerminalWaiting(t.State) {
			m.deliverTerminal(t)
			ch <- t
			return
		}
	}
	m.waiters = append(m.waiters, ch)
}

// isTerminalWaiting reports whether a task is ready to be handed back
// through Wait. Outputs are already fetched inline when the worker's
// result line arrives (pkg/manager/worker.go), so RETRIEVED is
// terminal-waiting here, not WAITING_RETRIEVAL.
func isTerminalWaiting(s types.TaskState) bool {
	return s == types.TaskRetrieved || s == types.TaskCanceled
}

// deliverTerminal marks a task as handed back to the application
// (spec §4.4). A RETRIEVED task completes its lifecycle by advancing
// to DONE; a CANCELED task is already terminal and is only marked
// delivered, so it's handed out exactly once.
func (m *Manager) deliverTerminal(t *types.Task) {
	t.Delivered = true
	if t.State == types.TaskRetrieved {
		t.State = types.TaskDone
		t.DoneAt = time.Now()
		m.txlog.writeTaskState(t.ID, string(t.State))
	}
}

// satisfyWaiters is called after any task transitions to RETRIEVED or
// CANCELED so a blocked Wait caller can pick it up immediately instead
// of waiting for the next onWait poll.
func (m *Manager) satisfyWaiters() {
	if len(m.waiters) == 0 {
		return
	}
	for _, t := range m.tasks {
		if len(m.waiters) == 0 {
			return
		}
		if t.Delivered || !isTerminalWaiting(t.State) {
			continue
		}
		ch := m.waiters[0]
		m.waiters = m.waiters[1:]
		m.deliverTerminal(t)
		ch <- t
	}
}

// Cancel removes a READY task or sends kill for a RUNNING one.
func (m *Manager) Cancel(ctx context.Context, id int64) (bool, error) {
	result := make(chan bool, 1)
	select {
	case m.inbound <- inboundEvent{cancelTask: &cancelRequest{id: id, result: result}}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case ok := <-result:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// CancelByTag cancels the first task found with a matching tag.
func (m *Manager) CancelByTag(ctx context.Context, tag string) (bool, error) {
	result := make(chan bool, 1)
	select {
	case m.inbound <- inboundEvent{cancelTask: &cancelRequest{tag: tag, result: result}}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case ok := <-result:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (m *Manager) onCancel(req *cancelRequest) {
	t := m.findTask(req.id, req.tag)
	if t == nil {
		req.result <- false
		return
	}

	switch t.State {
	case types.TaskReady:
		for i, rt := range m.ready {
			if rt.ID == t.ID {
				m.ready = append(m.ready[:i], m.ready[i+1:]...)
				break
			}
		}
		t.State = types.TaskCanceled
	case types.TaskRunning:
		if wc, ok := m.workers[workerIDForAddr(m.workers, t.WorkerAddr)]; ok {
			deadline := time.Now().Add(m.cfg.ShortTimeout)
			_ = wc.conn.WriteLine(fmt.Sprintf("kill %d", t.ID), deadline)
			wc.worker.ReleaseTask(t.ID)
		}
		t.State = types.TaskCanceled
	default:
		req.result <- false
		return
	}

	metrics.TasksCanceledTotal.Inc()
	m.txlog.writeTaskState(t.ID, string(t.State))
	m.eventBroker.Publish(&events.Event{Type: events.EventTaskCanceled, Message: fmt.Sprintf("task %d canceled", t.ID)})
	req.result <- true
	m.satisfyWaiters()
}

func (m *Manager) findTask(id int64, tag string) *types.Task {
	if id != 0 {
		return m.tasks[id]
	}
	for _, t := range m.tasks {
		if t.Tag == tag {
			return t
		}
	}
	return nil
}

// BlockHost bars a host from receiving tasks for the given duration
// (0 means indefinite).
func (m *Manager) BlockHost(ctx context.Context, host string, duration time.Duration) error {
	select {
	case m.inbound <- inboundEvent{blockHost: &blockHostRequest{host: host, duration: duration, indefinite: duration == 0}}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) onBlockHost(req *blockHostRequest) {
	entry := &types.BlocklistEntry{Host: req.host, Blocked: true, Indefinite: req.indefinite}
	if !req.indefinite {
		entry.ReleaseAt = time.Now().Add(req.duration)
	}
	if existing, ok := m.blocklist[req.host]; ok {
		entry.TimesBlocked = existing.TimesBlocked + 1
	} else {
		entry.TimesBlocked = 1
	}
	m.blocklist[req.host] = entry
	_ = m.store.SaveBlocklistEntry(entry)
	metrics.WorkersBlocklistedTotal.Inc()
	m.eventBroker.Publish(&events.Event{Type: events.EventWorkerBlocked, Message: req.host})
}
