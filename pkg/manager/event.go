package manager

import (
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/dswarm/pkg/cache"
	"github.com/cuemby/dswarm/pkg/category"
	"github.com/cuemby/dswarm/pkg/events"
	"github.com/cuemby/dswarm/pkg/metrics"
	"github.com/cuemby/dswarm/pkg/types"
)

// handleEvent is called only from the event loop goroutine; it is the
// sole place allowed to mutate tasks/workers/blocklist/factories.
func (m *Manager) handleEvent(ev inboundEvent) {
	switch {
	case ev.newWorker != nil:
		m.onWorkerConnected(ev.newWorker)
	case ev.workerLine != nil:
		m.onWorkerLine(ev.workerLine)
	case ev.resultLine != nil:
		m.applyResult(ev.resultLine)
	case ev.workerGone != nil:
		m.onWorkerGone(ev.workerGone)
	case ev.submit != nil:
		m.onSubmit(ev.submit)
	case ev.cancelTask != nil:
		m.onCancel(ev.cancelTask)
	case ev.waitRequest != nil:
		m.onWait(ev.waitRequest)
	case ev.blockHost != nil:
		m.onBlockHost(ev.blockHost)
	case ev.statusQuery != nil:
		m.onStatusQuery(ev.statusQuery)
	}
}

func (m *Manager) onWorkerConnected(wc *workerConn) {
	m.workers[wc.worker.ID] = wc
	metrics.WorkersConnectedTotal.Inc()
	m.txlog.writeWorkerConnection(wc.worker.ID, wc.worker.Addr)
	m.eventBroker.Publish(&events.Event{Type: events.EventWorkerJoined, Message: wc.worker.Addr})
}

func (m *Manager) onWorkerGone(ev *workerGoneEvent) {
	wc, ok := m.workers[ev.workerID]
	if !ok {
		return
	}
	delete(m.workers, ev.workerID)

	for taskID := range wc.worker.TaskIDs {
		if t, ok := m.tasks[taskID]; ok {
			m.requeue(t)
		}
	}

	metrics.WorkersDisconnectedTotal.WithLabelValues(ev.reason).Inc()
	m.txlog.writeWorkerDisconnection(wc.worker.ID, wc.worker.Addr, ev.reason)
	m.eventBroker.Publish(&events.Event{Type: events.EventWorkerDown, Message: wc.worker.Addr})
}

// requeue resets a task to READY preserving its try count, per the
// WORKER_FAILURE recovery rule (spec §7, scenario 5).
func (m *Manager) requeue(t *types.Task) {
	t.State = types.TaskReady
	t.CommitStartAt = time.Time{}
	t.CommitEndAt = time.Time{}
	t.WorkerAddr = ""
	m.ready = append([]*types.Task{t}, m.ready...) // jump to head, per spec §5
	m.txlog.writeTaskState(t.ID, string(t.State))
}

func (m *Manager) onWorkerLine(ev *workerLineEvent) {
	wc, ok := m.workers[ev.workerID]
	if !ok {
		return
	}
	fields := strings.Fields(ev.line)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "resource":
		m.applyAsyncResource(wc, fields)
	case "feature":
		if len(fields) == 2 {
			wc.worker.Features[fields[1]] = true
		}
	case "info":
		m.applyInfoLine(wc, fields)
	case "cache-update":
		m.applyCacheUpdate(wc, fields)
	case "cache-invalid":
		if len(fields) >= 2 {
			cache.Invalidate(wc.worker, fields[1])
		}
	case "transfer-address":
		if len(fields) == 3 {
			wc.worker.TransferAddr = fields[1]
			if port, err := strconv.Atoi(fields[2]); err == nil {
				wc.worker.TransferPort = port
			}
		}
		// "result" and "update" lines never reach here: readLoop
		// intercepts both before forwarding, since each carries a
		// binary payload that must be consumed before the next
		// ReadLine (pkg/manager/worker.go).
	}
	wc.worker.LastMsgRecv = time.Now()
}

func (m *Manager) applyAsyncResource(wc *workerConn, fields []string) {
	if len(fields) != 5 {
		return
	}
	total, _ := strconv.ParseInt(fields[2], 10, 64)
	smallest, _ := strconv.ParseInt(fields[3], 10, 64)
	largest, _ := strconv.ParseInt(fields[4], 10, 64)
	applyResourceLine(wc.worker, fields[1], total, smallest, largest)
}

func (m *Manager) applyInfoLine(wc *workerConn, fields []string) {
	if len(fields) < 3 {
		return
	}
	switch fields[1] {
	case "end_time":
		if usec, err := strconv.ParseInt(fields[2], 10, 64); err == nil {
			wc.worker.EndTime = time.UnixMicro(usec)
		}
	case "factory_name":
		wc.worker.FactoryName = fields[2]
	}
	wc.worker.LastUpdateMsg = time.Now()
}

func (m *Manager) applyCacheUpdate(wc *workerConn, fields []string) {
	if len(fields) != 4 {
		return
	}
	size, _ := strconv.ParseInt(fields[2], 10, 64)
	usec, _ := strconv.ParseInt(fields[3], 10, 64)
	cache.Update(wc.worker, fields[1], size, time.Duration(usec)*time.Microsecond)
	wc.worker.TotalTransferTime += time.Duration(usec) * time.Microsecond
	metrics.CacheHitsTotal.Inc()
}

// applyResult finalizes a task from a resultLineEvent, which readLoop
// has already fully drained off the wire: the declared stdout bytes
// (or a note that they were discarded past the cap) and, for results
// worth keeping output for, the task's declared output files (spec
// §4.4's WAITING_RETRIEVAL -> RETRIEVED step, grounded on
// fetch_output_from_worker in
// _examples/original_source/dataswarm/src/manager/ds_manager.c, run as
// a step distinct from but immediately following result-line parsing).
func (m *Manager) applyResult(ev *resultLineEvent) {
	wc, ok := m.workers[ev.workerID]
	if !ok {
		return
	}
	t, ok := m.tasks[ev.taskID]
	if !ok {
		return
	}
	wc.worker.LastMsgRecv = time.Now()
	wc.worker.ReleaseTask(ev.taskID)

	code := resultFromStatus(ev.status)
	if code == types.ResultForsaken {
		// ds_manager.c special-cases FORSAKEN ahead of normal result
		// processing: the task goes straight back to READY with no
		// retrieval step and no penalty to the worker.
		m.requeue(t)
		return
	}

	t.ExitCode = ev.exitCode
	t.WorkersExecuteLast = time.Duration(ev.execUsec) * time.Microsecond
	t.CommitEndAt = time.Now()
	t.Result = code
	t.Stdout = ev.stdout
	t.StdoutFull = !ev.stdoutTruncated
	if ev.stdoutTruncated {
		applyResultCode(t, types.ResultStdoutMissing)
	}
	if len(ev.missingOutputs) > 0 {
		applyResultCode(t, types.ResultOutputMissing)
	}
	t.State = types.TaskRetrieved
	t.RetrievedAt = time.Now()

	switch code {
	case types.ResultResourceExhaustion:
		m.escalateOrFail(t, wc)
	case types.ResultSuccess:
		wc.worker.TasksCompleted++
		wc.worker.FastAbortAlarm = false
		m.categories.RecordCompletion(t.Category, valueOr(t.Measured, t.Resources), t.WorkersExecuteLast.Seconds(), true)
	default:
		wc.worker.TasksFailed++
	}

	m.txlog.writeTaskState(t.ID, string(t.State))
	m.satisfyWaiters()
}

// escalateOrFail consults the category engine for the next allocation
// level on a RESOURCE_EXHAUSTION result (spec §4.4/§4.5, scenario 3).
// Retries bounded by MaxRetries, or a category already at its max
// allocation, are finalized with MAX_RETRIES instead of being
// redispatched; grounded on ds_manager.c's retry loop around
// category_allocation_mode combined with resources_requested->max_retries.
func (m *Manager) escalateOrFail(t *types.Task, wc *workerConn) {
	wc.worker.TasksFailed++
	if t.MaxRetries > 0 && t.Tries >= t.MaxRetries {
		t.Result = types.ResultMaxRetries
		return
	}
	current := t.RequestLevel
	if current == "" {
		current = types.RequestFirst // a task's first dispatch leaves RequestLevel unset
	}
	next := category.NextLevel(current)
	if next == types.RequestError {
		t.Result = types.ResultMaxRetries
		return
	}
	t.RequestLevel = next
	t.State = types.TaskReady
	t.CommitStartAt = time.Time{}
	t.CommitEndAt = time.Time{}
	t.RetrievedAt = time.Time{}
	t.WorkerAddr = ""
	m.ready = append([]*types.Task{t}, m.ready...) // redispatch bypasses priority order, per spec §4.4/§5
}

// status bit layout for a worker's "result <status> ..." field. No
// numeric DS_RESULT_* values were present in the retrieved original
// source, so this layout is this port's own choice: the low three bits
// are the legacy missing-input/output/stdout codes a worker may OR
// onto an otherwise-zero status, the rest are mutually exclusive
// outcome codes (cf. pkg/category's percentile constants for the same
// kind of invented-but-documented choice).
const (
	statusInputMissing       = 1 << 0
	statusOutputMissing      = 1 << 1
	statusStdoutMissing      = 1 << 2
	statusSignal             = 1 << 3
	statusResourceExhaustion = 1 << 4
	statusTaskTimeout        = 1 << 5
	statusTaskMaxRunTime     = 1 << 6
	statusForsaken           = 1 << 7
	statusMaxRetries         = 1 << 8
	statusDiskAllocFull      = 1 << 9
	statusMonitorError       = 1 << 10
	statusOutputTransferErr  = 1 << 11
	statusUnknown            = 1 << 12
)

// resultFromStatus decodes a worker's raw result-line status into the
// task-visible taxonomy (spec §7). A set upper bit always wins over
// the legacy low three.
func resultFromStatus(status int) types.Result {
	switch {
	case status&statusForsaken != 0:
		return types.ResultForsaken
	case status&statusResourceExhaustion != 0:
		return types.ResultResourceExhaustion
	case status&statusTaskMaxRunTime != 0:
		return types.ResultMaxRunTime
	case status&statusTaskTimeout != 0:
		return types.ResultTaskTimeout
	case status&statusSignal != 0:
		return types.ResultSignal
	case status&statusMaxRetries != 0:
		return types.ResultMaxRetries
	case status&statusDiskAllocFull != 0:
		return types.ResultDiskAllocFull
	case status&statusMonitorError != 0:
		return types.ResultMonitorError
	case status&statusOutputTransferErr != 0:
		return types.ResultOutputTransferErr
	case status&statusUnknown != 0:
		return types.ResultUnknown
	case status&statusInputMissing != 0:
		return types.ResultInputMissing
	case status&statusOutputMissing != 0:
		return types.ResultOutputMissing
	case status&statusStdoutMissing != 0:
		return types.ResultStdoutMissing
	default:
		return types.ResultSuccess
	}
}

// applyResultCode merges a locally-detected legacy code (missing
// output/stdout, found while fetching rather than reported in the
// status field) into t.Result without ever letting it clobber a
// non-legacy failure already set, and without letting a lower-priority
// legacy code (output, stdout) downgrade a higher-priority one already
// applied (input). The within-legacy-group ordering itself is this
// port's choice: update_task_result's clobber rule wasn't present in
// the retrieved original source with enough detail to transcribe
// verbatim, only the "upper bit always wins" half of it (spec §7).
func applyResultCode(t *types.Task, code types.Result) {
	if !isLegacyResult(t.Result) {
		return
	}
	if legacyRank(code) < legacyRank(t.Result) {
		t.Result = code
	}
}

func isLegacyResult(r types.Result) bool {
	switch r {
	case types.ResultSuccess, types.ResultInputMissing, types.ResultOutputMissing, types.ResultStdoutMissing, "":
		return true
	default:
		return false
	}
}

func legacyRank(r types.Result) int {
	switch r {
	case types.ResultInputMissing:
		return 1
	case types.ResultOutputMissing:
		return 2
	case types.ResultStdoutMissing:
		return 3
	default:
		return 99
	}
}

func valueOr(measured *types.ResourceSpec, fallback types.ResourceSpec) types.ResourceSpec {
	if measured != nil {
		return *measured
	}
	return fallback
}
