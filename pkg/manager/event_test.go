package manager

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/dswarm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultFromStatusDecodesUpperBitsOverLegacy(t *testing.T) {
	assert.Equal(t, types.ResultSuccess, resultFromStatus(0))
	assert.Equal(t, types.ResultInputMissing, resultFromStatus(statusInputMissing))
	assert.Equal(t, types.ResultOutputMissing, resultFromStatus(statusOutputMissing))
	assert.Equal(t, types.ResultStdoutMissing, resultFromStatus(statusStdoutMissing))
	assert.Equal(t, types.ResultSignal, resultFromStatus(statusSignal))
	assert.Equal(t, types.ResultResourceExhaustion, resultFromStatus(statusResourceExhaustion))
	assert.Equal(t, types.ResultTaskTimeout, resultFromStatus(statusTaskTimeout))
	assert.Equal(t, types.ResultMaxRunTime, resultFromStatus(statusTaskMaxRunTime))
	assert.Equal(t, types.ResultForsaken, resultFromStatus(statusForsaken))

	// an upper-bit outcome always wins over a legacy bit OR'd in alongside it.
	assert.Equal(t, types.ResultResourceExhaustion, resultFromStatus(statusResourceExhaustion|statusInputMissing))
	assert.Equal(t, types.ResultForsaken, resultFromStatus(statusForsaken|statusOutputMissing|statusStdoutMissing))
}

func TestApplyResultCodeRanksWithinLegacyGroup(t *testing.T) {
	task := &types.Task{Result: types.ResultSuccess}
	applyResultCode(task, types.ResultStdoutMissing)
	assert.Equal(t, types.ResultStdoutMissing, task.Result)

	// input already recorded; a lower-priority output code must not downgrade it.
	task2 := &types.Task{Result: types.ResultInputMissing}
	applyResultCode(task2, types.ResultOutputMissing)
	assert.Equal(t, types.ResultInputMissing, task2.Result)

	// a non-legacy failure already set must never be clobbered by a legacy code.
	task3 := &types.Task{Result: types.ResultSignal}
	applyResultCode(task3, types.ResultStdoutMissing)
	assert.Equal(t, types.ResultSignal, task3.Result)
}

func newTestWorkerConn(id string) *workerConn {
	return &workerConn{worker: types.NewWorker(id, "10.0.0.1:9999")}
}

func TestEscalateOrFailNormalizesEmptyRequestLevelToFirst(t *testing.T) {
	m := newTestManager(t)
	wc := newTestWorkerConn("w1")
	task := &types.Task{ID: 1, State: types.TaskRunning}
	m.tasks[1] = task

	m.escalateOrFail(task, wc)

	assert.Equal(t, types.RequestMax, task.RequestLevel)
	assert.Equal(t, types.TaskReady, task.State)
	require.Len(t, m.ready, 1)
	assert.Equal(t, int64(1), m.ready[0].ID)
}

func TestEscalateOrFailExhaustsAtMaxLevel(t *testing.T) {
	m := newTestManager(t)
	wc := newTestWorkerConn("w1")
	task := &types.Task{ID: 2, State: types.TaskRunning, RequestLevel: types.RequestMax}
	m.tasks[2] = task

	m.escalateOrFail(task, wc)

	assert.Equal(t, types.ResultMaxRetries, task.Result)
	assert.Empty(t, m.ready)
}

func TestEscalateOrFailHonorsMaxRetriesCeiling(t *testing.T) {
	m := newTestManager(t)
	wc := newTestWorkerConn("w1")
	task := &types.Task{ID: 3, State: types.TaskRunning, Tries: 2, MaxRetries: 2}
	m.tasks[3] = task

	m.escalateOrFail(task, wc)

	assert.Equal(t, types.ResultMaxRetries, task.Result)
	assert.Empty(t, m.ready)
}

func TestApplyResultForsakenRequeuesWithoutRetrieval(t *testing.T) {
	m := newTestManager(t)
	wc := newTestWorkerConn("w1")
	m.workers["w1"] = wc
	task := &types.Task{ID: 4, State: types.TaskRunning}
	m.tasks[4] = task
	wc.worker.TaskIDs[4] = true

	m.applyResult(&resultLineEvent{workerID: "w1", taskID: 4, status: statusForsaken})

	assert.Equal(t, types.TaskReady, task.State)
	require.Len(t, m.ready, 1)
	assert.Equal(t, int64(4), m.ready[0].ID)
	assert.Empty(t, task.Result)
}

func TestApplyResultSuccessMovesTaskToRetrieved(t *testing.T) {
	m := newTestManager(t)
	wc := newTestWorkerConn("w1")
	m.workers["w1"] = wc
	task := &types.Task{ID: 5, State: types.TaskRunning, Category: "default"}
	m.tasks[5] = task
	wc.worker.TaskIDs[5] = true

	m.applyResult(&resultLineEvent{workerID: "w1", taskID: 5, status: 0, exitCode: 0, stdout: []byte("ok")})

	assert.Equal(t, types.TaskRetrieved, task.State)
	assert.Equal(t, types.ResultSuccess, task.Result)
	assert.Equal(t, []byte("ok"), task.Stdout)
	assert.True(t, task.StdoutFull)
	assert.EqualValues(t, 1, wc.worker.TasksCompleted)
}

func TestApplyResultTruncatedStdoutRecordsLegacyCode(t *testing.T) {
	m := newTestManager(t)
	wc := newTestWorkerConn("w1")
	m.workers["w1"] = wc
	task := &types.Task{ID: 6, State: types.TaskRunning}
	m.tasks[6] = task
	wc.worker.TaskIDs[6] = true

	m.applyResult(&resultLineEvent{workerID: "w1", taskID: 6, status: 0, stdoutTruncated: true})

	assert.Equal(t, types.ResultStdoutMissing, task.Result)
	assert.False(t, task.StdoutFull)
}

func TestExpireTasksFinalizesReadyPastEndTime(t *testing.T) {
	m := newTestManager(t)
	ch := make(chan *types.Task, 1)
	m.onWait(ch)

	task := &types.Task{ID: 7, State: types.TaskReady, Resources: types.ResourceSpec{EndTime: time.Now().Add(-time.Second)}}
	m.tasks[7] = task
	m.ready = []*types.Task{task}

	m.expireTasks(time.Now())

	assert.Empty(t, m.ready)
	got := <-ch
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, types.ResultTaskTimeout, got.Result)
	assert.Equal(t, types.TaskDone, got.State)
}

func TestExpireTasksFinalizesReadyPastMaxRetries(t *testing.T) {
	m := newTestManager(t)
	task := &types.Task{ID: 8, State: types.TaskReady, MaxRetries: 1, Tries: 2}
	m.tasks[8] = task
	m.ready = []*types.Task{task}

	m.expireTasks(time.Now())

	assert.Empty(t, m.ready)
	assert.Equal(t, types.ResultMaxRetries, task.Result)
	assert.Equal(t, types.TaskRetrieved, task.State)
}

func TestExpireTasksLeavesUnexpiredReadyTasksAlone(t *testing.T) {
	m := newTestManager(t)
	task := &types.Task{ID: 9, State: types.TaskReady, Resources: types.ResourceSpec{EndTime: time.Now().Add(time.Hour)}}
	m.tasks[9] = task
	m.ready = []*types.Task{task}

	m.expireTasks(time.Now())

	require.Len(t, m.ready, 1)
	assert.Equal(t, types.TaskReady, task.State)
}

func TestCatalogStatusSnapshotRunsInsideQuery(t *testing.T) {
	m := newTestManager(t)
	m.cfg.Project = "proj"
	m.tasks[1] = &types.Task{ID: 1, State: types.TaskRunning}

	ctx, cancel := context.WithCancel(context.Background())
	go m.eventLoop(ctx)
	defer cancel()

	status := m.catalogStatusSnapshot()
	assert.Equal(t, "proj", status.Project)
}
