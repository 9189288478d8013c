package manager

import (
	"testing"
	"time"

	"github.com/cuemby/dswarm/pkg/category"
	"github.com/cuemby/dswarm/pkg/events"
	"github.com/cuemby/dswarm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestManager builds a Manager with no store/listener, enough for
// exercising the pure event-loop-adjacent logic directly.
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	return &Manager{
		cfg: Config{
			ShortTimeout:      5 * time.Second,
			KeepaliveInterval: 30 * time.Second,
			KeepaliveTimeout:  30 * time.Second,
			SlowWorkerTimeout: 900 * time.Second,
		},
		eventBroker: broker,
		categories:  category.NewEngine(),
		tasks:       make(map[int64]*types.Task),
		workers:     make(map[string]*workerConn),
		blocklist:   make(map[string]*types.BlocklistEntry),
		factories:   make(map[string]*types.FactoryInfo),
		inbound:     make(chan inboundEvent, 16),
		doneCh:      make(chan struct{}),
		txlog:       &transactionLog{},
		store:       noopStore{},
	}
}

func TestRequeuePutsTaskAtHeadOfReadyQueue(t *testing.T) {
	m := newTestManager(t)
	existing := &types.Task{ID: 1, State: types.TaskReady}
	m.ready = []*types.Task{existing}

	t2 := &types.Task{ID: 2, State: types.TaskRunning, CommitStartAt: time.Now()}
	m.tasks[2] = t2
	m.requeue(t2)

	require.Len(t, m.ready, 2)
	assert.Equal(t, int64(2), m.ready[0].ID)
	assert.Equal(t, types.TaskReady, t2.State)
	assert.True(t, t2.CommitStartAt.IsZero())
}

func TestOnSubmitAssignsIncrementingIDs(t *testing.T) {
	m := newTestManager(t)

	r1 := make(chan int64, 1)
	m.onSubmit(&submitRequest{task: &types.Task{Command: "a"}, result: r1})
	r2 := make(chan int64, 1)
	m.onSubmit(&submitRequest{task: &types.Task{Command: "b"}, result: r2})

	assert.Equal(t, int64(1), <-r1)
	assert.Equal(t, int64(2), <-r2)
	assert.Len(t, m.ready, 2)
}

func TestOnCancelRemovesReadyTask(t *testing.T) {
	m := newTestManager(t)
	task := &types.Task{ID: 5, State: types.TaskReady}
	m.tasks[5] = task
	m.ready = []*types.Task{task}

	result := make(chan bool, 1)
	m.onCancel(&cancelRequest{id: 5, result: result})

	assert.True(t, <-result)
	assert.Empty(t, m.ready)
	assert.Equal(t, types.TaskCanceled, task.State)
}

func TestOnCancelUnknownTaskReturnsFalse(t *testing.T) {
	m := newTestManager(t)
	result := make(chan bool, 1)
	m.onCancel(&cancelRequest{id: 404, result: result})
	assert.False(t, <-result)
}

func TestOnWaitDeliversAlreadyWaitingTask(t *testing.T) {
	m := newTestManager(t)
	task := &types.Task{ID: 9, State: types.TaskRetrieved}
	m.tasks[9] = task

	ch := make(chan *types.Task, 1)
	m.onWait(ch)

	got := <-ch
	assert.Equal(t, int64(9), got.ID)
	assert.Equal(t, types.TaskDone, task.State)
	assert.True(t, task.Delivered)
}

func TestOnWaitRegistersWaiterWhenNothingReady(t *testing.T) {
	m := newTestManager(t)
	ch := make(chan *types.Task, 1)
	m.onWait(ch)
	assert.Len(t, m.waiters, 1)
}

func TestSatisfyWaitersDrainsOnNextTerminalTask(t *testing.T) {
	m := newTestManager(t)
	ch := make(chan *types.Task, 1)
	m.onWait(ch)

	task := &types.Task{ID: 3, State: types.TaskRetrieved}
	m.tasks[3] = task
	m.satisfyWaiters()

	got := <-ch
	assert.Equal(t, int64(3), got.ID)
	assert.Equal(t, types.TaskDone, task.State)
	assert.Empty(t, m.waiters)
}

func TestOnBlockHostIndefinite(t *testing.T) {
	m := newTestManager(t)
	m.onBlockHost(&blockHostRequest{host: "10.0.0.5", indefinite: true})

	entry := m.blocklist["10.0.0.5"]
	require.NotNil(t, entry)
	assert.True(t, entry.Indefinite)
	assert.False(t, entry.Expired(time.Now().Add(time.Hour)))
}

func TestOnBlockHostTimed(t *testing.T) {
	m := newTestManager(t)
	m.onBlockHost(&blockHostRequest{host: "10.0.0.6", duration: time.Minute})

	entry := m.blocklist["10.0.0.6"]
	require.NotNil(t, entry)
	assert.False(t, entry.Expired(time.Now()))
	assert.True(t, entry.Expired(time.Now().Add(2*time.Minute)))
}

func TestMaintenanceCycleSweepsExpiredBlocklist(t *testing.T) {
	m := newTestManager(t)
	m.blocklist["expired"] = &types.BlocklistEntry{Host: "expired", Blocked: true, ReleaseAt: time.Now().Add(-time.Minute)}
	m.blocklist["active"] = &types.BlocklistEntry{Host: "active", Blocked: true, ReleaseAt: time.Now().Add(time.Hour)}

	m.maintenanceCycle()

	assert.NotContains(t, m.blocklist, "expired")
	assert.Contains(t, m.blocklist, "active")
}

func TestFactoryOverCapReportsTrueOnlyWhenOverConnected(t *testing.T) {
	m := newTestManager(t)
	m.factories["f1"] = &types.FactoryInfo{Name: "f1", MaxWorkers: 2, ConnectedWorkers: 3}
	assert.True(t, m.factoryOverCap("f1"))

	m.factories["f2"] = &types.FactoryInfo{Name: "f2", MaxWorkers: 2, ConnectedWorkers: 2}
	assert.False(t, m.factoryOverCap("f2"))

	assert.False(t, m.factoryOverCap("unknown"))
}

// noopStore satisfies storage.Store for tests that never touch disk.
type noopStore struct{}

func (noopStore) SaveCategory(*types.Category) error                { return nil }
func (noopStore) GetCategory(string) (*types.Category, error)       { return nil, nil }
func (noopStore) ListCategories() ([]*types.Category, error)        { return nil, nil }
func (noopStore) DeleteCategory(string) error                       { return nil }
func (noopStore) SaveBlocklistEntry(*types.BlocklistEntry) error     { return nil }
func (noopStore) GetBlocklistEntry(string) (*types.BlocklistEntry, error) { return nil, nil }
func (noopStore) ListBlocklistEntries() ([]*types.BlocklistEntry, error)  { return nil, nil }
func (noopStore) DeleteBlocklistEntry(string) error                 { return nil }
func (noopStore) SaveFactory(*types.FactoryInfo) error               { return nil }
func (noopStore) GetFactory(string) (*types.FactoryInfo, error)      { return nil, nil }
func (noopStore) ListFactories() ([]*types.FactoryInfo, error)       { return nil, nil }
func (noopStore) DeleteFactory(string) error                        { return nil }
func (noopStore) Close() error                                      { return nil }
