package manager

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cuemby/dswarm/pkg/catalog"
	"github.com/cuemby/dswarm/pkg/category"
	"github.com/cuemby/dswarm/pkg/events"
	"github.com/cuemby/dswarm/pkg/log"
	"github.com/cuemby/dswarm/pkg/resources"
	"github.com/cuemby/dswarm/pkg/security"
	"github.com/cuemby/dswarm/pkg/storage"
	"github.com/cuemby/dswarm/pkg/types"
	"github.com/cuemby/dswarm/pkg/wire"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config holds configuration for creating a Manager.
type Config struct {
	BindAddr string
	DataDir  string
	Project  string // catalog project name; empty disables catalog

	Policy     types.SchedulingPolicy
	Overcommit resources.Overcommit

	Password string // shared-password challenge; empty disables auth
	TLS      security.TLSConfig

	ShortTimeout         time.Duration
	KeepaliveInterval    time.Duration
	KeepaliveTimeout     time.Duration
	SlowWorkerTimeout    time.Duration
	CatalogHosts         []string
	CatalogInterval      time.Duration
	FactoryQueryInterval time.Duration

	Timeout wire.TimeoutConfig

	// MaxStdoutBytes caps how much of a task's stdout the manager will
	// buffer off the wire; beyond it the bytes are discarded and the
	// task's result gets STDOUT_MISSING (spec §4.4, §7, §9).
	MaxStdoutBytes int64

	// TransferBytesPerSec throttles file-transfer reads/writes on a
	// worker connection; 0 disables throttling (spec §4.1, §5).
	TransferBytesPerSec int64
}

// DefaultConfig returns the constants named in spec §5.
func DefaultConfig() Config {
	return Config{
		Policy:               types.PolicyFCFS,
		Overcommit:           resources.Overcommit{Multiplier: 1.0},
		ShortTimeout:         5 * time.Second,
		KeepaliveInterval:    30 * time.Second,
		KeepaliveTimeout:     30 * time.Second,
		SlowWorkerTimeout:    900 * time.Second,
		CatalogInterval:      5 * time.Minute,
		FactoryQueryInterval: 5 * time.Minute,
		Timeout:              wire.DefaultTimeoutConfig(),
		MaxStdoutBytes:       1 << 20,
	}
}

// Manager is the dswarm manager: the single-threaded task-dispatch
// engine described in doc.go. Every field below is touched only from
// the event loop goroutine once Run starts; the accept loop and
// per-worker read loops communicate with it exclusively through
// inbound.
type Manager struct {
	cfg Config

	store       storage.Store
	eventBroker *events.Broker
	categories  *category.Engine
	catalog     *catalog.Client
	logger      zerolog.Logger

	listener net.Listener

	nextTaskID int64

	tasks      map[int64]*types.Task
	ready      []*types.Task // priority queue, descending priority / submission order
	workers    map[string]*workerConn // keyed by worker id
	blocklist  map[string]*types.BlocklistEntry
	factories  map[string]*types.FactoryInfo

	waiters []chan *types.Task // pending Wait() calls, FIFO

	inbound chan inboundEvent

	// transferLimiter throttles bulk file/stdout transfer reads and
	// writes across all worker connections (spec §4.1, §5); nil when
	// cfg.TransferBytesPerSec is unset.
	transferLimiter *rate.Limiter

	txlog *transactionLog

	mu        sync.Mutex // guards only the shutdown flag, for concurrent Shutdown calls
	shutdown  bool
	doneCh    chan struct{}
	startedAt time.Time
}

// New constructs a Manager. Call Run to start its event loop.
func New(cfg Config) (*Manager, error) {
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("manager: create data dir: %w", err)
		}
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("manager: open store: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()

	m := &Manager{
		cfg:         cfg,
		store:       store,
		eventBroker: broker,
		categories:  category.NewEngine(),
		logger:      log.WithComponent("manager"),
		tasks:       make(map[int64]*types.Task),
		workers:     make(map[string]*workerConn),
		blocklist:   make(map[string]*types.BlocklistEntry),
		factories:   make(map[string]*types.FactoryInfo),
		inbound:     make(chan inboundEvent, 1024),
		doneCh:      make(chan struct{}),
	}

	if err := m.loadPersisted(); err != nil {
		return nil, err
	}

	txlog, err := newTransactionLog(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("manager: open transaction log: %w", err)
	}
	m.txlog = txlog

	if cfg.TransferBytesPerSec > 0 {
		m.transferLimiter = rate.NewLimiter(rate.Limit(cfg.TransferBytesPerSec), int(cfg.TransferBytesPerSec))
	}

	if len(cfg.CatalogHosts) > 0 && cfg.Project != "" {
		m.catalog = catalog.New(cfg.CatalogHosts, cfg.CatalogInterval, m.catalogStatusSnapshot, m.logger)
	}

	return m, nil
}

// throttle blocks until n bytes of transfer budget are available,
// rate-limiting bulk worker transfers (spec §4.1, §5); a no-op when no
// limiter is configured.
func (m *Manager) throttle(ctx context.Context, n int) {
	if m.transferLimiter == nil || n <= 0 {
		return
	}
	burst := m.transferLimiter.Burst()
	if n > burst {
		n = burst
	}
	_ = m.transferLimiter.WaitN(ctx, n)
}

func (m *Manager) loadPersisted() error {
	cats, err := m.store.ListCategories()
	if err != nil {
		return fmt.Errorf("manager: load categories: %w", err)
	}
	for _, c := range cats {
		m.categories.SetMode(c.Name, c.Mode)
	}

	entries, err := m.store.ListBlocklistEntries()
	if err != nil {
		return fmt.Errorf("manager: load blocklist: %w", err)
	}
	for _, e := range entries {
		m.blocklist[e.Host] = e
	}

	factories, err := m.store.ListFactories()
	if err != nil {
		return fmt.Errorf("manager: load factories: %w", err)
	}
	for _, f := range factories {
		m.factories[f.Name] = f
	}
	return nil
}

// Run starts accepting worker connections and runs the event loop
// until ctx is canceled.
func (m *Manager) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("manager: listen %s: %w", m.cfg.BindAddr, err)
	}
	m.listener = ln
	m.startedAt = time.Now()
	m.logger.Info().Str("addr", m.cfg.BindAddr).Msg("manager listening")

	tlsCfg, err := m.cfg.TLS.ServerConfig()
	if err != nil {
		return fmt.Errorf("manager: tls config: %w", err)
	}

	go m.acceptLoop(ctx, tlsCfg)
	if m.catalog != nil {
		go m.catalog.Run(ctx)
	}

	m.txlog.writeStart()
	m.eventLoop(ctx)
	m.txlog.writeEnd()
	return nil
}

func (m *Manager) acceptLoop(ctx context.Context, tlsCfg *tls.Config) {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				m.logger.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		go m.handleNewConnection(ctx, conn, tlsCfg)
	}
}

// eventLoop is the single goroutine that owns all task/worker state.
func (m *Manager) eventLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdownWorkers()
			close(m.doneCh)
			return

		case ev := <-m.inbound:
			m.handleEvent(ev)

		case <-ticker.C:
			m.dispatchCycle()
			m.keepaliveCycle()
			m.maintenanceCycle()
		}
	}
}

// Shutdown stops the listener and waits for the event loop to drain.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	m.mu.Unlock()

	if m.listener != nil {
		_ = m.listener.Close()
	}
	select {
	case <-m.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.eventBroker.Stop()
	_ = m.txlog.close()
	return m.store.Close()
}

// catalogStatusSnapshot is the StatusFunc handed to the catalog
// client. It runs on the catalog's own ticker goroutine (catalog.Run),
// so it must never touch m.tasks/m.workers directly; it marshals the
// same read through query that pkg/httpapi's status endpoints use,
// keeping every read of manager state on the single event-loop
// goroutine (spec §5, §9; see doc.go).
func (m *Manager) catalogStatusSnapshot() catalog.Status {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ShortTimeout)
	defer cancel()
	v, err := m.query(ctx, func(m *Manager) any { return m.catalogStatus() })
	if err != nil {
		return catalog.Status{Type: "dataswarm_manager", Project: m.cfg.Project}
	}
	return v.(catalog.Status)
}

func (m *Manager) catalogStatus() catalog.Status {
	agg := m.aggregateResources()
	waiting, running, complete := 0, 0, 0
	for _, t := range m.tasks {
		switch t.State {
		case types.TaskReady:
			waiting++
		case types.TaskRunning:
			running++
		case types.TaskDone:
			complete++
		}
	}
	return catalog.Status{
		Type:              "dataswarm_manager",
		Project:           m.cfg.Project,
		WorkersConnected:  len(m.workers),
		TasksWaiting:      waiting,
		TasksRunning:      running,
		TasksComplete:     complete,
		TotalCores:        agg.Cores.Total,
		TotalMemoryMB:     agg.Memory.Total,
		TotalDiskMB:       agg.Disk.Total,
	}
}

// shutdownWorkers notifies every connected worker and tears down its
// connection; called once, from the event loop, as Run's ctx is
// canceled.
func (m *Manager) shutdownWorkers() {
	deadline := time.Now().Add(m.cfg.ShortTimeout)
	for _, wc := range m.workers {
		_ = wc.conn.WriteLine("exit", deadline)
		wc.cancel()
		_ = wc.conn.Close()
	}
}

func (m *Manager) aggregateResources() resources.Set {
	sets := make([]resources.Set, 0, len(m.workers))
	for _, w := range m.workers {
		sets = append(sets, w.worker.Resources)
	}
	return resources.Aggregate(sets)
}
