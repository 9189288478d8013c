package manager

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/dswarm/pkg/resources"
	"github.com/cuemby/dswarm/pkg/security"
	"github.com/cuemby/dswarm/pkg/staging"
	"github.com/cuemby/dswarm/pkg/types"
	"github.com/cuemby/dswarm/pkg/wire"
	"github.com/google/uuid"
)

// workerConn pairs a connected worker's state with the connection used
// to reach it. Only the event loop reads or writes worker (the
// shared, authoritative record); the read loop below only ever parses
// bytes and hands parsed events to Manager.inbound.
type workerConn struct {
	conn   *wire.Conn
	worker *types.Worker
	cancel context.CancelFunc
}

// inboundEvent is everything the accept/read goroutines can hand to
// the event loop. Exactly one field is set.
type inboundEvent struct {
	newWorker    *workerConn
	workerLine   *workerLineEvent
	resultLine   *resultLineEvent
	workerGone   *workerGoneEvent
	submit       *submitRequest
	cancelTask   *cancelRequest
	waitRequest  chan *types.Task
	blockHost    *blockHostRequest
	statusQuery  *statusRequest
}

type workerLineEvent struct {
	workerID string
	line     string
	conn     *wire.Conn
}

// resultLineEvent carries a fully-drained worker "result" line: by the
// time this reaches the event loop, readLoop has already read the
// declared stdout payload and fetched any declared output files over
// the same connection (pkg/manager/event.go's applyResult).
type resultLineEvent struct {
	workerID        string
	taskID          int64
	status          int
	exitCode        int
	execUsec        int64
	stdout          []byte
	stdoutTruncated bool
	missingOutputs  []string
}

type workerGoneEvent struct {
	workerID string
	reason   string
}

type submitRequest struct {
	task   *types.Task
	result chan int64
}

type cancelRequest struct {
	id     int64
	tag    string
	result chan bool
}

type blockHostRequest struct {
	host     string
	duration time.Duration // 0 with indefinite=true means forever
	indefinite bool
}

// handleNewConnection runs the handshake (TLS wrap, password
// challenge, protocol banner, resource report) for one accepted
// connection, entirely off the event loop, then hands the finished
// workerConn to it via inbound.
func (m *Manager) handleNewConnection(ctx context.Context, conn net.Conn, tlsCfg *tls.Config) {
	conn = security.WrapServer(conn, tlsCfg)
	c := wire.New(conn)
	deadline := time.Now().Add(m.cfg.KeepaliveTimeout)

	if m.cfg.Password != "" {
		if !m.authenticate(c, deadline) {
			m.logger.Warn().Str("addr", conn.RemoteAddr().String()).Msg("authentication failed")
			conn.Close()
			return
		}
	}

	line, err := c.ReadLine(deadline)
	if err != nil {
		conn.Close()
		return
	}
	fields := strings.Fields(line)
	if len(fields) != 6 || fields[0] != "workqueue/dataswarm" {
		m.logger.Warn().Str("line", line).Msg("protocol banner mismatch, blocking host")
		m.inbound <- inboundEvent{blockHost: &blockHostRequest{host: hostOf(conn.RemoteAddr().String()), indefinite: true}}
		conn.Close()
		return
	}

	proto, _ := strconv.Atoi(fields[1])
	w := types.NewWorker(uuid.NewString(), conn.RemoteAddr().String())
	w.Hostname = fields[2]
	w.OS = fields[3]
	w.Arch = fields[4]
	w.Version = fields[5]
	w.Proto = proto

	if !m.readResourceReport(c, w, deadline) {
		conn.Close()
		return
	}
	w.State = types.WorkerReady

	connCtx, cancel := context.WithCancel(ctx)
	wc := &workerConn{conn: c, worker: w, cancel: cancel}

	select {
	case m.inbound <- inboundEvent{newWorker: wc}:
	case <-ctx.Done():
		conn.Close()
		return
	}

	m.readLoop(connCtx, wc)
}

func (m *Manager) authenticate(c *wire.Conn, deadline time.Time) bool {
	nonce, err := security.NewNonce()
	if err != nil {
		return false
	}
	if err := c.WriteLine(fmt.Sprintf("auth-challenge %x", nonce), deadline); err != nil {
		return false
	}
	resp, err := c.ReadLine(deadline)
	if err != nil {
		return false
	}
	return security.Verify(m.cfg.Password, nonce, strings.TrimPrefix(resp, "auth-response "))
}

// readResourceReport collects the worker's asynchronous "resource ..."
// lines, terminated by "resource tag <n>" (spec §4.10).
func (m *Manager) readResourceReport(c *wire.Conn, w *types.Worker, deadline time.Time) bool {
	for {
		line, err := c.ReadLine(deadline)
		if err != nil {
			return false
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "resource" {
			return false
		}
		if fields[1] == "tag" {
			return true
		}
		if len(fields) != 5 {
			return false
		}
		total, _ := strconv.ParseInt(fields[2], 10, 64)
		smallest, _ := strconv.ParseInt(fields[3], 10, 64)
		largest, _ := strconv.ParseInt(fields[4], 10, 64)
		applyResourceLine(w, fields[1], total, smallest, largest)
	}
}

func applyResourceLine(w *types.Worker, name string, total, smallest, largest int64) {
	var dim *resources.Dimension
	switch name {
	case "cores":
		dim = &w.Resources.Cores
	case "memory":
		dim = &w.Resources.Memory
	case "disk":
		dim = &w.Resources.Disk
	case "gpus":
		dim = &w.Resources.GPUs
	case "workers":
		dim = &w.Resources.Workers
	default:
		return
	}
	dim.Total = total
	dim.Smallest = smallest
	dim.Largest = largest
}

// readLoop reads each subsequent line: a line wire.Classify reports as
// Failure (an empty line) is skipped; a "result"/"update" line carries
// a binary payload this goroutine must drain itself before reading
// anything else; every other line, async notifications included, is
// forwarded to the event loop, which applies it to the task/worker
// tables.
func (m *Manager) readLoop(ctx context.Context, wc *workerConn) {
	defer func() {
		select {
		case m.inbound <- inboundEvent{workerGone: &workerGoneEvent{workerID: wc.worker.ID, reason: "FAILURE"}}:
		case <-ctx.Done():
		}
	}()

	for {
		line, err := wc.conn.ReadLine(time.Now().Add(m.cfg.KeepaliveTimeout))
		if err != nil {
			return
		}
		if wire.Classify(line) == wire.Failure {
			continue
		}

		fields := strings.Fields(line)
		switch {
		case len(fields) > 0 && fields[0] == "result":
			if !m.handleResultLine(ctx, wc, fields) {
				return
			}
			continue
		case len(fields) > 0 && fields[0] == "update":
			if !m.handleUpdateLine(ctx, wc, fields) {
				return
			}
			continue
		}

		select {
		case m.inbound <- inboundEvent{workerLine: &workerLineEvent{workerID: wc.worker.ID, line: line, conn: wc.conn}}:
		case <-ctx.Done():
			return
		}
	}
}

// taskIOSnapshot is the result of a read-only lookup of one task's
// declared output files, run on the event loop (see snapshotTaskOutputs).
type taskIOSnapshot struct {
	found   bool
	outputs []*types.File
}

// snapshotTaskOutputs fetches a task's declared outputs through the
// same query path pkg/httpapi's status endpoints use, so this
// connection's own goroutine never touches m.tasks directly (spec §5,
// §9; see doc.go).
func (m *Manager) snapshotTaskOutputs(ctx context.Context, taskID int64) ([]*types.File, bool) {
	qctx, cancel := context.WithTimeout(ctx, m.cfg.ShortTimeout)
	defer cancel()
	v, err := m.query(qctx, func(m *Manager) any {
		t, ok := m.tasks[taskID]
		if !ok {
			return taskIOSnapshot{}
		}
		return taskIOSnapshot{found: true, outputs: t.Outputs}
	})
	if err != nil {
		return nil, false
	}
	snap := v.(taskIOSnapshot)
	return snap.outputs, snap.found
}

// handleResultLine parses a worker's "result <status> <exit>
// <stdout-len> <exec-usec> <taskid>" line, consumes the declared
// stdout payload, and fetches the task's declared output files over
// the same connection (spec §4.4's WAITING_RETRIEVAL -> RETRIEVED
// step). All of this must happen here, on the connection's sole
// reader, before the loop can read anything else off the wire.
// Grounded on fetch_output_from_worker in
// _examples/original_source/dataswarm/src/manager/ds_manager.c, which
// runs this as a step distinct from, but immediately following,
// parsing the result line itself. Returns false if the connection
// should be torn down.
func (m *Manager) handleResultLine(ctx context.Context, wc *workerConn, fields []string) bool {
	if len(fields) != 6 {
		return true
	}
	status, _ := strconv.Atoi(fields[1])
	exitCode, _ := strconv.Atoi(fields[2])
	stdoutLen, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return false
	}
	execUsec, _ := strconv.ParseInt(fields[4], 10, 64)
	taskID, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return false
	}

	stdoutDeadline := wire.TransferStoptime(time.Now(), m.cfg.Timeout, wc.worker, wire.QueueBandwidth{}, stdoutLen)

	var stdout []byte
	truncated := false
	switch {
	case stdoutLen > m.cfg.MaxStdoutBytes:
		if err := wc.conn.DiscardExact(stdoutLen, stdoutDeadline); err != nil {
			return false
		}
		truncated = true
	case stdoutLen > 0:
		m.throttle(ctx, int(stdoutLen))
		stdout, err = wc.conn.ReadExact(stdoutLen, stdoutDeadline)
		if err != nil {
			return false
		}
	}

	code := resultFromStatus(status)
	var missing []string
	if code != types.ResultForsaken && code != types.ResultResourceExhaustion {
		if outputs, ok := m.snapshotTaskOutputs(ctx, taskID); ok {
			missing = m.fetchOutputs(ctx, wc, outputs)
		}
	}

	ev := &resultLineEvent{
		workerID:        wc.worker.ID,
		taskID:          taskID,
		status:          status,
		exitCode:        exitCode,
		execUsec:        execUsec,
		stdout:          stdout,
		stdoutTruncated: truncated,
		missingOutputs:  missing,
	}
	select {
	case m.inbound <- inboundEvent{resultLine: ev}:
	case <-ctx.Done():
	}
	return true
}

// fetchOutputs issues a "get" request and reads back each declared
// LOCAL_PATH output, via staging.ReadTree (pkg/staging/tree.go), which
// was otherwise unreachable from any manager code path.
func (m *Manager) fetchOutputs(ctx context.Context, wc *workerConn, outputs []*types.File) []string {
	var missing []string
	for _, f := range outputs {
		if f.Kind != types.FileLocalPath {
			continue
		}
		deadline := wire.TransferStoptime(time.Now(), m.cfg.Timeout, wc.worker, wire.QueueBandwidth{}, f.Size)
		if err := staging.WriteGet(wc.conn, f.RemoteName, deadline); err != nil {
			missing = append(missing, f.RemoteName)
			continue
		}
		m.throttle(ctx, int(f.Size))
		miss, err := staging.ReadTree(wc.conn, filepath.Dir(f.Path), deadline)
		if err != nil {
			missing = append(missing, f.RemoteName)
			continue
		}
		missing = append(missing, miss...)
	}
	return missing
}

// handleUpdateLine consumes a watched-output "update" notification's
// payload and applies it to the manager-local copy immediately (spec
// §4.7's append-at-offset/truncate-to-offset+length contract). Its
// payload must be read here, on the connection's sole reader, before
// the loop can read anything else.
func (m *Manager) handleUpdateLine(ctx context.Context, wc *workerConn, fields []string) bool {
	frame, err := staging.DecodeUpdateLine(fields)
	if err != nil {
		return false
	}
	deadline := time.Now().Add(m.cfg.ShortTimeout)
	payload, err := wc.conn.ReadExact(frame.Size, deadline)
	if err != nil {
		return false
	}
	frame.Payload = payload

	if outputs, ok := m.snapshotTaskOutputs(ctx, frame.TaskID); ok {
		for _, f := range outputs {
			if f.RemoteName != frame.Path && filepath.Base(f.Path) != filepath.Base(frame.Path) {
				continue
			}
			local := &staging.Frame{Kind: staging.KindUpdate, Path: filepath.Base(f.Path), Offset: frame.Offset, Size: frame.Size, Payload: frame.Payload}
			_ = staging.ApplyUpdate(filepath.Dir(f.Path), local)
			break
		}
	}
	wc.worker.LastMsgRecv = time.Now()
	return true
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
