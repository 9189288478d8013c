// Package types holds the data model shared across the manager: tasks,
// files, workers, categories, and the small value types they're built
// from. Nothing in this package talks to the network or to disk.
package types

import "time"

// TaskState is a task's position in the dispatch lifecycle (spec §4.4).
type TaskState string

const (
	TaskReady             TaskState = "READY"
	TaskRunning           TaskState = "RUNNING"
	TaskWaitingRetrieval  TaskState = "WAITING_RETRIEVAL"
	TaskRetrieved         TaskState = "RETRIEVED"
	TaskDone              TaskState = "DONE"
	TaskCanceled          TaskState = "CANCELED"
)

// RequestLevel controls which category-suggested allocation size a
// task's next dispatch attempt uses.
type RequestLevel string

const (
	RequestFirst RequestLevel = "FIRST"
	RequestMax   RequestLevel = "MAX"
	RequestError RequestLevel = "ERROR"
)

// Result is the task-visible outcome taxonomy (spec §7).
type Result string

const (
	ResultSuccess            Result = "SUCCESS"
	ResultInputMissing       Result = "INPUT_MISSING"
	ResultOutputMissing      Result = "OUTPUT_MISSING"
	ResultStdoutMissing      Result = "STDOUT_MISSING"
	ResultSignal             Result = "SIGNAL"
	ResultResourceExhaustion Result = "RESOURCE_EXHAUSTION"
	ResultTaskTimeout        Result = "TASK_TIMEOUT"
	ResultMaxRunTime         Result = "TASK_MAX_RUN_TIME"
	ResultForsaken           Result = "FORSAKEN"
	ResultMaxRetries         Result = "MAX_RETRIES"
	ResultDiskAllocFull      Result = "DISK_ALLOC_FULL"
	ResultMonitorError       Result = "MONITOR_ERROR"
	ResultOutputTransferErr  Result = "OUTPUT_TRANSFER_ERROR"
	ResultUnknown            Result = "UNKNOWN"
)

// ResourceSpec is what a task asks for, in the same dimensions the
// worker reports (spec §3, §4.2). Zero means "not specified" except
// where noted.
type ResourceSpec struct {
	Cores    int64
	MemoryMB int64
	DiskMB   int64
	GPUs     int64
	WallTime time.Duration // 0 = unbounded
	EndTime  time.Time     // zero = unbounded
}

// Task is a single unit of work submitted by the embedding application.
type Task struct {
	ID       int64
	Tag      string // free-form app correlation string (§3 ADDED)
	Command  string
	Category string
	Priority int // higher dispatches first (§3 ADDED, §5)

	Inputs  []*File
	Outputs []*File
	Env     map[string]string

	Resources      ResourceSpec
	RequestLevel   RequestLevel
	Features       []string // required worker features (§4.6 fit rule 7)

	State TaskState

	Tries          int
	FastAbortCount int
	MaxRetries     int // 0 = unbounded; retry ceiling on RESOURCE_EXHAUSTION (§3 ADDED, §4.4)

	SubmittedAt        time.Time
	CommitStartAt      time.Time
	CommitEndAt        time.Time
	RetrievedAt        time.Time
	DoneAt             time.Time
	WorkerStartAt      time.Time // time_when_commit_start semantics
	WorkersExecuteLast time.Duration
	WorkersExecuteAll  time.Duration

	Result     Result
	ExitCode   int
	Stdout     []byte
	StdoutFull bool // false if truncated at the cap
	Delivered  bool // already handed back through Wait (§3 ADDED, §4.4)

	Measured       *ResourceSpec // peak resources actually used, if known
	MonitorOutput  []byte        // captured resource-usage record, if any

	WorkerAddr string // host:port of the worker that ran it, if any
}

// TimeWhenCommitStartZero reports the invariant from spec §8: a READY
// task's commit-start timestamp must be the zero value.
func (t *Task) TimeWhenCommitStartZero() bool {
	return t.CommitStartAt.IsZero()
}

// FileKind enumerates the shapes a File can take (spec §3).
type FileKind string

const (
	FileLiteral      FileKind = "LITERAL"       // buffer supplied inline
	FileLocalPath    FileKind = "LOCAL_PATH"    // path on the manager's filesystem
	FileLocalPiece   FileKind = "LOCAL_PIECE"   // offset+length slice of a local path
	FileRemoteURL    FileKind = "REMOTE_URL"    // fetched by the worker
	FileRemoteCmd    FileKind = "REMOTE_CMD"    // produced by a command on the worker
	FileDirectory    FileKind = "DIRECTORY"     // empty directory marker
)

// FileFlag are independent per-File behavior bits (spec §3).
type FileFlag int

const (
	FlagCache FileFlag = 1 << iota
	FlagWatch
	FlagFailureOnly
	FlagSuccessOnly
)

// File describes one task input or output.
type File struct {
	Kind FileKind

	// Source is a local path, inline buffer, URL, or command,
	// depending on Kind.
	Source []byte
	Path   string

	// RemoteName is the path the file should appear at inside the
	// worker's sandbox.
	RemoteName string

	// CacheName is the content-addressed fingerprint used to dedupe
	// the object across tasks on one worker (spec §3, §4.3). Empty if
	// the file isn't cacheable.
	CacheName string

	Flags FileFlag

	Size int64

	// Offset/Length apply only to FileLocalPiece.
	Offset int64
	Length int64
}

func (f *File) HasFlag(flag FileFlag) bool { return f.Flags&flag != 0 }

// AllocationMode controls how a Category derives first/max allocations
// (spec §4.5).
type AllocationMode string

const (
	AllocationFixed         AllocationMode = "FIXED"
	AllocationMax           AllocationMode = "MAX"
	AllocationMinWaste      AllocationMode = "MIN_WASTE"
	AllocationMaxThroughput AllocationMode = "MAX_THROUGHPUT"
)

// DefaultCategory is the name used by tasks that don't specify one.
const DefaultCategory = "default"

// BlocklistEntry records why and until when a worker host is barred
// from receiving tasks (spec §3).
type BlocklistEntry struct {
	Host        string
	Blocked     bool
	TimesBlocked int
	ReleaseAt   time.Time // zero value with Indefinite=true means never
	Indefinite  bool
}

// Expired reports whether a timed block has elapsed as of now.
func (b *BlocklistEntry) Expired(now time.Time) bool {
	if !b.Blocked {
		return true
	}
	if b.Indefinite {
		return false
	}
	return !now.Before(b.ReleaseAt)
}

// FactoryInfo tracks a catalog-advertised worker factory's cap
// (spec §3, §4.11).
type FactoryInfo struct {
	Name             string
	MaxWorkers       int
	ConnectedWorkers int
	SeenAtCatalog    time.Time
}

// SchedulingPolicy selects which scheduling heuristic the manager uses
// (spec §4.6).
type SchedulingPolicy string

const (
	PolicyFiles    SchedulingPolicy = "FILES"
	PolicyTime     SchedulingPolicy = "TIME"
	PolicyWorstFit SchedulingPolicy = "WORST_FIT"
	PolicyFCFS     SchedulingPolicy = "FCFS"
	PolicyRandom   SchedulingPolicy = "RANDOM"
)
