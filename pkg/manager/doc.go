/*
Package manager implements the dswarm manager: a single-threaded,
single-process task-dispatch engine that accepts worker connections,
learns their resources, matches ready tasks to workers under a
scheduling policy, streams input/output files, and surfaces completed
tasks back to the embedding application through Submit/Wait/Cancel.

# Architecture

	┌───────────────────────── MANAGER PROCESS ─────────────────────────┐
	│                                                                     │
	│  ┌───────────────┐   accepted net.Conn    ┌─────────────────────┐ │
	│  │ accept loop    │ ───────────────────▶  │   event channel     │ │
	│  │ (goroutine)    │                        └──────────┬──────────┘ │
	│  └───────────────┘                                    │            │
	│  ┌───────────────┐   worker line/payload               │            │
	│  │ per-worker     │ ───────────────────────────────────┘            │
	│  │ read loop      │                                                 │
	│  │ (goroutine)    │                                                 │
	│  └───────────────┘                                                 │
	│                                                                     │
	│                     ┌─────────────────────────────┐                │
	│                     │        event loop            │                │
	│                     │  (single goroutine, owns     │                │
	│                     │   ALL task/worker/category/  │                │
	│                     │   blocklist/factory state —  │                │
	│                     │   no locks around any of it)  │                │
	│                     │                               │                │
	│                     │  - drains event channel       │                │
	│                     │  - runs dispatch cycle        │                │
	│                     │  - runs keepalive/fast-abort  │                │
	│                     │  - runs blocklist/factory     │                │
	│                     │    maintenance sweep          │                │
	│                     │  - appends transaction/stats  │                │
	│                     │    log records                │                │
	│                     └───────────────┬───────────────┘                │
	│                                     │                                │
	│                     ┌───────────────▼───────────────┐                │
	│                     │   pkg/scheduler (Fits/Pick)    │                │
	│                     │   pkg/category (allocation)    │                │
	│                     │   pkg/cache (staging decision)  │                │
	│                     │   pkg/storage (bbolt: category/ │                │
	│                     │     blocklist/factory persist)  │                │
	│                     └─────────────────────────────────┘                │
	└─────────────────────────────────────────────────────────────────────┘

The only goroutines besides the event loop are the accept loop and one
read loop per connected worker; both only ever write to the event
channel, never touch task/worker state directly. This is the Go
rendering of the single-threaded poll loop the design calls for
(spec §5): real OS threads stand in for select()-driven readiness, but
the ownership discipline — one goroutine mutates shared state — is the
same invariant the original's single poll loop enforces.

Grounded on warren pkg/manager/manager.go's Config/NewManager/Shutdown
lifecycle shape and its use of metrics.NewTimer() around state-changing
calls; the Raft/FSM/DNS/ingress/secrets/ACME machinery in that file has
no home here (see DESIGN.md) and is replaced by the task/worker tables
and dispatch cycle described above.
*/
package manager
