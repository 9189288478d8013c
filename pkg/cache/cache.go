// Package cache implements the staging decisions from spec §4.3: for
// each input file of a task, decide whether a worker already has a
// usable cached copy, and update the cache index in response to the
// worker's cache-update/cache-invalid notices.
//
// Grounded on spec §4.3. The worker-side cache table
// (_examples/original_source/dataswarm/worker/ds_blob_table.c) was
// read for the key/fields shape but isn't reusable here: the manager
// only keeps a shadow of what it believes the worker holds.
package cache

import (
	"time"

	"github.com/cuemby/dswarm/pkg/types"
)

// Decision is what the staging layer should do for one input file
// against one worker's cache index.
type Decision int

const (
	// Send means the file must be transferred before dispatch.
	Send Decision = iota
	// Hit means the worker already has a usable copy; nothing to send.
	Hit
	// StaleHit means the worker has a copy but the manager's local
	// source changed size/mtime since caching; the spec directs
	// running with the stale copy and emitting a warning rather than
	// re-sending (§4.3).
	StaleHit
)

// Evaluate decides what to do for one input file against a worker's
// cache index.
func Evaluate(w *types.Worker, f *types.File, localMTime time.Time, localSize int64) Decision {
	if f.CacheName == "" || !f.HasFlag(types.FlagCache) {
		return Send
	}
	entry, ok := w.Cache[f.CacheName]
	if !ok {
		return Send
	}
	if entry.Size != localSize || !entry.MTime.Equal(localMTime) {
		return StaleHit
	}
	return Hit
}

// Update records a successful materialization reported by the worker's
// "cache-update <cachename> <size> <transfer-usec>" line.
func Update(w *types.Worker, cacheName string, size int64, transferTime time.Duration) {
	w.Cache[cacheName] = &types.CacheEntry{
		CacheName:    cacheName,
		Size:         size,
		MTime:        time.Now(),
		TransferTime: transferTime,
	}
	w.TotalBytesReceived += size
}

// Invalidate removes an entry after the worker reports it couldn't
// materialize a cached item ("cache-invalid"), so subsequent tasks
// re-send it (spec §4.3).
func Invalidate(w *types.Worker, cacheName string) {
	delete(w.Cache, cacheName)
}

// Contains reports whether the worker's cache index currently has an
// entry for the given fingerprint, used by the FILES scheduling policy
// to score workers by bytes-already-cached (spec §4.6).
func Contains(w *types.Worker, cacheName string) bool {
	_, ok := w.Cache[cacheName]
	return ok
}

// CachedBytes sums the size of every input of a task that is already
// present (non-stale) in a worker's cache, used by the FILES policy.
func CachedBytes(w *types.Worker, inputs []*types.File, localMTime func(cacheName string) (time.Time, int64, bool)) int64 {
	var total int64
	for _, f := range inputs {
		if f.CacheName == "" {
			continue
		}
		entry, ok := w.Cache[f.CacheName]
		if !ok {
			continue
		}
		if mt, sz, known := localMTime(f.CacheName); known {
			if entry.Size != sz || !entry.MTime.Equal(mt) {
				continue
			}
		}
		total += entry.Size
	}
	return total
}
