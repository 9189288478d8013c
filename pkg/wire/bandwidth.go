package wire

import (
	"time"

	"github.com/cuemby/dswarm/pkg/types"
)

// TimeoutConfig holds the constants the stoptime formula needs beyond
// a single worker's observed history (spec §4.1, §5).
type TimeoutConfig struct {
	ShortTimeout           time.Duration // default 5s, per spec §5
	MinimumTransferTimeout time.Duration
	DefaultBandwidthBps    float64 // used when neither worker nor queue has history
	OutlierFactor          float64 // tolerable-outlier divisor, e.g. 10.0
}

// DefaultTimeoutConfig matches the values named in spec §4.1/§5.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		ShortTimeout:           5 * time.Second,
		MinimumTransferTimeout: 1 * time.Second,
		DefaultBandwidthBps:    1_000_000, // 1 MB/s, a deliberately conservative floor
		OutlierFactor:          10.0,
	}
}

// QueueBandwidth is the manager-wide fallback bandwidth estimate, used
// when a specific worker has no transfer history yet.
type QueueBandwidth struct {
	TotalBytes    int64
	TotalDuration time.Duration
}

// BytesPerSecond returns the manager-wide observed rate, or 0 if there
// isn't enough history (mirrors ds_manager.c's 1-second minimum before
// trusting the ratio).
func (q QueueBandwidth) BytesPerSecond() float64 {
	if q.TotalDuration < time.Second {
		return 0
	}
	return float64(q.TotalBytes) / q.TotalDuration.Seconds()
}

// TransferStoptime computes the deadline for transferring length bytes
// to or from w, per get_transfer_wait_time in
// _examples/original_source/dataswarm/src/manager/ds_manager.c:
// prefer the worker's own observed rate, else the manager-wide rate,
// else a configured default; divide by an outlier-tolerance factor to
// get a "still acceptable" rate, derive the raw timeout from that, and
// floor it at a configured minimum.
func TransferStoptime(now time.Time, cfg TimeoutConfig, w *types.Worker, q QueueBandwidth, length int64) time.Time {
	var rate float64
	if w.TotalTransferTime >= time.Second {
		rate = float64(w.TotalBytesSent+w.TotalBytesReceived) / w.TotalTransferTime.Seconds()
	} else if qr := q.BytesPerSecond(); qr > 0 {
		rate = qr
	} else {
		rate = cfg.DefaultBandwidthBps
	}

	tolerableRate := rate / cfg.OutlierFactor
	timeout := time.Duration(float64(length)/tolerableRate) * time.Second
	if timeout < cfg.MinimumTransferTimeout {
		timeout = cfg.MinimumTransferTimeout
	}
	return now.Add(timeout)
}
