package wire

import (
	"testing"
	"time"

	"github.com/cuemby/dswarm/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestClassifyAsyncPrefixes(t *testing.T) {
	cases := map[string]Class{
		"resource cores 4":          Processed,
		"feature foo 1":             Processed,
		"info uptime 123":           Processed,
		"cache-update a.txt 10 1 0": Processed,
		"cache-invalid a.txt 2":     Processed,
		"transfer-address 1.2.3.4 9000": Processed,
		"available_results":         Processed,
		"update state ready":        Processed,
		"result 42 0 100 0":         NotProcessed,
		"":                          Failure,
	}
	for line, want := range cases {
		assert.Equal(t, want, Classify(line), "line=%q", line)
	}
}

func TestTransferStoptimeUsesWorkerObservedRate(t *testing.T) {
	cfg := DefaultTimeoutConfig()
	now := time.Unix(1000, 0)
	w := &types.Worker{
		TotalBytesSent:    10_000_000,
		TotalTransferTime: 10 * time.Second, // 1 MB/s observed
	}
	deadline := TransferStoptime(now, cfg, w, QueueBandwidth{}, 1_000_000)
	assert.True(t, deadline.After(now))
	// tolerable rate = 1MB/s / 10 = 100KB/s; 1MB / 100KB/s = 10s
	assert.Equal(t, 10*time.Second, deadline.Sub(now))
}

func TestTransferStoptimeFallsBackToQueueRate(t *testing.T) {
	cfg := DefaultTimeoutConfig()
	now := time.Unix(2000, 0)
	w := &types.Worker{} // no observed history
	q := QueueBandwidth{TotalBytes: 5_000_000, TotalDuration: 5 * time.Second} // 1 MB/s
	deadline := TransferStoptime(now, cfg, w, q, 500_000)
	assert.True(t, deadline.After(now))
}

func TestTransferStoptimeClampsToMinimum(t *testing.T) {
	cfg := DefaultTimeoutConfig()
	cfg.MinimumTransferTimeout = 30 * time.Second
	now := time.Unix(3000, 0)
	w := &types.Worker{
		TotalBytesSent:    100_000_000,
		TotalTransferTime: 1 * time.Second, // very fast worker
	}
	deadline := TransferStoptime(now, cfg, w, QueueBandwidth{}, 1)
	assert.Equal(t, 30*time.Second, deadline.Sub(now))
}

func TestQueueBandwidthRequiresOneSecondOfHistory(t *testing.T) {
	q := QueueBandwidth{TotalBytes: 1000, TotalDuration: 500 * time.Millisecond}
	assert.Equal(t, float64(0), q.BytesPerSecond())
}
