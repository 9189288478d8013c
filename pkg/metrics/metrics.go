package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dswarm_tasks_total",
			Help: "Total number of tasks by state",
		},
		[]string{"state"},
	)

	TasksSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dswarm_tasks_submitted_total",
			Help: "Total number of tasks submitted",
		},
	)

	TasksCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dswarm_tasks_completed_total",
			Help: "Total number of tasks completed by result",
		},
		[]string{"result"},
	)

	TasksCanceledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dswarm_tasks_canceled_total",
			Help: "Total number of tasks canceled",
		},
	)

	// Worker metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dswarm_workers_total",
			Help: "Total number of connected workers by state",
		},
		[]string{"state"},
	)

	WorkersConnectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dswarm_workers_connected_total",
			Help: "Total number of worker connections accepted",
		},
	)

	WorkersDisconnectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dswarm_workers_disconnected_total",
			Help: "Total number of worker disconnections by reason",
		},
		[]string{"reason"},
	)

	WorkersBlocklistedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dswarm_workers_blocklisted_total",
			Help: "Total number of times a worker host was added to the blocklist",
		},
	)

	// Resource gauges, aggregated across connected workers (spec §4.2)
	ResourcesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dswarm_resources_total",
			Help: "Aggregate worker resources by dimension",
		},
		[]string{"dimension"},
	)

	ResourcesInUse = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dswarm_resources_inuse",
			Help: "Aggregate worker resources committed to running tasks by dimension",
		},
		[]string{"dimension"},
	)

	// Scheduler metrics
	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dswarm_scheduling_latency_seconds",
			Help:    "Time taken to pick a worker for a ready task",
			Buckets: prometheus.DefBuckets,
		},
	)

	TasksDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dswarm_tasks_dispatched_total",
			Help: "Total number of tasks dispatched by scheduling policy",
		},
		[]string{"policy"},
	)

	TasksResourceExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dswarm_tasks_resource_exhausted_total",
			Help: "Total number of RESOURCE_EXHAUSTION results triggering a retry escalation",
		},
	)

	// Category/allocation metrics
	CategoryFirstAllocation = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dswarm_category_first_allocation",
			Help: "Learned first_allocation per category and dimension",
		},
		[]string{"category", "dimension"},
	)

	CategoryMaxAllocation = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dswarm_category_max_allocation",
			Help: "Max (retry ceiling) allocation per category and dimension",
		},
		[]string{"category", "dimension"},
	)

	CategoryAvgTaskTime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dswarm_category_avg_task_time_seconds",
			Help: "Average measured task runtime per category",
		},
		[]string{"category"},
	)

	// Keepalive / fast-abort metrics
	KeepaliveTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dswarm_keepalive_timeouts_total",
			Help: "Total number of workers dropped for missing a keepalive",
		},
	)

	FastAbortsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dswarm_fast_aborts_total",
			Help: "Total number of tasks killed by the fast-abort heuristic",
		},
	)

	// File staging / transfer metrics
	BytesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dswarm_bytes_sent_total",
			Help: "Total bytes sent to workers for input staging",
		},
	)

	BytesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dswarm_bytes_received_total",
			Help: "Total bytes received from workers for output retrieval",
		},
	)

	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dswarm_cache_hits_total",
			Help: "Total number of input files satisfied by a worker's cache instead of a transfer",
		},
	)

	TransferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dswarm_transfer_duration_seconds",
			Help:    "File staging transfer duration in seconds by direction",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"direction"},
	)

	// Catalog metrics
	CatalogUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dswarm_catalog_updates_total",
			Help: "Total number of catalog advertisements sent",
		},
	)

	FactoriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dswarm_factories_total",
			Help: "Total number of worker factories known to the manager",
		},
	)
)

func init() {
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TasksSubmittedTotal)
	prometheus.MustRegister(TasksCompletedTotal)
	prometheus.MustRegister(TasksCanceledTotal)
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(WorkersConnectedTotal)
	prometheus.MustRegister(WorkersDisconnectedTotal)
	prometheus.MustRegister(WorkersBlocklistedTotal)
	prometheus.MustRegister(ResourcesTotal)
	prometheus.MustRegister(ResourcesInUse)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(TasksDispatchedTotal)
	prometheus.MustRegister(TasksResourceExhaustedTotal)
	prometheus.MustRegister(CategoryFirstAllocation)
	prometheus.MustRegister(CategoryMaxAllocation)
	prometheus.MustRegister(CategoryAvgTaskTime)
	prometheus.MustRegister(KeepaliveTimeoutsTotal)
	prometheus.MustRegister(FastAbortsTotal)
	prometheus.MustRegister(BytesSentTotal)
	prometheus.MustRegister(BytesReceivedTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(TransferDuration)
	prometheus.MustRegister(CatalogUpdatesTotal)
	prometheus.MustRegister(FactoriesTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
