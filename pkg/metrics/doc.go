// Package metrics provides Prometheus metrics collection and exposition
// for the manager: queue depth and task results, worker counts and
// aggregate resources, scheduling latency, per-category allocation
// stats, keepalive/fast-abort counters, transfer bandwidth, and catalog
// activity. Metrics are exposed over HTTP for scraping, and the same
// package carries JSON health, readiness and liveness handlers
// (health.go); the /healthz and /readyz routes are served by
// pkg/httpapi's own handlers.
package metrics
