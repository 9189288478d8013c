// Package httpapi exposes the manager over HTTP: JSON status
// endpoints, task submit/wait/cancel under /tasks, and health checks,
// grounded on warren's pkg/api health-check server: one
// http.ServeMux, one handler per endpoint, Prometheus wired in
// alongside the liveness/readiness checks (spec §6, SPEC_FULL §6).
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/dswarm/pkg/manager"
	"github.com/cuemby/dswarm/pkg/metrics"
)

// Server serves the manager's HTTP status and health endpoints.
type Server struct {
	mgr *manager.Manager
	mux *http.ServeMux
}

// New builds a Server wired to mgr's status queries.
func New(mgr *manager.Manager) *Server {
	s := &Server{mgr: mgr, mux: http.NewServeMux()}

	s.mux.HandleFunc("/", s.index)
	s.mux.HandleFunc("/queue_status", s.queueStatus)
	s.mux.HandleFunc("/task_status", s.taskStatus)
	s.mux.HandleFunc("/worker_status", s.workerStatus)
	s.mux.HandleFunc("/resources_status", s.resourcesStatus)
	s.mux.HandleFunc("/wable_status", s.availabilityStatus)
	s.mux.HandleFunc("/tasks", s.tasksRoot)
	s.mux.HandleFunc("/tasks/", s.tasksRoot)
	s.mux.HandleFunc("/healthz", s.healthz)
	s.mux.HandleFunc("/readyz", s.readyz)
	s.mux.Handle("/metrics", metrics.Handler())

	return s
}

// Handler returns the HTTP handler, for embedding or for ListenAndServe.
func (s *Server) Handler() http.Handler { return s.mux }

// Start runs a blocking HTTP server on addr until it errors.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Connection", "close")
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("dswarm manager\n\nendpoints:\n" +
		"  /queue_status\n  /task_status\n  /worker_status\n" +
		"  /resources_status\n  /wable_status\n  /healthz\n  /readyz\n  /metrics\n"))
}

func writeJSON(w http.ResponseWriter, v any, err error) {
	w.Header().Set("Connection", "close")
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) queueStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	report, err := s.mgr.QueueStatus(ctx)
	writeJSON(w, report, err)
}

func (s *Server) taskStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	report, err := s.mgr.TaskStatus(ctx)
	writeJSON(w, report, err)
}

func (s *Server) workerStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	report, err := s.mgr.WorkerStatus(ctx)
	writeJSON(w, report, err)
}

func (s *Server) resourcesStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	report, err := s.mgr.ResourcesStatus(ctx)
	writeJSON(w, report, err)
}

func (s *Server) availabilityStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	report, err := s.mgr.AvailabilityStatus(ctx)
	writeJSON(w, report, err)
}

// healthz is a liveness probe: the process is up and serving HTTP.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyz is a readiness probe: the event loop answers a status query
// within the timeout, meaning it isn't wedged.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.mgr.QueueStatus(ctx); err != nil {
		w.Header().Set("Connection", "close")
		http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
