package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/dswarm/pkg/types"
)

// TaskRequest is the JSON shape accepted by POST /tasks: a thin
// front end over types.Task for callers that don't link against the
// manager package directly (the CLI, or any out-of-process submitter).
type TaskRequest struct {
	Command      string            `json:"command"`
	Category     string            `json:"category,omitempty"`
	Tag          string            `json:"tag,omitempty"`
	Priority     int               `json:"priority,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
	Cores        int64             `json:"cores,omitempty"`
	MemoryMB     int64             `json:"memory_mb,omitempty"`
	DiskMB       int64             `json:"disk_mb,omitempty"`
	GPUs         int64             `json:"gpus,omitempty"`
	WallTimeSec  int64             `json:"wall_time_sec,omitempty"`
	MaxRetries   int               `json:"max_retries,omitempty"`
	Features     []string          `json:"features,omitempty"`
	Inputs       []FileRequest     `json:"inputs,omitempty"`
	Outputs      []FileRequest     `json:"outputs,omitempty"`
}

// FileRequest describes one input/output in a TaskRequest. Kind
// defaults to "local_path" when unset.
type FileRequest struct {
	Kind       string `json:"kind,omitempty"`
	Path       string `json:"path"`
	RemoteName string `json:"remote_name"`
	Cache      bool   `json:"cache,omitempty"`
}

func (r *TaskRequest) toTask() *types.Task {
	t := &types.Task{
		Command:    r.Command,
		Category:   r.Category,
		Tag:        r.Tag,
		Priority:   r.Priority,
		Env:        r.Env,
		Features:   r.Features,
		MaxRetries: r.MaxRetries,
		Resources: types.ResourceSpec{
			Cores:    r.Cores,
			MemoryMB: r.MemoryMB,
			DiskMB:   r.DiskMB,
			GPUs:     r.GPUs,
			WallTime: time.Duration(r.WallTimeSec) * time.Second,
		},
	}
	for _, f := range r.Inputs {
		t.Inputs = append(t.Inputs, f.toFile())
	}
	for _, f := range r.Outputs {
		t.Outputs = append(t.Outputs, f.toFile())
	}
	return t
}

func (f *FileRequest) toFile() *types.File {
	kind := types.FileLocalPath
	switch strings.ToLower(f.Kind) {
	case "directory":
		kind = types.FileDirectory
	case "local_piece":
		kind = types.FileLocalPiece
	}
	var flags types.FileFlag
	if f.Cache {
		flags |= types.FlagCache
	}
	return &types.File{Kind: kind, Path: f.Path, RemoteName: f.RemoteName, Flags: flags}
}

// TaskResponse mirrors the task fields a submitter cares about.
type TaskResponse struct {
	ID int64 `json:"id"`
}

func (s *Server) submitTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Command == "" {
		http.Error(w, "command is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	id, err := s.mgr.Submit(ctx, req.toTask())
	writeJSON(w, TaskResponse{ID: id}, err)
}

func (s *Server) waitTask(w http.ResponseWriter, r *http.Request) {
	timeout := 30 * time.Second
	if v := r.URL.Query().Get("timeout"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			timeout = d
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout+5*time.Second)
	defer cancel()
	task, err := s.mgr.Wait(ctx, timeout)
	if err != nil {
		writeJSON(w, nil, err)
		return
	}
	if task == nil {
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, task, nil)
}

func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	idStr := strings.TrimPrefix(r.URL.Path, "/tasks/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "bad task id", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ok, err := s.mgr.Cancel(ctx, id)
	writeJSON(w, map[string]bool{"canceled": ok}, err)
}

func (s *Server) tasksRoot(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/tasks" && r.Method == http.MethodPost:
		s.submitTask(w, r)
	case r.URL.Path == "/tasks/wait":
		s.waitTask(w, r)
	case strings.HasPrefix(r.URL.Path, "/tasks/") && r.Method == http.MethodDelete:
		s.cancelTask(w, r)
	default:
		http.NotFound(w, r)
	}
}
