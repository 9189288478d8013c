package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Manifest is the YAML front end over the task data model (SPEC_FULL
// §4.13), the role warren's apply.go plays for service/secret/volume
// resources.
type Manifest struct {
	Tasks []ManifestTask `yaml:"tasks"`
}

// Field tags double as the wire shape posted to the manager's
// POST /tasks endpoint (httpapi.TaskRequest) so no separate
// translation step is needed between manifest and request body.
type ManifestTask struct {
	Command     string            `yaml:"command" json:"command"`
	Category    string            `yaml:"category,omitempty" json:"category,omitempty"`
	Tag         string            `yaml:"tag,omitempty" json:"tag,omitempty"`
	Priority    int               `yaml:"priority,omitempty" json:"priority,omitempty"`
	Env         map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Cores       int64             `yaml:"cores,omitempty" json:"cores,omitempty"`
	MemoryMB    int64             `yaml:"memory_mb,omitempty" json:"memory_mb,omitempty"`
	DiskMB      int64             `yaml:"disk_mb,omitempty" json:"disk_mb,omitempty"`
	GPUs        int64             `yaml:"gpus,omitempty" json:"gpus,omitempty"`
	WallTimeSec int64             `yaml:"wall_time_sec,omitempty" json:"wall_time_sec,omitempty"`
	MaxRetries  int               `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	Features    []string          `yaml:"features,omitempty" json:"features,omitempty"`
	Inputs      []ManifestFile    `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs     []ManifestFile    `yaml:"outputs,omitempty" json:"outputs,omitempty"`
}

type ManifestFile struct {
	Kind       string `yaml:"kind,omitempty" json:"kind,omitempty"`
	Path       string `yaml:"path" json:"path"`
	RemoteName string `yaml:"remote_name" json:"remote_name"`
	Cache      bool   `yaml:"cache,omitempty" json:"cache,omitempty"`
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a YAML task manifest to a running manager",
	Long: `Submit a batch of tasks described in a YAML manifest.

Example:
  dswarmctl submit -f tasks.yaml`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringP("file", "f", "", "YAML manifest to apply (required)")
	submitCmd.Flags().String("manager", "http://127.0.0.1:9090", "dswarm manager HTTP status address")
	submitCmd.Flags().Bool("wait", false, "Block until all submitted tasks reach a terminal state")
	_ = submitCmd.MarkFlagRequired("file")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	addr, _ := cmd.Flags().GetString("manager")
	shouldWait, _ := cmd.Flags().GetBool("wait")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("failed to parse manifest: %v", err)
	}
	if len(manifest.Tasks) == 0 {
		return fmt.Errorf("manifest contains no tasks")
	}

	ids := make([]int64, 0, len(manifest.Tasks))
	for i, t := range manifest.Tasks {
		if t.Command == "" {
			return fmt.Errorf("task %d: command is required", i)
		}
		id, err := postTask(addr, t)
		if err != nil {
			return fmt.Errorf("task %d: %v", i, err)
		}
		fmt.Printf("submitted task %d: %s\n", id, t.Command)
		ids = append(ids, id)
	}

	if !shouldWait {
		return nil
	}
	remaining := map[int64]bool{}
	for _, id := range ids {
		remaining[id] = true
	}
	for len(remaining) > 0 {
		task, err := waitTask(addr, 30*time.Second)
		if err != nil {
			return fmt.Errorf("wait: %v", err)
		}
		if task == nil {
			continue
		}
		if remaining[task.ID] {
			delete(remaining, task.ID)
			fmt.Printf("task %d done: result=%s exit=%d\n", task.ID, task.Result, task.ExitCode)
		}
	}
	return nil
}

type taskResult struct {
	ID       int64  `json:"id"`
	Result   string `json:"result"`
	ExitCode int    `json:"exit_code"`
}

func postTask(addr string, t ManifestTask) (int64, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return 0, err
	}
	resp, err := httpClient.Post(addr+"/tasks", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("manager returned %s: %s", resp.Status, msg)
	}
	var out struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

func waitTask(addr string, timeout time.Duration) (*taskResult, error) {
	resp, err := httpClient.Get(fmt.Sprintf("%s/tasks/wait?timeout=%s", addr, timeout))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("manager returned %s: %s", resp.Status, msg)
	}
	var t taskResult
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, err
	}
	return &t, nil
}
