package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running manager's status endpoints",
	Long: `Fetch and pretty-print one of the manager's JSON status
endpoints: queue, task, worker, resources, or wable (availability).`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().String("manager", "http://127.0.0.1:9090", "dswarm manager HTTP status address")
	statusCmd.Flags().String("endpoint", "queue", "Which endpoint to query: queue, task, worker, resources, wable")
}

var statusEndpoints = map[string]string{
	"queue":     "/queue_status",
	"task":      "/task_status",
	"worker":    "/worker_status",
	"resources": "/resources_status",
	"wable":     "/wable_status",
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("manager")
	endpoint, _ := cmd.Flags().GetString("endpoint")

	path, ok := statusEndpoints[endpoint]
	if !ok {
		return fmt.Errorf("unknown endpoint %q (want one of queue, task, worker, resources, wable)", endpoint)
	}

	resp, err := httpClient.Get(addr + path)
	if err != nil {
		return fmt.Errorf("query %s: %v", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("manager returned %s: %s", resp.Status, body)
	}

	var pretty any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a queued or running task",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

func init() {
	cancelCmd.Flags().String("manager", "http://127.0.0.1:9090", "dswarm manager HTTP status address")
}

func runCancel(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("manager")
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid task id %q: %v", args[0], err)
	}

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/tasks/%d", addr, id), nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("manager returned %s: %s", resp.Status, body)
	}
	fmt.Println(string(body))
	return nil
}
