package catalog

// maxStatusBytes approximates the historical UDP-datagram-sized limit
// the catalog protocol inherited; a status object that would exceed it
// is re-sent as a Lean variant instead (spec §4.11).
const maxStatusBytes = 1400

// Status is the periodic advertisement pushed to each catalog host.
type Status struct {
	Type    string `json:"type"`
	Project string `json:"project"`
	Name    string `json:"name,omitempty"`
	Owner   string `json:"owner,omitempty"`
	Version string `json:"version,omitempty"`
	Host    string `json:"host"`
	Port    int    `json:"port"`

	WorkersConnected int `json:"workers_connected"`
	TasksWaiting      int `json:"tasks_waiting"`
	TasksRunning      int `json:"tasks_running"`
	TasksComplete     int `json:"tasks_complete"`

	TotalCores    int64 `json:"total_cores"`
	TotalMemoryMB int64 `json:"total_memory_mb"`
	TotalDiskMB   int64 `json:"total_disk_mb"`

	StartTime int64 `json:"start_time"`
}

// Lean drops the purely cosmetic fields, for use when the full object
// would exceed maxStatusBytes.
func (s Status) Lean() Status {
	lean := s
	lean.Name = ""
	lean.Owner = ""
	lean.Version = ""
	return lean
}
