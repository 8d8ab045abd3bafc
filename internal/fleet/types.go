package fleet

import "time"

// WorkerStatus is the probed liveness of a worker entry.
type WorkerStatus string

const (
	StatusUnknown  WorkerStatus = "unknown"
	StatusChecking WorkerStatus = "checking"
	StatusOnline   WorkerStatus = "online"
	StatusOffline  WorkerStatus = "offline"
	StatusBusy     WorkerStatus = "busy"
)

// WorkerInfo is the live view of a farm-registered worker: identity plus
// heartbeat bookkeeping. Config-only entries (local workers) have no
// WorkerInfo until they register.
type WorkerInfo struct {
	ID       string    `json:"id"`
	Host     string    `json:"ip"`
	Port     int       `json:"port"`
	JobID    string    `json:"job_id,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}
