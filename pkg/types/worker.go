package types

import "time"

// WorkerState represents the liveness state of a worker as seen by the host.
type WorkerState string

const (
	// WorkerStateOnline indicates the worker was heard from recently.
	WorkerStateOnline WorkerState = "online"
	// WorkerStateOffline indicates the worker went silent.
	WorkerStateOffline WorkerState = "offline"
)

// WorkerInfo is the host's view of one worker.
// Workers are not registered explicitly; the first message carrying an id creates the entry.
type WorkerInfo struct {
	ID             string      `json:"id"`
	State          WorkerState `json:"state"`
	RemoteAddr     string      `json:"remote_addr,omitempty"`
	FirstSeen      time.Time   `json:"first_seen"`
	LastSeen       time.Time   `json:"last_seen"`
	CurrentTaskID  string      `json:"current_task_id,omitempty"`
	TasksCompleted int         `json:"tasks_completed"`
	TasksFailed    int         `json:"tasks_failed"`
}
