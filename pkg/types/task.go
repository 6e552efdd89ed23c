package types

import (
	"fmt"

	"github.com/google/uuid"
)

// Task is one trial run of a compute strategy against one graph.
// Tasks are created once at seeding time and never mutated afterwards.
type Task struct {
	ID        string `json:"id"`
	GraphID   string `json:"graph_id"`
	RunNumber int    `json:"run_number"`
	// Config is passed through to the compute strategy unmodified.
	Config string `json:"config"`
}

// NewTask creates a task with a fresh random identifier.
func NewTask(graphID string, runNumber int, config string) *Task {
	return &Task{
		ID:        uuid.NewString(),
		GraphID:   graphID,
		RunNumber: runNumber,
		Config:    config,
	}
}

// String returns a short description used in log lines.
func (t *Task) String() string {
	return fmt.Sprintf("%s(%s#%d)", t.ID, t.GraphID, t.RunNumber)
}

// TaskState is the lifecycle state of a task on the host.
type TaskState string

const (
	// TaskStatePending indicates the task waits to be handed out.
	TaskStatePending TaskState = "pending"
	// TaskStateAssigned indicates the task is held by a worker.
	TaskStateAssigned TaskState = "assigned"
	// TaskStateCompleted indicates a result was accepted for the task.
	TaskStateCompleted TaskState = "completed"
	// TaskStateFailed indicates the task exhausted its attempts.
	TaskStateFailed TaskState = "failed"
)

// TaskStatus is the current state of a task. WorkerID is only set while Assigned.
type TaskStatus struct {
	State    TaskState `json:"state"`
	WorkerID string    `json:"worker_id,omitempty"`
	Attempts int       `json:"attempts"`
}

// IsTerminal reports whether the task will never be handed out again.
func (s TaskStatus) IsTerminal() bool {
	return s.State == TaskStateCompleted || s.State == TaskStateFailed
}
