package master

import "errors"

var (
	// ErrUnknownAssignment is returned when a task is not currently assigned to the reporting worker.
	ErrUnknownAssignment = errors.New("unknown assignment")
	// ErrTaskNotFound is returned for task ids the queue never seeded.
	ErrTaskNotFound = errors.New("task not found")
	// ErrNoGraphs is returned when the graph directory holds no graph files.
	ErrNoGraphs = errors.New("no graph files found")
)
