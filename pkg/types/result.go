package types

// TaskResult is produced by a compute strategy for exactly one task.
// Whether lower or higher Fitness is better is decided by the strategy.
type TaskResult struct {
	TaskID           string  `json:"task_id"`
	WorkerID         string  `json:"worker_id"`
	GraphID          string  `json:"graph_id"`
	Fitness          float64 `json:"fitness"`
	SolutionData     []byte  `json:"solution_data"`
	IterationsRun    uint64  `json:"iterations_run"`
	ProcessingTimeMs uint64  `json:"processing_time_ms"`
}

// Clone returns a deep copy of the result.
func (r *TaskResult) Clone() *TaskResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.SolutionData != nil {
		c.SolutionData = append([]byte(nil), r.SolutionData...)
	}
	return &c
}
