package types

import "time"

// Snapshot is the persisted view of all results collected so far.
type Snapshot struct {
	TakenAt               time.Time                `json:"taken_at"`
	TotalResultsCollected int                      `json:"total_results_collected"`
	ResultsByGraph        map[string][]*TaskResult `json:"results_by_graph"`
}

// Progress is a read-only view of the task queue counters.
type Progress struct {
	TotalTasks     int `json:"total_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	FailedTasks    int `json:"failed_tasks"`
	PendingTasks   int `json:"pending_tasks"`
	AssignedTasks  int `json:"assigned_tasks"`
}

// Done reports whether every task reached a terminal state.
func (p Progress) Done() bool {
	return p.CompletedTasks+p.FailedTasks >= p.TotalTasks
}

// GraphSummary holds per-graph statistics for the final report.
// Fitness direction is up to the compute strategy, so both extremes are kept.
type GraphSummary struct {
	Runs            int     `json:"runs"`
	MinFitness      float64 `json:"min_fitness"`
	MaxFitness      float64 `json:"max_fitness"`
	MeanFitness     float64 `json:"mean_fitness"`
	ProcessingP50Ms int64   `json:"processing_p50_ms"`
	ProcessingP95Ms int64   `json:"processing_p95_ms"`
	ProcessingMaxMs int64   `json:"processing_max_ms"`
}

// Report is the final document written when all tasks are done.
type Report struct {
	GeneratedAt           time.Time                `json:"generated_at"`
	TotalTasks            int                      `json:"total_tasks"`
	CompletedTasks        int                      `json:"completed_tasks"`
	FailedTasks           int                      `json:"failed_tasks"`
	TotalResultsCollected int                      `json:"total_results_collected"`
	Summary               map[string]*GraphSummary `json:"summary"`
	ResultsByGraph        map[string][]*TaskResult `json:"results_by_graph"`
}
