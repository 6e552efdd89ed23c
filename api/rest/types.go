package rest

import "yqhp/kambo-hive/pkg/types"

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
}

// ProgressResponse represents the task queue progress.
type ProgressResponse struct {
	types.Progress
	Strategy      string `json:"strategy"`
	Done          bool   `json:"done"`
	OnlineWorkers int    `json:"online_workers"`
}

// WorkerListResponse represents a list of workers.
type WorkerListResponse struct {
	Workers []types.WorkerInfo `json:"workers"`
	Total   int                `json:"total"`
	Online  int                `json:"online"`
}

// GraphResultsResponse represents the results collected for one graph.
type GraphResultsResponse struct {
	GraphID string              `json:"graph_id"`
	Results []*types.TaskResult `json:"results"`
	Total   int                 `json:"total"`
}
