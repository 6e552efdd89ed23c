// Package types defines the core data structures shared by the hive host and workers.
//
// This package contains the records exchanged over the coordination protocol
// and persisted by the host, including:
//   - Task and TaskStatus
//   - TaskResult produced by a compute strategy
//   - DistributionStrategy selectors
//   - WorkerInfo as tracked by the host
//   - Snapshot and Report documents
package types
