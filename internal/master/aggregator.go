package master

import (
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"yqhp/kambo-hive/pkg/types"
)

// ResultAggregator collects completed results grouped by graph.
// Duplicates are accepted and counted; the task queue decides whether a task is done.
type ResultAggregator struct {
	clock   clockwork.Clock
	results map[string][]*types.TaskResult
	total   int

	mu sync.RWMutex
}

// NewResultAggregator creates an empty aggregator.
func NewResultAggregator(clock clockwork.Clock) *ResultAggregator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ResultAggregator{
		clock:   clock,
		results: make(map[string][]*types.TaskResult),
	}
}

// Record appends a copy of result to its graph's list.
func (a *ResultAggregator) Record(result *types.TaskResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}
	r := result.Clone()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.results[r.GraphID] = append(a.results[r.GraphID], r)
	a.total++
	return nil
}

// TotalResults returns how many results were recorded.
func (a *ResultAggregator) TotalResults() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.total
}

// Snapshot returns a deep copy of the aggregate, safe to serialize without holding any lock.
func (a *ResultAggregator) Snapshot() *types.Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	byGraph := make(map[string][]*types.TaskResult, len(a.results))
	for graphID, list := range a.results {
		cp := make([]*types.TaskResult, len(list))
		for i, r := range list {
			cp[i] = r.Clone()
		}
		byGraph[graphID] = cp
	}

	return &types.Snapshot{
		TakenAt:               a.clock.Now(),
		TotalResultsCollected: a.total,
		ResultsByGraph:        byGraph,
	}
}
