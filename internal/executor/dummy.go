package executor

import (
	"context"
	"math/rand"
	"time"

	"yqhp/kambo-hive/pkg/types"
)

// DummyStrategyName is the registry name of DummyStrategy.
const DummyStrategyName = "dummy"

// DummyStrategy sleeps for a fixed delay and reports a synthetic fitness.
// It exercises the coordination path without real computation.
type DummyStrategy struct {
	delay time.Duration
}

// NewDummyStrategy creates a dummy strategy sleeping delay per task.
func NewDummyStrategy(delay time.Duration) *DummyStrategy {
	return &DummyStrategy{delay: delay}
}

// Name implements ComputeStrategy.
func (s *DummyStrategy) Name() string {
	return DummyStrategyName
}

// Execute implements ComputeStrategy.
func (s *DummyStrategy) Execute(ctx context.Context, task *types.Task, workerID string) (*types.TaskResult, error) {
	start := time.Now()

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, NewExecutionError(task.ID, "interrupted", ctx.Err())
		case <-timer.C:
		}
	}

	rng := rand.New(rand.NewSource(taskSeed(task)))
	return &types.TaskResult{
		TaskID:           task.ID,
		WorkerID:         workerID,
		GraphID:          task.GraphID,
		Fitness:          float64(task.RunNumber) + rng.Float64(),
		IterationsRun:    1,
		ProcessingTimeMs: uint64(time.Since(start).Milliseconds()),
	}, nil
}
