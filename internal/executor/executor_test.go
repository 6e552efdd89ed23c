package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/kambo-hive/pkg/types"
)

type panicStrategy struct{}

func (panicStrategy) Name() string { return "panic" }

func (panicStrategy) Execute(context.Context, *types.Task, string) (*types.TaskResult, error) {
	panic("index out of range")
}

type nilStrategy struct{}

func (nilStrategy) Name() string { return "nil" }

func (nilStrategy) Execute(context.Context, *types.Task, string) (*types.TaskResult, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewDummyStrategy(0)))
	assert.Error(t, r.Register(NewDummyStrategy(0)))
	assert.Error(t, r.Register(nil))

	s, err := r.Get(DummyStrategyName)
	require.NoError(t, err)
	assert.Equal(t, DummyStrategyName, s.Name())

	_, err = r.Get("genetic")
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "STRATEGY_NOT_FOUND")
}

func TestDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry(t.TempDir())
	assert.Equal(t, []string{DummyStrategyName, HeuristicStrategyName}, r.Names())
}

func TestSafeExecuteRecoversPanic(t *testing.T) {
	task := types.NewTask("g", 1, "{}")

	result, err := SafeExecute(context.Background(), panicStrategy{}, task, "w")
	assert.Nil(t, result)
	require.Error(t, err)
	assert.Equal(t, ErrCodeExecution, GetErrorCode(err))
	assert.Contains(t, err.Error(), "index out of range")
}

func TestSafeExecuteNilResult(t *testing.T) {
	_, err := SafeExecute(context.Background(), nilStrategy{}, types.NewTask("g", 1, "{}"), "w")
	assert.Equal(t, ErrCodeExecution, GetErrorCode(err))
}

func TestDummyStrategy(t *testing.T) {
	task := types.NewTask("g1.txt", 3, "{}")
	result, err := NewDummyStrategy(time.Millisecond).Execute(context.Background(), task, "w1")
	require.NoError(t, err)

	assert.Equal(t, task.ID, result.TaskID)
	assert.Equal(t, "w1", result.WorkerID)
	assert.Equal(t, "g1.txt", result.GraphID)
	assert.GreaterOrEqual(t, result.Fitness, 3.0)
	assert.Less(t, result.Fitness, 4.0)
}

func TestDummyStrategyInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDummyStrategy(time.Hour).Execute(ctx, types.NewTask("g", 1, "{}"), "w")
	assert.True(t, errors.Is(err, context.Canceled))
}

func writeGraph(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestHeuristicStrategy(t *testing.T) {
	dir := t.TempDir()
	// star with centre 0 plus a separate edge 5-6
	writeGraph(t, dir, "star.txt", "0 1\n0 2\n0 3\n0 4\n5 6\n")

	task := types.NewTask("star.txt", 1, `{"generations":20,"max_stagnant":5}`)
	result, err := NewHeuristicStrategy(dir).Execute(context.Background(), task, "w1")
	require.NoError(t, err)

	g, err := LoadGraph(filepath.Join(dir, "star.txt"))
	require.NoError(t, err)
	assert.True(t, g.IsRomanDominating(result.SolutionData))
	// optimum: 2 on the centre, 2 on one end of the edge
	assert.Equal(t, 4.0, result.Fitness)
	assert.Equal(t, "w1", result.WorkerID)
	assert.GreaterOrEqual(t, result.IterationsRun, uint64(4))
	assert.LessOrEqual(t, result.IterationsRun, uint64(23))
}

func TestHeuristicStrategyReproducible(t *testing.T) {
	dir := t.TempDir()
	writeGraph(t, dir, "cycle.txt", "0 1\n1 2\n2 3\n3 4\n4 5\n5 6\n6 7\n7 0\n")

	task := types.NewTask("cycle.txt", 1, `{"generations":50}`)
	s := NewHeuristicStrategy(dir)
	a, err := s.Execute(context.Background(), task, "w")
	require.NoError(t, err)
	b, err := s.Execute(context.Background(), task, "w")
	require.NoError(t, err)

	assert.Equal(t, a.SolutionData, b.SolutionData)
	assert.Equal(t, a.Fitness, b.Fitness)
}

func TestHeuristicStrategyErrors(t *testing.T) {
	dir := t.TempDir()
	writeGraph(t, dir, "g.txt", "0 1\n")
	s := NewHeuristicStrategy(dir)

	tests := []struct {
		name string
		task *types.Task
	}{
		{"empty config", types.NewTask("g.txt", 1, "")},
		{"malformed config", types.NewTask("g.txt", 1, "{not json")},
		{"negative generations", types.NewTask("g.txt", 1, `{"generations":-1}`)},
		{"missing graph", types.NewTask("missing.txt", 1, "{}")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := SafeExecute(context.Background(), s, tt.task, "w")
			assert.Nil(t, result)
			assert.True(t, IsConfigError(err), "got %v", err)
		})
	}
}
