package executor

import (
	"context"
	"hash/fnv"
	"math/rand"
	"path/filepath"
	"sort"
	"time"

	"github.com/bytedance/sonic"

	"yqhp/kambo-hive/internal/config"
	"yqhp/kambo-hive/pkg/types"
)

// HeuristicStrategyName is the registry name of HeuristicStrategy.
const HeuristicStrategyName = "heuristic"

// H1 labels a uniformly chosen unvisited vertex 2 and its unvisited neighbours 0
// until every vertex is labelled. A single leftover vertex gets 1.
func H1(g *Graph, rng *rand.Rand) []uint8 {
	n := g.NumVertices()
	labels := make([]uint8, n)

	// unvisited as a dense slice with positions for O(1) removal
	unvisited := make([]int, n)
	pos := make([]int, n)
	for v := 0; v < n; v++ {
		unvisited[v] = v
		pos[v] = v
	}
	remove := func(v int) {
		i := pos[v]
		if i < 0 {
			return
		}
		last := unvisited[len(unvisited)-1]
		unvisited[i] = last
		pos[last] = i
		unvisited = unvisited[:len(unvisited)-1]
		pos[v] = -1
	}

	for len(unvisited) > 0 {
		u := unvisited[rng.Intn(len(unvisited))]
		labels[u] = 2
		remove(u)

		for _, v := range g.Neighbors(u) {
			if pos[v] >= 0 {
				labels[v] = 0
				remove(v)
			}
		}

		if len(unvisited) == 1 {
			labels[unvisited[0]] = 1
			remove(unvisited[0])
		}
	}
	return labels
}

// H2 visits vertices by decreasing degree, labelling each unvisited one 2 and
// its unvisited neighbours 0. A single leftover vertex gets 1.
func H2(g *Graph) []uint8 {
	n := g.NumVertices()
	labels := make([]uint8, n)

	order := make([]int, n)
	for v := range order {
		order[v] = v
	}
	sort.SliceStable(order, func(i, j int) bool {
		return g.Degree(order[i]) > g.Degree(order[j])
	})

	visited := make([]bool, n)
	remaining := n
	for _, u := range order {
		if visited[u] {
			continue
		}
		labels[u] = 2
		visited[u] = true
		remaining--

		for _, v := range g.Neighbors(u) {
			if !visited[v] {
				labels[v] = 0
				visited[v] = true
				remaining--
			}
		}

		if remaining == 1 {
			for v := range visited {
				if !visited[v] {
					labels[v] = 1
					visited[v] = true
				}
			}
			break
		}
	}
	return labels
}

// H3 repeatedly labels 2 the unvisited vertex with the most unvisited
// neighbours and labels those neighbours 0. A single leftover vertex gets 1.
func H3(g *Graph) []uint8 {
	return greedyByLiveDegree(g, false)
}

// H4 works like H3 and additionally labels 1 every vertex left without
// unvisited neighbours after each step.
func H4(g *Graph) []uint8 {
	return greedyByLiveDegree(g, true)
}

func greedyByLiveDegree(g *Graph, labelIsolated bool) []uint8 {
	n := g.NumVertices()
	labels := make([]uint8, n)
	visited := make([]bool, n)
	remaining := n

	liveDegree := func(v int) int {
		d := 0
		for _, w := range g.Neighbors(v) {
			if !visited[w] {
				d++
			}
		}
		return d
	}
	visit := func(v int, label uint8) {
		labels[v] = label
		visited[v] = true
		remaining--
	}

	for remaining > 0 {
		best, bestDegree := -1, -1
		for v := 0; v < n; v++ {
			if visited[v] {
				continue
			}
			// ties go to the highest vertex id
			if d := liveDegree(v); d >= bestDegree {
				best, bestDegree = v, d
			}
		}

		visit(best, 2)
		for _, w := range g.Neighbors(best) {
			if !visited[w] {
				visit(w, 0)
			}
		}

		if labelIsolated {
			for v := 0; v < n; v++ {
				if !visited[v] && liveDegree(v) == 0 {
					visit(v, 1)
				}
			}
		}

		if remaining == 1 {
			for v := 0; v < n; v++ {
				if !visited[v] {
					visit(v, 1)
				}
			}
		}
	}
	return labels
}

// HeuristicStrategy loads the task's graph and searches for a light Roman
// dominating function with the H1..H4 labelers. The deterministic labelers run
// once; H1 is restarted up to Generations times and stops early after
// MaxStagnant restarts without improvement. Fitness is the labelling weight,
// lower is better, and SolutionData holds one label byte per vertex.
type HeuristicStrategy struct {
	graphsDir string
}

// NewHeuristicStrategy creates a strategy reading graphs from graphsDir.
func NewHeuristicStrategy(graphsDir string) *HeuristicStrategy {
	return &HeuristicStrategy{graphsDir: graphsDir}
}

// Name implements ComputeStrategy.
func (s *HeuristicStrategy) Name() string {
	return HeuristicStrategyName
}

// Execute implements ComputeStrategy.
func (s *HeuristicStrategy) Execute(ctx context.Context, task *types.Task, workerID string) (*types.TaskResult, error) {
	start := time.Now()

	cfg, err := ParseComputeConfig(task)
	if err != nil {
		return nil, err
	}

	g, err := LoadGraph(filepath.Join(s.graphsDir, filepath.Base(task.GraphID)))
	if err != nil {
		return nil, NewConfigError(task.ID, "load graph", err)
	}

	best := H2(g)
	iterations := uint64(1)
	for _, labels := range [][]uint8{H3(g), H4(g)} {
		iterations++
		if Weight(labels) < Weight(best) {
			best = labels
		}
	}

	rng := rand.New(rand.NewSource(taskSeed(task)))
	stagnant := 0
	for gen := 0; gen < cfg.Generations; gen++ {
		if ctx.Err() != nil {
			break
		}
		iterations++
		labels := H1(g, rng)
		if Weight(labels) < Weight(best) {
			best = labels
			stagnant = 0
			continue
		}
		stagnant++
		if cfg.MaxStagnant > 0 && stagnant >= cfg.MaxStagnant {
			break
		}
	}

	return &types.TaskResult{
		TaskID:           task.ID,
		WorkerID:         workerID,
		GraphID:          task.GraphID,
		Fitness:          float64(Weight(best)),
		SolutionData:     best,
		IterationsRun:    iterations,
		ProcessingTimeMs: uint64(time.Since(start).Milliseconds()),
	}, nil
}

// ParseComputeConfig decodes the configuration blob carried by a task.
func ParseComputeConfig(task *types.Task) (*config.ComputeConfig, error) {
	if task.Config == "" {
		return nil, NewConfigError(task.ID, "empty task configuration", nil)
	}
	var cfg config.ComputeConfig
	if err := sonic.UnmarshalString(task.Config, &cfg); err != nil {
		return nil, NewConfigError(task.ID, "decode task configuration", err)
	}
	if cfg.Generations < 0 || cfg.MaxStagnant < 0 {
		return nil, NewConfigError(task.ID, "generations and max_stagnant must be non-negative", nil)
	}
	return &cfg, nil
}

// taskSeed derives a reproducible seed from the task identity.
func taskSeed(task *types.Task) int64 {
	h := fnv.New64a()
	h.Write([]byte(task.ID))
	return int64(h.Sum64())
}
