// Package master provides property-based tests for the task queue.
package master

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"yqhp/kambo-hive/pkg/types"
)

// TestConcurrentNextTaskMutualExclusion checks that concurrent pops never hand
// out the same task twice and that every task is handed out exactly once.
func TestConcurrentNextTaskMutualExclusion(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	strategies := []types.DistributionStrategy{types.StrategyFifo, types.StrategyLifo, types.StrategyRandom}

	properties.Property("each task is assigned at most once", prop.ForAll(
		func(taskCount, workers, strategyIdx int) bool {
			m := NewTaskManager(strategies[strategyIdx])
			m.Seed("g", taskCount, "")

			var (
				mu   sync.Mutex
				seen = make(map[string]int)
				wg   sync.WaitGroup
			)
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						task, ok := m.NextTask("w")
						if !ok {
							return
						}
						mu.Lock()
						seen[task.ID]++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			if len(seen) != taskCount {
				return false
			}
			for _, n := range seen {
				if n != 1 {
					return false
				}
			}
			return m.Progress().AssignedTasks == taskCount
		},
		gen.IntRange(1, 200),
		gen.IntRange(1, 16),
		gen.IntRange(0, 2),
	))

	properties.TestingRun(t)
}

// TestNextTaskNoneIffEmpty checks next_task returns none exactly when nothing is pending.
func TestNextTaskNoneIffEmpty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		strategy := rapid.SampledFrom([]types.DistributionStrategy{
			types.StrategyFifo, types.StrategyLifo, types.StrategyRandom,
		}).Draw(t, "strategy")
		m := NewTaskManager(strategy, WithSeed(rapid.Int64().Draw(t, "seed")))

		ops := rapid.SliceOfN(rapid.IntRange(0, 2), 1, 100).Draw(t, "ops")
		var held []string
		for _, op := range ops {
			switch op {
			case 0:
				m.Seed("g", 1, "")
			case 1:
				pendingBefore := m.Progress().PendingTasks
				task, ok := m.NextTask("w")
				if ok != (pendingBefore > 0) {
					t.Fatalf("next_task ok=%v with %d pending", ok, pendingBefore)
				}
				if ok {
					held = append(held, task.ID)
				}
			case 2:
				if len(held) == 0 {
					continue
				}
				if _, err := m.Fail(held[0], "w"); err != nil {
					t.Fatalf("fail: %v", err)
				}
				held = held[1:]
			}
		}
	})
}

// TestOrderingStrategies checks Fifo and Lifo against the insertion order for
// arbitrary interleavings of seeding and popping.
func TestOrderingStrategies(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lifo := rapid.Bool().Draw(t, "lifo")
		strategy := types.StrategyFifo
		if lifo {
			strategy = types.StrategyLifo
		}
		m := NewTaskManager(strategy)

		var model []string
		steps := rapid.SliceOfN(rapid.IntRange(1, 5), 1, 30).Draw(t, "steps")
		for i, n := range steps {
			if i%2 == 0 {
				for _, task := range m.Seed("g", n, "") {
					model = append(model, task.ID)
				}
				continue
			}
			for j := 0; j < n && len(model) > 0; j++ {
				var want string
				if lifo {
					want, model = model[len(model)-1], model[:len(model)-1]
				} else {
					want, model = model[0], model[1:]
				}
				task, ok := m.NextTask("w")
				if !ok || task.ID != want {
					t.Fatalf("strategy %s popped %v, want %s", strategy, task, want)
				}
			}
		}
	})
}

// TestReclaimExactness checks that a sweep reclaims exactly the assignments older than the threshold.
func TestReclaimExactness(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		clock := clockwork.NewFakeClock()
		m := NewTaskManager(types.StrategyFifo, WithClock(clock))

		gaps := rapid.SliceOfN(rapid.IntRange(0, 20), 1, 30).Draw(t, "gaps")
		m.Seed("g", len(gaps), "")

		assignedAt := make(map[string]time.Time)
		for _, gap := range gaps {
			clock.Advance(time.Duration(gap) * time.Second)
			task, _ := m.NextTask("w")
			assignedAt[task.ID] = clock.Now()
		}

		maxAge := time.Duration(rapid.IntRange(0, 200).Draw(t, "maxAge")) * time.Second
		clock.Advance(time.Duration(rapid.IntRange(0, 100).Draw(t, "tail")) * time.Second)
		now := clock.Now()

		reclaimed, _ := m.ReclaimStale(maxAge)
		got := make(map[string]bool, len(reclaimed))
		for _, id := range reclaimed {
			got[id] = true
		}
		for id, at := range assignedAt {
			want := now.Sub(at) > maxAge
			if got[id] != want {
				t.Fatalf("task assigned %v ago, maxAge %v: reclaimed=%v", now.Sub(at), maxAge, got[id])
			}
		}
	})
}

// TestRandomStrategyUniform checks that the random strategy picks every queue
// position with roughly equal frequency.
func TestRandomStrategyUniform(t *testing.T) {
	const (
		positions = 5
		trials    = 20000
	)

	counts := make([]int, positions)
	m := NewTaskManager(types.StrategyRandom, WithSeed(42))
	for i := 0; i < trials; i++ {
		ids := seedIDs(m, "g", positions)
		pos := make(map[string]int, positions)
		for p, id := range ids {
			pos[id] = p
		}

		task, _ := m.NextTask("w")
		counts[pos[task.ID]]++

		// drain the rest so the next round starts empty
		for {
			if _, ok := m.NextTask("w"); !ok {
				break
			}
		}
	}

	// chi-square with 4 degrees of freedom, p = 0.001
	expected := float64(trials) / positions
	chi := 0.0
	for _, c := range counts {
		chi += math.Pow(float64(c)-expected, 2) / expected
	}
	assert.Less(t, chi, 18.47, "counts %v", counts)
}
