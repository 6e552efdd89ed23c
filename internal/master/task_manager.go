package master

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/jonboulle/clockwork"

	"yqhp/kambo-hive/pkg/types"
)

// assignment binds a task to the worker currently responsible for it.
type assignment struct {
	task       *types.Task
	workerID   string
	assignedAt time.Time
}

// TaskManager owns every task and its status. All operations are short
// in-memory mutations under one mutex.
type TaskManager struct {
	strategy    types.DistributionStrategy
	clock       clockwork.Clock
	rng         *rand.Rand
	maxAttempts int

	tasks    map[string]*types.Task
	seq      map[string]int
	status   map[string]*types.TaskStatus
	pending  []string // insertion order
	assigned map[string]*assignment

	completed int
	failed    int

	mu sync.Mutex
}

// TaskManagerOption configures a TaskManager.
type TaskManagerOption func(*TaskManager)

// WithClock sets the clock used for assignment times.
func WithClock(clock clockwork.Clock) TaskManagerOption {
	return func(m *TaskManager) {
		m.clock = clock
	}
}

// WithSeed makes the random strategy deterministic.
func WithSeed(seed int64) TaskManagerOption {
	return func(m *TaskManager) {
		m.rng = rand.New(rand.NewSource(seed))
	}
}

// WithMaxAttempts caps how often a task may be reclaimed or reported failed
// before it becomes Failed. Zero means unlimited.
func WithMaxAttempts(n int) TaskManagerOption {
	return func(m *TaskManager) {
		m.maxAttempts = n
	}
}

// NewTaskManager creates an empty queue that hands out tasks using strategy.
func NewTaskManager(strategy types.DistributionStrategy, opts ...TaskManagerOption) *TaskManager {
	m := &TaskManager{
		strategy: strategy,
		clock:    clockwork.NewRealClock(),
		tasks:    make(map[string]*types.Task),
		seq:      make(map[string]int),
		status:   make(map[string]*types.TaskStatus),
		pending:  make([]string, 0),
		assigned: make(map[string]*assignment),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return m
}

// Strategy returns the distribution strategy in use.
func (m *TaskManager) Strategy() types.DistributionStrategy {
	return m.strategy
}

// Seed queues trials new tasks for graphID with run numbers 1..trials.
func (m *TaskManager) Seed(graphID string, trials int, config string) []*types.Task {
	created := make([]*types.Task, 0, trials)
	for run := 1; run <= trials; run++ {
		created = append(created, types.NewTask(graphID, run, config))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, task := range created {
		m.seq[task.ID] = len(m.tasks)
		m.tasks[task.ID] = task
		m.status[task.ID] = &types.TaskStatus{State: types.TaskStatePending}
		m.pending = append(m.pending, task.ID)
	}
	return created
}

// NextTask pops one pending task according to the strategy and assigns it to
// workerID. It returns false when nothing is pending.
func (m *TaskManager) NextTask(workerID string) (*types.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		return nil, false
	}

	var idx int
	switch m.strategy {
	case types.StrategyLifo:
		idx = len(m.pending) - 1
	case types.StrategyRandom:
		idx = m.rng.Intn(len(m.pending))
	default:
		idx = 0
	}

	id := m.pending[idx]
	m.pending = append(m.pending[:idx], m.pending[idx+1:]...)

	task := m.tasks[id]
	m.assigned[id] = &assignment{
		task:       task,
		workerID:   workerID,
		assignedAt: m.clock.Now(),
	}
	st := m.status[id]
	st.State = types.TaskStateAssigned
	st.WorkerID = workerID

	return task, true
}

// Complete marks a task done. It fails with ErrUnknownAssignment unless the
// task is currently assigned to workerID, leaving the queue unchanged.
func (m *TaskManager) Complete(taskID, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.checkAssignment(taskID, workerID); err != nil {
		return err
	}

	delete(m.assigned, taskID)
	st := m.status[taskID]
	st.State = types.TaskStateCompleted
	st.WorkerID = ""
	m.completed++
	return nil
}

// Fail records a failed attempt reported by the assigned worker. The task goes
// back to pending, or to Failed once the attempt cap is reached. The returned
// state is the task's new state.
func (m *TaskManager) Fail(taskID, workerID string) (types.TaskState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.checkAssignment(taskID, workerID); err != nil {
		return "", err
	}
	return m.release(taskID), nil
}

// ReclaimStale returns to pending every assignment older than maxAge and
// reports the affected task ids. Tasks that hit the attempt cap become Failed
// and are listed in failed instead.
func (m *TaskManager) ReclaimStale(maxAge time.Duration) (reclaimed, failed []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	stale := make([]string, 0)
	for id, a := range m.assigned {
		if now.Sub(a.assignedAt) > maxAge {
			stale = append(stale, id)
		}
	}

	// keep requeue order stable across sweeps
	slice.SortBy(stale, func(a, b string) bool {
		return m.seq[a] < m.seq[b]
	})

	for _, id := range stale {
		if m.release(id) == types.TaskStateFailed {
			failed = append(failed, id)
		} else {
			reclaimed = append(reclaimed, id)
		}
	}
	return reclaimed, failed
}

// ReleaseWorker ends every assignment still held by workerID, as after a
// failed attempt. A worker runs one task at a time, so a new request means
// anything it still holds was abandoned.
func (m *TaskManager) ReleaseWorker(workerID string) (requeued, failed []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	held := make([]string, 0)
	for id, a := range m.assigned {
		if a.workerID == workerID {
			held = append(held, id)
		}
	}
	slice.SortBy(held, func(a, b string) bool {
		return m.seq[a] < m.seq[b]
	})

	for _, id := range held {
		if m.release(id) == types.TaskStateFailed {
			failed = append(failed, id)
		} else {
			requeued = append(requeued, id)
		}
	}
	return requeued, failed
}

// RenewLease refreshes the assignment time of every task held by workerID and
// returns how many were renewed.
func (m *TaskManager) RenewLease(workerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	n := 0
	for _, a := range m.assigned {
		if a.workerID == workerID {
			a.assignedAt = now
			n++
		}
	}
	return n
}

// AssignedTo returns the ids of the tasks currently held by workerID.
func (m *TaskManager) AssignedTo(workerID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0)
	for id, a := range m.assigned {
		if a.workerID == workerID {
			ids = append(ids, id)
		}
	}
	return ids
}

// Status returns a copy of the task's status.
func (m *TaskManager) Status(taskID string) (types.TaskStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.status[taskID]
	if !ok {
		return types.TaskStatus{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return *st, nil
}

// Task returns the seeded task with the given id.
func (m *TaskManager) Task(taskID string) (*types.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return task, nil
}

// TotalTasks returns the number of seeded tasks.
func (m *TaskManager) TotalTasks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// CompletedCount returns the number of completed tasks.
func (m *TaskManager) CompletedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed
}

// Progress returns all queue counters taken under one lock.
func (m *TaskManager) Progress() types.Progress {
	m.mu.Lock()
	defer m.mu.Unlock()

	return types.Progress{
		TotalTasks:     len(m.tasks),
		CompletedTasks: m.completed,
		FailedTasks:    m.failed,
		PendingTasks:   len(m.pending),
		AssignedTasks:  len(m.assigned),
	}
}

func (m *TaskManager) checkAssignment(taskID, workerID string) (*assignment, error) {
	if _, ok := m.tasks[taskID]; !ok {
		return nil, fmt.Errorf("%w: %w: %s", ErrUnknownAssignment, ErrTaskNotFound, taskID)
	}
	a, ok := m.assigned[taskID]
	if !ok || a.workerID != workerID {
		return nil, fmt.Errorf("%w: task %s, worker %s", ErrUnknownAssignment, taskID, workerID)
	}
	return a, nil
}

// release ends the current assignment of taskID after a failed attempt.
// Caller holds m.mu.
func (m *TaskManager) release(taskID string) types.TaskState {
	delete(m.assigned, taskID)

	st := m.status[taskID]
	st.WorkerID = ""
	st.Attempts++

	if m.maxAttempts > 0 && st.Attempts >= m.maxAttempts {
		st.State = types.TaskStateFailed
		m.failed++
		return st.State
	}

	st.State = types.TaskStatePending
	m.pending = append(m.pending, taskID)
	return st.State
}
