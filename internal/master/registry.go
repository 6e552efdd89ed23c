package master

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"yqhp/kambo-hive/pkg/types"
)

// WorkerRegistry tracks every worker that has talked to the host.
// There is no registration step; the first message from an id creates its entry.
type WorkerRegistry struct {
	clock   clockwork.Clock
	workers map[string]*types.WorkerInfo

	mu sync.RWMutex
}

// NewWorkerRegistry creates an empty registry.
func NewWorkerRegistry(clock clockwork.Clock) *WorkerRegistry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WorkerRegistry{
		clock:   clock,
		workers: make(map[string]*types.WorkerInfo),
	}
}

// Touch records that workerID was just heard from and reports whether the
// worker is new to the host.
func (r *WorkerRegistry) Touch(workerID, remoteAddr string) bool {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	w, exists := r.workers[workerID]
	if !exists {
		w = &types.WorkerInfo{
			ID:        workerID,
			FirstSeen: now,
		}
		r.workers[workerID] = w
	}
	w.State = types.WorkerStateOnline
	w.LastSeen = now
	if remoteAddr != "" {
		w.RemoteAddr = remoteAddr
	}
	return !exists
}

// SetCurrentTask records the task a worker is executing. An empty id clears it.
func (r *WorkerRegistry) SetCurrentTask(workerID, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.workers[workerID]; ok {
		w.CurrentTaskID = taskID
	}
}

// RecordOutcome clears the worker's current task and bumps its counters.
func (r *WorkerRegistry) RecordOutcome(workerID string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[workerID]
	if !ok {
		return
	}
	w.CurrentTaskID = ""
	if success {
		w.TasksCompleted++
	} else {
		w.TasksFailed++
	}
}

// MarkStale flags every online worker silent for longer than timeout as
// offline and returns their ids.
func (r *WorkerRegistry) MarkStale(timeout time.Duration) []string {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []string
	for id, w := range r.workers {
		if w.State == types.WorkerStateOnline && now.Sub(w.LastSeen) > timeout {
			w.State = types.WorkerStateOffline
			w.CurrentTaskID = ""
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	return stale
}

// Get returns a copy of one worker's info.
func (r *WorkerRegistry) Get(workerID string) (types.WorkerInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workers[workerID]
	if !ok {
		return types.WorkerInfo{}, false
	}
	return *w, true
}

// List returns copies of all workers ordered by first contact.
func (r *WorkerRegistry) List() []types.WorkerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.WorkerInfo, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].ID < out[j].ID
		}
		return out[i].FirstSeen.Before(out[j].FirstSeen)
	})
	return out
}

// OnlineCount returns the number of workers currently considered online.
func (r *WorkerRegistry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, w := range r.workers {
		if w.State == types.WorkerStateOnline {
			n++
		}
	}
	return n
}
