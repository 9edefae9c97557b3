package orchestrator

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrDuplicateTask is returned when a task id is registered twice.
var ErrDuplicateTask = errors.New("task already registered")

type registryEntry struct {
	mu        sync.Mutex
	state     *TaskState
	cancelled atomic.Bool
}

// Registry tracks in-flight tasks and their cancellation flags.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*registryEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*registryEntry)}
}

// Register starts tracking s.
func (r *Registry) Register(s *TaskState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[s.TaskID]; ok {
		return ErrDuplicateTask
	}
	r.tasks[s.TaskID] = &registryEntry{state: s.Clone()}
	return nil
}

// Update replaces the stored snapshot of s.
func (r *Registry) Update(s *TaskState) {
	e := r.entry(s.TaskID)
	if e == nil {
		return
	}
	snap := s.Clone()
	e.mu.Lock()
	e.state = snap
	e.mu.Unlock()
}

// Cancel flags id for cancellation. It returns false for unknown ids.
func (r *Registry) Cancel(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tasks[id]
	if !ok {
		return false
	}
	e.cancelled.Store(true)
	return true
}

// IsCancelled reports whether id has been flagged.
func (r *Registry) IsCancelled(id string) bool {
	e := r.entry(id)
	return e != nil && e.cancelled.Load()
}

// Remove stops tracking id and reports whether it was flagged for
// cancellation. Once Remove returns, Cancel reports id as unknown.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[id]
	if !ok {
		return false
	}
	delete(r.tasks, id)
	return e.cancelled.Load()
}

// Snapshot returns a copy of the latest state of id.
func (r *Registry) Snapshot(id string) (*TaskState, bool) {
	e := r.entry(id)
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone(), true
}

// List returns copies of every tracked task ordered by id.
func (r *Registry) List() []*TaskState {
	r.mu.RLock()
	entries := make([]*registryEntry, 0, len(r.tasks))
	for _, e := range r.tasks {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]*TaskState, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.state.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// Len returns the number of tracked tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

func (r *Registry) entry(id string) *registryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tasks[id]
}
