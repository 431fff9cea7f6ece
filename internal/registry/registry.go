// Package registry holds the weighted set of tasks virtual users pick from.
package registry

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/studiowebux/restswarm/internal/vuser"
)

var (
	ErrDuplicateTask  = errors.New("duplicate task")
	ErrEmptyRegistry  = errors.New("no tasks registered")
	ErrInvalidTask    = errors.New("invalid task")
	ErrInvalidWeight  = errors.New("task weight must not be negative")
	ErrRegistryFrozen = errors.New("registry is frozen")
)

// Task is the unit registered and picked. Weight 0 means 1.
type Task = vuser.Task

// Registry is a weighted task set. Pick is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tasks  []Task
	index  map[string]int
	cum    []int // cumulative weights, parallel to tasks
	frozen bool
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		index: make(map[string]int),
	}
}

// Register adds a task. Names are unique; registration order is kept.
func (r *Registry) Register(task Task) error {
	if task.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidTask)
	}
	if task.Behavior == nil {
		return fmt.Errorf("%w: task %s has no behavior", ErrInvalidTask, task.Name)
	}
	if task.Weight < 0 {
		return fmt.Errorf("%w: task %s has weight %d", ErrInvalidWeight, task.Name, task.Weight)
	}
	if task.Weight == 0 {
		task.Weight = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %s", ErrRegistryFrozen, task.Name)
	}
	if _, exists := r.index[task.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.Name)
	}

	total := 0
	if n := len(r.cum); n > 0 {
		total = r.cum[n-1]
	}
	r.index[task.Name] = len(r.tasks)
	r.tasks = append(r.tasks, task)
	r.cum = append(r.cum, total+task.Weight)
	return nil
}

// MustRegister registers task and panics on error
func (r *Registry) MustRegister(task Task) {
	if err := r.Register(task); err != nil {
		panic(err)
	}
}

// Freeze makes the registry read-only
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze was called
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Pick returns a task with probability weight / total weight
func (r *Registry) Pick() (Task, error) {
	return r.pick(rand.IntN)
}

// PickWith is Pick using a caller-owned source. r must not be shared between goroutines.
func (r *Registry) PickWith(rng *rand.Rand) (Task, error) {
	if rng == nil {
		return r.Pick()
	}
	return r.pick(rng.IntN)
}

func (r *Registry) pick(intN func(int) int) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.cum)
	if n == 0 {
		return Task{}, ErrEmptyRegistry
	}

	// Binary search for the first cumulative weight above the draw
	x := intN(r.cum[n-1])
	lo, hi := 0, n-1
	for lo < hi {
		mid := (lo + hi) / 2
		if r.cum[mid] > x {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return r.tasks[lo], nil
}

// Get returns a task by name
func (r *Registry) Get(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[name]
	if !ok {
		return Task{}, false
	}
	return r.tasks[i], true
}

// Len returns the number of registered tasks
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Tasks returns a copy of the tasks in registration order
func (r *Registry) Tasks() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Task, len(r.tasks))
	copy(out, r.tasks)
	return out
}

// TotalWeight returns the sum of all weights
func (r *Registry) TotalWeight() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.cum) == 0 {
		return 0
	}
	return r.cum[len(r.cum)-1]
}
