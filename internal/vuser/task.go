package vuser

import (
	"context"
	"math/rand/v2"
)

// Behavior performs one or more calls through the user's session
type Behavior func(ctx context.Context, s *Session) error

// Task is a named, weighted unit of user behavior
type Task struct {
	Name     string
	Weight   int
	Behavior Behavior
}

// TaskPicker selects the next task for a user. *registry.Registry implements it.
type TaskPicker interface {
	PickWith(r *rand.Rand) (Task, error)
}
