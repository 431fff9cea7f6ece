package vuser

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is the lifecycle state of a virtual user
type State int32

const (
	Starting State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// IterationHook runs before each task pick, e.g. to refresh credentials
type IterationHook func(ctx context.Context, s *Session) error

// StateHook observes state transitions
type StateHook func(id string, state State)

// Option configures a VirtualUser
type Option func(*VirtualUser)

// WithThinkTime sets the pause between iterations
func WithThinkTime(t ThinkTime) Option {
	return func(u *VirtualUser) {
		if t != nil {
			u.think = t
		}
	}
}

// WithMaxIterations stops the user after n iterations (0 means unlimited)
func WithMaxIterations(n int) Option {
	return func(u *VirtualUser) {
		u.maxIterations = n
	}
}

// WithLogger sets the user's logger
func WithLogger(l *zap.Logger) Option {
	return func(u *VirtualUser) {
		if l != nil {
			u.logger = l
		}
	}
}

// WithRand sets the source used to pick tasks
func WithRand(r *rand.Rand) Option {
	return func(u *VirtualUser) {
		if r != nil {
			u.rng = r
		}
	}
}

// WithIterationHook runs hook before every iteration
func WithIterationHook(hook IterationHook) Option {
	return func(u *VirtualUser) {
		u.beforeIteration = hook
	}
}

// WithStateHook is called on every state transition
func WithStateHook(hook StateHook) Option {
	return func(u *VirtualUser) {
		u.onState = hook
	}
}

// VirtualUser is one simulated client running tasks in a loop
type VirtualUser struct {
	id      string
	session *Session

	think           ThinkTime
	maxIterations   int
	logger          *zap.Logger
	rng             *rand.Rand
	beforeIteration IterationHook
	onState         StateHook

	state      atomic.Int32
	iterations atomic.Int64
}

// New creates a user bound to session. The user starts in the Starting state.
func New(id string, session *Session, opts ...Option) *VirtualUser {
	u := &VirtualUser{
		id:      id,
		session: session,
		think:   Constant(DefaultThinkTime),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.rng == nil {
		u.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	u.logger = u.logger.With(zap.String("user", id))
	session.userID = id
	u.state.Store(int32(Starting))
	return u
}

// ID returns the user id
func (u *VirtualUser) ID() string {
	return u.id
}

// Session returns the user's session
func (u *VirtualUser) Session() *Session {
	return u.session
}

// State returns the current lifecycle state
func (u *VirtualUser) State() State {
	return State(u.state.Load())
}

// Iterations returns the number of completed task invocations
func (u *VirtualUser) Iterations() int {
	return int(u.iterations.Load())
}

func (u *VirtualUser) setState(s State) {
	u.state.Store(int32(s))
	if u.onState != nil {
		u.onState(u.id, s)
	}
}

// Run executes tasks until ctx is done, the iteration limit is reached or a
// behavior fails unrecoverably. It returns nil in the first two cases.
func (u *VirtualUser) Run(ctx context.Context, tasks TaskPicker) error {
	u.setState(Running)
	defer u.setState(Stopped)

	u.logger.Debug("user started")

	for {
		// Observe the stop signal at the top of each iteration
		if ctx.Err() != nil {
			u.logger.Debug("user stopped", zap.Int("iterations", u.Iterations()))
			return nil
		}
		if u.maxIterations > 0 && u.Iterations() >= u.maxIterations {
			u.logger.Debug("iteration limit reached", zap.Int("iterations", u.Iterations()))
			return nil
		}

		if u.beforeIteration != nil {
			if err := u.beforeIteration(ctx, u.session); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if IsUnrecoverable(err) {
					u.logger.Error("user stopped on unrecoverable error", zap.Error(err))
					return err
				}
				u.logger.Warn("iteration hook failed", zap.Error(err))
			}
		}

		task, err := tasks.PickWith(u.rng)
		if err != nil {
			return Unrecoverable(fmt.Errorf("failed to pick task: %w", err))
		}

		u.session.task = task.Name
		err = u.invoke(ctx, task)
		u.iterations.Add(1)

		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if IsUnrecoverable(err) {
				u.logger.Error("user stopped on unrecoverable error",
					zap.String("task", task.Name),
					zap.Error(err),
				)
				return err
			}
			u.logger.Debug("task failed", zap.String("task", task.Name), zap.Error(err))
		}

		if !u.sleep(ctx) {
			return nil
		}
	}
}

// invoke runs one behavior, converting a panic into an error
func (u *VirtualUser) invoke(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	return task.Behavior(ctx, u.session)
}

// sleep waits for the think time. It returns false when ctx is done first.
func (u *VirtualUser) sleep(ctx context.Context) bool {
	d := u.think.Next()
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
