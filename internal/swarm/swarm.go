package swarm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/studiowebux/restswarm/internal/registry"
	"github.com/studiowebux/restswarm/internal/stats"
	"github.com/studiowebux/restswarm/internal/vuser"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrEmptyRegistry   = registry.ErrEmptyRegistry
	ErrAlreadyStarted  = errors.New("swarm already started")
	ErrInvalidTarget   = errors.New("target user count must not be negative")
	ErrInvalidRampRate = errors.New("ramp rate must not be negative")
)

// ForcedShutdownWarning reports users abandoned at the shutdown deadline.
// It is a warning, not a failure of the run.
type ForcedShutdownWarning struct {
	Count   int
	Users   []string
	Timeout time.Duration
}

func (w *ForcedShutdownWarning) Error() string {
	return fmt.Sprintf("forced shutdown of %d user(s) after %s", w.Count, w.Timeout)
}

// member is one user in the population
type member struct {
	user     *vuser.VirtualUser
	cancel   context.CancelFunc
	done     chan struct{}
	stopping bool // stopped by the swarm (ramp-down or Stop)
}

// Swarm manages the user population
type Swarm struct {
	tasks    *registry.Registry
	recorder stats.Recorder
	opts     options
	logger   *zap.Logger

	mu       sync.Mutex
	started  bool
	stopped  bool
	target   int
	users    map[string]*member
	finished int // users that exited on their own, still counted against target
	spawned  int
	forced   int
	nextID   int

	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter
	wake    chan struct{}

	done     chan struct{}
	doneOnce sync.Once

	stopOnce sync.Once
	stopErr  error
}

// New creates a swarm that runs tasks from reg and records into recorder
func New(reg *registry.Registry, recorder stats.Recorder, opts ...Option) *Swarm {
	o := options{
		thinkTime:       vuser.Constant(vuser.DefaultThinkTime),
		shutdownTimeout: DefaultShutdownTimeout,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = http.DefaultClient
	}

	return &Swarm{
		tasks:    reg,
		recorder: recorder,
		opts:     o,
		logger:   o.logger,
		users:    make(map[string]*member),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start validates the setup and begins ramping users online at most rampRate
// per second. A rampRate of 0 brings all users online at once.
// Setup errors are returned before any user starts.
func (s *Swarm) Start(ctx context.Context, targetCount int, rampRate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if targetCount < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTarget, targetCount)
	}
	if rampRate < 0 {
		return fmt.Errorf("%w: %g", ErrInvalidRampRate, rampRate)
	}
	if s.tasks == nil || s.tasks.Len() == 0 {
		return ErrEmptyRegistry
	}
	if _, err := vuser.ParseBaseURL(s.opts.baseURL); err != nil {
		return err
	}

	s.tasks.Freeze()
	s.started = true
	s.target = targetCount
	s.ctx, s.cancel = context.WithCancel(ctx)

	limit := rate.Inf
	if rampRate > 0 {
		limit = rate.Limit(rampRate)
	}
	s.limiter = rate.NewLimiter(limit, 1)
	// Start empty so the first user also waits for its token
	s.limiter.Allow()

	s.logger.Info("swarm starting",
		zap.Int("target", targetCount),
		zap.Float64("ramp_rate", rampRate),
		zap.String("host", s.opts.baseURL),
	)

	go s.spawnLoop()
	return nil
}

// spawnLoop brings users online until the target is reached, then waits for
// target changes
func (s *Swarm) spawnLoop() {
	for {
		s.mu.Lock()
		need := !s.stopped && s.populationLocked() < s.target
		s.mu.Unlock()

		if !need {
			select {
			case <-s.ctx.Done():
				return
			case <-s.wake:
				continue
			}
		}

		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}

		s.mu.Lock()
		// Target may have been lowered while waiting for the token
		if !s.stopped && s.populationLocked() < s.target {
			s.spawnLocked()
		}
		s.mu.Unlock()
	}
}

// populationLocked counts users that hold a slot against the target
func (s *Swarm) populationLocked() int {
	return s.activeLocked() + s.finished
}

// activeLocked counts users not being stopped by the swarm
func (s *Swarm) activeLocked() int {
	n := 0
	for _, m := range s.users {
		if !m.stopping {
			n++
		}
	}
	return n
}

func (s *Swarm) spawnLocked() {
	s.nextID++
	id := fmt.Sprintf("user-%d", s.nextID)

	session, err := vuser.NewSession(vuser.SessionConfig{
		BaseURL:  s.opts.baseURL,
		Headers:  s.opts.headers,
		Vars:     s.opts.vars,
		Client:   s.opts.client,
		Recorder: s.recorder,
	})
	if err != nil {
		// Base URL was validated in Start; count the slot so the loop cannot spin
		s.finished++
		s.logger.Error("failed to create session", zap.String("user", id), zap.Error(err))
		return
	}

	userOpts := []vuser.Option{
		vuser.WithThinkTime(s.opts.thinkTime),
		vuser.WithMaxIterations(s.opts.maxIterations),
		vuser.WithLogger(s.logger),
	}
	if s.opts.stateHook != nil {
		userOpts = append(userOpts, vuser.WithStateHook(s.opts.stateHook))
	}
	userOpts = append(userOpts, s.opts.userOptions...)

	userCtx, cancel := context.WithCancel(s.ctx)
	m := &member{
		user:   vuser.New(id, session, userOpts...),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.users[id] = m
	s.spawned++

	go s.runUser(userCtx, m)
}

func (s *Swarm) runUser(ctx context.Context, m *member) {
	err := m.user.Run(ctx, s.tasks)
	ownExit := ctx.Err() == nil
	m.cancel()
	close(m.done)

	s.mu.Lock()
	defer s.mu.Unlock()

	id := m.user.ID()
	if cur, ok := s.users[id]; !ok || cur != m {
		// Abandoned at shutdown
		return
	}
	delete(s.users, id)

	if ownExit && !m.stopping {
		s.finished++
		if err != nil {
			s.logger.Warn("user exited", zap.String("user", id), zap.Error(err))
		} else {
			s.logger.Debug("user finished", zap.String("user", id), zap.Int("iterations", m.user.Iterations()))
		}
	}

	if !s.stopped && len(s.users) == 0 && s.finished > 0 && s.finished >= s.target {
		s.closeDone()
	}
}

// SetTarget changes the target population. Raising it resumes ramp-up;
// lowering it stops excess users immediately. It is a no-op once the swarm
// is stopped or Done has closed.
func (s *Swarm) SetTarget(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTarget, n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	select {
	case <-s.done:
		return nil
	default:
	}
	s.target = n

	if s.finished > n {
		s.finished = n
	}
	excess := s.populationLocked() - n
	for _, m := range s.users {
		if excess <= 0 {
			break
		}
		if m.stopping {
			continue
		}
		m.stopping = true
		m.cancel()
		excess--
	}

	s.logger.Info("swarm target changed", zap.Int("target", n))

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Stop cancels every user and waits up to the shutdown timeout.
// It returns a *ForcedShutdownWarning when users had to be abandoned.
// Calling Stop more than once returns the first result.
func (s *Swarm) Stop() error {
	s.stopOnce.Do(func() {
		s.stopErr = s.stop()
	})
	return s.stopErr
}

func (s *Swarm) stop() error {
	s.mu.Lock()
	s.stopped = true
	if !s.started {
		s.mu.Unlock()
		s.closeDone()
		return nil
	}
	members := make([]*member, 0, len(s.users))
	for _, m := range s.users {
		m.stopping = true
		members = append(members, m)
	}
	s.mu.Unlock()

	s.logger.Info("swarm stopping", zap.Int("users", len(members)))
	s.cancel()

	deadline := time.NewTimer(s.opts.shutdownTimeout)
	defer deadline.Stop()

	var abandoned []string
	for _, m := range members {
		select {
		case <-m.done:
			continue
		case <-deadline.C:
		}

		// Deadline reached: every user not done yet is abandoned
		s.mu.Lock()
		for _, rest := range members {
			select {
			case <-rest.done:
			default:
				if cur, ok := s.users[rest.user.ID()]; ok && cur == rest {
					delete(s.users, rest.user.ID())
					abandoned = append(abandoned, rest.user.ID())
				}
			}
		}
		s.forced += len(abandoned)
		s.mu.Unlock()
		break
	}

	vuser.CloseIdleConnections(s.opts.client)
	s.closeDone()

	if len(abandoned) == 0 {
		s.logger.Info("swarm stopped", zap.Int("spawned", s.Spawned()))
		return nil
	}

	sort.Strings(abandoned)
	s.logger.Warn("users did not stop before shutdown timeout",
		zap.Int("count", len(abandoned)),
		zap.Duration("timeout", s.opts.shutdownTimeout),
	)
	return &ForcedShutdownWarning{
		Count:   len(abandoned),
		Users:   abandoned,
		Timeout: s.opts.shutdownTimeout,
	}
}

func (s *Swarm) closeDone() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}

// Done is closed when every user finished on its own, or after Stop
func (s *Swarm) Done() <-chan struct{} {
	return s.done
}

// CurrentCount returns the number of users currently Running
func (s *Swarm) CurrentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.users {
		if !m.stopping && m.user.State() == vuser.Running {
			n++
		}
	}
	return n
}

// Target returns the target population
func (s *Swarm) Target() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Spawned returns the total number of users ever started
func (s *Swarm) Spawned() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawned
}

// Finished returns the number of users that exited on their own
func (s *Swarm) Finished() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// ForcedShutdowns returns the number of users abandoned at shutdown
func (s *Swarm) ForcedShutdowns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forced
}
