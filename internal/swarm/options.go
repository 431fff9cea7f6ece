package swarm

import (
	"time"

	"github.com/studiowebux/restswarm/internal/vuser"
	"go.uber.org/zap"
)

// DefaultShutdownTimeout bounds how long Stop waits for users
const DefaultShutdownTimeout = 10 * time.Second

type options struct {
	baseURL         string
	headers         map[string]string
	vars            map[string]string
	client          vuser.Client
	thinkTime       vuser.ThinkTime
	maxIterations   int
	shutdownTimeout time.Duration
	logger          *zap.Logger
	stateHook       vuser.StateHook
	userOptions     []vuser.Option
}

// Option configures a Swarm
type Option func(*options)

// WithBaseURL sets the target host of every user session
func WithBaseURL(u string) Option {
	return func(o *options) {
		o.baseURL = u
	}
}

// WithHeaders sets the initial default headers of every session
func WithHeaders(h map[string]string) Option {
	return func(o *options) {
		o.headers = h
	}
}

// WithVars seeds every session's variables
func WithVars(v map[string]string) Option {
	return func(o *options) {
		o.vars = v
	}
}

// WithClient sets the HTTP client shared by all sessions
func WithClient(c vuser.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// WithThinkTime sets the think time of every user
func WithThinkTime(t vuser.ThinkTime) Option {
	return func(o *options) {
		o.thinkTime = t
	}
}

// WithMaxIterations limits each user to n iterations (0 means unlimited)
func WithMaxIterations(n int) Option {
	return func(o *options) {
		o.maxIterations = n
	}
}

// WithShutdownTimeout sets how long Stop waits before abandoning users
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithLogger sets the swarm logger. Users get a child logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStateHook observes every user state transition
func WithStateHook(h vuser.StateHook) Option {
	return func(o *options) {
		o.stateHook = h
	}
}

// WithUserOptions appends options applied to every user, e.g. an iteration hook
func WithUserOptions(opts ...vuser.Option) Option {
	return func(o *options) {
		o.userOptions = append(o.userOptions, opts...)
	}
}
