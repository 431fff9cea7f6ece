// Package scenario turns declarative scenario files into registry tasks.
package scenario

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/studiowebux/restswarm/internal/chain"
	"github.com/studiowebux/restswarm/internal/executor"
	"github.com/studiowebux/restswarm/internal/parser"
	"github.com/studiowebux/restswarm/internal/registry"
	"github.com/studiowebux/restswarm/internal/stats"
	"github.com/studiowebux/restswarm/internal/types"
	"github.com/studiowebux/restswarm/internal/vuser"
)

// MethodWebSocket is the method recorded for WebSocket steps
const MethodWebSocket = "WS"

// Options configures how tasks are built
type Options struct {
	// Resolver substitutes {{var}} placeholders; nil resolves user vars only
	Resolver *parser.Resolver

	// WebSocketTLS is used for wss:// steps
	WebSocketTLS *tls.Config
}

// PingTask returns the default task: GET /ping
func PingTask() registry.Task {
	return registry.Task{
		Name:   "ping",
		Weight: 1,
		Behavior: func(ctx context.Context, s *vuser.Session) error {
			resp, err := s.Get(ctx, "/ping")
			if err != nil {
				return err
			}
			return resp.Err
		},
	}
}

// DefaultRegistry returns a frozen registry holding only PingTask
func DefaultRegistry() *registry.Registry {
	reg := registry.New()
	reg.MustRegister(PingTask())
	reg.Freeze()
	return reg
}

// Build compiles every task of s into a frozen registry
func Build(s *types.ScenarioFile, opts Options) (*registry.Registry, error) {
	if err := parser.ValidateScenario(s); err != nil {
		return nil, err
	}
	if opts.Resolver == nil {
		opts.Resolver = parser.NewResolver(nil, nil, nil)
	}

	reg := registry.New()
	for _, spec := range s.Tasks {
		task, err := BuildTask(spec, opts)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(task); err != nil {
			return nil, err
		}
	}
	reg.Freeze()
	return reg, nil
}

// BuildTask compiles one task. File tasks turn each request of the file into a step.
func BuildTask(spec types.TaskSpec, opts Options) (registry.Task, error) {
	stepSpecs := spec.Steps
	if spec.File != "" {
		requests, err := parser.ParseRequests(spec.File)
		if err != nil {
			return registry.Task{}, fmt.Errorf("task %s: %w", spec.Name, err)
		}
		if len(requests) == 0 {
			return registry.Task{}, fmt.Errorf("task %s: no requests found in %s", spec.Name, spec.File)
		}
		stepSpecs = make([]types.StepSpec, 0, len(requests))
		for _, req := range requests {
			stepSpecs = append(stepSpecs, stepFromRequest(req))
		}
	}

	steps := make([]*step, 0, len(stepSpecs))
	for i, ss := range stepSpecs {
		st, err := compileStep(ss, opts)
		if err != nil {
			return registry.Task{}, fmt.Errorf("task %s step %d: %w", spec.Name, i, err)
		}
		steps = append(steps, st)
	}

	return registry.Task{
		Name:   spec.Name,
		Weight: spec.Weight,
		Behavior: func(ctx context.Context, s *vuser.Session) error {
			for _, st := range steps {
				if err := st.run(ctx, s); err != nil {
					return err
				}
			}
			return nil
		},
	}, nil
}

func stepFromRequest(req types.HttpRequest) types.StepSpec {
	return types.StepSpec{
		Name:         req.Name,
		Method:       req.Method,
		Path:         req.URL,
		Headers:      req.Headers,
		Body:         req.Body,
		ExpectStatus: req.ExpectStatus,
		ExpectBody:   req.ExpectBody,
		Extract:      req.Extract,
	}
}

// step is a compiled StepSpec
type step struct {
	spec      types.StepSpec
	name      string
	extractor *chain.Extractor
	resolver  *parser.Resolver
	wsTLS     *tls.Config
}

func compileStep(spec types.StepSpec, opts Options) (*step, error) {
	extractor, err := chain.Compile(spec.Extract)
	if err != nil {
		return nil, err
	}

	// Group dynamic paths under their template
	name := spec.Name
	if name == "" {
		if spec.IsWebSocket() {
			name = spec.WebSocket.URL
		} else {
			name = spec.Path
		}
	}

	return &step{
		spec:      spec,
		name:      name,
		extractor: extractor,
		resolver:  opts.Resolver,
		wsTLS:     opts.WebSocketTLS,
	}, nil
}

func (st *step) run(ctx context.Context, s *vuser.Session) error {
	if st.spec.IsWebSocket() {
		return st.runWebSocket(ctx, s)
	}
	return st.runHTTP(ctx, s)
}

func (st *step) runHTTP(ctx context.Context, s *vuser.Session) error {
	vars := s.Vars()

	path, err := st.resolver.MustResolve(st.spec.Path, vars)
	if err != nil {
		return fmt.Errorf("step %s: %w", st.name, err)
	}
	body, err := st.resolver.MustResolve(st.spec.Body, vars)
	if err != nil {
		return fmt.Errorf("step %s: %w", st.name, err)
	}
	headers, err := st.resolveMap(st.spec.Headers, vars)
	if err != nil {
		return fmt.Errorf("step %s: %w", st.name, err)
	}

	resp, err := s.Do(ctx, &vuser.Request{
		Method:       st.spec.Method,
		Path:         path,
		Name:         st.name,
		Headers:      headers,
		Body:         body,
		ExpectStatus: st.spec.ExpectStatus,
		ExpectBody:   st.spec.ExpectBody,
	})
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return resp.Err
	}

	if !st.extractor.Empty() {
		extracted, err := st.extractor.Extract(resp.Body)
		if err != nil {
			return fmt.Errorf("step %s: %w", st.name, err)
		}
		for k, v := range extracted {
			s.SetVar(k, v)
		}
	}

	return st.applySetHeaders(s)
}

func (st *step) runWebSocket(ctx context.Context, s *vuser.Session) error {
	ws := st.spec.WebSocket
	vars := s.Vars()

	target, err := st.resolver.MustResolve(ws.URL, vars)
	if err != nil {
		return fmt.Errorf("step %s: %w", st.name, err)
	}
	send := make([]string, len(ws.Send))
	for i, msg := range ws.Send {
		if send[i], err = st.resolver.MustResolve(msg, vars); err != nil {
			return fmt.Errorf("step %s: %w", st.name, err)
		}
	}

	headers := wsHeaders(s.Headers())
	extra, err := st.resolveMap(st.spec.Headers, vars)
	if err != nil {
		return fmt.Errorf("step %s: %w", st.name, err)
	}
	for k, v := range extra {
		headers.Set(k, v)
	}

	issued := time.Now()
	result, err := executor.ExecuteWebSocket(ctx, &executor.WebSocketRequest{
		URL:          target,
		Headers:      headers,
		Subprotocols: ws.Subprotocols,
		Send:         send,
		Expect:       ws.Expect,
		Timeout:      ws.Timeout.D(),
	}, st.wsTLS)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	rec := stats.RequestResult{
		Name:         st.name,
		Method:       MethodWebSocket,
		Path:         target,
		Status:       result.Status,
		Latency:      result.Duration,
		RequestSize:  result.SentBytes,
		ResponseSize: result.ReceivedBytes,
		Timestamp:    issued,
	}
	if err != nil {
		rec.ErrorKind = websocketErrorKind(err)
		rec.Error = err.Error()
	}
	s.Record(rec)
	if err != nil {
		return err
	}

	return st.applySetHeaders(s)
}

// applySetHeaders renders setHeaders with the user's current variables
func (st *step) applySetHeaders(s *vuser.Session) error {
	if len(st.spec.SetHeaders) == 0 {
		return nil
	}
	headers, err := st.resolveMap(st.spec.SetHeaders, s.Vars())
	if err != nil {
		return fmt.Errorf("step %s: setHeaders: %w", st.name, err)
	}
	for k, v := range headers {
		s.SetHeader(k, v)
	}
	return nil
}

func (st *step) resolveMap(m map[string]string, vars map[string]string) (map[string]string, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		resolved, err := st.resolver.MustResolve(v, vars)
		if err != nil {
			return nil, fmt.Errorf("header %s: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

// wsHeaders drops headers the WebSocket dialer sets itself
func wsHeaders(h http.Header) http.Header {
	for _, k := range []string{"Upgrade", "Connection", "Sec-Websocket-Key", "Sec-Websocket-Version", "Sec-Websocket-Extensions", "Sec-Websocket-Protocol"} {
		h.Del(k)
	}
	return h
}

func websocketErrorKind(err error) stats.ErrorKind {
	switch {
	case errors.Is(err, executor.ErrExpectTimeout):
		return stats.KindValidation
	case errors.Is(err, executor.ErrInvalidWebSocketURL):
		return stats.KindInvalidURL
	case errors.Is(err, websocket.ErrBadHandshake):
		return stats.KindHTTP
	default:
		return vuser.ErrorKind(err)
	}
}
