package vuser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/studiowebux/restswarm/internal/stats"
)

// Request is one call issued through a session
type Request struct {
	Method  string
	Path    string            // relative to the base URL, or absolute
	Name    string            // stats grouping name for dynamic paths, e.g. /users/[id]
	Headers map[string]string // per-call headers, override session defaults
	Body    string

	// Optional validation. A mismatch records the call as a validation failure.
	ExpectStatus []int
	ExpectBody   string // substring
}

// Response is the outcome of one call. Err is set for transport, HTTP and
// validation failures; the call has been recorded either way.
type Response struct {
	Status  int
	Header  http.Header
	Body    []byte
	Latency time.Duration
	Err     error
}

// OK reports whether the call succeeded
func (r *Response) OK() bool {
	return r.Err == nil
}

// Text returns the response body as a string
func (r *Response) Text() string {
	return string(r.Body)
}

// JSON decodes the response body into v
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// SessionConfig configures a new session
type SessionConfig struct {
	BaseURL  string
	Headers  map[string]string
	Vars     map[string]string
	Client   Client
	Recorder stats.Recorder
}

// Session is the HTTP session state of one virtual user
type Session struct {
	base     *url.URL
	client   Client
	recorder stats.Recorder
	jar      http.CookieJar

	mu      sync.RWMutex
	headers http.Header
	vars    map[string]string

	// Owned by the user goroutine
	userID string
	task   string
}

// NewSession validates the base URL and creates a session
func NewSession(cfg SessionConfig) (*Session, error) {
	base, err := ParseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = stats.RecorderFunc(func(stats.RequestResult) {})
	}

	s := &Session{
		base:     base,
		client:   client,
		recorder: recorder,
		jar:      jar,
		headers:  make(http.Header),
		vars:     make(map[string]string, len(cfg.Vars)),
	}
	for k, v := range cfg.Headers {
		s.headers.Set(k, v)
	}
	for k, v := range cfg.Vars {
		s.vars[k] = v
	}
	return s, nil
}

// ParseBaseURL validates a target host. Only absolute http(s) URLs are accepted.
func ParseBaseURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidBaseURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q in %s", ErrInvalidBaseURL, u.Scheme, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %s", ErrInvalidBaseURL, raw)
	}
	return u, nil
}

// BaseURL returns the session base URL
func (s *Session) BaseURL() string {
	return s.base.String()
}

// UserID returns the id of the owning user
func (s *Session) UserID() string {
	return s.userID
}

// TaskName returns the name of the task currently running
func (s *Session) TaskName() string {
	return s.task
}

// SetHeader sets a default header for every later call of this user
func (s *Session) SetHeader(key, value string) {
	s.mu.Lock()
	s.headers.Set(key, value)
	s.mu.Unlock()
}

// DelHeader removes a default header
func (s *Session) DelHeader(key string) {
	s.mu.Lock()
	s.headers.Del(key)
	s.mu.Unlock()
}

// Header returns the current value of a default header
func (s *Session) Header(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.headers.Get(key)
}

// Headers returns a copy of the default headers
func (s *Session) Headers() http.Header {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.headers.Clone()
}

// SetVar stores a per-user variable
func (s *Session) SetVar(name, value string) {
	s.mu.Lock()
	s.vars[name] = value
	s.mu.Unlock()
}

// Var returns a per-user variable
func (s *Session) Var(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Vars returns a copy of the per-user variables
func (s *Session) Vars() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// Get issues a GET request
func (s *Session) Get(ctx context.Context, path string) (*Response, error) {
	return s.Do(ctx, &Request{Method: http.MethodGet, Path: path})
}

// Head issues a HEAD request
func (s *Session) Head(ctx context.Context, path string) (*Response, error) {
	return s.Do(ctx, &Request{Method: http.MethodHead, Path: path})
}

// Delete issues a DELETE request
func (s *Session) Delete(ctx context.Context, path string) (*Response, error) {
	return s.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// Post issues a POST request with body
func (s *Session) Post(ctx context.Context, path, body string) (*Response, error) {
	return s.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put issues a PUT request with body
func (s *Session) Put(ctx context.Context, path, body string) (*Response, error) {
	return s.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch issues a PATCH request with body
func (s *Session) Patch(ctx context.Context, path, body string) (*Response, error) {
	return s.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Do issues req and records exactly one result for it.
//
// Transport, HTTP and validation failures are returned on Response.Err with a
// nil error. The error return is only set when the user was stopped during the
// call (the call is not recorded) or the request could not be built.
func (s *Session) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	result := stats.RequestResult{
		UserID:      s.userID,
		Task:        s.task,
		Name:        req.Name,
		Method:      method,
		Path:        req.Path,
		RequestSize: int64(len(req.Body)),
	}

	target, err := s.resolve(req.Path)
	if err != nil {
		result.Timestamp = time.Now()
		s.fail(&result, err)
		return &Response{Err: err}, nil
	}

	var bodyReader io.Reader
	if req.Body != "" {
		bodyReader = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), bodyReader)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		result.Timestamp = time.Now()
		s.fail(&result, err)
		return &Response{Err: err}, nil
	}

	// Snapshot the defaults at issue time so a concurrent mutation cannot tear them
	s.mu.RLock()
	httpReq.Header = s.headers.Clone()
	s.mu.RUnlock()
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	for _, c := range s.jar.Cookies(target) {
		httpReq.AddCookie(c)
	}

	result.Timestamp = time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			// Stopped mid-call: not a result of the target
			return nil, ctx.Err()
		}
		result.Latency = time.Since(result.Timestamp)
		s.fail(&result, err)
		return &Response{Latency: result.Latency, Err: err}, nil
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	result.Latency = time.Since(result.Timestamp)
	if readErr != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if cookies := resp.Cookies(); len(cookies) > 0 {
		s.jar.SetCookies(target, cookies)
	}

	result.Status = resp.StatusCode
	result.ResponseSize = int64(len(body))

	out := &Response{
		Status:  resp.StatusCode,
		Header:  resp.Header,
		Body:    body,
		Latency: result.Latency,
	}

	switch {
	case readErr != nil:
		out.Err = fmt.Errorf("failed to read response body: %w", readErr)
		s.fail(&result, out.Err)
	case len(req.ExpectStatus) > 0 && !containsStatus(req.ExpectStatus, resp.StatusCode):
		out.Err = &ValidationError{Reason: fmt.Sprintf("unexpected status %d (expected %v)", resp.StatusCode, req.ExpectStatus)}
		result.ErrorKind = stats.KindValidation
		result.Error = out.Err.Error()
	case len(req.ExpectStatus) == 0 && resp.StatusCode >= 400:
		out.Err = &StatusError{Status: resp.StatusCode}
		result.ErrorKind = stats.KindHTTP
		result.Error = out.Err.Error()
	case req.ExpectBody != "" && !strings.Contains(string(body), req.ExpectBody):
		out.Err = &ValidationError{Reason: fmt.Sprintf("body does not contain expected substring: %s", req.ExpectBody)}
		result.ErrorKind = stats.KindValidation
		result.Error = out.Err.Error()
	}

	s.recorder.Record(result)
	return out, nil
}

// Record emits a result for a call made outside Do, such as a WebSocket exchange.
// UserID and Task are filled from the session.
func (s *Session) Record(result stats.RequestResult) {
	result.UserID = s.userID
	result.Task = s.task
	s.recorder.Record(result)
}

// Client returns the HTTP client used by the session
func (s *Session) Client() Client {
	return s.client
}

// resolve joins path to the base URL. Absolute URLs are used as is.
func (s *Session) resolve(path string) (*url.URL, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		u, err := url.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return u, nil
	}

	rel, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	// Join both forms so escaped separators like %2F survive
	u := *s.base
	u.Path = strings.TrimRight(s.base.Path, "/") + "/" + strings.TrimLeft(rel.Path, "/")
	u.RawPath = strings.TrimRight(s.base.EscapedPath(), "/") + "/" + strings.TrimLeft(rel.EscapedPath(), "/")
	u.RawQuery = rel.RawQuery
	u.Fragment = ""
	return &u, nil
}

func (s *Session) fail(result *stats.RequestResult, err error) {
	result.ErrorKind = ErrorKind(err)
	result.Error = err.Error()
	s.recorder.Record(*result)
}

func containsStatus(codes []int, status int) bool {
	for _, c := range codes {
		if c == status {
			return true
		}
	}
	return false
}

// StatusError reports an HTTP status >= 400
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.Status, http.StatusText(e.Status))
}

// ValidationError reports a response that did not match its expectations
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}
