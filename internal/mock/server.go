package mock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Server is a configurable HTTP target for local load runs
type Server struct {
	config  *Config
	workdir string
	logger  *zap.Logger

	mu     sync.Mutex
	counts map[string]int
	addr   string
}

// NewServer creates a mock server. Relative body files resolve against workdir.
func NewServer(config *Config, workdir string, logger *zap.Logger) (*Server, error) {
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.Host == "" {
		config.Host = "localhost"
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		config:  config,
		workdir: workdir,
		logger:  logger,
		counts:  make(map[string]int),
	}, nil
}

// Handler returns the request handler, e.g. for httptest
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleRequest)
}

// Run listens on the configured address until ctx is done
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.config.Host, s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.mu.Lock()
	s.addr = "http://" + listener.Addr().String()
	s.mu.Unlock()

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()
	s.logger.Info("mock server listening", zap.String("addr", s.Address()), zap.Int("routes", len(s.config.Routes)))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// Address returns the listening URL once Run has started, else the configured one
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr != "" {
		return s.addr
	}
	return fmt.Sprintf("http://%s:%d", s.config.Host, s.config.Port)
}

// Counts returns the number of requests served per route label ("none" for misses)
func (s *Server) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// handleRequest handles incoming HTTP requests
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	// Drain the body so keep-alive connections can be reused
	_, _ = io.Copy(io.Discard, r.Body)
	r.Body.Close()

	route := s.findMatchingRoute(r.Method, r.URL.Path)

	var status int
	var responseBody string
	matchedRule := "none"

	if route == nil {
		status = http.StatusNotFound
		responseBody = fmt.Sprintf("Mock server: No route configured for %s %s", r.Method, r.URL.Path)
	} else {
		matchedRule = route.label()

		if !sleep(r.Context(), routeDelay(route)) {
			s.count(matchedRule)
			return
		}

		status = route.Status
		if status == 0 {
			status = http.StatusOK
		}
		for key, value := range route.Headers {
			w.Header().Set(key, value)
		}
		responseBody = route.Body

		if route.BodyFile != "" {
			filePath := route.BodyFile
			if !filepath.IsAbs(filePath) {
				filePath = filepath.Join(s.workdir, filePath)
			}
			bodyBytes, err := os.ReadFile(filePath)
			if err != nil {
				status = http.StatusInternalServerError
				responseBody = fmt.Sprintf("Mock server: Failed to read body file %s: %v", route.BodyFile, err)
			} else {
				responseBody = string(bodyBytes)
			}
		}

		if route.ErrorRate > 0 && rand.Float64() < route.ErrorRate {
			status = route.ErrorStatus
			if status == 0 {
				status = http.StatusServiceUnavailable
			}
			responseBody = http.StatusText(status)
		}
	}

	w.WriteHeader(status)
	_, _ = w.Write([]byte(responseBody))

	s.count(matchedRule)
	if s.config.Logging {
		s.logger.Debug("mock request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("route", matchedRule),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func (s *Server) count(rule string) {
	s.mu.Lock()
	s.counts[rule]++
	s.mu.Unlock()
}

// findMatchingRoute finds the first route that matches the method and path
func (s *Server) findMatchingRoute(method, path string) *Route {
	for i := range s.config.Routes {
		route := &s.config.Routes[i]
		if route.Method != "*" && !strings.EqualFold(route.Method, method) {
			continue
		}

		matched := false
		switch route.PathType {
		case "", "exact":
			matched = route.Path == path
		case "prefix":
			matched = strings.HasPrefix(path, route.Path)
		case "regex":
			// compiled by validateConfig
			matched = route.re != nil && route.re.MatchString(path)
		}

		if matched {
			return route
		}
	}

	return nil
}

func routeDelay(route *Route) time.Duration {
	d := route.Delay.D()
	if j := route.Jitter.D(); j > 0 {
		d += rand.N(j)
	}
	return d
}

// sleep waits for d or until ctx is done; it reports whether d elapsed
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
