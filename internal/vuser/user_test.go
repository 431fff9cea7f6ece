package vuser

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/studiowebux/restswarm/internal/stats"
)

// singleTask always picks the same task
type singleTask Task

func (t singleTask) PickWith(*rand.Rand) (Task, error) {
	return Task(t), nil
}

type emptyPicker struct{}

func (emptyPicker) PickWith(*rand.Rand) (Task, error) {
	return Task{}, errors.New("no tasks registered")
}

func pingTask() singleTask {
	return singleTask{
		Name:   "ping",
		Weight: 1,
		Behavior: func(ctx context.Context, s *Session) error {
			_, err := s.Get(ctx, "/ping")
			return err
		},
	}
}

func TestVirtualUser_PingScenario(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("pong"))
	}))
	defer server.Close()

	collector := stats.NewCollector()
	session, err := NewSession(SessionConfig{BaseURL: server.URL, Recorder: collector})
	if err != nil {
		t.Fatal(err)
	}

	u := New("user-1", session, WithThinkTime(None()), WithMaxIterations(3))
	if u.State() != Starting {
		t.Errorf("Expected Starting, got %s", u.State())
	}

	if err := u.Run(context.Background(), pingTask()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if u.State() != Stopped {
		t.Errorf("Expected Stopped, got %s", u.State())
	}
	if u.Iterations() != 3 {
		t.Errorf("Expected 3 iterations, got %d", u.Iterations())
	}

	results := collector.Results(stats.All())
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.Method != "GET" || r.Path != "/ping" || r.Task != "ping" || r.Status != 200 {
			t.Errorf("Result %d: unexpected %s %s task=%s status=%d", i, r.Method, r.Path, r.Task, r.Status)
		}
	}
	if hits.Load() != 3 {
		t.Errorf("Expected 3 server hits, got %d", hits.Load())
	}
}

func TestVirtualUser_TransientFailureContinues(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	collector := stats.NewCollector()
	session, _ := NewSession(SessionConfig{BaseURL: server.URL, Recorder: collector})

	task := singleTask{
		Name: "ping",
		Behavior: func(ctx context.Context, s *Session) error {
			resp, err := s.Get(ctx, "/ping")
			if err != nil {
				return err
			}
			return resp.Err
		},
	}

	u := New("user-1", session, WithThinkTime(None()), WithMaxIterations(3))
	if err := u.Run(context.Background(), task); err != nil {
		t.Fatalf("Transient failure must not stop the user: %v", err)
	}

	snap := collector.Snapshot(stats.All())
	if snap.Requests() != 3 || snap.Failures() != 1 {
		t.Errorf("Expected 3 requests / 1 failure, got %d / %d", snap.Requests(), snap.Failures())
	}
}

func TestVirtualUser_UnrecoverableStops(t *testing.T) {
	session, _ := NewSession(SessionConfig{BaseURL: "http://localhost"})
	boom := errors.New("session broken")

	task := singleTask{
		Name: "broken",
		Behavior: func(ctx context.Context, s *Session) error {
			return Unrecoverable(boom)
		},
	}

	u := New("user-1", session, WithThinkTime(None()))
	err := u.Run(context.Background(), task)
	if !errors.Is(err, boom) || !errors.Is(err, ErrUnrecoverable) {
		t.Errorf("Expected unrecoverable error wrapping cause, got %v", err)
	}
	if u.Iterations() != 1 {
		t.Errorf("Expected 1 iteration, got %d", u.Iterations())
	}
}

func TestVirtualUser_EmptyPickerStops(t *testing.T) {
	session, _ := NewSession(SessionConfig{BaseURL: "http://localhost"})
	u := New("user-1", session)

	err := u.Run(context.Background(), emptyPicker{})
	if !IsUnrecoverable(err) {
		t.Errorf("Expected unrecoverable pick error, got %v", err)
	}
}

func TestVirtualUser_PanicIsContained(t *testing.T) {
	session, _ := NewSession(SessionConfig{BaseURL: "http://localhost"})
	task := singleTask{
		Name: "panics",
		Behavior: func(ctx context.Context, s *Session) error {
			panic("bad behavior")
		},
	}

	u := New("user-1", session, WithThinkTime(None()), WithMaxIterations(2))
	if err := u.Run(context.Background(), task); err != nil {
		t.Errorf("Panic should be logged and skipped, got %v", err)
	}
	if u.Iterations() != 2 {
		t.Errorf("Expected 2 iterations, got %d", u.Iterations())
	}
}

func TestVirtualUser_CancelInterruptsThinkTime(t *testing.T) {
	session, _ := NewSession(SessionConfig{BaseURL: "http://localhost"})
	task := singleTask{
		Name:     "noop",
		Behavior: func(ctx context.Context, s *Session) error { return nil },
	}

	var states []State
	u := New("user-1", session,
		WithThinkTime(Constant(time.Hour)),
		WithStateHook(func(id string, s State) { states = append(states, s) }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Run(ctx, task) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil on cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("User did not observe cancellation during think time")
	}

	if len(states) != 2 || states[0] != Running || states[1] != Stopped {
		t.Errorf("Expected [running stopped], got %v", states)
	}
}

func TestVirtualUser_IterationHook(t *testing.T) {
	session, _ := NewSession(SessionConfig{BaseURL: "http://localhost"})
	var hookCalls int
	task := singleTask{
		Name: "check",
		Behavior: func(ctx context.Context, s *Session) error {
			if s.Header("Authorization") == "" {
				return errors.New("missing auth")
			}
			return nil
		},
	}

	u := New("user-1", session,
		WithThinkTime(None()),
		WithMaxIterations(2),
		WithIterationHook(func(ctx context.Context, s *Session) error {
			hookCalls++
			s.SetHeader("Authorization", "Bearer refreshed")
			return nil
		}),
	)
	if err := u.Run(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	if hookCalls != 2 {
		t.Errorf("Expected hook per iteration, got %d", hookCalls)
	}
}

func TestThinkTime(t *testing.T) {
	if Constant(2*time.Second).Next() != 2*time.Second {
		t.Error("Constant should return its duration")
	}
	if None().Next() != 0 {
		t.Error("None should return zero")
	}

	b := Between(10*time.Millisecond, 20*time.Millisecond)
	for i := 0; i < 1000; i++ {
		d := b.Next()
		if d < 10*time.Millisecond || d > 20*time.Millisecond {
			t.Fatalf("Between returned %v outside [10ms, 20ms]", d)
		}
	}

	if Between(5*time.Second, time.Second).Next() != 5*time.Second {
		t.Error("Between with max < min should clamp to min")
	}
}
