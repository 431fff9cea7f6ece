package registry

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/studiowebux/restswarm/internal/vuser"
)

func noop(ctx context.Context, s *vuser.Session) error { return nil }

func TestRegister(t *testing.T) {
	r := New()

	if err := r.Register(Task{Name: "ping", Behavior: noop}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(Task{Name: "users", Weight: 3, Behavior: noop}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if r.Len() != 2 {
		t.Errorf("Expected 2 tasks, got %d", r.Len())
	}
	if r.TotalWeight() != 4 {
		t.Errorf("Expected total weight 4, got %d", r.TotalWeight())
	}

	tasks := r.Tasks()
	if tasks[0].Name != "ping" || tasks[1].Name != "users" {
		t.Errorf("Expected registration order, got %s, %s", tasks[0].Name, tasks[1].Name)
	}
	if tasks[0].Weight != 1 {
		t.Errorf("Expected default weight 1, got %d", tasks[0].Weight)
	}
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		wantErr error
	}{
		{"duplicate", Task{Name: "ping", Behavior: noop}, ErrDuplicateTask},
		{"empty name", Task{Behavior: noop}, ErrInvalidTask},
		{"nil behavior", Task{Name: "nil"}, ErrInvalidTask},
		{"negative weight", Task{Name: "neg", Weight: -1, Behavior: noop}, ErrInvalidWeight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			r.MustRegister(Task{Name: "ping", Behavior: noop})

			err := r.Register(tt.task)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if r.Len() != 1 {
				t.Errorf("Failed registration must not change the registry, got %d tasks", r.Len())
			}
		})
	}
}

func TestRegister_Frozen(t *testing.T) {
	r := New()
	r.MustRegister(Task{Name: "ping", Behavior: noop})
	r.Freeze()

	if err := r.Register(Task{Name: "late", Behavior: noop}); !errors.Is(err, ErrRegistryFrozen) {
		t.Errorf("Expected ErrRegistryFrozen, got %v", err)
	}
	if _, err := r.Pick(); err != nil {
		t.Errorf("Pick must keep working after freeze: %v", err)
	}
}

func TestMustRegister_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic on duplicate")
		}
	}()
	r := New()
	r.MustRegister(Task{Name: "ping", Behavior: noop})
	r.MustRegister(Task{Name: "ping", Behavior: noop})
}

func TestPick_Empty(t *testing.T) {
	r := New()
	if _, err := r.Pick(); !errors.Is(err, ErrEmptyRegistry) {
		t.Errorf("Expected ErrEmptyRegistry, got %v", err)
	}
	if _, err := r.PickWith(rand.New(rand.NewPCG(1, 2))); !errors.Is(err, ErrEmptyRegistry) {
		t.Errorf("Expected ErrEmptyRegistry, got %v", err)
	}
}

func TestPick_WeightDistribution(t *testing.T) {
	r := New()
	weights := map[string]int{"a": 1, "b": 3, "c": 6}
	for _, name := range []string{"a", "b", "c"} {
		r.MustRegister(Task{Name: name, Weight: weights[name], Behavior: noop})
	}

	const picks = 10000
	rng := rand.New(rand.NewPCG(42, 1337))
	counts := make(map[string]int)
	for i := 0; i < picks; i++ {
		task, err := r.PickWith(rng)
		if err != nil {
			t.Fatal(err)
		}
		counts[task.Name]++
	}

	// Chi-squared goodness of fit, 2 degrees of freedom.
	// Critical value at p=0.001 is 13.82.
	total := float64(r.TotalWeight())
	chi2 := 0.0
	for name, w := range weights {
		expected := picks * float64(w) / total
		diff := float64(counts[name]) - expected
		chi2 += diff * diff / expected
	}
	if chi2 > 13.82 {
		t.Errorf("Pick distribution does not match weights: chi2=%.2f counts=%v", chi2, counts)
	}
}

func TestPick_Concurrent(t *testing.T) {
	r := New()
	r.MustRegister(Task{Name: "a", Behavior: noop})
	r.MustRegister(Task{Name: "b", Weight: 2, Behavior: noop})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if _, err := r.Pick(); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestGet(t *testing.T) {
	r := New()
	r.MustRegister(Task{Name: "ping", Weight: 2, Behavior: noop})

	task, ok := r.Get("ping")
	if !ok || task.Weight != 2 {
		t.Errorf("Expected ping with weight 2, got %+v (%v)", task, ok)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Expected missing task to be absent")
	}
}
