package stats

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func result(task, path string, status int, latency time.Duration, at time.Time) RequestResult {
	r := RequestResult{
		UserID:    "user-1",
		Task:      task,
		Method:    "GET",
		Path:      path,
		Status:    status,
		Latency:   latency,
		Timestamp: at,
	}
	if status >= 400 {
		r.ErrorKind = KindHTTP
	}
	return r
}

func TestCollector_ConcurrentRecord(t *testing.T) {
	const writers = 50
	const perWriter = 200

	c := NewCollector()
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				c.Record(RequestResult{
					UserID:    fmt.Sprintf("user-%d", w),
					Task:      "ping",
					Method:    "GET",
					Path:      "/ping",
					Status:    200,
					Latency:   time.Millisecond,
					Timestamp: time.Now(),
				})
			}
		}(w)
	}
	wg.Wait()

	if c.Len() != writers*perWriter {
		t.Fatalf("Expected %d results, got %d", writers*perWriter, c.Len())
	}

	// No duplicates: each user contributed exactly perWriter results
	perUser := make(map[string]int)
	for _, r := range c.Results(All()) {
		perUser[r.UserID]++
	}
	if len(perUser) != writers {
		t.Fatalf("Expected %d users, got %d", writers, len(perUser))
	}
	for user, n := range perUser {
		if n != perWriter {
			t.Errorf("User %s: expected %d results, got %d", user, perWriter, n)
		}
	}
}

func TestCollector_SnapshotDuringRecord(t *testing.T) {
	c := NewCollector()
	stop := make(chan struct{})
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					c.Record(result("ping", "/ping", 200, 2*time.Millisecond, time.Now()))
				}
			}
		}()
	}

	prev := 0
	for i := 0; i < 50; i++ {
		snap := c.Snapshot(All())
		if snap.Requests() < prev {
			t.Fatalf("Snapshot went backwards: %d < %d", snap.Requests(), prev)
		}
		if e := snap.Entry("ping", "/ping"); e != nil && e.Requests != snap.Requests() {
			t.Fatalf("Entry count %d does not match total %d", e.Requests, snap.Requests())
		}
		prev = snap.Requests()
	}

	close(stop)
	wg.Wait()

	final := c.Snapshot(All())
	if final.Requests() != c.Len() {
		t.Errorf("Expected final snapshot to include all %d results, got %d", c.Len(), final.Requests())
	}
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector()
	now := time.Now()
	c.Record(result("ping", "/ping", 200, time.Millisecond, now))
	c.Record(result("ping", "/ping", 500, time.Millisecond, now))

	before := c.Snapshot(All())
	c.Reset()

	if c.Len() != 0 {
		t.Errorf("Expected empty collector after reset, got %d", c.Len())
	}
	if before.Requests() != 2 {
		t.Errorf("Expected earlier snapshot to keep 2 requests, got %d", before.Requests())
	}
	if c.Snapshot(All()).Requests() != 0 {
		t.Error("Expected empty snapshot after reset")
	}
}

func TestWindow_Contains(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		window Window
		at     time.Time
		want   bool
	}{
		{"open window", All(), base, true},
		{"inclusive from", Between(base, base.Add(time.Second)), base, true},
		{"exclusive to", Between(base, base.Add(time.Second)), base.Add(time.Second), false},
		{"before from", Between(base, base.Add(time.Second)), base.Add(-time.Nanosecond), false},
		{"open to", Window{From: base}, base.Add(time.Hour), true},
		{"open from", Window{To: base}, base.Add(-time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.window.Contains(tt.at); got != tt.want {
				t.Errorf("Contains() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCollector_SnapshotWindow(t *testing.T) {
	c := NewCollector()
	base := time.Now().Add(-time.Minute)
	for i := 0; i < 10; i++ {
		c.Record(result("ping", "/ping", 200, time.Millisecond, base.Add(time.Duration(i)*time.Second)))
	}

	first := c.Snapshot(Between(base, base.Add(5*time.Second)))
	second := c.Snapshot(Between(base.Add(5*time.Second), base.Add(10*time.Second)))

	if first.Requests() != 5 || second.Requests() != 5 {
		t.Errorf("Expected 5+5 requests, got %d+%d", first.Requests(), second.Requests())
	}
	if got := c.Snapshot(Last(time.Hour)).Requests(); got != 10 {
		t.Errorf("Expected 10 requests in the last hour, got %d", got)
	}
}

func TestFanout(t *testing.T) {
	a := NewCollector()
	b := NewCollector()
	calls := 0
	f := Fanout{a, b, RecorderFunc(func(RequestResult) { calls++ })}

	f.Record(result("ping", "/ping", 200, time.Millisecond, time.Now()))

	if a.Len() != 1 || b.Len() != 1 || calls != 1 {
		t.Errorf("Expected one result in each recorder, got %d, %d, %d", a.Len(), b.Len(), calls)
	}
}

func TestCollector_Since(t *testing.T) {
	c := NewCollector()
	base := time.Now()
	c.Record(result("a", "/a", 200, time.Millisecond, base))
	c.Record(result("a", "/a", 200, time.Millisecond, base.Add(time.Second)))

	snap, offset := c.Since(0, Between(base, base.Add(2*time.Second)))
	if snap.Requests() != 2 || offset != 2 {
		t.Fatalf("Expected 2 requests and offset 2, got %d and %d", snap.Requests(), offset)
	}

	// Timestamp outside the window still counts once recorded
	c.Record(result("a", "/a", 503, time.Millisecond, base.Add(-time.Minute)))
	snap, offset = c.Since(offset, Between(base.Add(2*time.Second), base.Add(3*time.Second)))
	if snap.Requests() != 1 || snap.Total.Failures != 1 || offset != 3 {
		t.Errorf("Expected 1 new failed request and offset 3, got %d, %d and %d",
			snap.Requests(), snap.Total.Failures, offset)
	}
	if snap.Total.RequestsPerSecond != 1 {
		t.Errorf("Expected rate over the window to be 1, got %v", snap.Total.RequestsPerSecond)
	}

	snap, offset = c.Since(offset, All())
	if snap.Requests() != 0 || offset != 3 {
		t.Errorf("Expected nothing new, got %d requests and offset %d", snap.Requests(), offset)
	}

	c.Reset()
	c.Record(result("b", "/b", 200, time.Millisecond, base))
	snap, offset = c.Since(3, All())
	if snap.Requests() != 1 || offset != 1 {
		t.Errorf("Expected offset past a reset to restart, got %d requests and offset %d", snap.Requests(), offset)
	}
}
