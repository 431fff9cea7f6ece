package stats

import (
	"sync"
	"time"
)

// Window selects results by timestamp: From <= t < To.
// A zero From or To leaves that side open.
type Window struct {
	From time.Time
	To   time.Time
}

// All returns a window covering every result
func All() Window {
	return Window{}
}

// Last returns a window covering the last d, ending now (open-ended)
func Last(d time.Duration) Window {
	return Window{From: time.Now().Add(-d)}
}

// Between returns the window [from, to)
func Between(from, to time.Time) Window {
	return Window{From: from, To: to}
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// Collector is an append-only store of request results
type Collector struct {
	mu      sync.RWMutex
	results []RequestResult
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{
		results: make([]RequestResult, 0, 1024),
	}
}

// Record appends a result. Safe for concurrent use.
func (c *Collector) Record(result RequestResult) {
	c.mu.Lock()
	c.results = append(c.results, result)
	c.mu.Unlock()
}

// Len returns the number of recorded results
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}

// Reset drops every recorded result
func (c *Collector) Reset() {
	c.mu.Lock()
	c.results = make([]RequestResult, 0, 1024)
	c.mu.Unlock()
}

// view returns the current results without copying them.
// Entries below len are never written again, so the caller may read them
// after the lock is released.
func (c *Collector) view() []RequestResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.results[:len(c.results):len(c.results)]
}

// Results returns a copy of the results inside the window, in record order
func (c *Collector) Results(w Window) []RequestResult {
	all := c.view()
	out := make([]RequestResult, 0, len(all))
	for _, r := range all {
		if w.Contains(r.Timestamp) {
			out = append(out, r)
		}
	}
	return out
}

// Snapshot aggregates every result inside the window
func (c *Collector) Snapshot(w Window) *Snapshot {
	return Build(c.view(), w, time.Now())
}

// Since aggregates every result recorded after the first offset results,
// whatever its timestamp, and returns the offset for the next call.
// w labels the snapshot and sets its rate denominator. An offset past the
// end, as after Reset, starts from the first result.
func (c *Collector) Since(offset int, w Window) (*Snapshot, int) {
	all := c.view()
	if offset < 0 || offset > len(all) {
		offset = 0
	}
	return buildAll(all[offset:], w, time.Now()), len(all)
}
