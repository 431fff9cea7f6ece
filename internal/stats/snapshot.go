package stats

import (
	"sort"
	"time"

	"github.com/codahale/hdrhistogram"
)

const (
	// Histogram range in microseconds: 1µs to 10 minutes
	histMinMicros = 1
	histMaxMicros = int64(10 * time.Minute / time.Microsecond)
	histSigFigs   = 3

	// TotalName is the name of the aggregated row
	TotalName = "Aggregated"
)

// Key identifies one row of a snapshot
type Key struct {
	Task string
	Name string
}

// EntryStats aggregates the results of one key
type EntryStats struct {
	Key
	Method            string
	Requests          int
	Failures          int
	StatusCodes       map[int]int
	ErrorKinds        map[ErrorKind]int
	MinLatency        time.Duration
	MaxLatency        time.Duration
	MeanLatency       time.Duration
	P50Latency        time.Duration
	P90Latency        time.Duration
	P95Latency        time.Duration
	P99Latency        time.Duration
	RequestBytes      int64
	ResponseBytes     int64
	FirstAt           time.Time
	LastAt            time.Time
	RequestsPerSecond float64

	hist         *hdrhistogram.Histogram
	totalLatency time.Duration
}

func newEntry(key Key, method string) *EntryStats {
	return &EntryStats{
		Key:         key,
		Method:      method,
		StatusCodes: make(map[int]int),
		ErrorKinds:  make(map[ErrorKind]int),
		MinLatency:  -1,
		hist:        hdrhistogram.New(histMinMicros, histMaxMicros, histSigFigs),
	}
}

// add folds one result into the entry
func (e *EntryStats) add(r RequestResult) {
	e.Requests++
	if r.Failed() {
		e.Failures++
		e.ErrorKinds[r.ErrorKind]++
	}
	if r.Status > 0 {
		e.StatusCodes[r.Status]++
	}
	if e.Method != r.Method && e.Method != "" {
		e.Method = "MIXED"
	}

	e.totalLatency += r.Latency
	if e.MinLatency == -1 || r.Latency < e.MinLatency {
		e.MinLatency = r.Latency
	}
	if r.Latency > e.MaxLatency {
		e.MaxLatency = r.Latency
	}
	_ = e.hist.RecordValue(clampMicros(r.Latency))

	e.RequestBytes += r.RequestSize
	e.ResponseBytes += r.ResponseSize

	if e.FirstAt.IsZero() || r.Timestamp.Before(e.FirstAt) {
		e.FirstAt = r.Timestamp
	}
	if r.Timestamp.After(e.LastAt) {
		e.LastAt = r.Timestamp
	}
}

// finish computes derived fields once all results are folded in
func (e *EntryStats) finish(w Window, generatedAt time.Time) {
	if e.Requests == 0 {
		e.MinLatency = 0
		return
	}

	e.MeanLatency = e.totalLatency / time.Duration(e.Requests)
	e.P50Latency = e.quantile(50)
	e.P90Latency = e.quantile(90)
	e.P95Latency = e.quantile(95)
	e.P99Latency = e.quantile(99)

	from := w.From
	if from.IsZero() {
		from = e.FirstAt
	}
	to := w.To
	if to.IsZero() {
		to = generatedAt
	}
	if elapsed := to.Sub(from).Seconds(); elapsed > 0 {
		e.RequestsPerSecond = float64(e.Requests) / elapsed
	}
}

// quantile reads q (0-100) from the histogram, clamped to the observed range
func (e *EntryStats) quantile(q float64) time.Duration {
	v := time.Duration(e.hist.ValueAtQuantile(q)) * time.Microsecond
	if v < e.MinLatency {
		return e.MinLatency
	}
	if v > e.MaxLatency {
		return e.MaxLatency
	}
	return v
}

// FailureRatio returns failures / requests (0 when empty)
func (e *EntryStats) FailureRatio() float64 {
	if e.Requests == 0 {
		return 0
	}
	return float64(e.Failures) / float64(e.Requests)
}

// SuccessRate returns the success rate as a percentage
func (e *EntryStats) SuccessRate() float64 {
	if e.Requests == 0 {
		return 0
	}
	return float64(e.Requests-e.Failures) / float64(e.Requests) * 100
}

// Snapshot is an immutable aggregation of results over a window
type Snapshot struct {
	Window      Window
	GeneratedAt time.Time
	Entries     map[Key]*EntryStats
	Total       *EntryStats
}

// Build aggregates the results that fall inside w
func Build(results []RequestResult, w Window, generatedAt time.Time) *Snapshot {
	return build(results, w, generatedAt, true)
}

// buildAll aggregates every result and uses w only for rates
func buildAll(results []RequestResult, w Window, generatedAt time.Time) *Snapshot {
	return build(results, w, generatedAt, false)
}

func build(results []RequestResult, w Window, generatedAt time.Time, filter bool) *Snapshot {
	snap := &Snapshot{
		Window:      w,
		GeneratedAt: generatedAt,
		Entries:     make(map[Key]*EntryStats),
		Total:       newEntry(Key{Name: TotalName}, ""),
	}

	for _, r := range results {
		if filter && !w.Contains(r.Timestamp) {
			continue
		}
		key := Key{Task: r.Task, Name: r.GroupName()}
		entry, ok := snap.Entries[key]
		if !ok {
			entry = newEntry(key, r.Method)
			snap.Entries[key] = entry
		}
		entry.add(r)

		if snap.Total.Requests == 0 {
			snap.Total.Method = r.Method
		}
		snap.Total.add(r)
	}

	for _, entry := range snap.Entries {
		entry.finish(w, generatedAt)
	}
	snap.Total.finish(w, generatedAt)

	return snap
}

// Requests returns the total number of requests in the snapshot
func (s *Snapshot) Requests() int {
	return s.Total.Requests
}

// Failures returns the total number of failed requests in the snapshot
func (s *Snapshot) Failures() int {
	return s.Total.Failures
}

// Entry returns the stats for a (task, name) pair, or nil
func (s *Snapshot) Entry(task, name string) *EntryStats {
	return s.Entries[Key{Task: task, Name: name}]
}

// Sorted returns entries ordered by task then name
func (s *Snapshot) Sorted() []*EntryStats {
	out := make([]*EntryStats, 0, len(s.Entries))
	for _, e := range s.Entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Task != out[j].Task {
			return out[i].Task < out[j].Task
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func clampMicros(d time.Duration) int64 {
	us := d.Microseconds()
	if us < histMinMicros {
		return histMinMicros
	}
	if us > histMaxMicros {
		return histMaxMicros
	}
	return us
}
