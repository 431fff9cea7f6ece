package store

import (
	"time"

	"github.com/studiowebux/restswarm/internal/stats"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Run represents one load run record
type Run struct {
	ID              int64      `json:"id" yaml:"id"`
	Name            string     `json:"name" yaml:"name"`
	Host            string     `json:"host" yaml:"host"`
	Scenario        string     `json:"scenario" yaml:"scenario"`
	Users           int        `json:"users" yaml:"users"`
	RampRate        float64    `json:"ramp_rate" yaml:"ramp_rate"`
	StartedAt       time.Time  `json:"started_at" yaml:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Status          string     `json:"status" yaml:"status"` // "running", "completed", "cancelled", "failed"
	TotalRequests   int        `json:"total_requests" yaml:"total_requests"`
	TotalFailures   int        `json:"total_failures" yaml:"total_failures"`
	AvgMs           float64    `json:"avg_ms" yaml:"avg_ms"`
	MinMs           float64    `json:"min_ms" yaml:"min_ms"`
	MaxMs           float64    `json:"max_ms" yaml:"max_ms"`
	P50Ms           float64    `json:"p50_ms" yaml:"p50_ms"`
	P95Ms           float64    `json:"p95_ms" yaml:"p95_ms"`
	P99Ms           float64    `json:"p99_ms" yaml:"p99_ms"`
	RPS             float64    `json:"rps" yaml:"rps"`
	ForcedShutdowns int        `json:"forced_shutdowns" yaml:"forced_shutdowns"`
}

// Duration returns how long the run lasted, or zero while it is running
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// FailureRatio returns failures / requests
func (r *Run) FailureRatio() float64 {
	if r.TotalRequests == 0 {
		return 0
	}
	return float64(r.TotalFailures) / float64(r.TotalRequests)
}

// ApplySnapshot copies the aggregated totals of a whole-run snapshot into the run
func (r *Run) ApplySnapshot(snap *stats.Snapshot) {
	if snap == nil {
		return
	}
	t := snap.Total
	r.TotalRequests = t.Requests
	r.TotalFailures = t.Failures
	r.AvgMs = ms(t.MeanLatency)
	r.MinMs = ms(t.MinLatency)
	r.MaxMs = ms(t.MaxLatency)
	r.P50Ms = ms(t.P50Latency)
	r.P95Ms = ms(t.P95Latency)
	r.P99Ms = ms(t.P99Latency)
	r.RPS = t.RequestsPerSecond
}

// Interval is the aggregate of one key over one report window
type Interval struct {
	ID          int64     `json:"id" yaml:"id"`
	RunID       int64     `json:"run_id" yaml:"run_id"`
	WindowStart time.Time `json:"window_start" yaml:"window_start"`
	WindowEnd   time.Time `json:"window_end" yaml:"window_end"`
	Task        string    `json:"task" yaml:"task"`
	Name        string    `json:"name" yaml:"name"`
	Method      string    `json:"method" yaml:"method"`
	Requests    int       `json:"requests" yaml:"requests"`
	Failures    int       `json:"failures" yaml:"failures"`
	AvgMs       float64   `json:"avg_ms" yaml:"avg_ms"`
	P50Ms       float64   `json:"p50_ms" yaml:"p50_ms"`
	P95Ms       float64   `json:"p95_ms" yaml:"p95_ms"`
	P99Ms       float64   `json:"p99_ms" yaml:"p99_ms"`
	MaxMs       float64   `json:"max_ms" yaml:"max_ms"`
	RPS         float64   `json:"rps" yaml:"rps"`
}

func intervalFromEntry(runID int64, from, to time.Time, e *stats.EntryStats) *Interval {
	return &Interval{
		RunID:       runID,
		WindowStart: from,
		WindowEnd:   to,
		Task:        e.Task,
		Name:        e.Name,
		Method:      e.Method,
		Requests:    e.Requests,
		Failures:    e.Failures,
		AvgMs:       ms(e.MeanLatency),
		P50Ms:       ms(e.P50Latency),
		P95Ms:       ms(e.P95Latency),
		P99Ms:       ms(e.P99Latency),
		MaxMs:       ms(e.MaxLatency),
		RPS:         e.RequestsPerSecond,
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
