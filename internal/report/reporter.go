// Package report periodically snapshots the stats collector and fans the
// snapshots out to sinks (console, structured log, run store, metrics).
package report

import (
	"context"
	"time"

	"github.com/studiowebux/restswarm/internal/stats"
	"go.uber.org/zap"
)

// DefaultInterval is the default time between two reports
const DefaultInterval = 5 * time.Second

// Sink receives snapshots. Errors are logged and never stop the run.
type Sink interface {
	// Report receives the snapshot of one report interval
	Report(ctx context.Context, snap *stats.Snapshot) error
	// Close receives the whole-run snapshot once, at the end of the run
	Close(ctx context.Context, final *stats.Snapshot) error
}

// Source produces snapshots; *stats.Collector implements it
type Source interface {
	Snapshot(w stats.Window) *stats.Snapshot
	Since(offset int, w stats.Window) (*stats.Snapshot, int)
}

// Reporter ticks on a fixed interval and reports the elapsed window
type Reporter struct {
	source   Source
	sinks    []Sink
	interval time.Duration
	logger   *zap.Logger

	last   time.Time
	offset int
}

// NewReporter creates a reporter. A non-positive interval uses DefaultInterval.
func NewReporter(source Source, interval time.Duration, logger *zap.Logger, sinks ...Sink) *Reporter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		source:   source,
		sinks:    sinks,
		interval: interval,
		logger:   logger,
	}
}

// Interval returns the report interval
func (r *Reporter) Interval() time.Duration {
	return r.interval
}

// Run reports every interval until ctx is done, then reports the trailing
// partial interval. Intervals are contiguous: [t0, t1), [t1, t2), ...
// An interval holds the results recorded during it, so a request issued
// before a tick and finished after it lands in the next interval and every
// result is reported exactly once.
func (r *Reporter) Run(ctx context.Context, start time.Time) error {
	r.last = start
	r.offset = 0

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.tick(context.WithoutCancel(ctx), time.Now())
			return nil
		case now := <-ticker.C:
			r.tick(ctx, now)
		}
	}
}

// tick reports the results recorded since the previous tick as [last, now)
func (r *Reporter) tick(ctx context.Context, now time.Time) {
	snap, offset := r.source.Since(r.offset, stats.Between(r.last, now))
	r.last = now
	r.offset = offset

	for _, sink := range r.sinks {
		if err := sink.Report(ctx, snap); err != nil {
			r.logger.Warn("report sink failed", zap.Error(err))
		}
	}
}

// Final builds the whole-run snapshot from start and hands it to every sink's Close
func (r *Reporter) Final(ctx context.Context, start time.Time) *stats.Snapshot {
	final := r.source.Snapshot(stats.Window{From: start})

	for _, sink := range r.sinks {
		if err := sink.Close(ctx, final); err != nil {
			r.logger.Warn("report sink close failed", zap.Error(err))
		}
	}
	return final
}
