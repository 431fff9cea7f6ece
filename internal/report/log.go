package report

import (
	"context"
	"sort"

	"github.com/studiowebux/restswarm/internal/stats"
	"go.uber.org/zap"
)

// LogSink writes snapshots as structured log entries
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink logging to logger
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("report")}
}

// Report logs the interval totals at info and each key at debug
func (l *LogSink) Report(ctx context.Context, snap *stats.Snapshot) error {
	l.logger.Info("interval", totalFields(snap)...)
	for _, e := range snap.Sorted() {
		l.logger.Debug("interval entry", entryFields(e)...)
	}
	return nil
}

// Close logs the whole-run totals and every key at info
func (l *LogSink) Close(ctx context.Context, final *stats.Snapshot) error {
	l.logger.Info("run summary", totalFields(final)...)
	for _, e := range final.Sorted() {
		l.logger.Info("run summary entry", entryFields(e)...)
	}
	return nil
}

func totalFields(snap *stats.Snapshot) []zap.Field {
	fields := []zap.Field{
		zap.Time("from", snap.Window.From),
		zap.Time("to", snap.GeneratedAt),
	}
	fields = append(fields, entryFields(snap.Total)...)
	for _, k := range sortedKinds(snap.Total.ErrorKinds) {
		fields = append(fields, zap.Int("errors_"+string(k), snap.Total.ErrorKinds[k]))
	}
	return fields
}

func entryFields(e *stats.EntryStats) []zap.Field {
	return []zap.Field{
		zap.String("task", e.Task),
		zap.String("name", e.Name),
		zap.String("method", e.Method),
		zap.Int("requests", e.Requests),
		zap.Int("failures", e.Failures),
		zap.Duration("avg", e.MeanLatency),
		zap.Duration("p50", e.P50Latency),
		zap.Duration("p95", e.P95Latency),
		zap.Duration("p99", e.P99Latency),
		zap.Duration("max", e.MaxLatency),
		zap.Float64("rps", e.RequestsPerSecond),
	}
}

func sortedKinds(kinds map[stats.ErrorKind]int) []stats.ErrorKind {
	out := make([]stats.ErrorKind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
