// Package metrics exposes run statistics in the Prometheus exposition format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/studiowebux/restswarm/internal/stats"
	"go.uber.org/zap"
)

const namespace = "restswarm"

// Source produces cumulative snapshots; *stats.Collector implements it
type Source interface {
	Snapshot(w stats.Window) *stats.Snapshot
}

var quantiles = []struct {
	q     float64
	value func(*stats.EntryStats) time.Duration
}{
	{0.5, func(e *stats.EntryStats) time.Duration { return e.P50Latency }},
	{0.9, func(e *stats.EntryStats) time.Duration { return e.P90Latency }},
	{0.95, func(e *stats.EntryStats) time.Duration { return e.P95Latency }},
	{0.99, func(e *stats.EntryStats) time.Duration { return e.P99Latency }},
}

// Exporter implements prometheus.Collector over the most recent cumulative
// snapshot. It is also a report sink: every report refreshes the snapshot.
type Exporter struct {
	source Source
	since  time.Time
	users  func() int

	mu       sync.RWMutex
	latest   *stats.Snapshot
	interval *stats.Snapshot

	requestsDesc *prometheus.Desc
	failuresDesc *prometheus.Desc
	errorsDesc   *prometheus.Desc
	latencyDesc  *prometheus.Desc
	bytesDesc    *prometheus.Desc
	usersDesc    *prometheus.Desc
	intervalRPS  *prometheus.Desc
	snapshotAt   *prometheus.Desc
}

// NewExporter reads cumulative snapshots from source starting at since.
// users reports the live population and may be nil.
func NewExporter(source Source, since time.Time, users func() int) *Exporter {
	keyLabels := []string{"task", "name", "method"}
	return &Exporter{
		source: source,
		since:  since,
		users:  users,

		requestsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "requests_total"),
			"Total number of requests issued by virtual users.",
			keyLabels, nil,
		),
		failuresDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "failures_total"),
			"Total number of failed requests.",
			keyLabels, nil,
		),
		errorsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "errors_total"),
			"Failed requests by error kind across all keys.",
			[]string{"kind"}, nil,
		),
		latencyDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "latency_seconds"),
			"Request latency quantiles.",
			keyLabels, nil,
		),
		bytesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "response_bytes_total"),
			"Total response body bytes received.",
			keyLabels, nil,
		),
		usersDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "users"),
			"Virtual users currently running.",
			nil, nil,
		),
		intervalRPS: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "interval_requests_per_second"),
			"Request rate over the last report interval.",
			nil, nil,
		),
		snapshotAt: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "snapshot_timestamp_seconds"),
			"Unix time of the snapshot being exported.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.requestsDesc
	ch <- e.failuresDesc
	ch <- e.errorsDesc
	ch <- e.latencyDesc
	ch <- e.bytesDesc
	ch <- e.usersDesc
	ch <- e.intervalRPS
	ch <- e.snapshotAt
}

// Collect implements prometheus.Collector
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	if e.users != nil {
		ch <- prometheus.MustNewConstMetric(e.usersDesc, prometheus.GaugeValue, float64(e.users()))
	}

	e.mu.RLock()
	snap := e.latest
	interval := e.interval
	e.mu.RUnlock()

	if interval != nil {
		ch <- prometheus.MustNewConstMetric(e.intervalRPS, prometheus.GaugeValue, interval.Total.RequestsPerSecond)
	}
	if snap == nil {
		return
	}

	ch <- prometheus.MustNewConstMetric(e.snapshotAt, prometheus.GaugeValue, float64(snap.GeneratedAt.UnixNano())/1e9)

	for _, entry := range snap.Sorted() {
		labels := []string{entry.Task, entry.Name, entry.Method}
		ch <- prometheus.MustNewConstMetric(e.requestsDesc, prometheus.CounterValue, float64(entry.Requests), labels...)
		ch <- prometheus.MustNewConstMetric(e.failuresDesc, prometheus.CounterValue, float64(entry.Failures), labels...)
		ch <- prometheus.MustNewConstMetric(e.bytesDesc, prometheus.CounterValue, float64(entry.ResponseBytes), labels...)

		summaryQuantiles := make(map[float64]float64, len(quantiles))
		for _, q := range quantiles {
			summaryQuantiles[q.q] = q.value(entry).Seconds()
		}
		ch <- prometheus.MustNewConstSummary(
			e.latencyDesc,
			uint64(entry.Requests),
			(entry.MeanLatency * time.Duration(entry.Requests)).Seconds(),
			summaryQuantiles,
			labels...,
		)
	}

	for kind, count := range snap.Total.ErrorKinds {
		ch <- prometheus.MustNewConstMetric(e.errorsDesc, prometheus.CounterValue, float64(count), string(kind))
	}
}

// Refresh replaces the exported snapshot with a fresh cumulative one
func (e *Exporter) Refresh() {
	snap := e.source.Snapshot(stats.Window{From: e.since})
	e.mu.Lock()
	e.latest = snap
	e.mu.Unlock()
}

// Report implements report.Sink
func (e *Exporter) Report(ctx context.Context, snap *stats.Snapshot) error {
	e.mu.Lock()
	e.interval = snap
	e.mu.Unlock()
	e.Refresh()
	return nil
}

// Close implements report.Sink and exports the final snapshot
func (e *Exporter) Close(ctx context.Context, final *stats.Snapshot) error {
	e.mu.Lock()
	e.latest = final
	e.mu.Unlock()
	return nil
}

// Handler serves reg at /metrics
func Handler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

// Serve exposes reg on addr at /metrics until ctx is done
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// NewRegistry creates a registry with the exporter and the Go runtime collectors
func NewRegistry(exporter *Exporter) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(exporter); err != nil {
		return nil, err
	}
	if err := reg.Register(prometheus.NewGoCollector()); err != nil {
		return nil, err
	}
	return reg, nil
}
