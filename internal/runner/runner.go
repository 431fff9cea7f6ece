// Package runner wires a scenario, the swarm, the stats collector and the
// report sinks into one load run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/studiowebux/restswarm/internal/auth"
	"github.com/studiowebux/restswarm/internal/config"
	"github.com/studiowebux/restswarm/internal/logging"
	"github.com/studiowebux/restswarm/internal/metrics"
	"github.com/studiowebux/restswarm/internal/parser"
	"github.com/studiowebux/restswarm/internal/registry"
	"github.com/studiowebux/restswarm/internal/report"
	"github.com/studiowebux/restswarm/internal/scenario"
	"github.com/studiowebux/restswarm/internal/stats"
	"github.com/studiowebux/restswarm/internal/store"
	"github.com/studiowebux/restswarm/internal/swarm"
	"github.com/studiowebux/restswarm/internal/types"
	"github.com/studiowebux/restswarm/internal/vuser"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExitForcedShutdowns is the exit code when more users than allowed had to be abandoned
const ExitForcedShutdowns = 3

// Options configures one run
type Options struct {
	Config config.LoadTest

	// Scenario defines the tasks; nil runs the default ping task
	Scenario     *types.ScenarioFile
	ScenarioPath string
	Name         string

	ExtraVars map[string]string // -e key=value, highest priority
	Env       map[string]string // {{env.NAME}} and secret lookups

	MetricsAddr string         // serve /metrics when set
	Store       *store.Manager // persist the run when set
	Console     io.Writer      // print interval tables when set
	Logger      *zap.Logger

	// Client overrides the HTTP client built from Config
	Client vuser.Client

	// HandleSignals stops the run on SIGINT/SIGTERM
	HandleSignals bool
}

// Result summarizes a finished run
type Result struct {
	Run             *store.Run
	Final           *stats.Snapshot
	ForcedShutdowns int
	Warning         *swarm.ForcedShutdownWarning
}

// ExitCode returns ExitForcedShutdowns when forced shutdowns exceed threshold, else 0
func (r *Result) ExitCode(threshold int) int {
	if r.ForcedShutdowns > threshold {
		return ExitForcedShutdowns
	}
	return 0
}

// Run executes a load run until the run duration elapses, every user
// finishes, ctx is cancelled or a signal arrives. Setup errors are returned
// before any user starts.
func Run(ctx context.Context, opts Options) (*Result, error) {
	logger := logging.OrNop(opts.Logger)

	cfg := opts.Config
	sc := opts.Scenario
	if cfg.TargetHost == "" && sc != nil {
		cfg.TargetHost = sc.Host
	}
	if cfg.TLS.IsZero() && sc != nil {
		cfg.TLS = sc.TLS
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	resolver := parser.NewResolver(opts.ExtraVars, scenarioVars(sc), opts.Env)

	tasks, err := buildRegistry(sc, resolver, cfg.TLS)
	if err != nil {
		return nil, err
	}

	client := opts.Client
	if client == nil {
		httpClient, err := vuser.NewHTTPClient(vuser.ClientOptions{
			MaxConns:       cfg.UserCount,
			RequestTimeout: cfg.RequestTimeout.D(),
			TLS:            cfg.TLS,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build HTTP client: %w", err)
		}
		client = httpClient
	}

	headers, err := scenarioHeaders(sc, resolver)
	if err != nil {
		return nil, err
	}

	var authSpec *types.AuthSpec
	if sc != nil {
		authSpec = sc.Auth
	}
	authenticator, err := auth.New(ctx, authSpec, opts.Env, nil)
	if err != nil {
		return nil, err
	}
	if err := authenticator.Verify(); err != nil {
		return nil, err
	}
	authHeaders, err := authenticator.Headers()
	if err != nil {
		return nil, err
	}
	for k, v := range authHeaders {
		headers[k] = v
	}

	collector := stats.NewCollector()

	swarmOpts := []swarm.Option{
		swarm.WithBaseURL(cfg.TargetHost),
		swarm.WithHeaders(headers),
		swarm.WithClient(client),
		swarm.WithThinkTime(cfg.ThinkTimeFunc()),
		swarm.WithMaxIterations(cfg.MaxIterations),
		swarm.WithShutdownTimeout(cfg.ShutdownTimeout.D()),
		swarm.WithLogger(logger),
	}
	if hook := authenticator.Hook(); hook != nil {
		swarmOpts = append(swarmOpts, swarm.WithUserOptions(vuser.WithIterationHook(hook)))
	}
	sw := swarm.New(tasks, collector, swarmOpts...)

	start := time.Now()
	run := &store.Run{
		Name:      runName(opts, sc),
		Host:      cfg.TargetHost,
		Scenario:  opts.ScenarioPath,
		Users:     cfg.UserCount,
		RampRate:  cfg.RampRate,
		StartedAt: start,
		Status:    store.StatusRunning,
	}

	var sinks []report.Sink
	if opts.Console != nil {
		sinks = append(sinks, report.NewConsoleSink(opts.Console, sw.CurrentCount))
	}
	sinks = append(sinks, report.NewLogSink(logger))
	if opts.Store != nil {
		if err := opts.Store.CreateRun(run); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
		sinks = append(sinks, report.NewStoreSink(opts.Store, run))
	}

	var exporter *metrics.Exporter
	var metricsRegistry *prometheus.Registry
	if opts.MetricsAddr != "" {
		exporter = metrics.NewExporter(collector, start, sw.CurrentCount)
		metricsRegistry, err = metrics.NewRegistry(exporter)
		if err != nil {
			failRun(opts.Store, run, logger)
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		sinks = append(sinks, exporter)
	}
	reporter := report.NewReporter(collector, cfg.ReportInterval.D(), logger, sinks...)

	runCtx := ctx
	if opts.HandleSignals {
		var stopSignals context.CancelFunc
		runCtx, stopSignals = signal.NotifyContext(runCtx, os.Interrupt, syscall.SIGTERM)
		defer stopSignals()
	}
	interrupted := runCtx
	if d := cfg.RunDuration.D(); d > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, d)
		defer cancel()
	}

	// Users outlive runCtx until Stop so the shutdown timeout applies
	if err := sw.Start(context.WithoutCancel(ctx), cfg.UserCount, cfg.RampRate); err != nil {
		failRun(opts.Store, run, logger)
		return nil, err
	}

	logger.Info("run started",
		zap.String("name", run.Name),
		zap.String("host", cfg.TargetHost),
		zap.Int("users", cfg.UserCount),
		zap.Float64("ramp_rate", cfg.RampRate),
		zap.Duration("run_time", cfg.RunDuration.D()),
	)

	// Reporting and metrics end after the swarm has stopped
	reportCtx, cancelReport := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelReport()
	g, gctx := errgroup.WithContext(runCtx)

	var stopErr error
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-sw.Done():
			logger.Info("all users finished")
		}
		stopErr = sw.Stop()
		cancelReport()
		return nil
	})
	g.Go(func() error {
		return reporter.Run(reportCtx, start)
	})
	if metricsRegistry != nil {
		g.Go(func() error {
			return metrics.Serve(reportCtx, opts.MetricsAddr, metricsRegistry, logger)
		})
	}

	groupErr := g.Wait()

	result := &Result{ForcedShutdowns: sw.ForcedShutdowns()}
	var warning *swarm.ForcedShutdownWarning
	if errors.As(stopErr, &warning) {
		result.Warning = warning
	}

	completedAt := time.Now()
	run.CompletedAt = &completedAt
	run.ForcedShutdowns = result.ForcedShutdowns
	switch {
	case groupErr != nil:
		run.Status = store.StatusFailed
	case interrupted.Err() != nil:
		run.Status = store.StatusCancelled
	default:
		run.Status = store.StatusCompleted
	}

	result.Final = reporter.Final(context.WithoutCancel(ctx), start)
	run.ApplySnapshot(result.Final)
	result.Run = run

	logger.Info("run finished",
		zap.String("status", run.Status),
		zap.Int("requests", run.TotalRequests),
		zap.Int("failures", run.TotalFailures),
		zap.Int("forced_shutdowns", run.ForcedShutdowns),
		zap.Duration("duration", run.Duration()),
	)

	if groupErr != nil {
		return result, fmt.Errorf("run failed: %w", groupErr)
	}
	return result, nil
}

func buildRegistry(sc *types.ScenarioFile, resolver *parser.Resolver, tlsCfg *types.TLSConfig) (*registry.Registry, error) {
	if sc == nil {
		return scenario.DefaultRegistry(), nil
	}
	wsTLS, err := vuser.BuildTLSConfig(tlsCfg)
	if err != nil {
		return nil, err
	}
	return scenario.Build(sc, scenario.Options{Resolver: resolver, WebSocketTLS: wsTLS})
}

func scenarioVars(sc *types.ScenarioFile) map[string]string {
	if sc == nil {
		return nil
	}
	return sc.Variables
}

// scenarioHeaders resolves the scenario's default headers once, at startup
func scenarioHeaders(sc *types.ScenarioFile, resolver *parser.Resolver) (map[string]string, error) {
	headers := make(map[string]string)
	if sc == nil {
		return headers, nil
	}
	for k, v := range sc.Headers {
		resolved, err := resolver.MustResolve(v, nil)
		if err != nil {
			return nil, fmt.Errorf("scenario header %s: %w", k, err)
		}
		headers[k] = resolved
	}
	return headers, nil
}

func runName(opts Options, sc *types.ScenarioFile) string {
	switch {
	case opts.Name != "":
		return opts.Name
	case sc != nil && sc.Name != "":
		return sc.Name
	default:
		return "ping"
	}
}

func failRun(m *store.Manager, run *store.Run, logger *zap.Logger) {
	if m == nil || run.ID == 0 {
		return
	}
	now := time.Now()
	run.CompletedAt = &now
	run.Status = store.StatusFailed
	if err := m.UpdateRun(run); err != nil {
		logger.Warn("failed to mark run as failed", zap.Int64("run", run.ID), zap.Error(err))
	}
}
