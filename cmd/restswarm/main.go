package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/studiowebux/restswarm/internal/cli"
	"github.com/studiowebux/restswarm/internal/config"
	"github.com/studiowebux/restswarm/internal/converter"
	"github.com/studiowebux/restswarm/internal/logging"
	"github.com/studiowebux/restswarm/internal/types"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"
)

// exitError carries a non-zero exit code that is not a failure message
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "restswarm",
	Short: "restswarm - virtual-user HTTP load generator",
	Long: `restswarm spawns a population of virtual users that repeatedly run
weighted tasks against a target host and reports request statistics.

Without a scenario every user calls GET /ping.

Examples:
  restswarm run --host http://localhost:8080 -u 50 -r 5 -t 2m
  restswarm run -f checkout.yaml -e tenant=acme --env-file .env
  restswarm run -f smoke.http --metrics-addr :9090 -o json
  restswarm runs list
  restswarm runs show 12
  restswarm mock -c routes.yaml
  restswarm har checkout.har -o checkout.yaml`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a load test",
	Long: `Run a load test until the run time elapses, every user reaches
--iterations, or the process is interrupted.

Settings come from --config, else ./restswarm.yaml, else ~/.restswarm/config.yaml.
Flags override the file. The exit code is 3 when more users than
--max-forced-shutdowns had to be abandoned at shutdown.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		code, err := cli.Run(context.Background(), cli.RunOptions{
			ConfigPath:   flagConfig,
			Override:     func(cfg *config.LoadTest) { applyRunFlags(cmd, cfg) },
			ScenarioPath: flagScenario,
			Name:         flagName,
			ExtraVars:    flagExtraVars,
			EnvFile:      flagEnvFile,
			MetricsAddr:  flagMetricsAddr,
			DBPath:       flagDB,
			NoStore:      flagNoStore,
			Output:       flagOutput,
			Quiet:        flagQuiet,
			Logger:       logger,
		})
		if err != nil {
			return err
		}
		if code != 0 {
			return &exitError{code: code}
		}
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.ListRuns(historyOptions(cmd), flagLimit)
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a run with its interval statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRunID(args[0])
		if err != nil {
			return err
		}
		return cli.ShowRun(historyOptions(cmd), id)
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a run and its intervals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRunID(args[0])
		if err != nil {
			return err
		}
		return cli.DeleteRun(historyOptions(cmd), id, flagYes, cmd.InOrStdin())
	},
}

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Serve a mock target for local load runs",
	Long: `Serve a configurable mock HTTP target.

Without --config the server answers GET /ping with "pong".
Use --init to write the default routes file and edit it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagMockInit != "" {
			if err := cli.InitMock(flagMockInit); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", flagMockInit)
			return nil
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		return cli.RunMock(context.Background(), cli.MockOptions{
			ConfigPath: flagMockConfig,
			Host:       flagMockHost,
			Port:       flagMockPort,
			Logger:     logger,
		})
	},
}

var harCmd = &cobra.Command{
	Use:   "har <file.har>",
	Short: "Convert a HAR capture to a scenario file",
	Long: `Convert a browser HAR capture into a one-task scenario that replays
the captured requests in order.

Static assets and other origins are skipped. Credentials are never copied:
a bearer Authorization header becomes an auth section that reads the token
from an environment variable.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := converter.HARToScenario(converter.HAROptions{
			HarFile:     args[0],
			Name:        flagHarName,
			Host:        flagHarHost,
			Filter:      flagHarFilter,
			KeepStatic:  flagHarStatic,
			KeepHeaders: flagHarHeaders,
			TokenEnv:    flagHarTokenEnv,
		})
		if err != nil {
			return err
		}

		output := flagHarOutput
		if output == "" {
			output = filepath.Join(config.ScenariosDir, sc.Name+".yaml")
		}
		if err := converter.WriteScenario(sc, output); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d steps to %s\n", len(sc.Tasks[0].Steps), output)
		return nil
	},
}

// Flags shared by every command
var (
	flagLogLevel  string
	flagLogFormat string
	flagQuiet     bool
	flagOutput    string
	flagDB        string
)

// Flags for run
var (
	flagConfig          string
	flagHost            string
	flagUsers           int
	flagSpawnRate       float64
	flagRunTime         time.Duration
	flagThinkMin        time.Duration
	flagThinkMax        time.Duration
	flagShutdownTimeout time.Duration
	flagReportInterval  time.Duration
	flagRequestTimeout  time.Duration
	flagMaxForced       int
	flagIterations      int
	flagInsecure        bool
	flagScenario        string
	flagName            string
	flagExtraVars       []string
	flagEnvFile         string
	flagMetricsAddr     string
	flagNoStore         bool
)

// Flags for runs
var (
	flagLimit int
	flagYes   bool
)

// Flags for har
var (
	flagHarOutput   string
	flagHarName     string
	flagHarHost     string
	flagHarFilter   string
	flagHarStatic   bool
	flagHarHeaders  bool
	flagHarTokenEnv string
)

// Flags for mock
var (
	flagMockConfig string
	flagMockHost   string
	flagMockPort   int
	flagMockInit   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", logging.FormatConsole, "Log format (console/json)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Only log warnings and errors, no interval tables")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "Run history database (default ~/.restswarm/restswarm.db)")

	runCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "Load test config file")
	runCmd.Flags().StringVar(&flagHost, "host", "", "Target base URL")
	runCmd.Flags().IntVarP(&flagUsers, "users", "u", 1, "Number of virtual users")
	runCmd.Flags().Float64VarP(&flagSpawnRate, "spawn-rate", "r", 1, "Users started per second (0 = all at once)")
	runCmd.Flags().DurationVarP(&flagRunTime, "run-time", "t", 0, "Stop after this duration (0 = until interrupted)")
	runCmd.Flags().DurationVar(&flagThinkMin, "think-min", time.Second, "Minimum pause between iterations")
	runCmd.Flags().DurationVar(&flagThinkMax, "think-max", time.Second, "Maximum pause between iterations")
	runCmd.Flags().DurationVar(&flagShutdownTimeout, "shutdown-timeout", 10*time.Second, "Time users get to finish on stop")
	runCmd.Flags().DurationVar(&flagReportInterval, "report-interval", 5*time.Second, "Time between interval reports")
	runCmd.Flags().DurationVar(&flagRequestTimeout, "request-timeout", 30*time.Second, "Per-request timeout")
	runCmd.Flags().IntVar(&flagMaxForced, "max-forced-shutdowns", 0, "Forced shutdowns tolerated before exit code 3")
	runCmd.Flags().IntVar(&flagIterations, "iterations", 0, "Iterations per user (0 = unlimited)")
	runCmd.Flags().BoolVarP(&flagInsecure, "insecure", "k", false, "Skip TLS certificate verification")
	runCmd.Flags().StringVarP(&flagScenario, "scenario", "f", "", "Scenario file (.yaml/.json/.http)")
	runCmd.Flags().StringVarP(&flagName, "name", "n", "", "Run name in history")
	runCmd.Flags().StringArrayVarP(&flagExtraVars, "extra-vars", "e", []string{}, "Set variable (key=value), can be repeated")
	runCmd.Flags().StringVar(&flagEnvFile, "env-file", "", "Load environment variables from file")
	runCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	runCmd.Flags().BoolVar(&flagNoStore, "no-store", false, "Do not record the run in history")
	runCmd.Flags().StringVarP(&flagOutput, "output", "o", cli.OutputTable, "Final summary format (table/json/yaml)")

	runsCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", cli.OutputTable, "Output format (table/json/yaml)")
	runsListCmd.Flags().IntVarP(&flagLimit, "limit", "l", 20, "Number of runs to list (0 = all)")
	runsDeleteCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "Delete without confirmation")

	mockCmd.Flags().StringVarP(&flagMockConfig, "config", "c", "", "Routes file (.yaml/.json)")
	mockCmd.Flags().StringVar(&flagMockHost, "host", "", "Listen host (overrides config)")
	mockCmd.Flags().IntVarP(&flagMockPort, "port", "p", 0, "Listen port (overrides config)")
	mockCmd.Flags().StringVar(&flagMockInit, "init", "", "Write the default routes file to this path and exit")

	harCmd.Flags().StringVarP(&flagHarOutput, "output", "o", "", "Output file (default ~/.restswarm/scenarios/<name>.yaml)")
	harCmd.Flags().StringVarP(&flagHarName, "name", "n", "", "Scenario name (default: HAR file name)")
	harCmd.Flags().StringVar(&flagHarHost, "host", "", "Keep only this origin (default: first entry's origin)")
	harCmd.Flags().StringVar(&flagHarFilter, "filter", "", "Keep only URLs containing this string")
	harCmd.Flags().BoolVar(&flagHarStatic, "keep-static", false, "Keep scripts, styles, images and fonts")
	harCmd.Flags().BoolVar(&flagHarHeaders, "keep-headers", false, "Keep non-sensitive request headers")
	harCmd.Flags().StringVar(&flagHarTokenEnv, "token-env", converter.DefaultTokenEnv, "Environment variable for the bearer token")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsDeleteCmd)
	rootCmd.AddCommand(runCmd, runsCmd, mockCmd, harCmd)
}

// applyRunFlags overrides file settings with the flags set on the command line
func applyRunFlags(cmd *cobra.Command, cfg *config.LoadTest) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.TargetHost = flagHost
	}
	if flags.Changed("users") {
		cfg.UserCount = flagUsers
	}
	if flags.Changed("spawn-rate") {
		cfg.RampRate = flagSpawnRate
	}
	if flags.Changed("run-time") {
		cfg.RunDuration = types.Duration(flagRunTime)
	}
	if flags.Changed("think-min") {
		cfg.ThinkTime.Min = types.Duration(flagThinkMin)
		if !flags.Changed("think-max") && cfg.ThinkTime.Max < cfg.ThinkTime.Min {
			cfg.ThinkTime.Max = cfg.ThinkTime.Min
		}
	}
	if flags.Changed("think-max") {
		cfg.ThinkTime.Max = types.Duration(flagThinkMax)
		if !flags.Changed("think-min") && cfg.ThinkTime.Min > cfg.ThinkTime.Max {
			cfg.ThinkTime.Min = cfg.ThinkTime.Max
		}
	}
	if flags.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout = types.Duration(flagShutdownTimeout)
	}
	if flags.Changed("report-interval") {
		cfg.ReportInterval = types.Duration(flagReportInterval)
	}
	if flags.Changed("request-timeout") {
		cfg.RequestTimeout = types.Duration(flagRequestTimeout)
	}
	if flags.Changed("max-forced-shutdowns") {
		cfg.MaxForcedShutdowns = flagMaxForced
	}
	if flags.Changed("iterations") {
		cfg.MaxIterations = flagIterations
	}
	if flagInsecure {
		if cfg.TLS == nil {
			cfg.TLS = &types.TLSConfig{}
		}
		cfg.TLS.InsecureSkipVerify = true
	}
}

func historyOptions(cmd *cobra.Command) cli.HistoryOptions {
	return cli.HistoryOptions{
		DBPath: flagDB,
		Output: flagOutput,
		Stdout: cmd.OutOrStdout(),
	}
}

func parseRunID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid run id %q", s)
	}
	return id, nil
}

func newLogger() (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level:  flagLogLevel,
		Format: flagLogFormat,
		Quiet:  flagQuiet,
	})
}
