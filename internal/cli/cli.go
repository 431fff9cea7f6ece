// Package cli implements the restswarm commands on top of the runner, the
// run store and the mock server. cmd/restswarm only parses flags.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/studiowebux/restswarm/internal/config"
	"github.com/studiowebux/restswarm/internal/logging"
	"github.com/studiowebux/restswarm/internal/parser"
	"github.com/studiowebux/restswarm/internal/report"
	"github.com/studiowebux/restswarm/internal/runner"
	"github.com/studiowebux/restswarm/internal/store"
	"github.com/studiowebux/restswarm/internal/types"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Output formats of the final summary
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// RunOptions contains options for one load run
type RunOptions struct {
	ConfigPath string                 // load test config; local or global file when empty
	Override   func(*config.LoadTest) // applies command line flags on top of the file

	ScenarioPath string   // .yaml/.json scenario or .http file; default ping task when empty
	Name         string   // run name stored in history
	ExtraVars    []string // key=value pairs from -e flag
	EnvFile      string   // path to .env file

	MetricsAddr string
	DBPath      string // run history database; config.DatabasePath when empty
	NoStore     bool

	Output string // table, json, yaml
	Quiet  bool   // no interval tables

	Stdout io.Writer
	Logger *zap.Logger
}

// Run executes a load run and returns the process exit code
func Run(ctx context.Context, opts RunOptions) (int, error) {
	logger := logging.OrNop(opts.Logger)
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	format := opts.Output
	switch format {
	case "":
		format = OutputTable
	case OutputTable, OutputJSON, OutputYAML:
	default:
		return 1, fmt.Errorf("unknown output format %q (use table, json or yaml)", format)
	}

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return 1, err
	}
	if opts.Override != nil {
		opts.Override(&cfg)
	}

	var scenarioFile *types.ScenarioFile
	scenarioPath := ""
	if opts.ScenarioPath != "" {
		scenarioPath, err = resolveFilePath(opts.ScenarioPath)
		if err != nil {
			return 1, err
		}
		scenarioFile, err = loadScenario(scenarioPath)
		if err != nil {
			return 1, err
		}
	}

	extraVars, err := parser.ParseExtraVars(opts.ExtraVars)
	if err != nil {
		return 1, err
	}

	var fileEnv map[string]string
	if opts.EnvFile != "" {
		fileEnv, err = parser.LoadEnvFile(opts.EnvFile)
		if err != nil {
			return 1, err
		}
	}
	env := parser.MergeEnv(parser.LoadSystemEnv(), fileEnv)

	var manager *store.Manager
	if !opts.NoStore {
		dbPath := opts.DBPath
		if dbPath == "" {
			dbPath = config.DatabasePath
		}
		manager, err = store.NewManager(dbPath)
		if err != nil {
			return 1, fmt.Errorf("failed to open run history: %w", err)
		}
		defer manager.Close()
	}

	var console io.Writer
	if format == OutputTable && !opts.Quiet {
		console = stdout
	}

	result, err := runner.Run(ctx, runner.Options{
		Config:        cfg,
		Scenario:      scenarioFile,
		ScenarioPath:  scenarioPath,
		Name:          opts.Name,
		ExtraVars:     extraVars,
		Env:           env,
		MetricsAddr:   opts.MetricsAddr,
		Store:         manager,
		Console:       console,
		Logger:        logger,
		HandleSignals: true,
	})
	if result == nil {
		return 1, err
	}

	if console == nil {
		out, ferr := formatOutput(result.Run, format)
		if ferr != nil {
			return 1, ferr
		}
		fmt.Fprint(stdout, out)
	}
	if result.Warning != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", result.Warning)
	}
	if err != nil {
		return 1, err
	}
	return result.ExitCode(cfg.MaxForcedShutdowns), nil
}

// loadConfig reads path, or the local/global config file, or the defaults
func loadConfig(path string) (config.LoadTest, error) {
	if path == "" {
		path = config.FindConfigFile()
	}
	if path == "" {
		return config.Defaults(), nil
	}
	return config.Load(path)
}

// loadScenario reads a scenario file. A .http file becomes one task named
// after the file.
func loadScenario(path string) (*types.ScenarioFile, error) {
	if strings.ToLower(filepath.Ext(path)) != ".http" {
		return parser.LoadScenario(path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	sc := &types.ScenarioFile{
		Name:  name,
		Tasks: []types.TaskSpec{{Name: name, File: abs}},
	}
	if err := parser.ValidateScenario(sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// formatOutput formats a finished run
func formatOutput(run *store.Run, format string) (string, error) {
	switch format {
	case OutputJSON:
		data, err := json.MarshalIndent(run, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	case OutputYAML:
		data, err := yaml.Marshal(run)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case OutputTable:
		return report.RenderRun(run) + "\n", nil
	default:
		return "", fmt.Errorf("unknown output format %q (use table, json or yaml)", format)
	}
}

// resolveFilePath attempts to find the actual file path, trying common extensions
// if the exact path doesn't exist
func resolveFilePath(basePath string) (string, error) {
	// Priority order, exact match first
	extensions := []string{"", ".yaml", ".yml", ".json", ".http"}

	for _, ext := range extensions {
		candidate := config.ResolveScenario(basePath + ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("file not found: %s (searched current directory and %s, tried .yaml, .yml, .json, .http extensions)", basePath, config.ScenariosDir)
}
