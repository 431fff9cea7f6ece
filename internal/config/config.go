package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// FilePermissions is the default permission mode for regular files (read/write for owner, read for others)
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories (rwxr-xr-x)
	DirPermissions = 0755

	// HomeEnv overrides the configuration directory
	HomeEnv = "RESTSWARM_HOME"

	// LocalConfigFile is looked up in the current directory before the global one
	LocalConfigFile = "restswarm.yaml"
)

var (
	// ConfigDir is the global configuration directory (~/.restswarm)
	ConfigDir string

	// ScenariosDir is the default directory for scenario files
	ScenariosDir string

	// DatabasePath is the SQLite database file for run history
	DatabasePath string

	// ConfigFile is the global load test configuration file
	ConfigFile string
)

// Initialize sets up the configuration directories.
// It creates ~/.restswarm/ (or $RESTSWARM_HOME) if it doesn't exist.
func Initialize() error {
	dir := os.Getenv(HomeEnv)
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".restswarm")
	}
	return InitializeAt(dir)
}

// InitializeAt sets the global paths below dir and creates the directories
func InitializeAt(dir string) error {
	ConfigDir = dir
	ScenariosDir = filepath.Join(ConfigDir, "scenarios")
	DatabasePath = filepath.Join(ConfigDir, "restswarm.db")
	ConfigFile = filepath.Join(ConfigDir, "config.yaml")

	for _, d := range []string{ConfigDir, ScenariosDir} {
		if err := os.MkdirAll(d, DirPermissions); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}

	return nil
}

// FindConfigFile returns the local config file if present, else the global
// one if present, else ""
func FindConfigFile() string {
	if _, err := os.Stat(LocalConfigFile); err == nil {
		return LocalConfigFile
	}
	if ConfigFile != "" {
		if _, err := os.Stat(ConfigFile); err == nil {
			return ConfigFile
		}
	}
	return ""
}

// ResolveScenario returns path as is when it exists, else looks it up in ScenariosDir
func ResolveScenario(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	if ScenariosDir != "" {
		candidate := filepath.Join(ScenariosDir, path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return path
}
