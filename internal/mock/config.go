package mock

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/studiowebux/restswarm/internal/config"
	"gopkg.in/yaml.v3"
)

// ErrInvalidRoutes wraps every routes validation failure
var ErrInvalidRoutes = errors.New("invalid mock routes")

// LoadConfig reads a .yaml/.yml/.json routes file. Unknown fields are errors.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&cfg)
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	default:
		return nil, fmt.Errorf("unsupported routes file %s (use .yaml, .yml or .json)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateConfig normalizes methods and compiles regex paths
func validateConfig(cfg *Config) error {
	if len(cfg.Routes) == 0 {
		return fmt.Errorf("%w: no routes defined", ErrInvalidRoutes)
	}

	for i := range cfg.Routes {
		route := &cfg.Routes[i]
		where := fmt.Sprintf("route %d (%s)", i, route.label())

		route.Method = strings.ToUpper(route.Method)
		if route.Method == "" {
			return fmt.Errorf("%w: %s: method is required, use * for any", ErrInvalidRoutes, where)
		}
		if route.Path == "" {
			return fmt.Errorf("%w: %s: path is required", ErrInvalidRoutes, where)
		}

		switch route.PathType {
		case "", "exact", "prefix":
		case "regex":
			re, err := regexp.Compile(route.Path)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidRoutes, where, err)
			}
			route.re = re
		default:
			return fmt.Errorf("%w: %s: unknown pathType %q", ErrInvalidRoutes, where, route.PathType)
		}

		for _, status := range []int{route.Status, route.ErrorStatus} {
			if status != 0 && (status < 100 || status > 599) {
				return fmt.Errorf("%w: %s: invalid status %d", ErrInvalidRoutes, where, status)
			}
		}
		if route.ErrorRate < 0 || route.ErrorRate > 1 {
			return fmt.Errorf("%w: %s: errorRate must be within [0, 1]", ErrInvalidRoutes, where)
		}
		if route.Delay < 0 || route.Jitter < 0 {
			return fmt.Errorf("%w: %s: delay and jitter must not be negative", ErrInvalidRoutes, where)
		}
	}
	return nil
}

// SaveConfig writes cfg as YAML, or JSON for a .json path
func SaveConfig(cfg *Config, path string) error {
	var data []byte
	var err error

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	default:
		return fmt.Errorf("unsupported routes file %s (use .yaml, .yml or .json)", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to encode routes: %w", err)
	}

	return os.WriteFile(path, data, config.FilePermissions)
}
