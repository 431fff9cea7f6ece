package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/studiowebux/restswarm/internal/types"
	"github.com/studiowebux/restswarm/internal/vuser"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// ThinkTime bounds the pause between iterations. Min == Max gives a constant pause.
type ThinkTime struct {
	Min types.Duration `json:"min" yaml:"min"`
	Max types.Duration `json:"max" yaml:"max"`
}

// LoadTest holds the run parameters
type LoadTest struct {
	TargetHost         string           `json:"targetHost" yaml:"targetHost"`
	UserCount          int              `json:"userCount" yaml:"userCount"`
	RampRate           float64          `json:"rampRate" yaml:"rampRate"`       // users per second, 0 = all at once
	ThinkTime          ThinkTime        `json:"thinkTime" yaml:"thinkTime"`
	RunDuration        types.Duration   `json:"runDuration" yaml:"runDuration"` // 0 = until interrupted
	ShutdownTimeout    types.Duration   `json:"shutdownTimeout" yaml:"shutdownTimeout"`
	ReportInterval     types.Duration   `json:"reportInterval" yaml:"reportInterval"`
	MaxForcedShutdowns int              `json:"maxForcedShutdowns" yaml:"maxForcedShutdowns"`
	RequestTimeout     types.Duration   `json:"requestTimeout" yaml:"requestTimeout"`
	MaxIterations      int              `json:"maxIterations,omitempty" yaml:"maxIterations,omitempty"`
	TLS                *types.TLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// Defaults returns the configuration used when nothing is set
func Defaults() LoadTest {
	return LoadTest{
		UserCount:       1,
		RampRate:        1,
		ThinkTime:       ThinkTime{Min: types.Duration(vuser.DefaultThinkTime), Max: types.Duration(vuser.DefaultThinkTime)},
		ShutdownTimeout: types.Duration(10 * time.Second),
		ReportInterval:  types.Duration(5 * time.Second),
		RequestTimeout:  types.Duration(vuser.DefaultRequestTimeout),
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (LoadTest, error) {
	cfg := Defaults()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration before any user starts
func (c *LoadTest) Validate() error {
	if _, err := vuser.ParseBaseURL(c.TargetHost); err != nil {
		return fmt.Errorf("%w: targetHost: %v", ErrInvalidConfig, err)
	}
	if c.UserCount < 1 {
		return fmt.Errorf("%w: userCount must be at least 1, got %d", ErrInvalidConfig, c.UserCount)
	}
	if c.RampRate < 0 {
		return fmt.Errorf("%w: rampRate must not be negative, got %g", ErrInvalidConfig, c.RampRate)
	}
	if c.ThinkTime.Min < 0 || c.ThinkTime.Max < 0 {
		return fmt.Errorf("%w: thinkTime must not be negative", ErrInvalidConfig)
	}
	if c.ThinkTime.Max < c.ThinkTime.Min {
		return fmt.Errorf("%w: thinkTime.max (%s) is below thinkTime.min (%s)", ErrInvalidConfig, c.ThinkTime.Max, c.ThinkTime.Min)
	}
	if c.RunDuration < 0 || c.ShutdownTimeout < 0 || c.RequestTimeout < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	if c.ReportInterval.D() < 100*time.Millisecond {
		return fmt.Errorf("%w: reportInterval must be at least 100ms, got %s", ErrInvalidConfig, c.ReportInterval)
	}
	if c.MaxForcedShutdowns < 0 {
		return fmt.Errorf("%w: maxForcedShutdowns must not be negative", ErrInvalidConfig)
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("%w: maxIterations must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ThinkTimeFunc converts the bounds to a vuser.ThinkTime
func (c *LoadTest) ThinkTimeFunc() vuser.ThinkTime {
	minD, maxD := c.ThinkTime.Min.D(), c.ThinkTime.Max.D()
	switch {
	case maxD == 0:
		return vuser.None()
	case minD == maxD:
		return vuser.Constant(minD)
	default:
		return vuser.Between(minD, maxD)
	}
}
