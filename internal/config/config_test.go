package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/studiowebux/restswarm/internal/types"
	"github.com/studiowebux/restswarm/internal/vuser"
)

func TestInitializeAt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "home")
	if err := InitializeAt(dir); err != nil {
		t.Fatalf("InitializeAt failed: %v", err)
	}
	if DatabasePath != filepath.Join(dir, "restswarm.db") {
		t.Errorf("Unexpected database path: %s", DatabasePath)
	}
	if info, err := os.Stat(ScenariosDir); err != nil || !info.IsDir() {
		t.Errorf("Expected scenarios dir to exist: %v", err)
	}
}

func TestInitialize_HomeEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if ConfigDir != dir {
		t.Errorf("Expected %s, got %s", dir, ConfigDir)
	}
}

func TestResolveScenario(t *testing.T) {
	if err := InitializeAt(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	stored := filepath.Join(ScenariosDir, "shop.yaml")
	if err := os.WriteFile(stored, []byte("tasks: []"), FilePermissions); err != nil {
		t.Fatal(err)
	}

	if got := ResolveScenario("shop.yaml"); got != stored {
		t.Errorf("Expected lookup in scenarios dir, got %s", got)
	}
	if got := ResolveScenario("missing.yaml"); got != "missing.yaml" {
		t.Errorf("Expected unresolved path unchanged, got %s", got)
	}
	if got := ResolveScenario(""); got != "" {
		t.Errorf("Expected empty path unchanged, got %s", got)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.UserCount != 1 || cfg.RampRate != 1 {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if cfg.ThinkTime.Min.D() != time.Second || cfg.ThinkTime.Max.D() != time.Second {
		t.Errorf("Expected 1s think time, got %+v", cfg.ThinkTime)
	}
	if cfg.ShutdownTimeout.D() != 10*time.Second || cfg.ReportInterval.D() != 5*time.Second {
		t.Errorf("Unexpected timeouts: %s / %s", cfg.ShutdownTimeout, cfg.ReportInterval)
	}

	// Defaults only lack a host
	cfg.TargetHost = "http://localhost:8080"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults with a host to validate, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restswarm.yaml")
	content := `targetHost: http://api.local
userCount: 50
rampRate: 10
thinkTime:
  min: 500ms
  max: 2s
runDuration: 1m
`
	if err := os.WriteFile(path, []byte(content), FilePermissions); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TargetHost != "http://api.local" || cfg.UserCount != 50 || cfg.RampRate != 10 {
		t.Errorf("Unexpected config: %+v", cfg)
	}
	if cfg.ThinkTime.Min.D() != 500*time.Millisecond || cfg.RunDuration.D() != time.Minute {
		t.Errorf("Unexpected durations: %+v", cfg)
	}
	// Unset keys keep their defaults
	if cfg.ReportInterval.D() != 5*time.Second {
		t.Errorf("Expected default report interval, got %s", cfg.ReportInterval)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("users: 5\n"), FilePermissions); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected error for unknown key")
	}
}

func TestValidate(t *testing.T) {
	valid := func() LoadTest {
		cfg := Defaults()
		cfg.TargetHost = "http://localhost"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*LoadTest)
	}{
		{"missing host", func(c *LoadTest) { c.TargetHost = "" }},
		{"bad scheme", func(c *LoadTest) { c.TargetHost = "ftp://x" }},
		{"no users", func(c *LoadTest) { c.UserCount = 0 }},
		{"negative ramp", func(c *LoadTest) { c.RampRate = -1 }},
		{"think inverted", func(c *LoadTest) { c.ThinkTime = ThinkTime{Min: types.Duration(2 * time.Second), Max: types.Duration(time.Second)} }},
		{"negative think", func(c *LoadTest) { c.ThinkTime.Min = types.Duration(-time.Second) }},
		{"negative run", func(c *LoadTest) { c.RunDuration = types.Duration(-time.Second) }},
		{"tiny report interval", func(c *LoadTest) { c.ReportInterval = types.Duration(time.Millisecond) }},
		{"negative forced", func(c *LoadTest) { c.MaxForcedShutdowns = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	zeroRamp := valid()
	zeroRamp.RampRate = 0
	if err := zeroRamp.Validate(); err != nil {
		t.Errorf("Expected ramp rate 0 to be valid, got %v", err)
	}
}

func TestThinkTimeFunc(t *testing.T) {
	cfg := Defaults()
	if got := cfg.ThinkTimeFunc().Next(); got != time.Second {
		t.Errorf("Expected constant 1s, got %v", got)
	}

	cfg.ThinkTime = ThinkTime{}
	if got := cfg.ThinkTimeFunc().Next(); got != 0 {
		t.Errorf("Expected no pause, got %v", got)
	}

	cfg.ThinkTime = ThinkTime{Min: types.Duration(time.Millisecond), Max: types.Duration(3 * time.Millisecond)}
	tt := cfg.ThinkTimeFunc()
	for i := 0; i < 100; i++ {
		if d := tt.Next(); d < time.Millisecond || d > 3*time.Millisecond {
			t.Fatalf("Pause %v outside [1ms, 3ms]", d)
		}
	}
	var _ vuser.ThinkTime = tt
}
