package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/studiowebux/restswarm/internal/mock"
	"go.uber.org/zap"
)

// MockOptions configures the mock target server
type MockOptions struct {
	ConfigPath string      // routes file; the default /ping route when empty
	Host       string      // overrides the config when set
	Port       int         // overrides the config when non-zero
	Logger     *zap.Logger
}

// RunMock serves the mock target until ctx is done or a signal arrives
func RunMock(ctx context.Context, opts MockOptions) error {
	cfg := mock.DefaultConfig()
	workdir, err := os.Getwd()
	if err != nil {
		return err
	}
	if opts.ConfigPath != "" {
		cfg, err = mock.LoadConfig(opts.ConfigPath)
		if err != nil {
			return err
		}
		workdir = filepath.Dir(opts.ConfigPath)
	}
	if opts.Host != "" {
		cfg.Host = opts.Host
	}
	if opts.Port != 0 {
		cfg.Port = opts.Port
	}

	server, err := mock.NewServer(cfg, workdir, opts.Logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Run(ctx)
}

// InitMock writes the default mock configuration to path
func InitMock(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return mock.SaveConfig(mock.DefaultConfig(), path)
}
