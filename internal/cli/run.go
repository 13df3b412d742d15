package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rileyhilliard/upsmon/internal/config"
	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/rileyhilliard/upsmon/internal/logger"
	"github.com/spf13/afero"
)

// runCommand polls headless until SIGINT or SIGTERM.
func runCommand(ctx context.Context) error {
	cfg, err := loadConfig(runOverrides(runHostFlag, runListenFlag))
	if err != nil {
		return err
	}
	if err := configureConsoleLogging(cfg.LogLevel); err != nil {
		return err
	}
	if err := promptPassword(cfg, os.Stdin, os.Stderr); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs := afero.NewOsFs()
	held, err := acquireLock(ctx, fs, cfg, "run")
	if err != nil {
		return err
	}
	defer releaseLock(held)

	parts, err := buildMonitor(ctx, fs, cfg, nil, nil)
	if err != nil {
		return err
	}
	defer parts.Close()

	srv, err := startAPI(ctx, cfg, parts.Store)
	if err != nil {
		return err
	}
	defer stopAPI(srv)

	log := logger.Named("cli")
	log.Info("monitoring %s every %s", cfg.UPS.Host, cfg.Monitor.Interval)
	err = parts.Loop.Run(ctx)
	log.Info("monitor stopped")
	return err
}

func runOverrides(host, listen string) func(*config.Config) error {
	return func(cfg *config.Config) error {
		if listen != "" {
			cfg.HTTP.Listen = listen
		}
		return overrideHost(host)(cfg)
	}
}

// configureConsoleLogging logs to stderr, human-readable on a terminal and
// JSON otherwise.
func configureConsoleLogging(level string) error {
	pretty := isTerminal(int(os.Stderr.Fd()))
	if err := logger.Configure(os.Stderr, level, pretty); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Invalid log level", "Use debug, info, warn or error")
	}
	return nil
}
