package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rileyhilliard/upsmon/internal/bridge"
	"github.com/rileyhilliard/upsmon/internal/config"
	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/rileyhilliard/upsmon/internal/logger"
	"github.com/spf13/afero"
)

// bridgeCommand tails data files into the sink until interrupted.
func bridgeCommand(ctx context.Context) error {
	cfg, err := loadConfig(func(cfg *config.Config) error {
		if bridgeDirFlag != "" {
			cfg.Bridge.Dir = config.Expand(bridgeDirFlag)
		}
		return nil
	}, config.WithoutUPS())
	if err != nil {
		return err
	}
	if err := configureConsoleLogging(cfg.LogLevel); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSink(ctx, cfg)
	if err != nil {
		return err
	}
	if s == nil {
		return errors.New(errors.ErrConfig,
			"The bridge has nowhere to send values (sink.type is none)",
			"Set sink.type to log or mqtt")
	}
	defer s.Close()

	opts := cfg.BridgeOptions()
	log := logger.Named("bridge")
	log.Info("watching %s/%s", opts.Dir, opts.Pattern)
	return bridge.New(afero.NewOsFs(), s, log, opts).Run(ctx)
}
