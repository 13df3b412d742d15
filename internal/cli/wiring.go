package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rileyhilliard/upsmon/internal/api"
	"github.com/rileyhilliard/upsmon/internal/audit"
	"github.com/rileyhilliard/upsmon/internal/config"
	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/rileyhilliard/upsmon/internal/lock"
	"github.com/rileyhilliard/upsmon/internal/logger"
	"github.com/rileyhilliard/upsmon/internal/monitor"
	"github.com/rileyhilliard/upsmon/internal/session"
	"github.com/rileyhilliard/upsmon/internal/sink"
	"github.com/spf13/afero"
	"golang.org/x/term"
)

// Hooks replaced in tests.
var (
	isTerminal   = term.IsTerminal
	readPassword = term.ReadPassword
	newDialer    = func(cfg *config.Config) session.Dialer { return cfg.ShellDialer() }
)

// loadConfig finds and loads the config, applies command-line overrides and
// validates the result.
func loadConfig(override func(*config.Config) error, opts ...config.ValidationOption) (*config.Config, error) {
	cfg, path, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if override != nil {
		if err := override(cfg); err != nil {
			return nil, err
		}
	}
	if err := config.Validate(cfg, opts...); err != nil {
		if path == "" {
			if e, ok := err.(*errors.Error); ok && e.Suggestion != "" {
				e.Suggestion += "\nNo config file was found; run 'upsmon init' to create one."
			}
		}
		return nil, err
	}
	return cfg, nil
}

// overrideHost sets ups.host when the flag was given.
func overrideHost(host string) func(*config.Config) error {
	return func(cfg *config.Config) error {
		if host != "" {
			cfg.UPS.Host = host
		}
		return nil
	}
}

// promptPassword asks for the UPS password when none is configured and stdin
// is a terminal. Without a terminal the password stays empty and the card's
// prompt will fail the handshake with a clear error.
func promptPassword(cfg *config.Config, in *os.File, out io.Writer) error {
	if cfg.UPS.Password != "" {
		return nil
	}
	fd := int(in.Fd())
	if !isTerminal(fd) {
		return nil
	}

	fmt.Fprintf(out, "Password for %s@%s: ", cfg.UPS.User, cfg.UPS.Host)
	secret, err := readPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't read the password",
			"Set ups.password in the config or UPSMON_UPS_PASSWORD in the environment")
	}
	cfg.UPS.Password = string(secret)
	return nil
}

// openSink connects the configured sink. The "none" sink is nil.
func openSink(ctx context.Context, cfg *config.Config) (sink.Sink, error) {
	switch cfg.Sink.Type {
	case config.SinkLog:
		return sink.NewLog(logger.Named("sink")), nil
	case config.SinkMQTT:
		m := sink.NewMQTT(cfg.MQTTOptions())
		if err := m.Connect(ctx); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, nil
	}
}

// openRampDown returns the flag file when one is configured.
func openRampDown(fs afero.Fs, cfg *config.Config) sink.RampDown {
	if cfg.RampDown.FlagFile == "" {
		return sink.NoopRampDown{}
	}
	return sink.NewFlagFile(fs, cfg.RampDown.FlagFile)
}

// acquireLock takes the console lock for the configured card and keeps it
// refreshed until ctx ends. A nil lock means locking is off; Release on it is
// a no-op.
func acquireLock(ctx context.Context, fs afero.Fs, cfg *config.Config, command string) (*lock.Lock, error) {
	if !cfg.Lock.Enabled {
		return nil, nil
	}
	dir := cfg.Lock.Dir
	if dir == "" {
		dir = cfg.Audit.Dir
	}
	l, err := lock.TryAcquire(fs, dir, cfg.UPS.Host, lock.Options{
		Stale:   cfg.Lock.Stale,
		Command: command,
	})
	if err != nil {
		return nil, err
	}
	go l.Keep(ctx, cfg.Lock.Stale/4)
	return l, nil
}

func releaseLock(l *lock.Lock) {
	if err := l.Release(); err != nil {
		logger.Named("lock").Warn("%v", errors.Summary(err))
	}
}

// monitorParts is everything a polling loop needs, built from the config.
type monitorParts struct {
	Loop  *monitor.Loop
	Store *monitor.Store
	Sink  sink.Sink
}

// Close releases the sink.
func (p *monitorParts) Close() {
	if p.Sink == nil {
		return
	}
	if err := p.Sink.Close(); err != nil {
		logger.Named("sink").Warn("sink close: %v", err)
	}
}

// buildMonitor wires a poll loop from the config. The caller owns the
// returned parts and must Close them.
func buildMonitor(ctx context.Context, fs afero.Fs, cfg *config.Config, controls <-chan monitor.Control, publish func(monitor.Snapshot)) (*monitorParts, error) {
	sopts, err := cfg.SessionOptions()
	if err != nil {
		return nil, err
	}
	mgr := session.NewManager(newDialer(cfg), sopts, logger.Named("session"))

	s, err := openSink(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store := monitor.NewStore()
	loop := monitor.NewLoop(monitor.Deps{
		Manager:  mgr,
		Sink:     s,
		RampDown: openRampDown(fs, cfg),
		Audit:    audit.New(fs, cfg.Audit.Dir, cfg.Audit.Prefix),
		Logger:   logger.Named("monitor"),
		Publish:  publish,
		Store:    store,
		Controls: controls,
	}, cfg.MonitorOptions())

	return &monitorParts{Loop: loop, Store: store, Sink: s}, nil
}

// startAPI serves the status API when http.listen is set. A nil server means
// the API is off.
func startAPI(ctx context.Context, cfg *config.Config, store *monitor.Store) (*api.Server, error) {
	if cfg.HTTP.Listen == "" {
		return nil, nil
	}
	srv := api.NewServer(api.Options{
		Listen:  cfg.HTTP.Listen,
		Host:    cfg.UPS.Host,
		Version: currentBuild().Version,
	}, store)
	if err := srv.Start(ctx); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't start the status API",
			"Check that http.listen is free, or leave it empty to turn the API off")
	}
	return srv, nil
}

func stopAPI(srv *api.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Named("api").Warn("api shutdown: %v", err)
	}
}
