package cli

import (
	"context"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rileyhilliard/upsmon/internal/config"
	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/rileyhilliard/upsmon/internal/logger"
	"github.com/rileyhilliard/upsmon/internal/monitor"
	"github.com/rileyhilliard/upsmon/internal/tui"
	"github.com/spf13/afero"
)

// LogFileName is written to the audit directory while the dashboard runs.
const LogFileName = "upsmon.log"

// monitorCommand starts the TUI dashboard.
func monitorCommand(ctx context.Context) error {
	cfg, err := loadConfig(monitorOverrides(monitorHostFlag, monitorIntervalFlag))
	if err != nil {
		return err
	}
	if err := promptPassword(cfg, os.Stdin, os.Stdout); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fs := afero.NewOsFs()
	held, err := acquireLock(ctx, fs, cfg, "monitor")
	if err != nil {
		return err
	}
	defer releaseLock(held)

	logFile, err := openLogFile(cfg.Audit.Dir)
	if err != nil {
		return err
	}
	defer logFile.Close()
	if err := logger.Configure(logFile, cfg.LogLevel, false); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Invalid log level", "Use debug, info, warn or error")
	}

	controls := make(chan monitor.Control, 8)
	model := tui.NewModel(tui.Options{
		Host:      cfg.UPS.Host,
		Controls:  controls,
		Autostart: cfg.Monitor.Autostart,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())

	parts, err := buildMonitor(ctx, fs, cfg, controls, func(snap monitor.Snapshot) {
		p.Send(tui.SnapshotMsg(snap))
	})
	if err != nil {
		return err
	}
	defer parts.Close()

	srv, err := startAPI(ctx, cfg, parts.Store)
	if err != nil {
		return err
	}
	defer stopAPI(srv)

	done := make(chan error, 1)
	go func() {
		done <- parts.Loop.Run(ctx)
	}()

	_, runErr := p.Run()

	// The dashboard already asked the loop to quit unless it died on its
	// own. Either way the loop gets a chance to finish the current command
	// before its context is cancelled.
	select {
	case controls <- monitor.ControlQuit:
	default:
	}
	loopErr := waitLoop(done, cancel, cfg.Monitor.ExpectTimeout)

	if runErr != nil {
		return errors.WrapWithCode(runErr, errors.ErrExec,
			"The dashboard stopped unexpectedly",
			"Try 'upsmon run' for headless output")
	}
	return loopErr
}

// waitLoop waits for the loop to return, cancelling its context once grace
// has passed.
func waitLoop(done <-chan error, cancel context.CancelFunc, grace time.Duration) error {
	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		cancel()
		return <-done
	}
}

func monitorOverrides(host, interval string) func(*config.Config) error {
	return func(cfg *config.Config) error {
		if err := overrideHost(host)(cfg); err != nil {
			return err
		}
		if interval == "" {
			return nil
		}
		d, err := time.ParseDuration(interval)
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Invalid --interval "+interval,
				"Use a Go duration such as 5s or 1m")
		}
		cfg.Monitor.Interval = d
		return nil
	}
}

func openLogFile(dir string) (*os.File, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Can't create the audit directory "+dir,
			"Check audit.dir and its permissions")
	}
	path := filepath.Join(dir, LogFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Can't open the log file "+path,
			"Check audit.dir and its permissions")
	}
	return f, nil
}
