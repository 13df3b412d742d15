package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/rileyhilliard/upsmon/internal/config"
	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/rileyhilliard/upsmon/internal/logger"
	"github.com/rileyhilliard/upsmon/internal/session"
	"github.com/rileyhilliard/upsmon/internal/ui"
)

// InitOptions holds options for the init command.
type InitOptions struct {
	Host           string // Pre-specified UPS address
	Path           string // Where to write; defaults to ./upsmon.yaml or the global file
	Overwrite      bool   // Overwrite existing config without asking
	NonInteractive bool   // Skip prompts, use defaults
	Global         bool   // Write the global config instead of ./upsmon.yaml
	SkipCheck      bool   // Don't try to log in before saving
}

// answers collects the wizard fields as strings, the way huh edits them.
type answers struct {
	Host     string
	User     string
	Port     string
	Password string
	SinkType string
	Broker   string
	Listen   string
}

// Init creates a new upsmon config file.
func Init(opts InitOptions) error {
	configPath := initPath(opts)

	if _, err := os.Stat(configPath); err == nil && !opts.Overwrite {
		if opts.NonInteractive {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Config file already exists: %s", configPath),
				"Use --force to overwrite")
		}

		var overwrite bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Config file '%s' already exists. Overwrite?", configPath)).
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Try running with --force to overwrite")
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	cfg := config.DefaultConfig()
	a := answers{
		Host:     opts.Host,
		User:     cfg.UPS.User,
		Port:     strconv.Itoa(cfg.UPS.Port),
		SinkType: cfg.Sink.Type,
		Broker:   cfg.Sink.MQTT.Broker,
	}

	if opts.NonInteractive {
		if strings.TrimSpace(a.Host) == "" {
			return errors.New(errors.ErrConfig,
				"UPS host is required in non-interactive mode",
				"Provide --host flag or run interactively")
		}
	} else if err := askAnswers(&a); err != nil {
		return err
	}

	if err := applyAnswers(cfg, a); err != nil {
		return err
	}

	if !opts.SkipCheck {
		if err := testConnection(cfg, opts.NonInteractive); err != nil {
			return err
		}
	}

	if err := config.Save(cfg, configPath); err != nil {
		return err
	}

	fmt.Printf("%s Created %s\n", ui.SymbolSuccess, configPath)
	if cfg.UPS.Password == "" {
		fmt.Println("  No password saved. upsmon will ask for it, or set UPSMON_UPS_PASSWORD.")
	}
	fmt.Println("  Next: 'upsmon check' to read the UPS once, 'upsmon' to start monitoring.")
	return nil
}

func initPath(opts InitOptions) string {
	switch {
	case opts.Path != "":
		return opts.Path
	case opts.Global:
		return config.GlobalPath()
	default:
		return filepath.Join(".", config.ConfigFileName)
	}
}

func askAnswers(a *answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("UPS address").
				Description("Hostname, IP address or SSH config alias of the network card").
				Placeholder("ups-icarus or 192.168.1.50").
				Value(&a.Host).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("UPS address is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("SSH user").
				Value(&a.User),
			huh.NewInput().
				Title("SSH port").
				Value(&a.Port).
				Validate(validatePort),
			huh.NewInput().
				Title("Password (optional)").
				Description("Saved in the config file with 0600 permissions. Leave empty to be asked at startup.").
				EchoMode(huh.EchoModePassword).
				Value(&a.Password),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should readings go?").
				Options(
					huh.NewOption("Log only (dry run)", config.SinkLog),
					huh.NewOption("MQTT broker", config.SinkMQTT),
					huh.NewOption("Nowhere", config.SinkNone),
				).
				Value(&a.SinkType),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("MQTT broker").
				Placeholder("tcp://localhost:1883").
				Value(&a.Broker).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("broker address is required")
					}
					return nil
				}),
		).WithHideFunc(func() bool { return a.SinkType != config.SinkMQTT }),
		huh.NewGroup(
			huh.NewInput().
				Title("Status API address (optional)").
				Description("Serves /api/v1/status and /metrics, e.g. :9105. Leave empty to turn it off.").
				Value(&a.Listen),
		),
	)

	if err := form.Run(); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to get user input",
			"Check terminal compatibility or use --non-interactive flag")
	}
	return nil
}

func validatePort(s string) error {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535")
	}
	return nil
}

// applyAnswers copies wizard answers into cfg and validates the result.
func applyAnswers(cfg *config.Config, a answers) error {
	cfg.UPS.Host = strings.TrimSpace(a.Host)
	if u := strings.TrimSpace(a.User); u != "" {
		cfg.UPS.User = u
	}
	if p := strings.TrimSpace(a.Port); p != "" {
		if err := validatePort(p); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig, "Invalid port "+p, "")
		}
		cfg.UPS.Port, _ = strconv.Atoi(p)
	}
	cfg.UPS.Password = a.Password
	if a.SinkType != "" {
		cfg.Sink.Type = a.SinkType
	}
	if b := strings.TrimSpace(a.Broker); b != "" {
		cfg.Sink.MQTT.Broker = b
	}
	cfg.HTTP.Listen = strings.TrimSpace(a.Listen)

	return config.Validate(cfg)
}

// testConnection logs in once. Interactive runs may save anyway on failure.
func testConnection(cfg *config.Config, nonInteractive bool) error {
	fmt.Println()
	spinner := ui.NewSpinner(os.Stdout, "Testing connection to "+cfg.UPS.Host)
	spinner.Start()

	err := loginOnce(cfg)
	if err == nil {
		spinner.Success()
		fmt.Println()
		return nil
	}
	spinner.Fail()

	failed := errors.WrapWithCode(err, errors.ErrSSH,
		fmt.Sprintf("Connection to '%s' failed", cfg.UPS.Host),
		"Check the address, the credentials and that SSH is enabled on the card")
	if nonInteractive {
		return failed
	}

	fmt.Printf("\n%s %s\n\n", ui.SymbolFail, errors.Summary(err))
	var saveAnyway bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save config anyway? (You can fix the connection later)").
				Value(&saveAnyway),
		),
	)
	if formErr := form.Run(); formErr != nil || !saveAnyway {
		return failed
	}
	return nil
}

func loginOnce(cfg *config.Config) error {
	sopts, err := cfg.SessionOptions()
	if err != nil {
		return err
	}
	sopts.MaxAttempts = 1

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sess, err := session.NewManager(newDialer(cfg), sopts, logger.Noop()).Connect(ctx)
	if err != nil {
		return err
	}
	return sess.Close()
}
