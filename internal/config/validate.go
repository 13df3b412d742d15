package config

import (
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/rileyhilliard/upsmon/internal/logger"
)

// ValidationOption controls validation behavior.
type ValidationOption func(*validationContext)

type validationContext struct {
	skipUPS bool
}

// WithoutUPS skips the console checks. Used by commands that never dial
// the card, such as the bridge.
func WithoutUPS() ValidationOption {
	return func(c *validationContext) {
		c.skipUPS = true
	}
}

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config, opts ...ValidationOption) error {
	ctx := &validationContext{}
	for _, opt := range opts {
		opt(ctx)
	}

	if cfg == nil {
		return errors.New(errors.ErrConfig,
			"Config is nil",
			"This is unexpected - try reloading the configuration.")
	}

	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but upsmon only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade upsmon or regenerate the file with 'upsmon init'.")
	}

	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("log_level '%s' isn't valid", cfg.LogLevel),
			"Use one of: debug, info, warn, error.")
	}

	if !ctx.skipUPS {
		if err := validateUPS(cfg.UPS); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'ups' section in your upsmon.yaml.")
		}
		if err := validateMonitor(cfg.Monitor); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'monitor' section in your upsmon.yaml.")
		}
	}

	if err := validateSink(cfg.Sink); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'sink' section in your upsmon.yaml.")
	}

	if cfg.HTTP.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.HTTP.Listen); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				fmt.Sprintf("http.listen '%s' isn't a host:port address", cfg.HTTP.Listen),
				"Use something like ':9105' or '127.0.0.1:9105'.")
		}
	}

	if cfg.Lock.Enabled && cfg.Lock.Stale <= 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("lock.stale needs to be positive (got %s)", cfg.Lock.Stale),
			"Use something like '1m', or set lock.enabled to false.")
	}

	if err := validateBridge(cfg.Bridge); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'bridge' section in your upsmon.yaml.")
	}

	return nil
}

// validateUPS checks the console connection settings.
func validateUPS(ups UPSConfig) error {
	if strings.TrimSpace(ups.Host) == "" {
		return fmt.Errorf("ups.host is empty - set it to the card's address (or UPSMON_UPS_HOST)")
	}
	if ups.Port < 1 || ups.Port > 65535 {
		return fmt.Errorf("ups.port needs to be 1-65535 (got %d)", ups.Port)
	}
	if strings.TrimSpace(ups.Command) == "" {
		return fmt.Errorf("ups.command is empty - the card needs something to run, usually 'detstatus -all'")
	}
	if ups.LineEnding == "" {
		return fmt.Errorf("ups.line_ending is empty - the card usually wants '\\r'")
	}

	prompts := []struct {
		key, pattern string
	}{
		{"ups.prompt", ups.Prompt},
		{"ups.password_prompt", ups.PasswordPrompt},
		{"ups.host_key_prompt", ups.HostKeyPrompt},
	}
	for _, p := range prompts {
		if p.pattern == "" {
			return fmt.Errorf("%s is empty", p.key)
		}
		if _, err := regexp.Compile(p.pattern); err != nil {
			return fmt.Errorf("%s '%s' isn't a valid regular expression: %v", p.key, p.pattern, err)
		}
	}

	if ups.KeepaliveInterval < 0 {
		return fmt.Errorf("ups.keepalive_interval can't be negative")
	}
	return nil
}

// validateMonitor checks the poll loop settings.
func validateMonitor(m MonitorConfig) error {
	durations := []struct {
		key string
		d   time.Duration
	}{
		{"monitor.interval", m.Interval},
		{"monitor.expect_timeout", m.ExpectTimeout},
		{"monitor.connect_backoff", m.ConnectBackoff},
		{"monitor.failure_delay", m.FailureDelay},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s needs to be positive - try something like '5s' (got %v)", d.key, d.d)
		}
	}

	if m.ConnectRetries < 1 {
		return fmt.Errorf("monitor.connect_retries needs to be at least 1 (got %d)", m.ConnectRetries)
	}
	if m.AlarmThreshold < 1 {
		return fmt.Errorf("monitor.alarm_threshold needs to be at least 1 (got %d)", m.AlarmThreshold)
	}
	if m.LivenessFailures < 1 {
		return fmt.Errorf("monitor.liveness_failures needs to be at least 1 (got %d)", m.LivenessFailures)
	}
	return nil
}

// validateSink checks the sink type and its settings.
func validateSink(s SinkConfig) error {
	switch s.Type {
	case SinkLog, SinkNone:
	case SinkMQTT:
		if strings.TrimSpace(s.MQTT.Broker) == "" {
			return fmt.Errorf("sink.mqtt.broker is empty - set it to something like 'tcp://localhost:1883'")
		}
		if s.MQTT.ConnectTimeout <= 0 {
			return fmt.Errorf("sink.mqtt.connect_timeout needs to be positive (got %v)", s.MQTT.ConnectTimeout)
		}
	default:
		return fmt.Errorf("sink.type '%s' isn't valid - use 'log', 'mqtt', or 'none'", s.Type)
	}
	return nil
}

// validateBridge checks the data-file bridge settings.
func validateBridge(b BridgeConfig) error {
	if b.Pattern != "" {
		if _, err := filepath.Match(b.Pattern, ""); err != nil {
			return fmt.Errorf("bridge.pattern '%s' isn't a valid glob: %v", b.Pattern, err)
		}
	}
	if b.Interval < 0 {
		return fmt.Errorf("bridge.interval can't be negative")
	}
	if b.TailBytes < 0 {
		return fmt.Errorf("bridge.tail_bytes can't be negative")
	}
	if b.TimestampColumn < 0 {
		return fmt.Errorf("bridge.timestamp_column can't be negative")
	}

	indexes := make(map[int]bool, len(b.Columns))
	channels := make(map[string]bool, len(b.Columns))
	for i, c := range b.Columns {
		if c.Index < 0 {
			return fmt.Errorf("bridge.columns[%d] has a negative index", i)
		}
		if c.Index == b.TimestampColumn {
			return fmt.Errorf("bridge.columns[%d] uses column %d, which is the timestamp column", i, c.Index)
		}
		if strings.TrimSpace(c.Channel) == "" {
			return fmt.Errorf("bridge.columns[%d] has no channel", i)
		}
		if indexes[c.Index] {
			return fmt.Errorf("bridge.columns lists column %d twice", c.Index)
		}
		if channels[c.Channel] {
			return fmt.Errorf("bridge.columns sends two columns to channel '%s'", c.Channel)
		}
		indexes[c.Index] = true
		channels[c.Channel] = true
	}
	return nil
}
