package config

import (
	"regexp"

	"github.com/rileyhilliard/upsmon/internal/bridge"
	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/rileyhilliard/upsmon/internal/monitor"
	"github.com/rileyhilliard/upsmon/internal/session"
	"github.com/rileyhilliard/upsmon/internal/sink"
	"github.com/rileyhilliard/upsmon/pkg/sshutil"
)

// SessionOptions builds the console handshake options.
func (c *Config) SessionOptions() (session.Options, error) {
	opts := session.DefaultOptions()

	var err error
	if opts.ReadyPrompt, err = compilePrompt("ups.prompt", c.UPS.Prompt); err != nil {
		return opts, err
	}
	if opts.PasswordPrompt, err = compilePrompt("ups.password_prompt", c.UPS.PasswordPrompt); err != nil {
		return opts, err
	}
	if opts.HostKeyPrompt, err = compilePrompt("ups.host_key_prompt", c.UPS.HostKeyPrompt); err != nil {
		return opts, err
	}

	opts.Secret = c.UPS.Password
	opts.ExitCommand = c.UPS.ExitCommand
	opts.LineEnding = LineEnding(c.UPS.LineEnding)
	opts.Timeout = c.Monitor.ExpectTimeout
	opts.MaxAttempts = c.Monitor.ConnectRetries
	opts.BaseBackoff = c.Monitor.ConnectBackoff
	return opts, nil
}

func compilePrompt(key, pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid regular expression for "+key+": "+pattern,
			"Escape regexp metacharacters, for example 'apc\\>' or '\\[Pp\\]assword:'")
	}
	return re, nil
}

// ShellDialer builds the SSH dialer for the card.
func (c *Config) ShellDialer() *sshutil.ShellDialer {
	return &sshutil.ShellDialer{
		Host: c.UPS.Host,
		Options: sshutil.DialOptions{
			User:              c.UPS.User,
			Port:              c.UPS.Port,
			Password:          c.UPS.Password,
			Timeout:           c.Monitor.ExpectTimeout,
			KnownHosts:        c.UPS.KnownHosts,
			AcceptNewHostKeys: c.UPS.AcceptNewHostKeys,
		},
		Shell: sshutil.ShellOptions{
			KeepaliveInterval: c.UPS.KeepaliveInterval,
			KeepaliveMax:      c.UPS.KeepaliveMax,
		},
	}
}

// MonitorOptions builds the poll loop options.
func (c *Config) MonitorOptions() monitor.Options {
	return monitor.Options{
		Command:          c.UPS.Command,
		Interval:         c.Monitor.Interval,
		ExpectTimeout:    c.Monitor.ExpectTimeout,
		FailureDelay:     c.Monitor.FailureDelay,
		LivenessFailures: c.Monitor.LivenessFailures,
		Threshold:        c.Monitor.AlarmThreshold,
		Autostart:        c.Monitor.Autostart,
		Channels:         c.Sink.Channels,
	}
}

// MQTTOptions builds the MQTT sink options.
func (c *Config) MQTTOptions() sink.MQTTOptions {
	m := c.Sink.MQTT
	return sink.MQTTOptions{
		Broker:         m.Broker,
		ClientID:       m.ClientID,
		Username:       m.Username,
		Password:       m.Password,
		TopicPrefix:    m.TopicPrefix,
		Retain:         m.Retain,
		ConnectTimeout: m.ConnectTimeout,
	}
}

// BridgeOptions builds the data-file bridge options.
func (c *Config) BridgeOptions() bridge.Options {
	b := c.Bridge
	return bridge.Options{
		Dir:             b.Dir,
		Pattern:         b.Pattern,
		Interval:        b.Interval,
		TailBytes:       b.TailBytes,
		TimestampColumn: b.TimestampColumn,
		Columns:         b.Columns,
		Watch:           b.Watch,
	}
}
