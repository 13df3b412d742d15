package config

import (
	"time"

	"github.com/rileyhilliard/upsmon/internal/bridge"
	"github.com/rileyhilliard/upsmon/internal/monitor"
)

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete upsmon.yaml configuration file.
type Config struct {
	Version  int            `yaml:"version" mapstructure:"version"`
	LogLevel string         `yaml:"log_level" mapstructure:"log_level"`
	UPS      UPSConfig      `yaml:"ups" mapstructure:"ups"`
	Monitor  MonitorConfig  `yaml:"monitor" mapstructure:"monitor"`
	Audit    AuditConfig    `yaml:"audit" mapstructure:"audit"`
	Sink     SinkConfig     `yaml:"sink" mapstructure:"sink"`
	RampDown RampDownConfig `yaml:"rampdown" mapstructure:"rampdown"`
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
	Lock     LockConfig     `yaml:"lock" mapstructure:"lock"`
	Bridge   BridgeConfig   `yaml:"bridge" mapstructure:"bridge"`
}

// UPSConfig describes the network management card and its console.
type UPSConfig struct {
	// Host is a hostname, user@hostname, or SSH config alias.
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
	User string `yaml:"user" mapstructure:"user"`

	// Password answers both SSH auth and the console password prompt.
	// Prefer UPSMON_UPS_PASSWORD or a .env file over writing it here.
	Password string `yaml:"password,omitempty" mapstructure:"password"`

	// Prompt patterns are regular expressions.
	Prompt         string `yaml:"prompt" mapstructure:"prompt"`
	PasswordPrompt string `yaml:"password_prompt" mapstructure:"password_prompt"`
	HostKeyPrompt  string `yaml:"host_key_prompt" mapstructure:"host_key_prompt"`

	Command     string `yaml:"command" mapstructure:"command"`
	ExitCommand string `yaml:"exit_command" mapstructure:"exit_command"`

	// LineEnding is sent after every command: the literal characters, or
	// one of "cr", "lf", "crlf".
	LineEnding string `yaml:"line_ending" mapstructure:"line_ending"`

	KnownHosts        string        `yaml:"known_hosts" mapstructure:"known_hosts"`
	AcceptNewHostKeys bool          `yaml:"accept_new_host_keys" mapstructure:"accept_new_host_keys"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval" mapstructure:"keepalive_interval"`
	KeepaliveMax      int           `yaml:"keepalive_max" mapstructure:"keepalive_max"`
}

// MonitorConfig controls the poll loop.
type MonitorConfig struct {
	Interval      time.Duration `yaml:"interval" mapstructure:"interval"`
	ExpectTimeout time.Duration `yaml:"expect_timeout" mapstructure:"expect_timeout"`

	// ConnectRetries caps handshake attempts per reconnect. The delay
	// before attempt k+1 is ConnectBackoff * 2^(k-1).
	ConnectRetries int           `yaml:"connect_retries" mapstructure:"connect_retries"`
	ConnectBackoff time.Duration `yaml:"connect_backoff" mapstructure:"connect_backoff"`

	FailureDelay     time.Duration `yaml:"failure_delay" mapstructure:"failure_delay"`
	AlarmThreshold   int           `yaml:"alarm_threshold" mapstructure:"alarm_threshold"`
	LivenessFailures int           `yaml:"liveness_failures" mapstructure:"liveness_failures"`
	Autostart        bool          `yaml:"autostart" mapstructure:"autostart"`
}

// AuditConfig places the daily audit files.
type AuditConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
}

// Sink types.
const (
	SinkLog  = "log"
	SinkMQTT = "mqtt"
	SinkNone = "none"
)

// SinkConfig selects where control values go.
type SinkConfig struct {
	// Type is "log", "mqtt" or "none".
	Type string     `yaml:"type" mapstructure:"type"`
	MQTT MQTTConfig `yaml:"mqtt" mapstructure:"mqtt"`

	// Channels maps value names to sink channel names. A value with no
	// entry is not sent.
	Channels map[string]string `yaml:"channels" mapstructure:"channels"`
}

// MQTTConfig configures the MQTT sink.
type MQTTConfig struct {
	Broker         string        `yaml:"broker" mapstructure:"broker"`
	ClientID       string        `yaml:"client_id" mapstructure:"client_id"`
	Username       string        `yaml:"username,omitempty" mapstructure:"username"`
	Password       string        `yaml:"password,omitempty" mapstructure:"password"`
	TopicPrefix    string        `yaml:"topic_prefix" mapstructure:"topic_prefix"`
	Retain         bool          `yaml:"retain" mapstructure:"retain"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
}

// RampDownConfig controls the ramp-down flag file. Empty disables it.
type RampDownConfig struct {
	FlagFile string `yaml:"flag_file" mapstructure:"flag_file"`
}

// HTTPConfig controls the status API. Empty Listen disables it.
type HTTPConfig struct {
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// LockConfig controls the console lock that keeps two upsmon processes off
// the same card. An empty Dir uses the audit directory.
type LockConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir     string        `yaml:"dir,omitempty" mapstructure:"dir"`
	Stale   time.Duration `yaml:"stale" mapstructure:"stale"`
}

// BridgeConfig controls the data-file bridge.
type BridgeConfig struct {
	Dir             string          `yaml:"dir" mapstructure:"dir"`
	Pattern         string          `yaml:"pattern" mapstructure:"pattern"`
	Interval        time.Duration   `yaml:"interval" mapstructure:"interval"`
	TailBytes       int64           `yaml:"tail_bytes" mapstructure:"tail_bytes"`
	TimestampColumn int             `yaml:"timestamp_column" mapstructure:"timestamp_column"`
	Watch           bool            `yaml:"watch" mapstructure:"watch"`
	Columns         []bridge.Column `yaml:"columns" mapstructure:"columns"`
}

// DefaultConfig returns a Config with the stock APC console settings.
func DefaultConfig() *Config {
	mon := monitor.DefaultOptions()
	br := bridge.DefaultOptions()

	return &Config{
		Version:  CurrentConfigVersion,
		LogLevel: "info",
		UPS: UPSConfig{
			Port:              22,
			User:              "apc",
			Prompt:            "apc>",
			PasswordPrompt:    `[Pp]assword:\s*`,
			HostKeyPrompt:     "yes/no",
			Command:           mon.Command,
			ExitCommand:       "exit",
			LineEnding:        "\r",
			KnownHosts:        "~/.ssh/known_hosts",
			AcceptNewHostKeys: true,
			KeepaliveInterval: 30 * time.Second,
			KeepaliveMax:      3,
		},
		Monitor: MonitorConfig{
			Interval:         mon.Interval,
			ExpectTimeout:    mon.ExpectTimeout,
			ConnectRetries:   30,
			ConnectBackoff:   10 * time.Second,
			FailureDelay:     mon.FailureDelay,
			AlarmThreshold:   mon.Threshold,
			LivenessFailures: mon.LivenessFailures,
			Autostart:        mon.Autostart,
		},
		Audit: AuditConfig{
			Dir:    ".",
			Prefix: "upsstatus",
		},
		Sink: SinkConfig{
			Type: SinkLog,
			MQTT: MQTTConfig{
				Broker:         "tcp://localhost:1883",
				ClientID:       "upsmon",
				TopicPrefix:    "ups",
				ConnectTimeout: 10 * time.Second,
			},
			Channels: monitor.DefaultChannels(),
		},
		Lock: LockConfig{
			Enabled: true,
			Stale:   time.Minute,
		},
		Bridge: BridgeConfig{
			Dir:             br.Dir,
			Pattern:         br.Pattern,
			Interval:        br.Interval,
			TailBytes:       br.TailBytes,
			TimestampColumn: br.TimestampColumn,
			Watch:           true,
			Columns:         br.Columns,
		},
	}
}
