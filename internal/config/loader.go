package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "upsmon.yaml"
	// GlobalConfigDir is the directory for the per-user config.
	GlobalConfigDir = ".config/upsmon"
	// GlobalConfigFile is the per-user config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes every environment override, e.g. UPSMON_UPS_PASSWORD.
	EnvPrefix = "UPSMON"
)

// Load reads config from the specified path. An empty path uses defaults,
// .env and environment variables only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v, path)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.WrapWithCode(err, errors.ErrConfig,
					"Config file not found",
					"Run 'upsmon init' to create a config file, or specify one with --config")
			}
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file",
				"Check the file exists and is valid YAML")
		}
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. upsmon.yaml in current directory
// 3. ~/.config/upsmon/config.yaml
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	localConfig := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	if global := GlobalPath(); global != "" {
		if _, err := os.Stat(global); err == nil {
			return global, nil
		}
	}

	return "", nil
}

// GlobalPath returns ~/.config/upsmon/config.yaml, or "" without a home directory.
func GlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
}

// LoadOrDefault finds and loads the config, falling back to defaults plus
// environment when no file exists.
func LoadOrDefault(explicit string) (*Config, string, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// bindEnv loads .env files and turns on UPSMON_* overrides. A .env next to
// the config file is read before one in the working directory; neither
// replaces variables already set.
func bindEnv(v *viper.Viper, path string) {
	if path != "" {
		_ = godotenv.Load(filepath.Join(configDir(path), ".env"))
	}
	_ = godotenv.Load()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		where := "your environment"
		if path != "" {
			where = path
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+where)
	}

	cfg.UPS.KnownHosts = ExpandTilde(cfg.UPS.KnownHosts)
	cfg.Audit.Dir = Expand(cfg.Audit.Dir)
	cfg.Bridge.Dir = Expand(cfg.Bridge.Dir)
	cfg.RampDown.FlagFile = Expand(cfg.RampDown.FlagFile)
	cfg.Lock.Dir = Expand(cfg.Lock.Dir)

	return cfg, nil
}

// setDefaults registers every key with viper. AutomaticEnv only overrides
// keys viper knows about, so every field needs a default here.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("version", d.Version)
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("ups.host", d.UPS.Host)
	v.SetDefault("ups.port", d.UPS.Port)
	v.SetDefault("ups.user", d.UPS.User)
	v.SetDefault("ups.password", d.UPS.Password)
	v.SetDefault("ups.prompt", d.UPS.Prompt)
	v.SetDefault("ups.password_prompt", d.UPS.PasswordPrompt)
	v.SetDefault("ups.host_key_prompt", d.UPS.HostKeyPrompt)
	v.SetDefault("ups.command", d.UPS.Command)
	v.SetDefault("ups.exit_command", d.UPS.ExitCommand)
	v.SetDefault("ups.line_ending", d.UPS.LineEnding)
	v.SetDefault("ups.known_hosts", d.UPS.KnownHosts)
	v.SetDefault("ups.accept_new_host_keys", d.UPS.AcceptNewHostKeys)
	v.SetDefault("ups.keepalive_interval", d.UPS.KeepaliveInterval)
	v.SetDefault("ups.keepalive_max", d.UPS.KeepaliveMax)

	v.SetDefault("monitor.interval", d.Monitor.Interval)
	v.SetDefault("monitor.expect_timeout", d.Monitor.ExpectTimeout)
	v.SetDefault("monitor.connect_retries", d.Monitor.ConnectRetries)
	v.SetDefault("monitor.connect_backoff", d.Monitor.ConnectBackoff)
	v.SetDefault("monitor.failure_delay", d.Monitor.FailureDelay)
	v.SetDefault("monitor.alarm_threshold", d.Monitor.AlarmThreshold)
	v.SetDefault("monitor.liveness_failures", d.Monitor.LivenessFailures)
	v.SetDefault("monitor.autostart", d.Monitor.Autostart)

	v.SetDefault("audit.dir", d.Audit.Dir)
	v.SetDefault("audit.prefix", d.Audit.Prefix)

	v.SetDefault("sink.type", d.Sink.Type)
	v.SetDefault("sink.mqtt.broker", d.Sink.MQTT.Broker)
	v.SetDefault("sink.mqtt.client_id", d.Sink.MQTT.ClientID)
	v.SetDefault("sink.mqtt.username", d.Sink.MQTT.Username)
	v.SetDefault("sink.mqtt.password", d.Sink.MQTT.Password)
	v.SetDefault("sink.mqtt.topic_prefix", d.Sink.MQTT.TopicPrefix)
	v.SetDefault("sink.mqtt.retain", d.Sink.MQTT.Retain)
	v.SetDefault("sink.mqtt.connect_timeout", d.Sink.MQTT.ConnectTimeout)
	for name, channel := range d.Sink.Channels {
		v.SetDefault("sink.channels."+name, channel)
	}

	v.SetDefault("rampdown.flag_file", d.RampDown.FlagFile)
	v.SetDefault("http.listen", d.HTTP.Listen)

	v.SetDefault("lock.enabled", d.Lock.Enabled)
	v.SetDefault("lock.dir", d.Lock.Dir)
	v.SetDefault("lock.stale", d.Lock.Stale)

	v.SetDefault("bridge.dir", d.Bridge.Dir)
	v.SetDefault("bridge.pattern", d.Bridge.Pattern)
	v.SetDefault("bridge.interval", d.Bridge.Interval)
	v.SetDefault("bridge.tail_bytes", d.Bridge.TailBytes)
	v.SetDefault("bridge.timestamp_column", d.Bridge.TimestampColumn)
	v.SetDefault("bridge.watch", d.Bridge.Watch)
	columns := make([]map[string]interface{}, 0, len(d.Bridge.Columns))
	for _, c := range d.Bridge.Columns {
		columns = append(columns, map[string]interface{}{"index": c.Index, "channel": c.Channel})
	}
	v.SetDefault("bridge.columns", columns)
}

// configDir returns the directory containing the config file.
func configDir(configPath string) string {
	if configPath == "" {
		cwd, _ := os.Getwd()
		return cwd
	}
	return filepath.Dir(configPath)
}
