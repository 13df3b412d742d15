package sshutil

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/kevinburke/ssh_config"
)

// matchWarningOnce ensures the SSH config Match directive warning is only shown once per process.
var matchWarningOnce sync.Once

// sshSettings holds resolved SSH connection parameters.
type sshSettings struct {
	hostname     string
	port         string
	user         string
	identityFile string

	explicitPort bool
	explicitUser bool
}

// address returns the host:port string for dialing.
func (s *sshSettings) address() string {
	return net.JoinHostPort(s.hostname, s.port)
}

// apply layers configured options over what the host string and ssh config gave.
// A user or port written into the host string still wins.
func (s *sshSettings) apply(opts DialOptions) {
	if opts.User != "" && !s.explicitUser {
		s.user = opts.User
	}
	if opts.Port > 0 && !s.explicitPort {
		s.port = strconv.Itoa(opts.Port)
	}
}

// Target describes where a host string resolves to.
type Target struct {
	Hostname string
	Port     string
	User     string
}

// Address returns host:port.
func (t Target) Address() string {
	return net.JoinHostPort(t.Hostname, t.Port)
}

// Resolve reports the endpoint Dial would use for host and opts.
func Resolve(host string, opts DialOptions) Target {
	s := resolveSSHSettings(host)
	s.apply(opts)
	return Target{Hostname: s.hostname, Port: s.port, User: s.user}
}

// resolveSSHSettings parses the host string and resolves settings from ~/.ssh/config.
func resolveSSHSettings(host string) *sshSettings {
	return resolveSSHSettingsFrom(host, filepath.Join(homeDir(), ".ssh", "config"))
}

func resolveSSHSettingsFrom(host, sshConfigPath string) *sshSettings {
	settings := &sshSettings{
		port: "22",
		user: currentUser(),
	}

	// Parse user@host:port format first (explicit user takes precedence)
	if atIdx := strings.Index(host, "@"); atIdx != -1 {
		settings.user = host[:atIdx]
		host = host[atIdx+1:]
		settings.explicitUser = true
	}

	if colonIdx := strings.LastIndex(host, ":"); colonIdx != -1 {
		potentialPort := host[colonIdx+1:]
		if _, err := strconv.Atoi(potentialPort); err == nil && potentialPort != "" {
			settings.port = potentialPort
			settings.explicitPort = true
			host = host[:colonIdx]
		}
	}

	settings.hostname = host

	// The kevinburke/ssh_config library doesn't support Match, so only the
	// content before the first Match block is parsed.
	content, matchLine, err := preprocessSSHConfig(sshConfigPath)
	if err != nil {
		return settings
	}

	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return settings
	}

	hostFound := false

	if hostname, _ := cfg.Get(host, "HostName"); hostname != "" {
		settings.hostname = hostname
		hostFound = true
	}

	if port, _ := cfg.Get(host, "Port"); port != "" && !settings.explicitPort {
		settings.port = port
		settings.explicitPort = true
		hostFound = true
	}

	if user, _ := cfg.Get(host, "User"); user != "" && !settings.explicitUser {
		settings.user = user
		settings.explicitUser = true
		hostFound = true
	}

	if identity, _ := cfg.Get(host, "IdentityFile"); identity != "" {
		settings.identityFile = expandPath(identity)
		hostFound = true
	}

	if matchLine > 0 && !hostFound {
		matchWarningOnce.Do(func() {
			emitWarning(fmt.Sprintf(
				"Host '%s' not found in SSH config (config has a Match block at line %d that may hide later entries).",
				host, matchLine))
		})
	}

	return settings
}

// preprocessSSHConfig reads the SSH config and returns content up to the first Match directive.
// Also returns the line number where Match was found (0 if not found).
func preprocessSSHConfig(configPath string) ([]byte, int, error) {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, 0, err
	}

	lines := strings.Split(string(content), "\n")
	var result []string
	matchLine := 0

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), "match ") {
			matchLine = i + 1
			break
		}
		result = append(result, line)
	}

	return []byte(strings.Join(result, "\n")), matchLine, nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "root"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
