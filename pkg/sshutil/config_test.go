package sshutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSSHConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestResolveSSHSettings_FromConfig(t *testing.T) {
	path := writeSSHConfig(t, `
Host ups
    HostName 192.168.1.50
    User apc
    Port 2222
    IdentityFile ~/.ssh/id_ups

Host *
    ServerAliveInterval 60
`)

	s := resolveSSHSettingsFrom("ups", path)
	assert.Equal(t, "192.168.1.50", s.hostname)
	assert.Equal(t, "apc", s.user)
	assert.Equal(t, "2222", s.port)
	assert.Contains(t, s.identityFile, "id_ups")
	assert.Equal(t, "192.168.1.50:2222", s.address())
}

func TestResolveSSHSettings_HostStringWinsOverConfig(t *testing.T) {
	path := writeSSHConfig(t, `
Host ups
    HostName 192.168.1.50
    User apc
    Port 2222
`)

	s := resolveSSHSettingsFrom("admin@ups:22", path)
	assert.Equal(t, "192.168.1.50", s.hostname)
	assert.Equal(t, "admin", s.user)
	assert.Equal(t, "22", s.port)
}

func TestResolveSSHSettings_MatchHidesLaterHosts(t *testing.T) {
	path := writeSSHConfig(t, `
Host before
    HostName before.example.com

Match host *.example.com
    User matchuser

Host after
    HostName after.example.com
`)

	WarningHandler = func(string) {}
	t.Cleanup(func() { WarningHandler = nil })

	assert.Equal(t, "before.example.com", resolveSSHSettingsFrom("before", path).hostname)
	assert.Equal(t, "after", resolveSSHSettingsFrom("after", path).hostname)
}

func TestResolveSSHSettings_MissingConfig(t *testing.T) {
	s := resolveSSHSettingsFrom("10.0.0.5:2200", "/nonexistent/config")
	assert.Equal(t, "10.0.0.5", s.hostname)
	assert.Equal(t, "2200", s.port)
	assert.True(t, s.explicitPort)
}

func TestSSHSettings_Apply(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		opts     DialOptions
		wantUser string
		wantPort string
	}{
		{"options fill in", "ups.local", DialOptions{User: "apc", Port: 2222}, "apc", "2222"},
		{"host string wins", "root@ups.local:22", DialOptions{User: "apc", Port: 2222}, "root", "22"},
		{"zero port keeps default", "ups.local", DialOptions{User: "apc"}, "apc", "22"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := resolveSSHSettingsFrom(tt.host, "/nonexistent/config")
			s.apply(tt.opts)
			assert.Equal(t, tt.wantUser, s.user)
			assert.Equal(t, tt.wantPort, s.port)
		})
	}
}

func TestTarget_Address(t *testing.T) {
	target := Target{Hostname: "192.168.1.50", Port: "22", User: "apc"}
	assert.Equal(t, "192.168.1.50:22", target.Address())

	v6 := Target{Hostname: "fe80::1", Port: "22"}
	assert.Equal(t, "[fe80::1]:22", v6.Address())
}

func TestPreprocessSSHConfig(t *testing.T) {
	path := writeSSHConfig(t, "Host a\n  HostName a.example\nMatch all\n  User x\n")

	content, matchLine, err := preprocessSSHConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, matchLine)
	assert.NotContains(t, string(content), "Match")

	_, _, err = preprocessSSHConfig("/nonexistent/config")
	assert.Error(t, err)
}

func TestExpandPath(t *testing.T) {
	home := homeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, expandPath(tt.input))
	}
}
