package sshutil

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	stderrors "errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// skipIfNoSSH skips the test unless a real management card is configured.
func skipIfNoSSH(t *testing.T) {
	t.Helper()
	if os.Getenv("UPSMON_TEST_SSH_HOST") == "" {
		t.Skip("Skipping SSH test: UPSMON_TEST_SSH_HOST not set")
	}
}

func testDialOptions() DialOptions {
	return DialOptions{
		User:              os.Getenv("UPSMON_TEST_SSH_USER"),
		Password:          os.Getenv("UPSMON_TEST_SSH_PASSWORD"),
		Timeout:           10 * time.Second,
		AcceptNewHostKeys: true,
	}
}

func TestDial_Success(t *testing.T) {
	skipIfNoSSH(t)

	host := os.Getenv("UPSMON_TEST_SSH_HOST")
	client, err := Dial(context.Background(), host, testDialOptions())
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping())
}

func TestOpenShell_ReadsPrompt(t *testing.T) {
	skipIfNoSSH(t)

	d := &ShellDialer{Host: os.Getenv("UPSMON_TEST_SSH_HOST"), Options: testDialOptions()}
	shell, err := d.Dial(context.Background())
	require.NoError(t, err)

	buf := make([]byte, 4096)
	n, err := shell.Read(buf)
	require.NoError(t, err)
	assert.Positive(t, n)

	require.NoError(t, shell.Close())
	assert.NoError(t, shell.Close())
	<-shell.Done()
}

func TestDial_InvalidHost(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	opts := DialOptions{
		Password:   "apc",
		Timeout:    2 * time.Second,
		KnownHosts: filepath.Join(t.TempDir(), "known_hosts"),
	}
	_, err := Dial(context.Background(), "nonexistent.invalid:22", opts)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSSH))
}

func TestDial_NoAuthMethods(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	opts := DialOptions{KnownHosts: filepath.Join(t.TempDir(), "known_hosts")}
	_, err := Dial(context.Background(), "127.0.0.1:1", opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No SSH auth methods")
}

func TestPasswordChallenge(t *testing.T) {
	answers, err := passwordChallenge("apc")("", "", []string{"Password: ", "Again: "}, []bool{false, false})
	require.NoError(t, err)
	assert.Equal(t, []string{"apc", "apc"}, answers)

	answers, err = passwordChallenge("apc")("", "", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, answers)
}

func TestBuildSSHConfig_PasswordFirst(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	settings := &sshSettings{hostname: "ups", port: "22", user: "apc"}
	cfg, err := buildSSHConfig(settings, DialOptions{
		Password:   "secret",
		Timeout:    5 * time.Second,
		KnownHosts: filepath.Join(t.TempDir(), "known_hosts"),
	})
	require.NoError(t, err)
	assert.Equal(t, "apc", cfg.User)
	assert.Len(t, cfg.Auth, 2)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.NotNil(t, cfg.HostKeyCallback)
}

func newHostKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return key
}

func TestHostKeyCallback_TrustOnFirstUse(t *testing.T) {
	WarningHandler = func(string) {}
	t.Cleanup(func() { WarningHandler = nil })

	path := filepath.Join(t.TempDir(), "ssh", "known_hosts")
	remote := &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 22}
	key := newHostKey(t)

	cb, err := createHostKeyCallback(path, true)
	require.NoError(t, err)
	require.NoError(t, cb("ups.local:22", remote, key))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "ups.local")
	assert.Contains(t, string(content), "192.0.2.10")

	// A fresh callback reads the recorded key back.
	cb, err = createHostKeyCallback(path, true)
	require.NoError(t, err)
	assert.NoError(t, cb("ups.local:22", remote, key))

	// A different key for the same host is a mismatch, never accepted.
	err = cb("ups.local:22", remote, newHostKey(t))
	var mismatch *HostKeyMismatchError
	require.True(t, stderrors.As(err, &mismatch))
	assert.Equal(t, "ssh-ed25519", mismatch.ReceivedType)
	assert.Contains(t, mismatch.Suggestion(), "ssh-keygen -R ups.local")
}

func TestHostKeyCallback_RejectUnknownWhenDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_hosts")
	cb, err := createHostKeyCallback(path, false)
	require.NoError(t, err)

	err = cb("ups.local:22", &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 22}, newHostKey(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepting new keys is disabled")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestSuggestionForDialError(t *testing.T) {
	tests := []struct {
		errMsg   string
		contains string
	}{
		{"connection refused", "Is SSH enabled"},
		{"no route to host", "Can't route"},
		{"i/o timeout", "timed out"},
		{"random error", "ping"},
	}

	for _, tt := range tests {
		suggestion := suggestionForDialError(stderrors.New(tt.errMsg))
		assert.Contains(t, suggestion, tt.contains, tt.errMsg)
	}
}

func TestSuggestionForHandshakeError(t *testing.T) {
	tests := []struct {
		errMsg       string
		havePassword bool
		contains     string
	}{
		{"ssh: unable to authenticate", true, "Check ups.user and ups.password"},
		{"ssh: unable to authenticate", false, "No password configured"},
		{"knownhosts: host key mismatch", true, "known_hosts"},
		{"ssh: handshake failed: no common algorithm for key exchange", true, "legacy algorithms"},
		{"random error", true, "Something went wrong"},
	}

	for _, tt := range tests {
		suggestion := suggestionForHandshakeError(stderrors.New(tt.errMsg), tt.havePassword)
		assert.True(t, strings.Contains(suggestion, tt.contains), "%q -> %q", tt.errMsg, suggestion)
	}
}

func TestShellOptions_Defaults(t *testing.T) {
	o := ShellOptions{}.withDefaults()
	assert.Equal(t, "vt100", o.Term)
	assert.Equal(t, 200, o.Width)
	assert.Equal(t, 50, o.Height)
	assert.Equal(t, 3, o.KeepaliveMax)
	assert.Zero(t, o.KeepaliveInterval)
}

var _ io.ReadWriteCloser = (*Shell)(nil)
var _ Transport = (*Shell)(nil)
