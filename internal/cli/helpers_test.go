package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rileyhilliard/upsmon/internal/config"
	"github.com/rileyhilliard/upsmon/internal/session"
	sshtest "github.com/rileyhilliard/upsmon/pkg/sshutil/testing"
	"github.com/stretchr/testify/require"
)

// useConfig writes content to a temp config file and points --config at it.
func useConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	orig := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = orig })
	return path
}

// useDevice routes every dial to a fake console card.
func useDevice(t *testing.T, d *sshtest.Dialer) {
	t.Helper()
	orig := newDialer
	newDialer = func(*config.Config) session.Dialer { return d }
	t.Cleanup(func() { newDialer = orig })
}

// noTerminal makes every descriptor look like a pipe.
func noTerminal(t *testing.T) {
	t.Helper()
	orig := isTerminal
	isTerminal = func(int) bool { return false }
	t.Cleanup(func() { isTerminal = orig })
}

func upsConfig(auditDir string) string {
	return `
ups:
  host: ups-icarus
  password: apc
monitor:
  interval: 20ms
  expect_timeout: 2s
  connect_retries: 1
  connect_backoff: 10ms
  failure_delay: 20ms
audit:
  dir: ` + auditDir + `
sink:
  type: none
`
}
