package cli

import (
	"bytes"
	"encoding/json"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withVersion(t *testing.T, v, c, d string) {
	t.Helper()
	origVersion, origCommit, origDate := version, commit, date
	t.Cleanup(func() {
		version, commit, date = origVersion, origCommit, origDate
		versionShort, versionJSON = false, false
	})
	SetVersionInfo(v, c, d)
}

func runVersion(t *testing.T, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	t.Cleanup(func() { versionCmd.SetOut(nil) })

	require.NoError(t, versionCmd.ParseFlags(args))
	require.NoError(t, versionCmd.RunE(versionCmd, nil))
	return buf.String()
}

func TestVersion(t *testing.T) {
	withVersion(t, "1.2.3", "abc1234", "2026-01-08T12:00:00Z")

	out := runVersion(t)
	assert.Contains(t, out, "upsmon v1.2.3")
	assert.Contains(t, out, "commit: abc1234")
	assert.Contains(t, out, "built: 2026-01-08T12:00:00Z")
	assert.Contains(t, out, "go: "+runtime.Version())
	assert.Contains(t, out, "os/arch: "+runtime.GOOS+"/"+runtime.GOARCH)
}

func TestVersion_Short(t *testing.T) {
	withVersion(t, "1.2.3", "abc1234", "2026-01-08T12:00:00Z")
	assert.Equal(t, "1.2.3", strings.TrimSpace(runVersion(t, "--short")))
}

func TestVersion_JSON(t *testing.T) {
	withVersion(t, "0.4.0", "f00dbab", "2026-02-01T08:00:00Z")

	var info buildInfo
	require.NoError(t, json.Unmarshal([]byte(runVersion(t, "--json")), &info))
	assert.Equal(t, "v0.4.0", info.Version)
	assert.Equal(t, "f00dbab", info.Commit)
	assert.Equal(t, runtime.Version(), info.Go)
}

func TestDisplayVersion(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"dev", "dev"},
		{"1.2.3", "v1.2.3"},
		{"v1.2.3", "v1.2.3"},
		{"1.2.3-beta.1", "v1.2.3-beta.1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, displayVersion(tt.in))
		})
	}
}
