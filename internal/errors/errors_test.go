package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodes(t *testing.T) {
	codes := []string{
		ErrConfig,
		ErrSSH,
		ErrHandshake,
		ErrTimeout,
		ErrEOF,
		ErrDesync,
		ErrRetries,
		ErrSink,
		ErrExec,
	}

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.NotEmpty(t, code, "error code should not be empty")
		assert.False(t, seen[code], "error code %q should be unique", code)
		seen[code] = true
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		message    string
		suggestion string
	}{
		{
			name:       "config error",
			code:       ErrConfig,
			message:    "ups.host is not set",
			suggestion: "Set ups.host in upsmon.yaml",
		},
		{
			name:       "handshake error",
			code:       ErrHandshake,
			message:    "Never saw the ready prompt",
			suggestion: "Check ups.prompt matches the device shell",
		},
		{
			name:       "desync error",
			code:       ErrDesync,
			message:    "Prompt did not come back after an empty line",
			suggestion: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, tt.suggestion)

			require.NotNil(t, err)
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.message, err.Message)
			assert.Equal(t, tt.suggestion, err.Suggestion)
			assert.Nil(t, err.Cause)
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	err := WrapWithCode(
		errors.New("i/o timeout"),
		ErrSSH,
		"Can't reach '192.168.185.10'",
		"Check the UPS network card is powered",
	)

	output := err.Error()
	lines := strings.Split(output, "\n")

	assert.True(t, strings.HasPrefix(lines[0], "✗"), "first line should start with the failure symbol")
	assert.Contains(t, lines[0], "Can't reach '192.168.185.10'")
	assert.Contains(t, output, "i/o timeout")
	assert.Contains(t, output, "Check the UPS network card is powered")
}

func TestErrorFormatting_NoSuggestion(t *testing.T) {
	output := New(ErrTimeout, "Command timed out", "").Error()
	assert.Equal(t, "✗ Command timed out\n", output)
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying network error")
	wrapped := Wrap(cause, "SSH connection failed")

	require.NotNil(t, wrapped)
	assert.Equal(t, ErrSSH, wrapped.Code, "Wrap should default to ErrSSH code")
	assert.Equal(t, cause, wrapped.Cause)
}

func TestShort(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "no cause",
			err:  New(ErrEOF, "Remote closed the session", "reconnect"),
			want: "Remote closed the session",
		},
		{
			name: "plain cause",
			err:  WrapWithCode(errors.New("connection refused"), ErrSSH, "Dial failed", ""),
			want: "Dial failed: connection refused",
		},
		{
			name: "structured cause keeps only its headline",
			err: WrapWithCode(New(ErrHandshake, "No prompt", "check prompt"),
				ErrRetries, "Gave up after 3 attempts", ""),
			want: "Gave up after 3 attempts: No prompt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Short())
		})
	}
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "", Summary(nil))
	assert.Equal(t, "boom", Summary(errors.New("boom\nstack")))
	assert.Equal(t, "Timed out", Summary(fmt.Errorf("tick: %w", New(ErrTimeout, "Timed out", "wait"))))
}

func TestErrorsIsAndAs(t *testing.T) {
	cause := errors.New("specific error")
	wrapped := WrapWithCode(cause, ErrDesync, "Resync failed", "")

	assert.True(t, errors.Is(wrapped, cause))

	var upsErr *Error
	require.True(t, errors.As(fmt.Errorf("outer: %w", wrapped), &upsErr))
	assert.Equal(t, ErrDesync, upsErr.Code)
}

func TestIsCode(t *testing.T) {
	err := New(ErrTimeout, "Timed out", "")

	assert.True(t, IsCode(err, ErrTimeout))
	assert.True(t, IsCode(fmt.Errorf("wrapped: %w", err), ErrTimeout))
	assert.False(t, IsCode(err, ErrSSH))
	assert.False(t, IsCode(errors.New("standard error"), ErrTimeout))
	assert.False(t, IsCode(nil, ErrTimeout))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrSink, CodeOf(New(ErrSink, "publish failed", "")))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
	assert.Equal(t, "", CodeOf(nil))
}

func TestExitError(t *testing.T) {
	err := NewExitError(2)
	assert.Equal(t, "exit code 2", err.Error())

	code, ok := GetExitCode(fmt.Errorf("check: %w", err))
	assert.True(t, ok)
	assert.Equal(t, 2, code)

	_, ok = GetExitCode(New(ErrExec, "x", ""))
	assert.False(t, ok)
}
