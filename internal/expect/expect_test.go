package expect

import (
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	prompt   = regexp.MustCompile(`apc>`)
	password = regexp.MustCompile(`[Pp]assword:\s*`)
	hostKey  = regexp.MustCompile(`yes/no`)
)

func TestExpect_MatchesFromReader(t *testing.T) {
	e := New(strings.NewReader("Welcome\r\napc>"))

	m, err := e.Expect(time.Second, prompt)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Index)
	assert.Equal(t, "Welcome\r\n", m.Before)
	assert.Equal(t, "apc>", m.Text)
}

func TestExpect_EarliestStreamPositionWins(t *testing.T) {
	// password appears before the prompt in the stream, even though the
	// prompt pattern is listed first.
	e := New(strings.NewReader("apc@ups's password: \r\nlater apc>"))

	m, err := e.Expect(time.Second, prompt, password)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Index)
	assert.Equal(t, "apc@ups's ", m.Before)

	m, err = e.Expect(time.Second, prompt, password)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Index)
	// \s* in the password pattern already consumed the line break.
	assert.Equal(t, "later ", m.Before)
}

func TestExpect_TieGoesToFirstPattern(t *testing.T) {
	e := New(strings.NewReader("apc>"))

	m, err := e.Expect(time.Second, regexp.MustCompile(`apc`), prompt)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Index)
	assert.Equal(t, "apc", m.Text)
	assert.Equal(t, ">", e.Buffered())
}

func TestExpect_WaitsForLaterChunks(t *testing.T) {
	pr, pw := io.Pipe()
	e := New(pr)

	go func() {
		_, _ = pw.Write([]byte("Battery State Of "))
		time.Sleep(20 * time.Millisecond)
		_, _ = pw.Write([]byte("Charge: 100.0 %\r\nap"))
		time.Sleep(20 * time.Millisecond)
		_, _ = pw.Write([]byte("c>"))
	}()

	m, err := e.Expect(2*time.Second, prompt)
	require.NoError(t, err)
	assert.Equal(t, "Battery State Of Charge: 100.0 %\r\n", m.Before)
}

func TestExpect_Timeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	e := New(pr)

	go func() { _, _ = pw.Write([]byte("partial output")) }()

	start := time.Now()
	m, err := e.Expect(100*time.Millisecond, prompt)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, -1, m.Index)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	// Timed-out text stays buffered for the next call.
	assert.Equal(t, "partial output", e.Buffered())
	assert.False(t, e.Closed())
}

func TestExpect_EOF(t *testing.T) {
	e := New(strings.NewReader("Connection closed by remote host"))

	m, err := e.Expect(time.Second, prompt, password)
	assert.ErrorIs(t, err, ErrEOF)
	assert.Equal(t, "Connection closed by remote host", m.Before)
	assert.True(t, e.Closed())
	assert.NoError(t, e.Err())

	// Further calls keep reporting EOF without blocking.
	_, err = e.Expect(time.Second, prompt)
	assert.ErrorIs(t, err, ErrEOF)
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestExpect_ReadErrorIsEOF(t *testing.T) {
	boom := errors.New("connection reset")
	e := New(failingReader{err: boom})

	_, err := e.Expect(time.Second, prompt)
	assert.ErrorIs(t, err, ErrEOF)
	assert.ErrorIs(t, e.Err(), boom)
}

func TestExpect_RequiresTimeoutAndPatterns(t *testing.T) {
	e := New(strings.NewReader("apc>"))

	_, err := e.Expect(0, prompt)
	assert.ErrorIs(t, err, ErrNoTimeout)

	_, err = e.Expect(time.Second)
	assert.ErrorIs(t, err, ErrNoPatterns)
}

func TestExpect_Groups(t *testing.T) {
	e := New(strings.NewReader("Battery Temperature: 25.0 C, 77.0 F\r\n"))

	re := regexp.MustCompile(`Battery Temperature:\s*([0-9.]+)\s*C,\s*([0-9.]+)\s*F`)
	m, err := e.Expect(time.Second, re)
	require.NoError(t, err)
	require.Len(t, m.Groups, 3)
	assert.Equal(t, "25.0", m.Groups[1])
	assert.Equal(t, "77.0", m.Groups[2])
}

func TestExpect_ThreeWayHandshakeRace(t *testing.T) {
	e := New(strings.NewReader("Are you sure you want to continue connecting (yes/no)? "))

	m, err := e.Expect(time.Second, hostKey, password, prompt)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Index)
}

func TestDiscard(t *testing.T) {
	e := New(strings.NewReader("stale apc> apc>"))

	// Let the reader deliver.
	require.Eventually(t, func() bool {
		e.Drain()
		return e.Closed()
	}, time.Second, 5*time.Millisecond)

	e.Discard()
	assert.Empty(t, e.Buffered())
}

func TestAppend_BoundsBuffer(t *testing.T) {
	e := &Expecter{}
	e.append([]byte(strings.Repeat("a", MaxBuffer)))
	e.append([]byte("tail"))

	assert.Equal(t, MaxBuffer, len(e.Buffered()))
	assert.True(t, strings.HasSuffix(e.Buffered(), "tail"))
}

// endlessReader never ends and never blocks, like a console that keeps
// printing after nobody is listening.
type endlessReader struct{}

func (endlessReader) Read(p []byte) (int, error) { return copy(p, "apc>"), nil }

func TestStop_ReleasesBlockedReader(t *testing.T) {
	e := New(endlessReader{})
	require.Eventually(t, func() bool {
		return len(e.chunks) == cap(e.chunks)
	}, time.Second, time.Millisecond, "reader should fill the channel and block")

	e.Stop()
	e.Stop()

	closed := make(chan struct{})
	go func() {
		for range e.chunks {
		}
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("reader goroutine still running after Stop")
	}
}
