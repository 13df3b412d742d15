// Package session manages the interactive console session on the UPS
// management card: connecting with retries, walking the login handshake,
// running commands and knowing when the session has died.
package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/rileyhilliard/upsmon/internal/expect"
	"github.com/rileyhilliard/upsmon/internal/logger"
	"github.com/rileyhilliard/upsmon/pkg/sshutil"
)

// State is where a session is in its life.
type State int

const (
	Disconnected State = iota
	Connecting
	Ready
	Dead
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Dead:
		return "dead"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transport is the byte stream a session talks over.
type Transport = sshutil.Transport

// Dialer opens a new transport to the device.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Transport, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context) (Transport, error) {
	return f(ctx)
}

// Session is one logged-in console. It is owned by a single goroutine;
// only State may be called from elsewhere.
type Session struct {
	transport Transport
	exp       *expect.Expecter
	opts      Options
	log       logger.Logger

	mu    sync.Mutex
	state State

	closeOnce sync.Once
	closeErr  error
}

func newSession(tr Transport, opts Options, log logger.Logger) *Session {
	return &Session{
		transport: tr,
		exp:       expect.New(tr),
		opts:      opts,
		log:       log,
		state:     Connecting,
	}
}

// State returns the current state. A nil session is Disconnected.
func (s *Session) State() State {
	if s == nil {
		return Disconnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// IsAlive reports whether the session can be used for another command.
// It never blocks and is safe on a nil or closed session.
func (s *Session) IsAlive() bool {
	if s == nil || s.transport == nil {
		return false
	}
	if s.State() != Ready {
		return false
	}
	select {
	case <-s.transport.Done():
		return false
	default:
	}
	return !s.exp.Closed()
}

// EnsureReady sends an empty line and waits for a fresh prompt, dropping
// anything left over from earlier commands.
func (s *Session) EnsureReady(timeout time.Duration) error {
	if !s.IsAlive() {
		return errors.New(errors.ErrDesync, "Session is not ready", "")
	}

	s.exp.Discard()
	if err := s.send(""); err != nil {
		s.markDead()
		return errors.WrapWithCode(err, errors.ErrDesync, "Couldn't resync with the console", "")
	}
	if _, err := s.exp.Expect(timeout, s.opts.ReadyPrompt); err != nil {
		s.markDead()
		return errors.WrapWithCode(err, errors.ErrDesync,
			fmt.Sprintf("No prompt after resync within %s", timeout),
			"The console may be busy or the prompt pattern may be wrong")
	}
	return nil
}

// Execute sends cmd and returns the output printed before the next prompt,
// without the echoed command line. Any failure leaves the session Dead.
func (s *Session) Execute(cmd string, timeout time.Duration) (string, error) {
	if !s.IsAlive() {
		return "", errors.New(errors.ErrEOF, "Session is not ready", "")
	}

	if err := s.send(cmd); err != nil {
		s.markDead()
		return "", errors.WrapWithCode(err, errors.ErrEOF,
			fmt.Sprintf("Couldn't send %q", cmd), "")
	}

	m, err := s.exp.Expect(timeout, s.opts.ReadyPrompt)
	if err != nil {
		s.markDead()
		if stderrors.Is(err, expect.ErrTimeout) {
			return "", errors.WrapWithCode(err, errors.ErrTimeout,
				fmt.Sprintf("%q did not finish within %s", cmd, timeout), "")
		}
		return "", errors.WrapWithCode(err, errors.ErrEOF,
			fmt.Sprintf("Connection closed while running %q", cmd), "")
	}

	return stripEcho(m.Before, cmd), nil
}

// stripEcho removes the terminal's echo of cmd from the start of out.
func stripEcho(out, cmd string) string {
	idx := strings.IndexByte(out, '\n')
	if idx < 0 {
		if strings.TrimSpace(out) == strings.TrimSpace(cmd) {
			return ""
		}
		return out
	}
	if strings.Contains(out[:idx], strings.TrimSpace(cmd)) {
		return out[idx+1:]
	}
	return out
}

func (s *Session) send(line string) error {
	_, err := s.transport.Write([]byte(line + s.opts.LineEnding))
	return err
}

func (s *Session) markDead() {
	s.setState(Dead)
}

// Close logs out and closes the transport. It is safe to call more than once
// and on a nil session.
func (s *Session) Close() error {
	if s == nil || s.transport == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		if s.IsAlive() && s.opts.ExitCommand != "" {
			if err := s.send(s.opts.ExitCommand); err != nil {
				s.log.Debug("exit command not sent: %v", err)
			}
		}
		s.closeErr = s.transport.Close()
		s.exp.Stop()
		s.setState(Disconnected)
	})
	return s.closeErr
}

// abort closes the transport without logging out.
func (s *Session) abort() {
	s.closeOnce.Do(func() {
		s.closeErr = s.transport.Close()
		s.exp.Stop()
		s.setState(Disconnected)
	})
}

// Options control the handshake and command exchange.
type Options struct {
	// Secret answers the password prompt.
	Secret string
	// ReadyPrompt marks the console waiting for input.
	ReadyPrompt *regexp.Regexp
	// PasswordPrompt and HostKeyPrompt are raced against ReadyPrompt during login.
	PasswordPrompt *regexp.Regexp
	HostKeyPrompt  *regexp.Regexp
	// ExitCommand is sent before closing a live session.
	ExitCommand string
	// LineEnding terminates every line sent.
	LineEnding string
	// Timeout bounds each wait during the handshake.
	Timeout time.Duration
	// MaxAttempts caps connection attempts per Connect.
	MaxAttempts int
	// BaseBackoff is the delay after the first failed attempt; it doubles after each.
	BaseBackoff time.Duration
	// Sleep waits between attempts. It must return early with an error when ctx ends.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnAttemptFailed, if set, is called after every failed connection
	// attempt with the delay before the next one (0 after the last).
	OnAttemptFailed func(attempt int, err error, delay time.Duration)
}

// Default prompt patterns for an APC network management card.
var (
	DefaultReadyPrompt    = regexp.MustCompile(`apc>`)
	DefaultPasswordPrompt = regexp.MustCompile(`[Pp]assword:\s*`)
	DefaultHostKeyPrompt  = regexp.MustCompile(`yes/no`)
)

// DefaultOptions returns options matching the card's stock console.
func DefaultOptions() Options {
	return Options{
		ReadyPrompt:    DefaultReadyPrompt,
		PasswordPrompt: DefaultPasswordPrompt,
		HostKeyPrompt:  DefaultHostKeyPrompt,
		ExitCommand:    "exit",
		LineEnding:     "\r",
		Timeout:        15 * time.Second,
		MaxAttempts:    30,
		BaseBackoff:    10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReadyPrompt == nil {
		o.ReadyPrompt = d.ReadyPrompt
	}
	if o.PasswordPrompt == nil {
		o.PasswordPrompt = d.PasswordPrompt
	}
	if o.HostKeyPrompt == nil {
		o.HostKeyPrompt = d.HostKeyPrompt
	}
	if o.LineEnding == "" {
		o.LineEnding = d.LineEnding
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 1
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	return o
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
