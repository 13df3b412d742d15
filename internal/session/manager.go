package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/rileyhilliard/upsmon/internal/expect"
	"github.com/rileyhilliard/upsmon/internal/logger"
)

// Manager creates sessions.
type Manager struct {
	dialer Dialer
	opts   Options
	log    logger.Logger
}

// NewManager returns a Manager that opens transports with dialer.
func NewManager(dialer Dialer, opts Options, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Noop()
	}
	return &Manager{
		dialer: dialer,
		opts:   opts.withDefaults(),
		log:    log,
	}
}

// Options returns the effective options.
func (m *Manager) Options() Options {
	return m.opts
}

// Backoff is the delay after the given failed attempt (1-based):
// base * 2^(attempt-1). It saturates instead of overflowing.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 || base <= 0 {
		return 0
	}
	shift := attempt - 1
	if shift >= 62 || base > time.Duration(math.MaxInt64>>uint(shift)) {
		return time.Duration(math.MaxInt64)
	}
	return base << uint(shift)
}

// ConnectOption adjusts a single Connect call.
type ConnectOption func(*Options)

// WithAttemptHook sets Options.OnAttemptFailed for one Connect call.
func WithAttemptHook(fn func(attempt int, err error, delay time.Duration)) ConnectOption {
	return func(o *Options) {
		o.OnAttemptFailed = fn
	}
}

// Connect dials and logs in, retrying with exponential backoff. It returns a
// Ready session or a RETRIES error once every attempt has failed. When ctx
// ends, the context error is returned as is.
func (m *Manager) Connect(ctx context.Context, options ...ConnectOption) (*Session, error) {
	opts := m.opts
	for _, o := range options {
		o(&opts)
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s, err := m.attempt(ctx)
		if err == nil {
			if attempt > 1 {
				m.log.Info("connected on attempt %d/%d", attempt, opts.MaxAttempts)
			} else {
				m.log.Debug("connected")
			}
			return s, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err

		var delay time.Duration
		if attempt < opts.MaxAttempts {
			delay = Backoff(opts.BaseBackoff, attempt)
			m.log.Warn("connect attempt %d/%d failed: %s; retrying in %s",
				attempt, opts.MaxAttempts, errors.Summary(err), delay)
		} else {
			m.log.Warn("connect attempt %d/%d failed: %s", attempt, opts.MaxAttempts, errors.Summary(err))
		}
		if opts.OnAttemptFailed != nil {
			opts.OnAttemptFailed(attempt, err, delay)
		}
		if delay == 0 {
			continue
		}
		if err := opts.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, errors.WrapWithCode(lastErr, errors.ErrRetries,
		fmt.Sprintf("Couldn't log in to the UPS after %d attempts", opts.MaxAttempts),
		"Check that the card is reachable and the credentials are right: upsmon check")
}

// attempt makes one dial plus handshake.
func (m *Manager) attempt(ctx context.Context) (*Session, error) {
	tr, err := m.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}

	s := newSession(tr, m.opts, m.log)
	if err := m.handshake(s); err != nil {
		s.abort()
		return nil, err
	}
	if err := m.resync(s); err != nil {
		s.abort()
		return nil, err
	}

	s.setState(Ready)
	return s, nil
}

// handshake races the host key question, the password prompt and the ready
// prompt. The host key question is answered at most once; after that only
// the password and ready prompts are raced.
func (m *Manager) handshake(s *Session) error {
	match, err := s.exp.Expect(m.opts.Timeout, m.opts.HostKeyPrompt, m.opts.PasswordPrompt, m.opts.ReadyPrompt)
	if err != nil {
		return handshakeError(err, "waiting for login prompt", match.Before)
	}

	passwordAsked := match.Index == 1
	if match.Index == 0 {
		m.log.Info("accepting host key for new device")
		if err := s.send("yes"); err != nil {
			return handshakeError(err, "answering host key question", "")
		}
		match, err = s.exp.Expect(m.opts.Timeout, m.opts.PasswordPrompt, m.opts.ReadyPrompt)
		if err != nil {
			return handshakeError(err, "waiting for login prompt after host key", match.Before)
		}
		passwordAsked = match.Index == 0
	}
	if !passwordAsked {
		return nil
	}

	if m.opts.Secret == "" {
		return errors.New(errors.ErrHandshake,
			"Console asked for a password but none is configured",
			"Set ups.password or UPSMON_UPS_PASSWORD")
	}
	if err := s.send(m.opts.Secret); err != nil {
		return handshakeError(err, "sending password", "")
	}
	if match, err := s.exp.Expect(m.opts.Timeout, m.opts.ReadyPrompt); err != nil {
		return handshakeError(err, "waiting for prompt after password", match.Before)
	}
	return nil
}

// resync sends an empty line and waits for a prompt so the next command
// starts from a known position.
func (m *Manager) resync(s *Session) error {
	if err := s.send(""); err != nil {
		return handshakeError(err, "resyncing", "")
	}
	if match, err := s.exp.Expect(m.opts.Timeout, m.opts.ReadyPrompt); err != nil {
		return handshakeError(err, "resyncing", match.Before)
	}
	return nil
}

func handshakeError(err error, during, seen string) *errors.Error {
	msg := fmt.Sprintf("Login handshake failed while %s", during)
	suggestion := ""
	switch {
	case stderrors.Is(err, expect.ErrTimeout):
		suggestion = "No expected prompt arrived. Check ups.prompt matches the card's prompt."
	case stderrors.Is(err, expect.ErrEOF):
		suggestion = "The card closed the connection. Wrong password, or too many console sessions."
	}
	if seen = lastLine(seen); seen != "" {
		msg = fmt.Sprintf("%s (last output: %q)", msg, seen)
	}
	return errors.WrapWithCode(err, errors.ErrHandshake, msg, suggestion)
}

func lastLine(s string) string {
	lines := strings.FieldsFunc(s, func(r rune) bool { return r == '\r' || r == '\n' })
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
