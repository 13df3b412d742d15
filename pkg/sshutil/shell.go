package sshutil

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rileyhilliard/upsmon/internal/errors"
	"golang.org/x/crypto/ssh"
)

// ShellOptions configures the interactive shell opened on a connection.
type ShellOptions struct {
	// Term is the terminal type requested for the PTY.
	Term string
	// Width and Height size the PTY. Wide rows keep status lines unwrapped.
	Width  int
	Height int
	// KeepaliveInterval is how often a keepalive request is sent. Zero disables it.
	KeepaliveInterval time.Duration
	// KeepaliveMax is how many unanswered keepalives close the connection.
	KeepaliveMax int
}

func (o ShellOptions) withDefaults() ShellOptions {
	if o.Term == "" {
		o.Term = "vt100"
	}
	if o.Width <= 0 {
		o.Width = 200
	}
	if o.Height <= 0 {
		o.Height = 50
	}
	if o.KeepaliveMax <= 0 {
		o.KeepaliveMax = 3
	}
	return o
}

// Shell is an interactive PTY shell on an SSH connection. It owns the
// connection: closing the shell closes the client too.
//
// Output from the remote side is read through Read. The PTY merges stderr
// into the same stream, which is how the card's console behaves anyway.
type Shell struct {
	client  *Client
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  *io.PipeReader

	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
	stop      chan struct{}
}

// OpenShell requests a PTY and starts a login shell on c.
func (c *Client) OpenShell(opts ShellOptions) (*Shell, error) {
	opts = opts.withDefaults()

	session, err := c.Client.NewSession()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Couldn't open a session on '%s'", c.Host),
			"The card allows a limited number of sessions. Log out other console users.")
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(opts.Term, opts.Height, opts.Width, modes); err != nil {
		session.Close()
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("PTY request on '%s' was refused", c.Host),
			"Check that the account is allowed console access")
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, errors.Wrap(err, "Couldn't attach to the shell's input")
	}

	pr, pw := io.Pipe()
	session.Stdout = pw
	session.Stderr = pw

	if err := session.Shell(); err != nil {
		session.Close()
		pw.Close()
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Couldn't start a shell on '%s'", c.Host),
			"Check that the account is allowed console access")
	}

	s := &Shell{
		client:  c,
		session: session,
		stdin:   stdin,
		stdout:  pr,
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}

	go func() {
		_ = session.Wait()
		pw.Close()
		s.markDone()
	}()

	if opts.KeepaliveInterval > 0 {
		go s.keepalive(opts.KeepaliveInterval, opts.KeepaliveMax)
	}

	return s, nil
}

// keepalive pings the server and drops the connection after maxMissed consecutive
// misses, which ends the shell and closes Done.
func (s *Shell) keepalive(interval time.Duration, maxMissed int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case <-s.stop:
			return
		case <-s.done:
			return
		case <-ticker.C:
			if err := pingWithTimeout(s.client, interval); err != nil {
				missed++
				if missed >= maxMissed {
					emitWarning(fmt.Sprintf("%s stopped answering keepalives, closing connection", s.client.Address))
					s.client.Close()
					return
				}
				continue
			}
			missed = 0
		}
	}
}

func pingWithTimeout(c *Client, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- c.Ping() }()
	select {
	case err := <-errCh:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("keepalive timed out after %s", timeout)
	}
}

func (s *Shell) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Read reads shell output.
func (s *Shell) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

// Write sends keystrokes to the shell.
func (s *Shell) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

// Done is closed once the shell has ended.
func (s *Shell) Done() <-chan struct{} {
	return s.done
}

// Close ends the shell and the underlying connection. Safe to call more than once.
func (s *Shell) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		_ = s.stdin.Close()
		_ = s.session.Close()
		err = s.client.Close()
		_ = s.stdout.Close()
		s.markDone()
	})
	return err
}

// ShellDialer opens a fresh connection and shell on every Dial.
type ShellDialer struct {
	Host    string
	Options DialOptions
	Shell   ShellOptions
}

// Dial connects to the host and starts a shell on it.
func (d *ShellDialer) Dial(ctx context.Context) (Transport, error) {
	client, err := Dial(ctx, d.Host, d.Options)
	if err != nil {
		return nil, err
	}
	shell, err := client.OpenShell(d.Shell)
	if err != nil {
		client.Close()
		return nil, err
	}
	return shell, nil
}
