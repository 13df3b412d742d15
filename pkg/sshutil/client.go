package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rileyhilliard/upsmon/internal/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Client wraps an SSH connection with additional metadata.
type Client struct {
	*ssh.Client
	Host    string // The original host/alias used to connect
	Address string // The resolved address (host:port)
}

// DialOptions controls how a connection to the UPS management card is made.
type DialOptions struct {
	// User overrides the user from the host string and ~/.ssh/config.
	User string
	// Port is used when neither the host string nor ~/.ssh/config name one.
	Port int
	// Password is offered through both password and keyboard-interactive auth.
	// Network management cards usually accept nothing else.
	Password string
	// Timeout bounds the TCP connect and the SSH handshake.
	Timeout time.Duration
	// KnownHosts is the known_hosts file used for host key verification.
	// Empty means ~/.ssh/known_hosts.
	KnownHosts string
	// AcceptNewHostKeys records unknown host keys instead of rejecting them.
	// A changed key is always rejected.
	AcceptNewHostKeys bool
}

// WarningHandler is a function that handles warning messages.
// If nil, warnings are printed to stderr via log.Printf.
var WarningHandler func(message string)

// emitWarning sends a warning through the configured handler or falls back to log.Printf.
func emitWarning(message string) {
	if WarningHandler != nil {
		WarningHandler(message)
	} else {
		log.Printf("Warning: %s", message)
	}
}

// Dial establishes an SSH connection to the specified host.
// The host can be:
//   - An SSH config alias (e.g., "ups")
//   - A hostname (e.g., "192.168.1.50")
//   - A user@hostname (e.g., "apc@192.168.1.50")
//   - A hostname:port (e.g., "192.168.1.50:2222")
//
// Connection settings are resolved from ~/.ssh/config when available.
func Dial(ctx context.Context, host string, opts DialOptions) (*Client, error) {
	settings := resolveSSHSettings(host)
	settings.apply(opts)

	config, err := buildSSHConfig(settings, opts)
	if err != nil {
		var upsErr *errors.Error
		if stderrors.As(err, &upsErr) {
			return nil, err
		}
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Couldn't set up SSH for '%s'", host),
			"Check the known_hosts path and that it is writable")
	}

	address := settings.address()
	dialer := net.Dialer{Timeout: opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Can't reach '%s' at %s", host, address),
			suggestionForDialError(err))
	}

	if opts.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(opts.Timeout))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()

		var hostKeyErr *HostKeyMismatchError
		if stderrors.As(err, &hostKeyErr) {
			return nil, errors.New(errors.ErrSSH,
				hostKeyErr.Error(),
				hostKeyErr.Suggestion())
		}

		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("SSH handshake with '%s' didn't go through", host),
			suggestionForHandshakeError(err, opts.Password != ""))
	}

	// The deadline only guards the handshake; the shell stays open indefinitely.
	_ = conn.SetDeadline(time.Time{})

	return &Client{
		Client:  ssh.NewClient(sshConn, chans, reqs),
		Host:    host,
		Address: address,
	}, nil
}

// Close closes the SSH connection.
func (c *Client) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

// Ping sends an OpenSSH keepalive request and waits for the reply.
func (c *Client) Ping() error {
	_, _, err := c.SendRequest("keepalive@openssh.com", true, nil)
	return err
}

// buildSSHConfig creates an SSH client config with authentication methods.
// Password based methods come first since that is what management cards speak;
// agent and key files follow for hosts that accept them.
func buildSSHConfig(settings *sshSettings, opts DialOptions) (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	if opts.Password != "" {
		authMethods = append(authMethods,
			ssh.Password(opts.Password),
			ssh.KeyboardInteractive(passwordChallenge(opts.Password)))
	}

	if agentAuth := sshAgentAuth(); agentAuth != nil {
		authMethods = append(authMethods, agentAuth)
	}

	if settings.identityFile != "" {
		if keyAuth, err := keyFileAuth(settings.identityFile); err == nil {
			authMethods = append(authMethods, keyAuth)
		}
	}

	if len(authMethods) == 0 {
		return nil, errors.New(errors.ErrSSH,
			"No SSH auth methods available",
			"Set ups.password (or UPSMON_UPS_PASSWORD) to the management card password")
	}

	knownHostsPath := opts.KnownHosts
	if knownHostsPath == "" {
		knownHostsPath = filepath.Join(homeDir(), ".ssh", "known_hosts")
	}
	hostKeyCallback, err := createHostKeyCallback(expandPath(knownHostsPath), opts.AcceptNewHostKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}

	return &ssh.ClientConfig{
		User:            settings.user,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         opts.Timeout,
	}, nil
}

// passwordChallenge answers every keyboard-interactive question with the
// password. Cards ask a single "Password:" question.
func passwordChallenge(password string) ssh.KeyboardInteractiveChallenge {
	return func(_, _ string, questions []string, _ []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = password
		}
		return answers, nil
	}
}

// agentConn holds the reusable SSH agent connection.
var (
	agentConn     net.Conn
	agentClient   agent.ExtendedAgent
	agentConnOnce sync.Once
)

// sshAgentAuth returns an auth method using the SSH agent if available.
// Returns nil if the agent has no keys loaded.
func sshAgentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}

	agentConnOnce.Do(func() {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return
		}
		agentConn = conn
		agentClient = agent.NewClient(conn)
	})

	if agentClient == nil {
		return nil
	}

	signers, err := agentClient.Signers()
	if err != nil || len(signers) == 0 {
		return nil
	}

	return ssh.PublicKeysCallback(agentClient.Signers)
}

// CloseAgent closes the SSH agent connection if one is open.
func CloseAgent() {
	if agentConn != nil {
		agentConn.Close()
	}
}

// keyFileAuth returns an auth method using an unencrypted private key file.
func keyFileAuth(keyPath string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, err
	}

	return ssh.PublicKeys(signer), nil
}

func suggestionForDialError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") {
		return "Is SSH enabled on the management card? Check its Network > Console settings."
	}
	if strings.Contains(errStr, "no route to host") || strings.Contains(errStr, "network is unreachable") {
		return "Can't route to the UPS. Check your network connection."
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "i/o timeout") {
		return "Connection timed out. The card might be rebooting or blocked by a firewall."
	}
	return "Make sure the UPS is reachable: ping <host>"
}

func suggestionForHandshakeError(err error, havePassword bool) string {
	errStr := err.Error()
	if strings.Contains(errStr, "unable to authenticate") || strings.Contains(errStr, "no supported methods") {
		if !havePassword {
			return "No password configured. Set ups.password or UPSMON_UPS_PASSWORD."
		}
		return "Auth failed. Check ups.user and ups.password."
	}
	if strings.Contains(errStr, "host key") {
		return "Host key issue. Check the entry for this card in known_hosts."
	}
	if strings.Contains(errStr, "handshake failed") || strings.Contains(errStr, "no common algorithm") {
		return "The card may only offer legacy algorithms. Try updating its firmware."
	}
	return "Something went wrong during SSH setup. Try: ssh <user>@<host>"
}

// HostKeyMismatchError provides helpful context when known_hosts verification fails.
type HostKeyMismatchError struct {
	Hostname     string
	ReceivedType string
	KnownHosts   string
	Want         []knownhosts.KnownKey
}

func (e *HostKeyMismatchError) Error() string {
	return fmt.Sprintf("host key mismatch for %s: server sent %s key", e.Hostname, e.ReceivedType)
}

// Suggestion returns actionable steps to fix the host key mismatch.
func (e *HostKeyMismatchError) Suggestion() string {
	host := e.Hostname
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	var wantTypes []string
	for _, k := range e.Want {
		wantTypes = append(wantTypes, k.Key.Type())
	}
	wantStr := "unknown"
	if len(wantTypes) > 0 {
		wantStr = strings.Join(wantTypes, ", ")
	}

	return fmt.Sprintf(
		"The card's host key doesn't match what's in known_hosts.\n"+
			"  Known types: %s\n"+
			"  Card sent:   %s\n\n"+
			"  If the card was replaced or re-keyed, remove the old entry:\n"+
			"    ssh-keygen -R %s -f %s",
		wantStr, e.ReceivedType, host, e.KnownHosts)
}

// knownHostsMu serializes appends to known_hosts across concurrent dials.
var knownHostsMu sync.Mutex

// createHostKeyCallback wraps the knownhosts callback with trust-on-first-use.
// Unknown hosts are appended to the file when acceptNew is set. A host whose
// key differs from a recorded one is always rejected.
func createHostKeyCallback(knownHostsPath string, acceptNew bool) (ssh.HostKeyCallback, error) {
	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		dir := filepath.Dir(knownHostsPath)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
		if err := os.WriteFile(knownHostsPath, []byte{}, 0600); err != nil {
			return nil, fmt.Errorf("failed to create known_hosts: %w", err)
		}
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, err
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := callback(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if !stderrors.As(err, &keyErr) {
			return err
		}
		if len(keyErr.Want) > 0 {
			return &HostKeyMismatchError{
				Hostname:     hostname,
				ReceivedType: key.Type(),
				KnownHosts:   knownHostsPath,
				Want:         keyErr.Want,
			}
		}
		if !acceptNew {
			return fmt.Errorf("host key for %s is not in %s and accepting new keys is disabled", hostname, knownHostsPath)
		}

		emitWarning(fmt.Sprintf("Permanently added %s (%s) to %s", hostname, key.Type(), knownHostsPath))
		return appendKnownHost(knownHostsPath, hostname, remote, key)
	}, nil
}

func appendKnownHost(path, hostname string, remote net.Addr, key ssh.PublicKey) error {
	knownHostsMu.Lock()
	defer knownHostsMu.Unlock()

	addresses := []string{knownhosts.Normalize(hostname)}
	if remote != nil {
		if ip := knownhosts.Normalize(remote.String()); ip != addresses[0] {
			addresses = append(addresses, ip)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	var line bytes.Buffer
	line.WriteString(knownhosts.Line(addresses, key))
	line.WriteByte('\n')
	_, err = f.Write(line.Bytes())
	return err
}
