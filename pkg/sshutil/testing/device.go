// Package testing provides a scripted stand-in for a UPS network management
// card's console, usable wherever an sshutil.Transport is expected.
package testing

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/rileyhilliard/upsmon/pkg/sshutil"
)

// DefaultStatus is a detstatus -all response from an online UPS on mains power.
const DefaultStatus = "E000: Success\r\n" +
	"Status of UPS: Online\r\n" +
	"Last Transfer: Automatic Self Test\r\n" +
	"Next Battery Replacement Date: 01/15/2027\r\n" +
	"Battery State Of Charge: 100.0 %\r\n" +
	"Output Voltage: 230.0 VAC\r\n" +
	"Output Frequency: 50.00 Hz\r\n" +
	"Output Watts Percent: 12.0 %\r\n" +
	"Output VA Percent: 14.0 %\r\n" +
	"Output Current: 1.20 A\r\n" +
	"Output Efficiency: 91.0 %\r\n" +
	"Output Energy: 1034.50 kWh\r\n" +
	"Input Voltage: 229.0 VAC\r\n" +
	"Input Frequency: 50.00 Hz\r\n" +
	"Battery Voltage: 54.60 VDC\r\n" +
	"Battery Temperature: 25.0 C, 77.0 F\r\n" +
	"Input Status: Acceptable\r\n"

// BlackoutStatus is the same response with the mains input gone.
const BlackoutStatus = "E000: Success\r\n" +
	"Status of UPS: On Battery\r\n" +
	"Battery State Of Charge: 97.0 %\r\n" +
	"Input Voltage: 0.0 VAC\r\n" +
	"Input Frequency: 0.00 Hz\r\n"

// Script describes how the fake console behaves.
type Script struct {
	// Prompt is printed whenever the console is ready for a command.
	Prompt string
	// Banner is printed before any prompt.
	Banner string
	// AskHostKey prints an OpenSSH style host key question first and hangs up
	// unless the answer is "yes".
	AskHostKey bool
	// Password makes the console ask for a password and hang up on a wrong one.
	Password string
	// Responses maps a command line to its output. Unknown commands get an
	// E101 error, as on the real card.
	Responses map[string]string
	// Sequence, when set for a command, is consumed one entry per call before
	// falling back to Responses.
	Sequence map[string][]string
	// ExitCommand ends the session.
	ExitCommand string
	// SilentAfter stops printing prompts after this many non-empty commands.
	// Zero means never.
	SilentAfter int
	// NoPrompt never prints the ready prompt, stalling any handshake.
	NoPrompt bool
	// NoEcho disables echoing input back.
	NoEcho bool
}

// NewScript returns a script for a password protected card with the default
// prompt and status response.
func NewScript(password string) Script {
	return Script{
		Prompt:      "apc>",
		Banner:      "\r\nAmerican Power Conversion               Network Management Card AOS\r\n",
		Password:    password,
		ExitCommand: "exit",
		Responses: map[string]string{
			"detstatus -all": DefaultStatus,
		},
	}
}

// Device is one connection to the fake console.
type Device struct {
	script Script

	clientR *io.PipeReader // client reads device output
	deviceW *io.PipeWriter
	deviceR *io.PipeReader // device reads client input
	clientW *io.PipeWriter

	done     chan struct{}
	doneOnce sync.Once

	mu       sync.Mutex
	received []string
	commands int
	closed   bool

	// lastCR is only touched by the serve goroutine.
	lastCR bool
}

var _ sshutil.Transport = (*Device)(nil)

// NewDevice starts a console following script.
func NewDevice(script Script) *Device {
	clientR, deviceW := io.Pipe()
	deviceR, clientW := io.Pipe()
	d := &Device{
		script:  script,
		clientR: clientR,
		deviceW: deviceW,
		deviceR: deviceR,
		clientW: clientW,
		done:    make(chan struct{}),
	}
	go d.serve()
	return d
}

// Read returns console output.
func (d *Device) Read(p []byte) (int, error) {
	return d.clientR.Read(p)
}

// Write sends input to the console.
func (d *Device) Write(p []byte) (int, error) {
	return d.clientW.Write(p)
}

// Close ends the connection from the client side.
func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.Hangup()
	return nil
}

// Done is closed when either side ended the connection.
func (d *Device) Done() <-chan struct{} {
	return d.done
}

// Hangup ends the connection from the console side, as a dropped link would.
func (d *Device) Hangup() {
	d.doneOnce.Do(func() {
		close(d.done)
		d.deviceW.Close()
		d.deviceR.Close()
		d.clientW.Close()
	})
}

// Closed reports whether the client called Close.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Received returns every input line the console has read, in order.
func (d *Device) Received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.received))
	copy(out, d.received)
	return out
}

// SetResponse changes the output for a command on a live connection.
func (d *Device) SetResponse(cmd, output string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.script.Responses == nil {
		d.script.Responses = make(map[string]string)
	}
	d.script.Responses[cmd] = output
}

func (d *Device) serve() {
	defer d.Hangup()

	r := bufio.NewReader(d.deviceR)
	s := d.script

	if s.Banner != "" && !d.say(s.Banner) {
		return
	}

	if s.AskHostKey {
		if !d.say("The authenticity of host 'ups (192.0.2.10)' can't be established.\r\n" +
			"RSA key fingerprint is SHA256:fake.\r\n" +
			"Are you sure you want to continue connecting (yes/no)? ") {
			return
		}
		answer, err := d.readLine(r)
		if err != nil || answer != "yes" {
			return
		}
	}

	if s.Password != "" {
		if !d.say("apc@ups's password: ") {
			return
		}
		secret, err := d.readLine(r)
		if err != nil {
			return
		}
		if secret != s.Password {
			d.say("Permission denied, please try again.\r\n")
			return
		}
		d.say("\r\n")
	}

	if !d.prompt() {
		return
	}

	for {
		line, err := d.readLine(r)
		if err != nil {
			return
		}
		if !s.NoEcho && !d.say(line+"\r\n") {
			return
		}
		if s.ExitCommand != "" && line == s.ExitCommand {
			d.say("Bye.\r\n")
			return
		}
		if line == "" {
			if !d.prompt() {
				return
			}
			continue
		}

		d.mu.Lock()
		d.commands++
		silent := s.SilentAfter > 0 && d.commands > s.SilentAfter
		out := d.respond(line)
		d.mu.Unlock()

		if silent {
			continue
		}
		if !d.say(out) || !d.prompt() {
			return
		}
	}
}

// respond must be called with mu held.
func (d *Device) respond(line string) string {
	if seq := d.script.Sequence[line]; len(seq) > 0 {
		d.script.Sequence[line] = seq[1:]
		return seq[0]
	}
	if out, ok := d.script.Responses[line]; ok {
		return out
	}
	return "E101: Command Not Found\r\n"
}

func (d *Device) prompt() bool {
	if d.script.NoPrompt {
		return true
	}
	d.mu.Lock()
	silent := d.script.SilentAfter > 0 && d.commands > d.script.SilentAfter
	d.mu.Unlock()
	if silent {
		return true
	}
	return d.say("\r\n" + d.script.Prompt)
}

func (d *Device) say(text string) bool {
	_, err := d.deviceW.Write([]byte(text))
	return err == nil
}

// readLine reads one line terminated by CR or LF. A LF directly after a CR is
// skipped so either line ending works.
func (d *Device) readLine(r *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		c, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if c == '\n' && b.Len() == 0 && d.lastCR {
			d.lastCR = false
			continue
		}
		if c == '\r' || c == '\n' {
			d.lastCR = c == '\r'
			line := b.String()
			d.mu.Lock()
			d.received = append(d.received, line)
			d.mu.Unlock()
			return line, nil
		}
		d.lastCR = false
		b.WriteByte(c)
	}
}

// Dialer hands out a fresh Device per Dial.
type Dialer struct {
	mu sync.Mutex

	// Script is used for every device created after the failures run out.
	Script Script
	// FailFirst makes the first n dials return Err.
	FailFirst int
	// Err is returned by failing dials; a generic refusal when nil.
	Err error

	dials   int
	devices []*Device
}

// ErrRefused is the default dial failure.
var ErrRefused = errors.New("connection refused")

// Dial returns a new Device or a scripted failure.
func (d *Dialer) Dial(ctx context.Context) (sshutil.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if d.dials <= d.FailFirst {
		if d.Err != nil {
			return nil, d.Err
		}
		return nil, ErrRefused
	}

	script := d.Script
	script.Responses = copyMap(d.Script.Responses)
	script.Sequence = copySeq(d.Script.Sequence)
	dev := NewDevice(script)
	d.devices = append(d.devices, dev)
	return dev, nil
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Devices returns the devices created so far.
func (d *Dialer) Devices() []*Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Device, len(d.devices))
	copy(out, d.devices)
	return out
}

// Last returns the most recent device, or nil.
func (d *Dialer) Last() *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.devices) == 0 {
		return nil
	}
	return d.devices[len(d.devices)-1]
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copySeq(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}
