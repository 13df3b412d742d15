package monitor

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rileyhilliard/upsmon/internal/alarm"
	"github.com/rileyhilliard/upsmon/internal/audit"
	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/rileyhilliard/upsmon/internal/logger"
	"github.com/rileyhilliard/upsmon/internal/session"
	"github.com/rileyhilliard/upsmon/internal/sink"
	"github.com/rileyhilliard/upsmon/internal/status"
)

// Channel names for values that do not come from the status reply.
const (
	ChannelAlarmCounter = "alarm_counter"
	ChannelRampDown     = "rampdown"
	ChannelLink         = "link"
)

// numericFields are the status fields forwarded to the sink.
var numericFields = []string{
	"input_voltage",
	"input_frequency",
	"battery_soc",
	"battery_voltage",
	"battery_temp_c",
	"battery_temp_f",
	"output_voltage",
	"output_frequency",
	"output_current",
	"output_watts_percent",
	"output_va_percent",
	"output_efficiency",
	"output_energy",
}

// DefaultChannels maps every published value to a sink channel of the same name.
func DefaultChannels() map[string]string {
	m := make(map[string]string, len(numericFields)+3)
	for _, name := range numericFields {
		m[name] = name
	}
	m[ChannelAlarmCounter] = ChannelAlarmCounter
	m[ChannelRampDown] = ChannelRampDown
	m[ChannelLink] = ChannelLink
	return m
}

// Options control the loop cadence and what it publishes.
type Options struct {
	// Command is sent to the console every tick.
	Command string
	// Interval is the wait after a successful or paused tick.
	Interval time.Duration
	// ExpectTimeout bounds the resync and the command round trip.
	ExpectTimeout time.Duration
	// FailureDelay is the wait after a failed tick.
	FailureDelay time.Duration
	// LivenessFailures consecutive failures mark the link lost.
	LivenessFailures int
	// Threshold is the alarm threshold.
	Threshold int
	// Autostart begins polling without waiting for ControlStart.
	Autostart bool
	// Channels maps value names to sink channels. Values without an entry
	// are not published.
	Channels map[string]string
}

// DefaultOptions returns the standard polling settings.
func DefaultOptions() Options {
	return Options{
		Command:          "detstatus -all",
		Interval:         5 * time.Second,
		ExpectTimeout:    15 * time.Second,
		FailureDelay:     2 * time.Second,
		LivenessFailures: 3,
		Threshold:        alarm.DefaultThreshold,
		Autostart:        true,
		Channels:         DefaultChannels(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Command == "" {
		o.Command = d.Command
	}
	if o.Interval <= 0 {
		o.Interval = d.Interval
	}
	if o.ExpectTimeout <= 0 {
		o.ExpectTimeout = d.ExpectTimeout
	}
	if o.FailureDelay <= 0 {
		o.FailureDelay = d.FailureDelay
	}
	if o.LivenessFailures <= 0 {
		o.LivenessFailures = d.LivenessFailures
	}
	if o.Channels == nil {
		o.Channels = d.Channels
	}
	return o
}

// Deps are the collaborators a Loop drives. Only Manager is required.
type Deps struct {
	Manager  *session.Manager
	Sink     sink.Sink
	RampDown sink.RampDown
	Audit    *audit.Log
	Logger   logger.Logger
	// Publish receives every snapshot on the loop goroutine. It must not block.
	Publish func(Snapshot)
	Store   *Store
	// Controls is read between ticks and while waiting.
	Controls <-chan Control
	Now      func() time.Time
}

// Loop polls one UPS. Its methods must be called from a single goroutine.
type Loop struct {
	deps     Deps
	opts     Options
	log      logger.Logger
	controls <-chan Control
	pending  []Control

	sess      *session.Session
	alarm     alarm.State
	running   bool
	failures  int
	linkLost  bool
	record    *status.Record
	triggered bool
	polledAt  time.Time
	lastErr   string
}

// NewLoop creates a loop. Missing optional dependencies are replaced with
// no-ops.
func NewLoop(deps Deps, opts Options) *Loop {
	opts = opts.withDefaults()
	if deps.Logger == nil {
		deps.Logger = logger.Noop()
	}
	if deps.RampDown == nil {
		deps.RampDown = sink.NoopRampDown{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Loop{
		deps:     deps,
		opts:     opts,
		log:      deps.Logger,
		controls: deps.Controls,
		alarm:    alarm.New(opts.Threshold),
		running:  opts.Autostart,
	}
}

// Run ticks until the operator quits or ctx ends. The session is closed on
// every exit path. Cancellation is not reported as an error.
func (l *Loop) Run(ctx context.Context) error {
	defer l.closeSession()

	if err := l.deps.RampDown.Reset(); err != nil {
		l.log.Warn("couldn't reset ramp-down output: %v", err)
	}
	l.put(ChannelRampDown, 0)

	for {
		wait, quit := l.Tick(ctx)
		if quit {
			return nil
		}
		if err := l.wait(ctx, wait); err != nil {
			l.stop(l.deps.Now(), "Monitoring stopped.")
			return nil
		}
	}
}

// Tick runs one poll and returns how long to wait before the next one, or
// quit when the operator asked to stop.
func (l *Loop) Tick(ctx context.Context) (wait time.Duration, quit bool) {
	now := l.deps.Now()
	l.triggered = false

	defer func() {
		if r := recover(); r != nil {
			l.recovered(now, r)
			wait, quit = l.opts.FailureDelay, false
		}
		l.publish()
	}()

	if l.drainControls() {
		l.stop(now, "User stopped monitoring.")
		return 0, true
	}

	if !l.running {
		return l.opts.Interval, false
	}

	if !l.sess.IsAlive() {
		if err := l.reconnect(ctx); err != nil {
			if ctx.Err() != nil || stderrors.Is(err, errInterrupted) {
				return 0, false
			}
			// Each attempt was already counted as it failed.
			l.log.Warn("%s", errors.Summary(err))
			return l.opts.FailureDelay, false
		}
	}

	if err := l.sess.EnsureReady(l.opts.ExpectTimeout); err != nil {
		l.fail(now, err)
		return l.opts.FailureDelay, false
	}

	out, err := l.sess.Execute(l.opts.Command, l.opts.ExpectTimeout)
	if err != nil {
		l.fail(now, err)
		return l.opts.FailureDelay, false
	}

	l.observe(now, status.Parse(out))
	return l.opts.Interval, false
}

func (l *Loop) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case c, ok := <-l.controls:
			if !ok {
				l.controls = nil
				continue
			}
			l.pending = append(l.pending, c)
			return nil
		}
	}
}

// drainControls applies queued controls and reports whether quit was asked.
func (l *Loop) drainControls() bool {
drain:
	for {
		select {
		case c, ok := <-l.controls:
			if !ok {
				l.controls = nil
				break drain
			}
			l.pending = append(l.pending, c)
		default:
			break drain
		}
	}

	pending := l.pending
	l.pending = nil
	for _, c := range pending {
		switch c {
		case ControlStart:
			if !l.running {
				l.log.Info("monitoring started")
			}
			l.running = true
		case ControlPause:
			if l.running {
				l.log.Info("monitoring paused")
			}
			l.running = false
		case ControlQuit:
			return true
		}
	}
	return false
}

// errInterrupted ends a reconnect early because the operator paused or quit.
var errInterrupted = stderrors.New("reconnect interrupted by operator")

// reconnect replaces the session. Every failed attempt counts as a failure
// and publishes a snapshot on the spot, so a long backoff still surfaces a
// lost link. A pause or quit arriving meanwhile cuts the backoff short.
func (l *Loop) reconnect(ctx context.Context) error {
	if l.sess != nil {
		l.log.Warn("session dead, reconnecting")
		l.closeSession()
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	collect := l.watchControls(cancel)

	s, err := l.deps.Manager.Connect(cctx, session.WithAttemptHook(
		func(attempt int, err error, _ time.Duration) {
			l.fail(l.deps.Now(), err)
			l.publish()
		}))
	l.pending = append(l.pending, collect()...)
	if err != nil {
		if ctx.Err() == nil && cctx.Err() != nil {
			l.log.Info("reconnect interrupted")
			return errInterrupted
		}
		return err
	}
	l.sess = s
	l.log.Info("connected, prompt ready")
	return nil
}

// watchControls reads controls on a helper goroutine while the loop is
// blocked in Connect. Pause and quit call interrupt. The returned function
// stops the watcher and hands back everything it read, in order.
func (l *Loop) watchControls(interrupt context.CancelFunc) func() []Control {
	if l.controls == nil {
		return func() []Control { return nil }
	}
	ch := l.controls
	stop := make(chan struct{})
	got := make(chan []Control, 1)

	go func() {
		var read []Control
		defer func() { got <- read }()
		for {
			select {
			case <-stop:
				return
			case c, ok := <-ch:
				if !ok {
					return
				}
				read = append(read, c)
				if c == ControlPause || c == ControlQuit {
					interrupt()
				}
			}
		}
	}()

	return func() []Control {
		close(stop)
		return <-got
	}
}

// fail counts a failed round trip. No reading is produced and the alarm
// state is left alone.
func (l *Loop) fail(now time.Time, err error) {
	l.failures++
	l.lastErr = errors.Summary(err)
	l.log.Error("poll failed (%d in a row): %s", l.failures, l.lastErr)
	l.auditError(now, l.lastErr)

	if l.failures >= l.opts.LivenessFailures && !l.linkLost {
		l.linkLost = true
		msg := fmt.Sprintf("Link to UPS lost after %d consecutive failures", l.failures)
		l.log.Error("%s", msg)
		l.auditError(now, msg)
		l.put(ChannelLink, 0)
	}
}

func (l *Loop) observe(now time.Time, rec *status.Record) {
	if l.linkLost {
		l.log.Info("link to UPS restored")
	}
	l.failures = 0
	l.linkLost = false
	l.lastErr = ""

	next, triggered := alarm.Step(l.alarm, rec)
	l.alarm = next
	l.triggered = triggered
	l.record = rec
	l.polledAt = now

	// Control channels take integers; fractions are truncated.
	values := rec.Numeric()
	for _, name := range numericFields {
		if v, ok := values[name]; ok {
			l.put(name, int(v))
		}
	}
	l.put(ChannelAlarmCounter, next.Counter)
	l.put(ChannelRampDown, boolInt(triggered))
	l.put(ChannelLink, 1)

	switch {
	case triggered:
		l.log.Error("alarm counter reached the threshold (%d/%d), sending ramp-down signal",
			next.Counter, next.Threshold)
		if err := l.deps.RampDown.Signal(); err != nil {
			l.log.Error("ramp-down signal failed: %v", err)
			l.auditError(now, errors.Summary(err))
		}
	case next.Active():
		l.log.Warn("no AC input power, alarm counter (%d/%d)", next.Counter, next.Threshold)
	}

	if l.deps.Audit != nil {
		if err := l.deps.Audit.Reading(now, rec); err != nil {
			l.log.Warn("couldn't write audit line: %v", err)
		}
	}

	network := "Offline"
	if l.sess.IsAlive() {
		network = "Online"
	}
	l.log.Info("[UPS %s] Network: %s ACinput: %s VAC Battery: %s %% Alarm counter: %d Ramp down trigger: %s",
		now.Format("01/02/2006 15:04:05"), network,
		status.OrZero(rec.InputVoltage), status.OrZero(rec.BatterySOC),
		next.Counter, triggerLabel(triggered))
}

func (l *Loop) recovered(now time.Time, r interface{}) {
	l.log.Error("recovered from panic during poll: %v\n%s", r, debug.Stack())
	l.closeSession()
	l.fail(now, errors.New(errors.ErrExec, fmt.Sprintf("Unexpected error occurred: %v", r), ""))
}

// stop closes the session and leaves a note in the audit file.
func (l *Loop) stop(now time.Time, note string) {
	l.log.Info("stopping monitor")
	l.closeSession()
	l.running = false
	if l.deps.Audit != nil {
		if err := l.deps.Audit.Note(now, note); err != nil {
			l.log.Warn("couldn't write audit line: %v", err)
		}
	}
}

func (l *Loop) closeSession() {
	if l.sess == nil {
		return
	}
	if err := l.sess.Close(); err != nil {
		l.log.Debug("session close: %v", err)
	}
	l.sess = nil
	l.log.Info("SSH session closed")
}

func (l *Loop) put(name string, value int) {
	if l.deps.Sink == nil {
		return
	}
	channel := l.opts.Channels[name]
	if channel == "" {
		return
	}
	if err := l.deps.Sink.Put(channel, value); err != nil {
		l.log.Debug("sink %s: %v", channel, err)
	}
}

func (l *Loop) auditError(now time.Time, msg string) {
	if l.deps.Audit == nil {
		return
	}
	if err := l.deps.Audit.Error(now, msg); err != nil {
		l.log.Warn("couldn't write audit error: %v", err)
	}
}

func (l *Loop) snapshot() Snapshot {
	return Snapshot{
		Record:    l.record,
		Alive:     l.sess.IsAlive(),
		State:     l.sess.State(),
		Alarm:     l.alarm,
		Triggered: l.triggered,
		Running:   l.running,
		Failures:  l.failures,
		LinkLost:  l.linkLost,
		PolledAt:  l.polledAt,
		LastError: l.lastErr,
	}
}

func (l *Loop) publish() {
	snap := l.snapshot()
	if l.deps.Store != nil {
		l.deps.Store.Set(snap)
	}
	if l.deps.Publish != nil {
		l.deps.Publish(snap)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func triggerLabel(triggered bool) string {
	if triggered {
		return "Triggered"
	}
	return "Idle"
}
