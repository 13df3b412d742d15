// Package tui implements the terminal dashboard for the UPS monitor.
//
// The dashboard follows the Bubble Tea Model-Update-View pattern. It never
// talks to the UPS: snapshots arrive from the monitor loop as SnapshotMsg
// values (sent with tea.Program.Send) and operator keys go back to the loop
// as monitor.Control values on a channel.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rileyhilliard/upsmon/internal/monitor"
	"github.com/rileyhilliard/upsmon/internal/status"
)

// SnapshotMsg carries the loop state after a tick.
type SnapshotMsg monitor.Snapshot

// clockMsg refreshes the "last update" age in the header.
type clockMsg time.Time

const clockInterval = time.Second

// Model is the Bubble Tea model for the dashboard.
type Model struct {
	host     string
	snap     monitor.Snapshot
	hasSnap  bool
	history  *History
	controls chan<- monitor.Control
	help     help.Model
	now      func() time.Time

	width    int
	height   int
	running  bool
	showHelp bool
	quitting bool
}

// Options configure a dashboard.
type Options struct {
	// Host is shown in the header.
	Host string
	// Controls receives start, pause and quit requests.
	Controls chan<- monitor.Control
	// Autostart is the initial running state shown before the first snapshot.
	Autostart bool
	// HistorySize bounds the reading table and sparklines.
	HistorySize int
	Now         func() time.Time
}

// NewModel creates a dashboard model.
func NewModel(opts Options) Model {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return Model{
		host:     opts.Host,
		history:  NewHistory(opts.HistorySize),
		controls: opts.Controls,
		help:     help.New(),
		now:      now,
		running:  opts.Autostart,
	}
}

// Init starts the header clock.
func (m Model) Init() tea.Cmd {
	return m.clockCmd()
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if handled, cmd := m.HandleKeyMsg(msg); handled {
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case SnapshotMsg:
		m.applySnapshot(monitor.Snapshot(msg))

	case clockMsg:
		return m, m.clockCmd()
	}

	return m, nil
}

// applySnapshot stores the snapshot and records a row when it carries a new
// reading.
func (m *Model) applySnapshot(snap monitor.Snapshot) {
	isNew := snap.Record != nil && (!m.hasSnap || !snap.PolledAt.Equal(m.snap.PolledAt))
	m.snap = snap
	m.hasSnap = true
	m.running = snap.Running

	if !isNew {
		return
	}
	m.history.Push(Row{
		Time:      snap.PolledAt,
		Online:    snap.Online(),
		Voltage:   status.OrZero(snap.Record.InputVoltage),
		Battery:   status.OrZero(snap.Record.BatterySOC),
		Counter:   snap.Alarm.Counter,
		Threshold: snap.Alarm.Threshold,
		Triggered: snap.Triggered,
	}, snap.Record)
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.showHelp {
		return m.renderHelpOverlay()
	}
	return m.renderDashboard()
}

func (m Model) clockCmd() tea.Cmd {
	return tea.Tick(clockInterval, func(t time.Time) tea.Msg {
		return clockMsg(t)
	})
}

// Running reports whether monitoring is active as far as the dashboard knows.
func (m Model) Running() bool {
	return m.running
}

// Quitting reports whether the operator asked to quit.
func (m Model) Quitting() bool {
	return m.quitting
}

// SecondsSinceUpdate returns the age of the latest reading, or -1 before the first.
func (m Model) SecondsSinceUpdate() int {
	if !m.hasSnap || m.snap.PolledAt.IsZero() {
		return -1
	}
	return int(m.now().Sub(m.snap.PolledAt).Seconds())
}
