package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rileyhilliard/upsmon/internal/alarm"
	"github.com/rileyhilliard/upsmon/internal/monitor"
	"github.com/rileyhilliard/upsmon/internal/session"
	"github.com/rileyhilliard/upsmon/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 3, 7, 14, 5, 9, 0, time.Local)

func newTestModel(controls chan monitor.Control) Model {
	return NewModel(Options{
		Host:      "ups-icarus",
		Controls:  controls,
		Autostart: true,
		Now:       func() time.Time { return at.Add(3 * time.Second) },
	})
}

func snapshot(raw string, counter int, polled time.Time) monitor.Snapshot {
	a := alarm.New(3)
	a.Counter = counter
	return monitor.Snapshot{
		Record:    status.Parse(raw),
		Alive:     true,
		State:     session.Ready,
		Alarm:     a,
		Triggered: counter == 3,
		Running:   true,
		PolledAt:  polled,
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "ctrl+q":
		return tea.KeyMsg{Type: tea.KeyCtrlQ}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_KeysSendControls(t *testing.T) {
	tests := []struct {
		key     string
		want    monitor.Control
		quits   bool
		running bool
	}{
		{"s", monitor.ControlStart, false, true},
		{"p", monitor.ControlPause, false, false},
		{"q", monitor.ControlQuit, true, true},
		{"ctrl+q", monitor.ControlQuit, true, true},
		{"ctrl+c", monitor.ControlQuit, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			controls := make(chan monitor.Control, 1)
			m, cmd := update(t, newTestModel(controls), keyMsg(tt.key))

			select {
			case got := <-controls:
				assert.Equal(t, tt.want, got)
			default:
				t.Fatal("no control sent")
			}
			assert.Equal(t, tt.quits, m.Quitting())
			assert.Equal(t, tt.running, m.Running())
			if tt.quits {
				require.NotNil(t, cmd)
				assert.Equal(t, tea.Quit(), cmd())
				assert.Empty(t, m.View())
			}
		})
	}
}

func TestModel_FullControlQueueDoesNotBlock(t *testing.T) {
	controls := make(chan monitor.Control)
	m := newTestModel(controls)
	assert.NotPanics(t, func() { update(t, m, keyMsg("p")) })

	m = newTestModel(nil)
	assert.NotPanics(t, func() { update(t, m, keyMsg("s")) })
}

func TestModel_HelpToggle(t *testing.T) {
	m := newTestModel(nil)
	m, _ = update(t, m, keyMsg("?"))
	assert.Contains(t, m.View(), "Keyboard Shortcuts")
	assert.Contains(t, m.View(), "start monitoring")

	m, _ = update(t, m, keyMsg("esc"))
	assert.NotContains(t, m.View(), "Keyboard Shortcuts")

	m, _ = update(t, m, keyMsg("?"))
	m, _ = update(t, m, keyMsg("?"))
	assert.NotContains(t, m.View(), "Keyboard Shortcuts")
}

func TestModel_UnknownKeyIgnored(t *testing.T) {
	controls := make(chan monitor.Control, 1)
	m, cmd := update(t, newTestModel(controls), keyMsg("x"))
	assert.Nil(t, cmd)
	assert.Empty(t, controls)
	assert.False(t, m.Quitting())
}

func TestModel_SnapshotAddsRowOncePerReading(t *testing.T) {
	m := newTestModel(nil)

	snap := snapshot("Input Voltage: 118.0 VAC\r\nBattery State Of Charge: 100.0 %\r\n", 0, at)
	m, _ = update(t, m, SnapshotMsg(snap))
	m, _ = update(t, m, SnapshotMsg(snap))
	assert.Len(t, m.history.Rows(0), 1)

	// A paused tick repeats the last reading without a new poll time.
	paused := snap
	paused.Running = false
	m, _ = update(t, m, SnapshotMsg(paused))
	assert.Len(t, m.history.Rows(0), 1)
	assert.False(t, m.Running())

	m, _ = update(t, m, SnapshotMsg(snapshot("Input Voltage: 0.0 VAC\r\n", 1, at.Add(5*time.Second))))
	rows := m.history.Rows(0)
	require.Len(t, rows, 2)
	assert.Equal(t, "0.0", rows[0].Voltage)
	assert.Equal(t, 1, rows[0].Counter)
	assert.Equal(t, "118.0", rows[1].Voltage)
	assert.Equal(t, []float64{118, 0}, m.history.Voltage(10))
}

func TestModel_SnapshotWithoutRecord(t *testing.T) {
	m := newTestModel(nil)
	m, _ = update(t, m, SnapshotMsg(monitor.Snapshot{Failures: 2, LastError: "timed out"}))
	assert.Empty(t, m.history.Rows(0))
	assert.Equal(t, -1, m.SecondsSinceUpdate())
}

func TestModel_WindowSize(t *testing.T) {
	m, _ := update(t, newTestModel(nil), tea.WindowSizeMsg{Width: 120, Height: 50})
	assert.Equal(t, 120, m.width)
	assert.Equal(t, 50, m.height)
}

func TestModel_ClockReschedules(t *testing.T) {
	m := newTestModel(nil)
	assert.NotNil(t, m.Init())
	_, cmd := update(t, m, clockMsg(at))
	assert.NotNil(t, cmd)
}

func TestModel_SecondsSinceUpdate(t *testing.T) {
	m := newTestModel(nil)
	m, _ = update(t, m, SnapshotMsg(snapshot("Input Voltage: 118.0 VAC\r\n", 0, at)))
	assert.Equal(t, 3, m.SecondsSinceUpdate())
}
