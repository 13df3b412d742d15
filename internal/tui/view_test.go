package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

const fullReply = "E000: Success\r\n" +
	"Status of UPS: Online\r\n" +
	"Battery State Of Charge: 100.0 %\r\n" +
	"Input Voltage: 229.0 VAC\r\n" +
	"Input Frequency: 50.00 Hz\r\n" +
	"Output Current: 1.20 A\r\n"

func TestView_BeforeFirstReading(t *testing.T) {
	view := newTestModel(nil).View()
	assert.Contains(t, view, "upsmon")
	assert.Contains(t, view, "ups-icarus")
	assert.Contains(t, view, "no reading yet")
	assert.Contains(t, view, "Offline")
	assert.Contains(t, view, "0 VAC @ 0 Hz")
	assert.Contains(t, view, "Waiting for the first reading")
}

func TestView_Reading(t *testing.T) {
	m := newTestModel(nil)
	m, _ = update(t, m, SnapshotMsg(snapshot(fullReply, 0, at)))
	view := m.View()

	assert.Contains(t, view, "running")
	assert.Contains(t, view, "last update 3s ago")
	assert.Contains(t, view, "Online")
	assert.Contains(t, view, "229.0 VAC @ 50.00 Hz")
	assert.Contains(t, view, "100.0 %")
	assert.Contains(t, view, "(0/3) Idle")
	assert.Contains(t, view, "03/07/2026 14:05:09")
}

func TestView_TriggeredRow(t *testing.T) {
	m := newTestModel(nil)
	m, _ = update(t, m, SnapshotMsg(snapshot("Input Voltage: 0.0 VAC\r\n", 3, at)))
	view := m.View()
	assert.Contains(t, view, "(3/3) Triggered")
}

func TestView_FailuresShown(t *testing.T) {
	m := newTestModel(nil)
	snap := snapshot(fullReply, 0, at)
	snap.Alive = false
	snap.Failures = 3
	snap.LinkLost = true
	snap.LastError = "no prompt"
	m, _ = update(t, m, SnapshotMsg(snap))

	view := m.View()
	assert.Contains(t, view, "Link lost. 3 failed polls: no prompt")
	assert.Contains(t, view, "Offline")
}

func TestView_DetailOnTallTerminal(t *testing.T) {
	m := newTestModel(nil)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 50})
	m, _ = update(t, m, SnapshotMsg(snapshot(fullReply, 0, at)))

	view := m.View()
	assert.Contains(t, view, "Details")
	assert.Contains(t, view, "Output current")
	assert.Contains(t, view, "1.20 A")
	assert.Contains(t, view, "UPS online")
}

func TestView_PausedHeader(t *testing.T) {
	m := newTestModel(nil)
	m, _ = update(t, m, keyMsg("p"))
	assert.Contains(t, m.View(), "paused")
}

func TestFormatRow(t *testing.T) {
	tests := []struct {
		name string
		row  Row
		want string
	}{
		{
			name: "idle",
			row:  Row{Time: at, Online: true, Voltage: "118.0", Battery: "100.0", Counter: 0, Threshold: 3},
			want: "03/07/2026 14:05:09  Online   118.0 VAC      100.0 %    (0/3)    Idle",
		},
		{
			name: "triggered",
			row:  Row{Time: at, Online: true, Voltage: "0", Battery: "97.0", Counter: 3, Threshold: 3, Triggered: true},
			want: "03/07/2026 14:05:09  Online   0 VAC          97.0 %     (3/3)    Triggered",
		},
		{
			name: "offline",
			row:  Row{Time: at, Voltage: "0", Battery: "0", Counter: 1, Threshold: 3},
			want: "03/07/2026 14:05:09  Offline  0 VAC          0 %        (1/3)    Idle",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRow(tt.row))
		})
	}
}

func TestRowStyle(t *testing.T) {
	assert.Equal(t, RowIdleStyle.GetForeground(), RowStyle(0).GetForeground())
	assert.Equal(t, RowAlarmStyle.GetForeground(), RowStyle(1).GetForeground())
	assert.Equal(t, RowAlarmStyle.GetForeground(), RowStyle(3).GetForeground())
}

func TestBatteryColor(t *testing.T) {
	assert.Equal(t, ColorHealthy, BatteryColor(100))
	assert.Equal(t, ColorWarning, BatteryColor(50))
	assert.Equal(t, ColorCritical, BatteryColor(10))
}

func TestSectionLines(t *testing.T) {
	assert.Contains(t, SectionHeader("UPS", "Ready", 40), "UPS")
	assert.Contains(t, SectionHeader("UPS", "Ready", 40), "Ready")
	assert.Equal(t, "╰"+strings.Repeat("─", 8)+"╯", SectionFooter(10))
	assert.Contains(t, SectionContentLine("hello", 20), "hello")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abcdef", 3))
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "abc", truncate("abc", 0))
}
