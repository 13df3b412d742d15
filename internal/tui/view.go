package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/upsmon/internal/status"
)

const (
	defaultWidth   = 80
	sparklineWidth = 30
	batteryBarSize = 20
	timeLayout     = "01/02/2006 15:04:05"
)

// renderDashboard renders the complete dashboard view.
func (m Model) renderDashboard() string {
	width := m.contentWidth()

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderStatus(width))
	b.WriteString("\n")
	if m.snap.Record != nil && m.height >= 40 {
		b.WriteString(m.renderDetail(width))
		b.WriteString("\n")
	}
	b.WriteString(m.renderRows(width))
	b.WriteString("\n")
	b.WriteString(FooterStyle.Render(m.help.View(keys)))
	return b.String()
}

func (m Model) contentWidth() int {
	if m.width <= 0 {
		return defaultWidth
	}
	return m.width
}

// renderHeader renders the title, run state and reading age.
func (m Model) renderHeader() string {
	title := lipgloss.NewStyle().
		Foreground(ColorAccent).
		Bold(true).
		Render("upsmon")

	state := PausedStyle.Render("paused")
	if m.running {
		state = OnlineStyle.Render("running")
	}

	var updateText string
	switch age := m.SecondsSinceUpdate(); {
	case age < 0:
		updateText = "no reading yet"
	case age == 0:
		updateText = "last update just now"
	default:
		updateText = fmt.Sprintf("last update %ds ago", age)
	}

	stats := LabelStyle.Render(fmt.Sprintf(" | %s | ", m.host)) + state +
		LabelStyle.Render(" | "+updateText)

	return HeaderStyle.Render(title + stats)
}

// renderStatus renders the live status section.
func (m Model) renderStatus(width int) string {
	snap := m.snap

	network := OfflineStyle.Render(StatusOffline + " Offline")
	if snap.Online() {
		network = OnlineStyle.Render(StatusOnline + " Online")
	}

	var volts, freq, soc *string
	if snap.Record != nil {
		volts, freq, soc = snap.Record.InputVoltage, snap.Record.InputFrequency, snap.Record.BatterySOC
	}

	input := ValueStyle.Render(fmt.Sprintf("%s VAC @ %s Hz", status.OrZero(volts), status.OrZero(freq)))
	if spark := RenderSparkline(m.history.Voltage(sparklineWidth), sparklineWidth, 0, ColorGraph); spark != "" {
		input += "  " + spark
	}

	battery := ValueStyle.Render(fmt.Sprintf("%s %%", status.OrZero(soc))) + "  " +
		ProgressBar(batteryBarSize, status.Float(soc))

	alarmText := fmt.Sprintf("(%d/%d) %s", snap.Alarm.Counter, snap.Alarm.Threshold, triggerLabel(snap.Triggered))
	alarm := RowStyle(snap.Alarm.Counter).Render(alarmText)

	lines := []string{
		SectionHeader("UPS", snap.StateName(), width),
		SectionContentLine(LabelStyle.Render("Network    ")+network, width),
		SectionContentLine(LabelStyle.Render("AC input   ")+input, width),
		SectionContentLine(LabelStyle.Render("Battery    ")+battery, width),
		SectionContentLine(LabelStyle.Render("Alarm      ")+alarm, width),
	}
	if snap.Failures > 0 {
		msg := fmt.Sprintf("%d failed polls: %s", snap.Failures, snap.LastError)
		if snap.LinkLost {
			msg = "Link lost. " + msg
		}
		lines = append(lines, SectionContentLine(OfflineStyle.Render(truncate(msg, width-4)), width))
	}
	lines = append(lines, SectionFooter(width))

	return strings.Join(lines, "\n")
}

// renderRows renders the reading table, newest first, as many rows as fit.
func (m Model) renderRows(width int) string {
	limit := 0
	if m.height > 0 {
		limit = m.height - 14
		if limit < 3 {
			limit = 3
		}
	}

	rows := m.history.Rows(limit)

	lines := []string{RowHeaderStyle.Render(
		fmt.Sprintf("%-19s  %-7s  %-13s  %-9s  %-7s  %s", "TIME", "NETWORK", "AC INPUT", "BATTERY", "ALARM", "RAMP DOWN"))}
	if len(rows) == 0 {
		lines = append(lines, LabelStyle.Render("Waiting for the first reading..."))
	}
	for _, r := range rows {
		lines = append(lines, RowStyle(r.Counter).Render(truncate(FormatRow(r), width)))
	}
	return strings.Join(lines, "\n")
}

// FormatRow renders one reading row as plain text.
func FormatRow(r Row) string {
	network := "Offline"
	if r.Online {
		network = "Online"
	}
	return fmt.Sprintf("%-19s  %-7s  %-13s  %-9s  %-7s  %s",
		r.Time.Format(timeLayout),
		network,
		r.Voltage+" VAC",
		r.Battery+" %",
		fmt.Sprintf("(%d/%d)", r.Counter, r.Threshold),
		triggerLabel(r.Triggered))
}

func triggerLabel(triggered bool) string {
	if triggered {
		return "Triggered"
	}
	return "Idle"
}

func truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if len(r) > width {
		r = r[:width]
	}
	return string(r)
}
