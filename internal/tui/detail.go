package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var detailLabelStyle = LabelStyle.Width(18)

// renderDetail lists every field of the latest reading, two per line when
// the terminal is wide enough.
func (m Model) renderDetail(width int) string {
	rec := m.snap.Record
	fields := rec.Fields()

	cells := make([]string, 0, len(fields))
	for _, f := range fields {
		cells = append(cells, detailLabelStyle.Render(f.Label())+ValueStyle.Render(f.Display()))
	}

	perLine := 1
	colWidth := width - 4
	if width >= 100 {
		perLine = 2
		colWidth = (width - 4) / 2
	}

	online := "unknown"
	if rec.Online != nil {
		online = "offline"
		if *rec.Online {
			online = "online"
		}
	}

	lines := []string{SectionHeader("Details", fmt.Sprintf("UPS %s", online), width)}
	for i := 0; i < len(cells); i += perLine {
		var b strings.Builder
		for j := i; j < i+perLine && j < len(cells); j++ {
			cell := cells[j]
			if j < i+perLine-1 {
				if pad := colWidth - lipgloss.Width(cell); pad > 0 {
					cell += strings.Repeat(" ", pad)
				}
			}
			b.WriteString(cell)
		}
		lines = append(lines, SectionContentLine(b.String(), width))
	}
	lines = append(lines, SectionFooter(width))
	return strings.Join(lines, "\n")
}
