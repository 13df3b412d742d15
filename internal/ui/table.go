package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// TableColumn defines a table column with name and width.
type TableColumn struct {
	Title string
	Width int
}

// NewTable creates a Bubbles table with the CLI styling and no selection.
func NewTable(columns []TableColumn, rows []table.Row) table.Model {
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		cols[i] = table.Column{Title: c.Title, Width: c.Width}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1), // +1 for header
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorMuted).
		BorderBottom(true).
		Bold(true).
		Foreground(ColorPrimary)
	s.Cell = s.Cell.Foreground(ColorPrimary)
	// Nothing is focused, so the selected row must look like the others.
	s.Selected = s.Cell

	t.SetStyles(s)
	return t
}

// RenderSimpleTable renders a non-interactive table string. Columns with a
// zero width are sized to their widest cell.
func RenderSimpleTable(columns []TableColumn, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	sized := make([]TableColumn, len(columns))
	copy(sized, columns)
	for i := range sized {
		if sized[i].Width > 0 {
			continue
		}
		w := lipgloss.Width(sized[i].Title)
		for _, row := range rows {
			if i < len(row) {
				if cw := lipgloss.Width(row[i]); cw > w {
					w = cw
				}
			}
		}
		sized[i].Width = w
	}

	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}

	return NewTable(sized, tableRows).View()
}

// CheckRow is one line of a step-by-step check report.
type CheckRow struct {
	Status     string // "pass", "warn", "fail"
	Message    string
	Suggestion string
}

// RenderChecks renders check results, one line each, with suggestions
// under anything that did not pass.
func RenderChecks(title string, rows []CheckRow) string {
	if len(rows) == 0 {
		return ""
	}

	successStyle := lipgloss.NewStyle().Foreground(ColorSuccess)
	errorStyle := lipgloss.NewStyle().Foreground(ColorError)
	warnStyle := lipgloss.NewStyle().Foreground(ColorWarning)
	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)

	var b strings.Builder
	b.WriteString(headerStyle.Render(title) + "\n")
	for _, row := range rows {
		var icon string
		switch row.Status {
		case "pass":
			icon = successStyle.Render(SymbolSuccess)
		case "warn":
			icon = warnStyle.Render(SymbolSkipped)
		case "fail":
			icon = errorStyle.Render(SymbolFail)
		default:
			icon = mutedStyle.Render(SymbolPending)
		}

		b.WriteString("  " + icon + " " + row.Message + "\n")
		if row.Suggestion != "" && row.Status != "pass" {
			b.WriteString("    " + mutedStyle.Render(row.Suggestion) + "\n")
		}
	}
	return b.String()
}
