package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Semantic colors for status indication
const (
	ColorSuccess lipgloss.Color = "2" // Green
	ColorError   lipgloss.Color = "1" // Red
	ColorWarning lipgloss.Color = "3" // Yellow
	ColorInfo    lipgloss.Color = "6" // Cyan
)

// Text colors for content hierarchy
const (
	ColorPrimary lipgloss.Color = "7" // White/default
	ColorMuted   lipgloss.Color = "8" // Gray (bright black)
)

// spinnerColors cycle while a spinner is running.
var spinnerColors = []lipgloss.Color{"6", "4", "5", "2"}

// DisableColors renders every lipgloss style without ANSI color, for
// --no-color and NO_COLOR.
func DisableColors() {
	lipgloss.SetColorProfile(termenv.Ascii)
}
