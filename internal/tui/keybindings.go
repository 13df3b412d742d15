package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rileyhilliard/upsmon/internal/monitor"
)

// keyMap defines the dashboard key bindings.
type keyMap struct {
	Start key.Binding
	Pause key.Binding
	Quit  key.Binding
	Help  key.Binding
	Close key.Binding
}

var keys = keyMap{
	Start: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "start monitoring"),
	),
	Pause: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "pause monitoring"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+q", "ctrl+c"),
		key.WithHelp("q / ctrl+q", "quit"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "toggle help"),
	),
	Close: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "close help"),
	),
}

// ShortHelp is shown in the footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Pause, k.Quit, k.Help}
}

// FullHelp is shown in the help overlay.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Start, k.Pause, k.Quit}, {k.Help, k.Close}}
}

// HandleKeyMsg processes keyboard input and returns the command to run.
// Returns true if the key was handled, false otherwise.
func (m *Model) HandleKeyMsg(msg tea.KeyMsg) (bool, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
		return true, nil

	case m.showHelp && key.Matches(msg, keys.Close):
		m.showHelp = false
		return true, nil

	case key.Matches(msg, keys.Quit):
		m.quitting = true
		m.send(monitor.ControlQuit)
		return true, tea.Quit

	case key.Matches(msg, keys.Start):
		m.running = true
		m.send(monitor.ControlStart)
		return true, nil

	case key.Matches(msg, keys.Pause):
		m.running = false
		m.send(monitor.ControlPause)
		return true, nil
	}

	return false, nil
}

// send delivers a control without blocking the UI. Controls are dropped
// while the queue is full.
func (m *Model) send(c monitor.Control) {
	if m.controls == nil {
		return
	}
	select {
	case m.controls <- c:
	default:
	}
}
