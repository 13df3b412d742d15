package monitor

import (
	"time"

	"github.com/rileyhilliard/upsmon/internal/alarm"
	"github.com/rileyhilliard/upsmon/internal/session"
	"github.com/rileyhilliard/upsmon/internal/status"
)

// Control is an operator request delivered to the loop between ticks.
type Control int

const (
	ControlStart Control = iota
	ControlPause
	ControlQuit
)

// String returns a human-readable label for the control.
func (c Control) String() string {
	switch c {
	case ControlStart:
		return "start"
	case ControlPause:
		return "pause"
	case ControlQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Snapshot is the loop state after one tick. It is a value: consumers may keep
// it without synchronization. Record is never modified after parsing.
type Snapshot struct {
	Record    *status.Record `json:"record"`
	Alive     bool           `json:"alive"`
	State     session.State  `json:"-"`
	Alarm     alarm.State    `json:"alarm"`
	Triggered bool           `json:"triggered"`
	Running   bool           `json:"running"`
	Failures  int            `json:"failures"`
	LinkLost  bool           `json:"link_lost"`
	PolledAt  time.Time      `json:"polled_at"`
	LastError string         `json:"last_error,omitempty"`
}

// Online reports whether the session was usable when the snapshot was taken.
func (s Snapshot) Online() bool {
	return s.Alive && !s.LinkLost
}

// StateName is the session state as text.
func (s Snapshot) StateName() string {
	return s.State.String()
}
