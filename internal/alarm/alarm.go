// Package alarm decides when lost mains power has lasted long enough to
// ramp down the equipment behind the UPS.
package alarm

import "github.com/rileyhilliard/upsmon/internal/status"

// DefaultThreshold is how many consecutive readings without input voltage
// trigger a ramp-down.
const DefaultThreshold = 3

// MinVoltage is the input voltage below which mains is considered lost.
const MinVoltage = 1.0

// State is the alarm counter carried from one reading to the next.
type State struct {
	Counter   int `json:"counter"`
	Threshold int `json:"threshold"`
	// Triggered is true only for the step that crossed the threshold.
	Triggered bool `json:"triggered"`
}

// New returns an idle state. A threshold below 1 uses DefaultThreshold.
func New(threshold int) State {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return State{Threshold: threshold}
}

// Active reports whether at least one bad reading is being counted.
func (s State) Active() bool {
	return s.Counter != 0
}

// Step advances the state by one reading and reports whether the ramp-down
// should fire now. A nil reading (no successful poll) changes nothing.
//
// The trigger fires once, on the reading that brings Counter to Threshold.
// The following reading always resets Counter to 0, even if voltage is
// still missing, and the climb starts over from there.
func Step(prev State, rec *status.Record) (State, bool) {
	next := prev
	next.Triggered = false

	if rec == nil {
		return next, false
	}

	if prev.Counter >= prev.Threshold {
		next.Counter = 0
		return next, false
	}

	if status.Float(rec.InputVoltage) < MinVoltage {
		next.Counter = prev.Counter + 1
		next.Triggered = next.Counter == prev.Threshold
		return next, next.Triggered
	}

	next.Counter = 0
	return next, false
}
