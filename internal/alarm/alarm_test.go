package alarm

import (
	"testing"

	"github.com/rileyhilliard/upsmon/internal/status"
	"github.com/stretchr/testify/assert"
)

func reading(raw string) *status.Record {
	return status.Parse(raw)
}

var (
	mains    = reading("Input Voltage: 118.0 VAC\r\nBattery State Of Charge: 100.0 %\r\n")
	blackout = reading("Input Voltage: 0.0 VAC\r\n")
	noVolts  = reading("Battery State Of Charge: 96.0 %\r\n")
)

func TestNew(t *testing.T) {
	assert.Equal(t, State{Threshold: 3}, New(3))
	assert.Equal(t, State{Threshold: 5}, New(5))
	assert.Equal(t, DefaultThreshold, New(0).Threshold)
	assert.Equal(t, DefaultThreshold, New(-2).Threshold)
}

func TestStep_NormalReadingKeepsCounterAtZero(t *testing.T) {
	s, trig := Step(New(3), mains)
	assert.Equal(t, 0, s.Counter)
	assert.False(t, trig)
	assert.False(t, s.Triggered)
}

func TestStep_ThreeBadReadingsTriggerOnce(t *testing.T) {
	s := New(3)
	var counters []int
	var triggers []bool

	for i := 0; i < 3; i++ {
		var trig bool
		s, trig = Step(s, blackout)
		counters = append(counters, s.Counter)
		triggers = append(triggers, trig)
	}

	assert.Equal(t, []int{1, 2, 3}, counters)
	assert.Equal(t, []bool{false, false, true}, triggers)
	assert.True(t, s.Triggered)

	s, trig := Step(s, mains)
	assert.Equal(t, 0, s.Counter)
	assert.False(t, trig)
	assert.False(t, s.Triggered)
}

// The reading after a trigger resets the counter even if power is still out.
// A sustained outage therefore triggers once per climb: 1,2,3(trigger),0,1,2,3(trigger).
func TestStep_FourthBadReadingResets(t *testing.T) {
	s := New(3)
	var counters []int
	var fired int

	for i := 0; i < 8; i++ {
		var trig bool
		s, trig = Step(s, blackout)
		counters = append(counters, s.Counter)
		if trig {
			fired++
		}
	}

	assert.Equal(t, []int{1, 2, 3, 0, 1, 2, 3, 0}, counters)
	assert.Equal(t, 2, fired)
}

func TestStep_MissingVoltageCountsAsZero(t *testing.T) {
	s, trig := Step(New(3), noVolts)
	assert.Equal(t, 1, s.Counter)
	assert.False(t, trig)
	assert.Equal(t, "0", status.OrZero(noVolts.InputVoltage))
}

func TestStep_UnparsableVoltageCountsAsZero(t *testing.T) {
	bad := "1.2.3"
	s, _ := Step(New(3), &status.Record{InputVoltage: &bad})
	assert.Equal(t, 1, s.Counter)
}

func TestStep_NoReadingLeavesStateUntouched(t *testing.T) {
	s, _ := Step(New(3), blackout)
	s, _ = Step(s, blackout)

	held, trig := Step(s, nil)
	assert.Equal(t, s, held)
	assert.False(t, trig)

	// The climb continues where it left off.
	s, trig = Step(held, blackout)
	assert.Equal(t, 3, s.Counter)
	assert.True(t, trig)
}

func TestStep_NoReadingClearsTriggeredFlag(t *testing.T) {
	s := State{Counter: 3, Threshold: 3, Triggered: true}
	held, trig := Step(s, nil)
	assert.Equal(t, 3, held.Counter)
	assert.False(t, held.Triggered)
	assert.False(t, trig)
}

func TestStep_RecoveryMidClimb(t *testing.T) {
	s, _ := Step(New(3), blackout)
	s, _ = Step(s, blackout)
	s, trig := Step(s, mains)
	assert.Equal(t, 0, s.Counter)
	assert.False(t, trig)
}

func TestStep_BoundaryVoltage(t *testing.T) {
	tests := []struct {
		volts string
		want  int
	}{
		{"0.99", 1},
		{"1.0", 0},
		{"1", 0},
		{"230.0", 0},
	}

	for _, tt := range tests {
		v := tt.volts
		s, _ := Step(New(3), &status.Record{InputVoltage: &v})
		assert.Equal(t, tt.want, s.Counter, tt.volts)
	}
}

func TestStep_IsPure(t *testing.T) {
	prev := State{Counter: 1, Threshold: 3}
	a, ta := Step(prev, blackout)
	b, tb := Step(prev, blackout)

	assert.Equal(t, a, b)
	assert.Equal(t, ta, tb)
	assert.Equal(t, State{Counter: 1, Threshold: 3}, prev)
}

func TestStep_ThresholdOne(t *testing.T) {
	s, trig := Step(New(1), blackout)
	assert.True(t, trig)
	assert.Equal(t, 1, s.Counter)

	s, trig = Step(s, blackout)
	assert.False(t, trig)
	assert.Equal(t, 0, s.Counter)
}

func TestState_Active(t *testing.T) {
	assert.False(t, New(3).Active())
	assert.True(t, State{Counter: 2, Threshold: 3}.Active())
}
