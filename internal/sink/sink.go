// Package sink forwards live values to the process-control system.
//
// Values are published fire-and-forget: the monitor never waits on the control
// system, and a failed Put is logged by the caller rather than retried.
package sink

import (
	"sort"
	"sync"
)

// Sink receives integer values for named control channels.
type Sink interface {
	Put(channel string, value int) error
	Close() error
}

// RampDown raises the protective ramp-down signal.
type RampDown interface {
	// Reset clears the signal, typically at startup.
	Reset() error
	// Signal raises it.
	Signal() error
}

// NoopRampDown is used when no ramp-down output is configured.
type NoopRampDown struct{}

func (NoopRampDown) Reset() error  { return nil }
func (NoopRampDown) Signal() error { return nil }

// Memory keeps every value it is given. Useful for dry runs and tests.
type Memory struct {
	mu      sync.Mutex
	history map[string][]int
	closed  bool
}

// NewMemory returns an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{history: make(map[string][]int)}
}

// Put records value for channel.
func (m *Memory) Put(channel string, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[channel] = append(m.history[channel], value)
	return nil
}

// Close marks the sink closed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Values returns every value put to channel, oldest first.
func (m *Memory) Values(channel string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.history[channel]...)
}

// Last returns the latest value for channel.
func (m *Memory) Last(channel string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.history[channel]
	if len(v) == 0 {
		return 0, false
	}
	return v[len(v)-1], true
}

// Channels returns the channels that received at least one value, sorted.
func (m *Memory) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.history))
	for ch := range m.history {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Closed reports whether Close was called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
