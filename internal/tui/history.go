package tui

import (
	"time"

	"github.com/rileyhilliard/upsmon/internal/status"
)

// DefaultHistorySize is the default number of readings kept for sparklines
// and the reading table.
const DefaultHistorySize = 60

// Row is one successful reading as shown in the reading table.
type Row struct {
	Time      time.Time
	Online    bool
	Voltage   string
	Battery   string
	Counter   int
	Threshold int
	Triggered bool
}

// History keeps recent readings. It is owned by the Bubble Tea model and
// only touched from Update.
type History struct {
	size    int
	voltage *ringBuffer
	battery *ringBuffer
	rows    []Row
}

// ringBuffer is a fixed-size circular buffer for float64 values.
type ringBuffer struct {
	data  []float64
	head  int
	count int
	size  int
}

// NewHistory creates a history with the given capacity.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{
		size:    size,
		voltage: newRingBuffer(size),
		battery: newRingBuffer(size),
	}
}

// Push records a reading. Rows are kept newest first.
func (h *History) Push(row Row, rec *status.Record) {
	if rec != nil {
		h.voltage.push(status.Float(rec.InputVoltage))
		h.battery.push(status.Float(rec.BatterySOC))
	}

	h.rows = append([]Row{row}, h.rows...)
	if len(h.rows) > h.size {
		h.rows = h.rows[:h.size]
	}
}

// Voltage returns the last count input voltages, oldest first.
func (h *History) Voltage(count int) []float64 {
	return h.voltage.getLast(count)
}

// Battery returns the last count charge percentages, oldest first.
func (h *History) Battery(count int) []float64 {
	return h.battery.getLast(count)
}

// Rows returns up to count rows, newest first.
func (h *History) Rows(count int) []Row {
	if count <= 0 || count > len(h.rows) {
		count = len(h.rows)
	}
	return h.rows[:count]
}

// Count returns the number of readings stored.
func (h *History) Count() int {
	return h.voltage.count
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{
		data: make([]float64, size),
		size: size,
	}
}

func (r *ringBuffer) push(value float64) {
	r.data[r.head] = value
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// getLast returns the last count values in chronological order (oldest first).
func (r *ringBuffer) getLast(count int) []float64 {
	if count <= 0 || r.count == 0 {
		return nil
	}
	if count > r.count {
		count = r.count
	}

	result := make([]float64, count)

	// head points to the next write position, so the most recent value is at head-1
	start := (r.head - count + r.size) % r.size
	for i := 0; i < count; i++ {
		result[i] = r.data[(start+i)%r.size]
	}
	return result
}
