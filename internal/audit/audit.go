// Package audit appends a daily record of every reading and every error.
//
// Readings go to <dir>/<prefix>_YYYYMMDD.txt and errors to the matching .err
// file. Both are plain text, appended to and never rewritten, so they can be
// tailed or shipped while the monitor runs.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rileyhilliard/upsmon/internal/status"
	"github.com/spf13/afero"
)

// Log writes audit files on a filesystem.
type Log struct {
	fs     afero.Fs
	dir    string
	prefix string

	mu sync.Mutex
}

// New returns a Log writing under dir with the given file name prefix.
func New(fs afero.Fs, dir, prefix string) *Log {
	if dir == "" {
		dir = "."
	}
	if prefix == "" {
		prefix = "upsstatus"
	}
	return &Log{fs: fs, dir: dir, prefix: prefix}
}

// DataPath is the reading file for the day containing t.
func (l *Log) DataPath(t time.Time) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s_%s.txt", l.prefix, t.Format("20060102")))
}

// ErrorPath is the error file for the day containing t.
func (l *Log) ErrorPath(t time.Time) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s_%s.err", l.prefix, t.Format("20060102")))
}

// FormatReading renders one reading line, missing values shown as 0.
func FormatReading(t time.Time, rec *status.Record) string {
	var volts, freq, soc *string
	if rec != nil {
		volts, freq, soc = rec.InputVoltage, rec.InputFrequency, rec.BatterySOC
	}
	return fmt.Sprintf("%s VAC @ %s Hz\t %s %% %s\t%s\n",
		status.OrZero(volts), status.OrZero(freq), status.OrZero(soc),
		t.Format("01/02/2006"), t.Format("15:04:05"))
}

// FormatError renders one error line.
func FormatError(t time.Time, msg string) string {
	return fmt.Sprintf("[ERR] %s : %s\n", t.Format("02/01/2006 15:04:05"), msg)
}

// Reading appends a reading line.
func (l *Log) Reading(t time.Time, rec *status.Record) error {
	return l.append(l.DataPath(t), FormatReading(t, rec))
}

// Note appends a free-form line to the reading file, for events such as the
// operator stopping the monitor.
func (l *Log) Note(t time.Time, msg string) error {
	return l.append(l.DataPath(t), msg+"\n")
}

// Error appends an error line.
func (l *Log) Error(t time.Time, msg string) error {
	return l.append(l.ErrorPath(t), FormatError(t, msg))
}

func (l *Log) append(path, line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := l.fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
