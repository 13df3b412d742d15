package lock

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// LockInfo contains metadata about who holds a lock.
type LockInfo struct {
	User      string    `json:"user"`
	Hostname  string    `json:"hostname"`
	Started   time.Time `json:"started"`
	Refreshed time.Time `json:"refreshed"`
	PID       int       `json:"pid"`
	Command   string    `json:"command,omitempty"`
}

// NewLockInfo creates a LockInfo for this process.
func NewLockInfo(command string, now time.Time) *LockInfo {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	user := os.Getenv("USER")
	if user == "" {
		user = "unknown"
	}

	return &LockInfo{
		User:      user,
		Hostname:  hostname,
		Started:   now,
		Refreshed: now,
		PID:       os.Getpid(),
		Command:   command,
	}
}

// Age returns how long ago the holder last refreshed the lock.
func (i *LockInfo) Age(now time.Time) time.Duration {
	last := i.Refreshed
	if last.IsZero() {
		last = i.Started
	}
	return now.Sub(last)
}

// Same reports whether both describe the same holder.
func (i *LockInfo) Same(other *LockInfo) bool {
	return other != nil &&
		i.PID == other.PID &&
		i.Hostname == other.Hostname &&
		i.Started.Equal(other.Started)
}

// Marshal serializes the LockInfo to JSON.
func (i *LockInfo) Marshal() ([]byte, error) {
	return json.Marshal(i)
}

// ParseLockInfo deserializes JSON data into a LockInfo.
func ParseLockInfo(data []byte) (*LockInfo, error) {
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// String returns a human-readable description of who holds the lock.
func (i *LockInfo) String() string {
	s := i.User + "@" + i.Hostname + " (pid " + strconv.Itoa(i.PID)
	if i.Command != "" {
		s += ", upsmon " + i.Command
	}
	return s + ", since " + i.Started.Format("2006-01-02 15:04:05") + ")"
}
