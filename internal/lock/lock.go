// Package lock keeps two upsmon processes from driving the same card.
//
// Network management cards accept a single console session at a time, so a
// second poller would keep knocking the first one off. The lock is a
// directory created with mkdir (atomic on every filesystem we care about)
// holding an info.json that names the holder. The holder refreshes it while
// running; a lock nobody has refreshed for longer than the stale threshold is
// taken over.
package lock

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/spf13/afero"
)

// ErrLocked is the cause of the error returned when another live process
// holds the lock. Check for it with errors.Is.
var ErrLocked = stderrors.New("lock is held by another process")

// Options control acquisition.
type Options struct {
	// Stale is how long a lock may go unrefreshed before it is taken over.
	Stale time.Duration
	// Command names what the holder is doing, for the error message.
	Command string
	Now     func() time.Time
}

// Lock represents an acquired console lock.
type Lock struct {
	Dir  string    // The lock directory path
	Info *LockInfo // Info about the lock holder (us)

	fs       afero.Fs
	now      func() time.Time
	mu       sync.Mutex
	released bool
}

// Path returns the lock directory for host inside dir.
func Path(dir, host string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, host)
	return filepath.Join(dir, fmt.Sprintf("upsmon-%s.lock", name))
}

// TryAcquire takes the lock for host without waiting. A live holder yields a
// LOCK error naming it; a stale one is removed and the lock taken.
func TryAcquire(fs afero.Fs, dir, host string, opts Options) (*Lock, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	lockDir := Path(dir, host)
	infoFile := filepath.Join(lockDir, "info.json")

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrLock,
			"Can't create the lock directory "+dir,
			"Check lock.dir (or audit.dir) and its permissions")
	}

	info := NewLockInfo(opts.Command, now())

	// Two rounds: the second follows removal of a stale lock.
	for round := 0; round < 2; round++ {
		err := fs.Mkdir(lockDir, 0o755)
		if err == nil {
			l := &Lock{Dir: lockDir, Info: info, fs: fs, now: now}
			if err := l.write(); err != nil {
				_ = fs.RemoveAll(lockDir)
				return nil, err
			}
			return l, nil
		}
		if !os.IsExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrLock,
				"Can't create the lock "+lockDir,
				"Check lock.dir (or audit.dir) and its permissions")
		}

		holder, stale := inspect(fs, lockDir, infoFile, now(), opts.Stale)
		if !stale {
			return nil, errors.WrapWithCode(ErrLocked, errors.ErrLock,
				fmt.Sprintf("Another upsmon is already talking to %s", host),
				fmt.Sprintf("Held by %s. Stop it first, or remove %s if that process is gone.", holder, lockDir))
		}
		if err := fs.RemoveAll(lockDir); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrLock,
				"Can't remove the stale lock "+lockDir,
				"Remove it by hand")
		}
	}

	return nil, errors.WrapWithCode(ErrLocked, errors.ErrLock,
		fmt.Sprintf("Another upsmon is already talking to %s", host),
		"Another process took the lock while a stale one was being removed. Try again.")
}

// inspect describes the current holder and whether its lock is stale. A
// directory without a readable info file is judged by its own age, since its
// owner may still be writing it.
func inspect(fs afero.Fs, lockDir, infoFile string, now time.Time, staleAfter time.Duration) (string, bool) {
	data, err := afero.ReadFile(fs, infoFile)
	if err == nil {
		if info, perr := ParseLockInfo(data); perr == nil {
			return info.String(), staleAfter > 0 && info.Age(now) > staleAfter
		}
	}

	st, err := fs.Stat(lockDir)
	if err != nil {
		// Gone in the meantime; try again.
		return "unknown", true
	}
	return "unknown", staleAfter > 0 && now.Sub(st.ModTime()) > staleAfter
}

func (l *Lock) write() error {
	data, err := l.Info.Marshal()
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrLock, "Failed to serialize lock info", "")
	}
	if err := afero.WriteFile(l.fs, filepath.Join(l.Dir, "info.json"), data, 0o644); err != nil {
		return errors.WrapWithCode(err, errors.ErrLock,
			"Failed to write lock info file",
			"Check disk space and permissions on "+l.Dir)
	}
	return nil
}

// Refresh records that the holder is still alive.
func (l *Lock) Refresh() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	l.Info.Refreshed = l.now()
	return l.write()
}

// Keep refreshes the lock every interval until ctx ends.
func (l *Lock) Keep(ctx context.Context, interval time.Duration) {
	if l == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = l.Refresh()
		}
	}
}

// Release removes the lock if it is still ours. Safe to call more than once
// and on a nil Lock.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	l.released = true

	data, err := afero.ReadFile(l.fs, filepath.Join(l.Dir, "info.json"))
	if err == nil {
		if current, perr := ParseLockInfo(data); perr == nil && !l.Info.Same(current) {
			// Someone took it over after we went quiet; leave theirs alone.
			return nil
		}
	}

	if err := l.fs.RemoveAll(l.Dir); err != nil {
		return errors.WrapWithCode(err, errors.ErrLock,
			"Failed to remove lock "+l.Dir,
			"Remove it by hand")
	}
	return nil
}
