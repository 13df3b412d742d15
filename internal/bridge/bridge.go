// Package bridge forwards the newest row of a directory of whitespace
// separated data files to sink channels.
//
// The data files are written by another program, one per day. Each poll
// picks the most recently modified file matching the pattern, reads its
// final bytes and takes the last line. When the timestamp column differs
// from the previous poll, the configured integer columns are put to their
// channels. The first poll only records the timestamp.
package bridge

import (
	"context"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/rileyhilliard/upsmon/internal/logger"
	"github.com/rileyhilliard/upsmon/internal/sink"
	"github.com/spf13/afero"
)

// Column maps a zero-based field index to a sink channel.
type Column struct {
	Index   int    `mapstructure:"index" yaml:"index"`
	Channel string `mapstructure:"channel" yaml:"channel"`
}

// Options configure a Bridge.
type Options struct {
	Dir             string
	Pattern         string
	Interval        time.Duration
	TailBytes       int64
	TimestampColumn int
	Columns         []Column
	// Watch adds fsnotify wake-ups on top of the interval ticker. Only
	// meaningful on the OS filesystem.
	Watch bool
}

// DefaultOptions match the HV data-file layout.
func DefaultOptions() Options {
	return Options{
		Dir:       ".",
		Pattern:   "*.txt",
		Interval:  5 * time.Second,
		TailBytes: 1024,
		Columns: []Column{
			{Index: 2, Channel: "icarus_cathodehv_monitor/volt"},
			{Index: 3, Channel: "icarus_cathodehv_monitor/current"},
			{Index: 4, Channel: "icarus_cathodehv_monitor_ww/volt"},
			{Index: 5, Channel: "icarus_cathodehv_monitor_ew/volt"},
			{Index: 6, Channel: "icarus_cathodehv_monitor_we/volt"},
			{Index: 7, Channel: "icarus_cathodehv_monitor_ee/volt"},
			{Index: 8, Channel: "icarus_cathodehv_set/volt"},
			{Index: 9, Channel: "icarus_cathodehv_set/current"},
		},
	}
}

// Bridge tails the latest data file.
type Bridge struct {
	fs   afero.Fs
	sink sink.Sink
	log  logger.Logger
	opts Options

	mu        sync.Mutex
	file      string
	timestamp string
	primed    bool
}

// New creates a bridge reading from fs. Zero option fields take defaults.
func New(fs afero.Fs, s sink.Sink, log logger.Logger, opts Options) *Bridge {
	def := DefaultOptions()
	if opts.Dir == "" {
		opts.Dir = def.Dir
	}
	if opts.Pattern == "" {
		opts.Pattern = def.Pattern
	}
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.TailBytes <= 0 {
		opts.TailBytes = def.TailBytes
	}
	if log == nil {
		log = logger.Noop()
	}
	return &Bridge{fs: fs, sink: s, log: log, opts: opts}
}

// File returns the data file used by the last poll.
func (b *Bridge) File() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file
}

// Timestamp returns the last timestamp seen.
func (b *Bridge) Timestamp() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.timestamp
}

// Poll reads the latest row and forwards it if it is new. It reports whether
// anything was forwarded.
func (b *Bridge) Poll() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	latest, err := LatestFile(b.fs, b.opts.Dir, b.opts.Pattern)
	if err != nil {
		return false, err
	}
	if latest != b.file {
		if b.file != "" {
			b.log.Info("a new data file is created: %s (was %s)", latest, b.file)
		}
		b.file = latest
	}

	line, err := LastLine(b.fs, latest, b.opts.TailBytes)
	if err != nil {
		return false, err
	}
	fields := strings.Fields(line)
	if b.opts.TimestampColumn >= len(fields) {
		return false, nil
	}

	ts := fields[b.opts.TimestampColumn]
	if b.primed && ts == b.timestamp {
		return false, nil
	}

	first := !b.primed
	b.primed = true
	b.timestamp = ts
	if first {
		b.log.Info("initial record: %s", line)
		return false, nil
	}

	b.log.Info("updated record: %s", line)
	b.forward(fields)
	return true, nil
}

func (b *Bridge) forward(fields []string) {
	for _, col := range b.opts.Columns {
		if col.Index >= len(fields) {
			b.log.Warn("column %d missing from row, %s not updated", col.Index, col.Channel)
			continue
		}
		v, err := strconv.Atoi(fields[col.Index])
		if err != nil {
			b.log.Warn("column %d is not an integer (%q), %s not updated", col.Index, fields[col.Index], col.Channel)
			continue
		}
		if err := b.sink.Put(col.Channel, v); err != nil {
			b.log.Error("put %s: %v", col.Channel, err)
		}
	}
}

// Run polls on every interval and, when watching, on every write to a
// matching file. It returns when ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if b.opts.Watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig, "Can't watch "+b.opts.Dir, "")
		}
		defer w.Close()
		if err := w.Add(b.opts.Dir); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Can't watch "+b.opts.Dir,
				"Check that bridge.dir exists and is readable")
		}
		events = w.Events
		watchErrs = w.Errors
	}

	b.pollAndLog()

	ticker := time.NewTicker(b.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.pollAndLog()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				if match, _ := filepath.Match(b.opts.Pattern, filepath.Base(ev.Name)); match {
					b.pollAndLog()
				}
			}
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			b.log.Warn("watch error: %v", err)
		}
	}
}

func (b *Bridge) pollAndLog() {
	if _, err := b.Poll(); err != nil {
		b.log.Warn("%s", errors.Summary(err))
	}
}

// LatestFile returns the matching file with the newest modification time.
// Ties go to the lexically greater name.
func LatestFile(fs afero.Fs, dir, pattern string) (string, error) {
	matches, err := afero.Glob(fs, filepath.Join(dir, pattern))
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig, "Bad bridge file pattern "+pattern, "")
	}

	type candidate struct {
		path string
		mod  time.Time
	}
	var files []candidate
	for _, m := range matches {
		info, err := fs.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, candidate{m, info.ModTime()})
	}
	if len(files) == 0 {
		return "", errors.New(errors.ErrExec,
			"No data files matching "+filepath.Join(dir, pattern),
			"Check bridge.dir and bridge.pattern")
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].mod.Equal(files[j].mod) {
			return files[i].path > files[j].path
		}
		return files[i].mod.After(files[j].mod)
	})
	return files[0].path, nil
}

// LastLine returns the last non-empty line within the final tail bytes of path.
func LastLine(fs afero.Fs, path string, tail int64) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrExec, "Can't open "+path, "")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrExec, "Can't stat "+path, "")
	}
	if offset := info.Size() - tail; offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return "", errors.WrapWithCode(err, errors.ErrExec, "Can't seek "+path, "")
		}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrExec, "Can't read "+path, "")
	}

	lines := strings.Split(strings.TrimRight(string(data), "\r\n\t "), "\n")
	return strings.TrimSpace(lines[len(lines)-1]), nil
}
