package sink

import (
	"fmt"

	"github.com/rileyhilliard/upsmon/internal/errors"
	"github.com/spf13/afero"
)

// FlagFile is a ramp-down output read by the slow-control software: the file
// holds "0" while idle and "1" once ramp-down is requested.
type FlagFile struct {
	fs   afero.Fs
	path string
}

// NewFlagFile returns a flag file at path on fs.
func NewFlagFile(fs afero.Fs, path string) *FlagFile {
	return &FlagFile{fs: fs, path: path}
}

// Path returns the file location.
func (f *FlagFile) Path() string {
	return f.path
}

// Reset writes "0".
func (f *FlagFile) Reset() error {
	return f.write("0\n")
}

// Signal writes "1".
func (f *FlagFile) Signal() error {
	return f.write("1\n")
}

func (f *FlagFile) write(content string) error {
	if err := afero.WriteFile(f.fs, f.path, []byte(content), 0644); err != nil {
		return errors.WrapWithCode(err, errors.ErrSink,
			fmt.Sprintf("Couldn't write ramp-down flag %s", f.path),
			"Check rampdown.flag_file points to a writable location")
	}
	return nil
}

// Raised reports whether the file currently requests ramp-down.
func (f *FlagFile) Raised() (bool, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		return false, err
	}
	return len(data) > 0 && data[0] == '1', nil
}
