package audit

import (
	"testing"
	"time"

	"github.com/rileyhilliard/upsmon/internal/status"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2026, 3, 7, 14, 5, 9, 0, time.Local)

func TestPaths(t *testing.T) {
	l := New(afero.NewMemMapFs(), "/var/log/ups", "upsstatus_v4")
	assert.Equal(t, "/var/log/ups/upsstatus_v4_20260307.txt", l.DataPath(at))
	assert.Equal(t, "/var/log/ups/upsstatus_v4_20260307.err", l.ErrorPath(at))

	d := New(afero.NewMemMapFs(), "", "")
	assert.Equal(t, "upsstatus_20260307.txt", d.DataPath(at))
}

func TestFormatReading(t *testing.T) {
	rec := status.Parse("Input Voltage: 118.0 VAC\r\nInput Frequency: 60.00 Hz\r\nBattery State Of Charge: 100.0 %\r\n")
	assert.Equal(t, "118.0 VAC @ 60.00 Hz\t 100.0 % 03/07/2026\t14:05:09\n", FormatReading(at, rec))
}

func TestFormatReading_MissingFieldsAreZero(t *testing.T) {
	assert.Equal(t, "0 VAC @ 0 Hz\t 0 % 03/07/2026\t14:05:09\n", FormatReading(at, status.Parse("")))
	assert.Equal(t, "0 VAC @ 0 Hz\t 0 % 03/07/2026\t14:05:09\n", FormatReading(at, nil))
}

func TestFormatError(t *testing.T) {
	assert.Equal(t, "[ERR] 07/03/2026 14:05:09 : command timed out\n", FormatError(at, "command timed out"))
}

func TestLog_AppendsPerDay(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := New(fs, "/audit", "upsstatus")

	rec := status.Parse("Input Voltage: 118.0 VAC\r\n")
	require.NoError(t, l.Reading(at, rec))
	require.NoError(t, l.Reading(at.Add(5*time.Second), rec))
	require.NoError(t, l.Note(at.Add(6*time.Second), "User stopped monitoring."))
	require.NoError(t, l.Reading(at.Add(24*time.Hour), rec))

	day1, err := afero.ReadFile(fs, "/audit/upsstatus_20260307.txt")
	require.NoError(t, err)
	assert.Equal(t,
		"118.0 VAC @ 0 Hz\t 0 % 03/07/2026\t14:05:09\n"+
			"118.0 VAC @ 0 Hz\t 0 % 03/07/2026\t14:05:14\n"+
			"User stopped monitoring.\n",
		string(day1))

	exists, err := afero.Exists(fs, "/audit/upsstatus_20260308.txt")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLog_ErrorFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := New(fs, "/audit", "upsstatus")

	require.NoError(t, l.Error(at, "link lost"))
	require.NoError(t, l.Error(at, "link lost again"))

	data, err := afero.ReadFile(fs, "/audit/upsstatus_20260307.err")
	require.NoError(t, err)
	assert.Equal(t,
		"[ERR] 07/03/2026 14:05:09 : link lost\n[ERR] 07/03/2026 14:05:09 : link lost again\n",
		string(data))

	exists, _ := afero.Exists(fs, "/audit/upsstatus_20260307.txt")
	assert.False(t, exists)
}

func TestLog_ReadOnlyFs(t *testing.T) {
	l := New(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/audit", "upsstatus")
	assert.Error(t, l.Error(at, "x"))
}
