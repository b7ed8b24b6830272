package host

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sessiontest "github.com/marmos91/ftpfs/pkg/session/testing"
	"github.com/marmos91/ftpfs/pkg/stat"
)

func withClock(t *testing.T, fixed time.Time) {
	t.Helper()
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })
}

func TestSetTimeShift(t *testing.T) {
	script := sessiontest.NewScript()
	script.Dirs["/"] = []string{}
	h := connectTestHost(t, script, Options{})

	require.NoError(t, h.SetTimeShift(time.Hour))
	assert.Equal(t, time.Hour, h.TimeShift())

	// A shift nowhere near a quarter-hour unit is rejected
	err := h.SetTimeShift(time.Hour + 7*time.Minute)
	require.Error(t, err)
	assert.Equal(t, time.Hour, h.TimeShift())
}

func TestSynchronizeTimes(t *testing.T) {
	probeMTime := time.Date(2000, 5, 4, 0, 0, 0, 0, time.UTC)
	script := sessiontest.NewScript()
	script.Dirs["/"] = []string{
		sessiontest.UnixLine("-rw-r--r--", 0, probeMTime, "_ftpfs_sync_"),
	}
	h := connectTestHost(t, script, Options{})

	// The client clock sits 16 minutes past the server's listing time
	withClock(t, time.Date(2000, 5, 4, 0, 16, 0, 0, time.UTC))

	require.NoError(t, h.SynchronizeTimes(context.Background()))
	assert.Equal(t, -15*time.Minute, h.TimeShift())

	// The probe file was written and removed again
	assert.Equal(t, []string{"STOR /_ftpfs_sync_"}, script.CallsTo("STOR"))
	assert.Equal(t, []string{"DELE /_ftpfs_sync_"}, script.CallsTo("DELE"))
	_, exists := script.Files["/_ftpfs_sync_"]
	assert.False(t, exists)
}

func TestSynchronizeTimes_YearEndCorrection(t *testing.T) {
	// A server east of the client lists a year-end probe without a
	// time shift configured yet, dating it into the "previous" year.
	probeMTime := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	script := sessiontest.NewScript()
	script.Dirs["/"] = []string{
		sessiontest.UnixLine("-rw-r--r--", 0, probeMTime, "_ftpfs_sync_"),
	}
	h := connectTestHost(t, script, Options{})

	withClock(t, time.Date(2000, 12, 31, 23, 50, 0, 0, time.UTC))

	require.NoError(t, h.SynchronizeTimes(context.Background()))
	assert.Equal(t, 15*time.Minute, h.TimeShift())
}

func TestSynchronizeTimes_StoreFails(t *testing.T) {
	script := sessiontest.NewScript()
	script.Dirs["/"] = []string{}
	script.FailOn["STOR"] = errors.New("server replied 550 Permission denied")
	h := connectTestHost(t, script, Options{})

	err := h.SynchronizeTimes(context.Background())
	require.Error(t, err)
	var statErr *stat.Error
	require.ErrorAs(t, err, &statErr)
	assert.Equal(t, stat.ErrTimeShift, statErr.Code)
}

func TestSynchronizeTimes_ClearsStaleProbeEntry(t *testing.T) {
	probeMTime := time.Date(2000, 5, 4, 0, 0, 0, 0, time.UTC)
	script := sessiontest.NewScript()
	script.Dirs["/"] = []string{
		sessiontest.UnixLine("-rw-r--r--", 0, probeMTime, "_ftpfs_sync_"),
	}
	h := connectTestHost(t, script, Options{})

	// A previous listing cached a probe record with a bogus timestamp
	h.cache.Set("/_ftpfs_sync_", &stat.Result{
		Mode:  stat.ModeRegular | 0o644,
		MTime: time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC),
		Name:  "_ftpfs_sync_",
	})

	withClock(t, time.Date(2000, 5, 4, 0, 16, 0, 0, time.UTC))

	require.NoError(t, h.SynchronizeTimes(context.Background()))
	assert.Equal(t, -15*time.Minute, h.TimeShift())
}
