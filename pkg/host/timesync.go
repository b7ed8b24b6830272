package host

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/marmos91/ftpfs/internal/logger"
	"github.com/marmos91/ftpfs/pkg/stat"
)

// timeShiftProbeName is the zero-byte file written into the working
// directory to read back the server's idea of "now".
const timeShiftProbeName = "_ftpfs_sync_"

// now is replaced in tests to pin the client clock.
var now = time.Now

// TimeShift returns the configured server-minus-client clock
// difference.
func (h *Host) TimeShift() time.Duration {
	return h.svc.TimeShift()
}

// SetTimeShift sets the server-minus-client clock difference used to
// correct listing timestamps. The value is validated and rounded to
// quarter-hour units; changing it clears the stat cache.
func (h *Host) SetTimeShift(shift time.Duration) error {
	return h.svc.SetTimeShift(shift)
}

// SynchronizeTimes measures the server/client clock difference and
// installs it as the time shift.
//
// The measurement writes a zero-byte probe file into the current
// working directory, stats it through the listing pipeline and
// compares the reported mtime with the client clock. The working
// directory must therefore be writable. The probe file is removed
// again even when the measurement fails halfway.
func (h *Host) SynchronizeTimes(ctx context.Context) error {
	probePath := path.Join(h.cwd, timeShiftProbeName)

	w, err := h.sess.Store(ctx, probePath, 0)
	if err != nil {
		return syncError("write probe file", err)
	}
	if err := w.Close(); err != nil {
		return syncError("write probe file", err)
	}
	defer func() {
		// Best effort; a leftover probe file is ugly but harmless.
		if err := h.sess.RemoveFile(ctx, probePath); err != nil {
			logger.Warn("Could not remove time sync probe file %s: %v", probePath, err)
		}
		h.cache.Invalidate(probePath)
	}()

	// The probe was written just now, so its cache entry (if any) is
	// from a previous run and must not answer this stat.
	h.cache.Invalidate(probePath)
	result, err := h.svc.Lstat(ctx, probePath)
	if err != nil {
		return syncError("stat probe file", err)
	}

	clientNow := now().UTC()
	shift := result.MTime.Sub(clientNow)
	if shift < -360*24*time.Hour {
		// The listing parser inferred the probe's year while the shift
		// was still unset. A server east of the client can then date a
		// year-end probe into the previous year, which shows up as a
		// shift of almost minus one year. The true timestamp is one
		// year later.
		shift = result.MTime.AddDate(1, 0, 0).Sub(clientNow)
	}
	if err := h.svc.SetTimeShift(shift); err != nil {
		return syncError("apply measured shift", err)
	}
	logger.Info("Synchronized server time, shift %v", h.svc.TimeShift())
	return nil
}

// syncError wraps a failure step as the distinct time-synchronization
// error kind, so callers can match it like any other stat error.
func syncError(step string, err error) error {
	return &stat.Error{
		Code:    stat.ErrTimeShift,
		Message: fmt.Sprintf("time synchronization failed: %s: %v", step, err),
	}
}
