package stat

import (
	"fmt"
	"time"

	"github.com/marmos91/ftpfs/internal/logger"
)

// Time zones differ from UTC by multiples of a quarter hour, so any
// real server/client clock offset must sit close to such a multiple.
const (
	timeShiftUnit         = 15 * time.Minute
	maxTimeShift          = 24 * time.Hour
	maxTimeShiftDeviation = 5 * time.Minute
)

// RoundedTimeShift returns shift snapped to the nearest quarter-hour
// unit, keeping the sign.
func RoundedTimeShift(shift time.Duration) time.Duration {
	if shift == 0 {
		return 0
	}
	abs := shift
	sign := time.Duration(1)
	if abs < 0 {
		abs = -abs
		sign = -1
	}
	rounded := (abs + timeShiftUnit/2) / timeShiftUnit * timeShiftUnit
	return sign * rounded
}

// assertValidTimeShift rejects shift values that cannot come from a
// real clock or time zone offset: more than a day in magnitude, or
// further than five minutes away from a quarter-hour unit.
func assertValidTimeShift(shift time.Duration) error {
	rounded := RoundedTimeShift(shift)
	absRounded := rounded
	if absRounded < 0 {
		absRounded = -absRounded
	}
	if absRounded > maxTimeShift {
		return &Error{
			Code:    ErrTimeShift,
			Message: fmt.Sprintf("time shift %v is larger than 1 day", shift),
		}
	}
	deviation := shift - rounded
	if deviation < 0 {
		deviation = -deviation
	}
	if deviation > maxTimeShiftDeviation {
		return &Error{
			Code: ErrTimeShift,
			Message: fmt.Sprintf("time shift %v deviates more than %v from 15-minute units",
				shift, maxTimeShiftDeviation),
		}
	}
	return nil
}

// SetTimeShift sets the difference between the server clock and the
// client clock, defined as server time minus client time (UTC). The
// value is validated, then stored rounded to quarter-hour units.
//
// Changing the shift invalidates every cached timestamp, so the cache
// is cleared whenever the value moves.
func (s *Service) SetTimeShift(shift time.Duration) error {
	if err := assertValidTimeShift(shift); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if shift != s.timeShift {
		s.cache.Clear()
		s.timeShift = RoundedTimeShift(shift)
		logger.Debug("Time shift set to %v", s.timeShift)
	}
	return nil
}

// TimeShift returns the current server-minus-client clock difference.
func (s *Service) TimeShift() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeShift
}
