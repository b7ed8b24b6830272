package stat

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Parser turns single lines of a remote directory listing into Results.
//
// The two implementations in this package cover the Unix "ls -l" format
// and the DOS/Windows format. Servers with exotic listing formats can
// be handled by installing a custom implementation on the Service.
type Parser interface {
	// ParseLine parses one listing line into a Result. timeShift is
	// the server clock minus the client clock and feeds into timestamp
	// reconstruction. Lines that do not match the format yield an
	// *Error with code ErrParse.
	ParseLine(line string, timeShift time.Duration) (*Result, error)

	// IgnoresLine reports whether line carries no directory entry at
	// all (blank lines, "total NN" summaries) and should be skipped
	// without being parsed.
	IgnoresLine(line string) bool
}

var totalLine = regexp.MustCompile(`^total\s+\d+`)

// ignoresLine implements the skip rule shared by both built-in parsers.
func ignoresLine(line string) bool {
	return strings.TrimSpace(line) == "" || totalLine.MatchString(line)
}

// splitFields splits line on runs of whitespace into at most maxParts
// fields. The final field is the unsplit remainder of the line, which
// keeps file names containing whitespace intact.
func splitFields(line string, maxParts int) []string {
	parts := make([]string, 0, maxParts)
	rest := line
	for len(parts) < maxParts-1 {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		if rest == "" {
			return parts
		}
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			return append(parts, rest)
		}
		parts = append(parts, rest[:end])
		rest = rest[end:]
	}
	rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
	if rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

// asInt converts a listing field to an integer, wrapping failures into
// a parse error that names the field.
func asInt(value, description string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &Error{
			Code:    ErrParse,
			Message: fmt.Sprintf("non-integer %s value %q", description, value),
		}
	}
	return n, nil
}

// asInt64 is asInt for fields that may exceed 32 bits, such as sizes.
func asInt64(value, description string) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, &Error{
			Code:    ErrParse,
			Message: fmt.Sprintf("non-integer %s value %q", description, value),
		}
	}
	return n, nil
}

var epoch = time.Unix(0, 0).UTC()

// utcDateTime builds a UTC timestamp and rejects component combinations
// that do not exist on the calendar. time.Date would silently normalize
// February 30th or minute 61, which here have to be parse errors.
func utcDateTime(year, month, day, hour, minute int) (time.Time, error) {
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)
	if year < 1 || t.Year() != year || t.Month() != time.Month(month) ||
		t.Day() != day || t.Hour() != hour || t.Minute() != minute {
		return time.Time{}, &Error{
			Code: ErrParse,
			Message: fmt.Sprintf("invalid datetime %d-%02d-%02d %02d:%02d",
				year, month, day, hour, minute),
		}
	}
	return t, nil
}

var fileTypes = map[byte]uint32{
	'b': ModeBlockDev,
	'c': ModeCharDev,
	'd': ModeDir,
	'l': ModeSymlink,
	'p': ModeFIFO,
	's': ModeSocket,
	'-': ModeRegular,
	'?': 0,
}

// parseUnixMode decodes a ten-character mode string like "drwxr-sr-x"
// into POSIX mode bits. Character 0 is the file type, characters 1-9
// are the permission triads where anything but '-' sets the bit. An
// 's' in the owner or group execute slot additionally sets the setuid
// or setgid bit.
func parseUnixMode(modeString string) (uint32, error) {
	if len(modeString) != 10 {
		return 0, &Error{
			Code:    ErrParse,
			Message: fmt.Sprintf("invalid mode string %q", modeString),
		}
	}
	var mode uint32
	for i := 1; i < 10; i++ {
		mode <<= 1
		if modeString[i] != '-' {
			mode |= 1
		}
	}
	if modeString[3] == 's' {
		mode |= ModeSetuid
	}
	if modeString[6] == 's' {
		mode |= ModeSetgid
	}
	fileType, ok := fileTypes[modeString[0]]
	if !ok {
		return 0, &Error{
			Code:    ErrParse,
			Message: fmt.Sprintf("unknown file type character %q", modeString[0]),
		}
	}
	return mode | fileType, nil
}

var monthNumbers = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// parseUnixTime reconstructs a timestamp from the date/time columns of
// a Unix-style listing. The columns come in two shapes:
//
//	"Nov 23 02:33"  (month, day, time; the year is implied)
//	"May 26 2005"   (month, day, year; the time of day is unknown)
//
// Listings show server-local wall time, so timeShift (server clock
// minus client clock) moves the result back onto the client clock. now
// supplies the client clock for year inference.
func parseUnixTime(monthAbbr, dayField, yearOrTime string, timeShift time.Duration, now func() time.Time) (time.Time, Precision, error) {
	month, ok := monthNumbers[strings.ToLower(monthAbbr)]
	if !ok {
		return time.Time{}, PrecisionUnknown, &Error{
			Code:    ErrParse,
			Message: fmt.Sprintf("invalid month abbreviation %q", monthAbbr),
		}
	}
	day, err := asInt(dayField, "day")
	if err != nil {
		return time.Time{}, PrecisionUnknown, err
	}
	var (
		year, hour, minute int
		precision          Precision
	)
	if !strings.Contains(yearOrTime, ":") {
		// A bare year. The time of day is lost, so the timestamp is
		// only good to the day.
		precision = PrecisionDay
		year, err = asInt(yearOrTime, "year")
		if err != nil {
			return time.Time{}, PrecisionUnknown, err
		}
	} else {
		// An "HH:MM" time. The year is not in the listing and must be
		// inferred: start from the current server year and go back one
		// year if that would put the entry in the server's future.
		// Listed times are truncated to the minute, so the server
		// clock is truncated the same way, and entries up to 120
		// seconds ahead still count as current-year. A freshly created
		// file on a slightly fast server clock must not be dated one
		// year back.
		precision = PrecisionMinute
		hourField, minuteField, _ := strings.Cut(yearOrTime, ":")
		hour, err = asInt(hourField, "hour")
		if err != nil {
			return time.Time{}, PrecisionUnknown, err
		}
		minute, err = asInt(minuteField, "minute")
		if err != nil {
			return time.Time{}, PrecisionUnknown, err
		}
		serverNow := now().UTC().Add(timeShift)
		year = serverNow.Year()
		candidate, err := utcDateTime(year, month, day, hour, minute)
		if err != nil {
			return time.Time{}, PrecisionUnknown, err
		}
		if candidate.After(serverNow.Truncate(time.Minute).Add(120 * time.Second)) {
			year--
		}
	}
	serverTime, err := utcDateTime(year, month, day, hour, minute)
	if err != nil {
		return time.Time{}, PrecisionUnknown, err
	}
	mtime := serverTime.Add(-timeShift)
	if mtime.Before(epoch) {
		// Dates before the epoch are clamped to it, and the precision
		// records that the original time is gone.
		return epoch, PrecisionUnknown, nil
	}
	return mtime, precision, nil
}

// parseMSTime reconstructs a timestamp from the date and time columns
// of a DOS-style listing, e.g. "10-23-01" and "03:25PM". Two-digit
// years from 70 upwards mean 19xx, below that 20xx.
func parseMSTime(dateField, timeField string, timeShift time.Duration) (time.Time, Precision, error) {
	dateParts := strings.Split(dateField, "-")
	if len(dateParts) != 3 {
		return time.Time{}, PrecisionUnknown, &Error{
			Code:    ErrParse,
			Message: fmt.Sprintf("invalid date %q", dateField),
		}
	}
	month, err := asInt(dateParts[0], "year/month/day")
	if err != nil {
		return time.Time{}, PrecisionUnknown, err
	}
	day, err := asInt(dateParts[1], "year/month/day")
	if err != nil {
		return time.Time{}, PrecisionUnknown, err
	}
	year, err := asInt(dateParts[2], "year/month/day")
	if err != nil {
		return time.Time{}, PrecisionUnknown, err
	}
	switch {
	case year >= 1000:
		// Four-digit year, nothing to guess.
	case year >= 70:
		year += 1900
	default:
		year += 2000
	}
	if len(timeField) < 6 {
		return time.Time{}, PrecisionUnknown, &Error{
			Code:    ErrParse,
			Message: fmt.Sprintf("invalid time string %q", timeField),
		}
	}
	hour, err := asInt(timeField[0:2], "hour")
	if err != nil {
		return time.Time{}, PrecisionUnknown, err
	}
	minute, err := asInt(timeField[3:5], "minute")
	if err != nil {
		return time.Time{}, PrecisionUnknown, err
	}
	amPM := timeField[5]
	if amPM != 'A' && amPM != 'P' {
		return time.Time{}, PrecisionUnknown, &Error{
			Code:    ErrParse,
			Message: fmt.Sprintf("invalid time string %q", timeField),
		}
	}
	if hour == 12 && amPM == 'A' {
		hour = 0
	}
	if hour != 12 && amPM == 'P' {
		hour += 12
	}
	serverTime, err := utcDateTime(year, month, day, hour, minute)
	if err != nil {
		return time.Time{}, PrecisionUnknown, err
	}
	mtime := serverTime.Add(-timeShift)
	if mtime.Before(epoch) {
		return epoch, PrecisionUnknown, nil
	}
	return mtime, PrecisionMinute, nil
}
