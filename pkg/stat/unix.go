package stat

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UnixParser parses the POSIX "ls -l" listing format, covering both the
// common nine-field layout and the eight-field variant of servers that
// omit the owner column.
//
// The zero value is ready to use.
type UnixParser struct {
	// clock overrides the wall clock used for year inference. Nil
	// means time.Now.
	clock func() time.Time
}

// NewUnixParser returns a parser for Unix-style listings.
func NewUnixParser() *UnixParser {
	return &UnixParser{}
}

const (
	unixFieldsWithoutOwner = 8
	unixFieldsWithOwner    = 9
)

// splitUnixLine splits a listing line into exactly nine fields: mode,
// link count, owner, group, size, month, day, year-or-time and name.
// Lines in the ownerless eight-field layout get an empty owner column
// inserted so both layouts look alike downstream. The name field keeps
// its inner whitespace.
func splitUnixLine(line string) ([]string, error) {
	parts := strings.Fields(line)
	if len(parts) < unixFieldsWithoutOwner {
		return nil, &Error{
			Code:    ErrParse,
			Message: fmt.Sprintf("line %q can't be parsed", line),
		}
	}
	// In both layouts field 5 disambiguates: a day number means the
	// owner column is missing, a month abbreviation means it is there.
	if _, err := strconv.Atoi(parts[5]); err == nil {
		fields := splitFields(line, unixFieldsWithoutOwner)
		withOwner := make([]string, 0, unixFieldsWithOwner)
		withOwner = append(withOwner, fields[:2]...)
		withOwner = append(withOwner, "")
		return append(withOwner, fields[2:]...), nil
	}
	fields := splitFields(line, unixFieldsWithOwner)
	if len(fields) != unixFieldsWithOwner {
		// Fewer fields than expected at this point means the name
		// column is blank.
		return nil, &Error{
			Code:    ErrParse,
			Message: fmt.Sprintf("line %q can't be parsed", line),
		}
	}
	return fields, nil
}

// ParseLine parses one line of Unix-style listing output.
func (p *UnixParser) ParseLine(line string, timeShift time.Duration) (*Result, error) {
	fields, err := splitUnixLine(line)
	if err != nil {
		return nil, err
	}
	modeString, nlinkField, owner, group, sizeField := fields[0], fields[1], fields[2], fields[3], fields[4]
	month, day, yearOrTime, name := fields[5], fields[6], fields[7], fields[8]

	mode, err := parseUnixMode(modeString)
	if err != nil {
		return nil, err
	}
	nlink, err := asInt(nlinkField, "link count")
	if err != nil {
		return nil, err
	}
	size, err := asInt64(sizeField, "size")
	if err != nil {
		return nil, err
	}
	now := p.clock
	if now == nil {
		now = time.Now
	}
	mtime, precision, err := parseUnixTime(month, day, yearOrTime, timeShift, now)
	if err != nil {
		return nil, err
	}

	const arrow = " -> "
	var target string
	switch strings.Count(name, arrow) {
	case 0:
	case 1:
		name, target, _ = strings.Cut(name, arrow)
	default:
		// With several arrows there is no way to tell where the link
		// name ends and the target begins.
		return nil, &Error{
			Code:    ErrParse,
			Message: fmt.Sprintf("name %q contains more than one \"->\"", name),
		}
	}

	return &Result{
		Mode:           mode,
		Nlink:          &nlink,
		Owner:          owner,
		Group:          group,
		Size:           &size,
		MTime:          mtime,
		MTimePrecision: precision,
		Name:           name,
		LinkTarget:     target,
	}, nil
}

// IgnoresLine reports whether the line carries no directory entry.
func (p *UnixParser) IgnoresLine(line string) bool {
	return ignoresLine(line)
}
