package stat

import (
	"fmt"
	"strconv"
	"time"
)

// MSParser parses the DOS-style listing format that IIS and some other
// Windows FTP servers emit, e.g.
//
//	10-23-01  03:25PM       <DIR>          home pages
//	07-17-00  02:08PM             12266720 digest.pdf
//
// The zero value is ready to use.
type MSParser struct{}

// NewMSParser returns a parser for DOS-style listings.
func NewMSParser() *MSParser {
	return &MSParser{}
}

const msFieldCount = 4

// ParseLine parses one line of DOS-style listing output.
func (p *MSParser) ParseLine(line string, timeShift time.Duration) (*Result, error) {
	fields := splitFields(line, msFieldCount)
	if len(fields) != msFieldCount {
		return nil, &Error{
			Code:    ErrParse,
			Message: fmt.Sprintf("line %q can't be parsed", line),
		}
	}
	dateField, timeField, dirOrSize, name := fields[0], fields[1], fields[2], fields[3]

	// Owner read access is all a DOS listing lets us assume.
	mode := uint32(0o400)
	var size *int64
	if dirOrSize == "<DIR>" {
		mode |= ModeDir
	} else {
		mode |= ModeRegular
		n, err := strconv.ParseInt(dirOrSize, 10, 64)
		if err != nil {
			return nil, &Error{
				Code:    ErrParse,
				Message: fmt.Sprintf("invalid size %s", dirOrSize),
			}
		}
		size = &n
	}

	mtime, precision, err := parseMSTime(dateField, timeField, timeShift)
	if err != nil {
		return nil, err
	}

	return &Result{
		Mode:           mode,
		Size:           size,
		MTime:          mtime,
		MTimePrecision: precision,
		Name:           name,
	}, nil
}

// IgnoresLine reports whether the line carries no directory entry.
func (p *MSParser) IgnoresLine(line string) bool {
	return ignoresLine(line)
}
