package ftp

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// passiveAddrPattern matches the six address bytes in a 227 reply.
var passiveAddrPattern = regexp.MustCompile(`(\d+),(\d+),(\d+),(\d+),(\d+),(\d+)`)

// Reply code classes from RFC 959 section 4.2. The first digit of a
// reply code tells the client how to proceed; the remaining digits only
// refine the message.
const (
	classPreliminary  = 1
	classCompletion   = 2
	classIntermediate = 3
	classTransient    = 4
	classPermanent    = 5
)

// Reply is one parsed control-channel reply.
type Reply struct {
	Code int
	// Text holds the reply text without the status code. Multiline
	// replies keep their inner line breaks.
	Text string
}

func (r *Reply) class() int { return r.Code / 100 }

// Preliminary reports a 1xx reply: the command started and another
// reply for it will follow, as with transfer commands.
func (r *Reply) Preliminary() bool { return r.class() == classPreliminary }

// Completion reports a 2xx reply: the command succeeded.
func (r *Reply) Completion() bool { return r.class() == classCompletion }

// Intermediate reports a 3xx reply: the command needs a follow-up, as
// USER needs PASS and RNFR needs RNTO.
func (r *Reply) Intermediate() bool { return r.class() == classIntermediate }

// Error is a negative reply from the server, kept with its code so
// callers can distinguish transient rejections from permanent ones.
type Error struct {
	Code int
	Text string
}

func (e *Error) Error() string {
	return fmt.Sprintf("server replied %d %s", e.Code, e.Text)
}

// Temporary reports whether the reply was a 4xx transient negative,
// where the same request may succeed when repeated later.
func (e *Error) Temporary() bool { return e.Code/100 == classTransient }

// replyError turns a non-success reply into an *Error.
func replyError(reply *Reply) error {
	return &Error{Code: reply.Code, Text: reply.Text}
}

// readReply reads one reply from the control connection, following the
// multiline format of RFC 959: a first line "nnn-text" opens the block
// and it runs until a line starting with "nnn " closes it.
func readReply(r *bufio.Reader) (*Reply, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if len(line) < 3 {
		return nil, fmt.Errorf("short reply line %q", line)
	}
	code, err := strconv.Atoi(line[:3])
	if err != nil {
		return nil, fmt.Errorf("malformed reply code in line %q", line)
	}

	text := ""
	if len(line) > 4 {
		text = line[4:]
	}
	if len(line) > 3 && line[3] == '-' {
		terminator := line[:3] + " "
		var lines []string
		if text != "" {
			lines = append(lines, text)
		}
		for {
			next, err := readLine(r)
			if err != nil {
				return nil, err
			}
			if strings.HasPrefix(next, terminator) {
				if len(next) > 4 {
					lines = append(lines, next[4:])
				}
				break
			}
			lines = append(lines, next)
		}
		text = strings.Join(lines, "\n")
	}

	return &Reply{Code: code, Text: text}, nil
}

// readLine reads one CRLF-terminated line, tolerating bare LF.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read reply line: %w", err)
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// parsePathReply extracts the quoted path from a 257 reply such as
// `"/home/user" is the current directory`. A doubled quote inside the
// path stands for one literal quote.
func parsePathReply(text string) (string, error) {
	if len(text) == 0 || text[0] != '"' {
		return "", fmt.Errorf("no quoted path in reply %q", text)
	}
	var b strings.Builder
	for i := 1; i < len(text); i++ {
		ch := text[i]
		if ch == '"' {
			if i+1 < len(text) && text[i+1] == '"' {
				b.WriteByte('"')
				i++
				continue
			}
			return b.String(), nil
		}
		b.WriteByte(ch)
	}
	return "", fmt.Errorf("unterminated quoted path in reply %q", text)
}

// parsePassivePort extracts the data port from a 227 reply such as
// "Entering Passive Mode (192,168,1,2,19,56)". The advertised host
// bytes are not used: servers behind NAT routinely announce addresses
// that are unreachable from the client, so the data connection goes to
// the control connection's host instead.
func parsePassivePort(text string) (int, error) {
	numbers := passiveAddrPattern.FindStringSubmatch(text)
	if numbers == nil {
		return 0, fmt.Errorf("no passive address in reply %q", text)
	}
	high, err := strconv.Atoi(numbers[5])
	if err != nil {
		return 0, fmt.Errorf("bad passive port in reply %q", text)
	}
	low, err := strconv.Atoi(numbers[6])
	if err != nil {
		return 0, fmt.Errorf("bad passive port in reply %q", text)
	}
	port := high<<8 | low
	if port == 0 {
		return 0, fmt.Errorf("zero passive port in reply %q", text)
	}
	return port, nil
}

// parseExtendedPassivePort extracts the data port from a 229 reply such
// as "Entering Extended Passive Mode (|||6446|)".
func parseExtendedPassivePort(text string) (int, error) {
	open := strings.IndexByte(text, '(')
	end := strings.LastIndexByte(text, ')')
	if open < 0 || end < open {
		return 0, fmt.Errorf("no passive address in reply %q", text)
	}
	inner := text[open+1 : end]
	if inner == "" {
		return 0, fmt.Errorf("no passive address in reply %q", text)
	}
	parts := strings.Split(inner, inner[:1])
	if len(parts) != 5 {
		return 0, fmt.Errorf("malformed extended passive reply %q", text)
	}
	port, err := strconv.Atoi(parts[3])
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("bad passive port in reply %q", text)
	}
	return port, nil
}
