// Package testing provides a scripted Session implementation for
// testing the host facade and anything else that talks to a session.
//
// A Script holds the remote filesystem as canned listings and file
// contents; sessions opened from it answer commands from that state and
// record every command they ran. Failures are injected per command, so
// error paths are as scriptable as the happy ones.
package testing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/marmos91/ftpfs/pkg/session"
)

// Script is the shared server state behind one or more scripted
// sessions. The zero value is not usable; create Scripts with
// NewScript.
type Script struct {
	mu sync.Mutex

	// Dirs maps absolute directory paths to their raw listing lines.
	Dirs map[string][]string

	// Files maps absolute file paths to their download payloads.
	Files map[string][]byte

	// Written collects upload payloads by absolute path.
	Written map[string][]byte

	// Cwd is the working directory reported right after login.
	Cwd string

	// FailOn injects an error for a command. Keys are either a bare
	// verb ("MKD") or a verb plus path ("MKD /tmp/x"); the more
	// specific key wins.
	FailOn map[string]error

	// Calls records every command in "VERB arg" form, across all
	// sessions in open order.
	Calls []string

	// Opened counts the sessions opened from this script.
	Opened int
}

// NewScript returns an empty script with the working directory at the
// root.
func NewScript() *Script {
	return &Script{
		Dirs:    make(map[string][]string),
		Files:   make(map[string][]byte),
		Written: make(map[string][]byte),
		Cwd:     "/",
		FailOn:  make(map[string]error),
	}
}

// CallsTo returns the recorded calls for one verb.
func (s *Script) CallsTo(verb string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var calls []string
	for _, call := range s.Calls {
		if call == verb || len(call) > len(verb) && call[:len(verb)+1] == verb+" " {
			calls = append(calls, call)
		}
	}
	return calls
}

// record logs a call and returns the injected error for it, if any.
func (s *Script) record(verb, arg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := verb
	if arg != "" {
		call += " " + arg
	}
	s.Calls = append(s.Calls, call)
	if err, ok := s.FailOn[call]; ok {
		return err
	}
	return s.FailOn[verb]
}

// Factory opens scripted sessions sharing one Script.
type Factory struct {
	Script *Script

	// OpenErr, when set, makes every Open fail with it.
	OpenErr error
}

// Open returns a new session over the shared script state.
func (f *Factory) Open(_ context.Context) (session.Session, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	f.Script.mu.Lock()
	f.Script.Opened++
	f.Script.mu.Unlock()
	return &Session{script: f.Script}, nil
}

// Session is one scripted connection. It satisfies session.Session.
type Session struct {
	script *Script
	closed bool
}

// NewSession returns a session directly over script, without going
// through a Factory.
func NewSession(script *Script) *Session {
	return &Session{script: script}
}

func (s *Session) ListLines(_ context.Context, path string) ([]string, error) {
	if err := s.script.record("LIST", path); err != nil {
		return nil, err
	}
	s.script.mu.Lock()
	defer s.script.mu.Unlock()
	return s.script.Dirs[path], nil
}

func (s *Session) CurrentDir(_ context.Context) (string, error) {
	if err := s.script.record("PWD", ""); err != nil {
		return "", err
	}
	s.script.mu.Lock()
	defer s.script.mu.Unlock()
	return s.script.Cwd, nil
}

func (s *Session) ChangeDir(_ context.Context, path string) error {
	if err := s.script.record("CWD", path); err != nil {
		return err
	}
	s.script.mu.Lock()
	defer s.script.mu.Unlock()
	if _, ok := s.script.Dirs[path]; !ok {
		return fmt.Errorf("server replied 550 %s: No such directory", path)
	}
	s.script.Cwd = path
	return nil
}

func (s *Session) MakeDir(_ context.Context, path string) error {
	if err := s.script.record("MKD", path); err != nil {
		return err
	}
	s.script.mu.Lock()
	defer s.script.mu.Unlock()
	if s.script.Dirs[path] == nil {
		s.script.Dirs[path] = []string{}
	}
	return nil
}

func (s *Session) RemoveDir(_ context.Context, path string) error {
	if err := s.script.record("RMD", path); err != nil {
		return err
	}
	s.script.mu.Lock()
	defer s.script.mu.Unlock()
	delete(s.script.Dirs, path)
	return nil
}

func (s *Session) RemoveFile(_ context.Context, path string) error {
	if err := s.script.record("DELE", path); err != nil {
		return err
	}
	s.script.mu.Lock()
	defer s.script.mu.Unlock()
	delete(s.script.Files, path)
	return nil
}

func (s *Session) Rename(_ context.Context, from, to string) error {
	return s.script.record("RNFR", from+" "+to)
}

func (s *Session) Chmod(_ context.Context, path string, mode uint32) error {
	return s.script.record("SITE CHMOD", fmt.Sprintf("%o %s", mode, path))
}

func (s *Session) Noop(_ context.Context) error {
	return s.script.record("NOOP", "")
}

func (s *Session) Retrieve(_ context.Context, path string, offset int64) (io.ReadCloser, error) {
	if err := s.script.record("RETR", path); err != nil {
		return nil, err
	}
	s.script.mu.Lock()
	defer s.script.mu.Unlock()
	data, ok := s.script.Files[path]
	if !ok {
		return nil, fmt.Errorf("server replied 550 %s: No such file", path)
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	return io.NopCloser(bytes.NewReader(data[offset:])), nil
}

func (s *Session) Store(_ context.Context, path string, offset int64) (io.WriteCloser, error) {
	if err := s.script.record("STOR", path); err != nil {
		return nil, err
	}
	return &scriptedUpload{script: s.script, path: path}, nil
}

func (s *Session) Close(_ context.Context) error {
	s.closed = true
	return s.script.record("QUIT", "")
}

// Closed reports whether Close was called on this session.
func (s *Session) Closed() bool { return s.closed }

// scriptedUpload buffers an upload and commits it to the script on
// Close, like a real transfer completes on the data connection close.
type scriptedUpload struct {
	script *Script
	path   string
	buf    bytes.Buffer
}

func (u *scriptedUpload) Write(p []byte) (int, error) {
	return u.buf.Write(p)
}

func (u *scriptedUpload) Close() error {
	u.script.mu.Lock()
	defer u.script.mu.Unlock()
	data := u.buf.Bytes()
	u.script.Written[u.path] = append([]byte(nil), data...)
	u.script.Files[u.path] = append([]byte(nil), data...)
	return nil
}

// UnixLine renders one Unix-style listing line for scripted
// directories, so tests do not hand-format columns everywhere. The
// timestamp uses the year form, which parses the same on any test
// date; lines needing HH:MM timestamps are written by hand.
func UnixLine(mode string, size int64, mtime time.Time, name string) string {
	return fmt.Sprintf("%s   1 45854    200 %10d %s %2d  %d %s",
		mode, size, mtime.Month().String()[:3], mtime.Day(), mtime.Year(), name)
}
