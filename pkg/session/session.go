// Package session defines the transport boundary of ftpfs: everything
// the stat service and the host facade need from an FTP connection,
// expressed as one interface.
//
// The production implementation lives in pkg/session/ftp and speaks
// RFC 959 through internal/protocol/ftp. Tests use the scripted
// implementation from pkg/session/testing instead, which answers from
// canned listings without any network.
package session

import (
	"context"
	"io"
	"time"
)

// Session is one logical FTP connection. An FTP connection can run one
// command at a time, so a Session must not be used from more than one
// goroutine; callers that need parallel transfers open additional
// sessions through a Factory.
type Session interface {
	// ListLines runs a long-format directory listing of the given
	// absolute path and returns the raw response lines verbatim,
	// including any header or summary lines.
	ListLines(ctx context.Context, path string) ([]string, error)

	// CurrentDir returns the server-side working directory.
	CurrentDir(ctx context.Context) (string, error)

	// ChangeDir changes the server-side working directory.
	ChangeDir(ctx context.Context, path string) error

	// MakeDir creates a single directory.
	MakeDir(ctx context.Context, path string) error

	// RemoveDir removes an empty directory.
	RemoveDir(ctx context.Context, path string) error

	// RemoveFile deletes a file.
	RemoveFile(ctx context.Context, path string) error

	// Rename moves a file or directory.
	Rename(ctx context.Context, from, to string) error

	// Chmod sets the permission bits of a remote path. Servers without
	// the SITE CHMOD extension answer with a permanent error.
	Chmod(ctx context.Context, path string, mode uint32) error

	// Noop runs a command with no effect, keeping the connection from
	// idling out.
	Noop(ctx context.Context) error

	// Retrieve opens a download stream for the file at path, starting
	// at offset. The Close error of the returned reader is the server's
	// verdict on the transfer and must not be discarded.
	Retrieve(ctx context.Context, path string, offset int64) (io.ReadCloser, error)

	// Store opens an upload stream for the file at path, starting at
	// offset. Closing the writer completes the transfer.
	Store(ctx context.Context, path string, offset int64) (io.WriteCloser, error)

	// Close ends the session and releases its connection.
	Close(ctx context.Context) error
}

// Factory opens new sessions to one configured server. The host facade
// uses it for its main session and again for every concurrent file
// transfer.
type Factory interface {
	Open(ctx context.Context) (Session, error)
}

// Metrics provides observability for session activity.
//
// Implementations count commands and transferred bytes per session
// verb. If no sink is installed, collection is skipped.
type Metrics interface {
	// RecordCommand counts one command by verb and outcome
	RecordCommand(verb string, err error)

	// RecordDial records the time a session took to open
	RecordDial(duration time.Duration, err error)

	// RecordBytesIn counts payload bytes read from the server
	RecordBytesIn(n int64)

	// RecordBytesOut counts payload bytes written to the server
	RecordBytesOut(n int64)
}

// NoopMetrics is the default metrics sink that discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordCommand(verb string, err error)           {}
func (NoopMetrics) RecordDial(duration time.Duration, err error)   {}
func (NoopMetrics) RecordBytesIn(n int64)                          {}
func (NoopMetrics) RecordBytesOut(n int64)                         {}
