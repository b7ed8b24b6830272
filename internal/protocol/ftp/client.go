// Package ftp implements the client side of the FTP control and data
// protocols from RFC 959, plus the explicit-TLS upgrade from RFC 4217.
//
// The package stays close to the wire: it exposes raw LIST lines and
// byte streams and leaves pathname semantics, listing interpretation
// and caching to the layers above. Only passive mode is implemented;
// active mode needs a client-side listener and does not survive the
// NAT setups this client is used behind.
package ftp

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/marmos91/ftpfs/internal/logger"
)

// Transfer types for the TYPE command.
const (
	typeASCII  = "A"
	typeBinary = "I"
)

// Config carries the connection settings for Dial.
type Config struct {
	// Address is the host:port of the control connection.
	Address string

	// Timeout bounds each control-channel command and reply. Zero
	// means no limit. Data transfers are not bounded by it; cancel
	// their context instead.
	Timeout time.Duration

	// TLSConfig, when non-nil, upgrades the control connection with
	// AUTH TLS right after the greeting and protects data connections
	// with PROT P after login.
	TLSConfig *tls.Config
}

// Client is an FTP control connection and the data connections opened
// through it. Methods must not be called concurrently; FTP sequences
// one command at a time per connection.
type Client struct {
	cfg    Config
	conn   net.Conn
	reader *bufio.Reader

	// host is the control connection's remote host, reused as the
	// target for passive data connections.
	host string

	secured      bool
	protectData  bool
	transferType string
}

// Dial connects to the server, reads the greeting and, if configured,
// upgrades the connection to TLS. The caller still has to Login.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Address, err)
	}

	host, _, err := net.SplitHostPort(cfg.Address)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("split address %s: %w", cfg.Address, err)
	}

	c := &Client{
		cfg:    cfg,
		conn:   conn,
		reader: bufio.NewReader(conn),
		host:   host,
	}

	greeting, err := c.readReply(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if !greeting.Completion() {
		conn.Close()
		return nil, replyError(greeting)
	}
	logger.Debug("Connected to %s: %s", cfg.Address, firstLine(greeting.Text))

	if cfg.TLSConfig != nil {
		if err := c.upgradeToTLS(ctx); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) upgradeToTLS(ctx context.Context) error {
	reply, err := c.sendCommand(ctx, "AUTH TLS")
	if err != nil {
		return err
	}
	if !reply.Completion() {
		return replyError(reply)
	}
	tlsConn := tls.Client(c.conn, c.cfg.TLSConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("TLS handshake: %w", err)
	}
	c.conn = tlsConn
	c.reader = bufio.NewReader(tlsConn)
	c.secured = true
	logger.Debug("Control connection upgraded to TLS")
	return nil
}

// Login authenticates with USER/PASS. On TLS connections it then
// requests data-channel protection, so directory listings and file
// contents are encrypted too.
func (c *Client) Login(ctx context.Context, user, password string) error {
	reply, err := c.sendCommand(ctx, "USER %s", user)
	if err != nil {
		return err
	}
	if reply.Intermediate() {
		reply, err = c.sendCommand(ctx, "PASS %s", password)
		if err != nil {
			return err
		}
	}
	if !reply.Completion() {
		return replyError(reply)
	}
	logger.Debug("Logged in as %s", user)

	if c.secured {
		if err := c.expectCompletion(ctx, "PBSZ 0"); err != nil {
			return err
		}
		if err := c.expectCompletion(ctx, "PROT P"); err != nil {
			return err
		}
		c.protectData = true
	}
	return nil
}

// CurrentDir returns the server-side working directory via PWD.
func (c *Client) CurrentDir(ctx context.Context) (string, error) {
	reply, err := c.sendCommand(ctx, "PWD")
	if err != nil {
		return "", err
	}
	if !reply.Completion() {
		return "", replyError(reply)
	}
	dir, err := parsePathReply(reply.Text)
	if err != nil {
		return "", err
	}
	return dir, nil
}

// ChangeDir changes the server-side working directory via CWD.
func (c *Client) ChangeDir(ctx context.Context, path string) error {
	return c.expectCompletion(ctx, "CWD %s", path)
}

// MakeDir creates a directory via MKD.
func (c *Client) MakeDir(ctx context.Context, path string) error {
	return c.expectCompletion(ctx, "MKD %s", path)
}

// RemoveDir removes a directory via RMD.
func (c *Client) RemoveDir(ctx context.Context, path string) error {
	return c.expectCompletion(ctx, "RMD %s", path)
}

// RemoveFile deletes a file via DELE.
func (c *Client) RemoveFile(ctx context.Context, path string) error {
	return c.expectCompletion(ctx, "DELE %s", path)
}

// Rename moves a file or directory with the RNFR/RNTO pair.
func (c *Client) Rename(ctx context.Context, from, to string) error {
	reply, err := c.sendCommand(ctx, "RNFR %s", from)
	if err != nil {
		return err
	}
	if !reply.Intermediate() {
		return replyError(reply)
	}
	return c.expectCompletion(ctx, "RNTO %s", to)
}

// SiteChmod changes the permission bits of a remote path through the
// SITE CHMOD extension. mode holds POSIX permission bits; servers
// without the extension answer with a permanent error.
func (c *Client) SiteChmod(ctx context.Context, path string, mode uint32) error {
	return c.expectCompletion(ctx, "SITE CHMOD 0%o %s", mode, path)
}

// Noop sends NOOP, which servers answer without touching session
// state. Used as a keep-alive.
func (c *Client) Noop(ctx context.Context) error {
	return c.expectCompletion(ctx, "NOOP")
}

// List runs LIST on the given path and returns the raw listing lines
// without line endings. An empty path lists the working directory;
// allEntries asks the server for dotfiles as well, which not every
// server supports.
func (c *Client) List(ctx context.Context, path string, allEntries bool) ([]string, error) {
	// Listings are line-oriented text, so they travel in ASCII mode
	// like they do for command-line clients.
	if err := c.setTransferType(ctx, typeASCII); err != nil {
		return nil, err
	}

	command := "LIST"
	if allEntries {
		command += " -a"
	}
	if path != "" {
		command += " " + path
	}

	dataConn, err := c.openDataConn(ctx, command, 0)
	if err != nil {
		return nil, err
	}

	var lines []string
	scanner := bufio.NewScanner(dataConn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	scanErr := scanner.Err()

	if err := c.finishDataConn(ctx, dataConn); err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, fmt.Errorf("read listing: %w", scanErr)
	}
	logger.Debug("LIST %s returned %d lines", path, len(lines))
	return lines, nil
}

// Retrieve opens a download stream for the file at path via RETR. A
// non-zero offset resumes the transfer at that byte via REST. Closing
// the returned reader closes the data connection and checks the
// transfer completion reply, so Close errors must not be discarded.
func (c *Client) Retrieve(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	if err := c.setTransferType(ctx, typeBinary); err != nil {
		return nil, err
	}
	dataConn, err := c.openDataConn(ctx, "RETR "+path, offset)
	if err != nil {
		return nil, err
	}
	return &dataStream{client: c, conn: dataConn}, nil
}

// Store opens an upload stream for the file at path via STOR. A
// non-zero offset resumes at that byte via REST. Closing the returned
// writer completes the transfer; its error reports whether the server
// accepted the whole file.
func (c *Client) Store(ctx context.Context, path string, offset int64) (io.WriteCloser, error) {
	if err := c.setTransferType(ctx, typeBinary); err != nil {
		return nil, err
	}
	dataConn, err := c.openDataConn(ctx, "STOR "+path, offset)
	if err != nil {
		return nil, err
	}
	return &dataStream{client: c, conn: dataConn}, nil
}

// Quit says goodbye with QUIT and closes the control connection.
func (c *Client) Quit(ctx context.Context) error {
	reply, err := c.sendCommand(ctx, "QUIT")
	closeErr := c.conn.Close()
	if err != nil {
		return err
	}
	if !reply.Completion() {
		return replyError(reply)
	}
	return closeErr
}

// Close drops the control connection without the QUIT exchange.
func (c *Client) Close() error {
	return c.conn.Close()
}

// setTransferType sends TYPE when the wanted mode differs from the
// current one.
func (c *Client) setTransferType(ctx context.Context, transferType string) error {
	if c.transferType == transferType {
		return nil
	}
	if err := c.expectCompletion(ctx, "TYPE %s", transferType); err != nil {
		return err
	}
	c.transferType = transferType
	return nil
}

// expectCompletion sends a command and accepts only a 2xx reply.
func (c *Client) expectCompletion(ctx context.Context, format string, args ...any) error {
	reply, err := c.sendCommand(ctx, format, args...)
	if err != nil {
		return err
	}
	if !reply.Completion() {
		return replyError(reply)
	}
	return nil
}

// sendCommand writes one command line and reads the reply for it.
func (c *Client) sendCommand(ctx context.Context, format string, args ...any) (*Reply, error) {
	command := fmt.Sprintf(format, args...)
	if strings.ContainsAny(command, "\r\n") {
		return nil, fmt.Errorf("command %q contains line breaks", command)
	}
	c.applyDeadline(ctx)
	if _, err := c.conn.Write([]byte(command + "\r\n")); err != nil {
		return nil, fmt.Errorf("send %s: %w", commandWord(command), err)
	}
	logger.Debug("> %s", redactCommand(command))
	reply, err := c.readReply(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("< %d %s", reply.Code, firstLine(reply.Text))
	return reply, nil
}

func (c *Client) readReply(ctx context.Context) (*Reply, error) {
	c.applyDeadline(ctx)
	return readReply(c.reader)
}

// applyDeadline bounds the next control-channel read or write by the
// configured timeout and the context deadline, whichever ends first.
func (c *Client) applyDeadline(ctx context.Context) {
	var deadline time.Time
	if c.cfg.Timeout > 0 {
		deadline = time.Now().Add(c.cfg.Timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)
}

// commandWord returns the command verb for error messages, so "PASS
// secret" never ends up in an error chain.
func commandWord(command string) string {
	if i := strings.IndexByte(command, ' '); i > 0 {
		return command[:i]
	}
	return command
}

// redactCommand hides the password argument in debug logs.
func redactCommand(command string) string {
	if strings.HasPrefix(command, "PASS ") {
		return "PASS ****"
	}
	return command
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}
