package ftp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"

	"github.com/marmos91/ftpfs/internal/logger"
)

// openDataConn negotiates a passive data connection, optionally sends
// REST for resumed transfers, then issues the transfer command and
// waits for the server to start serving it.
func (c *Client) openDataConn(ctx context.Context, command string, offset int64) (net.Conn, error) {
	port, err := c.passivePort(ctx)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: c.cfg.Timeout}
	addr := net.JoinHostPort(c.host, strconv.Itoa(port))
	dataConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial data connection %s: %w", addr, err)
	}

	if offset > 0 {
		reply, err := c.sendCommand(ctx, "REST %d", offset)
		if err != nil {
			dataConn.Close()
			return nil, err
		}
		if !reply.Intermediate() {
			dataConn.Close()
			return nil, replyError(reply)
		}
	}

	reply, err := c.sendCommand(ctx, "%s", command)
	if err != nil {
		dataConn.Close()
		return nil, err
	}
	// Some servers acknowledge the command with a 2xx before the 1xx
	// that announces the transfer.
	if reply.Completion() {
		reply, err = c.readReply(ctx)
		if err != nil {
			dataConn.Close()
			return nil, err
		}
	}
	if !reply.Preliminary() {
		dataConn.Close()
		return nil, replyError(reply)
	}

	if c.protectData {
		tlsConn := tls.Client(dataConn, c.cfg.TLSConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			dataConn.Close()
			return nil, fmt.Errorf("data TLS handshake: %w", err)
		}
		dataConn = tlsConn
	}
	if deadline, ok := ctx.Deadline(); ok {
		dataConn.SetDeadline(deadline)
	}
	return dataConn, nil
}

// passivePort asks the server for a data port. IPv6 peers only speak
// EPSV; everything else gets classic PASV.
func (c *Client) passivePort(ctx context.Context) (int, error) {
	if c.peerIsIPv6() {
		reply, err := c.sendCommand(ctx, "EPSV")
		if err != nil {
			return 0, err
		}
		if !reply.Completion() {
			return 0, replyError(reply)
		}
		return parseExtendedPassivePort(reply.Text)
	}
	reply, err := c.sendCommand(ctx, "PASV")
	if err != nil {
		return 0, err
	}
	if !reply.Completion() {
		return 0, replyError(reply)
	}
	return parsePassivePort(reply.Text)
}

func (c *Client) peerIsIPv6() bool {
	addr, ok := c.conn.RemoteAddr().(*net.TCPAddr)
	return ok && addr.IP.To4() == nil
}

// finishDataConn closes the data connection and reads the transfer
// completion reply that the server sends once it sees the connection
// go down.
func (c *Client) finishDataConn(ctx context.Context, dataConn net.Conn) error {
	if err := dataConn.Close(); err != nil {
		logger.Debug("Close data connection: %v", err)
	}
	reply, err := c.readReply(ctx)
	if err != nil {
		return err
	}
	logger.Debug("< %d %s", reply.Code, firstLine(reply.Text))
	if !reply.Completion() {
		return replyError(reply)
	}
	return nil
}

// dataStream is a RETR or STOR payload in flight. Closing it finishes
// the transfer on the control connection, so the Close error is the
// server's verdict on the whole transfer.
type dataStream struct {
	client *Client
	conn   net.Conn
	closed bool
}

func (s *dataStream) Read(p []byte) (int, error)  { return s.conn.Read(p) }
func (s *dataStream) Write(p []byte) (int, error) { return s.conn.Write(p) }

func (s *dataStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.finishDataConn(context.Background(), s.conn)
}
