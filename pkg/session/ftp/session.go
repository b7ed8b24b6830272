// Package ftp provides the production Session implementation over the
// FTP client in internal/protocol/ftp.
//
// Each Open dials a fresh control connection, logs in and optionally
// changes into a start directory. Commands are paced through a token
// bucket because a number of servers drop clients that burst commands.
package ftp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/ftpfs/internal/logger"
	"github.com/marmos91/ftpfs/internal/protocol/ftp"
	"github.com/marmos91/ftpfs/internal/ratelimiter"
	"github.com/marmos91/ftpfs/pkg/session"
)

// Config carries everything needed to open sessions to one server.
type Config struct {
	// Address is the host:port of the server.
	Address string

	// User and Password are the login credentials. Anonymous servers
	// take "anonymous" with any password.
	User     string
	Password string

	// TLSConfig, when non-nil, upgrades connections with explicit TLS
	// (AUTH TLS) and protects the data channel.
	TLSConfig *tls.Config

	// Timeout bounds each control-channel round trip. Zero means no
	// limit.
	Timeout time.Duration

	// StartDir, when non-empty, is changed into right after login.
	StartDir string

	// CommandsPerSecond limits the sustained command rate per session.
	// Zero means unlimited.
	CommandsPerSecond uint
}

// Factory opens FTP sessions for one configured server.
type Factory struct {
	cfg     Config
	metrics session.Metrics
}

// NewFactory returns a Factory for the given server. metrics may be
// nil, in which case no metrics are collected.
func NewFactory(cfg Config, metrics session.Metrics) *Factory {
	if metrics == nil {
		metrics = session.NoopMetrics{}
	}
	return &Factory{cfg: cfg, metrics: metrics}
}

// Open dials a new session: connect, login, optional start directory.
func (f *Factory) Open(ctx context.Context) (session.Session, error) {
	start := time.Now()
	client, err := f.dial(ctx)
	f.metrics.RecordDial(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return &ftpSession{
		client:  client,
		pacer:   ratelimiter.New(f.cfg.CommandsPerSecond, 2*f.cfg.CommandsPerSecond),
		metrics: f.metrics,
	}, nil
}

func (f *Factory) dial(ctx context.Context) (*ftp.Client, error) {
	client, err := ftp.Dial(ctx, ftp.Config{
		Address:   f.cfg.Address,
		Timeout:   f.cfg.Timeout,
		TLSConfig: f.cfg.TLSConfig,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Login(ctx, f.cfg.User, f.cfg.Password); err != nil {
		client.Close()
		return nil, fmt.Errorf("login as %s: %w", f.cfg.User, err)
	}
	if f.cfg.StartDir != "" {
		if err := client.ChangeDir(ctx, f.cfg.StartDir); err != nil {
			client.Close()
			return nil, fmt.Errorf("change to start directory %s: %w", f.cfg.StartDir, err)
		}
	}
	logger.Debug("Opened session to %s", f.cfg.Address)
	return client, nil
}

// ftpSession adapts *ftp.Client to session.Session, adding command
// pacing and metrics.
type ftpSession struct {
	client  *ftp.Client
	pacer   *ratelimiter.CommandPacer
	metrics session.Metrics
}

func (s *ftpSession) ListLines(ctx context.Context, path string) ([]string, error) {
	if err := s.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	lines, err := s.client.List(ctx, path, true)
	s.metrics.RecordCommand("LIST", err)
	return lines, err
}

func (s *ftpSession) CurrentDir(ctx context.Context) (string, error) {
	if err := s.pacer.Wait(ctx); err != nil {
		return "", err
	}
	dir, err := s.client.CurrentDir(ctx)
	s.metrics.RecordCommand("PWD", err)
	return dir, err
}

func (s *ftpSession) ChangeDir(ctx context.Context, path string) error {
	return s.run(ctx, "CWD", func() error { return s.client.ChangeDir(ctx, path) })
}

func (s *ftpSession) MakeDir(ctx context.Context, path string) error {
	return s.run(ctx, "MKD", func() error { return s.client.MakeDir(ctx, path) })
}

func (s *ftpSession) RemoveDir(ctx context.Context, path string) error {
	return s.run(ctx, "RMD", func() error { return s.client.RemoveDir(ctx, path) })
}

func (s *ftpSession) RemoveFile(ctx context.Context, path string) error {
	return s.run(ctx, "DELE", func() error { return s.client.RemoveFile(ctx, path) })
}

func (s *ftpSession) Rename(ctx context.Context, from, to string) error {
	return s.run(ctx, "RNFR", func() error { return s.client.Rename(ctx, from, to) })
}

func (s *ftpSession) Chmod(ctx context.Context, path string, mode uint32) error {
	return s.run(ctx, "SITE", func() error { return s.client.SiteChmod(ctx, path, mode) })
}

func (s *ftpSession) Noop(ctx context.Context) error {
	// Keep-alives are dispensable: when the bucket is empty the session
	// is busy enough to not need one.
	if !s.pacer.Allow() {
		return nil
	}
	err := s.client.Noop(ctx)
	s.metrics.RecordCommand("NOOP", err)
	return err
}

func (s *ftpSession) Retrieve(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	if err := s.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	rc, err := s.client.Retrieve(ctx, path, offset)
	s.metrics.RecordCommand("RETR", err)
	if err != nil {
		return nil, err
	}
	return &countingReader{inner: rc, metrics: s.metrics}, nil
}

func (s *ftpSession) Store(ctx context.Context, path string, offset int64) (io.WriteCloser, error) {
	if err := s.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	wc, err := s.client.Store(ctx, path, offset)
	s.metrics.RecordCommand("STOR", err)
	if err != nil {
		return nil, err
	}
	return &countingWriter{inner: wc, metrics: s.metrics}, nil
}

func (s *ftpSession) Close(ctx context.Context) error {
	err := s.client.Quit(ctx)
	s.metrics.RecordCommand("QUIT", err)
	return err
}

// run paces and executes one simple command, recording its outcome.
func (s *ftpSession) run(ctx context.Context, verb string, fn func() error) error {
	if err := s.pacer.Wait(ctx); err != nil {
		return err
	}
	err := fn()
	s.metrics.RecordCommand(verb, err)
	return err
}

// countingReader forwards reads and counts payload bytes.
type countingReader struct {
	inner   io.ReadCloser
	metrics session.Metrics
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		r.metrics.RecordBytesIn(int64(n))
	}
	return n, err
}

func (r *countingReader) Close() error { return r.inner.Close() }

// countingWriter forwards writes and counts payload bytes.
type countingWriter struct {
	inner   io.WriteCloser
	metrics session.Metrics
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.inner.Write(p)
	if n > 0 {
		w.metrics.RecordBytesOut(int64(n))
	}
	return n, err
}

func (w *countingWriter) Close() error { return w.inner.Close() }
