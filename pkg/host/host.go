// Package host implements the FTP virtual filesystem facade.
//
// A Host owns one main session for commands and directory listings, a
// stat service with its bounded LRU cache, and a pool of child sessions
// for file transfers. It exposes POSIX-like operations (Listdir, Stat,
// Mkdir, Rename, Walk, Upload, ...) so callers never touch raw FTP
// commands or listing formats.
//
// A Host must be used from one goroutine at a time; FTP sequences one
// command per connection and the cache is tied to the session state.
// Parallel remote access takes independent hosts, each with its own
// factory-opened session and cache.
package host

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/marmos91/ftpfs/internal/logger"
	"github.com/marmos91/ftpfs/pkg/session"
	"github.com/marmos91/ftpfs/pkg/stat"
	"github.com/marmos91/ftpfs/pkg/stat/cache"
)

// Options tunes a Host at connect time. The zero value gives the
// defaults: an enabled cache at its default capacity, format
// auto-detection and no time shift.
type Options struct {
	// CacheCapacity overrides the stat cache capacity. Zero keeps the
	// default.
	CacheCapacity int

	// CacheMaxAge expires cache entries after this age. Zero means no
	// expiry.
	CacheMaxAge time.Duration

	// CacheDisabled starts the host with the stat cache turned off.
	CacheDisabled bool

	// Parser pins a custom listing parser, disabling auto-detection.
	Parser stat.Parser

	// CacheMetrics, when non-nil, receives stat cache observations.
	CacheMetrics cache.Metrics
}

// Host is a virtual filesystem over one FTP server.
type Host struct {
	factory session.Factory
	sess    session.Session
	svc     *stat.Service
	cache   *cache.StatCache

	// cwd is the client-side working directory; relative paths are
	// resolved against it without a server round trip.
	cwd string

	// idle holds child sessions whose file was closed and that can
	// serve the next Open; children holds every child ever opened so
	// Close can end them all.
	idle     []session.Session
	children []session.Session

	closed bool
}

// Connect opens the main session through factory and returns a ready
// Host anchored at the session's initial working directory.
func Connect(ctx context.Context, factory session.Factory, opts Options) (*Host, error) {
	sess, err := factory.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open main session: %w", err)
	}
	cwd, err := sess.CurrentDir(ctx)
	if err != nil {
		sess.Close(ctx)
		return nil, fmt.Errorf("read initial directory: %w", err)
	}

	statCache := cache.New()
	if opts.CacheMetrics != nil {
		statCache.SetMetrics(opts.CacheMetrics)
	}
	if opts.CacheCapacity > 0 {
		if err := statCache.Resize(opts.CacheCapacity); err != nil {
			sess.Close(ctx)
			return nil, err
		}
	}
	if opts.CacheMaxAge > 0 {
		statCache.SetMaxAge(opts.CacheMaxAge)
	}
	if opts.CacheDisabled {
		statCache.Disable()
	}

	h := &Host{
		factory: factory,
		sess:    sess,
		cache:   statCache,
		cwd:     path.Clean(cwd),
	}
	h.svc = stat.NewService(sess, statCache, func() string { return h.cwd })
	if opts.Parser != nil {
		h.svc.SetParser(opts.Parser)
	}
	logger.Debug("Host connected, working directory %s", h.cwd)
	return h, nil
}

// abs anchors p at the current working directory and normalizes it.
func (h *Host) abs(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(h.cwd, p)
}

// Getcwd returns the current working directory. It is tracked client
// side, so no round trip happens.
func (h *Host) Getcwd() string {
	return h.cwd
}

// Chdir changes the working directory. The change runs on the server
// too, so servers that resolve relative paths themselves stay in step.
func (h *Host) Chdir(ctx context.Context, dir string) error {
	target := h.abs(dir)
	if err := h.sess.ChangeDir(ctx, target); err != nil {
		return err
	}
	h.cwd = target
	return nil
}

// Mkdir creates the directory at dir. The parent must exist.
func (h *Host) Mkdir(ctx context.Context, dir string) error {
	target := h.abs(dir)
	// Invalidate even when the command failed: some servers create the
	// directory and still answer with an error.
	defer h.cache.Invalidate(target)
	return h.sess.MakeDir(ctx, target)
}

// MakeDirs creates the directory at dir together with any missing
// parents, like mkdir -p. Existing directories along the way are fine;
// an existing non-directory is an error.
func (h *Host) MakeDirs(ctx context.Context, dir string) error {
	target := h.abs(dir)
	// Walk outward from the root so each MakeDir has its parent.
	next := "/"
	rest := target
	for rest != "/" && rest != "" {
		var head string
		head, rest = splitFirstComponent(rest)
		next = path.Join(next, head)
		isDir, err := h.svc.IsDir(ctx, next)
		if err != nil {
			return err
		}
		if isDir {
			continue
		}
		exists, err := h.svc.Exists(ctx, next)
		if err != nil {
			return err
		}
		if exists {
			return &stat.Error{
				Code:    stat.ErrNotFound,
				Message: "path exists but is not a directory",
				Path:    next,
			}
		}
		if err := h.Mkdir(ctx, next); err != nil {
			return err
		}
	}
	return nil
}

// splitFirstComponent splits "/a/b/c" into "a" and "/b/c".
func splitFirstComponent(p string) (head, rest string) {
	p = p[1:] // leading slash
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			return p[:i], p[i:]
		}
	}
	return p, "/"
}

// Rmdir removes the empty directory at dir.
func (h *Host) Rmdir(ctx context.Context, dir string) error {
	target := h.abs(dir)
	defer h.cache.Invalidate(target)
	return h.sess.RemoveDir(ctx, target)
}

// Remove deletes the file at name.
func (h *Host) Remove(ctx context.Context, name string) error {
	target := h.abs(name)
	defer h.cache.Invalidate(target)
	return h.sess.RemoveFile(ctx, target)
}

// Rename moves source to target. Both paths drop out of the cache,
// even on failure, since servers differ on which half of a failed
// rename took effect.
func (h *Host) Rename(ctx context.Context, source, target string) error {
	from, to := h.abs(source), h.abs(target)
	defer func() {
		h.cache.Invalidate(from)
		h.cache.Invalidate(to)
	}()
	return h.sess.Rename(ctx, from, to)
}

// Chmod sets the permission bits of the entry at name, on servers with
// the SITE CHMOD extension.
func (h *Host) Chmod(ctx context.Context, name string, mode uint32) error {
	target := h.abs(name)
	defer h.cache.Invalidate(target)
	return h.sess.Chmod(ctx, target, mode&0o7777)
}

// KeepAlive keeps the main control connection from idling out. It is
// cheap and safe to call at any point between operations.
func (h *Host) KeepAlive(ctx context.Context) error {
	return h.sess.Noop(ctx)
}

// Listdir returns the names of the entries in dir, in listing order.
func (h *Host) Listdir(ctx context.Context, dir string) ([]string, error) {
	return h.svc.Listdir(ctx, dir)
}

// Lstat returns the stat result for name without following symlinks.
func (h *Host) Lstat(ctx context.Context, name string) (*stat.Result, error) {
	return h.svc.Lstat(ctx, name)
}

// Stat returns the stat result for name, following symlinks.
func (h *Host) Stat(ctx context.Context, name string) (*stat.Result, error) {
	return h.svc.Stat(ctx, name)
}

// SetParser installs a custom listing parser for servers whose format
// neither built-in parser understands. The cache is cleared and format
// auto-detection is permanently disabled.
func (h *Host) SetParser(parser stat.Parser) {
	h.svc.SetParser(parser)
}

// Cache exposes the stat cache for management: invalidation, resizing,
// enabling and disabling.
func (h *Host) Cache() stat.Cache {
	return h.cache
}

// StatService exposes the stat service, mainly for callers composing
// their own higher-level operations.
func (h *Host) StatService() *stat.Service {
	return h.svc
}

// Close clears the cache and ends every session the host opened. The
// host is unusable afterwards. Closing twice is a no-op.
func (h *Host) Close(ctx context.Context) error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.cache.Clear()
	var errs []error
	for _, child := range h.children {
		if err := child.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	h.children = nil
	h.idle = nil
	if err := h.sess.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	logger.Debug("Host closed")
	return errors.Join(errs...)
}

// acquireChild hands out a session for a file transfer, reusing an
// idle one when possible.
func (h *Host) acquireChild(ctx context.Context) (session.Session, error) {
	if n := len(h.idle); n > 0 {
		sess := h.idle[n-1]
		h.idle = h.idle[:n-1]
		return sess, nil
	}
	sess, err := h.factory.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open transfer session: %w", err)
	}
	h.children = append(h.children, sess)
	return sess, nil
}

// releaseChild returns a transfer session to the idle pool.
func (h *Host) releaseChild(sess session.Session) {
	if h.closed {
		return
	}
	h.idle = append(h.idle, sess)
}
