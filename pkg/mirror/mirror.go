// Package mirror copies remote directory trees into local or S3 sinks,
// incrementally and optionally on a schedule.
//
// A mirror task walks its remote root, compares every regular file
// against the persistent transfer history, and copies only files whose
// size or listed mtime changed since the last run. Exclusions prune
// directories before they are listed, so excluded subtrees cost
// nothing.
package mirror

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/marmos91/ftpfs/internal/logger"
	"github.com/marmos91/ftpfs/pkg/config"
	"github.com/marmos91/ftpfs/pkg/host"
	"github.com/marmos91/ftpfs/pkg/stat"
)

// Source is the remote side of a mirror task. *host.Host satisfies it
// through NewHostSource.
type Source interface {
	// Walk walks the remote tree rooted at root, calling fn for every
	// entry.
	Walk(ctx context.Context, root string, fn host.WalkFunc) error

	// Retrieve opens the remote file for reading in binary mode.
	Retrieve(ctx context.Context, path string) (io.ReadCloser, error)
}

// hostSource adapts a connected Host to the Source interface.
type hostSource struct {
	h *host.Host
}

// NewHostSource wraps a connected host as a mirror source.
func NewHostSource(h *host.Host) Source {
	return &hostSource{h: h}
}

func (s *hostSource) Walk(ctx context.Context, root string, fn host.WalkFunc) error {
	return s.h.Walk(ctx, root, fn)
}

func (s *hostSource) Retrieve(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := s.h.Open(ctx, path, "rb")
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Task is one configured mirror task.
type Task struct {
	// Name identifies the task in logs and in the history database
	Name string

	// RemoteRoot is the remote directory to mirror
	RemoteRoot string

	// Schedule is a cron expression; empty means run once
	Schedule string

	exclude mapset.Set[string]
	sink    Sink
}

// NewTask builds a task from its configuration and sink.
func NewTask(cfg config.MirrorTaskConfig, sink Sink) *Task {
	exclude := mapset.NewSet[string]()
	for _, name := range cfg.Exclude {
		exclude.Add(name)
	}
	return &Task{
		Name:       cfg.Name,
		RemoteRoot: cfg.RemoteRoot,
		Schedule:   cfg.Schedule,
		exclude:    exclude,
		sink:       sink,
	}
}

// Stats summarizes one mirror run.
type Stats struct {
	// Scanned counts the regular files considered
	Scanned int

	// Copied counts the files actually transferred
	Copied int

	// Skipped counts the files unchanged since the last run
	Skipped int

	// Failed counts the entries that could not be listed or copied
	Failed int
}

// Run executes the task once: walk the remote root, copy changed files
// into the sink and record them in the history.
//
// Individual file failures are logged and counted but do not abort the
// run; a missing or unreadable root does.
func (t *Task) Run(ctx context.Context, src Source, hist *History) (*Stats, error) {
	runID := uuid.NewString()
	started := time.Now()
	stats := &Stats{}

	logger.Info("Mirror task %s: run %s starting at %s", t.Name, runID, t.RemoteRoot)

	err := src.Walk(ctx, t.RemoteRoot, func(p string, info *stat.Result, err error) error {
		if err != nil {
			if p == t.RemoteRoot {
				// Nothing to mirror without a readable root.
				return err
			}
			logger.Warn("Mirror task %s: cannot list %s: %v", t.Name, p, err)
			stats.Failed++
			return nil
		}

		if t.exclude.Contains(path.Base(p)) && p != t.RemoteRoot {
			if info.IsDir() {
				return host.SkipDir
			}
			return nil
		}

		// Directories only structure the walk; symlinks are never
		// followed into the sink.
		if !info.IsRegular() {
			return nil
		}

		stats.Scanned++
		if err := t.mirrorFile(ctx, src, hist, p, info, stats); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	logger.Info("Mirror task %s: run %s done in %v (%d scanned, %d copied, %d skipped, %d failed)",
		t.Name, runID, time.Since(started).Round(time.Millisecond),
		stats.Scanned, stats.Copied, stats.Skipped, stats.Failed)
	return stats, nil
}

// mirrorFile copies one regular file if the history says it changed.
func (t *Task) mirrorFile(ctx context.Context, src Source, hist *History, p string, info *stat.Result, stats *Stats) error {
	prev, err := hist.Get(t.Name, p)
	if err != nil {
		return err
	}
	if prev != nil && info.Size != nil && *info.Size == prev.Size && info.MTime.Equal(prev.MTime) {
		stats.Skipped++
		return nil
	}

	r, err := src.Retrieve(ctx, p)
	if err != nil {
		logger.Warn("Mirror task %s: cannot retrieve %s: %v", t.Name, p, err)
		stats.Failed++
		return nil
	}
	putErr := t.sink.Put(ctx, t.relKey(p), r)
	if closeErr := r.Close(); putErr == nil {
		putErr = closeErr
	}
	if putErr != nil {
		logger.Warn("Mirror task %s: cannot store %s: %v", t.Name, p, putErr)
		stats.Failed++
		return nil
	}

	entry := &Entry{MTime: info.MTime, MirroredAt: time.Now().UTC()}
	if info.Size != nil {
		entry.Size = *info.Size
	}
	if err := hist.Put(t.Name, p, entry); err != nil {
		return err
	}
	stats.Copied++
	logger.Debug("Mirror task %s: copied %s", t.Name, p)
	return nil
}

// relKey turns an absolute remote path into the sink key relative to
// the task root.
func (t *Task) relKey(p string) string {
	rel := strings.TrimPrefix(p, t.RemoteRoot)
	return strings.TrimPrefix(rel, "/")
}
