package main

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/marmos91/ftpfs/internal/logger"
	"github.com/marmos91/ftpfs/pkg/config"
	"github.com/marmos91/ftpfs/pkg/host"
	"github.com/marmos91/ftpfs/pkg/mirror"
	"github.com/marmos91/ftpfs/pkg/stat"
)

// run dispatches one command against a freshly connected host.
func run(ctx context.Context, cfg *config.Config, command string, args []string, flags cmdFlags) error {
	h, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(context.Background()); err != nil {
			logger.Warn("Close failed: %v", err)
		}
	}()

	switch command {
	case "ls":
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		return runList(ctx, h, dir)

	case "stat", "lstat":
		if len(args) != 1 {
			return fmt.Errorf("usage: ftpfs %s <path>", command)
		}
		var result *stat.Result
		if command == "stat" {
			result, err = h.Stat(ctx, args[0])
		} else {
			result, err = h.Lstat(ctx, args[0])
		}
		if err != nil {
			return err
		}
		printResult(args[0], result)
		return nil

	case "get":
		if len(args) != 2 {
			return fmt.Errorf("usage: ftpfs get <remote> <local>")
		}
		if flags.ifNewer {
			copied, err := h.DownloadIfNewer(ctx, args[0], args[1], nil)
			if err == nil && !copied {
				logger.Info("%s is up to date", args[1])
			}
			return err
		}
		return h.Download(ctx, args[0], args[1], nil)

	case "put":
		if len(args) != 2 {
			return fmt.Errorf("usage: ftpfs put <local> <remote>")
		}
		if flags.ifNewer {
			copied, err := h.UploadIfNewer(ctx, args[0], args[1], nil)
			if err == nil && !copied {
				logger.Info("%s is up to date", args[1])
			}
			return err
		}
		return h.Upload(ctx, args[0], args[1], nil)

	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("usage: ftpfs rm [-r] <path>")
		}
		if flags.recursive {
			return h.RmTree(ctx, args[0])
		}
		return h.Remove(ctx, args[0])

	case "mkdir":
		if len(args) != 1 {
			return fmt.Errorf("usage: ftpfs mkdir [-p] <path>")
		}
		if flags.parents {
			return h.MakeDirs(ctx, args[0])
		}
		return h.Mkdir(ctx, args[0])

	case "rmdir":
		if len(args) != 1 {
			return fmt.Errorf("usage: ftpfs rmdir <path>")
		}
		return h.Rmdir(ctx, args[0])

	case "mv":
		if len(args) != 2 {
			return fmt.Errorf("usage: ftpfs mv <from> <to>")
		}
		return h.Rename(ctx, args[0], args[1])

	case "chmod":
		if len(args) != 2 {
			return fmt.Errorf("usage: ftpfs chmod <octal-mode> <path>")
		}
		mode, err := strconv.ParseUint(args[0], 8, 32)
		if err != nil {
			return fmt.Errorf("invalid mode %q: %w", args[0], err)
		}
		return h.Chmod(ctx, args[1], uint32(mode))

	case "sync-clock":
		if err := h.SynchronizeTimes(ctx); err != nil {
			return err
		}
		fmt.Printf("Server clock offset: %v\n", h.TimeShift())
		return nil

	case "mirror":
		return runMirror(ctx, cfg, h)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// runList prints a long listing of a remote directory.
func runList(ctx context.Context, h *host.Host, dir string) error {
	names, err := h.Listdir(ctx, dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		result, err := h.Lstat(ctx, path.Join(dir, name))
		if err != nil {
			logger.Warn("Cannot stat %s: %v", name, err)
			continue
		}
		fmt.Println(formatEntry(result))
	}
	return nil
}

// runMirror executes the configured mirror tasks.
func runMirror(ctx context.Context, cfg *config.Config, h *host.Host) error {
	if len(cfg.Mirror.Tasks) == 0 {
		return fmt.Errorf("no mirror tasks configured")
	}

	hist, err := mirror.OpenHistory(cfg.Mirror.HistoryPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := hist.Close(); err != nil {
			logger.Warn("%v", err)
		}
	}()

	runner := mirror.NewRunner(mirror.NewHostSource(h), hist)
	var sinks []mirror.Sink
	defer func() {
		for _, sink := range sinks {
			if err := sink.Close(); err != nil {
				logger.Warn("Sink close failed: %v", err)
			}
		}
	}()

	for _, taskCfg := range cfg.Mirror.Tasks {
		sink, err := buildSink(ctx, taskCfg.Sink)
		if err != nil {
			return fmt.Errorf("task %s: %w", taskCfg.Name, err)
		}
		sinks = append(sinks, sink)
		if err := runner.Add(mirror.NewTask(taskCfg, sink)); err != nil {
			return err
		}
	}

	err = runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildSink creates the sink a task configuration asks for.
func buildSink(ctx context.Context, cfg config.SinkConfig) (mirror.Sink, error) {
	switch cfg.Type {
	case "local":
		return mirror.NewLocalSink(cfg.Path)
	case "s3":
		return mirror.NewS3Sink(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
}

// printResult prints one stat result, one field per line.
func printResult(requested string, r *stat.Result) {
	fmt.Printf("  Path: %s\n", requested)
	fmt.Printf("  Mode: %s (%04o)\n", formatMode(r.Mode), r.Mode&^stat.ModeTypeMask)
	if r.Nlink != nil {
		fmt.Printf(" Links: %d\n", *r.Nlink)
	}
	if r.Owner != "" || r.Group != "" {
		fmt.Printf(" Owner: %s  Group: %s\n", r.Owner, r.Group)
	}
	if r.Size != nil {
		fmt.Printf("  Size: %d\n", *r.Size)
	}
	fmt.Printf("MTime: %s (precision: %s)\n", r.MTime.Format(time.RFC3339), formatPrecision(r.MTimePrecision))
	if r.LinkTarget != "" {
		fmt.Printf("  Link: %s\n", r.LinkTarget)
	}
}

// formatEntry renders one listing line, ls -l style.
func formatEntry(r *stat.Result) string {
	nlink := "-"
	if r.Nlink != nil {
		nlink = strconv.Itoa(*r.Nlink)
	}
	size := "-"
	if r.Size != nil {
		size = strconv.FormatInt(*r.Size, 10)
	}
	name := r.Name
	if r.LinkTarget != "" {
		name += " -> " + r.LinkTarget
	}
	return fmt.Sprintf("%s %3s %-8s %-8s %10s %s %s",
		formatMode(r.Mode), nlink, r.Owner, r.Group, size, formatMTime(r), name)
}

// formatMTime renders a timestamp at the precision the listing gave.
func formatMTime(r *stat.Result) string {
	switch r.MTimePrecision {
	case stat.PrecisionMinute:
		return r.MTime.Format("Jan _2 15:04")
	case stat.PrecisionDay:
		return r.MTime.Format("Jan _2  2006")
	default:
		return "            "
	}
}

// formatPrecision names a precision for humans.
func formatPrecision(p stat.Precision) string {
	switch p {
	case stat.PrecisionMinute:
		return "minute"
	case stat.PrecisionDay:
		return "day"
	default:
		return "unknown"
	}
}

// formatMode renders mode bits as the familiar ten-character string.
func formatMode(mode uint32) string {
	buf := []byte("----------")
	switch mode & stat.ModeTypeMask {
	case stat.ModeDir:
		buf[0] = 'd'
	case stat.ModeSymlink:
		buf[0] = 'l'
	case stat.ModeBlockDev:
		buf[0] = 'b'
	case stat.ModeCharDev:
		buf[0] = 'c'
	case stat.ModeFIFO:
		buf[0] = 'p'
	case stat.ModeSocket:
		buf[0] = 's'
	}
	perms := "rwxrwxrwx"
	for i := 0; i < 9; i++ {
		if mode&(1<<uint(8-i)) != 0 {
			buf[1+i] = perms[i]
		}
	}
	return string(buf)
}
