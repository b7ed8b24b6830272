package host

import (
	"context"
	"errors"
	"io/fs"
	"path"

	"github.com/marmos91/ftpfs/internal/logger"
	"github.com/marmos91/ftpfs/pkg/stat"
)

// SkipDir makes Walk skip the directory it was reported for. It is the
// standard library's sentinel, so walk funcs shared with local walks
// keep working.
var SkipDir = fs.SkipDir

// WalkFunc is called by Walk for every visited entry. err carries
// listing failures for the entry; info is nil in that case. Returning
// SkipDir for a directory prunes it.
type WalkFunc func(path string, info *stat.Result, err error) error

// Walk walks the remote tree rooted at root top-down, calling fn for
// the root and then for every entry below it. Every visited directory
// costs one LIST round trip; the per-entry stat results come from the
// cache that listing just filled.
func (h *Host) Walk(ctx context.Context, root string, fn WalkFunc) error {
	target := h.abs(root)
	info, err := h.rootInfo(ctx, target)
	if err != nil {
		err = fn(target, nil, err)
	} else {
		err = h.walk(ctx, target, info, fn)
	}
	if errors.Is(err, SkipDir) {
		return nil
	}
	return err
}

// rootInfo stats the walk root. The filesystem root cannot be stat'ed
// (it has no parent to list) and gets a synthetic directory record.
func (h *Host) rootInfo(ctx context.Context, target string) (*stat.Result, error) {
	if target == "/" {
		return &stat.Result{Mode: stat.ModeDir | 0o555, Name: "/"}, nil
	}
	return h.svc.Lstat(ctx, target)
}

func (h *Host) walk(ctx context.Context, p string, info *stat.Result, fn WalkFunc) error {
	if err := fn(p, info, nil); err != nil {
		if info.IsDir() && errors.Is(err, SkipDir) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return nil
	}
	names, err := h.svc.Listdir(ctx, p)
	if err != nil {
		// The directory was announced but cannot be read; the walk
		// func decides whether that ends the walk.
		return fn(p, info, err)
	}
	for _, name := range names {
		childPath := path.Join(p, name)
		childInfo, err := h.svc.Lstat(ctx, childPath)
		if err != nil {
			if err := fn(childPath, nil, err); err != nil && !errors.Is(err, SkipDir) {
				return err
			}
			continue
		}
		if err := h.walk(ctx, childPath, childInfo, fn); err != nil {
			return err
		}
	}
	return nil
}

// RmTree removes the directory tree rooted at root. The root must be a
// directory and must not be a symlink to one, mirroring the semantics
// of local recursive deletes. Individual delete failures abort the
// operation with the first error.
func (h *Host) RmTree(ctx context.Context, root string) error {
	target := h.abs(root)
	isLink, err := h.svc.IsLink(ctx, target)
	if err != nil {
		return err
	}
	if isLink {
		return &stat.Error{
			Code:    stat.ErrNotFound,
			Message: "refusing to remove tree through a symbolic link",
			Path:    target,
		}
	}
	isDir, err := h.svc.IsDir(ctx, target)
	if err != nil {
		return err
	}
	if !isDir {
		return &stat.Error{
			Code:    stat.ErrNotFound,
			Message: "no such directory",
			Path:    target,
		}
	}
	return h.removeTree(ctx, target)
}

// removeTree deletes the contents of dir depth-first, then dir itself.
func (h *Host) removeTree(ctx context.Context, dir string) error {
	names, err := h.svc.Listdir(ctx, dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		childPath := path.Join(dir, name)
		info, err := h.svc.Lstat(ctx, childPath)
		if err != nil {
			return err
		}
		// Symlinks are removed as entries, never followed; following
		// one here could delete files outside the tree.
		if info.IsDir() {
			err = h.removeTree(ctx, childPath)
		} else {
			err = h.Remove(ctx, childPath)
		}
		if err != nil {
			return err
		}
	}
	logger.Debug("Removing directory %s", dir)
	return h.Rmdir(ctx, dir)
}
