package host

import (
	"context"
	"path"
	"time"

	"github.com/marmos91/ftpfs/pkg/stat"
)

// Path bundles the POSIX path helpers of a host. Remote servers use
// forward-slash paths regardless of the client platform, so these wrap
// the slash-only stdlib path package rather than path/filepath, plus
// stat-backed checks (Exists, IsDir, ...) against the host.
type Path struct {
	host *Host
}

// Path returns the path helper view of the host.
func (h *Host) Path() Path {
	return Path{host: h}
}

// Join joins path elements with forward slashes.
func (Path) Join(elem ...string) string {
	return path.Join(elem...)
}

// Split splits p into its directory and file parts.
func (Path) Split(p string) (dir, file string) {
	return path.Split(p)
}

// Dirname returns the directory part of p.
func (Path) Dirname(p string) string {
	return path.Dir(p)
}

// Basename returns the last element of p.
func (Path) Basename(p string) string {
	return path.Base(p)
}

// NormPath cleans p without making it absolute.
func (Path) NormPath(p string) string {
	return path.Clean(p)
}

// IsAbs reports whether p is absolute.
func (Path) IsAbs(p string) bool {
	return path.IsAbs(p)
}

// AbsPath resolves p against the host's working directory and cleans
// it.
func (pa Path) AbsPath(p string) string {
	return pa.host.abs(p)
}

// Exists reports whether p exists on the server. The root always
// exists even though it cannot be stat'ed.
func (pa Path) Exists(ctx context.Context, p string) (bool, error) {
	return pa.host.svc.Exists(ctx, p)
}

// IsDir reports whether p names a directory, following symlinks.
// Missing paths and looping link chains are simply not directories.
func (pa Path) IsDir(ctx context.Context, p string) (bool, error) {
	return pa.host.svc.IsDir(ctx, p)
}

// IsFile reports whether p names a regular file, following symlinks.
func (pa Path) IsFile(ctx context.Context, p string) (bool, error) {
	return pa.host.svc.IsFile(ctx, p)
}

// IsLink reports whether p names a symbolic link.
func (pa Path) IsLink(ctx context.Context, p string) (bool, error) {
	return pa.host.svc.IsLink(ctx, p)
}

// GetMTime returns the modification time of p and its precision,
// following symlinks. The precision bounds how far the time may be off
// and must go into newer/older comparisons.
func (pa Path) GetMTime(ctx context.Context, p string) (time.Time, stat.Precision, error) {
	result, err := pa.host.svc.Stat(ctx, p)
	if err != nil {
		return time.Time{}, stat.PrecisionUnknown, err
	}
	return result.MTime, result.MTimePrecision, nil
}

// GetSize returns the size of p in bytes, following symlinks. Listings
// without a size column yield zero.
func (pa Path) GetSize(ctx context.Context, p string) (int64, error) {
	result, err := pa.host.svc.Stat(ctx, p)
	if err != nil {
		return 0, err
	}
	if result.Size == nil {
		return 0, nil
	}
	return *result.Size, nil
}
