package host

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/marmos91/ftpfs/internal/logger"
	"github.com/marmos91/ftpfs/pkg/stat"
)

// transferChunkSize is the copy buffer size for uploads and downloads.
const transferChunkSize = 64 * 1024

// ProgressFunc is called after every copied chunk with the number of
// bytes moved so far.
type ProgressFunc func(copied int64)

// Upload copies the local file at source to the remote path target.
// Binary transfer; the remote file is created or truncated. progress
// may be nil.
func (h *Host) Upload(ctx context.Context, source, target string, progress ProgressFunc) error {
	src, err := os.Open(source)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := h.Open(ctx, target, "wb")
	if err != nil {
		return err
	}
	if err := copyChunked(ctx, dst, src, progress); err != nil {
		dst.Close()
		return fmt.Errorf("upload %s: %w", target, err)
	}
	// The Close error is the server's verdict on the whole upload.
	if err := dst.Close(); err != nil {
		return fmt.Errorf("upload %s: %w", target, err)
	}
	logger.Debug("Uploaded %s to %s", source, target)
	return nil
}

// Download copies the remote file at source to the local path target.
// Binary transfer; the local file is created or truncated. progress
// may be nil.
func (h *Host) Download(ctx context.Context, source, target string, progress ProgressFunc) error {
	src, err := h.Open(ctx, source, "rb")
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if err := copyChunked(ctx, dst, src, progress); err != nil {
		dst.Close()
		return fmt.Errorf("download %s: %w", source, err)
	}
	if err := dst.Close(); err != nil {
		return err
	}
	if err := src.Close(); err != nil {
		return fmt.Errorf("download %s: %w", source, err)
	}
	logger.Debug("Downloaded %s to %s", source, target)
	return nil
}

// UploadIfNewer uploads source to target unless the remote file exists
// and is at least as new as the local one. Returns whether a transfer
// happened.
func (h *Host) UploadIfNewer(ctx context.Context, source, target string, progress ProgressFunc) (bool, error) {
	info, err := os.Stat(source)
	if err != nil {
		return false, err
	}
	// Local mtimes are exact, so the source carries no imprecision.
	transfer, err := h.targetOutdated(ctx, info.ModTime(), 0, target)
	if err != nil || !transfer {
		return false, err
	}
	return true, h.Upload(ctx, source, target, progress)
}

// DownloadIfNewer downloads source to target unless the local file
// exists and is at least as new as the remote one. The remote mtime is
// only trusted up to its listing precision, so a remote file whose
// timestamp could be newer counts as newer. Returns whether a transfer
// happened.
func (h *Host) DownloadIfNewer(ctx context.Context, source, target string, progress ProgressFunc) (bool, error) {
	result, err := h.svc.Stat(ctx, source)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(target)
	switch {
	case os.IsNotExist(err):
		return true, h.Download(ctx, source, target, progress)
	case err != nil:
		return false, err
	}
	if !sourceIsNewer(result.MTime, result.MTimePrecision, info.ModTime()) {
		return false, nil
	}
	return true, h.Download(ctx, source, target, progress)
}

// targetOutdated reports whether the remote target is missing or older
// than the given source timestamp.
func (h *Host) targetOutdated(ctx context.Context, sourceMTime time.Time, sourcePrecision stat.Precision, target string) (bool, error) {
	result, err := h.svc.StatIfExists(ctx, target)
	if err != nil {
		return false, err
	}
	if result == nil {
		return true, nil
	}
	return sourceIsNewer(sourceMTime, sourcePrecision, result.MTime), nil
}

// sourceIsNewer decides conditional transfers. The source's timestamp
// is only known up to its precision, so the comparison is conservative:
// when the imprecision window reaches the target's mtime, the source
// counts as newer and the file is copied. A needless copy is cheap, a
// skipped fresh file is not.
func sourceIsNewer(sourceMTime time.Time, sourcePrecision stat.Precision, targetMTime time.Time) bool {
	return !sourceMTime.Add(time.Duration(sourcePrecision)).Before(targetMTime)
}

// copyChunked copies src to dst in fixed-size chunks, checking for
// cancellation between chunks and reporting progress after each one.
func copyChunked(ctx context.Context, dst io.Writer, src io.Reader, progress ProgressFunc) error {
	buf := make([]byte, transferChunkSize)
	var copied int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			copied += int64(n)
			if progress != nil {
				progress(copied)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
