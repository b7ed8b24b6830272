package host

import (
	"context"
	"fmt"
	"io"

	"github.com/marmos91/ftpfs/pkg/session"
)

// File is a remote file opened for streaming reading or writing. Each
// open file runs on its own child session, because an FTP connection
// can carry only one transfer at a time and the main session has to
// stay free for commands.
//
// A File is either readable or writable, never both; FTP has no
// read-write file handles.
type File struct {
	host *Host
	sess session.Session
	path string

	reader io.ReadCloser
	writer io.WriteCloser
	closed bool
}

// Open opens the remote file at name. Modes follow the conventions of
// file modes elsewhere: "r"/"rb" read, "w"/"wb" write (truncating),
// "a"/"ab" append. The single-letter forms are text mode, which
// translates "\r\n" to "\n" on reads and back on writes; the "b" forms
// move bytes untouched.
func (h *Host) Open(ctx context.Context, name, mode string) (*File, error) {
	target := h.abs(name)
	var (
		read       bool
		appendMode bool
		text       bool
	)
	switch mode {
	case "r":
		read, text = true, true
	case "rb":
		read = true
	case "w":
		text = true
	case "wb":
	case "a":
		appendMode, text = true, true
	case "ab":
		appendMode = true
	default:
		return nil, fmt.Errorf("invalid file mode %q", mode)
	}

	sess, err := h.acquireChild(ctx)
	if err != nil {
		return nil, err
	}
	file := &File{host: h, sess: sess, path: target}

	if read {
		rc, err := sess.Retrieve(ctx, target, 0)
		if err != nil {
			h.releaseChild(sess)
			return nil, err
		}
		file.reader = rc
		if text {
			file.reader = &crlfReader{inner: rc}
		}
		return file, nil
	}

	var offset int64
	if appendMode {
		result, err := h.svc.StatIfExists(ctx, target)
		if err != nil {
			h.releaseChild(sess)
			return nil, err
		}
		if result != nil && result.Size != nil {
			offset = *result.Size
		}
	}
	wc, err := sess.Store(ctx, target, offset)
	if err != nil {
		h.releaseChild(sess)
		return nil, err
	}
	file.writer = wc
	if text {
		file.writer = &crlfWriter{inner: wc}
	}
	return file, nil
}

// Name returns the absolute remote path of the file.
func (f *File) Name() string { return f.path }

// Read reads from an open-for-reading file.
func (f *File) Read(p []byte) (int, error) {
	if f.reader == nil {
		return 0, fmt.Errorf("file %s not open for reading", f.path)
	}
	return f.reader.Read(p)
}

// Write writes to an open-for-writing file.
func (f *File) Write(p []byte) (int, error) {
	if f.writer == nil {
		return 0, fmt.Errorf("file %s not open for writing", f.path)
	}
	return f.writer.Write(p)
}

// Close finishes the transfer and returns the session to the host's
// pool. For written files the Close error is the server's verdict on
// the whole upload and the cache entry for the path is dropped, since
// its stat result changed.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	var err error
	if f.reader != nil {
		err = f.reader.Close()
	}
	if f.writer != nil {
		err = f.writer.Close()
		f.host.cache.Invalidate(f.path)
	}
	f.host.releaseChild(f.sess)
	return err
}

// crlfReader translates "\r\n" into "\n". A "\r" at a read boundary is
// held back until the next byte says whether it starts a line ending;
// a lone "\r" passes through unchanged.
type crlfReader struct {
	inner     io.ReadCloser
	raw       [4096]byte
	buf       []byte // undelivered raw bytes, a window into raw
	pendingCR bool
	err       error // deferred inner error, delivered once buf drains
}

func (r *crlfReader) Read(p []byte) (int, error) {
	out := 0
	for out < len(p) {
		if len(r.buf) == 0 {
			if r.err != nil {
				break
			}
			n, err := r.inner.Read(r.raw[:])
			r.buf = r.raw[:n]
			r.err = err
			if n == 0 && err == nil {
				break
			}
			continue
		}
		c := r.buf[0]
		if r.pendingCR {
			r.pendingCR = false
			if c == '\n' {
				p[out] = '\n'
				out++
				r.buf = r.buf[1:]
				continue
			}
			// Lone CR; c stays buffered for the next round.
			p[out] = '\r'
			out++
			continue
		}
		if c == '\r' {
			r.pendingCR = true
			r.buf = r.buf[1:]
			continue
		}
		p[out] = c
		out++
		r.buf = r.buf[1:]
	}
	if out == 0 {
		if r.pendingCR && r.err != nil && len(p) > 0 {
			// The stream ended on a CR; hand it through before EOF.
			r.pendingCR = false
			p[0] = '\r'
			return 1, nil
		}
		return 0, r.err
	}
	return out, nil
}

func (r *crlfReader) Close() error {
	return r.inner.Close()
}

// crlfWriter translates "\n" into "\r\n".
type crlfWriter struct {
	inner io.WriteCloser
}

func (w *crlfWriter) Write(p []byte) (int, error) {
	written := 0
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] != '\n' {
			continue
		}
		if _, err := w.inner.Write(p[start:i]); err != nil {
			return written, err
		}
		written += i - start
		if _, err := w.inner.Write([]byte{'\r', '\n'}); err != nil {
			return written, err
		}
		written++ // the '\n' consumed from p
		start = i + 1
	}
	if start < len(p) {
		n, err := w.inner.Write(p[start:])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (w *crlfWriter) Close() error {
	return w.inner.Close()
}
