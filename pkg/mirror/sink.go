package mirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Sink is where a mirror task puts its copies. Keys are slash-separated
// paths relative to the task's remote root.
type Sink interface {
	// Put stores the content of r under key, replacing any previous
	// version.
	Put(ctx context.Context, key string, r io.Reader) error

	// Close releases sink resources.
	Close() error
}

// LocalSink mirrors files into a local directory tree.
type LocalSink struct {
	root string
}

// NewLocalSink creates a sink writing under the given directory,
// creating it if needed.
func NewLocalSink(root string) (*LocalSink, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sink directory %s: %w", root, err)
	}
	return &LocalSink{root: root}, nil
}

// Put writes the content to root/key. The file is written to a
// temporary name first so readers never observe a half-written copy.
func (s *LocalSink) Put(ctx context.Context, key string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".mirror-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// Close implements Sink. Local sinks hold no resources.
func (s *LocalSink) Close() error {
	return nil
}
