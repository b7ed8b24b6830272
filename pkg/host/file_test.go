package host

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sessiontest "github.com/marmos91/ftpfs/pkg/session/testing"
)

func fileScript(t *testing.T, name string, content []byte, size int64) *sessiontest.Script {
	t.Helper()
	mtime := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	script := sessiontest.NewScript()
	script.Dirs["/"] = []string{
		sessiontest.UnixLine("-rw-r--r--", size, mtime, name),
	}
	if content != nil {
		script.Files["/"+name] = content
	}
	return script
}

func TestOpen_ReadBinary(t *testing.T) {
	ctx := context.Background()
	script := fileScript(t, "f.bin", []byte("a\r\nb\r\n"), 6)
	h := connectTestHost(t, script, Options{})

	f, err := h.Open(ctx, "/f.bin", "rb")
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "a\r\nb\r\n", string(data), "binary mode must not translate line endings")
}

func TestOpen_ReadText(t *testing.T) {
	ctx := context.Background()
	script := fileScript(t, "f.txt", []byte("line one\r\nline two\r\n"), 20)
	h := connectTestHost(t, script, Options{})

	f, err := h.Open(ctx, "/f.txt", "r")
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(data))
}

func TestOpen_ReadText_LoneCarriageReturns(t *testing.T) {
	ctx := context.Background()
	script := fileScript(t, "f.txt", []byte("a\rb\r"), 4)
	h := connectTestHost(t, script, Options{})

	f, err := h.Open(ctx, "/f.txt", "r")
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "a\rb\r", string(data), "a CR not followed by LF passes through, even at EOF")
}

func TestOpen_WriteBinary(t *testing.T) {
	ctx := context.Background()
	script := sessiontest.NewScript()
	script.Dirs["/"] = []string{}
	h := connectTestHost(t, script, Options{})

	f, err := h.Open(ctx, "/out.bin", "wb")
	require.NoError(t, err)
	_, err = f.Write([]byte("x\ny\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Equal(t, "x\ny\n", string(script.Written["/out.bin"]))
}

func TestOpen_WriteText(t *testing.T) {
	ctx := context.Background()
	script := sessiontest.NewScript()
	script.Dirs["/"] = []string{}
	h := connectTestHost(t, script, Options{})

	f, err := h.Open(ctx, "/out.txt", "w")
	require.NoError(t, err)
	_, err = io.Copy(f, strings.NewReader("x\ny\nz"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Equal(t, "x\r\ny\r\nz", string(script.Written["/out.txt"]))
}

func TestOpen_Append(t *testing.T) {
	ctx := context.Background()
	script := fileScript(t, "log.txt", []byte("old"), 3)
	h := connectTestHost(t, script, Options{})

	f, err := h.Open(ctx, "/log.txt", "ab")
	require.NoError(t, err)
	_, err = f.Write([]byte("new"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// The existing size was read through the stat pipeline to pick the
	// restart offset
	assert.NotEmpty(t, script.CallsTo("LIST"))
	assert.NotEmpty(t, script.CallsTo("STOR"))
}

func TestOpen_InvalidMode(t *testing.T) {
	ctx := context.Background()
	script := sessiontest.NewScript()
	script.Dirs["/"] = []string{}
	h := connectTestHost(t, script, Options{})

	_, err := h.Open(ctx, "/f", "rw")
	require.Error(t, err)
}

func TestOpen_ReadDirectionOnly(t *testing.T) {
	ctx := context.Background()
	script := fileScript(t, "f.txt", []byte("data"), 4)
	h := connectTestHost(t, script, Options{})

	f, err := h.Open(ctx, "/f.txt", "rb")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("nope"))
	require.Error(t, err)
}

func TestFile_WriteInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	mtime := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	script := fileScript(t, "f.txt", []byte("hello"), 5)
	h := connectTestHost(t, script, Options{})

	result, err := h.Lstat(ctx, "/f.txt")
	require.NoError(t, err)
	require.NotNil(t, result.Size)
	assert.Equal(t, int64(5), *result.Size)

	// The server-side file grows, but the cache still answers with the
	// old record
	script.Dirs["/"] = []string{
		sessiontest.UnixLine("-rw-r--r--", 11, mtime, "f.txt"),
	}
	result, err = h.Lstat(ctx, "/f.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), *result.Size)

	// Writing the file drops its cache entry
	f, err := h.Open(ctx, "/f.txt", "wb")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	result, err = h.Lstat(ctx, "/f.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(11), *result.Size)
}
