package stat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLister serves canned listings keyed by absolute path. Unknown
// paths yield an empty listing, like a server that answers LIST for
// any path.
type fakeLister struct {
	dirs  map[string][]string
	errs  map[string]error
	calls []string
}

func (l *fakeLister) ListLines(_ context.Context, p string) ([]string, error) {
	l.calls = append(l.calls, p)
	if err, ok := l.errs[p]; ok {
		return nil, err
	}
	return l.dirs[p], nil
}

// fakeCache is a minimal Cache for service tests. It records Clear and
// Resize calls so parser and growth behavior can be asserted.
type fakeCache struct {
	entries    map[string]*Result
	enabled    bool
	capacity   int
	maxAge     time.Duration
	clearCalls int
	resizes    []int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*Result), enabled: true, capacity: 1000}
}

func (c *fakeCache) Get(p string) (*Result, bool) {
	if !c.enabled {
		return nil, false
	}
	result, ok := c.entries[p]
	return result, ok
}

func (c *fakeCache) Set(p string, result *Result) {
	if !c.enabled {
		return
	}
	c.entries[p] = result
}

func (c *fakeCache) Invalidate(p string) { delete(c.entries, p) }

func (c *fakeCache) Clear() {
	c.clearCalls++
	c.entries = make(map[string]*Result)
}

func (c *fakeCache) Resize(capacity int) error {
	c.resizes = append(c.resizes, capacity)
	c.capacity = capacity
	return nil
}

func (c *fakeCache) Len() int                  { return len(c.entries) }
func (c *fakeCache) Capacity() int             { return c.capacity }
func (c *fakeCache) Enable()                   { c.enabled = true }
func (c *fakeCache) Disable()                  { c.enabled = false }
func (c *fakeCache) Enabled() bool             { return c.enabled }
func (c *fakeCache) SetMaxAge(d time.Duration) { c.maxAge = d }
func (c *fakeCache) MaxAge() time.Duration     { return c.maxAge }

func unixRootLines() []string {
	return []string{
		"total 14",
		"drwxr-xr-x   2 45854    200           512 May  4  2000 dir1",
		"-rw-r--r--   1 45854    200          4604 May  4  2000 index.html",
		"drwxr-xr-x   2 45854    200           512 Jul 30  2000 dir with spaces",
		"lrwxrwxrwx   1 45854    200             7 May  4  2000 link -> target",
		"-rw-r--r--   1 45854    200             9 May  4  2000 target",
	}
}

func msRootLines() []string {
	return []string{
		"07-27-01  11:16AM       <DIR>          Test",
		"10-23-95  03:25PM       <DIR>          WindowsXP",
		"07-17-00  02:08PM             12266720 test.exe",
	}
}

func newTestService(dirs map[string][]string) (*Service, *fakeLister, *fakeCache) {
	lister := &fakeLister{dirs: dirs}
	cache := newFakeCache()
	return NewService(lister, cache, nil), lister, cache
}

func TestServiceListdir(t *testing.T) {
	service, lister, cache := newTestService(map[string][]string{"/": unixRootLines()})

	names, err := service.Listdir(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"dir1", "index.html", "dir with spaces", "link", "target"}, names)
	assert.Equal(t, []string{"/"}, lister.calls)

	// Every entry went into the cache under its absolute path.
	for _, name := range names {
		_, ok := cache.entries["/"+name]
		assert.True(t, ok, "missing cache entry for %q", name)
	}
}

func TestServiceListdirPopulatesCache(t *testing.T) {
	service, lister, _ := newTestService(map[string][]string{"/": unixRootLines()})
	ctx := context.Background()

	_, err := service.Listdir(ctx, "/")
	require.NoError(t, err)

	// The sibling lookup is answered from the cache without another
	// LIST round trip.
	result, err := service.Lstat(ctx, "/index.html")
	require.NoError(t, err)
	assert.Equal(t, []string{"/"}, lister.calls)
	assert.Equal(t, uint32(0o100644), result.Mode)
	assert.Equal(t, int64Ptr(4604), result.Size)
}

func TestServiceListdirOfMissingDirectory(t *testing.T) {
	service, _, _ := newTestService(map[string][]string{"/": unixRootLines()})

	_, err := service.Listdir(context.Background(), "/notthere")
	var statErr *Error
	require.True(t, errors.As(err, &statErr))
	assert.Equal(t, ErrNotFound, statErr.Code)
	assert.Equal(t, "/notthere", statErr.Path)
}

func TestServiceLstat(t *testing.T) {
	service, _, _ := newTestService(map[string][]string{"/": unixRootLines()})
	ctx := context.Background()

	result, err := service.Lstat(ctx, "/index.html")
	require.NoError(t, err)
	assert.Equal(t, uint32(0o100644), result.Mode)
	assert.Equal(t, intPtr(1), result.Nlink)
	assert.Equal(t, "45854", result.Owner)
	assert.Equal(t, "200", result.Group)
	assert.Equal(t, int64Ptr(4604), result.Size)
	assert.Equal(t, time.Date(2000, 5, 4, 0, 0, 0, 0, time.UTC), result.MTime)
	assert.Equal(t, PrecisionDay, result.MTimePrecision)
	assert.Equal(t, "index.html", result.Name)
	assert.True(t, result.IsRegular())
}

func TestServiceLstatRootDirectory(t *testing.T) {
	service, _, _ := newTestService(map[string][]string{"/": unixRootLines()})

	_, err := service.Lstat(context.Background(), "/")
	var statErr *Error
	require.True(t, errors.As(err, &statErr))
	assert.Equal(t, ErrRootDir, statErr.Code)
}

func TestServiceLstatMissingPath(t *testing.T) {
	service, _, _ := newTestService(map[string][]string{"/": unixRootLines()})
	ctx := context.Background()

	_, err := service.Lstat(ctx, "/notthere")
	var statErr *Error
	require.True(t, errors.As(err, &statErr))
	assert.Equal(t, ErrNotFound, statErr.Code)
	assert.Equal(t, "/notthere", statErr.Path)

	result, err := service.LstatIfExists(ctx, "/notthere")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestServiceLstatDuplicateNamesLastWins(t *testing.T) {
	service, _, _ := newTestService(map[string][]string{"/": {
		"-rw-r--r--   1 45854    200           100 May  4  2000 dup",
		"-rw-r--r--   1 45854    200           200 May  4  2000 dup",
	}})

	result, err := service.Lstat(context.Background(), "/dup")
	require.NoError(t, err)
	assert.Equal(t, int64Ptr(200), result.Size)
}

func TestServiceStatFollowsSymlinks(t *testing.T) {
	service, _, _ := newTestService(map[string][]string{"/": unixRootLines()})
	ctx := context.Background()

	lstatResult, err := service.Lstat(ctx, "/link")
	require.NoError(t, err)
	assert.True(t, lstatResult.IsSymlink())
	assert.Equal(t, "target", lstatResult.LinkTarget)

	statResult, err := service.Stat(ctx, "/link")
	require.NoError(t, err)
	assert.True(t, statResult.IsRegular())
	assert.Equal(t, int64Ptr(9), statResult.Size)
	assert.Equal(t, "target", statResult.Name)
}

func TestServiceStatFollowsLinkChains(t *testing.T) {
	service, _, _ := newTestService(map[string][]string{"/": {
		"lrwxrwxrwx   1 45854    200             4 May  4  2000 link_link -> link",
		"lrwxrwxrwx   1 45854    200             6 May  4  2000 link -> target",
		"-rw-r--r--   1 45854    200             9 May  4  2000 target",
	}})

	result, err := service.Stat(context.Background(), "/link_link")
	require.NoError(t, err)
	assert.True(t, result.IsRegular())
	assert.Equal(t, "target", result.Name)
}

func TestServiceStatRecursiveLinks(t *testing.T) {
	service, _, _ := newTestService(map[string][]string{"/": {
		"lrwxrwxrwx   1 45854    200             9 May  4  2000 bad_link1 -> bad_link2",
		"lrwxrwxrwx   1 45854    200             9 May  4  2000 bad_link2 -> bad_link1",
	}})
	ctx := context.Background()

	_, err := service.Stat(ctx, "/bad_link1")
	var statErr *Error
	require.True(t, errors.As(err, &statErr))
	assert.Equal(t, ErrRecursiveLinks, statErr.Code)
	assert.Equal(t, "/bad_link1", statErr.Path)

	// Existence checks treat a looping chain as "not that entity"
	// instead of failing.
	isDir, err := service.IsDir(ctx, "/bad_link1")
	require.NoError(t, err)
	assert.False(t, isDir)
	isFile, err := service.IsFile(ctx, "/bad_link1")
	require.NoError(t, err)
	assert.False(t, isFile)
}

func TestServiceStatBrokenLinkReportsOriginalPath(t *testing.T) {
	service, _, _ := newTestService(map[string][]string{"/": {
		"lrwxrwxrwx   1 45854    200             8 May  4  2000 dead -> notthere",
	}})

	_, err := service.Stat(context.Background(), "/dead")
	var statErr *Error
	require.True(t, errors.As(err, &statErr))
	assert.Equal(t, ErrNotFound, statErr.Code)
	assert.Equal(t, "/dead", statErr.Path)
}

func TestServiceParserSwitchesToMS(t *testing.T) {
	service, _, _ := newTestService(map[string][]string{"/": msRootLines()})
	ctx := context.Background()

	result, err := service.Lstat(ctx, "/Test")
	require.NoError(t, err)
	assert.True(t, result.IsDir())
	assert.Equal(t, uint32(0o40400), result.Mode)

	_, isMS := service.Parser().(*MSParser)
	assert.True(t, isMS)
	assert.False(t, service.parserSwitchingAllowed())
}

func TestServiceParserSwitchKeptAfterNotFound(t *testing.T) {
	service, _, _ := newTestService(map[string][]string{"/": msRootLines()})
	ctx := context.Background()

	// The retry with the DOS parser reads the listing fine but still
	// doesn't find the path. The not-found propagates while the parser
	// switch sticks.
	_, err := service.Lstat(ctx, "/notthere")
	var statErr *Error
	require.True(t, errors.As(err, &statErr))
	assert.Equal(t, ErrNotFound, statErr.Code)

	_, isMS := service.Parser().(*MSParser)
	assert.True(t, isMS)

	result, err := service.Lstat(ctx, "/test.exe")
	require.NoError(t, err)
	assert.Equal(t, int64Ptr(12266720), result.Size)
}

func TestServiceParserLockedAfterNonEmptyListing(t *testing.T) {
	service, lister, _ := newTestService(map[string][]string{"/": unixRootLines()})
	ctx := context.Background()

	_, err := service.Listdir(ctx, "/")
	require.NoError(t, err)
	assert.False(t, service.parserSwitchingAllowed())

	// The server cannot really change formats mid-session; this
	// simulates a listing the locked parser cannot read.
	lister.dirs["/dir1"] = msRootLines()
	_, err = service.Listdir(ctx, "/dir1")
	var statErr *Error
	require.True(t, errors.As(err, &statErr))
	assert.Equal(t, ErrParse, statErr.Code)

	_, isUnix := service.Parser().(*UnixParser)
	assert.True(t, isUnix)
}

func TestServiceEmptyListingKeepsSwitchingAllowed(t *testing.T) {
	service, lister, _ := newTestService(map[string][]string{"/": {}})
	ctx := context.Background()

	names, err := service.Listdir(ctx, "/")
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.True(t, service.parserSwitchingAllowed())

	// A later non-empty DOS listing can still trigger the switch.
	lister.dirs["/"] = msRootLines()
	result, err := service.Lstat(ctx, "/Test")
	require.NoError(t, err)
	assert.True(t, result.IsDir())
	_, isMS := service.Parser().(*MSParser)
	assert.True(t, isMS)
}

func TestServiceSetParser(t *testing.T) {
	service, lister, cache := newTestService(map[string][]string{"/": unixRootLines()})
	ctx := context.Background()

	_, err := service.Listdir(ctx, "/")
	require.NoError(t, err)
	require.NotEmpty(t, cache.entries)

	service.SetParser(NewMSParser())
	assert.Equal(t, 1, cache.clearCalls)
	assert.Empty(t, cache.entries)

	// The installed parser is final: a listing it cannot read is an
	// error, not a reason to switch back.
	lister.dirs["/"] = unixRootLines()
	_, err = service.Listdir(ctx, "/")
	var statErr *Error
	require.True(t, errors.As(err, &statErr))
	assert.Equal(t, ErrParse, statErr.Code)
	_, isMS := service.Parser().(*MSParser)
	assert.True(t, isMS)
}

func TestServiceGrowsCacheForLargeListings(t *testing.T) {
	service, _, cache := newTestService(map[string][]string{"/": unixRootLines()})
	cache.capacity = 3

	_, err := service.Listdir(context.Background(), "/")
	require.NoError(t, err)
	// Six raw lines against capacity 3 grows to ceil(1.1 * 6).
	assert.Equal(t, []int{7}, cache.resizes)
}

func TestServiceDisabledCache(t *testing.T) {
	service, lister, cache := newTestService(map[string][]string{"/": unixRootLines()})
	cache.Disable()
	ctx := context.Background()

	_, err := service.Listdir(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Len())

	// Without the cache the lookup costs another LIST round trip but
	// still works.
	result, err := service.Lstat(ctx, "/index.html")
	require.NoError(t, err)
	assert.Equal(t, int64Ptr(4604), result.Size)
	assert.Equal(t, []string{"/", "/"}, lister.calls)
}

func TestServiceListdirSkipsDotEntries(t *testing.T) {
	service, _, cache := newTestService(map[string][]string{"/": {
		"drwxr-xr-x   2 45854    200           512 May  4  2000 .",
		"drwxr-xr-x   2 45854    200           512 May  4  2000 ..",
		"-rw-r--r--   1 45854    200          4604 May  4  2000 index.html",
	}})

	names, err := service.Listdir(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"index.html"}, names)
	assert.Equal(t, 1, cache.Len())
}

func TestServiceRelativePaths(t *testing.T) {
	lister := &fakeLister{dirs: map[string][]string{
		"/home/user": unixRootLines(),
	}}
	service := NewService(lister, newFakeCache(), func() string { return "/home/user" })
	ctx := context.Background()

	result, err := service.Lstat(ctx, "index.html")
	require.NoError(t, err)
	assert.Equal(t, "index.html", result.Name)
	assert.Equal(t, []string{"/home/user"}, lister.calls)

	// The current directory itself is answered without listing its
	// parent, which may not be readable at all.
	lister.calls = nil
	isDir, err := service.IsDir(ctx, "/home/user")
	require.NoError(t, err)
	assert.True(t, isDir)
	assert.Empty(t, lister.calls)
}

func TestServiceExists(t *testing.T) {
	service, _, _ := newTestService(map[string][]string{"/": unixRootLines()})
	ctx := context.Background()

	tests := []struct {
		path string
		want bool
	}{
		{"/index.html", true},
		{"/dir1", true},
		{"/notthere", false},
		{"/", true},
		{"", false},
	}
	for _, tt := range tests {
		got, err := service.Exists(ctx, tt.path)
		require.NoError(t, err, "path %q", tt.path)
		assert.Equal(t, tt.want, got, "path %q", tt.path)
	}
}

func TestServiceIsDirIsFileIsLink(t *testing.T) {
	service, _, _ := newTestService(map[string][]string{"/": unixRootLines()})
	ctx := context.Background()

	tests := []struct {
		path   string
		isDir  bool
		isFile bool
		isLink bool
	}{
		{"/dir1", true, false, false},
		{"/index.html", false, true, false},
		// A link to a regular file is a file when followed and a link
		// when not.
		{"/link", false, true, true},
		{"/notthere", false, false, false},
		{"", false, false, false},
	}
	for _, tt := range tests {
		isDir, err := service.IsDir(ctx, tt.path)
		require.NoError(t, err, "path %q", tt.path)
		assert.Equal(t, tt.isDir, isDir, "IsDir(%q)", tt.path)

		isFile, err := service.IsFile(ctx, tt.path)
		require.NoError(t, err, "path %q", tt.path)
		assert.Equal(t, tt.isFile, isFile, "IsFile(%q)", tt.path)

		isLink, err := service.IsLink(ctx, tt.path)
		require.NoError(t, err, "path %q", tt.path)
		assert.Equal(t, tt.isLink, isLink, "IsLink(%q)", tt.path)
	}
}

func TestServiceRootDirEntityChecks(t *testing.T) {
	lister := &fakeLister{dirs: map[string][]string{"/": unixRootLines()}}
	// Anchor the session away from the root so "/" takes the lstat
	// route instead of the current-directory shortcut.
	service := NewService(lister, newFakeCache(), func() string { return "/home" })
	ctx := context.Background()

	isDir, err := service.IsDir(ctx, "/")
	require.NoError(t, err)
	assert.True(t, isDir)

	isFile, err := service.IsFile(ctx, "/")
	require.NoError(t, err)
	assert.False(t, isFile)

	isLink, err := service.IsLink(ctx, "/")
	require.NoError(t, err)
	assert.False(t, isLink)
}
