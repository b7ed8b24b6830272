package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/ftpfs/pkg/stat"
)

func fileResult(name string) *stat.Result {
	return &stat.Result{Mode: 0o100644, Name: name}
}

func TestStatCacheGetSet(t *testing.T) {
	cache := New()

	_, ok := cache.Get("/path")
	assert.False(t, ok)

	want := fileResult("path")
	cache.Set("/path", want)
	got, ok := cache.Get("/path")
	require.True(t, ok)
	assert.Same(t, want, got)
	assert.Equal(t, 1, cache.Len())
}

func TestStatCacheInvalidate(t *testing.T) {
	cache := New()

	// Invalidating something that was never stored is fine.
	cache.Invalidate("/path")

	cache.Set("/path", fileResult("path"))
	cache.Invalidate("/path")
	_, ok := cache.Get("/path")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestStatCacheInvalidateWhileDisabled(t *testing.T) {
	cache := New()

	cache.Set("/path", fileResult("path"))
	cache.Disable()
	cache.Invalidate("/path")
	cache.Enable()

	_, ok := cache.Get("/path")
	assert.False(t, ok)
}

func TestStatCacheDisabled(t *testing.T) {
	cache := New()
	cache.Set("/path1", fileResult("path1"))

	cache.Disable()

	// Reads miss while the cache is off, for fresh entries as much as
	// for ones stored before.
	_, ok := cache.Get("/path1")
	assert.False(t, ok)

	// Writes are dropped.
	cache.Set("/path2", fileResult("path2"))
	_, ok = cache.Get("/path2")
	assert.False(t, ok)

	// The stored entries stay around and come back on enable.
	assert.Equal(t, 1, cache.Len())
	cache.Enable()
	_, ok = cache.Get("/path1")
	assert.True(t, ok)
	_, ok = cache.Get("/path2")
	assert.False(t, ok)
}

func TestStatCacheClear(t *testing.T) {
	cache := New()
	cache.Set("/path1", fileResult("path1"))
	cache.Set("/path2", fileResult("path2"))

	cache.Clear()

	assert.Equal(t, 0, cache.Len())
	_, ok := cache.Get("/path1")
	assert.False(t, ok)
}

func TestStatCacheResizeEvictsDown(t *testing.T) {
	cache := New()
	require.NoError(t, cache.Resize(100))
	assert.Equal(t, 100, cache.Capacity())

	for i := 0; i < 150; i++ {
		cache.Set(fmt.Sprintf("/path%d", i), fileResult(fmt.Sprintf("path%d", i)))
	}
	assert.Equal(t, 100, cache.Len())

	// The oldest entries went first.
	_, ok := cache.Get("/path0")
	assert.False(t, ok)
	_, ok = cache.Get("/path149")
	assert.True(t, ok)

	// Shrinking below the current size drops the overhang.
	require.NoError(t, cache.Resize(10))
	assert.Equal(t, 10, cache.Len())
	_, ok = cache.Get("/path149")
	assert.True(t, ok)
}

func TestStatCacheResizeRejectsNonPositiveCapacity(t *testing.T) {
	cache := New()

	assert.Error(t, cache.Resize(0))
	assert.Error(t, cache.Resize(-10))
	assert.Equal(t, DefaultCapacity, cache.Capacity())
}

func TestStatCacheLRUEviction(t *testing.T) {
	cache := New()
	require.NoError(t, cache.Resize(2))

	cache.Set("/a", fileResult("a"))
	cache.Set("/b", fileResult("b"))

	// Reading /a makes /b the least recently used entry.
	_, ok := cache.Get("/a")
	require.True(t, ok)

	cache.Set("/c", fileResult("c"))

	_, ok = cache.Get("/a")
	assert.True(t, ok)
	_, ok = cache.Get("/b")
	assert.False(t, ok)
	_, ok = cache.Get("/c")
	assert.True(t, ok)
}

func TestStatCacheSetRefreshesRecency(t *testing.T) {
	cache := New()
	require.NoError(t, cache.Resize(2))

	cache.Set("/a", fileResult("a"))
	cache.Set("/b", fileResult("b"))

	// Overwriting /a refreshes it, so /b is evicted next.
	updated := fileResult("a2")
	cache.Set("/a", updated)
	cache.Set("/c", fileResult("c"))

	got, ok := cache.Get("/a")
	require.True(t, ok)
	assert.Same(t, updated, got)
	_, ok = cache.Get("/b")
	assert.False(t, ok)
}

func TestStatCacheMaxAge(t *testing.T) {
	cache := New()
	cache.SetMaxAge(30 * time.Millisecond)
	assert.Equal(t, 30*time.Millisecond, cache.MaxAge())

	cache.Set("/path", fileResult("path"))
	_, ok := cache.Get("/path")
	assert.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = cache.Get("/path")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestStatCacheMaxAgeSetAfterInsert(t *testing.T) {
	cache := New()

	cache.Set("/path", fileResult("path"))
	time.Sleep(60 * time.Millisecond)

	// Age counts from the time the entry was stored, not from the
	// time the limit was configured.
	cache.SetMaxAge(30 * time.Millisecond)
	_, ok := cache.Get("/path")
	assert.False(t, ok)
}

func TestStatCacheZeroMaxAgeNeverExpires(t *testing.T) {
	cache := New()
	cache.SetMaxAge(0)

	cache.Set("/path", fileResult("path"))
	time.Sleep(30 * time.Millisecond)
	_, ok := cache.Get("/path")
	assert.True(t, ok)
}

type countingMetrics struct {
	hits      int
	misses    int
	evictions int
	lastSize  int
}

func (m *countingMetrics) RecordHit()             { m.hits++ }
func (m *countingMetrics) RecordMiss()            { m.misses++ }
func (m *countingMetrics) RecordEviction()        { m.evictions++ }
func (m *countingMetrics) RecordSize(entries int) { m.lastSize = entries }

func TestStatCacheMetrics(t *testing.T) {
	cache := New()
	metrics := &countingMetrics{}
	cache.SetMetrics(metrics)
	require.NoError(t, cache.Resize(1))

	cache.Set("/a", fileResult("a"))
	cache.Set("/b", fileResult("b"))
	assert.Equal(t, 1, metrics.evictions)

	_, _ = cache.Get("/b")
	_, _ = cache.Get("/a")
	assert.Equal(t, 1, metrics.hits)
	assert.Equal(t, 1, metrics.misses)
	assert.Equal(t, 1, metrics.lastSize)
}
