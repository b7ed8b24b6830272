// Package cache implements the bounded LRU cache for parsed stat
// results.
//
// Every lstat answered from the cache saves a full LIST round trip over
// the control connection, which is what makes repeated path checks
// (walks, existence probes, mirror runs) affordable over FTP.
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/ftpfs/internal/logger"
	"github.com/marmos91/ftpfs/pkg/stat"
)

// DefaultCapacity is the number of entries a fresh cache can hold
// before evicting. Directories bigger than this trigger automatic
// growth, so the limit only matters as a baseline.
const DefaultCapacity = 5000

// StatCache is an LRU map from absolute remote paths to stat results.
//
// Cache Strategy:
//   - LRU eviction when the cache is full; both reads and writes
//     refresh an entry's position
//   - optional age-based expiry (off by default)
//   - explicit invalidation when a path is modified or removed
//
// While the cache is disabled, reads miss and writes are dropped, but
// existing entries stay in place and become visible again after
// enabling.
//
// Thread Safety:
// All operations are protected by a mutex for safe concurrent use.
type StatCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	lruList  *list.List
	capacity int
	maxAge   time.Duration
	enabled  bool
	metrics  Metrics
}

// cacheEntry is the payload stored in the LRU list.
type cacheEntry struct {
	path     string
	result   *stat.Result
	storedAt time.Time
}

// New returns an enabled cache with DefaultCapacity and no age limit.
func New() *StatCache {
	return &StatCache{
		entries:  make(map[string]*list.Element),
		lruList:  list.New(),
		capacity: DefaultCapacity,
		enabled:  true,
		metrics:  noopMetrics{},
	}
}

// SetMetrics installs a metrics sink. Passing nil restores the no-op
// sink.
func (c *StatCache) SetMetrics(m Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m == nil {
		m = noopMetrics{}
	}
	c.metrics = m
}

// Get returns the cached result for path. The second return value
// reports whether there was one; expired entries and reads on a
// disabled cache count as misses.
func (c *StatCache) Get(path string) (*stat.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		c.metrics.RecordMiss()
		return nil, false
	}
	element, ok := c.entries[path]
	if !ok {
		c.metrics.RecordMiss()
		return nil, false
	}
	entry := element.Value.(*cacheEntry)
	if c.maxAge > 0 && time.Since(entry.storedAt) > c.maxAge {
		c.removeElement(element)
		c.metrics.RecordMiss()
		return nil, false
	}
	c.lruList.MoveToFront(element)
	c.metrics.RecordHit()
	return entry.result, true
}

// Set stores a result under path. On a disabled cache this is a no-op.
func (c *StatCache) Set(path string, result *stat.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return
	}
	if element, ok := c.entries[path]; ok {
		entry := element.Value.(*cacheEntry)
		entry.result = result
		entry.storedAt = time.Now()
		c.lruList.MoveToFront(element)
		return
	}
	for len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	element := c.lruList.PushFront(&cacheEntry{
		path:     path,
		result:   result,
		storedAt: time.Now(),
	})
	c.entries[path] = element
	c.metrics.RecordSize(len(c.entries))
}

// Invalidate drops the entry for path, if there is one. Unlike reads
// and writes it works on a disabled cache too, so stale entries never
// survive a modification.
func (c *StatCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if element, ok := c.entries[path]; ok {
		c.removeElement(element)
	}
}

// Clear drops all entries.
func (c *StatCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lruList = list.New()
	c.metrics.RecordSize(0)
	logger.Debug("Cleared stat cache")
}

// Resize changes the capacity to capacity, evicting the least recently
// used entries if the cache shrinks below its current length. The
// capacity must be at least 1.
func (c *StatCache) Resize(capacity int) error {
	if capacity < 1 {
		return fmt.Errorf("cache capacity %d is too small, need at least 1", capacity)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = capacity
	for len(c.entries) > c.capacity {
		c.evictOldest()
	}
	c.metrics.RecordSize(len(c.entries))
	return nil
}

// Len returns the number of cached entries, including any that are
// masked while the cache is disabled.
func (c *StatCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the current maximum number of entries.
func (c *StatCache) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// Enable turns the cache back on. Entries stored before a Disable
// become visible again.
func (c *StatCache) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = true
}

// Disable turns the cache off: reads miss and writes are dropped until
// the next Enable.
func (c *StatCache) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
}

// Enabled reports whether the cache is currently enabled.
func (c *StatCache) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetMaxAge bounds how long entries are served after being stored.
// Zero or negative means entries never expire.
func (c *StatCache) SetMaxAge(maxAge time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxAge = maxAge
}

// MaxAge returns the current entry age bound, zero meaning unlimited.
func (c *StatCache) MaxAge() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxAge
}

// evictOldest removes the least recently used entry.
//
// Must be called with c.mu held.
func (c *StatCache) evictOldest() {
	oldest := c.lruList.Back()
	if oldest == nil {
		return
	}
	c.removeElement(oldest)
	c.metrics.RecordEviction()
	logger.Debug("Evicted stat cache entry: %s", oldest.Value.(*cacheEntry).path)
}

// removeElement unlinks an entry from both the map and the LRU list.
//
// Must be called with c.mu held.
func (c *StatCache) removeElement(element *list.Element) {
	c.lruList.Remove(element)
	delete(c.entries, element.Value.(*cacheEntry).path)
}
