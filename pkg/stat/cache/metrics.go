package cache

// Metrics provides observability for stat cache operations.
//
// Implementations can count hits, misses and evictions to judge how
// well the cache size fits a workload. This is optional - if no sink
// is installed, collection is skipped.
type Metrics interface {
	// RecordHit counts a read answered from the cache
	RecordHit()

	// RecordMiss counts a read that fell through to the server
	RecordMiss()

	// RecordEviction counts an entry dropped to make room
	RecordEviction()

	// RecordSize records the current number of cached entries
	RecordSize(entries int)
}

// noopMetrics is the default no-op metrics implementation
type noopMetrics struct{}

func (noopMetrics) RecordHit()             {}
func (noopMetrics) RecordMiss()            {}
func (noopMetrics) RecordEviction()        {}
func (noopMetrics) RecordSize(entries int) {}
