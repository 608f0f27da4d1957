// Package memtable implements the in-memory, per-series timestamp-ordered
// write buffer that absorbs recent writes and serves range reads until it is
// flushed to an SSTable.
package memtable

import (
	"fmt"
	"sort"
	"sync"

	"storage-engine/internal/common"
	"storage-engine/internal/tsdb"
)

// Config configures a MemTable.
type Config struct {
	// Capacity is the soft point-count threshold, C. A single insert that
	// crosses it is still accepted; InsertResult.NeedsFlush is set instead.
	Capacity int
}

// InsertResult reports whether the memtable just crossed its capacity
// threshold and should be scheduled for a flush.
type InsertResult struct {
	NeedsFlush bool
}

// MemTable buffers (series, DataPoint) pairs ordered by timestamp per
// series, bounded by a soft capacity. A single RWMutex guards both the
// per-series slices and the cross-series ordering index.
type MemTable struct {
	mu       sync.RWMutex
	config   Config
	points   map[common.SeriesName][]tsdb.DataPoint
	lastTS   map[common.SeriesName]common.Timestamp
	size     int
	ordering *SkipList // key: zero-padded timestamp + series, value: tsdb.SeriesPoint
}

// New creates an empty MemTable with the given configuration.
func New(config Config) *MemTable {
	return &MemTable{
		config:   config,
		points:   make(map[common.SeriesName][]tsdb.DataPoint),
		lastTS:   make(map[common.SeriesName]common.Timestamp),
		ordering: NewSkipList(DefaultMaxLevel),
	}
}

// orderingKey produces a key that sorts by timestamp first (zero-padded to a
// fixed width so lexicographic order equals numeric order) and by series
// name second, so ties at the same timestamp remain a stable, deterministic
// order across different series.
func orderingKey(ts common.Timestamp, series common.SeriesName) string {
	return fmt.Sprintf("%020d#%s", int64(ts), series)
}

// Insert appends point to series's buffer. It fails with
// InvalidTimestampOrder if point.Timestamp does not strictly exceed the last
// timestamp inserted for this series in this MemTable (since the last
// drain, or since recovery re-established the counter).
func (m *MemTable) Insert(series common.SeriesName, point tsdb.DataPoint) (InsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.lastTS[series]; ok && point.Timestamp <= last {
		return InsertResult{}, common.ErrMemTableInvalidTimestampOrderError(series, point.Timestamp, last)
	}

	m.points[series] = append(m.points[series], point)
	m.lastTS[series] = point.Timestamp
	m.ordering.Put(orderingKey(point.Timestamp, series), tsdb.SeriesPoint{Series: series, Point: point})
	m.size++

	return InsertResult{NeedsFlush: m.size >= m.config.Capacity}, nil
}

// SetLastTimestamp re-establishes the strictly-increasing counter for series
// without inserting a point; it only ever raises the counter. WAL replay into
// a MemTable goes through Insert, which re-establishes the counter as the
// maximum timestamp of each replayed series on its own.
func (m *MemTable) SetLastTimestamp(series common.SeriesName, ts common.Timestamp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.lastTS[series]; !ok || ts > existing {
		m.lastTS[series] = ts
	}
}

// GetSeriesRange returns every point for series with start <= ts <= end, in
// timestamp-ascending order.
func (m *MemTable) GetSeriesRange(series common.SeriesName, start, end common.Timestamp) []tsdb.DataPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.points[series]
	// Points are stored in insertion order, which equals timestamp-ascending
	// order by the strictly-increasing invariant, so a linear scan suffices;
	// binary search over the bounds would be the next optimization.
	result := make([]tsdb.DataPoint, 0, len(all))
	for _, p := range all {
		if p.Timestamp >= start && p.Timestamp <= end {
			result = append(result, p)
		}
	}
	return result
}

// GetRange returns (series, point) pairs across all series with
// start <= ts <= end, in timestamp-ascending order.
func (m *MemTable) GetRange(start, end common.Timestamp) []tsdb.SeriesPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	startKey := orderingKey(start, "")
	var result []tsdb.SeriesPoint
	m.ordering.RangeFrom(startKey, func(key string, value interface{}) bool {
		sp := value.(tsdb.SeriesPoint)
		if sp.Point.Timestamp > end {
			return false
		}
		if sp.Point.Timestamp >= start {
			result = append(result, sp)
		}
		return true
	})
	return result
}

// Size returns the current total point count across all series.
func (m *MemTable) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Snapshot passes fn a copied, per-series view of the MemTable's contents.
// The read lock is held while copying and while fn runs, so concurrent
// inserts wait for fn to return. The flush path uses Drain, not Snapshot.
func (m *MemTable) Snapshot(fn func(points map[common.SeriesName][]tsdb.DataPoint)) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	copied := make(map[common.SeriesName][]tsdb.DataPoint, len(m.points))
	for series, pts := range m.points {
		cp := make([]tsdb.DataPoint, len(pts))
		copy(cp, pts)
		copied[series] = cp
	}
	fn(copied)
}

// Drain atomically takes every buffered point and resets the MemTable to
// empty, preserving its configuration and per-series last-timestamp
// counters (a drained MemTable still rejects a timestamp at or before the
// last one it saw, exactly like a freshly-flushed one).
func (m *MemTable) Drain() map[common.SeriesName][]tsdb.DataPoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	drained := m.points
	m.points = make(map[common.SeriesName][]tsdb.DataPoint)
	m.ordering = NewSkipList(DefaultMaxLevel)
	m.size = 0
	return drained
}

// SeriesNames returns the set of series names currently buffered, sorted for
// deterministic iteration.
func (m *MemTable) SeriesNames() []common.SeriesName {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]common.SeriesName, 0, len(m.points))
	for series := range m.points {
		names = append(names, series)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
