// Package tsdb holds the data model shared by the write-ahead log, the
// memtable, the SSTable format, and the query executor: DataPoint and the
// per-series invariants built on top of it.
package tsdb

import (
	"sync"

	"storage-engine/internal/common"
)

// DataPoint is an immutable (timestamp, value, tags) triple.
//
// Invariants: Timestamp >= 0; every tag key and value is ASCII-only. The tag
// key "series" is reserved to identify the logical series and is stripped
// before a DataPoint is stored — callers address series by name, not by tag.
type DataPoint struct {
	Timestamp common.Timestamp  `json:"timestamp"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// SeriesTagKey is the reserved tag key identifying the logical series.
const SeriesTagKey = "series"

// Validate checks the DataPoint invariants. It does not check tag
// cardinality caps or monotonicity against a series — callers that need
// those checks use internal/ingest.Validate and MemTable.Insert respectively.
func (p DataPoint) Validate() error {
	if p.Timestamp < 0 {
		return common.ErrInvalidTimestampError("timestamp must be >= 0")
	}
	for k, v := range p.Tags {
		if !isASCII(k) {
			return common.ErrInvalidTagKeyError("tag key must be ASCII: " + k)
		}
		if !isASCII(v) {
			return common.ErrInvalidTagValueError("tag value must be ASCII: " + v)
		}
	}
	return nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7F {
			return false
		}
	}
	return true
}

// SeriesPoint pairs a series name with one of its points, used by
// cross-series reads such as MemTable.GetRange.
type SeriesPoint struct {
	Series common.SeriesName
	Point  DataPoint
}

// ValidateSeriesName checks the series-name invariant: non-empty ASCII.
func ValidateSeriesName(name common.SeriesName) error {
	if len(name) == 0 {
		return common.ErrInvalidSeriesNameError("series name must not be empty")
	}
	if !isASCII(string(name)) {
		return common.ErrInvalidSeriesNameError("series name must be ASCII: " + string(name))
	}
	return nil
}

// TimeSeries is the named, in-memory accumulation of one series' points: the
// data-model-level guardian of the strictly-increasing-timestamp invariant,
// independent of and ahead of any MemTable. Callers that only need to stage
// points for the storage core (WAL/MemTable) don't need this type; it exists
// for callers working with a named series as a first-class value, such as an
// in-process ingest buffer sitting in front of the storage core.
type TimeSeries struct {
	name common.SeriesName

	mu            sync.RWMutex
	points        []DataPoint
	lastTimestamp common.Timestamp
}

// NewTimeSeries validates name and returns an empty TimeSeries for it.
func NewTimeSeries(name common.SeriesName) (*TimeSeries, error) {
	if err := ValidateSeriesName(name); err != nil {
		return nil, err
	}
	return &TimeSeries{name: name}, nil
}

// Name returns the series name.
func (ts *TimeSeries) Name() common.SeriesName {
	return ts.name
}

// AddPoint validates point and appends it, enforcing that timestamps are
// strictly increasing across the series' lifetime. A timestamp that does not
// exceed the last accepted one is rejected with NonIncreasingTimestamp,
// covering timestamps equal to as well as less than the last one.
func (ts *TimeSeries) AddPoint(point DataPoint) error {
	if err := point.Validate(); err != nil {
		return err
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if len(ts.points) > 0 && point.Timestamp <= ts.lastTimestamp {
		return common.ErrNonIncreasingTimestampError(ts.name, point.Timestamp, ts.lastTimestamp)
	}

	ts.lastTimestamp = point.Timestamp
	ts.points = append(ts.points, point)
	return nil
}

// Points returns a copy of the accumulated points, in insertion order.
func (ts *TimeSeries) Points() []DataPoint {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	out := make([]DataPoint, len(ts.points))
	copy(out, ts.points)
	return out
}

// LastTimestamp returns the timestamp of the most recently added point, or
// zero if the series is empty.
func (ts *TimeSeries) LastTimestamp() common.Timestamp {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.lastTimestamp
}
