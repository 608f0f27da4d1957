package common

import (
	"fmt"
	"time"
)

// SeriesName identifies a logical time series by name.
type SeriesName string

// Timestamp is a point in time expressed as nanoseconds since the Unix epoch.
type Timestamp int64

// NowNanos returns the current time as a Timestamp.
func NowNanos() Timestamp {
	return Timestamp(time.Now().UnixNano())
}

// String returns a RFC3339 rendering of the timestamp for logs and errors.
func (t Timestamp) String() string {
	return time.Unix(0, int64(t)).UTC().Format(time.RFC3339Nano)
}

// SSTableID identifies a registered SSTable in the catalog: "<min_timestamp>_<path>".
type SSTableID string

// NewSSTableID builds the catalog key for an SSTable.
func NewSSTableID(minTimestamp Timestamp, path string) SSTableID {
	return SSTableID(fmt.Sprintf("%d_%s", int64(minTimestamp), path))
}

// Constants for system limits, carried from the ambient stack.
const (
	MaxSeriesNameLength = 256
	MaxTagKeyLength     = 128
	MaxTagValueLength   = 512
	MaxTagsPerPoint     = 64
	DefaultTimeout      = 30 * time.Second
)
