package wal

import (
	"encoding/json"
	"time"

	"storage-engine/internal/common"
)

// SyncPolicy controls when appended entries are flushed to stable storage.
type SyncPolicy int

const (
	// SyncAlways flushes to disk after every append (highest durability).
	SyncAlways SyncPolicy = iota
	// SyncBatch relies on the bufio.Writer's own buffering and only flushes
	// on rotation or Close; callers that need a durability point call Sync.
	SyncBatch
)

// Magic and version of the WAL segment header, per the on-disk format.
const (
	HeaderMagic   uint32 = 0x57414C00
	HeaderVersion uint32 = 1
)

// Header is the first line of every segment file.
type Header struct {
	Magic     uint32 `json:"magic"`
	Version   uint32 `json:"version"`
	CreatedAt int64  `json:"created_at"`
}

// Entry is one appended record, framed as described in the package doc.
// CRC is always serialized as 0 inside the JSON line; the real checksum is
// computed over that zeroed encoding and written as a separate 4-byte
// little-endian field following the line.
type Entry struct {
	SeriesName common.SeriesName `json:"series_name"`
	Timestamp  common.Timestamp  `json:"timestamp"`
	Value      float64           `json:"value"`
	Tags       map[string]string `json:"tags,omitempty"`
	CRC        uint32            `json:"crc"`
}

// marshalForCRC serializes the entry with CRC forced to zero, which is the
// byte sequence the checksum is computed over.
func (e Entry) marshalForCRC() ([]byte, error) {
	e.CRC = 0
	return json.Marshal(e)
}

// Config configures a WAL Manager.
type Config struct {
	DataDir         string        `json:"data_dir"`
	MaxSegmentSize  int64         `json:"max_segment_size"`
	MaxSegmentAge   time.Duration `json:"max_segment_age"`
	SyncPolicy      SyncPolicy    `json:"sync_policy"`
}

// DefaultConfig returns the config defaults named in the external interfaces.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:        dataDir,
		MaxSegmentSize: 64 * 1024 * 1024,
		MaxSegmentAge:  24 * time.Hour,
		SyncPolicy:     SyncAlways,
	}
}

// Stats reports WAL-wide counters, read by the admin CLI.
type Stats struct {
	TotalSegments int   `json:"total_segments"`
	TotalEntries  int64 `json:"total_entries"`
	TotalSize     int64 `json:"total_size"`
}
