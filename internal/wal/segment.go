package wal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"
	"time"

	"storage-engine/internal/common"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// Segment is a single append-only WAL file: a header line followed by a
// sequence of framed entries. One Segment is ever open for writing at a time;
// older segments are retained read-only until a checkpoint removes them.
type Segment struct {
	mu         sync.RWMutex
	path       string
	file       *os.File
	writer     *bufio.Writer
	createdAt  time.Time
	size       int64
	entryCount int64
	syncPolicy SyncPolicy
	closed     bool
}

// segmentFileName builds "segment_<unix_seconds>_<uuid>.wal".
func segmentFileName(createdAt time.Time) string {
	return fmt.Sprintf("segment_%d_%s.wal", createdAt.Unix(), common.GenerateID()[:16])
}

// CreateSegment creates a new segment file in dir, writes its header, and
// flushes it before returning — rotation is atomic with respect to readers
// only once this call has returned successfully.
func CreateSegment(dir string, syncPolicy SyncPolicy) (*Segment, error) {
	createdAt := time.Now()
	path := filepath.Join(dir, segmentFileName(createdAt))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return nil, common.ErrWALIoError("create segment file", err)
	}

	seg := &Segment{
		path:       path,
		file:       file,
		writer:     bufio.NewWriter(file),
		createdAt:  createdAt,
		syncPolicy: syncPolicy,
	}

	header := Header{Magic: HeaderMagic, Version: HeaderVersion, CreatedAt: createdAt.Unix()}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		file.Close()
		return nil, common.ErrWALSerializationError("marshal segment header", err)
	}
	if _, err := seg.writer.Write(headerBytes); err != nil {
		file.Close()
		return nil, common.ErrWALIoError("write segment header", err)
	}
	if err := seg.writer.WriteByte('\n'); err != nil {
		file.Close()
		return nil, common.ErrWALIoError("write segment header", err)
	}
	if err := seg.writer.Flush(); err != nil {
		file.Close()
		return nil, common.ErrWALIoError("flush segment header", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, common.ErrWALIoError("sync segment header", err)
	}

	seg.size = int64(len(headerBytes)) + 1
	return seg, nil
}

// OpenSegment reopens an existing segment file for append, re-scanning it to
// recover its size and entry count from the header onward.
func OpenSegment(path string, syncPolicy SyncPolicy) (*Segment, error) {
	reader, err := openSegmentReader(path)
	if err != nil {
		return nil, err
	}
	createdAt := time.Unix(reader.header.CreatedAt, 0)

	var entryCount int64
	for {
		_, _, err := reader.next()
		if err != nil {
			break
		}
		entryCount++
	}
	size := reader.offset
	reader.Close()

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, common.ErrWALIoError("reopen segment file for append", err)
	}

	return &Segment{
		path:       path,
		file:       file,
		writer:     bufio.NewWriter(file),
		createdAt:  createdAt,
		size:       size,
		entryCount: entryCount,
		syncPolicy: syncPolicy,
	}, nil
}

// Append writes one entry to the segment: the JSON line (CRC field zeroed),
// then the little-endian CRC32C of that line, then a newline.
func (s *Segment) Append(entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return common.ErrWALIoError("append to closed segment", fmt.Errorf("segment %s is closed", s.path))
	}

	body, err := entry.marshalForCRC()
	if err != nil {
		return common.ErrWALSerializationError("marshal WAL entry", err)
	}
	checksum := crc32.Checksum(body, crc32cTable)

	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], checksum)

	written := 0
	n, err := s.writer.Write(body)
	written += n
	if err == nil {
		err = s.writer.WriteByte('\n')
		written++
	}
	if err == nil {
		n, err = s.writer.Write(crcBuf[:])
		written += n
	}
	if err == nil {
		err = s.writer.WriteByte('\n')
		written++
	}
	if err != nil {
		return common.ErrWALIoError("append WAL entry", err)
	}

	if s.syncPolicy == SyncAlways {
		if err := s.writer.Flush(); err != nil {
			return common.ErrWALIoError("flush WAL entry", err)
		}
		if err := s.file.Sync(); err != nil {
			return common.ErrWALIoError("sync WAL entry", err)
		}
	}

	s.size += int64(written)
	s.entryCount++
	return nil
}

// Sync flushes buffered writes and fsyncs the underlying file.
func (s *Segment) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Flush(); err != nil {
		return common.ErrWALIoError("flush segment", err)
	}
	return s.file.Sync()
}

// Close flushes and closes the segment's write handle.
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	flushErr := s.writer.Flush()
	closeErr := s.file.Close()
	s.closed = true
	if flushErr != nil {
		return common.ErrWALIoError("flush segment on close", flushErr)
	}
	if closeErr != nil {
		return common.ErrWALIoError("close segment file", closeErr)
	}
	return nil
}

// Size returns the current size of the segment in bytes, as tracked in-process.
func (s *Segment) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// EntryCount returns the number of entries appended to this segment.
func (s *Segment) EntryCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entryCount
}

// Path returns the segment's file path.
func (s *Segment) Path() string {
	return s.path
}

// CreatedAt returns the segment's creation time, parsed from its header.
func (s *Segment) CreatedAt() time.Time {
	return s.createdAt
}

// NewReader opens an independent read-only handle over this segment, safe to
// use concurrently with appends to the same segment since entries are only
// ever appended, never rewritten in place.
func (s *Segment) NewReader() (*SegmentReader, error) {
	return openSegmentReader(s.path)
}
