package sstable

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sort"

	"storage-engine/internal/common"
	"storage-engine/internal/storage/block"
)

// fileHeader is the fixed 8-byte prologue written once at the start of
// every SSTable file: a u32 LE magic followed by a u32 LE format version.
type fileHeader struct {
	Magic   uint32
	Version uint32
}

func encodeFileHeader(w io.Writer) error {
	if err := writeUint32(w, Magic); err != nil {
		return err
	}
	return writeUint32(w, Version)
}

func decodeFileHeader(r io.Reader) (fileHeader, error) {
	var h fileHeader
	magic, err := readUint32(r)
	if err != nil {
		return h, err
	}
	if magic != Magic {
		return h, common.ErrSSTableInvalidMagicError(magic)
	}
	version, err := readUint32(r)
	if err != nil {
		return h, err
	}
	if version != Version {
		return h, common.ErrSSTableUnsupportedVersionError(version)
	}
	h.Magic, h.Version = magic, version
	return h, nil
}

// blockMeta is the in-memory index entry reconstructed for each block, either
// while writing or by the sequential scan performed at open time.
type blockMeta struct {
	offset         int64
	length         int64
	pointCount     int
	startTimestamp common.Timestamp
	maxTimestamp   common.Timestamp
}

// Writer builds one immutable SSTable file by appending a sequence of
// DataBlocks to a block.Storage-backed path. Writer is not safe for
// concurrent use; a single flush owns a Writer for its lifetime.
type Writer struct {
	ctx     context.Context
	backend block.Storage
	path    string
	out     io.WriteCloser
	offset  int64
	blocks  []blockMeta
	series  map[common.SeriesName]struct{}
	minTS   common.Timestamp
	maxTS   common.Timestamp
	first   bool
}

// NewWriter opens path on backend for writing and writes the file header.
func NewWriter(ctx context.Context, backend block.Storage, path string) (*Writer, error) {
	out, err := backend.Writer(ctx, path)
	if err != nil {
		return nil, common.ErrSSTableIoError("open SSTable for write", err)
	}

	w := &Writer{
		ctx:     ctx,
		backend: backend,
		path:    path,
		out:     out,
		series:  make(map[common.SeriesName]struct{}),
		first:   true,
	}

	if err := encodeFileHeader(w.out); err != nil {
		out.Close()
		return nil, common.ErrSSTableIoError("write SSTable header", err)
	}
	w.offset = 8
	return w, nil
}

// WriteBlock appends a DataBlock, tracking its index entry and updating the
// file-wide series set and timestamp range.
func (w *Writer) WriteBlock(b DataBlock) error {
	var buf bytes.Buffer
	n, err := encodeBlock(&buf, b)
	if err != nil {
		return err
	}

	if _, err := w.out.Write(buf.Bytes()); err != nil {
		return common.ErrSSTableIoError("write SSTable block", err)
	}

	timestamps := b.Timestamps()
	maxTS := b.StartTimestamp
	for _, ts := range timestamps {
		if ts > maxTS {
			maxTS = ts
		}
	}

	w.blocks = append(w.blocks, blockMeta{
		offset:         w.offset,
		length:         n,
		pointCount:     b.PointCount(),
		startTimestamp: b.StartTimestamp,
		maxTimestamp:   maxTS,
	})
	w.offset += n

	for _, s := range b.SeriesNames {
		w.series[s] = struct{}{}
	}
	if w.first || b.StartTimestamp < w.minTS {
		w.minTS = b.StartTimestamp
	}
	if w.first || maxTS > w.maxTS {
		w.maxTS = maxTS
	}
	w.first = false

	return nil
}

// Close finalizes the SSTable file and returns its summary metadata.
func (w *Writer) Close() (Info, error) {
	if err := w.out.Close(); err != nil {
		return Info{}, common.ErrSSTableIoError("close SSTable file", err)
	}

	seriesNames := make([]common.SeriesName, 0, len(w.series))
	for s := range w.series {
		seriesNames = append(seriesNames, s)
	}
	sort.Slice(seriesNames, func(i, j int) bool { return seriesNames[i] < seriesNames[j] })

	return Info{
		Path:         w.path,
		MinTimestamp: w.minTS,
		MaxTimestamp: w.maxTS,
		SeriesNames:  seriesNames,
		BlockCount:   len(w.blocks),
		PointCount:   totalPoints(w.blocks),
	}, nil
}

func totalPoints(blocks []blockMeta) int {
	total := 0
	for _, b := range blocks {
		total += b.pointCount
	}
	return total
}

// Info summarizes a written SSTable file, enough for the catalog to index it
// without re-opening the file.
type Info struct {
	Path         string
	MinTimestamp common.Timestamp
	MaxTimestamp common.Timestamp
	SeriesNames  []common.SeriesName
	BlockCount   int
	PointCount   int
}

// Handle is an open, read-only view of an SSTable file: its block index was
// reconstructed by a single sequential scan at open time, and random block
// reads go through the backend's ReaderAt.
type Handle struct {
	ctx     context.Context
	backend block.Storage
	path    string
	blocks  []blockMeta
}

// Open scans path in full once to rebuild its block index.
func Open(ctx context.Context, backend block.Storage, path string) (*Handle, error) {
	rc, err := backend.Reader(ctx, path)
	if err != nil {
		return nil, common.ErrSSTableIoError("open SSTable for read", err)
	}
	defer rc.Close()

	if _, err := decodeFileHeader(rc); err != nil {
		return nil, err
	}

	h := &Handle{ctx: ctx, backend: backend, path: path}
	offset := int64(8)

	for {
		startBuf := make([]byte, 8)
		if _, err := io.ReadFull(rc, startBuf); err != nil {
			if err == io.EOF {
				break
			}
			return nil, common.ErrSSTableIoError("scan SSTable blocks", err)
		}
		startTS := common.Timestamp(int64(binary.LittleEndian.Uint64(startBuf)))

		countBuf := make([]byte, 4)
		if _, err := io.ReadFull(rc, countBuf); err != nil {
			return nil, common.ErrSSTableIoError("scan SSTable block header", err)
		}
		n := int(binary.LittleEndian.Uint32(countBuf))

		maxTS, bodyLen, err := scanBlockBody(rc, startTS, n)
		if err != nil {
			return nil, err
		}

		blockLen := int64(12) + bodyLen
		h.blocks = append(h.blocks, blockMeta{
			offset:         offset,
			length:         blockLen,
			pointCount:     n,
			startTimestamp: startTS,
			maxTimestamp:   maxTS,
		})
		offset += blockLen
	}

	return h, nil
}

// scanBlockBody consumes the deltas/values/names/tags portion of a block
// (the part after start_timestamp and point_count, already read by the
// caller) purely to measure its byte length and derive the block's max
// timestamp, without allocating the fully decoded structures.
func scanBlockBody(r io.Reader, startTS common.Timestamp, n int) (maxTS common.Timestamp, length int64, err error) {
	deltas := make([]int64, n)
	for i := 0; i < n; i++ {
		buf := make([]byte, 8)
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, 0, common.ErrSSTableIoError("scan block deltas", err)
		}
		deltas[i] = int64(binary.LittleEndian.Uint64(buf))
		length += 8
	}

	if _, err := io.CopyN(io.Discard, r, int64(n)*8); err != nil {
		return 0, 0, common.ErrSSTableIoError("scan block values", err)
	}
	length += int64(n) * 8

	for i := 0; i < n; i++ {
		lb := make([]byte, 4)
		if _, err := io.ReadFull(r, lb); err != nil {
			return 0, 0, common.ErrSSTableIoError("scan block series name length", err)
		}
		l := int64(binary.LittleEndian.Uint32(lb))
		if _, err := io.CopyN(io.Discard, r, l); err != nil {
			return 0, 0, common.ErrSSTableIoError("scan block series name", err)
		}
		length += 4 + l
	}

	for i := 0; i < n; i++ {
		lb := make([]byte, 4)
		if _, err := io.ReadFull(r, lb); err != nil {
			return 0, 0, common.ErrSSTableIoError("scan block tag map length", err)
		}
		l := int64(binary.LittleEndian.Uint32(lb))
		if _, err := io.CopyN(io.Discard, r, l); err != nil {
			return 0, 0, common.ErrSSTableIoError("scan block tag map", err)
		}
		length += 4 + l
	}

	running := int64(startTS)
	max := startTS
	for _, d := range deltas {
		running += d
		if common.Timestamp(running) > max {
			max = common.Timestamp(running)
		}
	}

	return max, length, nil
}

// BlockCount returns the number of blocks indexed by this handle.
func (h *Handle) BlockCount() int {
	return len(h.blocks)
}

// MinMaxTimestamp returns the overall timestamp range covered by the file,
// or (0, 0, false) if the file has no blocks.
func (h *Handle) MinMaxTimestamp() (common.Timestamp, common.Timestamp, bool) {
	if len(h.blocks) == 0 {
		return 0, 0, false
	}
	min, max := h.blocks[0].startTimestamp, h.blocks[0].maxTimestamp
	for _, b := range h.blocks[1:] {
		if b.startTimestamp < min {
			min = b.startTimestamp
		}
		if b.maxTimestamp > max {
			max = b.maxTimestamp
		}
	}
	return min, max, true
}

// ReadBlock decodes and returns the block at index i via a random-access
// read through the backend's ReaderAt, per the spec's requirement that
// block i be individually addressable without reading the whole file.
func (h *Handle) ReadBlock(i int) (DataBlock, error) {
	if i < 0 || i >= len(h.blocks) {
		return DataBlock{}, common.ErrSSTableInvalidBlockIndexError(i, len(h.blocks))
	}
	meta := h.blocks[i]

	ra, err := h.backend.ReaderAt(h.ctx, h.path)
	if err != nil {
		return DataBlock{}, common.ErrSSTableIoError("open SSTable for random access", err)
	}

	section := io.NewSectionReader(ra, meta.offset, meta.length)
	decoded, err := decodeBlock(section)
	if err != nil {
		return DataBlock{}, err
	}
	if decoded.PointCount() != meta.pointCount {
		return DataBlock{}, common.ErrSSTableIoError("block point count does not match the index built at open", io.ErrUnexpectedEOF)
	}
	return decoded, nil
}

// ScanBlocks decodes every block in file order, invoking fn for each; fn
// returning false stops the scan early.
func (h *Handle) ScanBlocks(fn func(index int, b DataBlock) bool) error {
	for i := range h.blocks {
		b, err := h.ReadBlock(i)
		if err != nil {
			return err
		}
		if !fn(i, b) {
			return nil
		}
	}
	return nil
}

// BlockTimestampRange reports the timestamp range of block i without
// decoding its body, letting callers skip blocks that cannot overlap a
// query window.
func (h *Handle) BlockTimestampRange(i int) (common.Timestamp, common.Timestamp) {
	return h.blocks[i].startTimestamp, h.blocks[i].maxTimestamp
}
