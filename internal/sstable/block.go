// Package sstable implements the immutable, on-disk, block-structured
// segment format: a fixed header followed by a sequence of data blocks, with
// random block access and sequential scanning.
package sstable

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"unicode/utf8"

	"storage-engine/internal/common"
	"storage-engine/internal/tsdb"
)

// Magic and version of the SSTable file format, per the on-disk layout.
const (
	Magic   uint32 = 0x53535442 // "SSTB"
	Version uint32 = 1
)

// DataBlock is a unit of SSTable storage: delta-encoded timestamps, values,
// and one series name plus tag map per point.
//
// Delta-encoding convention (resolves the upstream ambiguity): len(Deltas)
// always equals n, and Deltas[0] is always 0. The reconstructed timestamp of
// entry i is StartTimestamp + sum(Deltas[0..i]). There is exactly one
// convention in this package; nothing here ever produces or expects an
// n-1-length delta slice.
type DataBlock struct {
	StartTimestamp common.Timestamp
	Deltas         []int64
	Values         []float64
	SeriesNames    []common.SeriesName
	Tags           []map[string]string
}

// PointCount returns n, the block's point count.
func (b DataBlock) PointCount() int {
	return len(b.Values)
}

// Timestamps reconstructs the absolute timestamp of every point in the
// block by running sum of the deltas against StartTimestamp.
func (b DataBlock) Timestamps() []common.Timestamp {
	out := make([]common.Timestamp, len(b.Deltas))
	running := int64(b.StartTimestamp)
	for i, d := range b.Deltas {
		running += d
		out[i] = common.Timestamp(running)
	}
	return out
}

// NewBlockFromPoints builds a DataBlock for a single series from a
// timestamp-ordered slice of points, following the delta-encoding convention:
// Deltas[0] = 0, Deltas[i] = points[i].Timestamp - points[i-1].Timestamp.
func NewBlockFromPoints(series common.SeriesName, points []tsdb.DataPoint) DataBlock {
	n := len(points)
	block := DataBlock{
		StartTimestamp: points[0].Timestamp,
		Deltas:         make([]int64, n),
		Values:         make([]float64, n),
		SeriesNames:    make([]common.SeriesName, n),
		Tags:           make([]map[string]string, n),
	}
	prev := points[0].Timestamp
	for i, p := range points {
		if i == 0 {
			block.Deltas[0] = 0
		} else {
			block.Deltas[i] = int64(p.Timestamp) - int64(prev)
		}
		prev = p.Timestamp
		block.Values[i] = p.Value
		block.SeriesNames[i] = series
		block.Tags[i] = p.Tags
	}
	return block
}

// encodeBlock writes a block in the bit-exact on-disk layout and returns the
// number of bytes written.
func encodeBlock(w io.Writer, b DataBlock) (int64, error) {
	n := b.PointCount()
	var written int64

	if err := writeInt64(w, int64(b.StartTimestamp)); err != nil {
		return written, err
	}
	written += 8

	if err := writeUint32(w, uint32(n)); err != nil {
		return written, err
	}
	written += 4

	for _, d := range b.Deltas {
		if err := writeInt64(w, d); err != nil {
			return written, err
		}
		written += 8
	}
	for _, v := range b.Values {
		if err := writeFloat64(w, v); err != nil {
			return written, err
		}
		written += 8
	}
	for _, name := range b.SeriesNames {
		nb := []byte(name)
		if err := writeUint32(w, uint32(len(nb))); err != nil {
			return written, err
		}
		written += 4
		if _, err := w.Write(nb); err != nil {
			return written, err
		}
		written += int64(len(nb))
	}
	for _, tags := range b.Tags {
		if tags == nil {
			tags = map[string]string{}
		}
		tb, err := json.Marshal(tags)
		if err != nil {
			return written, common.ErrSSTableJsonError(err)
		}
		if err := writeUint32(w, uint32(len(tb))); err != nil {
			return written, err
		}
		written += 4
		if _, err := w.Write(tb); err != nil {
			return written, err
		}
		written += int64(len(tb))
	}

	return written, nil
}

// decodeBlock reads one block in full from r, per the bit-exact layout.
func decodeBlock(r io.Reader) (DataBlock, error) {
	var block DataBlock

	startTS, err := readInt64(r)
	if err != nil {
		return block, err
	}
	block.StartTimestamp = common.Timestamp(startTS)

	n32, err := readUint32(r)
	if err != nil {
		return block, err
	}
	n := int(n32)

	block.Deltas = make([]int64, n)
	for i := range block.Deltas {
		d, err := readInt64(r)
		if err != nil {
			return block, err
		}
		block.Deltas[i] = d
	}

	block.Values = make([]float64, n)
	for i := range block.Values {
		v, err := readFloat64(r)
		if err != nil {
			return block, err
		}
		block.Values[i] = v
	}

	block.SeriesNames = make([]common.SeriesName, n)
	for i := range block.SeriesNames {
		nameLen, err := readUint32(r)
		if err != nil {
			return block, err
		}
		buf := make([]byte, nameLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return block, common.ErrSSTableIoError("read series name", err)
		}
		if !utf8.Valid(buf) {
			return block, common.ErrSSTableUtf8Error(nil)
		}
		block.SeriesNames[i] = common.SeriesName(buf)
	}

	block.Tags = make([]map[string]string, n)
	for i := range block.Tags {
		tagLen, err := readUint32(r)
		if err != nil {
			return block, err
		}
		buf := make([]byte, tagLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return block, common.ErrSSTableIoError("read tag map", err)
		}
		var tags map[string]string
		if err := json.Unmarshal(buf, &tags); err != nil {
			return block, common.ErrSSTableJsonError(err)
		}
		block.Tags[i] = tags
	}

	return block, nil
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeInt64(w io.Writer, v int64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

func writeFloat64(w io.Writer, v float64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, common.ErrSSTableIoError("read u32", err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readInt64(r io.Reader) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, common.ErrSSTableIoError("read i64", err)
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

func readFloat64(r io.Reader) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, common.ErrSSTableIoError("read f64", err)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[:])), nil
}
