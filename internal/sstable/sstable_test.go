package sstable

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storage-engine/internal/common"
	"storage-engine/internal/storage/block"
	"storage-engine/internal/tsdb"
)

func newLocalBackend(t *testing.T) (block.Storage, string) {
	t.Helper()
	dir := t.TempDir()
	backend, err := block.NewFactory().Create(block.Config{Type: "local", BaseDir: dir})
	require.NoError(t, err)
	return backend, dir
}

// TestRoundTrip exercises the round-trip law: reading back a block written
// to an SSTable file reproduces its scalar fields exactly and its tags maps
// structurally.
func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, _ := newLocalBackend(t)

	points := []tsdb.DataPoint{
		{Timestamp: 1000, Value: 1.5, Tags: map[string]string{"host": "a"}},
		{Timestamp: 1010, Value: 2.5, Tags: map[string]string{"host": "b"}},
		{Timestamp: 1025, Value: 3.5, Tags: nil},
	}
	original := NewBlockFromPoints("cpu.load", points)

	w, err := NewWriter(ctx, backend, "table-1.sst")
	require.NoError(t, err)
	require.NoError(t, w.WriteBlock(original))
	info, err := w.Close()
	require.NoError(t, err)

	assert.Equal(t, common.Timestamp(1000), info.MinTimestamp)
	assert.Equal(t, common.Timestamp(1025), info.MaxTimestamp)
	assert.Equal(t, []common.SeriesName{"cpu.load"}, info.SeriesNames)
	assert.Equal(t, 1, info.BlockCount)
	assert.Equal(t, 3, info.PointCount)

	h, err := Open(ctx, backend, "table-1.sst")
	require.NoError(t, err)
	require.Equal(t, 1, h.BlockCount())

	min, max, ok := h.MinMaxTimestamp()
	require.True(t, ok)
	assert.Equal(t, common.Timestamp(1000), min)
	assert.Equal(t, common.Timestamp(1025), max)

	decoded, err := h.ReadBlock(0)
	require.NoError(t, err)
	assert.Equal(t, original.StartTimestamp, decoded.StartTimestamp)
	assert.Equal(t, original.Deltas, decoded.Deltas)
	assert.Equal(t, original.Values, decoded.Values)
	assert.Equal(t, original.SeriesNames, decoded.SeriesNames)

	assert.Equal(t, map[string]string{"host": "a"}, decoded.Tags[0])
	assert.Equal(t, map[string]string{"host": "b"}, decoded.Tags[1])
	assert.Empty(t, decoded.Tags[2])

	assert.Equal(t, []common.Timestamp{1000, 1010, 1025}, decoded.Timestamps())
}

// TestMultipleBlocks writes several blocks to one file and verifies random
// access to any of them independently of scan order.
func TestMultipleBlocks(t *testing.T) {
	ctx := context.Background()
	backend, _ := newLocalBackend(t)

	w, err := NewWriter(ctx, backend, "table-2.sst")
	require.NoError(t, err)

	block1 := NewBlockFromPoints("cpu.load", []tsdb.DataPoint{
		{Timestamp: 100, Value: 1},
		{Timestamp: 200, Value: 2},
	})
	block2 := NewBlockFromPoints("mem.used", []tsdb.DataPoint{
		{Timestamp: 150, Value: 10},
		{Timestamp: 300, Value: 20},
		{Timestamp: 450, Value: 30},
	})
	require.NoError(t, w.WriteBlock(block1))
	require.NoError(t, w.WriteBlock(block2))
	info, err := w.Close()
	require.NoError(t, err)
	assert.Equal(t, 2, info.BlockCount)
	assert.Equal(t, 5, info.PointCount)
	assert.ElementsMatch(t, []common.SeriesName{"cpu.load", "mem.used"}, info.SeriesNames)

	h, err := Open(ctx, backend, "table-2.sst")
	require.NoError(t, err)
	require.Equal(t, 2, h.BlockCount())

	second, err := h.ReadBlock(1)
	require.NoError(t, err)
	assert.Equal(t, common.SeriesName("mem.used"), second.SeriesNames[0])
	assert.Equal(t, []float64{10, 20, 30}, second.Values)

	first, err := h.ReadBlock(0)
	require.NoError(t, err)
	assert.Equal(t, common.SeriesName("cpu.load"), first.SeriesNames[0])

	var seen []int
	require.NoError(t, h.ScanBlocks(func(index int, b DataBlock) bool {
		seen = append(seen, index)
		return true
	}))
	assert.Equal(t, []int{0, 1}, seen)
}

// TestInvalidMagicRejected exercises testable property 6: a corrupted magic
// number is rejected at open time, not silently accepted.
func TestInvalidMagicRejected(t *testing.T) {
	ctx := context.Background()
	backend, dir := newLocalBackend(t)

	w, err := NewWriter(ctx, backend, "bad-magic.sst")
	require.NoError(t, err)
	require.NoError(t, w.WriteBlock(NewBlockFromPoints("cpu.load", []tsdb.DataPoint{{Timestamp: 1, Value: 1}})))
	_, err = w.Close()
	require.NoError(t, err)

	fullPath := filepath.Join(dir, "bad-magic.sst")
	f, err := os.OpenFile(fullPath, os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0x00, 0x00, 0x00, 0x00}, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(ctx, backend, "bad-magic.sst")
	require.Error(t, err)
	assert.True(t, common.IsErrorCode(err, common.ErrSSTableInvalidMagic))
}

// TestUnsupportedVersionRejected exercises testable property 6 for the version
// field: a version the reader does not understand is rejected, not ignored.
func TestUnsupportedVersionRejected(t *testing.T) {
	ctx := context.Background()
	backend, dir := newLocalBackend(t)

	w, err := NewWriter(ctx, backend, "bad-version.sst")
	require.NoError(t, err)
	require.NoError(t, w.WriteBlock(NewBlockFromPoints("cpu.load", []tsdb.DataPoint{{Timestamp: 1, Value: 1}})))
	_, err = w.Close()
	require.NoError(t, err)

	fullPath := filepath.Join(dir, "bad-version.sst")
	f, err := os.OpenFile(fullPath, os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0x63, 0x00, 0x00, 0x00}, 4)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(ctx, backend, "bad-version.sst")
	require.Error(t, err)
	assert.True(t, common.IsErrorCode(err, common.ErrSSTableUnsupportedVersion))
}

// TestInvalidBlockIndexRejected checks that requesting an out-of-range block
// index returns a structured error rather than panicking.
func TestInvalidBlockIndexRejected(t *testing.T) {
	ctx := context.Background()
	backend, _ := newLocalBackend(t)

	w, err := NewWriter(ctx, backend, "table-3.sst")
	require.NoError(t, err)
	require.NoError(t, w.WriteBlock(NewBlockFromPoints("cpu.load", []tsdb.DataPoint{{Timestamp: 1, Value: 1}})))
	_, err = w.Close()
	require.NoError(t, err)

	h, err := Open(ctx, backend, "table-3.sst")
	require.NoError(t, err)

	_, err = h.ReadBlock(5)
	require.Error(t, err)
	assert.True(t, common.IsErrorCode(err, common.ErrSSTableInvalidBlockIndex))
}
