package wal

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storage-engine/internal/common"
	"storage-engine/internal/tsdb"
)

func TestManager_NewManager(t *testing.T) {
	tempDir := t.TempDir()

	config := Config{
		DataDir:        tempDir,
		MaxSegmentSize: 1024 * 1024,
		SyncPolicy:     SyncAlways,
	}

	manager, err := NewManager(config)
	require.NoError(t, err)
	require.NotNil(t, manager)
	defer manager.Close()

	assert.DirExists(t, tempDir)
	assert.Equal(t, 1, manager.GetStats().TotalSegments)
}

func TestManager_AppendAndReplay(t *testing.T) {
	tempDir := t.TempDir()

	config := Config{
		DataDir:        tempDir,
		MaxSegmentSize: 1024 * 1024,
		SyncPolicy:     SyncAlways,
	}

	manager, err := NewManager(config)
	require.NoError(t, err)
	defer manager.Close()

	points := []tsdb.DataPoint{
		{Timestamp: 100, Value: 1.5},
		{Timestamp: 200, Value: 2.5},
		{Timestamp: 300, Value: 3.5, Tags: map[string]string{"host": "a"}},
	}
	for _, p := range points {
		require.NoError(t, manager.Append("cpu.load", p))
	}

	stats := manager.GetStats()
	assert.Equal(t, 1, stats.TotalSegments)
	assert.Equal(t, int64(3), stats.TotalEntries)

	var replayed []tsdb.DataPoint
	err = manager.Replay(func(series common.SeriesName, point tsdb.DataPoint) error {
		assert.Equal(t, common.SeriesName("cpu.load"), series)
		replayed = append(replayed, point)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, replayed, 3)
	assert.Equal(t, points, replayed)
}

// TestManager_Rotation exercises seed scenario S3: a tiny max segment size
// forces multiple segments, and replay still returns every point in order.
func TestManager_Rotation(t *testing.T) {
	tempDir := t.TempDir()

	config := Config{
		DataDir:        tempDir,
		MaxSegmentSize: 50,
		SyncPolicy:     SyncAlways,
	}

	manager, err := NewManager(config)
	require.NoError(t, err)
	defer manager.Close()

	for i := 0; i < 20; i++ {
		require.NoError(t, manager.Append("cpu.load", tsdb.DataPoint{Timestamp: common.Timestamp(i + 1), Value: float64(i)}))
	}

	stats := manager.GetStats()
	assert.GreaterOrEqual(t, stats.TotalSegments, 2)

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 2)

	var replayed []tsdb.DataPoint
	err = manager.Replay(func(series common.SeriesName, point tsdb.DataPoint) error {
		replayed = append(replayed, point)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, replayed, 20)
	for i, p := range replayed {
		assert.Equal(t, common.Timestamp(i+1), p.Timestamp)
	}
}

// TestManager_Corruption exercises seed scenario S4: corrupting the tail of
// a segment makes Verify report false.
func TestManager_Corruption(t *testing.T) {
	tempDir := t.TempDir()

	config := Config{
		DataDir:        tempDir,
		MaxSegmentSize: 1024 * 1024,
		SyncPolicy:     SyncAlways,
	}

	manager, err := NewManager(config)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, manager.Append("cpu.load", tsdb.DataPoint{Timestamp: common.Timestamp(i + 1), Value: float64(i)}))
	}
	segmentPath := manager.current.Path()
	require.NoError(t, manager.Close())

	reopened, err := NewManager(Config{DataDir: tempDir, MaxSegmentSize: 1024 * 1024, SyncPolicy: SyncAlways})
	require.NoError(t, err)
	assert.True(t, reopened.Verify())
	require.NoError(t, reopened.Close())

	f, err := os.OpenFile(segmentPath, os.O_WRONLY, 0644)
	require.NoError(t, err)
	info, err := f.Stat()
	require.NoError(t, err)
	garbage := make([]byte, 10)
	for i := range garbage {
		garbage[i] = 0xFF
	}
	_, err = f.WriteAt(garbage, info.Size()-10)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	corrupted, err := NewManager(Config{DataDir: tempDir, MaxSegmentSize: 1024 * 1024, SyncPolicy: SyncAlways})
	require.NoError(t, err)
	defer corrupted.Close()
	assert.False(t, corrupted.Verify())
}

func TestManager_MaxSegmentAgeRotation(t *testing.T) {
	tempDir := t.TempDir()

	config := Config{
		DataDir:        tempDir,
		MaxSegmentSize: 1024 * 1024,
		MaxSegmentAge:  time.Nanosecond,
		SyncPolicy:     SyncAlways,
	}

	manager, err := NewManager(config)
	require.NoError(t, err)
	defer manager.Close()

	time.Sleep(2 * time.Millisecond)

	require.NoError(t, manager.Append("cpu.load", tsdb.DataPoint{Timestamp: 1, Value: 1}))
	require.NoError(t, manager.Append("cpu.load", tsdb.DataPoint{Timestamp: 2, Value: 2}))

	assert.GreaterOrEqual(t, manager.GetStats().TotalSegments, 2)
}
