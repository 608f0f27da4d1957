package flush

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storage-engine/internal/catalog"
	"storage-engine/internal/common"
	"storage-engine/internal/sstable"
	"storage-engine/internal/storage/block"
	"storage-engine/internal/storage/memtable"
	"storage-engine/internal/tsdb"
	"storage-engine/internal/wal"
)

func newTestBackend(t *testing.T) block.Storage {
	t.Helper()
	backend, err := block.NewFactory().Create(block.Config{Type: "local", BaseDir: t.TempDir()})
	require.NoError(t, err)
	return backend
}

func TestManager_FlushWritesSSTableAndRegistersCatalog(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)
	cat := catalog.New()

	mt := memtable.New(memtable.Config{Capacity: 100})
	_, err := mt.Insert("cpu.load", tsdb.DataPoint{Timestamp: 100, Value: 1.0})
	require.NoError(t, err)
	_, err = mt.Insert("cpu.load", tsdb.DataPoint{Timestamp: 200, Value: 2.0})
	require.NoError(t, err)
	_, err = mt.Insert("mem.used", tsdb.DataPoint{Timestamp: 150, Value: 5.0})
	require.NoError(t, err)

	manager := NewManager(Config{OutputPrefix: "sstables"}, backend, cat, nil)
	record, err := manager.Flush(ctx, mt)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Equal(t, 3, record.PointCount)
	assert.ElementsMatch(t, []common.SeriesName{"cpu.load", "mem.used"}, record.SeriesNames)
	assert.Equal(t, common.Timestamp(100), record.MinTimestamp)
	assert.Equal(t, common.Timestamp(200), record.MaxTimestamp)

	got, ok := cat.Get(record.ID)
	require.True(t, ok)
	assert.Equal(t, record.Path, got.Path)

	assert.Equal(t, 0, mt.Size())

	h, err := sstable.Open(ctx, backend, record.Path)
	require.NoError(t, err)
	assert.Equal(t, 2, h.BlockCount())
}

func TestManager_FlushEmptyMemTableIsNoop(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)
	cat := catalog.New()
	mt := memtable.New(memtable.Config{Capacity: 100})

	manager := NewManager(Config{}, backend, cat, nil)
	record, err := manager.Flush(ctx, mt)
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.Empty(t, cat.ListAll())
}

func TestManager_RejectsConcurrentFlush(t *testing.T) {
	backend := newTestBackend(t)
	cat := catalog.New()
	manager := NewManager(Config{}, backend, cat, nil)

	manager.mu.Lock()
	manager.inProgress = true
	manager.mu.Unlock()

	mt := memtable.New(memtable.Config{Capacity: 100})
	_, err := manager.Flush(context.Background(), mt)
	require.Error(t, err)
	assert.True(t, common.IsErrorCode(err, common.ErrFlushInProgress))
}

func TestManager_ChecksPointsWAL(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)
	cat := catalog.New()

	walManager, err := wal.NewManager(wal.Config{DataDir: t.TempDir(), MaxSegmentSize: 1024 * 1024, SyncPolicy: wal.SyncAlways})
	require.NoError(t, err)
	defer walManager.Close()

	mt := memtable.New(memtable.Config{Capacity: 100})
	point := tsdb.DataPoint{Timestamp: 1, Value: 1.0}
	require.NoError(t, walManager.Append("cpu.load", point))
	_, err = mt.Insert("cpu.load", point)
	require.NoError(t, err)

	manager := NewManager(Config{}, backend, cat, walManager)
	record, err := manager.Flush(ctx, mt)
	require.NoError(t, err)
	require.NotNil(t, record)
}
