package memtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storage-engine/internal/common"
	"storage-engine/internal/tsdb"
)

func TestMemTable_InsertAndGetSeriesRange(t *testing.T) {
	m := New(Config{Capacity: 100})

	_, err := m.Insert("cpu.load", tsdb.DataPoint{Timestamp: 100, Value: 1.0})
	require.NoError(t, err)
	_, err = m.Insert("cpu.load", tsdb.DataPoint{Timestamp: 200, Value: 2.0})
	require.NoError(t, err)

	points := m.GetSeriesRange("cpu.load", 0, 1000)
	require.Len(t, points, 2)
	assert.Equal(t, common.Timestamp(100), points[0].Timestamp)
	assert.Equal(t, common.Timestamp(200), points[1].Timestamp)
}

func TestMemTable_NonIncreasingTimestampRejected(t *testing.T) {
	m := New(Config{Capacity: 100})

	_, err := m.Insert("cpu.load", tsdb.DataPoint{Timestamp: 2000, Value: 1.0})
	require.NoError(t, err)

	_, err = m.Insert("cpu.load", tsdb.DataPoint{Timestamp: 1500, Value: 2.0})
	require.Error(t, err)
	assert.True(t, common.IsErrorCode(err, common.ErrMemTableInvalidTimestampOrder))

	_, err = m.Insert("cpu.load", tsdb.DataPoint{Timestamp: 2000, Value: 2.0})
	require.Error(t, err)
}

func TestMemTable_NeedsFlush(t *testing.T) {
	m := New(Config{Capacity: 2})

	r, err := m.Insert("cpu.load", tsdb.DataPoint{Timestamp: 1, Value: 1.0})
	require.NoError(t, err)
	assert.False(t, r.NeedsFlush)

	r, err = m.Insert("cpu.load", tsdb.DataPoint{Timestamp: 2, Value: 2.0})
	require.NoError(t, err)
	assert.True(t, r.NeedsFlush)
}

func TestMemTable_GetRangeAcrossSeries(t *testing.T) {
	m := New(Config{Capacity: 100})

	_, _ = m.Insert("cpu.load", tsdb.DataPoint{Timestamp: 150, Value: 1.0})
	_, _ = m.Insert("mem.used", tsdb.DataPoint{Timestamp: 100, Value: 2.0})
	_, _ = m.Insert("cpu.load", tsdb.DataPoint{Timestamp: 200, Value: 3.0})

	pairs := m.GetRange(0, 1000)
	require.Len(t, pairs, 3)
	assert.Equal(t, common.Timestamp(100), pairs[0].Point.Timestamp)
	assert.Equal(t, common.Timestamp(150), pairs[1].Point.Timestamp)
	assert.Equal(t, common.Timestamp(200), pairs[2].Point.Timestamp)
}

func TestMemTable_Drain(t *testing.T) {
	m := New(Config{Capacity: 100})
	_, _ = m.Insert("cpu.load", tsdb.DataPoint{Timestamp: 100, Value: 1.0})
	_, _ = m.Insert("cpu.load", tsdb.DataPoint{Timestamp: 200, Value: 2.0})

	drained := m.Drain()
	require.Len(t, drained["cpu.load"], 2)
	assert.Equal(t, 0, m.Size())
	assert.Empty(t, m.GetSeriesRange("cpu.load", 0, 1000))

	// The last-timestamp counter survives a drain.
	_, err := m.Insert("cpu.load", tsdb.DataPoint{Timestamp: 150, Value: 3.0})
	assert.Error(t, err)
}

func TestMemTable_SetLastTimestampRecovery(t *testing.T) {
	m := New(Config{Capacity: 100})
	m.SetLastTimestamp("cpu.load", 5000)

	_, err := m.Insert("cpu.load", tsdb.DataPoint{Timestamp: 4000, Value: 1.0})
	assert.Error(t, err)

	_, err = m.Insert("cpu.load", tsdb.DataPoint{Timestamp: 6000, Value: 1.0})
	assert.NoError(t, err)
}
