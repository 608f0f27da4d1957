package tsdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storage-engine/internal/common"
)

func TestTimeSeries_AddPointEnforcesStrictlyIncreasingTimestamps(t *testing.T) {
	ts, err := NewTimeSeries("cpu.load")
	require.NoError(t, err)

	require.NoError(t, ts.AddPoint(DataPoint{Timestamp: 2000, Value: 1.0}))

	err = ts.AddPoint(DataPoint{Timestamp: 1500, Value: 2.0})
	require.Error(t, err)
	assert.True(t, common.IsErrorCode(err, common.ErrNonIncreasingTimestamp))

	err = ts.AddPoint(DataPoint{Timestamp: 2000, Value: 2.0})
	require.Error(t, err)
	assert.True(t, common.IsErrorCode(err, common.ErrNonIncreasingTimestamp))

	require.NoError(t, ts.AddPoint(DataPoint{Timestamp: 2500, Value: 3.0}))

	points := ts.Points()
	require.Len(t, points, 2)
	assert.Equal(t, common.Timestamp(2000), points[0].Timestamp)
	assert.Equal(t, common.Timestamp(2500), points[1].Timestamp)
	assert.Equal(t, common.Timestamp(2500), ts.LastTimestamp())
}

func TestTimeSeries_AddPointValidatesDataPoint(t *testing.T) {
	ts, err := NewTimeSeries("cpu.load")
	require.NoError(t, err)

	err = ts.AddPoint(DataPoint{Timestamp: -1, Value: 1.0})
	require.Error(t, err)
	assert.True(t, common.IsErrorCode(err, common.ErrInvalidTimestamp))
}

func TestNewTimeSeries_RejectsInvalidName(t *testing.T) {
	_, err := NewTimeSeries("")
	require.Error(t, err)
	assert.True(t, common.IsErrorCode(err, common.ErrInvalidSeriesName))
}
