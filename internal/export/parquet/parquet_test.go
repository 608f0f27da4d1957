package parquet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storage-engine/internal/common"
	"storage-engine/internal/storage/block"
	"storage-engine/internal/tsdb"
)

func newTestBackend(t *testing.T) block.Storage {
	t.Helper()
	backend, err := block.NewFactory().Create(block.Config{Type: "local", BaseDir: t.TempDir()})
	require.NoError(t, err)
	return backend
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	sp := []SeriesPoints{
		{Series: "cpu.load", Points: []tsdb.DataPoint{
			{Timestamp: 100, Value: 0.5, Tags: map[string]string{"host": "a"}},
			{Timestamp: 200, Value: 1.5},
		}},
		{Series: "mem.used", Points: []tsdb.DataPoint{
			{Timestamp: 150, Value: 42.0},
		}},
	}

	w := NewWriter(backend, DefaultConfig())
	require.NoError(t, w.WriteRecords(ctx, "export.parquet", sp))

	r := NewReader(backend)
	got, err := r.ReadRecords(ctx, "export.parquet")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "cpu.load", got[0].Series)
	require.Len(t, got[0].Points, 2)
	assert.Equal(t, common.Timestamp(100), got[0].Points[0].Timestamp)
	assert.Equal(t, 0.5, got[0].Points[0].Value)
	assert.Equal(t, map[string]string{"host": "a"}, got[0].Points[0].Tags)
	assert.Equal(t, common.Timestamp(200), got[0].Points[1].Timestamp)

	assert.Equal(t, "mem.used", got[1].Series)
	require.Len(t, got[1].Points, 1)
	assert.Equal(t, 42.0, got[1].Points[0].Value)
}

func TestWriteRecords_EmptyRejected(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)
	w := NewWriter(backend, DefaultConfig())
	err := w.WriteRecords(ctx, "empty.parquet", nil)
	assert.Error(t, err)
}
