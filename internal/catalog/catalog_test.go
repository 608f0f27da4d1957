package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storage-engine/internal/common"
)

func sampleRecord(id string, min, max common.Timestamp, series ...common.SeriesName) *SSTableRecord {
	return &SSTableRecord{
		ID:           common.SSTableID(id),
		Path:         id + ".sst",
		MinTimestamp: min,
		MaxTimestamp: max,
		SeriesNames:  series,
		BlockCount:   len(series),
		PointCount:   len(series) * 10,
	}
}

func TestCatalog_RegisterAndGet(t *testing.T) {
	c := New()
	record := sampleRecord("t1", 100, 200, "cpu.load")
	require.NoError(t, c.Register(record))

	got, ok := c.Get("t1")
	require.True(t, ok)
	assert.Equal(t, record.Path, got.Path)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCatalog_FindCandidatesBySeriesAndRange(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(sampleRecord("t1", 100, 200, "cpu.load")))
	require.NoError(t, c.Register(sampleRecord("t2", 300, 400, "cpu.load")))
	require.NoError(t, c.Register(sampleRecord("t3", 100, 200, "mem.used")))

	candidates := c.FindCandidates("cpu.load", 150, 350)
	require.Len(t, candidates, 2)
	assert.Equal(t, common.SSTableID("t1"), candidates[0].ID)
	assert.Equal(t, common.SSTableID("t2"), candidates[1].ID)

	none := c.FindCandidates("cpu.load", 1000, 2000)
	assert.Empty(t, none)

	other := c.FindCandidates("mem.used", 0, 1000)
	require.Len(t, other, 1)
	assert.Equal(t, common.SSTableID("t3"), other[0].ID)
}

func TestCatalog_RegisterOverwritesSeriesIndex(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(sampleRecord("t1", 100, 200, "cpu.load")))
	require.NoError(t, c.Register(sampleRecord("t1", 100, 200, "mem.used")))

	assert.Empty(t, c.FindCandidates("cpu.load", 0, 1000))
	assert.Len(t, c.FindCandidates("mem.used", 0, 1000), 1)
}

func TestCatalog_Remove(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(sampleRecord("t1", 100, 200, "cpu.load")))
	c.Remove("t1")

	_, ok := c.Get("t1")
	assert.False(t, ok)
	assert.Empty(t, c.FindCandidates("cpu.load", 0, 1000))
}

func TestCatalog_SeriesNamesSorted(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(sampleRecord("t1", 100, 200, "mem.used", "cpu.load")))

	assert.Equal(t, []common.SeriesName{"cpu.load", "mem.used"}, c.SeriesNames())
}

func TestCatalog_ManifestRoundTrip(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(sampleRecord("t1", 100, 200, "cpu.load")))
	require.NoError(t, c.Register(sampleRecord("t2", 300, 400, "mem.used")))

	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, c.SaveManifest(path))

	loaded, err := LoadManifest(path)
	require.NoError(t, err)

	assert.Len(t, loaded.ListAll(), 2)
	candidates := loaded.FindCandidates("cpu.load", 0, 1000)
	require.Len(t, candidates, 1)
	assert.Equal(t, common.SSTableID("t1"), candidates[0].ID)
}

func TestCatalog_LoadManifestMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	c, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Empty(t, c.ListAll())
}
