package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storage-engine/internal/common"
	"storage-engine/internal/tsdb"
)

func TestParse_JSON(t *testing.T) {
	payload := `[
		{"series":"cpu.load","timestamp":100,"value":1.5,"tags":{"host":"a"}},
		{"series":"mem.used","timestamp":200,"value":2.5}
	]`

	points, err := Parse("json", []byte(payload))
	require.NoError(t, err)
	require.Len(t, points, 2)

	series, stripped, err := ExtractSeries(points[0])
	require.NoError(t, err)
	assert.Equal(t, common.SeriesName("cpu.load"), series)
	assert.Equal(t, common.Timestamp(100), stripped.Timestamp)
	assert.Equal(t, map[string]string{"host": "a"}, stripped.Tags)

	series2, stripped2, err := ExtractSeries(points[1])
	require.NoError(t, err)
	assert.Equal(t, common.SeriesName("mem.used"), series2)
	assert.Empty(t, stripped2.Tags)
}

func TestParse_JSON_MissingSeries(t *testing.T) {
	_, err := Parse("json", []byte(`[{"timestamp":100,"value":1.0}]`))
	assert.Error(t, err)
}

func TestParse_CSV(t *testing.T) {
	payload := "cpu.load,100,1.5,host=a;region=us\nmem.used,200,2.5\n"

	points, err := Parse("csv", []byte(payload))
	require.NoError(t, err)
	require.Len(t, points, 2)

	series, stripped, err := ExtractSeries(points[0])
	require.NoError(t, err)
	assert.Equal(t, common.SeriesName("cpu.load"), series)
	assert.Equal(t, map[string]string{"host": "a", "region": "us"}, stripped.Tags)

	series2, _, err := ExtractSeries(points[1])
	require.NoError(t, err)
	assert.Equal(t, common.SeriesName("mem.used"), series2)
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, err := Parse("xml", []byte("<x/>"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := tsdb.DataPoint{Timestamp: 100, Value: 1.0, Tags: map[string]string{tsdb.SeriesTagKey: "cpu.load"}}
	assert.NoError(t, Validate(valid))

	noSeries := tsdb.DataPoint{Timestamp: 100, Value: 1.0}
	assert.Error(t, Validate(noSeries))

	negativeTimestamp := tsdb.DataPoint{Timestamp: -1, Value: 1.0, Tags: map[string]string{tsdb.SeriesTagKey: "cpu.load"}}
	assert.Error(t, Validate(negativeTimestamp))

	tooManyTags := map[string]string{tsdb.SeriesTagKey: "cpu.load"}
	for i := 0; i < common.MaxTagsPerPoint+1; i++ {
		tooManyTags[string(rune('a'+i%26))+string(rune(i))] = "v"
	}
	assert.Error(t, Validate(tsdb.DataPoint{Timestamp: 1, Value: 1.0, Tags: tooManyTags}))
}
