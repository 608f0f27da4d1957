// Package parquet writes query results to Parquet for interoperability
// with analytics tooling, as a read-side export layered on top of the
// bit-exact SSTable format — it never replaces it.
package parquet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"storage-engine/internal/storage/block"
	"storage-engine/internal/tsdb"
)

// arrowSchema is fixed: every exported record carries the series it
// belongs to (export can span multiple series, unlike one query result),
// its timestamp, its value, and its tags serialized as a JSON object.
var arrowSchema = arrow.NewSchema([]arrow.Field{
	{Name: "series", Type: arrow.BinaryTypes.String},
	{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64},
	{Name: "value", Type: arrow.PrimitiveTypes.Float64},
	{Name: "tags", Type: arrow.BinaryTypes.String},
}, nil)

// Config configures the Parquet writer's physical layout.
type Config struct {
	Compression  compress.Compression
	RowGroupSize int64
}

// DefaultConfig returns snappy compression with a 64k-row row group,
// matching the teacher's default row group sizing.
func DefaultConfig() Config {
	return Config{Compression: compress.Codecs.Snappy, RowGroupSize: 64 * 1024}
}

// Writer converts query results or whole-series scans into Parquet
// files on a block.Storage backend.
type Writer struct {
	backend   block.Storage
	config    Config
	allocator memory.Allocator
}

// NewWriter builds a Writer over backend.
func NewWriter(backend block.Storage, config Config) *Writer {
	if config.RowGroupSize <= 0 {
		config = DefaultConfig()
	}
	return &Writer{backend: backend, config: config, allocator: memory.NewGoAllocator()}
}

// SeriesPoints pairs a series name with the points to export under it,
// so a single Parquet file can hold the result of a multi-series export.
type SeriesPoints struct {
	Series string
	Points []tsdb.DataPoint
}

// WriteRecords writes sp to a Parquet file at path on the writer's
// backend, one row per point across all series.
func (w *Writer) WriteRecords(ctx context.Context, path string, sp []SeriesPoints) error {
	total := 0
	for _, s := range sp {
		total += len(s.Points)
	}
	if total == 0 {
		return fmt.Errorf("parquet: no records to write")
	}

	out, err := w.backend.Writer(ctx, path)
	if err != nil {
		return fmt.Errorf("parquet: open output: %w", err)
	}
	defer out.Close()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(w.config.Compression),
		parquet.WithMaxRowGroupLength(w.config.RowGroupSize),
	)
	pqWriter, err := pqarrow.NewFileWriter(arrowSchema, out, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("parquet: new writer: %w", err)
	}
	defer pqWriter.Close()

	record, err := w.toArrowRecord(sp, total)
	if err != nil {
		return err
	}
	defer record.Release()

	if err := pqWriter.Write(record); err != nil {
		return fmt.Errorf("parquet: write record batch: %w", err)
	}
	return pqWriter.Close()
}

func (w *Writer) toArrowRecord(sp []SeriesPoints, total int) (arrow.Record, error) {
	seriesBuilder := array.NewStringBuilder(w.allocator)
	tsBuilder := array.NewInt64Builder(w.allocator)
	valueBuilder := array.NewFloat64Builder(w.allocator)
	tagsBuilder := array.NewStringBuilder(w.allocator)
	defer seriesBuilder.Release()
	defer tsBuilder.Release()
	defer valueBuilder.Release()
	defer tagsBuilder.Release()

	seriesBuilder.Reserve(total)
	tsBuilder.Reserve(total)
	valueBuilder.Reserve(total)
	tagsBuilder.Reserve(total)

	for _, s := range sp {
		for _, p := range s.Points {
			seriesBuilder.Append(s.Series)
			tsBuilder.Append(int64(p.Timestamp))
			valueBuilder.Append(p.Value)

			tagsJSON, err := json.Marshal(p.Tags)
			if err != nil {
				return nil, fmt.Errorf("parquet: marshal tags: %w", err)
			}
			tagsBuilder.Append(string(tagsJSON))
		}
	}

	seriesArr := seriesBuilder.NewArray()
	tsArr := tsBuilder.NewArray()
	valueArr := valueBuilder.NewArray()
	tagsArr := tagsBuilder.NewArray()
	defer seriesArr.Release()
	defer tsArr.Release()
	defer valueArr.Release()
	defer tagsArr.Release()

	return array.NewRecord(arrowSchema, []arrow.Array{seriesArr, tsArr, valueArr, tagsArr}, int64(total)), nil
}
