package parquet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"storage-engine/internal/common"
	"storage-engine/internal/storage/block"
	"storage-engine/internal/tsdb"
)

// Reader reads back Parquet files written by Writer, for verification
// and for tooling that wants to re-ingest an exported file.
type Reader struct {
	backend block.Storage
}

// NewReader builds a Reader over backend.
func NewReader(backend block.Storage) *Reader {
	return &Reader{backend: backend}
}

// ReadRecords reads every row of the Parquet file at path back into
// SeriesPoints, grouped by series in file order (consecutive rows of
// the same series are coalesced into one SeriesPoints entry).
func (r *Reader) ReadRecords(ctx context.Context, path string) ([]SeriesPoints, error) {
	rc, err := r.backend.Reader(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("parquet: open input: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("parquet: read input: %w", err)
	}

	pqFile, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parquet: new reader: %w", err)
	}
	defer pqFile.Close()

	pqReader, err := pqarrow.NewFileReader(pqFile, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("parquet: new arrow reader: %w", err)
	}

	table, err := pqReader.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("parquet: read table: %w", err)
	}
	defer table.Release()

	tr := array.NewTableReader(table, table.NumRows())
	defer tr.Release()

	var result []SeriesPoints
	for tr.Next() {
		rec := tr.Record()

		seriesCol, ok := rec.Column(0).(*array.String)
		if !ok {
			return nil, fmt.Errorf("parquet: unexpected type for series column")
		}
		tsCol, ok := rec.Column(1).(*array.Int64)
		if !ok {
			return nil, fmt.Errorf("parquet: unexpected type for timestamp column")
		}
		valueCol, ok := rec.Column(2).(*array.Float64)
		if !ok {
			return nil, fmt.Errorf("parquet: unexpected type for value column")
		}
		tagsCol, ok := rec.Column(3).(*array.String)
		if !ok {
			return nil, fmt.Errorf("parquet: unexpected type for tags column")
		}

		for i := 0; i < int(rec.NumRows()); i++ {
			var tags map[string]string
			if raw := tagsCol.Value(i); raw != "" && raw != "null" {
				if err := json.Unmarshal([]byte(raw), &tags); err != nil {
					return nil, fmt.Errorf("parquet: unmarshal tags: %w", err)
				}
			}

			point := tsdb.DataPoint{
				Timestamp: common.Timestamp(tsCol.Value(i)),
				Value:     valueCol.Value(i),
				Tags:      tags,
			}

			series := seriesCol.Value(i)
			if n := len(result); n > 0 && result[n-1].Series == series {
				result[n-1].Points = append(result[n-1].Points, point)
			} else {
				result = append(result, SeriesPoints{Series: series, Points: []tsdb.DataPoint{point}})
			}
		}
	}

	return result, nil
}
