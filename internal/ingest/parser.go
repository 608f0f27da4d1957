// Package ingest implements the write-path collaborators upstream of the
// storage core: decoding raw JSON/CSV payloads into DataPoints, and
// validating them before they are allowed to reach the WAL.
package ingest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"storage-engine/internal/common"
	"storage-engine/internal/tsdb"
)

// jsonPoint mirrors the wire shape of one point in a JSON ingest payload.
type jsonPoint struct {
	Series    string            `json:"series"`
	Timestamp int64             `json:"timestamp"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags"`
}

// Parse decodes a raw ingest payload into DataPoints. The series name
// travels with each point under the reserved tsdb.SeriesTagKey tag, per
// DataPoint's documented invariant; callers pull it back out with
// ExtractSeries before handing the point to the storage core. Supported
// formats are "json" (an array of {series,timestamp,value,tags} objects)
// and "csv" (series,timestamp,value[,tag=val;tag2=val2] rows, no header).
func Parse(format string, data []byte) ([]tsdb.DataPoint, error) {
	switch strings.ToLower(format) {
	case "json":
		return parseJSON(data)
	case "csv":
		return parseCSV(data)
	default:
		return nil, fmt.Errorf("ingest: unsupported format %q", format)
	}
}

func parseJSON(data []byte) ([]tsdb.DataPoint, error) {
	var raw []jsonPoint
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ingest: invalid JSON payload: %w", err)
	}

	points := make([]tsdb.DataPoint, 0, len(raw))
	for i, rp := range raw {
		if rp.Series == "" {
			return nil, fmt.Errorf("ingest: JSON point %d missing series", i)
		}
		tags := make(map[string]string, len(rp.Tags)+1)
		for k, v := range rp.Tags {
			tags[k] = v
		}
		tags[tsdb.SeriesTagKey] = rp.Series
		points = append(points, tsdb.DataPoint{
			Timestamp: common.Timestamp(rp.Timestamp),
			Value:     rp.Value,
			Tags:      tags,
		})
	}
	return points, nil
}

func parseCSV(data []byte) ([]tsdb.DataPoint, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ingest: invalid CSV payload: %w", err)
	}

	points := make([]tsdb.DataPoint, 0, len(records))
	for i, record := range records {
		if len(record) < 3 {
			return nil, fmt.Errorf("ingest: CSV row %d has fewer than 3 fields", i)
		}

		series := strings.TrimSpace(record[0])
		if series == "" {
			return nil, fmt.Errorf("ingest: CSV row %d missing series", i)
		}

		ts, err := strconv.ParseInt(strings.TrimSpace(record[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ingest: CSV row %d has invalid timestamp: %w", i, err)
		}

		value, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("ingest: CSV row %d has invalid value: %w", i, err)
		}

		tags := map[string]string{tsdb.SeriesTagKey: series}
		if len(record) >= 4 {
			for _, pair := range strings.Split(record[3], ";") {
				pair = strings.TrimSpace(pair)
				if pair == "" {
					continue
				}
				kv := strings.SplitN(pair, "=", 2)
				if len(kv) != 2 {
					return nil, fmt.Errorf("ingest: CSV row %d has malformed tag %q", i, pair)
				}
				tags[kv[0]] = kv[1]
			}
		}

		points = append(points, tsdb.DataPoint{
			Timestamp: common.Timestamp(ts),
			Value:     value,
			Tags:      tags,
		})
	}
	return points, nil
}

// ExtractSeries pulls the reserved series tag out of a parsed DataPoint,
// returning the series name and a DataPoint with that tag stripped, ready
// for MemTable.Insert/wal.Manager.Append.
func ExtractSeries(p tsdb.DataPoint) (common.SeriesName, tsdb.DataPoint, error) {
	name, ok := p.Tags[tsdb.SeriesTagKey]
	if !ok || name == "" {
		return "", tsdb.DataPoint{}, common.ErrInvalidSeriesNameError("point carries no series tag")
	}

	remaining := make(map[string]string, len(p.Tags)-1)
	for k, v := range p.Tags {
		if k == tsdb.SeriesTagKey {
			continue
		}
		remaining[k] = v
	}
	if len(remaining) == 0 {
		remaining = nil
	}

	stripped := tsdb.DataPoint{Timestamp: p.Timestamp, Value: p.Value, Tags: remaining}
	return common.SeriesName(name), stripped, nil
}
