package ingest

import (
	"storage-engine/internal/common"
	"storage-engine/internal/tsdb"
)

// Validate enforces value sanity on a freshly-parsed DataPoint before it is
// allowed to reach the WAL: a non-negative timestamp, ASCII tag keys and
// values, a present and non-empty series tag, and a bounded tag-set size.
// It does not check monotonicity against a series' prior writes — that is
// MemTable.Insert's job, since it requires per-series state this package
// does not hold.
func Validate(p tsdb.DataPoint) error {
	if err := p.Validate(); err != nil {
		return err
	}

	series, ok := p.Tags[tsdb.SeriesTagKey]
	if !ok || series == "" {
		return common.ErrInvalidSeriesNameError("point missing non-empty series tag")
	}
	if err := tsdb.ValidateSeriesName(common.SeriesName(series)); err != nil {
		return err
	}

	if len(p.Tags) > common.MaxTagsPerPoint {
		return common.ErrInvalidTagKeyError("too many tags on point")
	}
	for k, v := range p.Tags {
		if len(k) > common.MaxTagKeyLength {
			return common.ErrInvalidTagKeyError("tag key exceeds maximum length: " + k)
		}
		if len(v) > common.MaxTagValueLength {
			return common.ErrInvalidTagValueError("tag value exceeds maximum length for key: " + k)
		}
	}
	if len(series) > common.MaxSeriesNameLength {
		return common.ErrInvalidSeriesNameError("series name exceeds maximum length")
	}

	return nil
}
