// Package query implements the minimal resolved-query representation and
// grammar consumed by the executor, and the executor itself: the component
// that merges MemTable and SSTable data for a (series, time range) lookup.
package query

import (
	"fmt"
	"strconv"
	"strings"

	"storage-engine/internal/common"
)

// Query is a resolved, absolute-range lookup: the planner's job (parsing
// relative/"last duration" forms) ends before this point; the executor only
// ever sees inclusive absolute bounds.
type Query struct {
	SeriesName common.SeriesName
	Start      common.Timestamp
	End        common.Timestamp
}

// Parse reads the tiny grammar `series{start,end}`, e.g. `cpu.load{1000,2000}`.
// This is deliberately shallow: the executor, not the grammar, is the hard
// part of this package.
func Parse(input string) (Query, error) {
	input = strings.TrimSpace(input)
	open := strings.IndexByte(input, '{')
	close := strings.LastIndexByte(input, '}')
	if open < 0 || close < 0 || close < open {
		return Query{}, fmt.Errorf("query: malformed expression %q, expected series{start,end}", input)
	}

	series := strings.TrimSpace(input[:open])
	if series == "" {
		return Query{}, fmt.Errorf("query: missing series name in %q", input)
	}

	bounds := strings.Split(input[open+1:close], ",")
	if len(bounds) != 2 {
		return Query{}, fmt.Errorf("query: expected exactly two bounds in %q", input)
	}

	start, err := strconv.ParseInt(strings.TrimSpace(bounds[0]), 10, 64)
	if err != nil {
		return Query{}, fmt.Errorf("query: invalid start timestamp: %w", err)
	}
	end, err := strconv.ParseInt(strings.TrimSpace(bounds[1]), 10, 64)
	if err != nil {
		return Query{}, fmt.Errorf("query: invalid end timestamp: %w", err)
	}
	if end < start {
		return Query{}, fmt.Errorf("query: end %d precedes start %d", end, start)
	}

	return Query{
		SeriesName: common.SeriesName(series),
		Start:      common.Timestamp(start),
		End:        common.Timestamp(end),
	}, nil
}

// String renders q back in the grammar Parse accepts.
func (q Query) String() string {
	return fmt.Sprintf("%s{%d,%d}", q.SeriesName, int64(q.Start), int64(q.End))
}
