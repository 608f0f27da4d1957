package query

import (
	"context"
	"sort"
	"sync"
	"time"

	"storage-engine/internal/catalog"
	"storage-engine/internal/common"
	"storage-engine/internal/sstable"
	"storage-engine/internal/storage/block"
	"storage-engine/internal/storage/memtable"
	"storage-engine/internal/tsdb"
)

// Config configures an Executor.
type Config struct {
	MaxConcurrentTasks int
	MemoryLimitBytes   int64
	Timeout            time.Duration
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentTasks: 4,
		MemoryLimitBytes:   1 << 30, // 1 GiB
		Timeout:            30 * time.Second,
	}
}

// approxPointSize estimates the memory cost of one emitted DataPoint,
// charged against the executor's memory budget.
func approxPointSize(p tsdb.DataPoint) int64 {
	size := int64(8 + 8) // Timestamp + Value
	for k, v := range p.Tags {
		size += int64(len(k) + len(v) + 16) // map bucket overhead, approximated
	}
	return size
}

// Executor merges MemTable and SSTable data for a resolved Query, in
// timestamp-ascending order with at-most-one point per timestamp
// (MemTable wins a tie).
type Executor struct {
	mt      *memtable.MemTable
	catalog *catalog.Catalog
	backend block.Storage
	config  Config
}

// NewExecutor builds an Executor over the live MemTable, the catalog of
// flushed SSTables, and the storage backend those SSTables live on.
func NewExecutor(mt *memtable.MemTable, cat *catalog.Catalog, backend block.Storage, config Config) *Executor {
	if config.MaxConcurrentTasks <= 0 {
		config.MaxConcurrentTasks = DefaultConfig().MaxConcurrentTasks
	}
	if config.MemoryLimitBytes <= 0 {
		config.MemoryLimitBytes = DefaultConfig().MemoryLimitBytes
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Executor{mt: mt, catalog: cat, backend: backend, config: config}
}

// Execute runs q to completion: it collects matching MemTable points, fans
// out one scanning task per overlapping SSTable (bounded by
// MaxConcurrentTasks), and returns the timestamp-ascending, deduplicated
// union. A task that fails cancels its siblings cooperatively; the first
// failure is the one returned.
func (e *Executor) Execute(ctx context.Context, q Query) ([]tsdb.DataPoint, error) {
	if q.SeriesName == "" {
		return nil, common.ErrExecutionFailedError("query has no series name", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	acc := &resultAccumulator{
		seen:        make(map[common.Timestamp]struct{}),
		memoryLimit: e.config.MemoryLimitBytes,
	}

	memtablePoints := e.mt.GetSeriesRange(q.SeriesName, q.Start, q.End)
	for _, p := range memtablePoints {
		acc.addLocked(p)
	}

	candidates := e.catalog.FindCandidates(q.SeriesName, q.Start, q.End)
	if len(candidates) == 0 {
		return acc.sorted(), nil
	}

	sem := make(chan struct{}, e.config.MaxConcurrentTasks)
	var wg sync.WaitGroup
	errCh := make(chan error, len(candidates))
	taskCtx, cancelTasks := context.WithCancel(ctx)
	defer cancelTasks()

	for _, record := range candidates {
		record := record
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := e.scanTable(taskCtx, record, q, acc); err != nil {
				select {
				case errCh <- err:
				default:
				}
				cancelTasks()
			}
		}()
	}

	wg.Wait()
	close(errCh)

	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
	default:
	}

	if err := ctx.Err(); err != nil {
		if err == context.DeadlineExceeded {
			return nil, common.ErrExecutionFailedError("query timeout", err)
		}
		return nil, common.ErrExecutionCancelledError()
	}

	return acc.sorted(), nil
}

// scanTable scans every block of one SSTable in file order, skipping blocks
// whose start timestamp is already past the query's end, and feeds matching
// points into acc.
func (e *Executor) scanTable(ctx context.Context, record *catalog.SSTableRecord, q Query, acc *resultAccumulator) error {
	handle, err := sstable.Open(ctx, e.backend, record.Path)
	if err != nil {
		return common.ErrExecutionFailedError("open SSTable for scan", err)
	}

	for i := 0; i < handle.BlockCount(); i++ {
		if err := ctx.Err(); err != nil {
			if err == context.DeadlineExceeded {
				return common.ErrExecutionFailedError("query timeout", err)
			}
			return common.ErrExecutionCancelledError()
		}

		startTS, _ := handle.BlockTimestampRange(i)
		if startTS > q.End {
			continue
		}

		decoded, err := handle.ReadBlock(i)
		if err != nil {
			return common.ErrExecutionFailedError("read SSTable block", err)
		}

		timestamps := decoded.Timestamps()
		for j, ts := range timestamps {
			if decoded.SeriesNames[j] != q.SeriesName {
				continue
			}
			if ts < q.Start || ts > q.End {
				continue
			}
			point := tsdb.DataPoint{Timestamp: ts, Value: decoded.Values[j]}
			if err := acc.add(point); err != nil {
				return err
			}
		}
	}

	return nil
}

// resultAccumulator deduplicates points by timestamp across the MemTable
// pass and every concurrent SSTable scan, and tracks the shared memory
// budget. All mutation goes through its mutex, including the initial,
// single-goroutine MemTable pass (addLocked), which runs before any task is
// spawned.
type resultAccumulator struct {
	mu          sync.Mutex
	seen        map[common.Timestamp]struct{}
	points      []tsdb.DataPoint
	memoryUsed  int64
	memoryLimit int64
}

// addLocked is used only during the single-goroutine MemTable pass, before
// any concurrent task exists; it still takes the mutex for consistency with
// add, at negligible cost given memtable result set sizes.
func (a *resultAccumulator) addLocked(p tsdb.DataPoint) {
	_ = a.add(p)
}

func (a *resultAccumulator) add(p tsdb.DataPoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.seen[p.Timestamp]; dup {
		return nil
	}

	size := approxPointSize(p)
	if a.memoryUsed+size > a.memoryLimit {
		return common.ErrExecutionMemoryLimitExceededError(a.memoryLimit)
	}

	a.seen[p.Timestamp] = struct{}{}
	a.points = append(a.points, p)
	a.memoryUsed += size
	return nil
}

func (a *resultAccumulator) sorted() []tsdb.DataPoint {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := make([]tsdb.DataPoint, len(a.points))
	copy(result, a.points)
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp < result[j].Timestamp })
	return result
}
