// Package flush implements the background process that converts a
// MemTable's buffered points into an immutable SSTable file, registers it
// with the catalog, and checkpoints the WAL segments that are now
// redundant.
package flush

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"storage-engine/internal/catalog"
	"storage-engine/internal/common"
	"storage-engine/internal/sstable"
	"storage-engine/internal/storage/block"
	"storage-engine/internal/storage/memtable"
	"storage-engine/internal/wal"
)

// Config configures a Manager.
type Config struct {
	// OutputPrefix is prepended to every generated SSTable file name, e.g.
	// "sstables" to keep them in their own directory/prefix within the
	// storage backend.
	OutputPrefix string
}

// Manager drives a single flush at a time; a second Flush call while one is
// already running is rejected rather than queued, so a caller observing
// NeedsFlush repeatedly is expected to back off and retry.
type Manager struct {
	mu         sync.Mutex
	config     Config
	backend    block.Storage
	catalog    *catalog.Catalog
	wal        *wal.Manager
	inProgress bool
}

// NewManager builds a flush Manager around a storage backend, the catalog
// it registers new SSTables with, and (optionally) the WAL it checkpoints
// after a successful flush. wal may be nil if checkpointing is handled
// elsewhere.
func NewManager(config Config, backend block.Storage, cat *catalog.Catalog, walManager *wal.Manager) *Manager {
	return &Manager{config: config, backend: backend, catalog: cat, wal: walManager}
}

// Flush drains every point currently buffered in mt, writes one DataBlock
// per series to a new SSTable file (in series-name order, for a
// deterministic file layout), registers the file with the catalog, and
// checkpoints the WAL up to the flush's start time. It returns nil, nil if
// mt held no points.
//
// mt.Drain is atomic with respect to concurrent Insert calls, so any point
// this call does not see was either flushed already or will still be in the
// WAL for a later replay; a flush failure after Drain loses nothing, since
// the WAL has not yet been checkpointed.
func (m *Manager) Flush(ctx context.Context, mt *memtable.MemTable) (*catalog.SSTableRecord, error) {
	m.mu.Lock()
	if m.inProgress {
		m.mu.Unlock()
		return nil, common.ErrFlushInProgressError()
	}
	m.inProgress = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inProgress = false
		m.mu.Unlock()
	}()

	startedAt := time.Now()
	drained := mt.Drain()
	if len(drained) == 0 {
		return nil, nil
	}

	series := make([]common.SeriesName, 0, len(drained))
	for name := range drained {
		series = append(series, name)
	}
	sort.Slice(series, func(i, j int) bool { return series[i] < series[j] })

	path := m.generatePath(startedAt)
	writer, err := sstable.NewWriter(ctx, m.backend, path)
	if err != nil {
		return nil, common.ErrFlushFailedError("open SSTable writer", err)
	}

	for _, name := range series {
		points := drained[name]
		if len(points) == 0 {
			continue
		}
		if err := writer.WriteBlock(sstable.NewBlockFromPoints(name, points)); err != nil {
			return nil, common.ErrFlushFailedError(fmt.Sprintf("write block for series %q", name), err)
		}
	}

	info, err := writer.Close()
	if err != nil {
		return nil, common.ErrFlushFailedError("close SSTable writer", err)
	}

	record := &catalog.SSTableRecord{
		ID:           common.NewSSTableID(info.MinTimestamp, path),
		Path:         info.Path,
		MinTimestamp: info.MinTimestamp,
		MaxTimestamp: info.MaxTimestamp,
		SeriesNames:  info.SeriesNames,
		BlockCount:   info.BlockCount,
		PointCount:   info.PointCount,
		CreatedAt:    startedAt,
	}
	if err := m.catalog.Register(record); err != nil {
		return nil, common.ErrFlushFailedError("register SSTable with catalog", err)
	}

	if m.wal != nil {
		if err := m.wal.Checkpoint(startedAt); err != nil {
			return record, common.ErrFlushFailedError("checkpoint WAL after flush", err)
		}
	}

	return record, nil
}

func (m *Manager) generatePath(at time.Time) string {
	name := fmt.Sprintf("%d.sst", at.UnixNano())
	if m.config.OutputPrefix == "" {
		return name
	}
	return filepath.ToSlash(filepath.Join(m.config.OutputPrefix, name))
}
