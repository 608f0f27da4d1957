// Package catalog tracks which SSTable files exist, what series each one
// holds, and its timestamp range, so the query executor can narrow a
// (series, time range) lookup down to a small candidate set without opening
// every file on disk.
package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"storage-engine/internal/common"
)

// SSTableRecord is everything the catalog remembers about one flushed
// SSTable file, enough to decide relevance without reopening it.
type SSTableRecord struct {
	ID           common.SSTableID    `json:"id"`
	Path         string              `json:"path"`
	MinTimestamp common.Timestamp    `json:"min_timestamp"`
	MaxTimestamp common.Timestamp    `json:"max_timestamp"`
	SeriesNames  []common.SeriesName `json:"series_names"`
	BlockCount   int                 `json:"block_count"`
	PointCount   int                 `json:"point_count"`
	CreatedAt    time.Time           `json:"created_at"`
}

// overlaps reports whether the record's timestamp range intersects
// [start, end].
func (r *SSTableRecord) overlaps(start, end common.Timestamp) bool {
	return r.MinTimestamp <= end && r.MaxTimestamp >= start
}

func (r *SSTableRecord) hasSeries(series common.SeriesName) bool {
	for _, s := range r.SeriesNames {
		if s == series {
			return true
		}
	}
	return false
}

// clone returns a deep copy so callers can't mutate catalog-owned state
// through a returned pointer.
func (r *SSTableRecord) clone() *SSTableRecord {
	cp := *r
	cp.SeriesNames = append([]common.SeriesName(nil), r.SeriesNames...)
	return &cp
}

// Catalog is the single source of truth mapping SSTable IDs to their
// records and series names to the IDs of the tables that hold them. A
// single RWMutex guards both maps so readers always see a consistent
// snapshot of table membership.
type Catalog struct {
	mu          sync.RWMutex
	tables      map[common.SSTableID]*SSTableRecord
	seriesIndex map[common.SeriesName]map[common.SSTableID]struct{}
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		tables:      make(map[common.SSTableID]*SSTableRecord),
		seriesIndex: make(map[common.SeriesName]map[common.SSTableID]struct{}),
	}
}

// Register adds a newly flushed SSTable to the catalog. Registering the
// same ID twice overwrites the prior record and rebuilds its series index
// entries, so callers may safely retry a flush-and-register step.
func (c *Catalog) Register(record *SSTableRecord) error {
	if record.ID == "" {
		return common.NewError(common.ErrFlushFailed, "cannot register SSTable with empty ID")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.tables[record.ID]; ok {
		c.removeFromSeriesIndexLocked(existing)
	}

	stored := record.clone()
	stored.CreatedAt = record.CreatedAt
	c.tables[record.ID] = stored
	c.addToSeriesIndexLocked(stored)

	return nil
}

func (c *Catalog) addToSeriesIndexLocked(record *SSTableRecord) {
	for _, series := range record.SeriesNames {
		ids, ok := c.seriesIndex[series]
		if !ok {
			ids = make(map[common.SSTableID]struct{})
			c.seriesIndex[series] = ids
		}
		ids[record.ID] = struct{}{}
	}
}

func (c *Catalog) removeFromSeriesIndexLocked(record *SSTableRecord) {
	for _, series := range record.SeriesNames {
		if ids, ok := c.seriesIndex[series]; ok {
			delete(ids, record.ID)
			if len(ids) == 0 {
				delete(c.seriesIndex, series)
			}
		}
	}
}

// Remove drops an SSTable from the catalog, e.g. after it has been deleted
// from storage. Removing an unknown ID is a no-op.
func (c *Catalog) Remove(id common.SSTableID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.tables[id]
	if !ok {
		return
	}
	c.removeFromSeriesIndexLocked(record)
	delete(c.tables, id)
}

// Get returns the record for id, or false if it is not registered.
func (c *Catalog) Get(id common.SSTableID) (*SSTableRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	record, ok := c.tables[id]
	if !ok {
		return nil, false
	}
	return record.clone(), true
}

// FindCandidates returns every registered SSTable that both holds series
// and overlaps [start, end], sorted by MinTimestamp ascending for a
// deterministic scan order.
func (c *Catalog) FindCandidates(series common.SeriesName, start, end common.Timestamp) []*SSTableRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := c.seriesIndex[series]
	result := make([]*SSTableRecord, 0, len(ids))
	for id := range ids {
		record := c.tables[id]
		if record != nil && record.overlaps(start, end) {
			result = append(result, record.clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MinTimestamp < result[j].MinTimestamp })
	return result
}

// ListAll returns every registered SSTable record, sorted by MinTimestamp.
func (c *Catalog) ListAll() []*SSTableRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*SSTableRecord, 0, len(c.tables))
	for _, record := range c.tables {
		result = append(result, record.clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MinTimestamp < result[j].MinTimestamp })
	return result
}

// SeriesNames returns every series name the catalog has an index entry for,
// sorted, used by the admin CLI and the query HTTP status endpoint.
func (c *Catalog) SeriesNames() []common.SeriesName {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]common.SeriesName, 0, len(c.seriesIndex))
	for name := range c.seriesIndex {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// manifest is the on-disk JSON representation of the catalog's state,
// checkpointed so a restart can rebuild the in-memory index without
// re-scanning every SSTable file on disk.
type manifest struct {
	Tables []*SSTableRecord `json:"tables"`
}

// SaveManifest writes the full set of registered records to path as JSON.
func (c *Catalog) SaveManifest(path string) error {
	c.mu.RLock()
	m := manifest{Tables: make([]*SSTableRecord, 0, len(c.tables))}
	for _, record := range c.tables {
		m.Tables = append(m.Tables, record.clone())
	}
	c.mu.RUnlock()

	sort.Slice(m.Tables, func(i, j int) bool { return m.Tables[i].MinTimestamp < m.Tables[j].MinTimestamp })

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return common.NewErrorWithCause(common.ErrFlushFailed, "marshal catalog manifest", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return common.NewErrorWithCause(common.ErrFlushFailed, "create manifest directory", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return common.NewErrorWithCause(common.ErrFlushFailed, "write catalog manifest", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return common.NewErrorWithCause(common.ErrFlushFailed, "rename catalog manifest", err)
	}
	return nil
}

// LoadManifest rebuilds the catalog's state from a manifest previously
// written by SaveManifest. A missing file is treated as an empty catalog,
// the expected case on first startup.
func LoadManifest(path string) (*Catalog, error) {
	c := New()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, common.NewErrorWithCause(common.ErrFlushFailed, "read catalog manifest", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, common.NewErrorWithCause(common.ErrFlushFailed, "parse catalog manifest", err)
	}

	for _, record := range m.Tables {
		if err := c.Register(record); err != nil {
			return nil, err
		}
	}
	return c, nil
}
