package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storage-engine/internal/catalog"
	"storage-engine/internal/common"
	"storage-engine/internal/config"
	"storage-engine/internal/flush"
	"storage-engine/internal/storage/block"
	"storage-engine/internal/storage/memtable"
	"storage-engine/internal/tsdb"
	"storage-engine/internal/wal"
)

// flushInterval is how often the processor replays the WAL and flushes
// whatever it finds to an SSTable. It runs independently of the ingestion
// server's own size-triggered flush, as a time-based backstop: a low-volume
// series that never fills a MemTable to capacity would otherwise sit in the
// WAL indefinitely.
const flushInterval = 30 * time.Second

func main() {
	log.Println("⚙️ Starting Data Processor...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ invalid configuration: %v", err)
	}

	backend, err := block.NewFactory().Create(block.Config{
		Type:    cfg.Storage.Type,
		BaseDir: cfg.Storage.BaseDir,
		Options: map[string]string{"bucket": cfg.Storage.Bucket, "region": cfg.Storage.Region, "prefix": cfg.Storage.Prefix},
	})
	if err != nil {
		log.Fatalf("❌ failed to create storage backend: %v", err)
	}

	policy := wal.SyncAlways
	if cfg.WAL.SyncPolicy == "batch" {
		policy = wal.SyncBatch
	}
	walManager, err := wal.NewManager(wal.Config{
		DataDir:        cfg.WAL.Dir,
		MaxSegmentSize: cfg.WAL.MaxSegmentSize,
		MaxSegmentAge:  time.Duration(cfg.WAL.MaxSegmentAgeSeconds) * time.Second,
		SyncPolicy:     policy,
	})
	if err != nil {
		log.Fatalf("❌ failed to open WAL: %v", err)
	}
	defer walManager.Close()

	cat, err := catalog.LoadManifest(cfg.Catalog.ManifestPath)
	if err != nil {
		log.Fatalf("❌ failed to load catalog manifest: %v", err)
	}

	flusher := flush.NewManager(flush.Config{OutputPrefix: cfg.Catalog.SSTableDir}, backend, cat, walManager)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Println("🛑 Shutting down Data Processor...")
		cancel()
	}()

	log.Println("🔄 Starting WAL verification...")
	if !walManager.Verify() {
		log.Println("❌ WAL verification found corrupted entries")
	} else {
		log.Println("✅ WAL verification passed")
	}

	log.Printf("💾 Starting age-based memtable flush scheduler (interval=%s)...", flushInterval)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	log.Println("✅ Data Processor started successfully")

	for {
		select {
		case <-ctx.Done():
			log.Println("👋 Data Processor stopped")
			return
		case <-ticker.C:
			replayAndFlush(ctx, cfg, walManager, flusher, cat)
		}
	}
}

// replayAndFlush rebuilds a scratch MemTable from unckpointed WAL entries
// and flushes it if non-empty. Flush.Manager checkpoints the WAL on
// success, so a quiet tick with no new entries is a cheap no-op.
func replayAndFlush(ctx context.Context, cfg *config.Config, walManager *wal.Manager, flusher *flush.Manager, cat *catalog.Catalog) {
	mt := memtable.New(memtable.Config{Capacity: cfg.MemTable.Capacity})

	if err := walManager.Replay(func(series common.SeriesName, point tsdb.DataPoint) error {
		_, err := mt.Insert(series, point)
		return err
	}); err != nil {
		log.Printf("❌ WAL replay error: %v", err)
		return
	}

	if mt.Size() == 0 {
		log.Println("💓 Data Processor health check: nothing to flush")
		return
	}

	if _, err := flusher.Flush(ctx, mt); err != nil {
		log.Printf("❌ flush error: %v", err)
		return
	}

	if err := cat.SaveManifest(cfg.Catalog.ManifestPath); err != nil {
		log.Printf("❌ failed to save catalog manifest: %v", err)
		return
	}

	log.Println("📦 age-triggered flush completed")
}
