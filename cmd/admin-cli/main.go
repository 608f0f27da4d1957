package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"storage-engine/internal/catalog"
	"storage-engine/internal/config"
	"storage-engine/internal/wal"
)

var rootCmd = &cobra.Command{
	Use:   "storage-admin",
	Short: "Storage Engine Administration CLI",
	Long:  `A command-line interface for inspecting the WAL and the SSTable catalog.`,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show WAL and catalog status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		walManager, err := openWAL(cfg)
		if err != nil {
			return err
		}
		defer walManager.Close()

		cat, err := catalog.LoadManifest(cfg.Catalog.ManifestPath)
		if err != nil {
			return fmt.Errorf("failed to load catalog manifest: %w", err)
		}

		stats := walManager.GetStats()
		healthy := walManager.Verify()

		fmt.Println("📊 Storage Engine Status:")
		fmt.Printf("  WAL Health: %s\n", healthIcon(healthy))
		fmt.Printf("  WAL Segments: %d\n", stats.TotalSegments)
		fmt.Printf("  WAL Entries: %d\n", stats.TotalEntries)
		fmt.Printf("  WAL Size: %d bytes\n", stats.TotalSize)
		fmt.Printf("  SSTables: %d files\n", len(cat.ListAll()))
		fmt.Printf("  Series: %d\n", len(cat.SeriesNames()))
		return nil
	},
}

var walCmd = &cobra.Command{
	Use:   "wal",
	Short: "WAL operations",
}

var walVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify WAL segment checksums",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		walManager, err := openWAL(cfg)
		if err != nil {
			return err
		}
		defer walManager.Close()

		if walManager.Verify() {
			fmt.Println("✅ WAL verification passed")
			return nil
		}
		fmt.Println("❌ WAL verification failed: corrupted segment detected")
		os.Exit(1)
		return nil
	},
}

var walInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect WAL contents",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		walManager, err := openWAL(cfg)
		if err != nil {
			return err
		}
		defer walManager.Close()

		stats := walManager.GetStats()
		fmt.Println("🔍 WAL Inspection:")
		fmt.Printf("  Data directory: %s\n", cfg.WAL.Dir)
		fmt.Printf("  Segments: %d\n", stats.TotalSegments)
		fmt.Printf("  Entries: %d\n", stats.TotalEntries)
		fmt.Printf("  Total size: %d bytes\n", stats.TotalSize)
		return nil
	},
}

var sstableCmd = &cobra.Command{
	Use:   "sstable",
	Short: "SSTable operations",
}

var sstableListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered SSTable files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		cat, err := catalog.LoadManifest(cfg.Catalog.ManifestPath)
		if err != nil {
			return fmt.Errorf("failed to load catalog manifest: %w", err)
		}

		records := cat.ListAll()
		fmt.Printf("📋 SSTable Files (%d):\n", len(records))
		for _, r := range records {
			fmt.Printf("  %s  path=%s  series=%d  blocks=%d  points=%d  range=[%d,%d]  created=%s\n",
				r.ID, r.Path, len(r.SeriesNames), r.BlockCount, r.PointCount,
				r.MinTimestamp, r.MaxTimestamp, r.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Catalog operations",
}

var catalogInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect the catalog manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		cat, err := catalog.LoadManifest(cfg.Catalog.ManifestPath)
		if err != nil {
			return fmt.Errorf("failed to load catalog manifest: %w", err)
		}

		fmt.Println("📋 Catalog Inspection:")
		fmt.Printf("  Manifest path: %s\n", cfg.Catalog.ManifestPath)
		fmt.Printf("  SSTables: %d\n", len(cat.ListAll()))
		fmt.Println("  Series:")
		for _, s := range cat.SeriesNames() {
			fmt.Printf("    - %s\n", s)
		}
		return nil
	},
}

func healthIcon(ok bool) string {
	if ok {
		return "✅ Healthy"
	}
	return "❌ Corrupted"
}

func openWAL(cfg *config.Config) (*wal.Manager, error) {
	policy := wal.SyncAlways
	if cfg.WAL.SyncPolicy == "batch" {
		policy = wal.SyncBatch
	}
	m, err := wal.NewManager(wal.Config{
		DataDir:        cfg.WAL.Dir,
		MaxSegmentSize: cfg.WAL.MaxSegmentSize,
		MaxSegmentAge:  time.Duration(cfg.WAL.MaxSegmentAgeSeconds) * time.Second,
		SyncPolicy:     policy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL: %w", err)
	}
	return m, nil
}

func init() {
	rootCmd.AddCommand(statusCmd)

	walCmd.AddCommand(walVerifyCmd)
	walCmd.AddCommand(walInspectCmd)
	rootCmd.AddCommand(walCmd)

	sstableCmd.AddCommand(sstableListCmd)
	rootCmd.AddCommand(sstableCmd)

	catalogCmd.AddCommand(catalogInspectCmd)
	rootCmd.AddCommand(catalogCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
