package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/reflection"

	"storage-engine/internal/catalog"
	"storage-engine/internal/config"
	"storage-engine/internal/flush"
	"storage-engine/internal/ingest"
	"storage-engine/internal/rpcjson"
	"storage-engine/internal/storage/block"
	"storage-engine/internal/storage/memtable"
	"storage-engine/internal/wal"
)

// walSyncPolicy maps the config's string policy to the wal package's enum.
func walSyncPolicy(policy string) wal.SyncPolicy {
	if policy == "batch" {
		return wal.SyncBatch
	}
	return wal.SyncAlways
}

// ingestionServer implements rpcjson.IngestionServer, wiring the write
// path straight into the WAL and MemTable; a capacity trigger flushes
// the MemTable to an SSTable on insert (see triggerFlush). Age-based
// flushing for low-volume series is handled out-of-process by
// cmd/data-processor.
type ingestionServer struct {
	mu         sync.Mutex
	wal        *wal.Manager
	mt         *memtable.MemTable
	flusher    *flush.Manager
	flushOnCap int
}

func (s *ingestionServer) IngestBatch(ctx context.Context, req *rpcjson.IngestPointRequest) (*rpcjson.IngestPointResponse, error) {
	log.Printf("📥 Handling IngestBatch request (format=%s, bytes=%d)", req.Format, len(req.Data))

	points, err := ingest.Parse(req.Format, req.Data)
	if err != nil {
		log.Printf("❌ parse failed: %v", err)
		return &rpcjson.IngestPointResponse{Error: err.Error()}, nil
	}

	accepted := 0
	for _, p := range points {
		if err := ingest.Validate(p); err != nil {
			log.Printf("❌ validation failed: %v", err)
			return &rpcjson.IngestPointResponse{Accepted: accepted, Error: err.Error()}, nil
		}

		series, stripped, err := ingest.ExtractSeries(p)
		if err != nil {
			return &rpcjson.IngestPointResponse{Accepted: accepted, Error: err.Error()}, nil
		}

		s.mu.Lock()
		walErr := s.wal.Append(series, stripped)
		if walErr == nil {
			_, walErr = s.mt.Insert(series, stripped)
		}
		needsFlush := s.mt.Size() >= s.flushOnCap
		s.mu.Unlock()

		if walErr != nil {
			log.Printf("❌ append failed: %v", walErr)
			return &rpcjson.IngestPointResponse{Accepted: accepted, Error: walErr.Error()}, nil
		}
		accepted++

		if needsFlush {
			s.triggerFlush(ctx)
		}
	}

	log.Printf("✅ IngestBatch accepted %d points", accepted)
	return &rpcjson.IngestPointResponse{Accepted: accepted}, nil
}

func (s *ingestionServer) triggerFlush(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.flusher.Flush(ctx, s.mt); err != nil {
		log.Printf("❌ background flush failed: %v", err)
	} else {
		log.Println("📦 background flush completed")
	}
}

func main() {
	log.Println("🚀 Starting Ingestion Server...")

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

	walManager, err := wal.NewManager(wal.Config{
		DataDir:        cfg.WAL.Dir,
		MaxSegmentSize: cfg.WAL.MaxSegmentSize,
		MaxSegmentAge:  time.Duration(cfg.WAL.MaxSegmentAgeSeconds) * time.Second,
		SyncPolicy:     walSyncPolicy(cfg.WAL.SyncPolicy),
	})
	if err != nil {
		log.Fatalf("❌ failed to open WAL: %v", err)
	}

	mt := memtable.New(memtable.Config{Capacity: cfg.MemTable.Capacity})
	cat, err := catalog.LoadManifest(cfg.Catalog.ManifestPath)
	if err != nil {
		log.Fatalf("❌ failed to load catalog manifest: %v", err)
	}

	flusher := flush.NewManager(flush.Config{OutputPrefix: cfg.Catalog.SSTableDir}, backend, cat, walManager)

	encoding.RegisterCodec(rpcjson.Codec{})
	grpcServer := grpc.NewServer(grpc.ForceServerCodec(rpcjson.Codec{}))

	srv := &ingestionServer{wal: walManager, mt: mt, flusher: flusher, flushOnCap: cfg.MemTable.Capacity}
	rpcjson.RegisterIngestionServer(grpcServer, srv)
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Fatalf("❌ failed to listen on %s: %v", cfg.Server.GRPCAddr, err)
	}
	log.Printf("✅ gRPC server listening on %s", cfg.Server.GRPCAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Println("🛑 Shutting down Ingestion Server...")
		srv.triggerFlush(ctx)
		if err := cat.SaveManifest(cfg.Catalog.ManifestPath); err != nil {
			log.Printf("❌ failed to save catalog manifest: %v", err)
		}
		grpcServer.GracefulStop()
		cancel()
	}()

	if err := grpcServer.Serve(listener); err != nil {
		log.Fatalf("❌ failed to serve: %v", err)
	}

	<-ctx.Done()
	log.Println("👋 Ingestion Server stopped")
}
