package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/reflection"

	"storage-engine/internal/catalog"
	"storage-engine/internal/config"
	"storage-engine/internal/query"
	"storage-engine/internal/rpcjson"
	"storage-engine/internal/storage/block"
	"storage-engine/internal/storage/memtable"
)

func secondsToDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}

// queryServer implements rpcjson.QueryServer over a live Executor. The
// query server holds no writer-side state of its own; it shares the
// catalog manifest and SSTable directory the ingestion server maintains,
// reading the manifest once at start; it is not reloaded while running.
type queryServer struct {
	exec *query.Executor
}

func (s *queryServer) Query(ctx context.Context, req *rpcjson.QueryRequest) (*rpcjson.QueryResponse, error) {
	log.Printf("🔍 Handling Query request: %s", req.Query)

	q, err := query.Parse(req.Query)
	if err != nil {
		return &rpcjson.QueryResponse{Error: err.Error()}, nil
	}

	points, err := s.exec.Execute(ctx, q)
	if err != nil {
		log.Printf("❌ query failed: %v", err)
		return &rpcjson.QueryResponse{Error: err.Error()}, nil
	}

	resp := &rpcjson.QueryResponse{Points: make([]rpcjson.Point, len(points))}
	for i, p := range points {
		resp.Points[i] = rpcjson.Point{Timestamp: int64(p.Timestamp), Value: p.Value, Tags: p.Tags}
	}
	log.Printf("✅ Query returned %d points", len(points))
	return resp, nil
}

func main() {
	log.Println("🔍 Starting Query Server...")

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

	cat, err := catalog.LoadManifest(cfg.Catalog.ManifestPath)
	if err != nil {
		log.Fatalf("❌ failed to load catalog manifest: %v", err)
	}

	// The query server reads an empty, otherwise-unused MemTable: in this
	// process topology writes land on the ingestion server's MemTable, not
	// this one, so every read here resolves against flushed SSTables only.
	mt := memtable.New(memtable.Config{Capacity: cfg.MemTable.Capacity})

	exec := query.NewExecutor(mt, cat, backend, query.Config{
		MaxConcurrentTasks: cfg.Executor.MaxConcurrentTasks,
		MemoryLimitBytes:   cfg.Executor.MemoryLimitBytes,
		Timeout:            secondsToDuration(cfg.Executor.TimeoutSeconds),
	})

	encoding.RegisterCodec(rpcjson.Codec{})
	grpcServer := grpc.NewServer(grpc.ForceServerCodec(rpcjson.Codec{}))

	rpcjson.RegisterQueryServer(grpcServer, &queryServer{exec: exec})
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

		log.Println("🛑 Shutting down Query Server...")
		grpcServer.GracefulStop()
		cancel()
	}()

	if err := grpcServer.Serve(listener); err != nil {
		log.Fatalf("❌ failed to serve: %v", err)
	}

	<-ctx.Done()
	log.Println("👋 Query Server stopped")
}
