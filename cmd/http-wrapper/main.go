package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"storage-engine/internal/auth"
	"storage-engine/internal/catalog"
	"storage-engine/internal/common"
	"storage-engine/internal/config"
	"storage-engine/internal/flush"
	"storage-engine/internal/ingest"
	"storage-engine/internal/storage/block"
	"storage-engine/internal/storage/memtable"
	"storage-engine/internal/tsdb"
	"storage-engine/internal/wal"
)

// HTTPWrapper exposes the ingestion write path over REST, following the
// teacher's manual-validation-plus-gin.H{} response convention.
type HTTPWrapper struct {
	cfg     *config.Config
	mu      sync.Mutex
	wal     *wal.Manager
	mt      *memtable.MemTable
	flusher *flush.Manager
	cat     *catalog.Catalog
	auth    *auth.AuthMiddleware
}

// NewHTTPWrapper wires a WAL, MemTable, catalog, and FlushManager behind
// the HTTP surface.
func NewHTTPWrapper() (*HTTPWrapper, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	backend, err := block.NewFactory().Create(block.Config{
		Type:    cfg.Storage.Type,
		BaseDir: cfg.Storage.BaseDir,
		Options: map[string]string{"bucket": cfg.Storage.Bucket, "region": cfg.Storage.Region, "prefix": cfg.Storage.Prefix},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage backend: %w", err)
	}

	walManager, err := wal.NewManager(wal.Config{
		DataDir:        cfg.WAL.Dir,
		MaxSegmentSize: cfg.WAL.MaxSegmentSize,
		MaxSegmentAge:  time.Duration(cfg.WAL.MaxSegmentAgeSeconds) * time.Second,
		SyncPolicy:     walSyncPolicy(cfg.WAL.SyncPolicy),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL: %w", err)
	}

	cat, err := catalog.LoadManifest(cfg.Catalog.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog manifest: %w", err)
	}

	mt := memtable.New(memtable.Config{Capacity: cfg.MemTable.Capacity})
	flusher := flush.NewManager(flush.Config{OutputPrefix: cfg.Catalog.SSTableDir}, backend, cat, walManager)

	authenticator := auth.NewJWTAuthenticator([]byte(cfg.Server.JWTSecret), cfg.Server.JWTIssuer)

	return &HTTPWrapper{
		cfg:     cfg,
		wal:     walManager,
		mt:      mt,
		flusher: flusher,
		cat:     cat,
		auth:    auth.NewAuthMiddleware(authenticator),
	}, nil
}

func walSyncPolicy(policy string) wal.SyncPolicy {
	if policy == "batch" {
		return wal.SyncBatch
	}
	return wal.SyncAlways
}

// IngestPointRequest is one point in an HTTP ingest request.
type IngestPointRequest struct {
	Series    string            `json:"series"`
	Timestamp int64             `json:"timestamp"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags"`
}

// BatchIngestRequest is the HTTP request body for batch ingestion.
type BatchIngestRequest struct {
	Points []IngestPointRequest `json:"points"`
}

func (h *HTTPWrapper) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.GET("/health", h.healthCheck)

	api := r.Group("/api/v1")
	if h.cfg.Server.AuthEnabled {
		api.Use(h.auth.GinMiddleware())
	}
	api.POST("/ingest/point", h.ingestPoint)
	api.POST("/ingest/batch", h.ingestBatch)
	api.GET("/status", h.getStatus)

	return r
}

func (h *HTTPWrapper) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "ingestion-http-wrapper",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HTTPWrapper) ingestPoint(c *gin.Context) {
	var req IngestPointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format", "details": err.Error()})
		return
	}

	log.Printf("📥 Received point request: series=%q timestamp=%d", req.Series, req.Timestamp)

	if err := h.ingestOne(c.Request.Context(), req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ingestion failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "series": req.Series, "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func (h *HTTPWrapper) ingestBatch(c *gin.Context) {
	var req BatchIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format", "details": err.Error()})
		return
	}

	log.Printf("📦 Received batch request: points count=%d", len(req.Points))
	if len(req.Points) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format", "details": "points array cannot be empty"})
		return
	}

	accepted := 0
	for i, p := range req.Points {
		if err := h.ingestOne(c.Request.Context(), p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":           "batch ingestion failed",
				"details":         fmt.Sprintf("point %d: %v", i, err),
				"accepted_so_far": accepted,
			})
			return
		}
		accepted++
	}

	log.Printf("✅ Successfully ingested batch of %d points", accepted)
	c.JSON(http.StatusOK, gin.H{"status": "success", "points_count": accepted, "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func (h *HTTPWrapper) ingestOne(ctx context.Context, req IngestPointRequest) error {
	fullTags := map[string]string{tsdb.SeriesTagKey: req.Series}
	for k, v := range req.Tags {
		fullTags[k] = v
	}

	point := tsdb.DataPoint{
		Timestamp: common.Timestamp(req.Timestamp),
		Value:     req.Value,
		Tags:      fullTags,
	}

	if err := ingest.Validate(point); err != nil {
		return err
	}

	series, stripped, err := ingest.ExtractSeries(point)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.wal.Append(series, stripped); err != nil {
		return err
	}
	if _, err := h.mt.Insert(series, stripped); err != nil {
		return err
	}
	if h.mt.Size() >= h.cfg.MemTable.Capacity {
		if _, err := h.flusher.Flush(ctx, h.mt); err != nil {
			log.Printf("❌ background flush failed: %v", err)
		} else {
			log.Println("📦 background flush completed")
		}
	}
	return nil
}

func (h *HTTPWrapper) getStatus(c *gin.Context) {
	h.mu.Lock()
	size := h.mt.Size()
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"status":        "running",
		"service":       "ingestion-service",
		"memtable_size": size,
		"sstable_count": len(h.cat.ListAll()),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

func main() {
	log.Println("🚀 Starting HTTP ingestion wrapper...")

	wrapper, err := NewHTTPWrapper()
	if err != nil {
		log.Fatalf("❌ failed to create HTTP wrapper: %v", err)
	}

	router := wrapper.setupRoutes()

	addr := wrapper.cfg.Server.HTTPAddr
	log.Printf("🌐 HTTP REST API wrapper listening on %s", addr)
	log.Printf("📋 Endpoints: GET /health, POST /api/v1/ingest/point, POST /api/v1/ingest/batch, GET /api/v1/status")

	if err := router.Run(addr); err != nil {
		log.Fatalf("❌ failed to start HTTP server: %v", err)
	}
}
