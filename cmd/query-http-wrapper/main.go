package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storage-engine/internal/auth"
	"storage-engine/internal/catalog"
	"storage-engine/internal/config"
	"storage-engine/internal/query"
	"storage-engine/internal/storage/block"
	"storage-engine/internal/storage/memtable"
)

// HTTPWrapper exposes the read path over REST, mirroring the teacher's
// manual-validation-plus-gin.H{} response convention.
type HTTPWrapper struct {
	cfg  *config.Config
	exec *query.Executor
	cat  *catalog.Catalog
	auth *auth.AuthMiddleware
}

// NewHTTPWrapper wires an Executor reading from the shared catalog and
// SSTable directory.
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

	cat, err := catalog.LoadManifest(cfg.Catalog.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog manifest: %w", err)
	}

	// Like cmd/query-server, this process holds no writer-side state: every
	// read resolves against flushed SSTables, not the ingestion server's
	// live MemTable.
	mt := memtable.New(memtable.Config{Capacity: cfg.MemTable.Capacity})
	exec := query.NewExecutor(mt, cat, backend, query.Config{
		MaxConcurrentTasks: cfg.Executor.MaxConcurrentTasks,
		MemoryLimitBytes:   cfg.Executor.MemoryLimitBytes,
		Timeout:            time.Duration(cfg.Executor.TimeoutSeconds) * time.Second,
	})

	authenticator := auth.NewJWTAuthenticator([]byte(cfg.Server.JWTSecret), cfg.Server.JWTIssuer)

	return &HTTPWrapper{
		cfg:  cfg,
		exec: exec,
		cat:  cat,
		auth: auth.NewAuthMiddleware(authenticator),
	}, nil
}

// QueryResponsePoint is one timestamp/value pair in a QueryHTTPResponse.
type QueryResponsePoint struct {
	Timestamp int64             `json:"timestamp"`
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
}

func (h *HTTPWrapper) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
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
	api.GET("/query", h.executeQuery)
	api.GET("/status", h.getStatus)

	return r
}

func (h *HTTPWrapper) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "query-http-wrapper",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// executeQuery handles `GET /api/v1/query?q=<series>{<start>,<end>}`.
func (h *HTTPWrapper) executeQuery(c *gin.Context) {
	raw := c.Query("q")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format", "details": "q parameter is required"})
		return
	}

	log.Printf("🔍 Received query request: q=%q", raw)

	q, err := query.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Duration(h.cfg.Executor.TimeoutSeconds)*time.Second)
	defer cancel()

	points, err := h.exec.Execute(ctx, q)
	if err != nil {
		log.Printf("❌ query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query execution failed", "details": err.Error()})
		return
	}

	resp := make([]QueryResponsePoint, len(points))
	for i, p := range points {
		resp[i] = QueryResponsePoint{Timestamp: int64(p.Timestamp), Value: p.Value, Tags: p.Tags}
	}

	log.Printf("✅ Query returned %d points", len(points))
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"points":    resp,
		"count":     len(resp),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HTTPWrapper) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "running",
		"service":       "query-service",
		"series_count":  len(h.cat.SeriesNames()),
		"sstable_count": len(h.cat.ListAll()),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

func main() {
	log.Println("🔍 Starting HTTP query wrapper...")

	wrapper, err := NewHTTPWrapper()
	if err != nil {
		log.Fatalf("❌ failed to create HTTP wrapper: %v", err)
	}

	router := wrapper.setupRoutes()

	addr := wrapper.cfg.Server.HTTPAddr
	log.Printf("🌐 Query HTTP REST API wrapper listening on %s", addr)
	log.Printf("📋 Endpoints: GET /health, GET /api/v1/query?q=..., GET /api/v1/status")

	if err := router.Run(addr); err != nil {
		log.Fatalf("❌ failed to start HTTP server: %v", err)
	}
}
