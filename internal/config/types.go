package config

// Config is the single aggregate configuration struct for the storage
// core and every surface wired on top of it. It is populated by Load
// from environment variables, never from a config file, matching the
// teacher's stdlib-only configuration layer.
type Config struct {
	WAL      WALConfig      `yaml:"wal" json:"wal"`
	MemTable MemTableConfig `yaml:"memtable" json:"memtable"`
	Executor ExecutorConfig `yaml:"executor" json:"executor"`
	Catalog  CatalogConfig  `yaml:"catalog" json:"catalog"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Server   ServerConfig   `yaml:"server" json:"server"`
}

// WALConfig controls segment rotation and durability policy.
type WALConfig struct {
	Dir                  string `yaml:"dir" json:"dir"`
	MaxSegmentSize       int64  `yaml:"max_segment_size" json:"max_segment_size"`
	MaxSegmentAgeSeconds int64  `yaml:"max_segment_age_seconds" json:"max_segment_age_seconds"`
	SyncPolicy           string `yaml:"sync_policy" json:"sync_policy"` // "always" or "batch"
}

// MemTableConfig bounds the in-memory buffer ahead of a flush.
type MemTableConfig struct {
	Capacity int `yaml:"capacity" json:"capacity"`
}

// ExecutorConfig bounds the query executor's concurrency, memory, and
// wall-clock budget.
type ExecutorConfig struct {
	MaxConcurrentTasks int   `yaml:"max_concurrent_tasks" json:"max_concurrent_tasks"`
	MemoryLimitBytes   int64 `yaml:"memory_limit_bytes" json:"memory_limit_bytes"`
	TimeoutSeconds     int64 `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// CatalogConfig locates the SSTable directory and its manifest.
type CatalogConfig struct {
	SSTableDir   string `yaml:"sstable_dir" json:"sstable_dir"`
	ManifestPath string `yaml:"manifest_path" json:"manifest_path"`
}

// StorageConfig selects and configures the block storage backend that
// SSTables are written through.
type StorageConfig struct {
	Type    string `yaml:"type" json:"type"` // "local" or "s3"
	BaseDir string `yaml:"base_dir" json:"base_dir"`
	Bucket  string `yaml:"bucket" json:"bucket"`
	Region  string `yaml:"region" json:"region"`
	Prefix  string `yaml:"prefix" json:"prefix"`
}

// ServerConfig addresses the gRPC/HTTP surfaces and their auth.
type ServerConfig struct {
	HTTPAddr    string `yaml:"http_addr" json:"http_addr"`
	GRPCAddr    string `yaml:"grpc_addr" json:"grpc_addr"`
	AuthEnabled bool   `yaml:"auth_enabled" json:"auth_enabled"`
	JWTSecret   string `yaml:"jwt_secret" json:"jwt_secret"`
	JWTIssuer   string `yaml:"jwt_issuer" json:"jwt_issuer"`
}
