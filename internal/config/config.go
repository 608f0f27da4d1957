package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Load populates a Config from environment variables, applying the
// defaults documented for each surface. It never reads a config file;
// the teacher's own config layer is env-var-only and this keeps that
// idiom.
func Load() (*Config, error) {
	cfg := &Config{
		WAL: WALConfig{
			Dir:                  getEnvString("WAL_DIR", "./data/wal"),
			MaxSegmentSize:       getEnvInt64("WAL_MAX_SEGMENT_SIZE", 64*1024*1024), // 64 MiB
			MaxSegmentAgeSeconds: getEnvInt64("WAL_MAX_SEGMENT_AGE_SECONDS", 86400),
			SyncPolicy:           getEnvString("WAL_SYNC_POLICY", "always"),
		},
		MemTable: MemTableConfig{
			Capacity: getEnvInt("MEMTABLE_CAPACITY", 10000),
		},
		Executor: ExecutorConfig{
			MaxConcurrentTasks: getEnvInt("EXECUTOR_MAX_CONCURRENT_TASKS", 4),
			MemoryLimitBytes:   getEnvInt64("EXECUTOR_MEMORY_LIMIT_BYTES", 1<<30), // 1 GiB
			TimeoutSeconds:     getEnvInt64("EXECUTOR_TIMEOUT_SECONDS", 30),
		},
		Catalog: CatalogConfig{
			SSTableDir:   getEnvString("CATALOG_SSTABLE_DIR", "./data/sstables"),
			ManifestPath: getEnvString("CATALOG_MANIFEST_PATH", "./data/catalog/manifest.json"),
		},
		Storage: StorageConfig{
			Type:    getEnvString("STORAGE_TYPE", "local"),
			BaseDir: getEnvString("STORAGE_BASE_DIR", "./data"),
			Bucket:  getEnvString("STORAGE_BUCKET", ""),
			Region:  getEnvString("STORAGE_REGION", "us-east-1"),
			Prefix:  getEnvString("STORAGE_PREFIX", ""),
		},
		Server: ServerConfig{
			HTTPAddr:    getEnvString("SERVER_HTTP_ADDR", ":8080"),
			GRPCAddr:    getEnvString("SERVER_GRPC_ADDR", ":9090"),
			AuthEnabled: getEnvBool("SERVER_AUTH_ENABLED", false),
			JWTSecret:   getEnvString("SERVER_JWT_SECRET", "dev-secret"),
			JWTIssuer:   getEnvString("SERVER_JWT_ISSUER", "storage-engine"),
		},
	}

	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return split(value, ",")
	}
	return defaultValue
}

func split(s string, sep string) []string {
	var result []string
	for _, v := range strings.Split(s, sep) {
		if len(v) > 0 {
			result = append(result, v)
		}
	}
	return result
}

// String returns a pretty-printed JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks that the loaded configuration is internally
// consistent before any server or CLI surface starts against it.
func (c *Config) Validate() error {
	if c.WAL.MaxSegmentSize <= 0 {
		return fmt.Errorf("invalid wal max_segment_size: %d", c.WAL.MaxSegmentSize)
	}
	if c.WAL.SyncPolicy != "always" && c.WAL.SyncPolicy != "batch" {
		return fmt.Errorf("invalid wal sync_policy: %s", c.WAL.SyncPolicy)
	}
	if c.MemTable.Capacity <= 0 {
		return fmt.Errorf("invalid memtable capacity: %d", c.MemTable.Capacity)
	}
	if c.Executor.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("invalid executor max_concurrent_tasks: %d", c.Executor.MaxConcurrentTasks)
	}
	if c.Executor.MemoryLimitBytes <= 0 {
		return fmt.Errorf("invalid executor memory_limit_bytes: %d", c.Executor.MemoryLimitBytes)
	}
	if c.Executor.TimeoutSeconds <= 0 {
		return fmt.Errorf("invalid executor timeout_seconds: %d", c.Executor.TimeoutSeconds)
	}
	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.Bucket == "" {
		return fmt.Errorf("storage type s3 requires a bucket")
	}
	return nil
}
