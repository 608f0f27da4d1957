package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(64*1024*1024), cfg.WAL.MaxSegmentSize)
	assert.Equal(t, "always", cfg.WAL.SyncPolicy)
	assert.Equal(t, 10000, cfg.MemTable.Capacity)
	assert.Equal(t, 4, cfg.Executor.MaxConcurrentTasks)
	assert.Equal(t, "local", cfg.Storage.Type)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WAL_MAX_SEGMENT_SIZE", "1024")
	t.Setenv("STORAGE_TYPE", "s3")
	t.Setenv("STORAGE_BUCKET", "my-bucket")
	t.Setenv("SERVER_AUTH_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(1024), cfg.WAL.MaxSegmentSize)
	assert.Equal(t, "s3", cfg.Storage.Type)
	assert.Equal(t, "my-bucket", cfg.Storage.Bucket)
	assert.True(t, cfg.Server.AuthEnabled)
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.WAL.SyncPolicy = "sometimes"
	assert.Error(t, cfg.Validate())

	cfg, _ = Load()
	cfg.Storage.Type = "azure"
	assert.Error(t, cfg.Validate())

	cfg, _ = Load()
	cfg.Storage.Type = "s3"
	cfg.Storage.Bucket = ""
	assert.Error(t, cfg.Validate())
}
