package lumen

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 2048, cfg.Query.ChunkWindow)
	assert.True(t, cfg.Query.EnableOptimizer)
	assert.True(t, cfg.Optimizer.EnablePredicatePushdown)
	assert.Equal(t, ",", cfg.Copy.Delimiter)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverlaysOnDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lumen.toml")
	contents := `
[storage]
backend = "duckdb"

[storage.duckdb]
enabled = true
db_path = "/tmp/lumen.db"

[query]
chunk_window = 4096
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "duckdb", cfg.Storage.Backend)
	assert.True(t, cfg.Storage.DuckDB.Enabled)
	assert.Equal(t, "/tmp/lumen.db", cfg.Storage.DuckDB.DBPath)
	assert.Equal(t, 4096, cfg.Query.ChunkWindow)
	// Fields the file didn't mention keep their DefaultConfig value.
	assert.Equal(t, 30*time.Second, cfg.Query.DefaultTimeout)
	assert.True(t, cfg.Optimizer.EnableJoinReorder)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLoadConfigMalformedToml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid toml"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}
