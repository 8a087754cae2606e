package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magnusmanske/baglama2-go/internal/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"tooldb": {"url": "tool.example/db"}, "commons": {"url": "repo.example/db"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tool.example/db", cfg.ToolDB.URL)
	assert.Equal(t, 10, cfg.ToolDB.MaxConnections)
	assert.Equal(t, 1, cfg.MaxConcurrentJobs)
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, 1000, cfg.BatchSubcategory)
	assert.Equal(t, 3000, cfg.BatchViewResolution)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"tooldb": {"url": "tool.example/db", "max_connections": 25},
		"commons": {"url": "repo.example/db"},
		"max_concurrent_jobs": 4,
		"hold_on": 2,
		"sqlite_data_root_path": "/data/viewdata"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.ToolDB.MaxConnections)
	assert.Equal(t, 4, cfg.MaxConcurrentJobs)
	assert.Equal(t, 2, cfg.HoldOnSeconds)
	assert.Equal(t, "/data/viewdata", cfg.SqliteDataRootPath)
}

func TestLoadMissingToolDBURL(t *testing.T) {
	path := writeConfig(t, `{"commons": {"url": "repo.example/db"}}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestLoadDefaultsToSQLite3Storage(t *testing.T) {
	path := writeConfig(t, `{"tooldb": {"url": "tool.example/db"}, "commons": {"url": "repo.example/db"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, types.StorageSQLite3, cfg.Storage)
}

func TestLoadOverridesStorageToServerVariant(t *testing.T) {
	path := writeConfig(t, `{
		"tooldb": {"url": "tool.example/db"},
		"commons": {"url": "repo.example/db"},
		"storage": "mysql2"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, types.StorageMySQL2, cfg.Storage)
}
