package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg-backup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  host: filehost
backup:
  clean_output: false
`), 0o644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "filehost", cfg.Database.Host)
	assert.False(t, cfg.Backup.CleanOutput)
	assert.Equal(t, 8192, cfg.Backup.BufferSize)
}

func TestLoaderMissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Database.Host)
}

func TestLoaderEnvironmentWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg-backup.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  host: filehost\n"), 0o644))
	t.Setenv("PGBACKUP_DB_HOST", "envhost")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "envhost", cfg.Database.Host)
}

func TestLoaderRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg-backup.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backup:\n  buffer_size: -1\n"), 0o644))

	_, err := NewLoader(path).Load()
	require.Error(t, err)
}

func TestLoaderSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pg-backup.yaml")
	loader := NewLoader(path)

	cfg := Default()
	cfg.Database.Host = "saved-host"
	cfg.Backup.ExcludedTables = []string{"audit_log"}
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "saved-host", loaded.Database.Host)
	assert.Equal(t, []string{"audit_log"}, loaded.Backup.ExcludedTables)
}

func TestLoaderSaveRejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.Backup.BufferSize = 0

	err := NewLoader(filepath.Join(t.TempDir(), "out.yaml")).Save(cfg)
	require.Error(t, err)
}
