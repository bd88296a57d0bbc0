package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Connection settings layer as flag over environment over config file.
func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg-backup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"database:\n  host: filehost\n  port: 5433\n  user: fileuser\n"), 0o644))

	cfgFile = path
	t.Cleanup(func() { cfgFile = "" })

	t.Setenv("PGBACKUP_DB_USER", "envuser")

	port := rootCmd.PersistentFlags().Lookup("port")
	require.NoError(t, port.Value.Set("6543"))
	port.Changed = true
	t.Cleanup(func() {
		port.Value.Set(port.DefValue)
		port.Changed = false
	})

	cfg, err := loadConfig()
	require.NoError(t, err)

	// File value survives when neither flag nor environment overrides it.
	assert.Equal(t, "filehost", cfg.Database.Host)
	// Environment wins over the file.
	assert.Equal(t, "envuser", cfg.Database.User)
	// An explicitly set flag wins over both.
	assert.Equal(t, 6543, cfg.Database.Port)
}

func TestParseTimeout(t *testing.T) {
	d, err := parseTimeout("30m")
	require.NoError(t, err)
	assert.Equal(t, "30m0s", d.String())

	d, err = parseTimeout("90")
	require.NoError(t, err)
	assert.Equal(t, "1m30s", d.String())

	_, err = parseTimeout("soon")
	assert.Error(t, err)
}
