package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level LogLevel, format string) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := NewLogger(Config{Level: level, Output: &buf, Format: format})
	require.NoError(t, err)
	return logger, &buf
}

func TestLoggerLevels(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "text")

	logger.Debug("hidden at normal level")
	logger.Info("visible info")

	out := buf.String()
	assert.NotContains(t, out, "hidden at normal level")
	assert.Contains(t, out, "visible info")
	assert.Equal(t, LogLevelNormal, logger.Level())
}

func TestLoggerQuietSuppressesInfo(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelQuiet, "text")

	logger.Info("operational chatter")
	logger.Error("actual problem")

	out := buf.String()
	assert.NotContains(t, out, "operational chatter")
	assert.Contains(t, out, "actual problem")
}

func TestLoggerVerboseShowsDebug(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelVerbose, "text")

	logger.Debugf("copy query: %s", "COPY t TO STDOUT")
	assert.Contains(t, buf.String(), "COPY t TO STDOUT")
}

func TestLoggerJSONFormat(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "json")

	logger.WithField("table", "users").Info("Table exported")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "users", entry["table"])
	assert.Equal(t, "Table exported", entry["msg"])
}

func TestLogTableExport(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "json")

	logger.LogTableExport("public.users", 42, 1024, 150*time.Millisecond, nil)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "table_export", entry["operation"])
	assert.Equal(t, "public.users", entry["table"])
	assert.Equal(t, float64(42), entry["rows"])

	buf.Reset()
	logger.LogTableExport("public.users", 0, 0, time.Millisecond, fmt.Errorf("copy failed"))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "copy failed", entry["error"])
	assert.Equal(t, "error", entry["level"])
}

func TestLogBackupRun(t *testing.T) {
	logger, buf := newBufferLogger(t, LogLevelNormal, "json")

	logger.LogBackupRun("/tmp/out.sql", 3, 99, time.Second, nil)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "backup", entry["operation"])
	assert.Equal(t, float64(3), entry["tables"])
	assert.Equal(t, "Backup completed", entry["msg"])
}

func TestNewDefaultLogger(t *testing.T) {
	logger := NewDefaultLogger()
	require.NotNil(t, logger)
	assert.Equal(t, LogLevelNormal, logger.Level())
}
