package backup

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupErrorFormatting(t *testing.T) {
	plain := NewConnectionError("failed to connect", nil)
	assert.Equal(t, "CONNECTION_ERROR: failed to connect", plain.Error())

	cause := fmt.Errorf("dial tcp: connection refused")
	wrapped := NewConnectionError("failed to connect", cause)
	assert.Equal(t,
		"CONNECTION_ERROR: failed to connect (caused by: dial tcp: connection refused)",
		wrapped.Error())
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}

func TestBackupErrorContext(t *testing.T) {
	err := NewTableExportError("orders", nil)
	assert.Equal(t, BackupErrorTypeTableExport, err.Type)
	assert.Equal(t, "orders", err.Context["table"])

	err.WithContext("rows", 42)
	assert.Equal(t, 42, err.Context["rows"])
}

func TestNamespaceNotFoundError(t *testing.T) {
	err := NewNamespaceNotFoundError("missing")
	assert.Equal(t, BackupErrorTypeNamespace, err.Type)
	assert.Contains(t, err.Error(), `namespace "missing" does not exist`)
	assert.Equal(t, "missing", err.Context["namespace"])
}

func TestBackupErrorAs(t *testing.T) {
	var target *BackupError
	err := fmt.Errorf("outer: %w", NewMalformedDumpError("bad dump", nil))
	require.True(t, errors.As(err, &target))
	assert.Equal(t, BackupErrorTypeMalformedDump, target.Type)
}

func TestFilterValidationErrorMessage(t *testing.T) {
	err := NewFilterValidationError(map[string]string{
		"users":  "syntax error",
		"orders": "column missing",
	})

	// Tables are reported in sorted order so the message is stable.
	assert.Equal(t,
		"filter validation failed for 2 table(s): orders: column missing; users: syntax error",
		err.Error())

	empty := NewFilterValidationError(nil)
	assert.Equal(t, "filter validation failed", empty.Error())
}
