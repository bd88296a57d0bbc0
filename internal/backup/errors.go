package backup

import (
	"fmt"
	"sort"
	"strings"
)

// BackupError represents errors that occur during backup operations
type BackupError struct {
	Type    BackupErrorType        `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *BackupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *BackupError) Unwrap() error {
	return e.Cause
}

// BackupErrorType represents different types of backup errors
type BackupErrorType string

const (
	BackupErrorTypeConnection       BackupErrorType = "CONNECTION_ERROR"
	BackupErrorTypeNamespace        BackupErrorType = "NAMESPACE_NOT_FOUND"
	BackupErrorTypeTableExport      BackupErrorType = "TABLE_EXPORT_ERROR"
	BackupErrorTypeFilterValidation BackupErrorType = "FILTER_VALIDATION_ERROR"
	BackupErrorTypeMalformedDump    BackupErrorType = "MALFORMED_DUMP_ERROR"
	BackupErrorTypeTimeout          BackupErrorType = "TIMEOUT_ERROR"
	BackupErrorTypeSinkExport       BackupErrorType = "SINK_EXPORT_ERROR"
	BackupErrorTypeConfiguration    BackupErrorType = "CONFIGURATION_ERROR"
	BackupErrorTypeValidation       BackupErrorType = "VALIDATION_ERROR"
)

// NewBackupError creates a new BackupError
func NewBackupError(errorType BackupErrorType, message string, cause error) *BackupError {
	return &BackupError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *BackupError) WithContext(key string, value interface{}) *BackupError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Common error constructors

func NewConnectionError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeConnection, message, cause)
}

func NewNamespaceNotFoundError(namespace string) *BackupError {
	return NewBackupError(BackupErrorTypeNamespace,
		fmt.Sprintf("namespace %q does not exist", namespace), nil).
		WithContext("namespace", namespace)
}

func NewTableExportError(table string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeTableExport,
		fmt.Sprintf("failed to export table %q", table), cause).
		WithContext("table", table)
}

func NewMalformedDumpError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeMalformedDump, message, cause)
}

func NewTimeoutError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeTimeout, message, cause)
}

func NewSinkExportError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeSinkExport, message, cause)
}

func NewConfigurationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeConfiguration, message, cause)
}

func NewValidationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeValidation, message, cause)
}

// FilterValidationError aggregates every offending filter in one error so a
// pre-flight check reports all problems at once.
type FilterValidationError struct {
	Failures map[string]string // table -> message
}

// Error implements the error interface
func (e *FilterValidationError) Error() string {
	if len(e.Failures) == 0 {
		return "filter validation failed"
	}

	tables := make([]string, 0, len(e.Failures))
	for t := range e.Failures {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	parts := make([]string, 0, len(tables))
	for _, t := range tables {
		parts = append(parts, fmt.Sprintf("%s: %s", t, e.Failures[t]))
	}
	return fmt.Sprintf("filter validation failed for %d table(s): %s",
		len(tables), strings.Join(parts, "; "))
}

// NewFilterValidationError creates a FilterValidationError from per-table failures
func NewFilterValidationError(failures map[string]string) *FilterValidationError {
	return &FilterValidationError{Failures: failures}
}
