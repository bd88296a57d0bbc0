package backup

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vohoa/postgres-backup-plugin/internal/config"
	"github.com/vohoa/postgres-backup-plugin/internal/logging"
)

// defaultSourceSchema is read when a request names no source namespace
const defaultSourceSchema = "public"

// Manager orchestrates a backup run: it sequences table enumeration,
// structure emission and payload streaming inside one snapshot, then
// optionally sanitizes the assembled file and hands it to the export sink.
//
// Backup never returns an error: execution-time failures are reported
// through the BackupResult, which makes the entry point safe for unattended
// scheduled use. ValidateFilters is the one operation that fails directly,
// being an explicit pre-flight check.
type Manager struct {
	db        *sql.DB
	dbName    string
	cfg       *config.BackupConfig
	logger    *logging.Logger
	structure *StructureEmitter
	sink      ExportSink

	// newStreamer builds the copy streamer for a pinned connection;
	// replaceable in tests.
	newStreamer func(*sql.Conn) CopyStreamer
}

// NewManager creates a backup manager
func NewManager(db *sql.DB, dbName string, cfg *config.BackupConfig, logger *logging.Logger) (*Manager, error) {
	if db == nil {
		return nil, NewConfigurationError("database handle is required", nil)
	}
	if cfg == nil {
		return nil, NewConfigurationError("backup configuration is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, NewConfigurationError("invalid backup configuration", err)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	return &Manager{
		db:          db,
		dbName:      dbName,
		cfg:         cfg,
		logger:      logger,
		structure:   NewStructureEmitter(logger),
		newStreamer: NewPgCopyStreamer,
	}, nil
}

// SetSink attaches an export sink invoked after a successful run
func (m *Manager) SetSink(sink ExportSink) {
	m.sink = sink
}

// SetCopyStreamerFactory overrides how the bulk-copy channel is opened
func (m *Manager) SetCopyStreamerFactory(factory func(*sql.Conn) CopyStreamer) {
	m.newStreamer = factory
}

// copyOptions derives the COPY text format settings from configuration
func (m *Manager) copyOptions() CopyOptions {
	return CopyOptions{
		Delimiter:  m.cfg.CopyDelimiter,
		NullString: m.cfg.CopyNullString,
		QuoteChar:  m.cfg.CopyQuoteChar,
		EscapeChar: m.cfg.CopyEscapeChar,
	}
}

// Backup runs one export. All tables are read from the same point-in-time
// snapshot over a single pinned connection; tables are processed
// sequentially in lexicographic order. Any table-level failure aborts the
// remaining tables. The partially written file is left on disk; cleanup is
// the caller's responsibility.
func (m *Manager) Backup(ctx context.Context, req BackupRequest) *BackupResult {
	start := time.Now()
	correlationID := uuid.New().String()

	sourceSchema := req.SourceSchema
	if sourceSchema == "" {
		sourceSchema = defaultSourceSchema
	}

	result := &BackupResult{
		FilePath:        req.OutputPath,
		Metadata:        req.Metadata,
		TableStats:      make(map[string]TableStats),
		CorrelationID:   correlationID,
		SourceNamespace: sourceSchema,
	}

	fail := func(err error) *BackupResult {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			err = NewTimeoutError(
				fmt.Sprintf("backup exceeded the configured timeout of %s", m.cfg.Timeout), err)
		}
		result.Success = false
		result.ErrorMessage = err.Error()
		result.Duration = time.Since(start)
		m.logger.LogBackupRun(req.OutputPath, result.TablesCount, result.TotalRows, result.Duration, err)
		return result
	}

	if req.OutputPath == "" {
		return fail(NewConfigurationError("output path is required", nil))
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	log := m.logger.WithFields(map[string]interface{}{
		"correlation_id": correlationID,
		"source_schema":  sourceSchema,
		"output":         req.OutputPath,
	})
	log.Info("Starting backup")

	if dir := filepath.Dir(req.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fail(NewConfigurationError("failed to create output directory", err))
		}
	}
	outFile, err := os.Create(req.OutputPath)
	if err != nil {
		return fail(NewConfigurationError("failed to create output file", err))
	}
	// The handle is closed on every exit path; flushWriter below pairs with it.
	defer outFile.Close()
	out := bufio.NewWriterSize(outFile, m.cfg.BufferSize)
	defer out.Flush()

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fail(NewConnectionError("failed to acquire database connection", err))
	}
	defer conn.Close()

	var exists bool
	if err := conn.QueryRowContext(ctx, schemaExistsQuery, sourceSchema).Scan(&exists); err != nil {
		return fail(NewConnectionError("failed to check source namespace", err))
	}
	if !exists {
		return fail(NewNamespaceNotFoundError(sourceSchema))
	}

	// One snapshot-consistent transaction for the whole run. Transaction
	// control is driven with explicit statements because the bulk-copy
	// channel has to run on this same pinned session.
	if _, err := conn.ExecContext(ctx,
		"BEGIN TRANSACTION ISOLATION LEVEL REPEATABLE READ READ ONLY"); err != nil {
		return fail(NewConnectionError("failed to begin snapshot transaction", err))
	}
	defer conn.ExecContext(context.Background(), "ROLLBACK")

	tables, err := m.enumerateTables(ctx, conn, sourceSchema)
	if err != nil {
		return fail(NewConnectionError("failed to enumerate tables", err))
	}

	if err := checkFilterKeys(req.Filters, tables); err != nil {
		return fail(err)
	}

	targetSchema := req.TargetSchema
	if targetSchema == "" {
		targetSchema = m.cfg.TargetSchema
	}

	if m.cfg.IncludeHeader {
		m.writeHeader(out, req, sourceSchema, len(tables))
	}
	if targetSchema != "" {
		m.writeSchemaPrologue(out, targetSchema)
	}
	m.writePerformanceSettings(out)
	fmt.Fprintf(out, "SET client_encoding = '%s';\n\n", m.cfg.Encoding)

	streamer := m.newStreamer(conn)
	exporter := NewTableExporter(streamer, m.cfg.BufferSize, m.logger)
	opts := m.copyOptions()

	for _, table := range tables {
		stats, err := m.backupTable(ctx, conn, out, exporter, sourceSchema, table, req.Filters, opts)
		if err != nil {
			return fail(NewTableExportError(table, err))
		}
		result.TableStats[table] = stats
		result.TablesCount++
		result.TotalRows += stats.Rows
	}

	m.writeFooter(out)

	if err := out.Flush(); err != nil {
		return fail(NewConfigurationError("failed to flush output file", err))
	}
	if err := outFile.Sync(); err != nil {
		return fail(NewConfigurationError("failed to sync output file", err))
	}

	if m.cfg.CleanOutput {
		if err := m.cleanFile(req.OutputPath, sourceSchema); err != nil {
			return fail(err)
		}
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return fail(NewConfigurationError("failed to stat output file", err))
	}
	result.SizeBytes = info.Size()

	if m.sink != nil {
		location, err := m.sink.Export(ctx, req.OutputPath, req.Metadata)
		if err != nil {
			return fail(NewSinkExportError("failed to export backup file", err))
		}
		result.Location = location
	}

	result.Success = true
	result.Duration = time.Since(start)
	m.logger.LogBackupRun(req.OutputPath, result.TablesCount, result.TotalRows, result.Duration, nil)
	return result
}

// enumerateTables lists the source namespace's tables minus the exclusion
// set, in lexicographic order for reproducibility.
func (m *Manager) enumerateTables(ctx context.Context, q querier, schema string) ([]string, error) {
	rows, err := q.QueryContext(ctx, listTablesQuery, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if m.cfg.IsExcluded(name) {
			m.logger.Debugf("skipping excluded table: %s", name)
			continue
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// checkFilterKeys verifies that every filter names an enumerated table,
// before any data transfer begins.
func checkFilterKeys(filters map[string]FilterSpec, tables []string) error {
	if len(filters) == 0 {
		return nil
	}

	present := make(map[string]bool, len(tables))
	for _, t := range tables {
		present[t] = true
	}

	failures := make(map[string]string)
	for name := range filters {
		if !present[name] {
			failures[name] = "table not present in source namespace"
		}
	}
	if len(failures) > 0 {
		return NewFilterValidationError(failures)
	}
	return nil
}

// backupTable emits one table: pre-data DDL, payload, post-data DDL
func (m *Manager) backupTable(ctx context.Context, q querier, out *bufio.Writer,
	exporter *TableExporter, schema, table string, filters map[string]FilterSpec, opts CopyOptions) (TableStats, error) {

	desc, err := m.structure.Describe(ctx, q, schema, table)
	if err != nil {
		return TableStats{}, err
	}

	fmt.Fprintf(out, "--\n-- Table: %s\n--\n\n", desc.QualifiedName())
	if err := m.structure.WritePreData(out, desc); err != nil {
		return TableStats{}, err
	}
	fmt.Fprint(out, "\n")

	var filterQuery string
	if spec, ok := filters[table]; ok {
		filterQuery, err = spec.Build(desc.QualifiedName())
		if err != nil {
			return TableStats{}, err
		}
	}

	stats, err := exporter.Export(ctx, out, desc, filterQuery, opts)
	if err != nil {
		return stats, err
	}
	fmt.Fprint(out, "\n")

	if err := m.structure.WritePostData(ctx, q, out, desc); err != nil {
		return stats, err
	}
	fmt.Fprint(out, "\n")

	return stats, nil
}

func (m *Manager) writeHeader(out *bufio.Writer, req BackupRequest, sourceSchema string, tableCount int) {
	fmt.Fprintf(out, "-- PostgreSQL database backup\n")
	fmt.Fprintf(out, "-- Generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(out, "-- Database: %s\n", m.dbName)
	fmt.Fprintf(out, "-- Source namespace: %s\n", sourceSchema)
	fmt.Fprintf(out, "-- Tables: %d\n", tableCount)
	if req.TargetSchema != "" {
		fmt.Fprintf(out, "-- Target schema: %s\n", req.TargetSchema)
	}
	if len(req.Filters) > 0 {
		fmt.Fprintf(out, "-- Filtered tables: %d\n", len(req.Filters))
	}
	if len(req.Metadata) > 0 {
		fmt.Fprintf(out, "-- Metadata:\n")
		keys := make([]string, 0, len(req.Metadata))
		for k := range req.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "--   %s: %s\n", k, req.Metadata[k])
		}
	}
	fmt.Fprint(out, "\n")
}

func (m *Manager) writeSchemaPrologue(out *bufio.Writer, targetSchema string) {
	for _, stmt := range buildSchemaPrologue(targetSchema, m.cfg.DropExisting) {
		fmt.Fprintf(out, "%s\n", stmt)
	}
	fmt.Fprint(out, "\n")
}

func (m *Manager) writePerformanceSettings(out *bufio.Writer) {
	settings := buildPerformanceSettings(m.cfg.DisableTriggers, m.cfg.DisableFsync)
	for _, stmt := range settings {
		fmt.Fprintf(out, "%s\n", stmt)
	}
	if len(settings) > 0 {
		fmt.Fprint(out, "\n")
	}
}

func (m *Manager) writeFooter(out *bufio.Writer) {
	reset := buildPerformanceReset(m.cfg.DisableTriggers, m.cfg.DisableFsync)
	for _, stmt := range reset {
		fmt.Fprintf(out, "%s\n", stmt)
	}
	fmt.Fprint(out, "ANALYZE;\n")
}

// cleanFile sanitizes the assembled dump in place via a sibling temp file
func (m *Manager) cleanFile(path, sourceSchema string) error {
	tmpPath := path + ".clean.tmp"
	sanitizer := NewSanitizer(sourceSchema, true)

	if err := sanitizer.SanitizeFile(path, tmpPath); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return NewMalformedDumpError("failed to replace dump with sanitized output", err)
	}
	return nil
}

// ValidateFilters executes every filter in inspection mode (a zero-row
// execution) against the source namespace, collecting all failures into a
// single error. It is side-effect-free and transfers no data.
func (m *Manager) ValidateFilters(ctx context.Context, filters map[string]FilterSpec, sourceSchema string) error {
	if len(filters) == 0 {
		return nil
	}
	if sourceSchema == "" {
		sourceSchema = defaultSourceSchema
	}

	failures := make(map[string]string)

	tables := make([]string, 0, len(filters))
	for t := range filters {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	for _, table := range tables {
		query, err := filters[table].Build(
			quoteIdent(sourceSchema) + "." + quoteIdent(table))
		if err != nil {
			failures[table] = err.Error()
			continue
		}

		rows, err := m.db.QueryContext(ctx, inspectionQuery(query))
		if err != nil {
			failures[table] = err.Error()
			continue
		}
		rows.Close()
	}

	if len(failures) > 0 {
		return NewFilterValidationError(failures)
	}
	return nil
}

// EstimateSize returns an approximate row count per table: planner
// statistics for unfiltered tables, an exact count for filtered ones. It
// never mutates data or schema and always reports non-negative counts.
func (m *Manager) EstimateSize(ctx context.Context, filters map[string]FilterSpec, sourceSchema string) (map[string]int64, error) {
	if sourceSchema == "" {
		sourceSchema = defaultSourceSchema
	}

	tables, err := m.enumerateTables(ctx, m.db, sourceSchema)
	if err != nil {
		return nil, NewConnectionError("failed to enumerate tables", err)
	}

	estimates := make(map[string]int64, len(tables))
	for _, table := range tables {
		if spec, ok := filters[table]; ok {
			query, err := spec.Build(quoteIdent(sourceSchema) + "." + quoteIdent(table))
			if err != nil {
				return nil, err
			}
			var count int64
			if err := m.db.QueryRowContext(ctx, exactRowCountQuery(query)).Scan(&count); err != nil {
				return nil, NewValidationError(
					fmt.Sprintf("failed to count rows of %s", table), err)
			}
			estimates[table] = count
			continue
		}

		var approx int64
		if err := m.db.QueryRowContext(ctx, approxRowCountQuery, sourceSchema, table).Scan(&approx); err != nil {
			return nil, NewValidationError(
				fmt.Sprintf("failed to estimate rows of %s", table), err)
		}
		if approx < 0 {
			approx = 0
		}
		estimates[table] = approx
	}

	return estimates, nil
}
