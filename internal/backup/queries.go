package backup

import (
	"fmt"
	"strings"
)

// Catalog queries. All of them are parameterized on schema (and table) so the
// same statements serve any source namespace.

const schemaExistsQuery = `SELECT EXISTS (
	SELECT 1 FROM information_schema.schemata WHERE schema_name = $1
)`

const listTablesQuery = `SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = $1 AND table_type = 'BASE TABLE'
	ORDER BY table_name`

const tableColumnsQuery = `SELECT
		column_name,
		data_type,
		COALESCE(udt_name, ''),
		is_nullable,
		COALESCE(column_default, ''),
		COALESCE(character_maximum_length, 0),
		COALESCE(numeric_precision, 0),
		COALESCE(numeric_scale, 0)
	FROM information_schema.columns
	WHERE table_schema = $1 AND table_name = $2
	ORDER BY ordinal_position`

const primaryKeyQuery = `SELECT a.attname
	FROM pg_index i
	JOIN pg_class c ON c.oid = i.indrelid
	JOIN pg_namespace n ON n.oid = c.relnamespace
	JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = ANY (i.indkey)
	WHERE n.nspname = $1 AND c.relname = $2 AND i.indisprimary
	ORDER BY array_position(i.indkey, a.attnum)`

// Secondary indexes only: indexes backing a constraint (primary key, unique
// constraint) are excluded because their constraints are emitted separately.
const secondaryIndexesQuery = `SELECT i.indexname, i.indexdef
	FROM pg_indexes i
	WHERE i.schemaname = $1 AND i.tablename = $2
	AND NOT EXISTS (
		SELECT 1 FROM pg_constraint con
		JOIN pg_class cl ON cl.oid = con.conindid
		JOIN pg_namespace nsp ON nsp.oid = cl.relnamespace
		WHERE cl.relname = i.indexname AND nsp.nspname = i.schemaname
	)
	ORDER BY i.indexname`

const foreignKeysQuery = `SELECT con.conname, pg_get_constraintdef(con.oid)
	FROM pg_constraint con
	JOIN pg_class c ON c.oid = con.conrelid
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1 AND c.relname = $2 AND con.contype = 'f'
	ORDER BY con.conname`

const ownedSequencesQuery = `SELECT a.attname,
		pg_get_serial_sequence(format('%I.%I', n.nspname, c.relname), a.attname)
	FROM pg_attribute a
	JOIN pg_class c ON c.oid = a.attrelid
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1 AND c.relname = $2
	AND a.attnum > 0 AND NOT a.attisdropped
	AND pg_get_serial_sequence(format('%I.%I', n.nspname, c.relname), a.attname) IS NOT NULL
	ORDER BY a.attnum`

// approxRowCountQuery reads planner statistics; the estimate can lag reality
// but never touches the table.
const approxRowCountQuery = `SELECT GREATEST(c.reltuples::bigint, 0)
	FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = $1 AND c.relname = $2`

// sequenceStateQuery reads a sequence's position for the post-data setval
func sequenceStateQuery(qualifiedSeq string) string {
	return fmt.Sprintf("SELECT last_value, is_called FROM %s", qualifiedSeq)
}

// inspectionQuery wraps a filter query so it can be executed without
// transferring any rows.
func inspectionQuery(query string) string {
	return fmt.Sprintf("SELECT * FROM (%s) AS t LIMIT 0", query)
}

// exactRowCountQuery wraps a filter query to count its rows
func exactRowCountQuery(query string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS t", query)
}

// selectAllQuery is the full-table SELECT used when a filter needs a query
// form; the exporter bypasses it for unfiltered tables.
func selectAllQuery(schema, table string) string {
	return fmt.Sprintf("SELECT * FROM %s.%s", quoteIdent(schema), quoteIdent(table))
}

// CopyOptions carries the bulk-copy text format settings
type CopyOptions struct {
	Delimiter  string
	NullString string
	QuoteChar  string
	EscapeChar string
}

// formatClause renders the WITH (...) options of a COPY statement. Text
// format is the default; configuring a quote or escape character switches to
// CSV, which is the only format that accepts them.
func (o CopyOptions) formatClause() string {
	csv := o.QuoteChar != "" || o.EscapeChar != ""

	parts := []string{}
	if csv {
		parts = append(parts, "FORMAT csv")
	} else {
		parts = append(parts, "FORMAT text")
	}
	if o.Delimiter != "" {
		parts = append(parts, fmt.Sprintf("DELIMITER E'%s'", escapeCopyChar(o.Delimiter)))
	}
	if o.NullString != "" {
		parts = append(parts, fmt.Sprintf("NULL '%s'", strings.ReplaceAll(o.NullString, "'", "''")))
	}
	if o.QuoteChar != "" {
		parts = append(parts, fmt.Sprintf("QUOTE E'%s'", escapeCopyChar(o.QuoteChar)))
	}
	if o.EscapeChar != "" {
		parts = append(parts, fmt.Sprintf("ESCAPE E'%s'", escapeCopyChar(o.EscapeChar)))
	}

	return "WITH (" + strings.Join(parts, ", ") + ")"
}

// escapeCopyChar renders a single delimiter/quote/escape character for an
// E'...' literal.
func escapeCopyChar(c string) string {
	switch c {
	case "\t":
		return `\t`
	case "\b":
		return `\b`
	case "\\":
		return `\\`
	case "'":
		return `\'`
	default:
		return c
	}
}

// buildCopyToQuery builds the COPY ... TO STDOUT statement issued over the
// bulk-copy channel. A filtered table copies over the filter's SELECT; an
// unfiltered one copies the table directly, which skips query planning.
func buildCopyToQuery(t *TableDescriptor, filterQuery string, opts CopyOptions) string {
	if filterQuery != "" {
		return fmt.Sprintf("COPY (%s) TO STDOUT %s", filterQuery, opts.formatClause())
	}
	return fmt.Sprintf("COPY %s (%s) TO STDOUT %s",
		t.QualifiedName(), t.QuotedColumnList(), opts.formatClause())
}

// buildCopyFromHeader builds the COPY ... FROM stdin header written into the
// artifact ahead of the payload. The column list pins restore order to the
// exported column order, and the options clause mirrors the one the payload
// was produced with, so restore parses the bytes exactly as they were
// written.
func buildCopyFromHeader(t *TableDescriptor, opts CopyOptions) string {
	return fmt.Sprintf("COPY %s (%s) FROM stdin %s;",
		t.QualifiedName(), t.QuotedColumnList(), opts.formatClause())
}

// copyTerminator bounds every payload block
const copyTerminator = `\.`

// buildSchemaPrologue builds the statements creating the target namespace and
// pointing the search path at it.
func buildSchemaPrologue(targetSchema string, dropExisting bool) []string {
	quoted := quoteIdent(targetSchema)

	var statements []string
	if dropExisting {
		statements = append(statements, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE;", quoted))
		statements = append(statements, fmt.Sprintf("CREATE SCHEMA %s;", quoted))
	} else {
		statements = append(statements, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s;", quoted))
	}
	statements = append(statements, fmt.Sprintf("SET search_path = %s;", quoted))
	return statements
}

// buildPerformanceSettings builds the session settings that speed up restore
func buildPerformanceSettings(disableTriggers, disableFsync bool) []string {
	var settings []string

	if disableTriggers {
		settings = append(settings, "SET session_replication_role = replica;")
	}
	if disableFsync {
		settings = append(settings, "SET synchronous_commit = off;")
	}

	return settings
}

// buildPerformanceReset restores the defaults changed by the settings above
func buildPerformanceReset(disableTriggers, disableFsync bool) []string {
	var settings []string

	if disableTriggers {
		settings = append(settings, "SET session_replication_role = DEFAULT;")
	}
	if disableFsync {
		settings = append(settings, "SET synchronous_commit = on;")
	}

	return settings
}
