package backup

import (
	"fmt"
	"strings"
	"time"
)

// ColumnDescriptor describes one column as read from the catalog
type ColumnDescriptor struct {
	Name      string
	DataType  string
	UDTName   string // underlying type name; carries the real type when DataType is ARRAY or USER-DEFINED
	Nullable  bool
	Default   string // empty when the column has no default
	MaxLength int64  // 0 when not applicable
	Precision int64
	Scale     int64
}

// TableDescriptor is a read-only snapshot of one table's shape, taken at
// export time. Column order follows the physical catalog order and is shared
// between the emitted DDL and the COPY column list.
type TableDescriptor struct {
	Schema     string
	Name       string
	Columns    []ColumnDescriptor
	PrimaryKey []string
}

// QualifiedName returns the schema-qualified table name, quoting identifiers
// only when required.
func (t *TableDescriptor) QualifiedName() string {
	return quoteIdent(t.Schema) + "." + quoteIdent(t.Name)
}

// ColumnNames returns the column names in catalog order
func (t *TableDescriptor) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// QuotedColumnList returns the column list ready for a COPY statement
func (t *TableDescriptor) QuotedColumnList() string {
	quoted := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		quoted[i] = quoteIdent(c.Name)
	}
	return strings.Join(quoted, ", ")
}

// TableStats records what one table transfer moved
type TableStats struct {
	Rows    int64 `json:"rows"`
	Bytes   int64 `json:"bytes"`
	Columns int   `json:"columns"`
}

// BackupResult is the immutable record returned from one orchestration call.
// It is created exactly once per call and never mutated afterward.
type BackupResult struct {
	Success         bool                  `json:"success"`
	FilePath        string                `json:"file_path,omitempty"`
	Location        string                `json:"location,omitempty"`
	SizeBytes       int64                 `json:"size_bytes"`
	TablesCount     int                   `json:"tables_count"`
	TotalRows       int64                 `json:"total_rows"`
	Duration        time.Duration         `json:"duration"`
	ErrorMessage    string                `json:"error_message,omitempty"`
	Metadata        map[string]string     `json:"metadata,omitempty"`
	TableStats      map[string]TableStats `json:"table_stats,omitempty"`
	CorrelationID   string                `json:"correlation_id"`
	SourceNamespace string                `json:"source_namespace"`
}

// String renders a one-line summary
func (r *BackupResult) String() string {
	if r.Success {
		return fmt.Sprintf("backup successful: %s (%d bytes, %d tables, %d rows, %s)",
			r.FilePath, r.SizeBytes, r.TablesCount, r.TotalRows, r.Duration.Round(time.Millisecond))
	}
	return fmt.Sprintf("backup failed: %s", r.ErrorMessage)
}

// BackupRequest describes one backup invocation
type BackupRequest struct {
	// OutputPath is where the SQL artifact is written
	OutputPath string
	// Filters restricts the exported rows per table; keys must name tables
	// present in the source namespace
	Filters map[string]FilterSpec
	// TargetSchema, when set, bakes a schema prologue into the artifact
	TargetSchema string
	// Metadata is included in the header comment block
	Metadata map[string]string
	// SourceSchema is the namespace read from; defaults to "public"
	SourceSchema string
}

// quoteIdent quotes a SQL identifier only when it is not a plain lowercase
// name or when it collides with a reserved keyword, matching how pg_dump
// renders identifiers.
func quoteIdent(name string) string {
	if isPlainIdent(name) {
		if _, reserved := reservedKeywords[name]; !reserved {
			return name
		}
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// reservedKeywords are the identifiers PostgreSQL reserves; they must be
// quoted wherever they appear as object names.
var reservedKeywords = map[string]struct{}{
	"all": {}, "analyse": {}, "analyze": {}, "and": {}, "any": {},
	"array": {}, "as": {}, "asc": {}, "asymmetric": {}, "authorization": {},
	"binary": {}, "both": {}, "case": {}, "cast": {}, "check": {},
	"collate": {}, "collation": {}, "column": {}, "concurrently": {},
	"constraint": {}, "create": {}, "cross": {}, "current_catalog": {},
	"current_date": {}, "current_role": {}, "current_schema": {},
	"current_time": {}, "current_timestamp": {}, "current_user": {},
	"default": {}, "deferrable": {}, "desc": {}, "distinct": {}, "do": {},
	"else": {}, "end": {}, "except": {}, "false": {}, "fetch": {}, "for": {},
	"foreign": {}, "freeze": {}, "from": {}, "full": {}, "grant": {},
	"group": {}, "having": {}, "ilike": {}, "in": {}, "initially": {},
	"inner": {}, "intersect": {}, "into": {}, "is": {}, "isnull": {},
	"join": {}, "lateral": {}, "leading": {}, "left": {}, "like": {},
	"limit": {}, "localtime": {}, "localtimestamp": {}, "natural": {},
	"not": {}, "notnull": {}, "null": {}, "offset": {}, "on": {}, "only": {},
	"or": {}, "order": {}, "outer": {}, "overlaps": {}, "placing": {},
	"primary": {}, "references": {}, "returning": {}, "right": {},
	"select": {}, "session_user": {}, "similar": {}, "some": {},
	"symmetric": {}, "table": {}, "tablesample": {}, "then": {}, "to": {},
	"trailing": {}, "true": {}, "union": {}, "unique": {}, "user": {},
	"using": {}, "variadic": {}, "verbose": {}, "when": {}, "where": {},
	"window": {}, "with": {},
}

func isPlainIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9', r == '$':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// quoteLiteral renders a string as a SQL literal
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
