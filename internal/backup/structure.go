package backup

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/vohoa/postgres-backup-plugin/internal/logging"
)

// StructureEmitter introspects table shape from the catalogs and renders it
// as DDL. Pre-data DDL (columns, defaults, primary key) goes before the
// payload; post-data DDL (secondary indexes, foreign keys, sequence state)
// goes after it. That ordering is a restore-speed contract: indexes and
// foreign keys must not exist while rows are loaded.
type StructureEmitter struct {
	logger *logging.Logger
}

// NewStructureEmitter creates a structure emitter
func NewStructureEmitter(logger *logging.Logger) *StructureEmitter {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &StructureEmitter{logger: logger}
}

// Describe reads one table's columns and primary key from the catalogs. The
// returned descriptor is a snapshot; it is never refreshed mid-export.
func (e *StructureEmitter) Describe(ctx context.Context, q querier, schema, table string) (*TableDescriptor, error) {
	rows, err := q.QueryContext(ctx, tableColumnsQuery, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	desc := &TableDescriptor{Schema: schema, Name: table}
	for rows.Next() {
		var col ColumnDescriptor
		var nullable string
		if err := rows.Scan(&col.Name, &col.DataType, &col.UDTName, &nullable,
			&col.Default, &col.MaxLength, &col.Precision, &col.Scale); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s.%s: %w", schema, table, err)
		}
		col.Nullable = strings.EqualFold(nullable, "YES")
		desc.Columns = append(desc.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns of %s.%s: %w", schema, table, err)
	}
	if len(desc.Columns) == 0 {
		return nil, fmt.Errorf("table %s.%s has no columns", schema, table)
	}

	pkRows, err := q.QueryContext(ctx, primaryKeyQuery, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read primary key of %s.%s: %w", schema, table, err)
	}
	defer pkRows.Close()

	for pkRows.Next() {
		var name string
		if err := pkRows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan primary key of %s.%s: %w", schema, table, err)
		}
		desc.PrimaryKey = append(desc.PrimaryKey, name)
	}
	if err := pkRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read primary key of %s.%s: %w", schema, table, err)
	}

	return desc, nil
}

// WritePreData renders the CREATE TABLE statement. Column order matches the
// descriptor, which is also the COPY column list order; restore depends on
// the two never diverging.
func (e *StructureEmitter) WritePreData(w io.Writer, t *TableDescriptor) error {
	var b strings.Builder

	fmt.Fprintf(&b, "CREATE TABLE %s (\n", t.QualifiedName())

	lines := make([]string, 0, len(t.Columns)+1)
	for _, col := range t.Columns {
		lines = append(lines, "    "+renderColumn(col))
	}
	if len(t.PrimaryKey) > 0 {
		quoted := make([]string, len(t.PrimaryKey))
		for i, c := range t.PrimaryKey {
			quoted[i] = quoteIdent(c)
		}
		lines = append(lines, fmt.Sprintf("    PRIMARY KEY (%s)", strings.Join(quoted, ", ")))
	}

	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n);\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// renderColumn renders one column definition
func renderColumn(col ColumnDescriptor) string {
	var b strings.Builder

	b.WriteString(quoteIdent(col.Name))
	b.WriteByte(' ')
	b.WriteString(renderDataType(col))

	if col.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(col.Default)
	}
	if !col.Nullable {
		b.WriteString(" NOT NULL")
	}

	return b.String()
}

// renderDataType appends length or precision modifiers where the catalog
// reports them. information_schema spells the base types out in full
// ("character varying", "numeric"), which restores cleanly. Array and
// user-defined columns report the placeholder strings ARRAY and USER-DEFINED;
// for those the real type comes from udt_name, where arrays carry a leading
// underscore on the element type.
func renderDataType(col ColumnDescriptor) string {
	switch col.DataType {
	case "character varying", "character":
		if col.MaxLength > 0 {
			return fmt.Sprintf("%s(%d)", col.DataType, col.MaxLength)
		}
	case "numeric":
		if col.Precision > 0 {
			if col.Scale > 0 {
				return fmt.Sprintf("numeric(%d,%d)", col.Precision, col.Scale)
			}
			return fmt.Sprintf("numeric(%d)", col.Precision)
		}
	case "ARRAY":
		if elem, ok := strings.CutPrefix(col.UDTName, "_"); ok {
			return elem + "[]"
		}
	case "USER-DEFINED":
		if col.UDTName != "" {
			return quoteIdent(col.UDTName)
		}
	}
	return col.DataType
}

// WritePostData renders everything deferred until after the payload:
// secondary indexes, foreign keys, and sequence positions.
func (e *StructureEmitter) WritePostData(ctx context.Context, q querier, w io.Writer, t *TableDescriptor) error {
	if err := e.writeIndexes(ctx, q, w, t); err != nil {
		return err
	}
	if err := e.writeForeignKeys(ctx, q, w, t); err != nil {
		return err
	}
	return e.writeSequenceState(ctx, q, w, t)
}

func (e *StructureEmitter) writeIndexes(ctx context.Context, q querier, w io.Writer, t *TableDescriptor) error {
	rows, err := q.QueryContext(ctx, secondaryIndexesQuery, t.Schema, t.Name)
	if err != nil {
		return fmt.Errorf("failed to read indexes of %s: %w", t.QualifiedName(), err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, def string
		if err := rows.Scan(&name, &def); err != nil {
			return fmt.Errorf("failed to scan index of %s: %w", t.QualifiedName(), err)
		}
		e.logger.Debugf("emitting index %s on %s", name, t.QualifiedName())
		if _, err := fmt.Fprintf(w, "%s;\n", def); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (e *StructureEmitter) writeForeignKeys(ctx context.Context, q querier, w io.Writer, t *TableDescriptor) error {
	rows, err := q.QueryContext(ctx, foreignKeysQuery, t.Schema, t.Name)
	if err != nil {
		return fmt.Errorf("failed to read foreign keys of %s: %w", t.QualifiedName(), err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, def string
		if err := rows.Scan(&name, &def); err != nil {
			return fmt.Errorf("failed to scan foreign key of %s: %w", t.QualifiedName(), err)
		}
		if _, err := fmt.Fprintf(w, "ALTER TABLE ONLY %s\n    ADD CONSTRAINT %s %s;\n",
			t.QualifiedName(), quoteIdent(name), def); err != nil {
			return err
		}
	}
	return rows.Err()
}

// writeSequenceState emits a setval for every sequence owned by one of the
// table's columns, so restored sequences continue where the source left off.
func (e *StructureEmitter) writeSequenceState(ctx context.Context, q querier, w io.Writer, t *TableDescriptor) error {
	rows, err := q.QueryContext(ctx, ownedSequencesQuery, t.Schema, t.Name)
	if err != nil {
		return fmt.Errorf("failed to read sequences of %s: %w", t.QualifiedName(), err)
	}

	type ownedSeq struct{ column, sequence string }
	var seqs []ownedSeq
	for rows.Next() {
		var s ownedSeq
		if err := rows.Scan(&s.column, &s.sequence); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan sequence of %s: %w", t.QualifiedName(), err)
		}
		seqs = append(seqs, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to read sequences of %s: %w", t.QualifiedName(), err)
	}
	rows.Close()

	for _, s := range seqs {
		var lastValue int64
		var isCalled bool
		if err := q.QueryRowContext(ctx, sequenceStateQuery(s.sequence)).Scan(&lastValue, &isCalled); err != nil {
			return fmt.Errorf("failed to read state of sequence %s: %w", s.sequence, err)
		}
		if _, err := fmt.Fprintf(w, "SELECT pg_catalog.setval('%s', %d, %t);\n",
			s.sequence, lastValue, isCalled); err != nil {
			return err
		}
	}

	return nil
}
