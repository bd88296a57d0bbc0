package backup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testTable() *TableDescriptor {
	return &TableDescriptor{
		Schema: "public",
		Name:   "orders",
		Columns: []ColumnDescriptor{
			{Name: "id", DataType: "integer"},
			{Name: "total", DataType: "numeric"},
		},
	}
}

func TestCopyOptionsFormatClause(t *testing.T) {
	tests := []struct {
		name string
		opts CopyOptions
		want string
	}{
		{
			name: "text format is the default",
			opts: CopyOptions{},
			want: "WITH (FORMAT text)",
		},
		{
			name: "tab delimiter and null marker",
			opts: CopyOptions{Delimiter: "\t", NullString: `\N`},
			want: `WITH (FORMAT text, DELIMITER E'\t', NULL '\N')`,
		},
		{
			name: "quote character switches to csv",
			opts: CopyOptions{Delimiter: ",", QuoteChar: `"`},
			want: `WITH (FORMAT csv, DELIMITER E',', QUOTE E'"')`,
		},
		{
			name: "escape character switches to csv",
			opts: CopyOptions{EscapeChar: "\\"},
			want: `WITH (FORMAT csv, ESCAPE E'\\')`,
		},
		{
			name: "null marker with embedded quote",
			opts: CopyOptions{NullString: "n'a"},
			want: `WITH (FORMAT text, NULL 'n''a')`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.formatClause())
		})
	}
}

func TestBuildCopyToQuery(t *testing.T) {
	table := testTable()
	opts := CopyOptions{Delimiter: "\t", NullString: `\N`}

	// An unfiltered table copies directly with an explicit column list.
	got := buildCopyToQuery(table, "", opts)
	assert.Equal(t,
		`COPY public.orders (id, total) TO STDOUT WITH (FORMAT text, DELIMITER E'\t', NULL '\N')`, got)

	// A filtered table copies over the resolved SELECT.
	got = buildCopyToQuery(table, "SELECT * FROM public.orders WHERE total > 100", opts)
	assert.Equal(t,
		`COPY (SELECT * FROM public.orders WHERE total > 100) TO STDOUT WITH (FORMAT text, DELIMITER E'\t', NULL '\N')`, got)
}

func TestBuildCopyFromHeader(t *testing.T) {
	assert.Equal(t, "COPY public.orders (id, total) FROM stdin WITH (FORMAT text);",
		buildCopyFromHeader(testTable(), CopyOptions{}))

	mixed := &TableDescriptor{
		Schema:  "public",
		Name:    "My Table",
		Columns: []ColumnDescriptor{{Name: "User ID"}},
	}
	assert.Equal(t, `COPY public."My Table" ("User ID") FROM stdin WITH (FORMAT text);`,
		buildCopyFromHeader(mixed, CopyOptions{}))
}

// The restore header must carry the same options clause as the COPY TO that
// produced the payload; otherwise a non-default delimiter or null marker is
// parsed wrong on restore.
func TestBuildCopyFromHeaderMirrorsCopyToOptions(t *testing.T) {
	table := testTable()

	for _, opts := range []CopyOptions{
		{Delimiter: ",", NullString: "NULL"},
		{Delimiter: ",", QuoteChar: `"`, EscapeChar: "\\"},
	} {
		to := buildCopyToQuery(table, "", opts)
		from := buildCopyFromHeader(table, opts)
		assert.Equal(t,
			strings.TrimPrefix(to, "COPY public.orders (id, total) TO STDOUT "),
			strings.TrimSuffix(strings.TrimPrefix(from, "COPY public.orders (id, total) FROM stdin "), ";"))
	}

	assert.Equal(t,
		`COPY public.orders (id, total) FROM stdin WITH (FORMAT text, DELIMITER E',', NULL 'NULL');`,
		buildCopyFromHeader(table, CopyOptions{Delimiter: ",", NullString: "NULL"}))
}

func TestBuildSchemaPrologue(t *testing.T) {
	assert.Equal(t, []string{
		"CREATE SCHEMA IF NOT EXISTS staging;",
		"SET search_path = staging;",
	}, buildSchemaPrologue("staging", false))

	assert.Equal(t, []string{
		"DROP SCHEMA IF EXISTS staging CASCADE;",
		"CREATE SCHEMA staging;",
		"SET search_path = staging;",
	}, buildSchemaPrologue("staging", true))

	// Target schema names needing quoting are quoted everywhere.
	assert.Equal(t, []string{
		`CREATE SCHEMA IF NOT EXISTS "Mixed Case";`,
		`SET search_path = "Mixed Case";`,
	}, buildSchemaPrologue("Mixed Case", false))
}

func TestBuildPerformanceSettings(t *testing.T) {
	assert.Equal(t, []string{
		"SET session_replication_role = replica;",
		"SET synchronous_commit = off;",
	}, buildPerformanceSettings(true, true))
	assert.Empty(t, buildPerformanceSettings(false, false))

	assert.Equal(t, []string{
		"SET session_replication_role = DEFAULT;",
		"SET synchronous_commit = on;",
	}, buildPerformanceReset(true, true))
}

// The constraint-backed-index exclusion must correlate on the index's schema;
// matching on the index name alone lets a same-named index in another schema
// suppress emission.
func TestSecondaryIndexesQueryScopesConstraintLookup(t *testing.T) {
	assert.Contains(t, secondaryIndexesQuery, "nsp.nspname = i.schemaname")
	assert.Contains(t, secondaryIndexesQuery, "JOIN pg_namespace nsp ON nsp.oid = cl.relnamespace")
}

func TestInspectionAndCountQueries(t *testing.T) {
	assert.Equal(t,
		"SELECT * FROM (SELECT * FROM t WHERE x) AS t LIMIT 0",
		inspectionQuery("SELECT * FROM t WHERE x"))
	assert.Equal(t,
		"SELECT COUNT(*) FROM (SELECT * FROM t WHERE x) AS t",
		exactRowCountQuery("SELECT * FROM t WHERE x"))
	assert.Equal(t,
		"SELECT last_value, is_called FROM public.orders_id_seq",
		sequenceStateQuery("public.orders_id_seq"))
	assert.Equal(t,
		"SELECT * FROM public.orders",
		selectAllQuery("public", "orders"))
}
