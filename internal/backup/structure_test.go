package backup

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func columnRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"column_name", "data_type", "udt_name", "is_nullable", "column_default",
		"character_maximum_length", "numeric_precision", "numeric_scale",
	})
}

func TestStructureEmitterDescribe(t *testing.T) {
	db, mock := newMockDB(t)
	emitter := NewStructureEmitter(nil)

	mock.ExpectQuery(tableColumnsQuery).WithArgs("public", "users").
		WillReturnRows(columnRows().
			AddRow("id", "integer", "int4", "NO", "nextval('users_id_seq'::regclass)", 0, 32, 0).
			AddRow("name", "character varying", "varchar", "YES", "", 255, 0, 0))
	mock.ExpectQuery(primaryKeyQuery).WithArgs("public", "users").
		WillReturnRows(sqlmock.NewRows([]string{"attname"}).AddRow("id"))

	desc, err := emitter.Describe(context.Background(), db, "public", "users")
	require.NoError(t, err)

	assert.Equal(t, "public.users", desc.QualifiedName())
	require.Len(t, desc.Columns, 2)
	assert.False(t, desc.Columns[0].Nullable)
	assert.True(t, desc.Columns[1].Nullable)
	assert.Equal(t, int64(255), desc.Columns[1].MaxLength)
	assert.Equal(t, []string{"id"}, desc.PrimaryKey)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStructureEmitterDescribeNoColumns(t *testing.T) {
	db, mock := newMockDB(t)
	emitter := NewStructureEmitter(nil)

	mock.ExpectQuery(tableColumnsQuery).WithArgs("public", "ghost").
		WillReturnRows(columnRows())

	_, err := emitter.Describe(context.Background(), db, "public", "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns")
}

func TestStructureEmitterWritePreData(t *testing.T) {
	emitter := NewStructureEmitter(nil)
	desc := &TableDescriptor{
		Schema: "public",
		Name:   "users",
		Columns: []ColumnDescriptor{
			{Name: "id", DataType: "integer", Default: "nextval('users_id_seq'::regclass)"},
			{Name: "name", DataType: "character varying", Nullable: true, MaxLength: 255},
			{Name: "balance", DataType: "numeric", Nullable: true, Precision: 10, Scale: 2},
			{Name: "bio", DataType: "text", Nullable: true},
		},
		PrimaryKey: []string{"id"},
	}

	var out bytes.Buffer
	require.NoError(t, emitter.WritePreData(&out, desc))

	assert.Equal(t, `CREATE TABLE public.users (
    id integer DEFAULT nextval('users_id_seq'::regclass) NOT NULL,
    name character varying(255),
    balance numeric(10,2),
    bio text,
    PRIMARY KEY (id)
);
`, out.String())
}

func TestRenderDataType(t *testing.T) {
	tests := []struct {
		col  ColumnDescriptor
		want string
	}{
		{ColumnDescriptor{DataType: "integer"}, "integer"},
		{ColumnDescriptor{DataType: "character varying", MaxLength: 100}, "character varying(100)"},
		{ColumnDescriptor{DataType: "character varying"}, "character varying"},
		{ColumnDescriptor{DataType: "character", MaxLength: 2}, "character(2)"},
		{ColumnDescriptor{DataType: "numeric", Precision: 12, Scale: 4}, "numeric(12,4)"},
		{ColumnDescriptor{DataType: "numeric", Precision: 8}, "numeric(8)"},
		{ColumnDescriptor{DataType: "numeric"}, "numeric"},
		{ColumnDescriptor{DataType: "timestamp with time zone"}, "timestamp with time zone"},
		{ColumnDescriptor{DataType: "ARRAY", UDTName: "_text"}, "text[]"},
		{ColumnDescriptor{DataType: "ARRAY", UDTName: "_int4"}, "int4[]"},
		{ColumnDescriptor{DataType: "USER-DEFINED", UDTName: "order_status"}, "order_status"},
		{ColumnDescriptor{DataType: "USER-DEFINED", UDTName: "Order Status"}, `"Order Status"`},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, renderDataType(tt.col))
	}
}

// Array and enum columns come back from information_schema as the
// placeholders ARRAY and USER-DEFINED; the DDL must use the underlying type.
func TestStructureEmitterDescribeArrayAndEnumColumns(t *testing.T) {
	db, mock := newMockDB(t)
	emitter := NewStructureEmitter(nil)

	mock.ExpectQuery(tableColumnsQuery).WithArgs("public", "articles").
		WillReturnRows(columnRows().
			AddRow("id", "integer", "int4", "NO", "", 0, 32, 0).
			AddRow("tags", "ARRAY", "_text", "YES", "", 0, 0, 0).
			AddRow("status", "USER-DEFINED", "article_status", "NO", "", 0, 0, 0))
	mock.ExpectQuery(primaryKeyQuery).WithArgs("public", "articles").
		WillReturnRows(sqlmock.NewRows([]string{"attname"}).AddRow("id"))

	desc, err := emitter.Describe(context.Background(), db, "public", "articles")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, emitter.WritePreData(&out, desc))

	assert.Equal(t, `CREATE TABLE public.articles (
    id integer NOT NULL,
    tags text[],
    status article_status NOT NULL,
    PRIMARY KEY (id)
);
`, out.String())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStructureEmitterWritePostData(t *testing.T) {
	db, mock := newMockDB(t)
	emitter := NewStructureEmitter(nil)
	desc := &TableDescriptor{Schema: "public", Name: "orders",
		Columns: []ColumnDescriptor{{Name: "id", DataType: "integer"}}}

	mock.ExpectQuery(secondaryIndexesQuery).WithArgs("public", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"indexname", "indexdef"}).
			AddRow("orders_created_idx",
				"CREATE INDEX orders_created_idx ON public.orders USING btree (created_at)"))
	mock.ExpectQuery(foreignKeysQuery).WithArgs("public", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"conname", "condef"}).
			AddRow("orders_customer_fk",
				"FOREIGN KEY (customer_id) REFERENCES customers(id)"))
	mock.ExpectQuery(ownedSequencesQuery).WithArgs("public", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"attname", "sequence"}).
			AddRow("id", "public.orders_id_seq"))
	mock.ExpectQuery(sequenceStateQuery("public.orders_id_seq")).
		WillReturnRows(sqlmock.NewRows([]string{"last_value", "is_called"}).AddRow(42, true))

	var out bytes.Buffer
	require.NoError(t, emitter.WritePostData(context.Background(), db, &out, desc))

	assert.Equal(t,
		"CREATE INDEX orders_created_idx ON public.orders USING btree (created_at);\n"+
			"ALTER TABLE ONLY public.orders\n"+
			"    ADD CONSTRAINT orders_customer_fk FOREIGN KEY (customer_id) REFERENCES customers(id);\n"+
			"SELECT pg_catalog.setval('public.orders_id_seq', 42, true);\n",
		out.String())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStructureEmitterWritePostDataEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	emitter := NewStructureEmitter(nil)
	desc := &TableDescriptor{Schema: "public", Name: "plain",
		Columns: []ColumnDescriptor{{Name: "id", DataType: "integer"}}}

	mock.ExpectQuery(secondaryIndexesQuery).WithArgs("public", "plain").
		WillReturnRows(sqlmock.NewRows([]string{"indexname", "indexdef"}))
	mock.ExpectQuery(foreignKeysQuery).WithArgs("public", "plain").
		WillReturnRows(sqlmock.NewRows([]string{"conname", "condef"}))
	mock.ExpectQuery(ownedSequencesQuery).WithArgs("public", "plain").
		WillReturnRows(sqlmock.NewRows([]string{"attname", "sequence"}))

	var out bytes.Buffer
	require.NoError(t, emitter.WritePostData(context.Background(), db, &out, desc))
	assert.Empty(t, out.String())
}

func TestStructureEmitterDescribeQueryFailure(t *testing.T) {
	db, mock := newMockDB(t)
	emitter := NewStructureEmitter(nil)

	mock.ExpectQuery(tableColumnsQuery).WithArgs("public", "users").
		WillReturnError(fmt.Errorf("permission denied"))

	_, err := emitter.Describe(context.Background(), db, "public", "users")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}
