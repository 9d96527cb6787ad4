package mysql

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/dbgrid/pkg/adapter"
)

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple_table", "`simple_table`"},
		{"table`with`backticks", "`table``with``backticks`"},
		{"table with spaces", "`table with spaces`"},
		{"table-with-dashes", "`table-with-dashes`"},
		{"123table", "`123table`"},
		{"", "``"},
	}

	for _, test := range tests {
		result := QuoteIdentifier(test.input)
		if result != test.expected {
			t.Errorf("QuoteIdentifier(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestBuildSelectQuery(t *testing.T) {
	qb, err := adapter.GetQueryBuilder(adapter.MySQL)
	require.NoError(t, err)

	query, err := qb.BuildSelectQuery(adapter.QueryRequest{
		Type:    adapter.MySQL,
		Table:   "users",
		Limit:   10,
		Offset:  0,
		Filters: []adapter.Filter{{Column: "age", Operator: adapter.OpGreaterThan, Value: adapter.SingleValue(18)}},
		OrderBy: []adapter.OrderBy{{Column: "name", Direction: adapter.Asc}},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `users` WHERE `age` > 18 ORDER BY `name` ASC LIMIT 10 OFFSET 0", query)

	query, err = qb.BuildSelectQuery(adapter.QueryRequest{Database: "shop", Schema: "ignored", Table: "orders", Limit: 5, Offset: 20})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `shop`.`orders` LIMIT 5 OFFSET 20", query)
}

func TestCRUDBuilder(t *testing.T) {
	crud, err := adapter.GetCRUDBuilder(adapter.MySQL)
	require.NoError(t, err)

	schema := &adapter.TableSchema{Columns: []adapter.Column{{Name: "id", IsPrimaryKey: true}, {Name: "active"}}}
	query, err := crud.BuildInsertQuery("users", "", adapter.Row{"active": true, "id": 1}, schema)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO `users` (`id`, `active`) VALUES (1, TRUE);", query)
}

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(adapter.ConnectionConfig{Type: adapter.MySQL, Host: "db.local", Password: "secret", Database: "shop"})
	assert.Contains(t, dsn, "root:secret@tcp(db.local:3306)/shop")
	assert.Contains(t, dsn, "tls=false")

	dsn = buildDSN(adapter.ConnectionConfig{Type: adapter.MySQL, Host: "db.local", Port: 3307, Username: "app", SSL: true})
	assert.Contains(t, dsn, "app@tcp(db.local:3307)/")
	assert.Contains(t, dsn, "tls=true")
}

func TestCategorizeAndConvert(t *testing.T) {
	tests := []struct {
		typeName string
		value    interface{}
		want     interface{}
	}{
		{"INT", []byte("42"), int64(42)},
		{"BIGINT", int64(7), int64(7)},
		{"UNSIGNED BIGINT", []byte("18446744073709551615"), uint64(18446744073709551615)},
		{"DOUBLE", []byte("1.5"), 1.5},
		{"DECIMAL", []byte("10.25"), "10.25"},
		{"DATETIME", []byte("2024-01-02 03:04:05"), "2024-01-02 03:04:05"},
		{"JSON", []byte(`{"a":1}`), map[string]interface{}{"a": float64(1)}},
		{"BLOB", []byte{1, 2, 3}, "[BINARY 3 bytes]"},
		{"VARCHAR", []byte("hello"), "hello"},
		{"", []byte("x"), "x"},
	}

	for _, tt := range tests {
		t.Run(tt.typeName, func(t *testing.T) {
			assert.Equal(t, tt.want, ConvertValue(tt.typeName, tt.value))
		})
	}
}

func newMockConnection(t *testing.T) (*Connection, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	conn := NewConnection(nil)
	conn.attach(db, adapter.ConnectionConfig{ID: "c1", Type: adapter.MySQL, Host: "localhost"})
	t.Cleanup(func() { db.Close() })
	return conn, mock
}

func TestNotConnected(t *testing.T) {
	conn := NewConnection(nil)
	ctx := context.Background()

	_, err := conn.ExecuteQuery(ctx, "SELECT 1")
	assert.True(t, adapter.IsNotConnected(err))
	assert.EqualError(t, err, "Not connected to MySQL")

	_, err = conn.GetTables(ctx, "shop")
	assert.True(t, adapter.IsNotConnected(err))

	assert.NoError(t, conn.Disconnect(ctx))
}

func TestExecuteQuery(t *testing.T) {
	conn, mock := newMockConnection(t)

	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("id").OfType("INT", int64(0)),
		sqlmock.NewColumn("id").OfType("INT", int64(0)),
		sqlmock.NewColumn("name").OfType("VARCHAR", ""),
	).AddRow([]byte("1"), []byte("2"), []byte("alice"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT u.id, o.id, u.name FROM u JOIN o")).WillReturnRows(rows)

	result, err := conn.ExecuteQuery(context.Background(), "SELECT u.id, o.id, u.name FROM u JOIN o")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "id_2", "name"}, result.Columns)
	assert.Equal(t, []string{"id", "id", "name"}, result.ColumnDisplayNames)
	assert.Equal(t, "INT", result.ColumnTypes["id_2"])
	assert.Equal(t, map[string]interface{}{"id": int64(1), "id_2": int64(2), "name": "alice"}, result.Rows[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteUpdate(t *testing.T) {
	conn, mock := newMockConnection(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `users` WHERE `id` = 1;")).WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := conn.ExecuteUpdate(context.Background(), "DELETE FROM `users` WHERE `id` = 1;")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	mock.ExpectExec("UPDATE").WillReturnError(assert.AnError)
	_, err = conn.ExecuteUpdate(context.Background(), "UPDATE x SET y = 1")
	assert.True(t, adapter.IsQueryError(err))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestGetTableData(t *testing.T) {
	conn, mock := newMockConnection(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `shop`.`users` LIMIT 50 OFFSET 100")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow([]byte("1")))

	result, err := conn.GetTableData(context.Background(), "shop", "users", 50, 100)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `shop`.`users` LIMIT 50 OFFSET 100", result.FinalQuery)
	assert.Len(t, result.Rows, 1)
}

func TestGetTableSchema(t *testing.T) {
	conn, mock := newMockConnection(t)

	mock.ExpectQuery(regexp.QuoteMeta("DESCRIBE `shop`.`users`")).
		WillReturnRows(sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"}).
			AddRow("id", "int", "NO", "PRI", nil, "auto_increment").
			AddRow("email", "varchar(255)", "YES", "UNI", "none", ""))
	mock.ExpectQuery("FROM information_schema.STATISTICS").WithArgs("shop", "users").
		WillReturnRows(sqlmock.NewRows([]string{"INDEX_NAME", "COLUMN_NAME", "NON_UNIQUE", "INDEX_TYPE", "COLLATION"}).
			AddRow("PRIMARY", "id", 0, "BTREE", "A").
			AddRow("idx_multi", "email", 1, "BTREE", "D").
			AddRow("idx_multi", "id", 1, "BTREE", "D"))
	mock.ExpectQuery("FROM information_schema.KEY_COLUMN_USAGE").WithArgs("shop", "users").
		WillReturnRows(sqlmock.NewRows([]string{"CONSTRAINT_NAME", "COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME", "UPDATE_RULE", "DELETE_RULE"}).
			AddRow("fk_org", "org_id", "orgs", "id", "CASCADE", "RESTRICT"))

	schema, err := conn.GetTableSchema(context.Background(), "shop", "users")
	require.NoError(t, err)

	require.Len(t, schema.Columns, 2)
	assert.True(t, schema.Columns[0].IsPrimaryKey)
	assert.True(t, schema.Columns[0].IsAutoIncrement)
	assert.Nil(t, schema.Columns[0].DefaultValue)
	assert.True(t, schema.Columns[1].Nullable)
	assert.Equal(t, []string{"id"}, schema.PrimaryKeys())

	require.Len(t, schema.Indexes, 2)
	assert.True(t, schema.Indexes[0].IsUnique)
	assert.Equal(t, []string{"email", "id"}, schema.Indexes[1].Columns)
	assert.False(t, *schema.Indexes[1].Ascending)

	require.Len(t, schema.ForeignKeys, 1)
	assert.Equal(t, "orgs", schema.ForeignKeys[0].ReferencedTable)
	assert.Equal(t, "CASCADE", *schema.ForeignKeys[0].OnUpdate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTableRelationships(t *testing.T) {
	conn, mock := newMockConnection(t)

	mock.ExpectQuery("FROM information_schema.KEY_COLUMN_USAGE").WithArgs("shop", "users", "users").
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c", "d", "e", "f", "g"}).
			AddRow("fk_org", "users", "org_id", "orgs", "id", nil, nil).
			AddRow("fk_user", "orders", "user_id", "users", "id", "CASCADE", "CASCADE"))

	rels, err := conn.GetTableRelationships(context.Background(), "shop", "", "users")
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, adapter.RelationshipForeignKey, rels[0].RelationshipType)
	assert.Nil(t, rels[0].OnDelete)
	assert.Equal(t, adapter.RelationshipReferencedBy, rels[1].RelationshipType)
}

func TestGetProcedureSource(t *testing.T) {
	conn, mock := newMockConnection(t)

	mock.ExpectQuery("SELECT ROUTINE_DEFINITION").WithArgs("shop", "missing", "FUNCTION").
		WillReturnRows(sqlmock.NewRows([]string{"ROUTINE_DEFINITION"}))
	source, err := conn.GetProcedureSource(context.Background(), "shop", "", "missing", "")
	require.NoError(t, err)
	assert.Equal(t, "-- Source code not available", source)

	mock.ExpectQuery("SELECT ROUTINE_DEFINITION").WithArgs("shop", "calc", "PROCEDURE").
		WillReturnRows(sqlmock.NewRows([]string{"ROUTINE_DEFINITION"}).AddRow("BEGIN SELECT 1; END"))
	source, err = conn.GetProcedureSource(context.Background(), "shop", "", "calc", "PROCEDURE")
	require.NoError(t, err)
	assert.Equal(t, "BEGIN SELECT 1; END", source)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	conn, mock := newMockConnection(t)
	mock.ExpectClose()

	require.NoError(t, conn.Disconnect(context.Background()))
	require.NoError(t, conn.Disconnect(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
