package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		in   string
		want DatabaseType
		ok   bool
	}{
		{"mysql", MySQL, true},
		{"Postgres", PostgreSQL, true},
		{"postgresql", PostgreSQL, true},
		{"MongoDB", MongoDB, true},
		{"redis", Redis, true},
		{"ignite", Ignite, true},
		{"SQLServer", MSSQL, true},
		{"mssql", MSSQL, true},
		{"oracle", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDatabaseType(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConnectionConfig_JSON(t *testing.T) {
	var cfg ConnectionConfig
	err := json.Unmarshal([]byte(`{"id":"c1","name":"local","db_type":"postgres","host":"db","port":0,"ssl":true}`), &cfg)
	require.NoError(t, err)

	assert.Equal(t, PostgreSQL, cfg.Type)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "db:5432", cfg.WithDefaults().Address())

	out, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"db_type":"PostgreSQL"`)
	assert.NotContains(t, string(out), "password")
}

func TestConnectionConfig_Validate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   ConnectionConfig
		field string
	}{
		{"missing id", ConnectionConfig{Type: MySQL, Host: "h"}, "id"},
		{"unknown engine", ConnectionConfig{ID: "x", Type: "Oracle", Host: "h"}, "db_type"},
		{"missing host", ConnectionConfig{ID: "x", Type: Redis}, "host"},
		{"bad port", ConnectionConfig{ID: "x", Type: Redis, Host: "h", Port: 70000}, "port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestFilterValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind FilterValueKind
	}{
		{"number", `18`, ValueSingle},
		{"string", `"bob"`, ValueSingle},
		{"null", `null`, ValueSingle},
		{"array", `[1, 2, 3]`, ValueMultiple},
		{"range", `{"from": 1, "to": 5}`, ValueRange},
		{"object", `{"from": 1, "to": 5, "step": 1}`, ValueSingle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v FilterValue
			require.NoError(t, json.Unmarshal([]byte(tt.in), &v))
			assert.Equal(t, tt.kind, v.Kind)
		})
	}
}

func TestFilterValue_KeepsNumberText(t *testing.T) {
	var f Filter
	require.NoError(t, json.Unmarshal([]byte(`{"column":"id","operator":"equals","value":9007199254740993}`), &f))

	assert.Equal(t, OpEquals, f.Operator)
	assert.Equal(t, json.Number("9007199254740993"), f.Value.Single)
}

func TestFilterValue_MarshalRoundTrip(t *testing.T) {
	out, err := json.Marshal(RangeValue(1, 5))
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":1,"to":5}`, string(out))

	out, err = json.Marshal(MultipleValues("a", "b"))
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(out))
}

func TestFilterValue_List(t *testing.T) {
	vs, ok := SingleValue([]interface{}{1, 2}).List()
	assert.True(t, ok)
	assert.Len(t, vs, 2)

	_, ok = SingleValue(1).List()
	assert.False(t, ok)
}

func TestParseOrderBy(t *testing.T) {
	ob, err := ParseOrderBy("name:desc")
	require.NoError(t, err)
	assert.Equal(t, OrderBy{Column: "name", Direction: Desc}, ob)

	ob, err = ParseOrderBy("age")
	require.NoError(t, err)
	assert.Equal(t, "ASC", ob.Direction.SQL())

	_, err = ParseOrderBy("age:sideways")
	assert.Error(t, err)
}

func TestDedupColumns(t *testing.T) {
	assert.Equal(t, []string{"id", "id_2"}, DedupColumns([]string{"id", "id"}))
	assert.Equal(t, []string{"id", "name", "id_2", "id_3"}, DedupColumns([]string{"id", "name", "id", "id"}))
	assert.Equal(t, []string{"id_2", "id", "id_3"}, DedupColumns([]string{"id_2", "id", "id"}))
}

func TestQueryResult_AddColumnKeepsDisplayNames(t *testing.T) {
	r := NewQueryResult()
	n := NewColumnNamer()
	r.AddColumn(n, "id", "INT")
	r.AddColumn(n, "id", "BIGINT")

	assert.Equal(t, []string{"id", "id_2"}, r.Columns)
	assert.Equal(t, []string{"id", "id"}, r.ColumnDisplayNames)
	assert.Equal(t, "BIGINT", r.ColumnTypes["id_2"])
}

func TestQueryResult_ToTableData(t *testing.T) {
	r := NewQueryResult()
	n := NewColumnNamer()
	r.AddColumn(n, "id", "INT")
	r.AddColumn(n, "note", "")
	r.Rows = append(r.Rows,
		map[string]interface{}{"id": int64(1), "note": "a"},
		map[string]interface{}{"id": int64(2)},
	)

	td := r.ToTableData("SELECT 1", 2, 5*time.Millisecond)

	assert.Equal(t, []ColumnInfo{{Name: "id", DataType: "INT"}, {Name: "note", DataType: "UNKNOWN"}}, td.Columns)
	assert.Equal(t, []interface{}{int64(2), nil}, td.Rows[1])
	assert.True(t, td.HasMoreData)
	assert.Equal(t, int64(5), td.ExecutionTime)

	assert.False(t, r.ToTableData("", 3, 0).HasMoreData)
	assert.False(t, r.ToTableData("", 0, 0).HasMoreData, "an unbounded page has nothing more")
}

func TestTableSchema_PrimaryKeys(t *testing.T) {
	s := &TableSchema{Columns: []Column{
		{Name: "tenant", IsPrimaryKey: true},
		{Name: "name"},
		{Name: "id", IsPrimaryKey: true},
	}}
	assert.Equal(t, []string{"tenant", "id"}, s.PrimaryKeys())

	var nilSchema *TableSchema
	assert.Empty(t, nilSchema.PrimaryKeys())
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("dial tcp: refused")

	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"connection", NewConnectionError(MySQL, "h", 3306, cause), IsConnectionError},
		{"not connected", NewNotConnectedError(Ignite, "query"), IsNotConnected},
		{"query", NewQueryError(PostgreSQL, "SELEC", cause), IsQueryError},
		{"unsupported", NewUnsupportedOperationError(Redis, "update", ""), IsUnsupported},
		{"unsupported is a query error", NewUnsupportedOperationError(MSSQL, "MERGE", ""), IsQueryError},
		{"bridge timeout", &BridgeTimeoutError{Attempts: 50, Interval: 100 * time.Millisecond}, IsBridgeTimeout},
		{"protocol", NewProtocolError("short header", cause), IsProtocolError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))

			wrapped := fmt.Errorf("connection c1: %w", WrapError(MySQL, "op", tt.err))
			assert.True(t, tt.check(wrapped), "classification must survive wrapping")
		})
	}
}

func TestNotConnectedError_Message(t *testing.T) {
	assert.Equal(t, "Not connected to Ignite", NewNotConnectedError(Ignite, "query").Error())
}

func TestWrapError_DoesNotDoubleWrap(t *testing.T) {
	first := WrapError(MySQL, "query", errors.New("boom"))
	second := WrapError(MySQL, "outer", first)

	assert.Same(t, first, second)
	assert.Nil(t, WrapError(MySQL, "noop", nil))
}

func TestUnsupportedMetadata_ReturnsEmpty(t *testing.T) {
	var m MetadataReader = UnsupportedMetadata{}

	views, err := m.GetViews(context.Background(), "db", "")
	require.NoError(t, err)
	assert.NotNil(t, views)
	assert.Empty(t, views)

	stats, err := m.GetTableStatistics(context.Background(), "db", "", "t")
	require.NoError(t, err)
	assert.Nil(t, stats.RowCount)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(MySQL)
	assert.ErrorIs(t, err, ErrBuilderNotFound)

	r.Register(Redis, Builders{CRUD: UnsupportedCRUD{DatabaseType: Redis}})
	r.Register(MySQL, Builders{})
	assert.True(t, r.IsRegistered(Redis))
	assert.Equal(t, []DatabaseType{MySQL, Redis}, r.ListRegistered())

	b, err := r.Get(Redis)
	require.NoError(t, err)
	_, err = b.CRUD.BuildInsertQuery("t", "", Row{"a": 1}, nil)
	assert.True(t, IsUnsupported(err))
}
