package ignite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/dbgrid/internal/bridge"
	"github.com/redbco/dbgrid/pkg/adapter"
)

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"Person"`, QuoteIdentifier("Person"))
	assert.Equal(t, `"a""b"`, QuoteIdentifier(`a"b`))
}

func TestDialect(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, `"PUBLIC"."Person"`, d.QualifyTable("cache", "PUBLIC", "Person"))
	assert.Equal(t, `"Person"`, d.QualifyTable("cache", "", "Person"))
	assert.Equal(t, "TRUE", d.BoolLiteral(true))

	qb, err := adapter.GetQueryBuilder(adapter.Ignite)
	require.NoError(t, err)
	query, err := qb.BuildSelectQuery(adapter.QueryRequest{
		Schema:  "PUBLIC",
		Table:   "Person",
		Filters: []adapter.Filter{{Column: "age", Operator: adapter.OpGreaterThan, Value: adapter.SingleValue(30)}},
		Limit:   10,
		Offset:  20,
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "PUBLIC"."Person" WHERE "age" > 30 LIMIT 10 OFFSET 20`, query)
}

func TestParseScan(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Scan
		ok    bool
	}{
		{"bare", "SCAN people", Scan{Cache: "people", Limit: 200, Offset: 0}, true},
		{"limit and offset", "scan people LIMIT 5 OFFSET 10", Scan{Cache: "people", Limit: 5, Offset: 10}, true},
		{"bad numbers", "SCAN people LIMIT x OFFSET -1", Scan{Cache: "people", Limit: 200, Offset: 0}, true},
		{"no cache", "SCAN", Scan{}, false},
		{"sql", "SELECT * FROM t", Scan{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseScan(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "SCAN people LIMIT 5 OFFSET 10", Scan{Cache: "people", Limit: 5, Offset: 10}.String())
}

func TestResultFromBridge(t *testing.T) {
	affected := int64(0)
	result := ResultFromBridge(&bridge.Result{
		Columns:      []string{"id", "name", "id"},
		Rows:         []map[string]interface{}{{"id": 1.0, "name": "Ada"}},
		RowsAffected: &affected,
		FinalQuery:   "SELECT id, name, id FROM t",
	})
	assert.Equal(t, []string{"id", "name", "id_2"}, result.Columns)
	assert.Equal(t, []map[string]interface{}{{"id": 1.0, "name": "Ada", "id_2": 1.0}}, result.Rows)
	assert.Equal(t, "SELECT id, name, id FROM t", result.FinalQuery)
}

func TestSchemaFromBridge(t *testing.T) {
	no, yes := false, true
	schema := SchemaFromBridge(&bridge.Schema{
		TableName: "Person",
		Columns: []bridge.SchemaColumn{
			{Name: "ID", DataType: "Long", IsNullable: &no, IsPrimaryKey: &yes},
			{Name: "NAME", DataType: "String", DefaultValue: "anon"},
		},
	})
	assert.Equal(t, []string{"ID"}, schema.PrimaryKeys())
	assert.False(t, schema.Columns[0].Nullable)
	assert.True(t, schema.Columns[1].Nullable)
	require.NotNil(t, schema.Columns[1].DefaultValue)
	assert.Equal(t, "anon", *schema.Columns[1].DefaultValue)
}

func TestNotConnected(t *testing.T) {
	conn := NewConnection(nil, nil)
	ctx := context.Background()

	_, err := conn.ExecuteQuery(ctx, "SCAN people")
	assert.EqualError(t, err, "Not connected to Ignite")

	_, err = conn.GetDatabases(ctx)
	assert.True(t, adapter.IsNotConnected(err))

	err = conn.Connect(ctx, adapter.ConnectionConfig{ID: "c1", Type: adapter.Ignite, Host: "h"})
	assert.True(t, adapter.IsConfigurationError(err))

	assert.NoError(t, conn.Disconnect(ctx))
}

// fakeHelper answers bridge requests the way the helper does and records them.
type fakeHelper struct {
	mu       sync.Mutex
	requests []bridge.Request
}

func (h *fakeHelper) Handle(ctx context.Context, req bridge.Request) *bridge.Response {
	h.mu.Lock()
	h.requests = append(h.requests, req)
	h.mu.Unlock()

	switch req.Action {
	case bridge.ActionConnect, bridge.ActionDisconnect:
		if req.Password == "wrong" {
			return bridge.Fail("Authentication failed")
		}
		return bridge.OK("Connected to Ignite")
	case bridge.ActionTest:
		return bridge.OK("Connected successfully. Found 1 caches.")
	case bridge.ActionCaches:
		return &bridge.Response{Success: true, Caches: []bridge.NamedItem{{Name: "people", Type: "cache"}}}
	case bridge.ActionTables:
		return &bridge.Response{Success: true, Tables: []bridge.NamedItem{{Name: "Person", Type: "table"}}}
	case bridge.ActionSchema:
		yes := true
		return &bridge.Response{Success: true, Schema: &bridge.Schema{
			TableName: req.TableName,
			Columns:   []bridge.SchemaColumn{{Name: "ID", DataType: "Long", IsPrimaryKey: &yes}},
		}}
	case bridge.ActionScan:
		return &bridge.Response{Success: true, Result: &bridge.Result{
			Columns: []string{"_key", "_val"},
			Rows:    []map[string]interface{}{{"_key": 1, "_val": "Ada"}},
		}}
	case bridge.ActionQuery:
		if req.Query == "SELECT broken" {
			return bridge.Fail("")
		}
		affected := int64(3)
		return &bridge.Response{Success: true, Result: &bridge.Result{
			Columns:      []string{},
			Rows:         []map[string]interface{}{},
			RowsAffected: &affected,
			FinalQuery:   req.Query,
		}}
	}
	return nil
}

func (h *fakeHelper) last() bridge.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requests[len(h.requests)-1]
}

func newManager(t *testing.T, handler bridge.Handler) *bridge.Manager {
	t.Helper()
	dir, err := os.MkdirTemp("", "dbgrid")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "ignite.sock")

	server := &bridge.Server{Handler: handler, ShutdownDelay: 10 * time.Millisecond}
	require.NoError(t, server.Listen(path))
	go server.Serve(context.Background())
	t.Cleanup(func() { server.Close() })

	return bridge.NewManager(bridge.Options{
		PipePath: path,
		Spawner: func(ctx context.Context, pipePath string) (bridge.Process, error) {
			t.Errorf("unexpected spawn")
			return nil, errors.New("unexpected spawn")
		},
	})
}

func TestConnectionThroughBridge(t *testing.T) {
	helper := &fakeHelper{}
	conn := NewConnection(newManager(t, helper), nil)
	ctx := context.Background()

	require.NoError(t, conn.Connect(ctx, adapter.ConnectionConfig{ID: "c1", Type: adapter.Ignite, Host: "ignite.local"}))
	connect := helper.last()
	assert.Equal(t, bridge.ActionConnect, connect.Action)
	assert.Equal(t, "c1", connect.ConnectionID)
	assert.Equal(t, 10800, connect.Port)

	ok, err := conn.TestConnection(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	databases, err := conn.GetDatabases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []adapter.Database{{Name: "people"}}, databases)

	tables, err := conn.GetTables(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, []adapter.Table{{Name: "Person"}}, tables)
	assert.Equal(t, "people", helper.last().CacheName)

	schema, err := conn.GetTableSchema(ctx, "people", "Person")
	require.NoError(t, err)
	assert.Equal(t, []string{"ID"}, schema.PrimaryKeys())

	result, err := conn.ExecuteQuery(ctx, "SCAN people LIMIT 5")
	require.NoError(t, err)
	scan := helper.last()
	assert.Equal(t, bridge.ActionScan, scan.Action)
	require.NotNil(t, scan.Limit)
	assert.Equal(t, 5, *scan.Limit)
	assert.Equal(t, 0, *scan.Offset)
	assert.Equal(t, []string{"_key", "_val"}, result.Columns)
	assert.Equal(t, 1.0, result.Rows[0]["_key"])
	assert.Equal(t, "SCAN people LIMIT 5", result.FinalQuery)

	data, err := conn.GetTableData(ctx, "", "people", 50, 100)
	require.NoError(t, err)
	assert.Equal(t, "SCAN people LIMIT 50 OFFSET 100", data.FinalQuery)

	n, err := conn.ExecuteUpdate(ctx, `DELETE FROM "Person"`)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = conn.ExecuteQuery(ctx, "SELECT broken")
	require.Error(t, err)
	assert.True(t, adapter.IsQueryError(err))
	assert.Contains(t, err.Error(), "Query failed")

	require.NoError(t, conn.Disconnect(ctx))
	assert.Equal(t, bridge.ActionDisconnect, helper.last().Action)
	assert.Equal(t, "c1", helper.last().ConnectionID)

	_, err = conn.GetDatabases(ctx)
	assert.True(t, adapter.IsNotConnected(err))
	require.NoError(t, conn.Disconnect(ctx))
}

func TestConnectFailure(t *testing.T) {
	conn := NewConnection(newManager(t, &fakeHelper{}), nil)
	err := conn.Connect(context.Background(), adapter.ConnectionConfig{ID: "c1", Type: adapter.Ignite, Host: "h", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, adapter.IsConnectionError(err))
	assert.Contains(t, err.Error(), "Authentication failed")
}
