package ignite

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redbco/dbgrid/internal/bridge"
	"github.com/redbco/dbgrid/pkg/adapter"
	"github.com/redbco/dbgrid/pkg/logger"
)

// Connection implements adapter.Connection for Ignite by proxying every
// operation through the bridge helper.
type Connection struct {
	adapter.UnsupportedMetadata

	manager      *bridge.Manager
	config       adapter.ConnectionConfig
	connectionID string
	connected    int32
	logger       *logger.Logger
}

var _ adapter.Connection = (*Connection)(nil)

// NewConnection creates an unconnected Ignite driver on top of manager. log may be nil.
func NewConnection(manager *bridge.Manager, log *logger.Logger) *Connection {
	return &Connection{manager: manager, logger: log}
}

// Type returns the database type identifier.
func (c *Connection) Type() adapter.DatabaseType {
	return adapter.Ignite
}

// Connect registers the connection with the helper.
func (c *Connection) Connect(ctx context.Context, config adapter.ConnectionConfig) error {
	config = config.WithDefaults()
	if c.manager == nil {
		return adapter.NewConfigurationError(adapter.Ignite, "bridge", "bridge manager is required")
	}

	resp, err := c.manager.Send(ctx, bridge.Request{
		Action:       bridge.ActionConnect,
		ConnectionID: config.ID,
		Host:         config.Host,
		Port:         config.Port,
		Username:     config.Username,
		Password:     config.Password,
	})
	if err != nil {
		return adapter.NewConnectionError(adapter.Ignite, config.Host, config.Port, err)
	}
	if !resp.Success {
		return adapter.NewConnectionError(adapter.Ignite, config.Host, config.Port,
			errors.New(messageOr(resp, "Connection failed")))
	}

	c.config = config
	c.connectionID = config.ID
	atomic.StoreInt32(&c.connected, 1)
	if c.logger != nil {
		c.logger.Debug("Ignite connection %s established to %s", config.ID, config.Address())
	}
	return nil
}

// Disconnect tells the helper to drop the connection. Helper errors are
// logged, not returned. Calling it twice is a no-op.
func (c *Connection) Disconnect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.connected, 1, 0) {
		return nil
	}

	resp, err := c.manager.Send(ctx, bridge.Request{Action: bridge.ActionDisconnect, ConnectionID: c.connectionID})
	switch {
	case err != nil:
		c.logWarn("Failed to send disconnect to bridge for connection %s: %v", c.connectionID, err)
	case !resp.Success:
		c.logWarn("Bridge disconnect returned failure for connection %s", c.connectionID)
	}
	c.connectionID = ""
	return nil
}

// TestConnection asks the helper to open a throwaway connection.
func (c *Connection) TestConnection(ctx context.Context) (bool, error) {
	if err := c.check("test_connection"); err != nil {
		return false, err
	}
	resp, err := c.manager.Send(ctx, bridge.Request{
		Action:   bridge.ActionTest,
		Host:     c.config.Host,
		Port:     c.config.Port,
		Username: c.config.Username,
		Password: c.config.Password,
	})
	if err != nil {
		return false, adapter.WrapError(adapter.Ignite, "test_connection", err)
	}
	return resp.Success, nil
}

// ExecuteQuery runs SQL through the query action, or the SCAN
// pseudo-statement through the scan action.
func (c *Connection) ExecuteQuery(ctx context.Context, statement string) (*adapter.QueryResult, error) {
	if err := c.check("execute_query"); err != nil {
		return nil, err
	}

	start := time.Now()
	req := bridge.Request{Action: bridge.ActionQuery, ConnectionID: c.connectionID, Query: statement}
	fallback := "Query failed"
	if scan, ok := ParseScan(statement); ok {
		req = bridge.Request{
			Action:       bridge.ActionScan,
			ConnectionID: c.connectionID,
			CacheName:    scan.Cache,
			Limit:        bridge.IntPtr(scan.Limit),
			Offset:       bridge.IntPtr(scan.Offset),
		}
		fallback = "Scan failed"
	}
	if c.logger != nil {
		c.logger.Debug("Executing %s: %s", req.Action, statement)
	}

	resp, err := c.manager.Send(ctx, req)
	if err != nil {
		return nil, adapter.WrapError(adapter.Ignite, "execute_query", err)
	}
	if !resp.Success {
		return nil, adapter.NewQueryError(adapter.Ignite, statement, errors.New(messageOr(resp, fallback)))
	}
	if resp.Result == nil {
		return nil, adapter.NewQueryError(adapter.Ignite, statement, errors.New("No result data"))
	}

	result := ResultFromBridge(resp.Result)
	if req.Action == bridge.ActionScan || result.FinalQuery == "" {
		result.FinalQuery = statement
	}
	result.SetElapsed(start)
	return result, nil
}

// ResultFromBridge maps a helper result onto a QueryResult with unique column names.
func ResultFromBridge(r *bridge.Result) *adapter.QueryResult {
	result := adapter.NewQueryResult()
	namer := adapter.NewColumnNamer()

	names := make([]string, len(r.Columns))
	for i, col := range r.Columns {
		names[i] = result.AddColumn(namer, col, "")
	}

	for _, src := range r.Rows {
		row := make(map[string]interface{}, len(names))
		for i, col := range r.Columns {
			row[names[i]] = src[col]
		}
		result.Rows = append(result.Rows, row)
	}

	if r.RowsAffected != nil {
		result.SetRowsAffected(*r.RowsAffected)
	}
	result.FinalQuery = r.FinalQuery
	return result
}

// ExecuteUpdate runs a statement and returns the affected row count.
func (c *Connection) ExecuteUpdate(ctx context.Context, statement string) (int64, error) {
	result, err := c.ExecuteQuery(ctx, statement)
	if err != nil {
		return 0, err
	}
	if result.RowsAffected == nil {
		return 0, nil
	}
	return *result.RowsAffected, nil
}

func (c *Connection) call(ctx context.Context, operation, fallback string, req bridge.Request) (*bridge.Response, error) {
	if err := c.check(operation); err != nil {
		return nil, err
	}
	req.ConnectionID = c.connectionID

	resp, err := c.manager.Send(ctx, req)
	if err != nil {
		return nil, adapter.WrapError(adapter.Ignite, operation, err)
	}
	if !resp.Success {
		return nil, adapter.WrapError(adapter.Ignite, operation, errors.New(messageOr(resp, fallback)))
	}
	return resp, nil
}

func (c *Connection) check(operation string) error {
	if atomic.LoadInt32(&c.connected) == 0 || c.manager == nil {
		return adapter.NewNotConnectedError(adapter.Ignite, operation)
	}
	return nil
}

func messageOr(resp *bridge.Response, fallback string) string {
	if resp.Message != "" {
		return resp.Message
	}
	return fallback
}

func (c *Connection) logWarn(message string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Warn(message, args...)
	}
}

// GetDatabases lists the caches.
func (c *Connection) GetDatabases(ctx context.Context) ([]adapter.Database, error) {
	resp, err := c.call(ctx, "get_databases", "Failed to get caches", bridge.Request{Action: bridge.ActionCaches})
	if err != nil {
		return nil, err
	}
	databases := make([]adapter.Database, 0, len(resp.Caches))
	for _, cache := range resp.Caches {
		databases = append(databases, adapter.Database{Name: cache.Name})
	}
	return databases, nil
}

// GetTables lists the SQL tables of a cache.
func (c *Connection) GetTables(ctx context.Context, database string) ([]adapter.Table, error) {
	resp, err := c.call(ctx, "get_tables", "Failed to get tables", bridge.Request{Action: bridge.ActionTables, CacheName: database})
	if err != nil {
		return nil, err
	}
	tables := make([]adapter.Table, 0, len(resp.Tables))
	for _, t := range resp.Tables {
		tables = append(tables, adapter.Table{Name: t.Name})
	}
	return tables, nil
}

// GetTableSchema describes a table of a cache.
func (c *Connection) GetTableSchema(ctx context.Context, database, table string) (*adapter.TableSchema, error) {
	resp, err := c.call(ctx, "get_table_schema", "Failed to get schema", bridge.Request{
		Action:    bridge.ActionSchema,
		CacheName: database,
		TableName: table,
	})
	if err != nil {
		return nil, err
	}
	if resp.Schema == nil {
		return nil, adapter.WrapError(adapter.Ignite, "get_table_schema", errors.New("No schema data"))
	}
	return SchemaFromBridge(resp.Schema), nil
}

// SchemaFromBridge converts a helper schema. Nullability defaults to true.
func SchemaFromBridge(s *bridge.Schema) *adapter.TableSchema {
	schema := &adapter.TableSchema{
		TableName:   s.TableName,
		Columns:     make([]adapter.Column, 0, len(s.Columns)),
		Indexes:     []adapter.Index{},
		ForeignKeys: []adapter.ForeignKey{},
	}
	for _, col := range s.Columns {
		column := adapter.Column{
			Name:     col.Name,
			DataType: col.DataType,
			Nullable: col.IsNullable == nil || *col.IsNullable,
		}
		if col.IsPrimaryKey != nil {
			column.IsPrimaryKey = *col.IsPrimaryKey
		}
		if col.DefaultValue != nil {
			column.DefaultValue = adapter.StringPtr(fmt.Sprint(col.DefaultValue))
		}
		schema.Columns = append(schema.Columns, column)
	}
	return schema
}

// GetTableData scans one page of a cache. The cache is the database when
// given, otherwise the table.
func (c *Connection) GetTableData(ctx context.Context, database, table string, limit, offset int) (*adapter.QueryResult, error) {
	if err := c.check("get_table_data"); err != nil {
		return nil, err
	}
	cache := database
	if cache == "" {
		cache = table
	}
	statement := Scan{Cache: cache, Limit: limit, Offset: offset}.String()
	return c.ExecuteQuery(ctx, statement)
}
