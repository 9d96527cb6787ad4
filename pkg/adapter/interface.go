package adapter

import "context"

// Connection is the capability set every engine driver implements. Callers
// never see engine-specific client types.
//
// A Connection is not safe for concurrent use; the pool serializes access
// per connection id.
type Connection interface {
	// Type returns the engine this driver speaks to.
	Type() DatabaseType

	// Connect opens the native client. It must be called before any other operation.
	Connect(ctx context.Context, config ConnectionConfig) error

	// Disconnect releases the native client. Calling it twice is a no-op.
	Disconnect(ctx context.Context) error

	// TestConnection performs a real round trip to the server.
	TestConnection(ctx context.Context) (bool, error)

	// ExecuteQuery runs a read statement and returns its rows.
	ExecuteQuery(ctx context.Context, statement string) (*QueryResult, error)

	// ExecuteUpdate runs a write statement and returns the affected row count.
	ExecuteUpdate(ctx context.Context, statement string) (int64, error)

	GetDatabases(ctx context.Context) ([]Database, error)
	GetTables(ctx context.Context, database string) ([]Table, error)
	GetTableSchema(ctx context.Context, database, table string) (*TableSchema, error)
	GetTableData(ctx context.Context, database, table string, limit, offset int) (*QueryResult, error)

	MetadataReader
}

// MetadataReader covers the optional catalog operations. Engines without a
// concept return empty results rather than errors; see UnsupportedMetadata.
type MetadataReader interface {
	GetViews(ctx context.Context, database, schema string) ([]View, error)
	GetIndexes(ctx context.Context, database, schema string) ([]DbIndex, error)
	GetProcedures(ctx context.Context, database, schema string) ([]Procedure, error)
	GetTriggers(ctx context.Context, database, schema string) ([]Trigger, error)
	GetEvents(ctx context.Context, database, schema string) ([]Event, error)
	GetTableRelationships(ctx context.Context, database, schema, table string) ([]TableRelationship, error)
	GetTableStatistics(ctx context.Context, database, schema, table string) (*TableStatistics, error)
	GetProcedureSource(ctx context.Context, database, schema, name, procType string) (string, error)
}

// QueryBuilder turns a QueryRequest into the statement a driver executes.
type QueryBuilder interface {
	QuoteIdentifier(identifier string) string
	FormatTableName(req QueryRequest) string
	BuildWhereClause(filters []Filter) (string, error)
	BuildOrderByClause(orderBy []OrderBy) string
	BuildPaginationClause(limit, offset int) string
	BuildSelectQuery(req QueryRequest) (string, error)
}

// DistinctQueryBuilder is implemented by builders that can list distinct column values.
type DistinctQueryBuilder interface {
	BuildDistinctQuery(req DistinctValuesRequest) (string, error)
}

// CRUDBuilder turns a row diff into mutation statements.
type CRUDBuilder interface {
	BuildInsertQuery(table, schema string, row Row, tableSchema *TableSchema) (string, error)
	BuildUpdateQuery(table, schema string, edited EditedRow, primaryKeys []string, tableSchema *TableSchema) (string, error)
	BuildDeleteQuery(table, schema string, row Row, primaryKeys []string) (string, error)
}

// DatabaseScoper is implemented by CRUD builders whose statements can name a
// database other than the one the connection opened.
type DatabaseScoper interface {
	InDatabase(database string) CRUDBuilder
}
