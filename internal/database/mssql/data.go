package mssql

import (
	"context"
	"fmt"
	"time"

	"github.com/redbco/dbgrid/internal/database/sqlexec"
	"github.com/redbco/dbgrid/pkg/adapter"
)

// ExecuteQuery runs a statement. Statements without a result set are executed
// and report rows_affected.
func (c *Connection) ExecuteQuery(ctx context.Context, statement string) (*adapter.QueryResult, error) {
	db, err := c.handle("execute_query")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if c.logger != nil {
		c.logger.Debug("Executing query: %s", statement)
	}

	result, err := sqlexec.Execute(ctx, db, statement, ConvertValue)
	if err != nil {
		return nil, adapter.NewQueryError(adapter.MSSQL, statement, err)
	}
	result.SetElapsed(start)
	return result, nil
}

// ExecuteUpdate runs a write statement and returns the affected row count.
func (c *Connection) ExecuteUpdate(ctx context.Context, statement string) (int64, error) {
	db, err := c.handle("execute_update")
	if err != nil {
		return 0, err
	}

	n, err := sqlexec.Exec(ctx, db, statement)
	if err != nil {
		return 0, adapter.NewQueryError(adapter.MSSQL, statement, err)
	}
	return n, nil
}

// GetTableData fetches one page of a table. table may be schema-qualified.
func (c *Connection) GetTableData(ctx context.Context, database, table string, limit, offset int) (*adapter.QueryResult, error) {
	if _, err := c.handle("get_table_data"); err != nil {
		return nil, err
	}

	query := tableDataQuery(database, table, limit, offset)
	result, err := c.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	result.FinalQuery = query
	return result, nil
}

func tableDataQuery(database, table string, limit, offset int) string {
	schema, name := SplitTableName(table)
	return fmt.Sprintf("SELECT * FROM %s ORDER BY (SELECT NULL) %s",
		Dialect{}.QualifyTable(database, schema, name), offsetFetch(offset, limit))
}
