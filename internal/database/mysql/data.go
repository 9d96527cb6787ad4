package mysql

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
		return nil, adapter.NewQueryError(adapter.MySQL, statement, err)
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
		return 0, adapter.NewQueryError(adapter.MySQL, statement, err)
	}
	return n, nil
}

// GetTableData fetches one page of a table.
func (c *Connection) GetTableData(ctx context.Context, database, table string, limit, offset int) (*adapter.QueryResult, error) {
	if _, err := c.handle("get_table_data"); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d OFFSET %d",
		Dialect{}.QualifyTable(database, "", table), limit, offset)

	result, err := c.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	result.FinalQuery = query
	return result, nil
}
