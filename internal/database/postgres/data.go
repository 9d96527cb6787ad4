package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/redbco/dbgrid/pkg/adapter"
)

// ExecuteQuery runs a statement. When it produces no fields the command tag's
// affected row count is reported instead.
func (c *Connection) ExecuteQuery(ctx context.Context, statement string) (*adapter.QueryResult, error) {
	pool, err := c.handle("execute_query")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if c.logger != nil {
		c.logger.Debug("Executing query: %s", statement)
	}

	rows, err := pool.Query(ctx, statement)
	if err != nil {
		return nil, adapter.NewQueryError(adapter.PostgreSQL, statement, err)
	}
	defer rows.Close()

	result, err := collectRows(rows)
	if err != nil {
		return nil, adapter.NewQueryError(adapter.PostgreSQL, statement, err)
	}
	result.SetElapsed(start)
	return result, nil
}

func collectRows(rows pgx.Rows) (*adapter.QueryResult, error) {
	fields := rows.FieldDescriptions()
	result := adapter.NewQueryResult()
	namer := adapter.NewColumnNamer()

	typeNames := make([]string, len(fields))
	typeMap := rows.Conn().TypeMap()
	for i, fd := range fields {
		if t, ok := typeMap.TypeForOID(fd.DataTypeOID); ok {
			typeNames[i] = t.Name
		} else {
			typeNames[i] = fmt.Sprintf("oid:%d", fd.DataTypeOID)
		}
		result.AddColumn(namer, fd.Name, typeNames[i])
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("error reading row values: %w", err)
		}
		row := make(map[string]interface{}, len(values))
		for i, col := range result.Columns {
			row[col] = ConvertValue(typeNames[i], values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	if len(fields) == 0 {
		result.SetRowsAffected(rows.CommandTag().RowsAffected())
	}
	return result, nil
}

// ExecuteUpdate runs a write statement and returns the affected row count.
func (c *Connection) ExecuteUpdate(ctx context.Context, statement string) (int64, error) {
	pool, err := c.handle("execute_update")
	if err != nil {
		return 0, err
	}

	tag, err := pool.Exec(ctx, statement)
	if err != nil {
		return 0, adapter.NewQueryError(adapter.PostgreSQL, statement, err)
	}
	return tag.RowsAffected(), nil
}

// GetTableData fetches one page of a table. table may be schema-qualified.
func (c *Connection) GetTableData(ctx context.Context, database, table string, limit, offset int) (*adapter.QueryResult, error) {
	if _, err := c.handle("get_table_data"); err != nil {
		return nil, err
	}

	query := tableDataQuery(table, limit, offset)
	result, err := c.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	result.FinalQuery = query
	return result, nil
}

func tableDataQuery(table string, limit, offset int) string {
	schema, name := SplitTableName(table)
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d OFFSET %d",
		Dialect{}.QualifyTable("", schema, name), limit, offset)
}
