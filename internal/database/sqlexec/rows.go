// Package sqlexec collects database/sql result sets into adapter results.
package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/redbco/dbgrid/pkg/adapter"
)

// ValueConverter turns one scanned driver value into its result value.
// typeName is the upper-cased DatabaseTypeName of the column.
type ValueConverter func(typeName string, value interface{}) interface{}

// Collect drains rows into a QueryResult. Duplicate column names are made
// unique; the native names are kept as display names.
func Collect(rows *sql.Rows, convert ValueConverter) (*adapter.QueryResult, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("error reading column types: %w", err)
	}

	result := adapter.NewQueryResult()
	namer := adapter.NewColumnNamer()
	typeNames := make([]string, len(columnTypes))
	for i, ct := range columnTypes {
		typeNames[i] = strings.ToUpper(ct.DatabaseTypeName())
		result.AddColumn(namer, ct.Name(), typeNames[i])
	}

	for rows.Next() {
		values := make([]interface{}, len(columnTypes))
		valuePtrs := make([]interface{}, len(columnTypes))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}

		row := make(map[string]interface{}, len(values))
		for i, col := range result.Columns {
			if values[i] == nil {
				row[col] = nil
				continue
			}
			row[col] = convert(typeNames[i], values[i])
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// Query runs statement and collects its rows. Leading result sets without
// columns, such as those from SET or DECLARE batches, are skipped.
func Query(ctx context.Context, db *sql.DB, statement string, convert ValueConverter) (*adapter.QueryResult, error) {
	rows, err := db.QueryContext(ctx, statement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for {
		columns, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("error reading columns: %w", err)
		}
		if len(columns) > 0 || !rows.NextResultSet() {
			break
		}
	}
	return Collect(rows, convert)
}

// Exec runs a statement that returns no rows and reports the affected count.
func Exec(ctx context.Context, db *sql.DB, statement string) (int64, error) {
	res, err := db.ExecContext(ctx, statement)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading affected rows: %w", err)
	}
	return n, nil
}

var rowKeywords = []string{"SELECT", "SHOW", "DESCRIBE", "DESC", "EXPLAIN", "WITH", "VALUES", "TABLE", "CALL", "EXEC", "EXECUTE", "PRAGMA"}

// Clauses that make a DML statement return rows.
var rowClauses = []string{"OUTPUT", "RETURNING"}

// ReturnsRows reports whether a statement is expected to produce a result set.
// Every statement of a batch is considered after its leading comments are
// removed, and DML carrying an OUTPUT or RETURNING clause counts as well.
func ReturnsRows(statement string) bool {
	for _, part := range strings.Split(statement, ";") {
		fields := strings.Fields(strings.TrimLeft(StripLeadingComments(part), "("))
		if len(fields) == 0 {
			continue
		}
		first := strings.ToUpper(fields[0])
		for _, kw := range rowKeywords {
			if first == kw {
				return true
			}
		}
		for i := 1; i < len(fields); i++ {
			if i+1 < len(fields) && strings.HasPrefix(fields[i+1], "=") {
				continue
			}
			word := strings.ToUpper(fields[i])
			for _, clause := range rowClauses {
				if word == clause {
					return true
				}
			}
		}
	}
	return false
}

// StripLeadingComments removes whitespace along with any -- and /* */
// comments that precede the first token of a statement.
func StripLeadingComments(statement string) string {
	s := statement
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		switch {
		case strings.HasPrefix(s, "--"):
			end := strings.IndexByte(s, '\n')
			if end < 0 {
				return ""
			}
			s = s[end+1:]
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s[2:], "*/")
			if end < 0 {
				return ""
			}
			s = s[end+4:]
		default:
			return s
		}
	}
}

// Execute runs a statement of either kind. Statements without a result set
// report rows_affected instead of rows.
func Execute(ctx context.Context, db *sql.DB, statement string, convert ValueConverter) (*adapter.QueryResult, error) {
	if ReturnsRows(statement) {
		return Query(ctx, db, statement, convert)
	}

	n, err := Exec(ctx, db, statement)
	if err != nil {
		return nil, err
	}
	result := adapter.NewQueryResult()
	result.SetRowsAffected(n)
	return result, nil
}
