package mssql

import (
	"fmt"
	"strings"

	"github.com/redbco/dbgrid/internal/database/sqlbuild"
	"github.com/redbco/dbgrid/pkg/adapter"
)

// DefaultSchema is used when a table name carries no schema.
const DefaultSchema = "dbo"

// QuoteIdentifier quotes a SQL Server identifier using square brackets
func QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// Dialect is the SQL Server spelling of identifiers, booleans, and pagination.
type Dialect struct{}

func (Dialect) Type() adapter.DatabaseType { return adapter.MSSQL }

func (Dialect) QuoteIdentifier(name string) string { return QuoteIdentifier(name) }

// BoolLiteral spells booleans as BIT values; T-SQL has no TRUE or FALSE literal.
func (Dialect) BoolLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// QualifyTable renders db.schema.t, schema.t, or db.dbo.t. A bare table
// stays unqualified.
func (Dialect) QualifyTable(database, schema, table string) string {
	switch {
	case database != "" && schema != "":
		return QuoteIdentifier(database) + "." + QuoteIdentifier(schema) + "." + QuoteIdentifier(table)
	case schema != "":
		return QuoteIdentifier(schema) + "." + QuoteIdentifier(table)
	case database != "":
		return QuoteIdentifier(database) + "." + DefaultSchema + "." + QuoteIdentifier(table)
	default:
		return QuoteIdentifier(table)
	}
}

// LimitPrefix emits TOP n for first pages only; later pages use OFFSET/FETCH.
func (Dialect) LimitPrefix(p sqlbuild.Pagination) string {
	if p.Offset == 0 && p.Limit > 0 {
		return fmt.Sprintf("TOP %d ", p.Limit)
	}
	return ""
}

func (Dialect) LimitSuffix(p sqlbuild.Pagination) string {
	if p.Offset > 0 {
		return offsetFetch(p.Offset, p.Limit)
	}
	return ""
}

// offsetFetch drops FETCH NEXT for a zero limit, which SQL Server rejects.
func offsetFetch(offset, limit int) string {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		return fmt.Sprintf("OFFSET %d ROWS", offset)
	}
	return fmt.Sprintf("OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, limit)
}

// DefaultOrderBy satisfies OFFSET/FETCH, which requires an ORDER BY.
func (Dialect) DefaultOrderBy() string { return "(SELECT NULL)" }

// NewQueryBuilder returns the query and CRUD builder for SQL Server.
func NewQueryBuilder() *sqlbuild.Builder {
	return sqlbuild.NewBuilder(Dialect{})
}

// SplitTableName splits schema.table, defaulting the schema to dbo.
func SplitTableName(table string) (schema, name string) {
	if i := strings.Index(table, "."); i >= 0 {
		return table[:i], table[i+1:]
	}
	return DefaultSchema, table
}
