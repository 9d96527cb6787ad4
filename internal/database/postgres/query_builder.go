package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/redbco/dbgrid/internal/database/sqlbuild"
	"github.com/redbco/dbgrid/pkg/adapter"
)

// DefaultSchema is used when a table name carries no schema.
const DefaultSchema = "public"

// QuoteIdentifier wraps name in double quotes, doubling embedded quotes.
func QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

// Dialect is the PostgreSQL spelling of identifiers, booleans, and pagination.
type Dialect struct{}

func (Dialect) Type() adapter.DatabaseType { return adapter.PostgreSQL }

func (Dialect) QuoteIdentifier(name string) string { return QuoteIdentifier(name) }

func (Dialect) BoolLiteral(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (Dialect) QualifyTable(database, schema, table string) string {
	parts := make([]string, 0, 3)
	if database != "" {
		parts = append(parts, QuoteIdentifier(database))
	}
	if schema != "" {
		parts = append(parts, QuoteIdentifier(schema))
	}
	parts = append(parts, QuoteIdentifier(table))
	return strings.Join(parts, ".")
}

func (Dialect) LimitPrefix(sqlbuild.Pagination) string { return "" }

func (Dialect) LimitSuffix(p sqlbuild.Pagination) string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit, p.Offset)
}

func (Dialect) DefaultOrderBy() string { return "" }

// NewQueryBuilder returns the query and CRUD builder for PostgreSQL.
func NewQueryBuilder() *sqlbuild.Builder {
	return sqlbuild.NewBuilder(Dialect{})
}

// SplitTableName splits "schema.table" and lowercases both parts. A bare
// name is placed in the public schema.
func SplitTableName(table string) (schema, name string) {
	if i := strings.Index(table, "."); i >= 0 {
		return strings.ToLower(table[:i]), strings.ToLower(table[i+1:])
	}
	return DefaultSchema, strings.ToLower(table)
}
