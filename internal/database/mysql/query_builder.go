package mysql

import (
	"fmt"
	"strings"

	"github.com/redbco/dbgrid/internal/database/sqlbuild"
	"github.com/redbco/dbgrid/pkg/adapter"
)

// QuoteIdentifier quotes a MySQL identifier using backticks
func QuoteIdentifier(name string) string {
	// Replace any existing backticks with double backticks to escape them
	name = strings.ReplaceAll(name, "`", "``")
	return fmt.Sprintf("`%s`", name)
}

// Dialect is the MySQL spelling of identifiers, booleans, and pagination.
type Dialect struct{}

func (Dialect) Type() adapter.DatabaseType { return adapter.MySQL }

func (Dialect) QuoteIdentifier(name string) string { return QuoteIdentifier(name) }

func (Dialect) BoolLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// QualifyTable ignores schema: MySQL has no level between database and table.
func (Dialect) QualifyTable(database, schema, table string) string {
	if database != "" {
		return QuoteIdentifier(database) + "." + QuoteIdentifier(table)
	}
	return QuoteIdentifier(table)
}

func (Dialect) LimitPrefix(sqlbuild.Pagination) string { return "" }

// LimitSuffix always emits both clauses, even for a zero offset.
func (Dialect) LimitSuffix(p sqlbuild.Pagination) string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit, p.Offset)
}

func (Dialect) DefaultOrderBy() string { return "" }

// NewQueryBuilder returns the query and CRUD builder for MySQL.
func NewQueryBuilder() *sqlbuild.Builder {
	return sqlbuild.NewBuilder(Dialect{})
}
