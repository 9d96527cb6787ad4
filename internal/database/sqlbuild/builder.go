package sqlbuild

import (
	"fmt"
	"strings"

	"github.com/redbco/dbgrid/pkg/adapter"
)

// Builder implements the query and CRUD builder contracts for a Dialect.
type Builder struct {
	Dialect Dialect

	// database qualifies mutation targets when set.
	database string
}

// NewBuilder creates a builder for the dialect.
func NewBuilder(d Dialect) *Builder {
	return &Builder{Dialect: d}
}

// InDatabase returns a copy of b whose mutations name database.
func (b *Builder) InDatabase(database string) adapter.CRUDBuilder {
	return &Builder{Dialect: b.Dialect, database: database}
}

var (
	_ adapter.DatabaseScoper       = (*Builder)(nil)
	_ adapter.QueryBuilder         = (*Builder)(nil)
	_ adapter.CRUDBuilder          = (*Builder)(nil)
	_ adapter.DistinctQueryBuilder = (*Builder)(nil)
)

func (b *Builder) QuoteIdentifier(identifier string) string {
	return b.Dialect.QuoteIdentifier(identifier)
}

func (b *Builder) FormatTableName(req adapter.QueryRequest) string {
	return RenderTable(b.Dialect, tableRefFromRequest(req))
}

func (b *Builder) BuildWhereClause(filters []adapter.Filter) (string, error) {
	return RenderWhere(b.Dialect, filters)
}

func (b *Builder) BuildOrderByClause(orderBy []adapter.OrderBy) string {
	orders := make([]Order, len(orderBy))
	for i, o := range orderBy {
		orders[i] = Order{Column: o.Column, Direction: o.Direction}
	}
	return RenderOrderBy(b.Dialect, orders)
}

func (b *Builder) BuildPaginationClause(limit, offset int) string {
	return b.Dialect.LimitSuffix(Pagination{Limit: limit, Offset: offset})
}

func (b *Builder) BuildSelectQuery(req adapter.QueryRequest) (string, error) {
	if strings.TrimSpace(req.Table) == "" {
		return "", fmt.Errorf("%w: table is required", adapter.ErrInvalidQuery)
	}
	return Render(b.Dialect, SelectFromRequest(req))
}

// BuildDistinctQuery lists the distinct values of one column, optionally
// narrowed by a case-insensitive substring search.
func (b *Builder) BuildDistinctQuery(req adapter.DistinctValuesRequest) (string, error) {
	if strings.TrimSpace(req.Table) == "" || strings.TrimSpace(req.Column) == "" {
		return "", fmt.Errorf("%w: table and column are required", adapter.ErrInvalidQuery)
	}

	column := b.Dialect.QuoteIdentifier(req.Column)
	s := Select{
		Distinct: true,
		Columns:  []string{req.Column},
		From:     tableRefFromRequest(adapter.QueryRequest{Database: req.Database, Schema: req.Schema, Table: req.Table}),
		OrderBy:  []Order{{Column: req.Column, Direction: adapter.Asc}},
	}
	if req.SearchTerm != "" {
		term := EscapeString(strings.ToLower(req.SearchTerm))
		s.Raw = append(s.Raw, fmt.Sprintf("LOWER(%s) LIKE '%%%s%%'", column, term))
	}
	if req.Limit > 0 {
		s.Page = &Pagination{Limit: req.Limit}
	}
	return Render(b.Dialect, s)
}
