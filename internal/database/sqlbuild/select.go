package sqlbuild

import (
	"fmt"
	"strings"

	"github.com/redbco/dbgrid/pkg/adapter"
)

// SubqueryMarker wraps a raw statement in the table field of a QueryRequest:
// DBGridQuery(SELECT ...) is rendered as a derived table instead of an identifier.
const SubqueryMarker = "DBGridQuery("

// SubqueryAlias names the derived table produced from a wrapped statement.
const SubqueryAlias = "__query"

// UnwrapSubquery returns the raw statement carried by the table field, if any.
func UnwrapSubquery(table string) (string, bool) {
	trimmed := strings.TrimSpace(table)
	if strings.HasPrefix(trimmed, SubqueryMarker) && strings.HasSuffix(trimmed, ")") {
		return trimmed[len(SubqueryMarker) : len(trimmed)-1], true
	}
	return "", false
}

// WrapSubquery is the inverse of UnwrapSubquery.
func WrapSubquery(statement string) string {
	return SubqueryMarker + statement + ")"
}

// TableRef is either a possibly qualified table or a raw subquery.
type TableRef struct {
	Database string
	Schema   string
	Table    string
	Subquery string
}

// Order is one rendered sort key.
type Order struct {
	Column    string
	Direction adapter.SortDirection
}

// Select is the dialect-neutral form of a single SELECT statement.
type Select struct {
	Distinct bool
	Columns  []string // nil means *
	From     TableRef
	Where    []adapter.Filter
	// Raw predicates are already rendered and are ANDed after Where.
	Raw     []string
	OrderBy []Order
	Page    *Pagination
}

// SelectFromRequest maps a QueryRequest onto a Select.
func SelectFromRequest(req adapter.QueryRequest) Select {
	s := Select{
		From:  tableRefFromRequest(req),
		Where: req.Filters,
		Page:  &Pagination{Limit: req.Limit, Offset: req.Offset},
	}
	for _, o := range req.OrderBy {
		s.OrderBy = append(s.OrderBy, Order{Column: o.Column, Direction: o.Direction})
	}
	return s
}

func tableRefFromRequest(req adapter.QueryRequest) TableRef {
	if sub, ok := UnwrapSubquery(req.Table); ok {
		return TableRef{Subquery: sub}
	}
	return TableRef{Database: req.Database, Schema: req.Schema, Table: req.Table}
}

// RenderTable renders a TableRef.
func RenderTable(d Dialect, t TableRef) string {
	if t.Subquery != "" {
		return fmt.Sprintf("(%s) AS %s", t.Subquery, SubqueryAlias)
	}
	return d.QualifyTable(t.Database, t.Schema, t.Table)
}

// RenderWhere renders the filters and raw predicates joined with AND.
func RenderWhere(d Dialect, filters []adapter.Filter, raw ...string) (string, error) {
	parts := make([]string, 0, len(filters)+len(raw))
	for _, f := range filters {
		cond, err := RenderFilter(d, f)
		if err != nil {
			return "", err
		}
		parts = append(parts, cond)
	}
	parts = append(parts, raw...)
	return strings.Join(parts, " AND "), nil
}

// RenderOrderBy renders the sort keys without the ORDER BY keyword.
func RenderOrderBy(d Dialect, orders []Order) string {
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		parts = append(parts, d.QuoteIdentifier(o.Column)+" "+o.Direction.SQL())
	}
	return strings.Join(parts, ", ")
}

// Render produces the statement. Fragments are always emitted in the order
// WHERE, ORDER BY, pagination; empty fragments are omitted.
func Render(d Dialect, s Select) (string, error) {
	var b strings.Builder

	b.WriteString("SELECT ")
	if s.Distinct {
		b.WriteString("DISTINCT ")
	}
	if s.Page != nil {
		b.WriteString(d.LimitPrefix(*s.Page))
	}
	if len(s.Columns) == 0 {
		b.WriteString("*")
	} else {
		cols := make([]string, len(s.Columns))
		for i, c := range s.Columns {
			cols[i] = d.QuoteIdentifier(c)
		}
		b.WriteString(strings.Join(cols, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(RenderTable(d, s.From))

	where, err := RenderWhere(d, s.Where, s.Raw...)
	if err != nil {
		return "", err
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	if order := RenderOrderBy(d, s.OrderBy); order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(order)
	} else if def := d.DefaultOrderBy(); def != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(def)
	}

	if s.Page != nil {
		if tail := d.LimitSuffix(*s.Page); tail != "" {
			b.WriteString(" ")
			b.WriteString(tail)
		}
	}

	return b.String(), nil
}
