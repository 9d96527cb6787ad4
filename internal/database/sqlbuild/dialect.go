// Package sqlbuild renders generic select and mutation requests as SQL.
//
// Requests are first turned into a Select value (table reference, predicates,
// ordering, pagination) and only then rendered by a Dialect, so the
// per-engine differences live in one small interface instead of in every
// statement builder.
package sqlbuild

import (
	"github.com/redbco/dbgrid/pkg/adapter"
)

// Dialect is the identifier, literal, and pagination spelling of one SQL engine.
type Dialect interface {
	Type() adapter.DatabaseType

	// QuoteIdentifier wraps name in the engine's quote characters, doubling
	// any embedded closing quote.
	QuoteIdentifier(name string) string

	// BoolLiteral spells a boolean literal.
	BoolLiteral(b bool) string

	// QualifyTable quotes table and prefixes the optional database and schema.
	QualifyTable(database, schema, table string) string

	// LimitPrefix is inserted between SELECT and the column list (TOP n).
	LimitPrefix(p Pagination) string

	// LimitSuffix is appended after ORDER BY.
	LimitSuffix(p Pagination) string

	// DefaultOrderBy is used when the caller supplied no ordering. An empty
	// string means ORDER BY is omitted.
	DefaultOrderBy() string
}

// Pagination is a limit/offset pair.
type Pagination struct {
	Limit  int
	Offset int
}
