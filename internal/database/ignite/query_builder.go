package ignite

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/redbco/dbgrid/internal/database/sqlbuild"
	"github.com/redbco/dbgrid/pkg/adapter"
)

// QuoteIdentifier wraps name in double quotes, doubling embedded quotes.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Dialect is the Ignite SQL spelling. Tables are qualified by schema only;
// the cache a table lives in is not part of its SQL name.
type Dialect struct{}

func (Dialect) Type() adapter.DatabaseType { return adapter.Ignite }

func (Dialect) QuoteIdentifier(name string) string { return QuoteIdentifier(name) }

func (Dialect) BoolLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (Dialect) QualifyTable(database, schema, table string) string {
	if schema != "" {
		return QuoteIdentifier(schema) + "." + QuoteIdentifier(table)
	}
	return QuoteIdentifier(table)
}

func (Dialect) LimitPrefix(sqlbuild.Pagination) string { return "" }

func (Dialect) LimitSuffix(p sqlbuild.Pagination) string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", p.Limit, p.Offset)
}

func (Dialect) DefaultOrderBy() string { return "" }

// NewQueryBuilder returns the query and CRUD builder for Ignite SQL.
func NewQueryBuilder() *sqlbuild.Builder {
	return sqlbuild.NewBuilder(Dialect{})
}

// Scan defaults.
const (
	DefaultScanLimit  = 200
	DefaultScanOffset = 0
)

// Scan is the parsed form of "SCAN <cache> [LIMIT n] [OFFSET m]".
type Scan struct {
	Cache  string
	Limit  int
	Offset int
}

// ParseScan recognizes the SCAN pseudo-statement. Unparseable LIMIT and
// OFFSET values fall back to their defaults.
func ParseScan(statement string) (Scan, bool) {
	parts := strings.Fields(statement)
	if len(parts) < 2 || !strings.EqualFold(parts[0], "SCAN") {
		return Scan{}, false
	}

	scan := Scan{Cache: parts[1], Limit: DefaultScanLimit, Offset: DefaultScanOffset}
	for i := 2; i+1 < len(parts); i++ {
		switch strings.ToUpper(parts[i]) {
		case "LIMIT":
			if n, err := strconv.Atoi(parts[i+1]); err == nil && n >= 0 {
				scan.Limit = n
			}
		case "OFFSET":
			if n, err := strconv.Atoi(parts[i+1]); err == nil && n >= 0 {
				scan.Offset = n
			}
		}
	}
	return scan, true
}

// String renders the statement ParseScan accepts.
func (s Scan) String() string {
	return fmt.Sprintf("SCAN %s LIMIT %d OFFSET %d", s.Cache, s.Limit, s.Offset)
}
