package sqlbuild

import (
	"fmt"
	"strings"

	"github.com/redbco/dbgrid/pkg/adapter"
)

// RenderFilter renders one filter as a predicate. A value whose shape does not
// match the operator is an error, never a panic.
func RenderFilter(d Dialect, f adapter.Filter) (string, error) {
	column := d.QuoteIdentifier(f.Column)

	switch f.Operator {
	case adapter.OpEquals, adapter.OpNotEquals, adapter.OpLike, adapter.OpNotLike,
		adapter.OpGreaterThan, adapter.OpGreaterThanOrEqual, adapter.OpLessThan, adapter.OpLessThanOrEqual:
		if f.Value.Kind != adapter.ValueSingle {
			return "", invalidValue(f.Operator, "single value")
		}
		return fmt.Sprintf("%s %s %s", column, comparison(f.Operator), Literal(d, f.Value.Single)), nil

	case adapter.OpIn, adapter.OpNotIn:
		values, ok := f.Value.List()
		if !ok {
			return "", invalidValue(f.Operator, "multiple values")
		}
		if len(values) == 0 {
			return "", fmt.Errorf("%w: %s operator requires at least one value", adapter.ErrInvalidQuery, f.Operator.Name())
		}
		literals := make([]string, len(values))
		for i, v := range values {
			literals[i] = Literal(d, v)
		}
		keyword := "IN"
		if f.Operator == adapter.OpNotIn {
			keyword = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", column, keyword, strings.Join(literals, ", ")), nil

	case adapter.OpBetween:
		if f.Value.Kind != adapter.ValueRange {
			return "", invalidValue(f.Operator, "range value")
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", column, Literal(d, f.Value.From), Literal(d, f.Value.To)), nil

	case adapter.OpIsNull:
		return column + " IS NULL", nil

	case adapter.OpIsNotNull:
		return column + " IS NOT NULL", nil

	default:
		return "", fmt.Errorf("%w: unknown filter operator %q", adapter.ErrInvalidQuery, f.Operator)
	}
}

func comparison(op adapter.FilterOperator) string {
	switch op {
	case adapter.OpEquals:
		return "="
	case adapter.OpNotEquals:
		return "!="
	case adapter.OpLike:
		return "LIKE"
	case adapter.OpNotLike:
		return "NOT LIKE"
	case adapter.OpGreaterThan:
		return ">"
	case adapter.OpGreaterThanOrEqual:
		return ">="
	case adapter.OpLessThan:
		return "<"
	default:
		return "<="
	}
}

func invalidValue(op adapter.FilterOperator, want string) error {
	return fmt.Errorf("%w: %s operator requires %s", adapter.ErrInvalidQuery, op.Name(), want)
}
