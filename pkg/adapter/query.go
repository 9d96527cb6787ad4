package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// QueryRequest is a generic select/filter/sort/paginate request against one table.
type QueryRequest struct {
	Type     DatabaseType `json:"db_type"`
	Database string       `json:"database,omitempty"`
	Schema   string       `json:"schema,omitempty"`
	Table    string       `json:"table"`
	Limit    int          `json:"limit"`
	Offset   int          `json:"offset"`
	Filters  []Filter     `json:"filters,omitempty"`
	OrderBy  []OrderBy    `json:"order_by,omitempty"`
}

// FilterOperator is the comparison a Filter applies.
type FilterOperator string

const (
	OpEquals             FilterOperator = "equals"
	OpNotEquals          FilterOperator = "not_equals"
	OpIn                 FilterOperator = "in"
	OpNotIn              FilterOperator = "not_in"
	OpLike               FilterOperator = "like"
	OpNotLike            FilterOperator = "not_like"
	OpGreaterThan        FilterOperator = "greater_than"
	OpGreaterThanOrEqual FilterOperator = "greater_than_or_equal"
	OpLessThan           FilterOperator = "less_than"
	OpLessThanOrEqual    FilterOperator = "less_than_or_equal"
	OpBetween            FilterOperator = "between"
	OpIsNull             FilterOperator = "is_null"
	OpIsNotNull          FilterOperator = "is_not_null"
)

var operatorNames = map[FilterOperator]string{
	OpEquals:             "Equals",
	OpNotEquals:          "NotEquals",
	OpIn:                 "In",
	OpNotIn:              "NotIn",
	OpLike:               "Like",
	OpNotLike:            "NotLike",
	OpGreaterThan:        "GreaterThan",
	OpGreaterThanOrEqual: "GreaterThanOrEqual",
	OpLessThan:           "LessThan",
	OpLessThanOrEqual:    "LessThanOrEqual",
	OpBetween:            "Between",
	OpIsNull:             "IsNull",
	OpIsNotNull:          "IsNotNull",
}

// Name returns the operator's display name used in error messages.
func (op FilterOperator) Name() string {
	if n, ok := operatorNames[op]; ok {
		return n
	}
	return string(op)
}

// Valid reports whether op is a known operator.
func (op FilterOperator) Valid() bool {
	_, ok := operatorNames[op]
	return ok
}

// FilterValueKind distinguishes the three shapes a filter value can take.
type FilterValueKind int

const (
	ValueSingle FilterValueKind = iota
	ValueMultiple
	ValueRange
)

func (k FilterValueKind) String() string {
	switch k {
	case ValueSingle:
		return "single"
	case ValueMultiple:
		return "multiple"
	case ValueRange:
		return "range"
	default:
		return "unknown"
	}
}

// FilterValue is a single value, a list of values, or a {from, to} range.
// On the wire it is untagged: a JSON array decodes as Multiple, an object with
// exactly the keys from and to decodes as Range, anything else as Single.
type FilterValue struct {
	Kind     FilterValueKind
	Single   interface{}
	Multiple []interface{}
	From     interface{}
	To       interface{}
}

// SingleValue builds a Single filter value.
func SingleValue(v interface{}) FilterValue {
	return FilterValue{Kind: ValueSingle, Single: v}
}

// MultipleValues builds a Multiple filter value.
func MultipleValues(vs ...interface{}) FilterValue {
	return FilterValue{Kind: ValueMultiple, Multiple: vs}
}

// RangeValue builds a Range filter value.
func RangeValue(from, to interface{}) FilterValue {
	return FilterValue{Kind: ValueRange, From: from, To: to}
}

// List returns the values of a Multiple, or of a Single that holds an array.
func (v FilterValue) List() ([]interface{}, bool) {
	switch v.Kind {
	case ValueMultiple:
		return v.Multiple, true
	case ValueSingle:
		if arr, ok := v.Single.([]interface{}); ok {
			return arr, true
		}
	}
	return nil, false
}

// MarshalJSON writes the untagged form.
func (v FilterValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueMultiple:
		if v.Multiple == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Multiple)
	case ValueRange:
		return json.Marshal(map[string]interface{}{"from": v.From, "to": v.To})
	default:
		return json.Marshal(v.Single)
	}
}

// UnmarshalJSON reads the untagged form. Numbers are kept as json.Number so
// that large integers survive literal formatting unchanged.
func (v *FilterValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	switch t := raw.(type) {
	case []interface{}:
		*v = FilterValue{Kind: ValueMultiple, Multiple: t}
	case map[string]interface{}:
		from, hasFrom := t["from"]
		to, hasTo := t["to"]
		if hasFrom && hasTo && len(t) == 2 {
			*v = FilterValue{Kind: ValueRange, From: from, To: to}
		} else {
			*v = FilterValue{Kind: ValueSingle, Single: t}
		}
	default:
		*v = FilterValue{Kind: ValueSingle, Single: t}
	}
	return nil
}

// Filter is one predicate of a QueryRequest.
type Filter struct {
	Column   string         `json:"column"`
	Operator FilterOperator `json:"operator"`
	Value    FilterValue    `json:"value"`
}

// SortDirection is asc or desc.
type SortDirection string

const (
	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

// SQL returns ASC or DESC.
func (d SortDirection) SQL() string {
	if strings.EqualFold(string(d), string(Desc)) {
		return "DESC"
	}
	return "ASC"
}

// OrderBy is one sort key.
type OrderBy struct {
	Column    string        `json:"column"`
	Direction SortDirection `json:"direction"`
}

// ParseOrderBy reads "col" or "col:asc|desc".
func ParseOrderBy(s string) (OrderBy, error) {
	col, dir, found := strings.Cut(s, ":")
	col = strings.TrimSpace(col)
	if col == "" {
		return OrderBy{}, fmt.Errorf("empty order column in %q", s)
	}
	if !found {
		return OrderBy{Column: col, Direction: Asc}, nil
	}
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "asc":
		return OrderBy{Column: col, Direction: Asc}, nil
	case "desc":
		return OrderBy{Column: col, Direction: Desc}, nil
	default:
		return OrderBy{}, fmt.Errorf("unknown sort direction %q", dir)
	}
}

// DistinctValuesRequest asks for the distinct values of one column.
type DistinctValuesRequest struct {
	Database   string `json:"database,omitempty"`
	Schema     string `json:"schema,omitempty"`
	Table      string `json:"table"`
	Column     string `json:"column"`
	SearchTerm string `json:"search_term,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// DistinctValuesResponse carries the distinct values rendered as strings.
type DistinctValuesResponse struct {
	Values        []string `json:"values"`
	TotalCount    int      `json:"total_count"`
	ExecutionTime int64    `json:"execution_time"`
	QueryUsed     string   `json:"query_used"`
}
