package redis

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redbco/dbgrid/pkg/adapter"
)

var (
	errEmptyRow       = errors.New("Cannot insert empty row")
	errNoColumns      = errors.New("Cannot update with no columns")
	errOnlyPrimaryKey = errors.New("No columns to update (all are primary keys)")
	errNoDeleteFilter = errors.New("Cannot generate WHERE clause for DELETE")
)

// QueryBuilder renders requests as Redis commands. Tables map to key
// prefixes and rows to hashes stored under <table>:<pk>.
type QueryBuilder struct{}

var (
	_ adapter.QueryBuilder = QueryBuilder{}
	_ adapter.CRUDBuilder  = QueryBuilder{}
)

// NewQueryBuilder returns the Redis query and CRUD builder.
func NewQueryBuilder() QueryBuilder {
	return QueryBuilder{}
}

func (QueryBuilder) QuoteIdentifier(identifier string) string { return QuoteArg(identifier) }

func (QueryBuilder) FormatTableName(req adapter.QueryRequest) string { return req.Table }

func (QueryBuilder) BuildWhereClause(filters []adapter.Filter) (string, error) { return "", nil }

func (QueryBuilder) BuildOrderByClause(orderBy []adapter.OrderBy) string { return "" }

func (QueryBuilder) BuildPaginationClause(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf("COUNT %d", limit)
}

// BuildSelectQuery scans the keys under the table prefix.
func (QueryBuilder) BuildSelectQuery(req adapter.QueryRequest) (string, error) {
	if strings.TrimSpace(req.Table) == "" {
		return "", fmt.Errorf("%w: table is required", adapter.ErrInvalidQuery)
	}
	return fmt.Sprintf("SCAN 0 MATCH %s", QuoteArg(req.Table+":*")), nil
}

// BuildInsertQuery writes every non-key field of row into the hash.
func (QueryBuilder) BuildInsertQuery(table, schema string, row adapter.Row, tableSchema *adapter.TableSchema) (string, error) {
	if len(row) == 0 {
		return "", errEmptyRow
	}
	keys := tableSchema.PrimaryKeys()
	key, err := hashKey(table, row, keys, "row")
	if err != nil {
		return "", err
	}
	fields := fieldsExcept(row, keys)
	if len(fields) == 0 {
		return "", errEmptyRow
	}
	return hsetCommand(key, row, fields), nil
}

// BuildUpdateQuery writes the changed non-key fields into the hash.
func (QueryBuilder) BuildUpdateQuery(table, schema string, edited adapter.EditedRow, primaryKeys []string, tableSchema *adapter.TableSchema) (string, error) {
	if len(edited.UpdatedData) == 0 {
		return "", errNoColumns
	}
	key, err := hashKey(table, edited.OriginalData, primaryKeys, "original data")
	if err != nil {
		return "", err
	}
	fields := fieldsExcept(edited.UpdatedData, primaryKeys)
	if len(fields) == 0 {
		return "", errOnlyPrimaryKey
	}
	return hsetCommand(key, edited.UpdatedData, fields), nil
}

// BuildDeleteQuery removes the row's non-key fields from the hash.
func (QueryBuilder) BuildDeleteQuery(table, schema string, row adapter.Row, primaryKeys []string) (string, error) {
	if len(row) == 0 {
		return "", errNoDeleteFilter
	}
	key, err := hashKey(table, row, primaryKeys, "row")
	if err != nil {
		return "", err
	}
	fields := fieldsExcept(row, primaryKeys)
	if len(fields) == 0 {
		return "", errNoDeleteFilter
	}

	parts := []string{"HDEL", QuoteArg(key)}
	for _, f := range fields {
		parts = append(parts, QuoteArg(f))
	}
	return strings.Join(parts, " "), nil
}

// hashKey joins the primary key values onto the table prefix. Without
// primary keys the synthetic key column is used.
func hashKey(table string, row adapter.Row, primaryKeys []string, source string) (string, error) {
	if len(primaryKeys) == 0 {
		primaryKeys = []string{"key"}
	}
	parts := make([]string, 0, len(primaryKeys))
	for _, pk := range primaryKeys {
		v, ok := row[pk]
		if !ok || v == nil {
			return "", fmt.Errorf("Primary key %s not found in %s", pk, source)
		}
		parts = append(parts, formatValue(v))
	}
	return table + ":" + strings.Join(parts, ":"), nil
}

func fieldsExcept(row adapter.Row, exclude []string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}
	if len(exclude) == 0 {
		skip["key"] = true
	}
	fields := make([]string, 0, len(row))
	for f := range row {
		if !skip[f] {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)
	return fields
}

func hsetCommand(key string, row adapter.Row, fields []string) string {
	parts := []string{"HSET", QuoteArg(key)}
	for _, f := range fields {
		parts = append(parts, QuoteArg(f), QuoteArg(formatValue(row[f])))
	}
	return strings.Join(parts, " ")
}

func formatValue(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
