package sqlbuild

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
	errNoUpdateWhere  = errors.New("Cannot generate WHERE clause")
	errNoDeleteWhere  = errors.New("Cannot generate WHERE clause for DELETE")
)

// IsNoColumnsToUpdate reports whether err is the all-primary-keys update error.
func IsNoColumnsToUpdate(err error) bool {
	return errors.Is(err, errOnlyPrimaryKey)
}

func (b *Builder) mutationTable(table, schema string) string {
	if b.database != "" {
		return b.Dialect.QualifyTable(b.database, schema, table)
	}
	if schema != "" {
		return b.Dialect.QuoteIdentifier(schema) + "." + b.Dialect.QuoteIdentifier(table)
	}
	return b.Dialect.QuoteIdentifier(table)
}

// BuildInsertQuery takes the column order from tableSchema, restricted to the
// keys present in row, so the statement shape never depends on map order.
func (b *Builder) BuildInsertQuery(table, schema string, row adapter.Row, tableSchema *adapter.TableSchema) (string, error) {
	if len(row) == 0 {
		return "", errEmptyRow
	}

	columns := orderedColumns(row, tableSchema)
	if len(columns) == 0 {
		return "", errEmptyRow
	}
	quoted := make([]string, len(columns))
	values := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = b.Dialect.QuoteIdentifier(col)
		values[i] = Literal(b.Dialect, row[col])
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);",
		b.mutationTable(table, schema), strings.Join(quoted, ", "), strings.Join(values, ", ")), nil
}

// BuildUpdateQuery builds SET from UpdatedData and WHERE from OriginalData.
func (b *Builder) BuildUpdateQuery(table, schema string, edited adapter.EditedRow, primaryKeys []string, tableSchema *adapter.TableSchema) (string, error) {
	if len(edited.UpdatedData) == 0 {
		return "", errNoColumns
	}

	isKey := make(map[string]bool, len(primaryKeys))
	for _, pk := range primaryKeys {
		isKey[pk] = true
	}

	var sets []string
	for _, col := range orderedColumns(edited.UpdatedData, tableSchema) {
		if isKey[col] {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", b.Dialect.QuoteIdentifier(col), Literal(b.Dialect, edited.UpdatedData[col])))
	}
	if len(sets) == 0 {
		return "", errOnlyPrimaryKey
	}

	where, err := b.identityPredicate(edited.OriginalData, primaryKeys, "original data")
	if err != nil {
		return "", err
	}
	if where == "" {
		return "", errNoUpdateWhere
	}

	return fmt.Sprintf("UPDATE %s SET %s WHERE %s;",
		b.mutationTable(table, schema), strings.Join(sets, ", "), where), nil
}

// BuildDeleteQuery identifies the row by its primary keys, or by every column
// when none are known.
func (b *Builder) BuildDeleteQuery(table, schema string, row adapter.Row, primaryKeys []string) (string, error) {
	where, err := b.identityPredicate(row, primaryKeys, "row")
	if err != nil {
		return "", err
	}
	if where == "" {
		return "", errNoDeleteWhere
	}

	return fmt.Sprintf("DELETE FROM %s WHERE %s;", b.mutationTable(table, schema), where), nil
}

func (b *Builder) identityPredicate(data adapter.Row, primaryKeys []string, source string) (string, error) {
	keys := primaryKeys
	if len(keys) == 0 {
		keys = sortedKeys(data)
	}

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		val, ok := data[key]
		if !ok {
			return "", fmt.Errorf("Primary key %s not found in %s", key, source)
		}
		parts = append(parts, b.Dialect.QuoteIdentifier(key)+" "+WhereCondition(b.Dialect, val))
	}
	return strings.Join(parts, " AND "), nil
}

// orderedColumns follows the schema's column order and drops keys the schema
// does not know. Without a schema the keys are taken in name order.
func orderedColumns(row adapter.Row, tableSchema *adapter.TableSchema) []string {
	if tableSchema == nil || len(tableSchema.Columns) == 0 {
		return sortedKeys(row)
	}
	columns := make([]string, 0, len(row))
	for _, c := range tableSchema.Columns {
		if _, ok := row[c.Name]; ok {
			columns = append(columns, c.Name)
		}
	}
	return columns
}

func sortedKeys(row adapter.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
