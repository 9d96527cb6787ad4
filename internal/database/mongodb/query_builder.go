package mongodb

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/redbco/dbgrid/pkg/adapter"
)

var (
	errEmptyDocument  = errors.New("Cannot insert empty row")
	errNoColumns      = errors.New("Cannot update with no columns")
	errOnlyPrimaryKey = errors.New("No columns to update (all are primary keys)")
	errNoDeleteFilter = errors.New("Cannot generate WHERE clause for DELETE")
)

// QueryBuilder renders requests as the JSON envelope ExecuteQuery accepts.
// The SQL clause methods have no MongoDB meaning and return neutral values.
type QueryBuilder struct {
	// database is written into mutation envelopes when set.
	database string
}

var (
	_ adapter.QueryBuilder   = QueryBuilder{}
	_ adapter.CRUDBuilder    = QueryBuilder{}
	_ adapter.DatabaseScoper = QueryBuilder{}
)

// NewQueryBuilder returns the MongoDB query and CRUD builder.
func NewQueryBuilder() QueryBuilder {
	return QueryBuilder{}
}

// InDatabase returns a builder whose mutation envelopes target database.
func (QueryBuilder) InDatabase(database string) adapter.CRUDBuilder {
	return QueryBuilder{database: database}
}

// target starts a mutation envelope for collection.
func (b QueryBuilder) target(collection, operation string) bson.D {
	doc := bson.D{
		{Key: "collection", Value: collection},
		{Key: "operation", Value: operation},
	}
	if b.database != "" {
		doc = append(doc, bson.E{Key: "db", Value: b.database})
	}
	return doc
}

func (QueryBuilder) QuoteIdentifier(identifier string) string { return identifier }

func (QueryBuilder) FormatTableName(req adapter.QueryRequest) string { return req.Table }

func (QueryBuilder) BuildWhereClause(filters []adapter.Filter) (string, error) { return "{}", nil }

func (QueryBuilder) BuildOrderByClause(orderBy []adapter.OrderBy) string { return "{}" }

func (QueryBuilder) BuildPaginationClause(limit, offset int) string { return "" }

// BuildSelectQuery emits a find envelope with the translated filter, limit,
// skip, and sort.
func (QueryBuilder) BuildSelectQuery(req adapter.QueryRequest) (string, error) {
	if strings.TrimSpace(req.Table) == "" {
		return "", fmt.Errorf("%w: collection is required", adapter.ErrInvalidQuery)
	}

	doc := bson.D{
		{Key: "collection", Value: req.Table},
		{Key: "operation", Value: "find"},
	}
	if req.Database != "" {
		doc = append(doc, bson.E{Key: "db", Value: req.Database})
	}

	opts := bson.D{
		{Key: "limit", Value: int64(req.Limit)},
		{Key: "skip", Value: int64(req.Offset)},
	}
	if len(req.OrderBy) > 0 {
		opts = append(opts, bson.E{Key: "sort", Value: BuildSort(req.OrderBy)})
	}
	doc = append(doc,
		bson.E{Key: "query", Value: BuildFilter(req.Filters)},
		bson.E{Key: "options", Value: opts},
	)
	return marshalEnvelope(doc)
}

// BuildFilter translates filters into a query document. Filters whose value
// shape does not fit the operator are skipped.
func BuildFilter(filters []adapter.Filter) bson.D {
	doc := bson.D{}
	for _, f := range filters {
		cond, ok := filterCondition(f)
		if !ok {
			continue
		}
		doc = append(doc, bson.E{Key: f.Column, Value: cond})
	}
	return doc
}

func filterCondition(f adapter.Filter) (interface{}, bool) {
	single := f.Value.Kind == adapter.ValueSingle
	value := normalizeValue(f.Value.Single)

	switch f.Operator {
	case adapter.OpEquals:
		return value, single
	case adapter.OpNotEquals:
		return bson.D{{Key: "$ne", Value: value}}, single
	case adapter.OpGreaterThan:
		return bson.D{{Key: "$gt", Value: value}}, single
	case adapter.OpGreaterThanOrEqual:
		return bson.D{{Key: "$gte", Value: value}}, single
	case adapter.OpLessThan:
		return bson.D{{Key: "$lt", Value: value}}, single
	case adapter.OpLessThanOrEqual:
		return bson.D{{Key: "$lte", Value: value}}, single
	case adapter.OpIn, adapter.OpNotIn:
		list, ok := f.Value.List()
		if !ok {
			return nil, false
		}
		op := "$in"
		if f.Operator == adapter.OpNotIn {
			op = "$nin"
		}
		return bson.D{{Key: op, Value: normalizeValue(list)}}, true
	case adapter.OpLike, adapter.OpNotLike:
		pattern, ok := f.Value.Single.(string)
		if !single || !ok {
			return nil, false
		}
		regex := bson.D{{Key: "$regex", Value: LikeToRegex(pattern)}, {Key: "$options", Value: "i"}}
		if f.Operator == adapter.OpNotLike {
			return bson.D{{Key: "$not", Value: regex}}, true
		}
		return regex, true
	case adapter.OpBetween:
		if f.Value.Kind != adapter.ValueRange {
			return nil, false
		}
		return bson.D{
			{Key: "$gte", Value: normalizeValue(f.Value.From)},
			{Key: "$lte", Value: normalizeValue(f.Value.To)},
		}, true
	case adapter.OpIsNull:
		return bson.D{{Key: "$eq", Value: nil}}, true
	case adapter.OpIsNotNull:
		return bson.D{{Key: "$ne", Value: nil}}, true
	default:
		return nil, false
	}
}

// LikeToRegex turns a SQL LIKE pattern into a regular expression: % matches
// any run of characters and _ a single one.
func LikeToRegex(pattern string) string {
	return strings.NewReplacer("%", ".*", "_", ".").Replace(pattern)
}

// BuildSort maps sort keys to 1 (ascending) or -1 (descending).
func BuildSort(orderBy []adapter.OrderBy) bson.D {
	sort := make(bson.D, 0, len(orderBy))
	for _, o := range orderBy {
		dir := int32(1)
		if o.Direction.SQL() == "DESC" {
			dir = -1
		}
		sort = append(sort, bson.E{Key: o.Column, Value: dir})
	}
	return sort
}

// BuildInsertQuery emits an insertOne envelope. Known columns come first in
// schema order, then any other keys by name.
func (b QueryBuilder) BuildInsertQuery(table, schema string, row adapter.Row, tableSchema *adapter.TableSchema) (string, error) {
	if len(row) == 0 {
		return "", errEmptyDocument
	}

	document := make(bson.D, 0, len(row))
	for _, key := range documentKeys(row, tableSchema) {
		document = append(document, bson.E{Key: key, Value: identityValue(key, row[key])})
	}
	return marshalEnvelope(append(b.target(table, "insertOne"),
		bson.E{Key: "document", Value: document},
	))
}

// BuildUpdateQuery emits an updateOne envelope that $sets the changed fields
// on the document identified by its original key values.
func (b QueryBuilder) BuildUpdateQuery(table, schema string, edited adapter.EditedRow, primaryKeys []string, tableSchema *adapter.TableSchema) (string, error) {
	if len(edited.UpdatedData) == 0 {
		return "", errNoColumns
	}

	keys := identityKeys(edited.OriginalData, primaryKeys)
	set := bson.D{}
	for _, key := range documentKeys(edited.UpdatedData, tableSchema) {
		if slices.Contains(keys, key) {
			continue
		}
		set = append(set, bson.E{Key: key, Value: normalizeValue(edited.UpdatedData[key])})
	}
	if len(set) == 0 {
		return "", errOnlyPrimaryKey
	}

	filter, err := identityFilter(edited.OriginalData, keys, "original data")
	if err != nil {
		return "", err
	}
	return marshalEnvelope(append(b.target(table, "updateOne"),
		bson.E{Key: "filter", Value: filter},
		bson.E{Key: "update", Value: bson.D{{Key: "$set", Value: set}}},
	))
}

// BuildDeleteQuery emits a deleteOne envelope.
func (b QueryBuilder) BuildDeleteQuery(table, schema string, row adapter.Row, primaryKeys []string) (string, error) {
	filter, err := identityFilter(row, identityKeys(row, primaryKeys), "row")
	if err != nil {
		return "", err
	}
	if len(filter) == 0 {
		return "", errNoDeleteFilter
	}
	return marshalEnvelope(append(b.target(table, "deleteOne"),
		bson.E{Key: "filter", Value: filter},
	))
}

// identityKeys picks the fields identifying a document: the primary keys,
// else _id, else every field by name.
func identityKeys(data adapter.Row, primaryKeys []string) []string {
	if len(primaryKeys) > 0 {
		return primaryKeys
	}
	if _, ok := data["_id"]; ok {
		return []string{"_id"}
	}
	return slices.Sorted(maps.Keys(data))
}

func identityFilter(data adapter.Row, keys []string, source string) (bson.D, error) {
	filter := make(bson.D, 0, len(keys))
	for _, key := range keys {
		val, ok := data[key]
		if !ok {
			return nil, fmt.Errorf("Primary key %s not found in %s", key, source)
		}
		filter = append(filter, bson.E{Key: key, Value: identityValue(key, val)})
	}
	return filter, nil
}

// identityValue restores ObjectIDs that were rendered as hex for display.
func identityValue(key string, value interface{}) interface{} {
	if s, ok := value.(string); ok && key == "_id" {
		if id, err := bson.ObjectIDFromHex(s); err == nil {
			return id
		}
	}
	return normalizeValue(value)
}

func documentKeys(row adapter.Row, tableSchema *adapter.TableSchema) []string {
	keys := make([]string, 0, len(row))
	known := make(map[string]bool)
	if tableSchema != nil {
		for _, c := range tableSchema.Columns {
			if _, ok := row[c.Name]; ok {
				keys = append(keys, c.Name)
				known[c.Name] = true
			}
		}
	}
	for _, k := range slices.Sorted(maps.Keys(row)) {
		if !known[k] {
			keys = append(keys, k)
		}
	}
	return keys
}

func marshalEnvelope(doc bson.D) (string, error) {
	out, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return "", fmt.Errorf("Failed to serialize MongoDB query: %w", err)
	}
	return string(out), nil
}
