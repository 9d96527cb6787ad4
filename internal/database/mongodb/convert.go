package mongodb

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/redbco/dbgrid/pkg/adapter"
)

// ConvertValue turns a decoded BSON value into a plain JSON-friendly value.
// Nested documents and arrays are converted recursively.
func ConvertValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case bson.ObjectID:
		return v.Hex()
	case bson.DateTime:
		return v.Time().UTC().Format(time.RFC3339)
	case bson.Timestamp:
		return time.Unix(int64(v.T), 0).UTC().Format(time.RFC3339)
	case bson.Decimal128:
		return v.String()
	case bson.Binary:
		return adapter.BinaryPlaceholder(len(v.Data))
	case bson.Regex:
		return fmt.Sprintf("/%s/%s", v.Pattern, v.Options)
	case bson.JavaScript:
		return string(v)
	case bson.Symbol:
		return string(v)
	case bson.Null, bson.Undefined:
		return nil
	case int32:
		return int64(v)
	case bson.D:
		out := make(map[string]interface{}, len(v))
		for _, e := range v {
			out[e.Key] = ConvertValue(e.Value)
		}
		return out
	case bson.M:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = ConvertValue(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = ConvertValue(item)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = ConvertValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = ConvertValue(item)
		}
		return out
	default:
		return v
	}
}

// KindLabel names the BSON kind of a value for schema inference.
func KindLabel(value interface{}) string {
	switch value.(type) {
	case nil, bson.Null, bson.Undefined:
		return "null"
	case bool:
		return "bool"
	case int32, int64:
		return "int"
	case float64:
		return "double"
	case string:
		return "string"
	case bson.ObjectID:
		return "objectId"
	case bson.DateTime, bson.Timestamp:
		return "date"
	case bson.D, bson.M:
		return "object"
	case bson.A:
		return "array"
	case bson.Binary:
		return "binary"
	case bson.Decimal128:
		return "decimal"
	default:
		return "unknown"
	}
}

// documentsToResult flattens documents into rows. Columns are the union of
// top-level keys in first-seen order, with _id first when present.
func documentsToResult(docs []bson.D) *adapter.QueryResult {
	result := adapter.NewQueryResult()

	seen := make(map[string]bool)
	var columns []string
	hasID := false
	for _, doc := range docs {
		for _, e := range doc {
			if seen[e.Key] {
				continue
			}
			seen[e.Key] = true
			if e.Key == "_id" {
				hasID = true
				continue
			}
			columns = append(columns, e.Key)
		}
	}
	if hasID {
		columns = append([]string{"_id"}, columns...)
	}

	namer := adapter.NewColumnNamer()
	for _, col := range columns {
		result.AddColumn(namer, col, "")
	}

	for _, doc := range docs {
		row := make(map[string]interface{}, len(columns))
		for _, col := range columns {
			row[col] = nil
		}
		for _, e := range doc {
			row[e.Key] = ConvertValue(e.Value)
		}
		result.Rows = append(result.Rows, row)
	}
	return result
}

// inferSchema unions the kind labels seen per top-level field across the
// sampled documents. A field is nullable when some document lacks it or holds
// null. _id is the primary key.
func inferSchema(collection string, docs []bson.D) *adapter.TableSchema {
	type fieldInfo struct {
		labels  []string
		present int
		null    bool
	}

	var order []string
	fields := make(map[string]*fieldInfo)
	for _, doc := range docs {
		for _, e := range doc {
			info, ok := fields[e.Key]
			if !ok {
				info = &fieldInfo{}
				fields[e.Key] = info
				order = append(order, e.Key)
			}
			info.present++
			label := KindLabel(e.Value)
			if label == "null" {
				info.null = true
			}
			if !slices.Contains(info.labels, label) {
				info.labels = append(info.labels, label)
			}
		}
	}

	schema := &adapter.TableSchema{
		TableName:   collection,
		Columns:     []adapter.Column{},
		Indexes:     []adapter.Index{},
		ForeignKeys: []adapter.ForeignKey{},
	}
	for _, name := range order {
		info := fields[name]
		schema.Columns = append(schema.Columns, adapter.Column{
			Name:         name,
			DataType:     strings.Join(info.labels, "|"),
			Nullable:     info.null || info.present < len(docs),
			IsPrimaryKey: name == "_id",
		})
	}
	return schema
}

// normalizeValue prepares a decoded JSON value for BSON encoding. json.Number
// becomes int64 when integral and float64 otherwise.
func normalizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]interface{}:
		out := make(bson.D, 0, len(v))
		for _, k := range slices.Sorted(maps.Keys(v)) {
			out = append(out, bson.E{Key: k, Value: normalizeValue(v[k])})
		}
		return out
	case []interface{}:
		out := make(bson.A, len(v))
		for i, item := range v {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}
