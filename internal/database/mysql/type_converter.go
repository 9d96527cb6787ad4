package mysql

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/redbco/dbgrid/pkg/adapter"
)

// TypeCategory groups MySQL column types that convert the same way.
type TypeCategory int

const (
	CategoryString TypeCategory = iota
	CategoryInteger
	CategoryUnsigned
	CategoryFloat
	CategoryDecimal
	CategoryDateTime
	CategoryDate
	CategoryTime
	CategoryJSON
	CategoryBinary
)

// Categorize maps a DatabaseTypeName to its category.
func Categorize(typeName string) TypeCategory {
	name := strings.ToUpper(strings.TrimSpace(typeName))
	if strings.HasPrefix(name, "UNSIGNED ") {
		return CategoryUnsigned
	}
	switch name {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR":
		return CategoryInteger
	case "FLOAT", "DOUBLE", "REAL":
		return CategoryFloat
	case "DECIMAL", "NUMERIC":
		return CategoryDecimal
	case "DATETIME", "TIMESTAMP":
		return CategoryDateTime
	case "DATE":
		return CategoryDate
	case "TIME":
		return CategoryTime
	case "JSON":
		return CategoryJSON
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BINARY", "VARBINARY", "BIT", "GEOMETRY":
		return CategoryBinary
	default:
		return CategoryString
	}
}

// ConvertValue turns a scanned MySQL value into its result form. The text
// protocol delivers most values as []byte, the binary protocol as native types.
func ConvertValue(typeName string, value interface{}) interface{} {
	if value == nil {
		return nil
	}

	switch Categorize(typeName) {
	case CategoryInteger:
		switch v := value.(type) {
		case int64:
			return v
		case []byte:
			if n, err := strconv.ParseInt(string(v), 10, 64); err == nil {
				return n
			}
			return string(v)
		}
	case CategoryUnsigned:
		switch v := value.(type) {
		case uint64:
			return v
		case int64:
			return uint64(v)
		case []byte:
			if n, err := strconv.ParseUint(string(v), 10, 64); err == nil {
				return n
			}
			return string(v)
		}
	case CategoryFloat:
		switch v := value.(type) {
		case float64:
			return v
		case float32:
			return float64(v)
		case []byte:
			if f, err := strconv.ParseFloat(string(v), 64); err == nil {
				return f
			}
			return string(v)
		}
	case CategoryDateTime:
		if t, ok := value.(time.Time); ok {
			return t.Format("2006-01-02 15:04:05")
		}
	case CategoryDate:
		if t, ok := value.(time.Time); ok {
			return t.Format("2006-01-02")
		}
	case CategoryJSON:
		if b, ok := value.([]byte); ok {
			var parsed interface{}
			if err := json.Unmarshal(b, &parsed); err == nil {
				return parsed
			}
			return string(b)
		}
	case CategoryBinary:
		if b, ok := value.([]byte); ok {
			return adapter.BinaryPlaceholder(len(b))
		}
	}

	switch v := value.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	default:
		return v
	}
}
