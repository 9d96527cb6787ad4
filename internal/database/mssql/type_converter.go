package mssql

import (
	"strings"
	"time"
	"unicode/utf8"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/redbco/dbgrid/pkg/adapter"
)

// TypeCategory groups SQL Server column types that convert the same way.
type TypeCategory int

const (
	CategoryUnknown TypeCategory = iota
	CategoryString
	CategoryInt64
	CategoryInteger
	CategoryFloat
	CategoryBoolean
	CategoryUUID
	CategoryDateTime
	CategoryDate
	CategoryTime
	CategoryBinary
	CategoryDecimal
)

// Categorize maps a DatabaseTypeName to its category.
func Categorize(typeName string) TypeCategory {
	switch strings.ToUpper(strings.TrimSpace(typeName)) {
	case "VARCHAR", "CHAR", "TEXT", "NVARCHAR", "NCHAR", "NTEXT", "XML", "SYSNAME":
		return CategoryString
	case "BIGINT":
		return CategoryInt64
	case "INT", "SMALLINT", "TINYINT":
		return CategoryInteger
	case "REAL", "FLOAT":
		return CategoryFloat
	case "BIT":
		return CategoryBoolean
	case "UNIQUEIDENTIFIER":
		return CategoryUUID
	case "DATETIME", "DATETIME2", "SMALLDATETIME", "DATETIMEOFFSET":
		return CategoryDateTime
	case "DATE":
		return CategoryDate
	case "TIME":
		return CategoryTime
	case "BINARY", "VARBINARY", "IMAGE":
		return CategoryBinary
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return CategoryDecimal
	default:
		return CategoryUnknown
	}
}

// ConvertValue turns a value scanned by go-mssqldb into its result form.
func ConvertValue(typeName string, value interface{}) interface{} {
	if value == nil {
		return nil
	}

	switch Categorize(typeName) {
	case CategoryUUID:
		if b, ok := value.([]byte); ok && len(b) == 16 {
			var id mssql.UniqueIdentifier
			if err := id.Scan(b); err == nil {
				return id.String()
			}
		}
	case CategoryDateTime:
		if t, ok := value.(time.Time); ok {
			return t.Format("2006-01-02 15:04:05")
		}
	case CategoryDate:
		if t, ok := value.(time.Time); ok {
			return t.Format("2006-01-02")
		}
	case CategoryTime:
		if t, ok := value.(time.Time); ok {
			return t.Format("15:04:05")
		}
	case CategoryBinary:
		if b, ok := value.([]byte); ok {
			return adapter.BinaryPlaceholder(len(b))
		}
	case CategoryDecimal, CategoryString:
		if b, ok := value.([]byte); ok {
			return string(b)
		}
	case CategoryUnknown:
		if b, ok := value.([]byte); ok {
			return fallback(b)
		}
	}

	switch v := value.(type) {
	case int32:
		return int64(v)
	case int16:
		return int64(v)
	case uint8:
		return int64(v)
	case float32:
		return float64(v)
	case []byte:
		return string(v)
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	default:
		return v
	}
}

// fallback reads an unknown []byte value as text when it is valid UTF-8 and
// reports it as binary otherwise. Native int, float, and bool values never
// reach here; the driver already decoded them.
func fallback(b []byte) interface{} {
	if utf8.Valid(b) {
		return string(b)
	}
	return adapter.BinaryPlaceholder(len(b))
}
