package postgres

import (
	"database/sql/driver"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/redbco/dbgrid/pkg/adapter"
)

// ColumnType is the category a PostgreSQL type name falls into.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeInteger
	TypeFloat
	TypeNumeric
	TypeBool
	TypeTimestamp
	TypeTimestampTZ
	TypeDate
	TypeTime
	TypeUUID
	TypeJSON
	TypeBinary
	TypeNetwork
	TypeOther
)

// BaseTypeName strips the array marker from a type name. Arrays are spelled
// either _int4 or int4[].
func BaseTypeName(typeName string) (base string, isArray bool) {
	name := strings.ToLower(typeName)
	if strings.HasPrefix(name, "_") {
		return name[1:], true
	}
	if strings.HasSuffix(name, "[]") {
		return strings.TrimSuffix(name, "[]"), true
	}
	return name, false
}

// MapType maps a base type name to its category.
func MapType(base string) ColumnType {
	switch base {
	case "int2", "int4", "int8", "smallint", "integer", "bigint", "oid", "serial", "bigserial":
		return TypeInteger
	case "float4", "float8", "real", "double precision":
		return TypeFloat
	case "numeric", "decimal", "money":
		return TypeNumeric
	case "bool", "boolean":
		return TypeBool
	case "timestamp":
		return TypeTimestamp
	case "timestamptz":
		return TypeTimestampTZ
	case "date":
		return TypeDate
	case "time", "timetz", "interval":
		return TypeTime
	case "uuid":
		return TypeUUID
	case "json", "jsonb":
		return TypeJSON
	case "bytea":
		return TypeBinary
	case "inet", "cidr", "macaddr", "macaddr8":
		return TypeNetwork
	case "text", "varchar", "bpchar", "char", "name", "citext", "xml":
		return TypeText
	default:
		return TypeOther
	}
}

// ConvertValue converts a value decoded by pgx into its result form.
func ConvertValue(typeName string, value interface{}) interface{} {
	if value == nil {
		return nil
	}
	base, isArray := BaseTypeName(typeName)
	if isArray {
		if items, ok := value.([]interface{}); ok {
			out := make([]interface{}, len(items))
			for i, item := range items {
				out[i] = ConvertValue(base, item)
			}
			return out
		}
	}
	return convertScalar(MapType(base), value)
}

func convertScalar(kind ColumnType, value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case bool, string, int64, float64:
		return v
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int8:
		return int64(v)
	case int:
		return int64(v)
	case uint32:
		return int64(v)
	case float32:
		return float64(v)
	case time.Time:
		switch kind {
		case TypeTimestampTZ:
			return v.Format("2006-01-02 15:04:05 MST")
		case TypeDate:
			return v.Format("2006-01-02")
		default:
			return v.Format("2006-01-02 15:04:05")
		}
	case [16]byte:
		return uuid.UUID(v).String()
	case []byte:
		if kind == TypeBinary {
			return adapter.BinaryPlaceholder(len(v))
		}
		return string(v)
	case map[string]interface{}:
		return v
	case []interface{}:
		return v
	case netip.Prefix:
		return v.String()
	case netip.Addr:
		return v.String()
	case net.HardwareAddr:
		return v.String()
	case driver.Valuer:
		dv, err := v.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		if dv == nil {
			return nil
		}
		return convertScalar(kind, dv)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// NormalizeDataType shortens information_schema type names, adding length
// and precision where the column has them.
func NormalizeDataType(dataType string, charMaxLength, numericPrecision, numericScale *int64) string {
	switch dataType {
	case "character varying":
		if charMaxLength != nil {
			return fmt.Sprintf("varchar(%d)", *charMaxLength)
		}
		return "varchar"
	case "character":
		if charMaxLength != nil {
			return fmt.Sprintf("char(%d)", *charMaxLength)
		}
		return "char"
	case "numeric", "decimal":
		switch {
		case numericPrecision != nil && numericScale != nil:
			return fmt.Sprintf("numeric(%d,%d)", *numericPrecision, *numericScale)
		case numericPrecision != nil:
			return fmt.Sprintf("numeric(%d)", *numericPrecision)
		default:
			return dataType
		}
	case "double precision":
		return "float8"
	case "smallint":
		return "int2"
	case "integer":
		return "int4"
	case "bigint":
		return "int8"
	case "boolean":
		return "bool"
	case "timestamp without time zone":
		return "timestamp"
	case "timestamp with time zone":
		return "timestamptz"
	case "time without time zone":
		return "time"
	case "time with time zone":
		return "timetz"
	default:
		return dataType
	}
}

// IndexTypeFromDef extracts the access method from a pg_indexes definition.
func IndexTypeFromDef(indexDef string) string {
	def := strings.ToLower(indexDef)
	switch {
	case strings.Contains(def, "btree"):
		return "BTREE"
	case strings.Contains(def, "hash"):
		return "HASH"
	case strings.Contains(def, "gist"):
		return "GIST"
	case strings.Contains(def, "gin"):
		return "GIN"
	default:
		return "BTREE"
	}
}
