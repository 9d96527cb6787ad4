package sqlbuild

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EscapeString doubles single quotes.
func EscapeString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// QuoteString wraps s in single quotes, escaping embedded quotes.
func QuoteString(s string) string {
	return "'" + EscapeString(s) + "'"
}

// Literal formats a generic value as a SQL literal for the dialect. Arrays,
// objects, and other composite values are written as quoted JSON text.
func Literal(d Dialect, v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return QuoteString(t)
	case bool:
		return d.BoolLiteral(t)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int8:
		return strconv.FormatInt(int64(t), 10)
	case int16:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint8:
		return strconv.FormatUint(uint64(t), 10)
	case uint16:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []byte:
		return QuoteString(string(t))
	case time.Time:
		return QuoteString(t.Format("2006-01-02 15:04:05"))
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return QuoteString(fmt.Sprint(t))
		}
		return QuoteString(string(data))
	}
}

// WhereCondition formats the right-hand side of an identity predicate:
// IS NULL for null, = <literal> otherwise.
func WhereCondition(d Dialect, v interface{}) string {
	if v == nil {
		return "IS NULL"
	}
	return "= " + Literal(d, v)
}
