package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/redbco/dbgrid/pkg/adapter"
)

var errEmptyQuery = errors.New("Empty query")

// SplitArgs tokenizes a command line. Single and double quotes group
// arguments; inside double quotes a backslash escapes the next character.
func SplitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inToken bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case quote != 0:
			switch {
			case r == '\\' && quote == '"':
				escaped = true
			case r == quote:
				quote = 0
			default:
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inToken {
				args = append(args, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(r)
			inToken = true
		}
	}

	if quote != 0 || escaped {
		return nil, fmt.Errorf("unterminated quoted argument")
	}
	if inToken {
		args = append(args, current.String())
	}
	return args, nil
}

// QuoteArg renders an argument so that SplitArgs reads it back unchanged.
func QuoteArg(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\r\n\"'\\") {
		return arg
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range arg {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

func parseCommand(statement string) (string, []string, error) {
	args, err := SplitArgs(strings.TrimSpace(statement))
	if err != nil {
		return "", nil, err
	}
	if len(args) == 0 {
		return "", nil, errEmptyQuery
	}
	return strings.ToUpper(args[0]), args[1:], nil
}

func requireArgs(cmd string, args []string, n int) error {
	if len(args) < n {
		return fmt.Errorf("wrong number of arguments for '%s' command", strings.ToLower(cmd))
	}
	return nil
}

// ExecuteQuery runs one command and shapes its reply as rows.
func (c *Connection) ExecuteQuery(ctx context.Context, statement string) (*adapter.QueryResult, error) {
	client, err := c.handle("execute_query")
	if err != nil {
		return nil, err
	}

	cmd, args, err := parseCommand(statement)
	if err != nil {
		return nil, adapter.NewQueryError(adapter.Redis, statement, err)
	}

	start := time.Now()
	if c.logger != nil {
		c.logger.Debug("Executing command: %s", statement)
	}

	result, err := runCommand(ctx, client, cmd, args)
	if err != nil {
		return nil, adapter.NewQueryError(adapter.Redis, statement, err)
	}
	result.FinalQuery = statement
	result.SetElapsed(start)
	return result, nil
}

func runCommand(ctx context.Context, client *redis.Client, cmd string, args []string) (*adapter.QueryResult, error) {
	switch cmd {
	case "GET":
		if err := requireArgs(cmd, args, 1); err != nil {
			return nil, err
		}
		result := newResult("key", "value")
		value, err := client.Get(ctx, args[0]).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return nil, err
		default:
			result.Rows = append(result.Rows, map[string]interface{}{"key": args[0], "value": value})
		}
		return result, nil

	case "SET":
		if err := requireArgs(cmd, args, 2); err != nil {
			return nil, err
		}
		if err := client.Set(ctx, args[0], args[1], 0).Err(); err != nil {
			return nil, err
		}
		result := newResult("key", "value")
		result.Rows = append(result.Rows, map[string]interface{}{"key": args[0], "value": "OK"})
		return result, nil

	case "DEL":
		if err := requireArgs(cmd, args, 1); err != nil {
			return nil, err
		}
		deleted, err := client.Del(ctx, args...).Result()
		if err != nil {
			return nil, err
		}
		result := newResult("deleted_count")
		result.Rows = append(result.Rows, map[string]interface{}{"deleted_count": deleted})
		result.SetRowsAffected(deleted)
		return result, nil

	case "KEYS":
		pattern := "*"
		if len(args) > 0 {
			pattern = args[0]
		}
		keys, err := client.Keys(ctx, pattern).Result()
		if err != nil {
			return nil, err
		}
		sort.Strings(keys)
		result := newResult("key", "value")
		for _, k := range keys {
			result.Rows = append(result.Rows, map[string]interface{}{"key": k, "value": ""})
		}
		return result, nil

	case "SCAN":
		if err := requireArgs(cmd, args, 1); err != nil {
			return nil, err
		}
		cursor, match, count, err := parseScanArgs(args)
		if err != nil {
			return nil, err
		}
		keys, next, err := client.Scan(ctx, cursor, match, count).Result()
		if err != nil {
			return nil, err
		}
		result := newResult("cursor", "key")
		for _, k := range keys {
			result.Rows = append(result.Rows, map[string]interface{}{"cursor": int64(next), "key": k})
		}
		return result, nil

	case "HGETALL":
		if err := requireArgs(cmd, args, 1); err != nil {
			return nil, err
		}
		fields, err := client.HGetAll(ctx, args[0]).Result()
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(fields))
		for f := range fields {
			names = append(names, f)
		}
		sort.Strings(names)
		result := newResult("field", "value")
		for _, f := range names {
			result.Rows = append(result.Rows, map[string]interface{}{"field": f, "value": fields[f]})
		}
		return result, nil

	case "HGET":
		if err := requireArgs(cmd, args, 2); err != nil {
			return nil, err
		}
		result := newResult("field", "value")
		value, err := client.HGet(ctx, args[0], args[1]).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return nil, err
		default:
			result.Rows = append(result.Rows, map[string]interface{}{"field": args[1], "value": value})
		}
		return result, nil

	case "LRANGE":
		if err := requireArgs(cmd, args, 3); err != nil {
			return nil, err
		}
		start, stop, err := parseRange(args[1], args[2])
		if err != nil {
			return nil, err
		}
		items, err := client.LRange(ctx, args[0], start, stop).Result()
		if err != nil {
			return nil, err
		}
		result := newResult("index", "value")
		for i, item := range items {
			result.Rows = append(result.Rows, map[string]interface{}{"index": int64(i), "value": item})
		}
		return result, nil

	case "SMEMBERS":
		if err := requireArgs(cmd, args, 1); err != nil {
			return nil, err
		}
		members, err := client.SMembers(ctx, args[0]).Result()
		if err != nil {
			return nil, err
		}
		sort.Strings(members)
		result := newResult("member")
		for _, m := range members {
			result.Rows = append(result.Rows, map[string]interface{}{"member": m})
		}
		return result, nil

	case "ZRANGE":
		if err := requireArgs(cmd, args, 3); err != nil {
			return nil, err
		}
		start, stop, err := parseRange(args[1], args[2])
		if err != nil {
			return nil, err
		}
		members, err := client.ZRangeWithScores(ctx, args[0], start, stop).Result()
		if err != nil {
			return nil, err
		}
		result := newResult("member", "score")
		for _, z := range members {
			result.Rows = append(result.Rows, map[string]interface{}{"member": fmt.Sprint(z.Member), "score": z.Score})
		}
		return result, nil

	case "INFO":
		info, err := client.Info(ctx, args...).Result()
		if err != nil {
			return nil, err
		}
		return ParseInfo(info), nil

	default:
		cmdArgs := make([]interface{}, 0, len(args)+1)
		cmdArgs = append(cmdArgs, strings.ToLower(cmd))
		for _, a := range args {
			cmdArgs = append(cmdArgs, a)
		}
		value, err := client.Do(ctx, cmdArgs...).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
		result := newResult("key", "value")
		result.Rows = append(result.Rows, map[string]interface{}{"key": "result", "value": ConvertReply(value)})
		return result, nil
	}
}

// ExecuteUpdate runs one write command and returns the number of keys or
// fields it touched.
func (c *Connection) ExecuteUpdate(ctx context.Context, statement string) (int64, error) {
	client, err := c.handle("execute_update")
	if err != nil {
		return 0, err
	}

	cmd, args, err := parseCommand(statement)
	if err != nil {
		return 0, adapter.NewQueryError(adapter.Redis, statement, err)
	}
	if c.logger != nil {
		c.logger.Debug("Executing update: %s", statement)
	}

	affected, err := runUpdate(ctx, client, cmd, args)
	if err != nil {
		return 0, adapter.NewQueryError(adapter.Redis, statement, err)
	}
	return affected, nil
}

func runUpdate(ctx context.Context, client *redis.Client, cmd string, args []string) (int64, error) {
	switch cmd {
	case "SET":
		if err := requireArgs(cmd, args, 2); err != nil {
			return 0, err
		}
		if err := client.Set(ctx, args[0], args[1], 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	case "DEL":
		if err := requireArgs(cmd, args, 1); err != nil {
			return 0, err
		}
		return client.Del(ctx, args...).Result()
	case "HSET":
		if err := requireArgs(cmd, args, 3); err != nil {
			return 0, err
		}
		if len(args[1:])%2 != 0 {
			return 0, fmt.Errorf("wrong number of arguments for 'hset' command")
		}
		values := make([]interface{}, 0, len(args)-1)
		for _, a := range args[1:] {
			values = append(values, a)
		}
		if err := client.HSet(ctx, args[0], values...).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	case "HDEL":
		if err := requireArgs(cmd, args, 2); err != nil {
			return 0, err
		}
		return client.HDel(ctx, args[0], args[1:]...).Result()
	default:
		return 0, fmt.Errorf("Unsupported command for execute_update: %s", cmd)
	}
}

func newResult(columns ...string) *adapter.QueryResult {
	result := adapter.NewQueryResult()
	namer := adapter.NewColumnNamer()
	for _, col := range columns {
		result.AddColumn(namer, col, "")
	}
	return result
}

func parseRange(startArg, stopArg string) (int64, int64, error) {
	start, err := strconv.ParseInt(startArg, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("value is not an integer or out of range")
	}
	stop, err := strconv.ParseInt(stopArg, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("value is not an integer or out of range")
	}
	return start, stop, nil
}

// parseScanArgs reads "cursor [MATCH pattern] [COUNT n]". COUNT defaults to 100.
func parseScanArgs(args []string) (cursor uint64, match string, count int64, err error) {
	cursor, err = strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, "", 0, fmt.Errorf("invalid cursor")
	}
	count = 100
	for i := 1; i < len(args); i += 2 {
		if i+1 >= len(args) {
			return 0, "", 0, fmt.Errorf("syntax error")
		}
		switch strings.ToUpper(args[i]) {
		case "MATCH":
			match = args[i+1]
		case "COUNT":
			count, err = strconv.ParseInt(args[i+1], 10, 64)
			if err != nil || count <= 0 {
				return 0, "", 0, fmt.Errorf("value is not an integer or out of range")
			}
		default:
			return 0, "", 0, fmt.Errorf("syntax error")
		}
	}
	return cursor, match, count, nil
}

// ParseInfo turns an INFO reply into property/value rows. Section headers
// and blank lines are skipped.
func ParseInfo(info string) *adapter.QueryResult {
	result := newResult("property", "value")
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		property, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		result.Rows = append(result.Rows, map[string]interface{}{"property": property, "value": value})
	}
	return result
}

// ConvertReply converts a raw RESP reply into a result value. Nested arrays
// and maps are converted element by element.
func ConvertReply(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case string, int64, float64, bool:
		return v
	case []byte:
		return string(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = ConvertReply(item)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[fmt.Sprint(k)] = ConvertReply(item)
		}
		return out
	case redis.Error:
		return v.Error()
	default:
		return fmt.Sprint(v)
	}
}
