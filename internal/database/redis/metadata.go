package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/redbco/dbgrid/pkg/adapter"
)

const defaultDatabaseCount = 16

// GetDatabases lists db0..dbN-1 where N comes from CONFIG GET databases.
// Servers that refuse CONFIG report the default of 16.
func (c *Connection) GetDatabases(ctx context.Context) ([]adapter.Database, error) {
	client, err := c.handle("get_databases")
	if err != nil {
		return nil, err
	}

	count := defaultDatabaseCount
	if config, err := client.ConfigGet(ctx, "databases").Result(); err == nil {
		if n, err := strconv.Atoi(config["databases"]); err == nil && n > 0 {
			count = n
		}
	} else if c.logger != nil {
		c.logger.Debug("CONFIG GET databases failed, assuming %d: %v", defaultDatabaseCount, err)
	}

	databases := make([]adapter.Database, 0, count)
	for i := 0; i < count; i++ {
		databases = append(databases, adapter.Database{Name: fmt.Sprintf("db%d", i)})
	}
	return databases, nil
}

// GetTables selects the database and returns its single synthetic key table.
func (c *Connection) GetTables(ctx context.Context, database string) ([]adapter.Table, error) {
	if _, err := c.handle("get_tables"); err != nil {
		return nil, err
	}

	db := ParseDBIndex(database)
	if _, err := c.selectDB(ctx, db); err != nil {
		return nil, adapter.WrapError(adapter.Redis, "get_tables", err)
	}
	return []adapter.Table{{Name: KeysTableName(db)}}, nil
}

// KeysTableName names the synthetic table of database db.
func KeysTableName(db int) string {
	return fmt.Sprintf("keys (db%d)", db)
}

// GetTableSchema returns the fixed key/type/value layout.
func (c *Connection) GetTableSchema(ctx context.Context, database, table string) (*adapter.TableSchema, error) {
	if _, err := c.handle("get_table_schema"); err != nil {
		return nil, err
	}
	return KeysTableSchema(table), nil
}

// KeysTableSchema is the schema of every synthetic key table.
func KeysTableSchema(table string) *adapter.TableSchema {
	return &adapter.TableSchema{
		TableName: table,
		Columns: []adapter.Column{
			{Name: "key", DataType: "string", IsPrimaryKey: true},
			{Name: "type", DataType: "string"},
			{Name: "value", DataType: "any", Nullable: true},
		},
		Indexes:     []adapter.Index{},
		ForeignKeys: []adapter.ForeignKey{},
	}
}

// GetTableStatistics reports the key count of the current database.
func (c *Connection) GetTableStatistics(ctx context.Context, database, schema, table string) (*adapter.TableStatistics, error) {
	client, err := c.handle("get_table_statistics")
	if err != nil {
		return nil, err
	}
	if database != "" {
		if client, err = c.selectDB(ctx, ParseDBIndex(database)); err != nil {
			return nil, adapter.WrapError(adapter.Redis, "get_table_statistics", err)
		}
	}
	size, err := client.DBSize(ctx).Result()
	if err != nil {
		return nil, adapter.WrapError(adapter.Redis, "get_table_statistics", err)
	}
	return &adapter.TableStatistics{RowCount: adapter.Int64Ptr(size)}, nil
}

// GetTableData pages through keys with SCAN, using offset as the cursor.
func (c *Connection) GetTableData(ctx context.Context, database, table string, limit, offset int) (*adapter.QueryResult, error) {
	client, err := c.handle("get_table_data")
	if err != nil {
		return nil, err
	}
	if database != "" {
		if client, err = c.selectDB(ctx, ParseDBIndex(database)); err != nil {
			return nil, adapter.WrapError(adapter.Redis, "get_table_data", err)
		}
	}

	if offset < 0 {
		offset = 0
	}
	start := time.Now()
	query := fmt.Sprintf("SCAN %d COUNT %d", offset, limit)
	keys, _, err := client.Scan(ctx, uint64(offset), "", int64(limit)).Result()
	if err != nil {
		return nil, adapter.NewQueryError(adapter.Redis, query, err)
	}
	if len(keys) > limit && limit > 0 {
		keys = keys[:limit]
	}

	types, err := keyTypes(ctx, client, keys)
	if err != nil {
		return nil, adapter.NewQueryError(adapter.Redis, query, err)
	}
	values, err := keySummaries(ctx, client, keys, types)
	if err != nil {
		return nil, adapter.NewQueryError(adapter.Redis, query, err)
	}

	result := newResult("key", "type", "value")
	for i, k := range keys {
		result.Rows = append(result.Rows, map[string]interface{}{
			"key":   k,
			"type":  types[i],
			"value": values[i],
		})
	}
	result.FinalQuery = query
	result.SetElapsed(start)
	return result, nil
}

func keyTypes(ctx context.Context, client *redis.Client, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.StatusCmd, len(keys))
	_, err := client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.Type(ctx, k)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	types := make([]string, len(keys))
	for i, cmd := range cmds {
		types[i] = cmd.Val()
	}
	return types, nil
}

func keySummaries(ctx context.Context, client *redis.Client, keys, types []string) ([]interface{}, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	cmds := make([]redis.Cmder, len(keys))
	_, err := client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			switch types[i] {
			case "string":
				cmds[i] = pipe.Get(ctx, k)
			case "list":
				cmds[i] = pipe.LLen(ctx, k)
			case "set":
				cmds[i] = pipe.SCard(ctx, k)
			case "zset":
				cmds[i] = pipe.ZCard(ctx, k)
			case "hash":
				cmds[i] = pipe.HLen(ctx, k)
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	values := make([]interface{}, len(keys))
	for i, cmd := range cmds {
		switch cmd := cmd.(type) {
		case *redis.StringCmd:
			if cmd.Err() == nil {
				values[i] = cmd.Val()
			}
		case *redis.IntCmd:
			values[i] = SummarizeValue(types[i], cmd.Val())
		default:
			values[i] = SummarizeValue(types[i], 0)
		}
	}
	return values, nil
}

// SummarizeValue describes a collection key by its size.
func SummarizeValue(keyType string, size int64) string {
	switch strings.ToLower(keyType) {
	case "list":
		return fmt.Sprintf("[list: %d items]", size)
	case "set":
		return fmt.Sprintf("[set: %d members]", size)
	case "zset":
		return fmt.Sprintf("[sorted set: %d members]", size)
	case "hash":
		return fmt.Sprintf("[hash: %d fields]", size)
	default:
		return "[unknown type]"
	}
}
