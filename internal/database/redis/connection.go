package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/redbco/dbgrid/pkg/adapter"
	"github.com/redbco/dbgrid/pkg/logger"
)

const pingTimeout = 5 * time.Second

// Connection implements adapter.Connection for Redis. Numbered databases are
// exposed as db0..dbN-1, each holding one synthetic table of keys.
type Connection struct {
	adapter.UnsupportedMetadata

	client    *redis.Client
	config    adapter.ConnectionConfig
	currentDB int
	connected int32
	logger    *logger.Logger
}

var _ adapter.Connection = (*Connection)(nil)

// NewConnection creates an unconnected Redis driver. log may be nil.
func NewConnection(log *logger.Logger) *Connection {
	return &Connection{logger: log}
}

// Type returns the database type identifier.
func (c *Connection) Type() adapter.DatabaseType {
	return adapter.Redis
}

// ParseDBIndex reads a database number from "3" or "db3". Anything else is 0.
func ParseDBIndex(database string) int {
	digits := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(database)), "db")
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// buildOptions maps the connection config onto client options.
func buildOptions(config adapter.ConnectionConfig, db int) *redis.Options {
	config = config.WithDefaults()
	options := &redis.Options{
		Addr:     config.Address(),
		Username: config.Username,
		Password: config.Password,
		DB:       db,
	}
	if config.SSL {
		options.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return options
}

// Connect establishes a connection to a Redis server
func (c *Connection) Connect(ctx context.Context, config adapter.ConnectionConfig) error {
	config = config.WithDefaults()
	db := ParseDBIndex(config.Database)

	client, err := openClient(ctx, config, db)
	if err != nil {
		return adapter.NewConnectionError(adapter.Redis, config.Host, config.Port, err)
	}

	c.client = client
	c.config = config
	c.currentDB = db
	atomic.StoreInt32(&c.connected, 1)
	if c.logger != nil {
		c.logger.Debug("Redis connection established to %s (db%d)", config.Address(), db)
	}
	return nil
}

func openClient(ctx context.Context, config adapter.ConnectionConfig, db int) (*redis.Client, error) {
	client := redis.NewClient(buildOptions(config, db))

	// Test the connection with a timeout
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error connecting to Redis: %w", err)
	}
	return client, nil
}

// selectDB switches the connection to another numbered database. The client
// pools connections, so the switch reopens it with the new index instead of
// issuing SELECT on a single connection.
func (c *Connection) selectDB(ctx context.Context, db int) (*redis.Client, error) {
	if db == c.currentDB {
		return c.client, nil
	}
	client, err := openClient(ctx, c.config, db)
	if err != nil {
		return nil, err
	}
	old := c.client
	c.client = client
	c.currentDB = db
	old.Close()
	return client, nil
}

// Disconnect closes the client. Calling it twice is a no-op.
func (c *Connection) Disconnect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.connected, 1, 0) {
		return nil
	}
	client := c.client
	c.client = nil
	if err := client.Close(); err != nil {
		return adapter.WrapError(adapter.Redis, "disconnect", err)
	}
	return nil
}

// TestConnection sends PING.
func (c *Connection) TestConnection(ctx context.Context) (bool, error) {
	client, err := c.handle("test_connection")
	if err != nil {
		return false, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return false, adapter.WrapError(adapter.Redis, "test_connection", err)
	}
	return true, nil
}

func (c *Connection) handle(operation string) (*redis.Client, error) {
	if atomic.LoadInt32(&c.connected) == 0 || c.client == nil {
		return nil, adapter.NewNotConnectedError(adapter.Redis, operation)
	}
	return c.client, nil
}
