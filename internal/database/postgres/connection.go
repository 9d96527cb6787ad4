package postgres

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redbco/dbgrid/pkg/adapter"
	"github.com/redbco/dbgrid/pkg/logger"
)

// Connection implements adapter.Connection for PostgreSQL.
type Connection struct {
	adapter.UnsupportedMetadata

	pool      *pgxpool.Pool
	config    adapter.ConnectionConfig
	connected int32
	logger    *logger.Logger
}

var _ adapter.Connection = (*Connection)(nil)

// NewConnection creates an unconnected PostgreSQL driver. log may be nil.
func NewConnection(log *logger.Logger) *Connection {
	return &Connection{logger: log}
}

// Type returns the database type identifier.
func (c *Connection) Type() adapter.DatabaseType {
	return adapter.PostgreSQL
}

// buildURL builds the connection URL. The default user and database are both postgres.
func buildURL(config adapter.ConnectionConfig) string {
	sslMode := "disable"
	if config.SSL {
		sslMode = "require"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(config.UsernameOr("postgres"), config.Password),
		Host:     config.WithDefaults().Address(),
		Path:     "/" + config.DatabaseOr("postgres"),
		RawQuery: "sslmode=" + sslMode,
	}
	return u.String()
}

// Connect creates the pool and pings the server.
func (c *Connection) Connect(ctx context.Context, config adapter.ConnectionConfig) error {
	config = config.WithDefaults()

	pool, err := pgxpool.New(ctx, buildURL(config))
	if err != nil {
		return adapter.NewConnectionError(adapter.PostgreSQL, config.Host, config.Port,
			fmt.Errorf("error creating connection pool: %w", err))
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return adapter.NewConnectionError(adapter.PostgreSQL, config.Host, config.Port,
			fmt.Errorf("error pinging database: %w", err))
	}

	c.pool = pool
	c.config = config
	atomic.StoreInt32(&c.connected, 1)
	if c.logger != nil {
		c.logger.Debug("PostgreSQL connection established to %s", config.Address())
	}
	return nil
}

// Disconnect closes the pool. Calling it twice is a no-op.
func (c *Connection) Disconnect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.connected, 1, 0) {
		return nil
	}
	c.pool.Close()
	c.pool = nil
	return nil
}

// TestConnection runs SELECT 1.
func (c *Connection) TestConnection(ctx context.Context) (bool, error) {
	pool, err := c.handle("test_connection")
	if err != nil {
		return false, err
	}
	var one int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return false, adapter.WrapError(adapter.PostgreSQL, "test_connection", err)
	}
	return one == 1, nil
}

func (c *Connection) handle(operation string) (*pgxpool.Pool, error) {
	if atomic.LoadInt32(&c.connected) == 0 || c.pool == nil {
		return nil, adapter.NewNotConnectedError(adapter.PostgreSQL, operation)
	}
	return c.pool, nil
}
