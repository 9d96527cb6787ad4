package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/go-sql-driver/mysql"

	"github.com/redbco/dbgrid/pkg/adapter"
	"github.com/redbco/dbgrid/pkg/logger"
)

// Connection implements adapter.Connection for MySQL.
type Connection struct {
	db        *sql.DB
	config    adapter.ConnectionConfig
	connected int32
	logger    *logger.Logger
}

var _ adapter.Connection = (*Connection)(nil)

// NewConnection creates an unconnected MySQL driver. log may be nil.
func NewConnection(log *logger.Logger) *Connection {
	return &Connection{logger: log}
}

// Type returns the database type identifier.
func (c *Connection) Type() adapter.DatabaseType {
	return adapter.MySQL
}

// buildDSN builds the driver DSN. The default user is root.
func buildDSN(config adapter.ConnectionConfig) string {
	cfg := mysql.NewConfig()
	cfg.User = config.UsernameOr("root")
	cfg.Passwd = config.Password
	cfg.Net = "tcp"
	cfg.Addr = config.WithDefaults().Address()
	cfg.DBName = config.Database
	if config.SSL {
		cfg.TLSConfig = "true"
	} else {
		cfg.TLSConfig = "false"
	}
	return cfg.FormatDSN()
}

// Connect establishes a connection to a MySQL server
func (c *Connection) Connect(ctx context.Context, config adapter.ConnectionConfig) error {
	config = config.WithDefaults()

	// Open the database connection
	db, err := sql.Open("mysql", buildDSN(config))
	if err != nil {
		return adapter.NewConnectionError(adapter.MySQL, config.Host, config.Port,
			fmt.Errorf("failed to open MySQL connection: %w", err))
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return adapter.NewConnectionError(adapter.MySQL, config.Host, config.Port,
			fmt.Errorf("failed to ping MySQL database: %w", err))
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	c.attach(db, config)
	if c.logger != nil {
		c.logger.Debug("MySQL connection established to %s", config.Address())
	}
	return nil
}

func (c *Connection) attach(db *sql.DB, config adapter.ConnectionConfig) {
	c.db = db
	c.config = config
	atomic.StoreInt32(&c.connected, 1)
}

// Disconnect closes the connection pool. Calling it twice is a no-op.
func (c *Connection) Disconnect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.connected, 1, 0) {
		return nil
	}
	db := c.db
	c.db = nil
	if err := db.Close(); err != nil {
		return adapter.WrapError(adapter.MySQL, "disconnect", err)
	}
	return nil
}

// TestConnection pings the server.
func (c *Connection) TestConnection(ctx context.Context) (bool, error) {
	db, err := c.handle("test_connection")
	if err != nil {
		return false, err
	}
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return false, adapter.WrapError(adapter.MySQL, "test_connection", err)
	}
	return one == 1, nil
}

func (c *Connection) handle(operation string) (*sql.DB, error) {
	if atomic.LoadInt32(&c.connected) == 0 || c.db == nil {
		return nil, adapter.NewNotConnectedError(adapter.MySQL, operation)
	}
	return c.db, nil
}
