package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/redbco/dbgrid/pkg/adapter"
	"github.com/redbco/dbgrid/pkg/logger"
)

// Connection implements adapter.Connection for SQL Server.
type Connection struct {
	adapter.UnsupportedMetadata

	db        *sql.DB
	config    adapter.ConnectionConfig
	connected int32
	logger    *logger.Logger
}

var _ adapter.Connection = (*Connection)(nil)

// NewConnection creates an unconnected SQL Server driver. log may be nil.
func NewConnection(log *logger.Logger) *Connection {
	return &Connection{logger: log}
}

// Type returns the database type identifier.
func (c *Connection) Type() adapter.DatabaseType {
	return adapter.MSSQL
}

// buildConnString builds the ADO-style connection string. The default user is sa.
func buildConnString(config adapter.ConnectionConfig) string {
	config = config.WithDefaults()
	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		config.Host, config.Port, config.Database, config.UsernameOr("sa"), config.Password)
	if config.SSL {
		connStr += ";encrypt=true;trustservercertificate=true"
	} else {
		connStr += ";encrypt=false"
	}
	return connStr
}

// Connect opens the pool and pings the server.
func (c *Connection) Connect(ctx context.Context, config adapter.ConnectionConfig) error {
	config = config.WithDefaults()

	db, err := sql.Open("sqlserver", buildConnString(config))
	if err != nil {
		return adapter.NewConnectionError(adapter.MSSQL, config.Host, config.Port,
			fmt.Errorf("failed to open SQL Server connection: %w", err))
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return adapter.NewConnectionError(adapter.MSSQL, config.Host, config.Port,
			fmt.Errorf("failed to ping SQL Server: %w", err))
	}

	db.SetMaxOpenConns(15)

	c.attach(db, config)
	if c.logger != nil {
		c.logger.Debug("SQL Server connection established to %s", config.Address())
	}
	return nil
}

func (c *Connection) attach(db *sql.DB, config adapter.ConnectionConfig) {
	c.db = db
	c.config = config
	atomic.StoreInt32(&c.connected, 1)
}

// Disconnect closes the pool. Calling it twice is a no-op.
func (c *Connection) Disconnect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.connected, 1, 0) {
		return nil
	}
	db := c.db
	c.db = nil
	if err := db.Close(); err != nil {
		return adapter.WrapError(adapter.MSSQL, "disconnect", err)
	}
	return nil
}

// TestConnection runs SELECT 1.
func (c *Connection) TestConnection(ctx context.Context) (bool, error) {
	db, err := c.handle("test_connection")
	if err != nil {
		return false, err
	}
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return false, adapter.WrapError(adapter.MSSQL, "test_connection", err)
	}
	return one == 1, nil
}

func (c *Connection) handle(operation string) (*sql.DB, error) {
	if atomic.LoadInt32(&c.connected) == 0 || c.db == nil {
		return nil, adapter.NewNotConnectedError(adapter.MSSQL, operation)
	}
	return c.db, nil
}
