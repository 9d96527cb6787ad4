package mongodb

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/redbco/dbgrid/pkg/adapter"
	"github.com/redbco/dbgrid/pkg/logger"
)

const pingTimeout = 10 * time.Second

// Connection implements adapter.Connection for MongoDB.
type Connection struct {
	adapter.UnsupportedMetadata

	client    *mongo.Client
	config    adapter.ConnectionConfig
	connected int32
	logger    *logger.Logger
}

var _ adapter.Connection = (*Connection)(nil)

// NewConnection creates an unconnected MongoDB driver. log may be nil.
func NewConnection(log *logger.Logger) *Connection {
	return &Connection{logger: log}
}

// Type returns the database type identifier.
func (c *Connection) Type() adapter.DatabaseType {
	return adapter.MongoDB
}

// buildURI builds the connection string. Credentials are only included when a
// username is set; authentication always happens against admin.
func buildURI(config adapter.ConnectionConfig) string {
	config = config.WithDefaults()
	u := url.URL{
		Scheme: "mongodb",
		Host:   config.Address(),
		Path:   "/" + config.Database,
	}
	if config.Username != "" {
		u.User = url.UserPassword(config.Username, config.Password)
	}
	query := "authSource=admin"
	if config.SSL {
		query += "&tls=true"
	}
	u.RawQuery = query
	return u.String()
}

// Connect establishes a connection to a MongoDB deployment
func (c *Connection) Connect(ctx context.Context, config adapter.ConnectionConfig) error {
	config = config.WithDefaults()

	client, err := mongo.Connect(options.Client().ApplyURI(buildURI(config)))
	if err != nil {
		return adapter.NewConnectionError(adapter.MongoDB, config.Host, config.Port,
			fmt.Errorf("error connecting to database: %w", err))
	}

	// Set context with timeout for ping
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return adapter.NewConnectionError(adapter.MongoDB, config.Host, config.Port,
			fmt.Errorf("error pinging database: %w", err))
	}

	c.client = client
	c.config = config
	atomic.StoreInt32(&c.connected, 1)
	if c.logger != nil {
		c.logger.Debug("MongoDB connection established to %s", config.Address())
	}
	return nil
}

// Disconnect closes the client. Calling it twice is a no-op.
func (c *Connection) Disconnect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.connected, 1, 0) {
		return nil
	}
	client := c.client
	c.client = nil
	if err := client.Disconnect(ctx); err != nil {
		return adapter.WrapError(adapter.MongoDB, "disconnect", err)
	}
	return nil
}

// TestConnection pings the primary.
func (c *Connection) TestConnection(ctx context.Context) (bool, error) {
	client, err := c.handle("test_connection")
	if err != nil {
		return false, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return false, adapter.WrapError(adapter.MongoDB, "test_connection", err)
	}
	return true, nil
}

func (c *Connection) handle(operation string) (*mongo.Client, error) {
	if atomic.LoadInt32(&c.connected) == 0 || c.client == nil {
		return nil, adapter.NewNotConnectedError(adapter.MongoDB, operation)
	}
	return c.client, nil
}

// database resolves the target database: the explicit name, then the one
// from the connection config.
func (c *Connection) database(client *mongo.Client, name string) (*mongo.Database, error) {
	if name == "" {
		name = c.config.Database
	}
	if name == "" {
		return nil, fmt.Errorf("%w: no database specified", adapter.ErrInvalidQuery)
	}
	return client.Database(name), nil
}
