package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/redbco/dbgrid/pkg/adapter"
	"github.com/redbco/dbgrid/pkg/logger"
)

// pooledConn is one registry entry. mu serializes every operation on conn.
type pooledConn struct {
	mu       sync.Mutex
	conn     adapter.Connection
	config   adapter.ConnectionConfig
	lastUsed atomic.Int64
}

func (e *pooledConn) touch() {
	e.lastUsed.Store(time.Now().UnixNano())
}

// PoolOptions configures a Pool.
type PoolOptions struct {
	// Factory builds drivers. Defaults to NewFactory with Logger.
	Factory Factory
	Logger  *logger.Logger
	// Registerer receives the pool metrics. Nil disables them.
	Registerer prometheus.Registerer
}

// Pool maps connection ids to live drivers. The registry lock is held for
// lookup, insert and remove only; operations on one id are serialized by
// that entry's own lock, so distinct ids never wait on each other.
//
// An operation that looked up an entry just before Disconnect removed it
// runs against the disconnected driver and fails with a not-connected error.
type Pool struct {
	mu    sync.RWMutex
	conns map[string]*pooledConn

	factory  Factory
	logger   *logger.Logger
	dbLogger *DatabaseLogger
	metrics  *Metrics
}

// NewPool creates an empty pool.
func NewPool(opts PoolOptions) (*Pool, error) {
	metrics, err := NewMetrics(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register pool metrics: %w", err)
	}
	factory := opts.Factory
	if factory == nil {
		factory = NewFactory(Dependencies{Logger: opts.Logger})
	}
	return &Pool{
		conns:    make(map[string]*pooledConn),
		factory:  factory,
		logger:   opts.Logger,
		dbLogger: NewDatabaseLogger(opts.Logger),
		metrics:  metrics,
	}, nil
}

// safeLog safely logs a message if logger is available
func (p *Pool) safeLog(level string, format string, args ...interface{}) {
	if p.logger != nil {
		switch level {
		case "info":
			p.logger.Info(format, args...)
		case "error":
			p.logger.Error(format, args...)
		case "warn":
			p.logger.Warn(format, args...)
		case "debug":
			p.logger.Debug(format, args...)
		}
	}
}

// Connect opens and verifies a driver for cfg and registers it under cfg.ID.
// A driver already registered under the id is disconnected after the swap.
func (p *Pool) Connect(ctx context.Context, cfg adapter.ConnectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.Type, _ = adapter.ParseDatabaseType(string(cfg.Type))
	cfg = cfg.WithDefaults()

	logCtx := contextFor(cfg)
	p.dbLogger.LogConnectionAttempt(logCtx)

	conn, err := p.factory(cfg.Type)
	if err != nil {
		p.dbLogger.LogConnectionFailure(logCtx, err)
		return fmt.Errorf("no driver for %s: %w", cfg.Type, err)
	}

	if err := conn.Connect(ctx, cfg); err != nil {
		p.dbLogger.LogConnectionFailure(logCtx, err)
		return fmt.Errorf("failed to connect %s: %w", cfg.ID, err)
	}

	ok, err := conn.TestConnection(ctx)
	if err == nil && !ok {
		err = adapter.NewConnectionError(cfg.Type, cfg.Host, cfg.Port, errors.New("connection test failed"))
	}
	if err != nil {
		p.dbLogger.LogConnectionFailure(logCtx, err)
		if derr := conn.Disconnect(ctx); derr != nil {
			p.safeLog("warn", "Failed to release driver for %s after failed test: %v", cfg.ID, derr)
		}
		return fmt.Errorf("failed to connect %s: %w", cfg.ID, err)
	}

	entry := &pooledConn{conn: conn, config: cfg}
	entry.touch()

	p.mu.Lock()
	old := p.conns[cfg.ID]
	p.conns[cfg.ID] = entry
	n := len(p.conns)
	p.mu.Unlock()

	p.metrics.setConnections(n)
	p.dbLogger.LogConnectionSuccess(logCtx)

	if old != nil {
		p.safeLog("info", "Replacing existing connection %s", cfg.ID)
		p.release(ctx, old)
	}
	return nil
}

// release disconnects an entry that is no longer registered. It waits for
// any in-flight operation on the entry to finish.
func (p *Pool) release(ctx context.Context, entry *pooledConn) error {
	entry.mu.Lock()
	err := entry.conn.Disconnect(ctx)
	entry.mu.Unlock()

	logCtx := contextFor(entry.config)
	if err != nil {
		p.dbLogger.LogDisconnectionFailure(logCtx, err)
		return fmt.Errorf("failed to disconnect %s: %w", entry.config.ID, err)
	}
	p.dbLogger.LogDisconnectionSuccess(logCtx)
	return nil
}

// Disconnect removes and closes the connection for id. An unknown id is not an error.
func (p *Pool) Disconnect(ctx context.Context, id string) error {
	p.mu.Lock()
	entry, ok := p.conns[id]
	delete(p.conns, id)
	n := len(p.conns)
	p.mu.Unlock()

	if !ok {
		p.safeLog("warn", "Disconnect requested for unknown connection %s", id)
		return nil
	}
	p.metrics.setConnections(n)
	return p.release(ctx, entry)
}

// CloseAll disconnects every registered connection in parallel.
func (p *Pool) CloseAll(ctx context.Context) error {
	p.mu.Lock()
	entries := make([]*pooledConn, 0, len(p.conns))
	for _, entry := range p.conns {
		entries = append(entries, entry)
	}
	p.conns = make(map[string]*pooledConn)
	p.mu.Unlock()
	p.metrics.setConnections(0)

	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range entries {
		g.Go(func() error {
			return p.release(gctx, entry)
		})
	}
	return g.Wait()
}

func (p *Pool) lookup(id string) (*pooledConn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.conns[id]
	return entry, ok
}

// IsConnected reports whether id is registered.
func (p *Pool) IsConnected(id string) bool {
	_, ok := p.lookup(id)
	return ok
}

// ConnectedIDs returns the registered ids in sorted order.
func (p *Pool) ConnectedIDs() []string {
	p.mu.RLock()
	ids := make([]string, 0, len(p.conns))
	for id := range p.conns {
		ids = append(ids, id)
	}
	p.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// LastUsed returns when id last finished an operation.
func (p *Pool) LastUsed(id string) (time.Time, bool) {
	entry, ok := p.lookup(id)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, entry.lastUsed.Load()), true
}

// Config returns the configuration id was connected with.
func (p *Pool) Config(id string) (adapter.ConnectionConfig, bool) {
	entry, ok := p.lookup(id)
	if !ok {
		return adapter.ConnectionConfig{}, false
	}
	return entry.config, true
}

// Do runs fn with exclusive use of the driver registered under id.
func (p *Pool) Do(ctx context.Context, id string, fn func(ctx context.Context, conn adapter.Connection) error) error {
	return p.run(ctx, id, "", fn)
}

func (p *Pool) run(ctx context.Context, id, operation string, fn func(ctx context.Context, conn adapter.Connection) error) error {
	entry, ok := p.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", adapter.ErrConnectionNotFound, id)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	start := time.Now()
	err := fn(ctx, entry.conn)
	elapsed := time.Since(start)
	entry.touch()

	p.metrics.observe(string(entry.config.Type), elapsed, err)
	logCtx := contextFor(entry.config)
	logCtx.Operation = operation
	p.dbLogger.LogOperation(logCtx, elapsed, err)

	if err != nil {
		if operation != "" {
			return fmt.Errorf("%s failed on connection %s: %w", operation, id, err)
		}
		return fmt.Errorf("connection %s: %w", id, err)
	}
	return nil
}

// WithConnection runs fn with exclusive use of the driver registered under id
// and returns its value.
func WithConnection[T any](ctx context.Context, p *Pool, id string, fn func(ctx context.Context, conn adapter.Connection) (T, error)) (T, error) {
	return call(ctx, p, id, "", fn)
}

func call[T any](ctx context.Context, p *Pool, id, operation string, fn func(ctx context.Context, conn adapter.Connection) (T, error)) (T, error) {
	var out T
	err := p.run(ctx, id, operation, func(ctx context.Context, conn adapter.Connection) error {
		v, err := fn(ctx, conn)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// ExecuteQuery runs a read statement on id.
func (p *Pool) ExecuteQuery(ctx context.Context, id, statement string) (*adapter.QueryResult, error) {
	return call(ctx, p, id, "execute_query", func(ctx context.Context, conn adapter.Connection) (*adapter.QueryResult, error) {
		return conn.ExecuteQuery(ctx, statement)
	})
}

// ExecuteUpdate runs a write statement on id.
func (p *Pool) ExecuteUpdate(ctx context.Context, id, statement string) (int64, error) {
	return call(ctx, p, id, "execute_update", func(ctx context.Context, conn adapter.Connection) (int64, error) {
		return conn.ExecuteUpdate(ctx, statement)
	})
}

// GetDatabases lists the databases visible to id.
func (p *Pool) GetDatabases(ctx context.Context, id string) ([]adapter.Database, error) {
	return call(ctx, p, id, "get_databases", func(ctx context.Context, conn adapter.Connection) ([]adapter.Database, error) {
		return conn.GetDatabases(ctx)
	})
}

// GetTables lists the tables of database.
func (p *Pool) GetTables(ctx context.Context, id, database string) ([]adapter.Table, error) {
	return call(ctx, p, id, "get_tables", func(ctx context.Context, conn adapter.Connection) ([]adapter.Table, error) {
		return conn.GetTables(ctx, database)
	})
}

// GetTableSchema describes table.
func (p *Pool) GetTableSchema(ctx context.Context, id, database, table string) (*adapter.TableSchema, error) {
	return call(ctx, p, id, "get_table_schema", func(ctx context.Context, conn adapter.Connection) (*adapter.TableSchema, error) {
		return conn.GetTableSchema(ctx, database, table)
	})
}

// GetTableData fetches one page of table.
func (p *Pool) GetTableData(ctx context.Context, id, database, table string, limit, offset int) (*adapter.QueryResult, error) {
	return call(ctx, p, id, "get_table_data", func(ctx context.Context, conn adapter.Connection) (*adapter.QueryResult, error) {
		return conn.GetTableData(ctx, database, table, limit, offset)
	})
}
