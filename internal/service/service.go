// Package service implements the table-grid operations on top of the
// connection pool and the builder registry.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redbco/dbgrid/internal/database"
	"github.com/redbco/dbgrid/pkg/adapter"
	"github.com/redbco/dbgrid/pkg/logger"
)

// ConfigSource resolves connection ids to configurations for on-demand connects.
type ConfigSource interface {
	Lookup(id string) (adapter.ConnectionConfig, bool)
}

// Configs is a ConfigSource backed by a slice.
type Configs []adapter.ConnectionConfig

// Lookup returns the entry with the given id.
func (c Configs) Lookup(id string) (adapter.ConnectionConfig, bool) {
	for _, cfg := range c {
		if cfg.ID == id {
			return cfg, true
		}
	}
	return adapter.ConnectionConfig{}, false
}

// Service runs grid operations against pooled connections.
type Service struct {
	pool    *database.Pool
	configs ConfigSource
	factory database.Factory
	logger  *logger.Logger
}

// New creates a service. configs may be nil, in which case only ids already
// in the pool can be used. factory is used by TestConnection.
func New(pool *database.Pool, configs ConfigSource, factory database.Factory, log *logger.Logger) *Service {
	if factory == nil {
		factory = database.NewFactory(database.Dependencies{Logger: log})
	}
	return &Service{pool: pool, configs: configs, factory: factory, logger: log}
}

// safeLog safely logs a message if logger is available
func (s *Service) safeLog(level string, format string, args ...interface{}) {
	if s.logger != nil {
		switch level {
		case "info":
			s.logger.Info(format, args...)
		case "error":
			s.logger.Error(format, args...)
		case "warn":
			s.logger.Warn(format, args...)
		case "debug":
			s.logger.Debug(format, args...)
		}
	}
}

// ensureConnected returns the pooled config for id, connecting it from the
// config source first when the pool does not hold it.
func (s *Service) ensureConnected(ctx context.Context, id string) (adapter.ConnectionConfig, error) {
	if cfg, ok := s.pool.Config(id); ok {
		return cfg, nil
	}

	s.safeLog("info", "Connection %s not in pool, looking in stored connections", id)
	if s.configs == nil {
		return adapter.ConnectionConfig{}, fmt.Errorf("%w: %s", adapter.ErrConnectionNotFound, id)
	}
	cfg, ok := s.configs.Lookup(id)
	if !ok {
		return adapter.ConnectionConfig{}, fmt.Errorf("%w: %s", adapter.ErrConnectionNotFound, id)
	}
	if err := s.pool.Connect(ctx, cfg); err != nil {
		return adapter.ConnectionConfig{}, err
	}

	cfg, _ = s.pool.Config(id)
	return cfg, nil
}

// Connect connects id from the config source, replacing any pooled connection.
func (s *Service) Connect(ctx context.Context, id string) error {
	if s.configs == nil {
		return fmt.Errorf("%w: %s", adapter.ErrConnectionNotFound, id)
	}
	cfg, ok := s.configs.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", adapter.ErrConnectionNotFound, id)
	}
	return s.pool.Connect(ctx, cfg)
}

// TestConnection opens a throwaway driver for cfg, tests it and closes it.
// The pool is not touched.
func (s *Service) TestConnection(ctx context.Context, cfg adapter.ConnectionConfig) (bool, error) {
	if err := cfg.Validate(); err != nil {
		return false, err
	}
	cfg.Type, _ = adapter.ParseDatabaseType(string(cfg.Type))
	cfg = cfg.WithDefaults()

	conn, err := s.factory(cfg.Type)
	if err != nil {
		return false, err
	}
	if err := conn.Connect(ctx, cfg); err != nil {
		return false, err
	}
	defer func() {
		if err := conn.Disconnect(ctx); err != nil {
			s.safeLog("warn", "Failed to close test connection %s: %v", cfg.ID, err)
		}
	}()
	return conn.TestConnection(ctx)
}

// ExecuteQuery runs a raw statement.
func (s *Service) ExecuteQuery(ctx context.Context, id, statement string) (*adapter.QueryResult, error) {
	if _, err := s.ensureConnected(ctx, id); err != nil {
		return nil, err
	}
	result, err := s.pool.ExecuteQuery(ctx, id, statement)
	if err != nil {
		return nil, err
	}
	if result.FinalQuery == "" {
		result.FinalQuery = statement
	}
	return result, nil
}

// ListDatabases lists the databases visible to id.
func (s *Service) ListDatabases(ctx context.Context, id string) ([]adapter.Database, error) {
	if _, err := s.ensureConnected(ctx, id); err != nil {
		return nil, err
	}
	return s.pool.GetDatabases(ctx, id)
}

// ListTables lists the tables of database.
func (s *Service) ListTables(ctx context.Context, id, database string) ([]adapter.Table, error) {
	if _, err := s.ensureConnected(ctx, id); err != nil {
		return nil, err
	}
	return s.pool.GetTables(ctx, id, database)
}

// TableSchema describes a table. It is always fetched fresh.
func (s *Service) TableSchema(ctx context.Context, id, database, table string) (*adapter.TableSchema, error) {
	if _, err := s.ensureConnected(ctx, id); err != nil {
		return nil, err
	}
	return s.pool.GetTableSchema(ctx, id, database, table)
}

// TableData fetches one page of a table with the engine's own paging.
func (s *Service) TableData(ctx context.Context, id, database, table string, limit, offset int) (*adapter.QueryResult, error) {
	if _, err := s.ensureConnected(ctx, id); err != nil {
		return nil, err
	}
	return s.pool.GetTableData(ctx, id, database, table, limit, offset)
}

// LoadTableData builds a SELECT for req with the engine's query builder,
// runs it and reshapes the rows for a grid.
func (s *Service) LoadTableData(ctx context.Context, id string, req adapter.QueryRequest) (*adapter.TableDataResponse, error) {
	cfg, err := s.ensureConnected(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Type == "" {
		req.Type = cfg.Type
	}

	qb, err := adapter.GetQueryBuilder(req.Type)
	if err != nil {
		return nil, err
	}
	query, err := qb.BuildSelectQuery(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	s.safeLog("debug", "Generated query for %s: %s", id, query)

	start := time.Now()
	result, err := s.pool.ExecuteQuery(ctx, id, query)
	if err != nil {
		return nil, err
	}
	resp := result.ToTableData(query, req.Limit, time.Since(start))

	s.safeLog("info", "Data loaded for %s. Rows: %d, Columns: %d", req.Table, len(resp.Rows), len(resp.Columns))
	return resp, nil
}

// schemaQualified joins schema and table for engines whose schema lookups
// take a schema-qualified name.
func schemaQualified(dbType adapter.DatabaseType, schema, table string) string {
	if schema == "" || strings.Contains(table, ".") {
		return table
	}
	switch dbType {
	case adapter.PostgreSQL, adapter.MSSQL:
		return schema + "." + table
	default:
		return table
	}
}
