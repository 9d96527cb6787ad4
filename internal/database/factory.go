package database

import (
	"fmt"

	"github.com/redbco/dbgrid/internal/bridge"
	"github.com/redbco/dbgrid/internal/database/ignite"
	"github.com/redbco/dbgrid/internal/database/mongodb"
	"github.com/redbco/dbgrid/internal/database/mssql"
	"github.com/redbco/dbgrid/internal/database/mysql"
	"github.com/redbco/dbgrid/internal/database/postgres"
	"github.com/redbco/dbgrid/internal/database/redis"
	"github.com/redbco/dbgrid/pkg/adapter"
	"github.com/redbco/dbgrid/pkg/logger"
)

// Dependencies are the shared objects drivers are built with.
type Dependencies struct {
	Logger *logger.Logger
	// Bridge is required for Ignite only.
	Bridge *bridge.Manager
}

// Factory builds an unconnected driver for an engine.
type Factory func(dbType adapter.DatabaseType) (adapter.Connection, error)

// NewConnection returns an unconnected driver for dbType.
func NewConnection(dbType adapter.DatabaseType, deps Dependencies) (adapter.Connection, error) {
	switch dbType {
	case adapter.MySQL:
		return mysql.NewConnection(deps.Logger), nil
	case adapter.PostgreSQL:
		return postgres.NewConnection(deps.Logger), nil
	case adapter.MSSQL:
		return mssql.NewConnection(deps.Logger), nil
	case adapter.MongoDB:
		return mongodb.NewConnection(deps.Logger), nil
	case adapter.Redis:
		return redis.NewConnection(deps.Logger), nil
	case adapter.Ignite:
		if deps.Bridge == nil {
			return nil, adapter.NewConfigurationError(adapter.Ignite, "bridge", "bridge manager is required")
		}
		return ignite.NewConnection(deps.Bridge, deps.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// NewFactory binds deps into a Factory for the pool.
func NewFactory(deps Dependencies) Factory {
	return func(dbType adapter.DatabaseType) (adapter.Connection, error) {
		return NewConnection(dbType, deps)
	}
}
