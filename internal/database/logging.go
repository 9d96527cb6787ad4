package database

import (
	"fmt"
	"time"

	"github.com/redbco/dbgrid/pkg/adapter"
	"github.com/redbco/dbgrid/pkg/logger"
)

// DatabaseLogContext provides structured context for database logging
type DatabaseLogContext struct {
	DatabaseType adapter.DatabaseType
	ConnectionID string
	Host         string
	Port         int
	Operation    string
}

// contextFor builds a log context from a connection config.
func contextFor(cfg adapter.ConnectionConfig) DatabaseLogContext {
	return DatabaseLogContext{
		DatabaseType: cfg.Type,
		ConnectionID: cfg.ID,
		Host:         cfg.Host,
		Port:         cfg.Port,
	}
}

// DatabaseLogger provides unified logging for pooled connections.
type DatabaseLogger struct {
	logger *logger.Logger
}

// NewDatabaseLogger creates a new database logger. logger may be nil.
func NewDatabaseLogger(logger *logger.Logger) *DatabaseLogger {
	return &DatabaseLogger{
		logger: logger,
	}
}

// LogConnectionAttempt logs when a connection attempt is starting
func (dl *DatabaseLogger) LogConnectionAttempt(ctx DatabaseLogContext) {
	if dl.logger == nil {
		return
	}
	dl.logger.Info("%s", dl.formatConnectionMessage("Attempting connection", ctx))
}

// LogConnectionSuccess logs successful database connections
func (dl *DatabaseLogger) LogConnectionSuccess(ctx DatabaseLogContext) {
	if dl.logger == nil {
		return
	}
	dl.logger.Info("%s", dl.formatConnectionMessage("Connection established", ctx))
}

// LogConnectionFailure logs connection failures. Client databases failing is
// not fatal to the process, so these are warnings.
func (dl *DatabaseLogger) LogConnectionFailure(ctx DatabaseLogContext, err error) {
	if dl.logger == nil {
		return
	}
	dl.logger.Warn("%s: %v", dl.formatConnectionMessage("Connection failed", ctx), err)
}

// LogDisconnectionSuccess logs successful disconnections
func (dl *DatabaseLogger) LogDisconnectionSuccess(ctx DatabaseLogContext) {
	if dl.logger == nil {
		return
	}
	dl.logger.Info("%s", dl.formatConnectionMessage("Disconnection completed", ctx))
}

// LogDisconnectionFailure logs disconnection failures
func (dl *DatabaseLogger) LogDisconnectionFailure(ctx DatabaseLogContext, err error) {
	if dl.logger == nil {
		return
	}
	dl.logger.Warn("%s: %v", dl.formatConnectionMessage("Disconnection failed", ctx), err)
}

// LogOperation logs the outcome and duration of one pooled operation.
func (dl *DatabaseLogger) LogOperation(ctx DatabaseLogContext, elapsed time.Duration, err error) {
	if dl.logger == nil {
		return
	}
	if err != nil {
		dl.logger.Warn("%s elapsed=%s: %v", dl.formatOperationMessage("Operation failed", ctx), elapsed, err)
		return
	}
	dl.logger.Debug("%s elapsed=%s", dl.formatOperationMessage("Operation completed", ctx), elapsed)
}

func (dl *DatabaseLogger) formatConnectionMessage(action string, ctx DatabaseLogContext) string {
	base := fmt.Sprintf("[%s] %s", ctx.DatabaseType, action)

	if ctx.ConnectionID != "" {
		base = fmt.Sprintf("%s connection_id=%s", base, ctx.ConnectionID)
	}
	if ctx.Host != "" {
		if ctx.Port > 0 {
			base = fmt.Sprintf("%s host=%s:%d", base, ctx.Host, ctx.Port)
		} else {
			base = fmt.Sprintf("%s host=%s", base, ctx.Host)
		}
	}
	return base
}

func (dl *DatabaseLogger) formatOperationMessage(action string, ctx DatabaseLogContext) string {
	base := fmt.Sprintf("[%s] %s", ctx.DatabaseType, action)

	if ctx.Operation != "" {
		base = fmt.Sprintf("%s operation=%s", base, ctx.Operation)
	}
	if ctx.ConnectionID != "" {
		base = fmt.Sprintf("%s connection_id=%s", base, ctx.ConnectionID)
	}
	return base
}
