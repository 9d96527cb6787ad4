package adapter

import (
	"errors"
	"fmt"
	"time"
)

// Standard adapter errors
var (
	// ErrNotConnected is returned when an operation runs before connect or after disconnect
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionFailed is returned when a connection attempt fails
	ErrConnectionFailed = errors.New("connection failed")

	// ErrConnectionNotFound is returned when the pool has no entry for an id
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrInvalidConfiguration is returned when the configuration is invalid
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidQuery is returned when a statement is malformed or cannot be built
	ErrInvalidQuery = errors.New("invalid query")

	// ErrOperationNotSupported is returned when an engine does not support an operation
	ErrOperationNotSupported = errors.New("operation not supported by this database")

	// ErrBridgeTimeout is returned when the helper process never became healthy
	ErrBridgeTimeout = errors.New("bridge failed to start within timeout")

	// ErrProtocol is returned for malformed bridge frames
	ErrProtocol = errors.New("bridge protocol error")

	// ErrBuilderNotFound is returned when no builder is registered for an engine
	ErrBuilderNotFound = errors.New("builder not found")
)

// DatabaseError wraps engine errors with the operation that produced them.
type DatabaseError struct {
	DatabaseType DatabaseType
	Operation    string
	Cause        error
	Context      map[string]interface{}
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if len(e.Context) > 0 {
		return fmt.Sprintf("[%s] %s: %v (context: %v)", e.DatabaseType, e.Operation, e.Cause, e.Context)
	}
	return fmt.Sprintf("[%s] %s: %v", e.DatabaseType, e.Operation, e.Cause)
}

// Unwrap returns the underlying error.
func (e *DatabaseError) Unwrap() error {
	return e.Cause
}

// NewDatabaseError creates a new DatabaseError.
func NewDatabaseError(dbType DatabaseType, operation string, cause error) *DatabaseError {
	return &DatabaseError{
		DatabaseType: dbType,
		Operation:    operation,
		Cause:        cause,
		Context:      make(map[string]interface{}),
	}
}

// WithContext adds context to a DatabaseError.
func (e *DatabaseError) WithContext(key string, value interface{}) *DatabaseError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// ConnectionError is returned when a host is unreachable or rejects authentication.
type ConnectionError struct {
	DatabaseType DatabaseType
	Host         string
	Port         int
	Cause        error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s at %s:%d: %v", e.DatabaseType, e.Host, e.Port, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is ErrConnectionFailed.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnectionFailed
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(dbType DatabaseType, host string, port int, cause error) *ConnectionError {
	return &ConnectionError{
		DatabaseType: dbType,
		Host:         host,
		Port:         port,
		Cause:        cause,
	}
}

// NotConnectedError is returned for operations on a driver that holds no live client.
type NotConnectedError struct {
	DatabaseType DatabaseType
	Operation    string
}

// Error implements the error interface.
func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("Not connected to %s", e.DatabaseType)
}

// Is checks if the error is ErrNotConnected.
func (e *NotConnectedError) Is(target error) bool {
	return target == ErrNotConnected
}

// NewNotConnectedError creates a new NotConnectedError.
func NewNotConnectedError(dbType DatabaseType, operation string) *NotConnectedError {
	return &NotConnectedError{DatabaseType: dbType, Operation: operation}
}

// QueryError is returned for malformed statements and for statements the engine refuses.
type QueryError struct {
	DatabaseType DatabaseType
	Statement    string
	Cause        error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("%s query failed: %v", e.DatabaseType, e.Cause)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is ErrInvalidQuery.
func (e *QueryError) Is(target error) bool {
	return target == ErrInvalidQuery
}

// NewQueryError creates a new QueryError.
func NewQueryError(dbType DatabaseType, statement string, cause error) *QueryError {
	return &QueryError{DatabaseType: dbType, Statement: statement, Cause: cause}
}

// UnsupportedOperationError is returned when an operation is not supported.
type UnsupportedOperationError struct {
	DatabaseType DatabaseType
	Operation    string
	Reason       string
}

// Error implements the error interface.
func (e *UnsupportedOperationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s is not supported for this operation on %s: %s", e.Operation, e.DatabaseType, e.Reason)
	}
	return fmt.Sprintf("%s is not supported for this operation on %s", e.Operation, e.DatabaseType)
}

// Is checks if the error is ErrOperationNotSupported or ErrInvalidQuery.
func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrOperationNotSupported || target == ErrInvalidQuery
}

// NewUnsupportedOperationError creates a new UnsupportedOperationError.
func NewUnsupportedOperationError(dbType DatabaseType, operation string, reason string) *UnsupportedOperationError {
	return &UnsupportedOperationError{
		DatabaseType: dbType,
		Operation:    operation,
		Reason:       reason,
	}
}

// BridgeTimeoutError is returned when the helper process does not answer a health
// probe within the bounded restart window.
type BridgeTimeoutError struct {
	Attempts int
	Interval time.Duration
	Cause    error
}

// Error implements the error interface.
func (e *BridgeTimeoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("bridge failed to start within timeout (%d attempts every %s): %v", e.Attempts, e.Interval, e.Cause)
	}
	return fmt.Sprintf("bridge failed to start within timeout (%d attempts every %s)", e.Attempts, e.Interval)
}

// Unwrap returns the last probe error.
func (e *BridgeTimeoutError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is ErrBridgeTimeout.
func (e *BridgeTimeoutError) Is(target error) bool {
	return target == ErrBridgeTimeout
}

// ProtocolError is returned for frames that cannot be read or decoded.
type ProtocolError struct {
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("bridge protocol error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("bridge protocol error: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is ErrProtocol.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(reason string, cause error) *ProtocolError {
	return &ProtocolError{Reason: reason, Cause: cause}
}

// ConfigurationError is returned when a configuration error occurs.
type ConfigurationError struct {
	DatabaseType DatabaseType
	Field        string
	Reason       string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.DatabaseType == "" {
		return fmt.Sprintf("invalid configuration: field '%s': %s", e.Field, e.Reason)
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid configuration for %s: field '%s': %s", e.DatabaseType, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid configuration for %s: %s", e.DatabaseType, e.Reason)
}

// Is checks if the error is ErrInvalidConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(dbType DatabaseType, field string, reason string) *ConfigurationError {
	return &ConfigurationError{
		DatabaseType: dbType,
		Field:        field,
		Reason:       reason,
	}
}

// WrapError wraps an error with database context.
// If the error is already a DatabaseError, it returns it as-is.
func WrapError(dbType DatabaseType, operation string, err error) error {
	if err == nil {
		return nil
	}

	// Don't double-wrap
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return err
	}

	return NewDatabaseError(dbType, operation, err)
}

// IsNotConnected checks if an error means the driver holds no live client.
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}

// IsUnsupported checks if an error indicates an unsupported operation.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrOperationNotSupported)
}

// IsConnectionError checks if an error is a connection error.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}

// IsQueryError checks if an error is a query error.
func IsQueryError(err error) bool {
	return errors.Is(err, ErrInvalidQuery)
}

// IsBridgeTimeout checks if an error is a bridge startup timeout.
func IsBridgeTimeout(err error) bool {
	return errors.Is(err, ErrBridgeTimeout)
}

// IsProtocolError checks if an error is a bridge framing error.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrProtocol)
}

// IsConfigurationError checks if an error is a configuration error.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}
