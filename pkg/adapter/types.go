package adapter

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DatabaseType identifies one engine of the closed engine set.
type DatabaseType string

const (
	MySQL      DatabaseType = "MySQL"
	PostgreSQL DatabaseType = "PostgreSQL"
	MongoDB    DatabaseType = "MongoDB"
	Redis      DatabaseType = "Redis"
	Ignite     DatabaseType = "Ignite"
	MSSQL      DatabaseType = "MSSQL"
)

// AllDatabaseTypes lists every supported engine.
var AllDatabaseTypes = []DatabaseType{MySQL, PostgreSQL, MongoDB, Redis, Ignite, MSSQL}

var databaseTypeAliases = map[string]DatabaseType{
	"mysql":      MySQL,
	"mariadb":    MySQL,
	"postgres":   PostgreSQL,
	"postgresql": PostgreSQL,
	"pg":         PostgreSQL,
	"mongodb":    MongoDB,
	"mongo":      MongoDB,
	"redis":      Redis,
	"ignite":     Ignite,
	"mssql":      MSSQL,
	"sqlserver":  MSSQL,
}

// ParseDatabaseType resolves an engine name or alias, case-insensitively.
func ParseDatabaseType(s string) (DatabaseType, bool) {
	t, ok := databaseTypeAliases[strings.ToLower(strings.TrimSpace(s))]
	return t, ok
}

// DefaultPort returns the engine's well-known port.
func (t DatabaseType) DefaultPort() int {
	switch t {
	case MySQL:
		return 3306
	case PostgreSQL:
		return 5432
	case MongoDB:
		return 27017
	case Redis:
		return 6379
	case Ignite:
		return 10800
	case MSSQL:
		return 1433
	default:
		return 0
	}
}

// IsSQL reports whether the engine speaks string-composed SQL.
func (t DatabaseType) IsSQL() bool {
	switch t {
	case MySQL, PostgreSQL, MSSQL, Ignite:
		return true
	default:
		return false
	}
}

// UnmarshalJSON accepts both canonical names and aliases.
func (t *DatabaseType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseDatabaseType(s)
	if !ok {
		return fmt.Errorf("unknown database type %q", s)
	}
	*t = parsed
	return nil
}

// UnmarshalYAML accepts both canonical names and aliases.
func (t *DatabaseType) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, ok := ParseDatabaseType(s)
	if !ok {
		return fmt.Errorf("unknown database type %q", s)
	}
	*t = parsed
	return nil
}

// ConnectionConfig describes one logical connection. The id is the pool key.
type ConnectionConfig struct {
	ID       string       `json:"id" yaml:"id"`
	Name     string       `json:"name" yaml:"name"`
	Type     DatabaseType `json:"db_type" yaml:"db_type"`
	Host     string       `json:"host" yaml:"host"`
	Port     int          `json:"port" yaml:"port"`
	Username string       `json:"username,omitempty" yaml:"username,omitempty"`
	Password string       `json:"password,omitempty" yaml:"password,omitempty"`
	Database string       `json:"database,omitempty" yaml:"database,omitempty"`
	SSL      bool         `json:"ssl" yaml:"ssl"`
}

// Validate checks the fields every driver relies on.
func (c ConnectionConfig) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return NewConfigurationError(c.Type, "id", "connection id is required")
	}
	if _, ok := ParseDatabaseType(string(c.Type)); !ok {
		return NewConfigurationError(c.Type, "db_type", fmt.Sprintf("unknown database type: %s", c.Type))
	}
	if strings.TrimSpace(c.Host) == "" {
		return NewConfigurationError(c.Type, "host", "host is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return NewConfigurationError(c.Type, "port", fmt.Sprintf("port out of range: %d", c.Port))
	}
	return nil
}

// WithDefaults fills the port from the engine default when unset.
func (c ConnectionConfig) WithDefaults() ConnectionConfig {
	if c.Port == 0 {
		c.Port = c.Type.DefaultPort()
	}
	return c
}

// Address returns host:port.
func (c ConnectionConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// UsernameOr returns the configured user or the given default.
func (c ConnectionConfig) UsernameOr(def string) string {
	if c.Username != "" {
		return c.Username
	}
	return def
}

// DatabaseOr returns the configured database or the given default.
func (c ConnectionConfig) DatabaseOr(def string) string {
	if c.Database != "" {
		return c.Database
	}
	return def
}
