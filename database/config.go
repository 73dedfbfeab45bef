package database

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/kbukum/dirtytables/errors"
)

// Supported drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Collector modes as they appear in configuration.
const (
	CollectorModeTemporary = "temporary"
	CollectorModePermanent = "permanent"
)

// Config holds the configuration of one named test connection.
type Config struct {
	// Name identifies the connection, e.g. "test" or "test_reporting".
	Name string `mapstructure:"name" yaml:"name"`

	// Driver is one of mysql, postgres or sqlite.
	Driver string `mapstructure:"driver" yaml:"driver" validate:"required"`

	// DSN is the driver-specific connection string.
	DSN string `mapstructure:"dsn" yaml:"dsn" validate:"required"`

	// Database is the database name used in error messages.
	// Derived from the DSN when empty.
	Database string `mapstructure:"database" yaml:"database"`

	// CollectorMode selects where dirty tables are recorded: "temporary" or
	// "permanent". Empty means permanent.
	CollectorMode string `mapstructure:"dirty_table_collector_mode" yaml:"dirty_table_collector_mode"`

	// MaxOpenConns caps the pool. Temporary collectors only live on one
	// session, so the default is 1.
	MaxOpenConns int `mapstructure:"max_open_conns" yaml:"max_open_conns"`

	// MaxIdleConns must keep at least one session alive between statements.
	MaxIdleConns int `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`

	// ConnMaxLifetime is the maximum time a session may be reused. "0" keeps it forever.
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`

	// ConnMaxIdleTime is the maximum time a session may sit idle.
	// If empty, no idle timeout is set.
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`

	// MaxRetries is the number of connection attempts before giving up.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`

	// SlowQueryThreshold is the duration above which queries are logged as slow (e.g. "200ms").
	SlowQueryThreshold string `mapstructure:"slow_query_threshold" yaml:"slow_query_threshold"`

	// LogLevel controls gorm statement logging: silent, error, warn or info.
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	c.Driver = NormalizeDriver(c.Driver)
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 1
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 1
	}
	if c.ConnMaxLifetime == "" {
		c.ConnMaxLifetime = "0"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.SlowQueryThreshold == "" {
		c.SlowQueryThreshold = "200ms"
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.Database == "" && c.DSN != "" {
		if name, err := DatabaseName(c.Driver, c.DSN); err == nil {
			c.Database = name
		}
	}
}

// Validate checks that required fields are present and parseable.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	case "":
		return c.invalid("driver is required")
	default:
		return c.invalid(fmt.Sprintf("driver %q is not supported", c.Driver))
	}
	if c.DSN == "" {
		return c.invalid("dsn is required")
	}
	switch c.CollectorMode {
	case "", CollectorModeTemporary, CollectorModePermanent:
	default:
		return c.invalid(fmt.Sprintf("dirty_table_collector_mode %q must be %q or %q",
			c.CollectorMode, CollectorModeTemporary, CollectorModePermanent))
	}
	if c.MaxOpenConns <= 0 {
		return c.invalid("max_open_conns must be > 0")
	}
	if c.MaxIdleConns <= 0 {
		return c.invalid("max_idle_conns must be > 0")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return c.invalid(fmt.Sprintf("max_idle_conns (%d) must be <= max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns))
	}
	if c.CollectorMode == CollectorModeTemporary && c.MaxOpenConns != 1 {
		return c.invalid("a temporary dirty table collector needs max_open_conns = 1")
	}
	if _, err := time.ParseDuration(c.ConnMaxLifetime); err != nil {
		return c.invalid(fmt.Sprintf("invalid conn_max_lifetime %q: %v", c.ConnMaxLifetime, err))
	}
	if c.ConnMaxIdleTime != "" {
		if _, err := time.ParseDuration(c.ConnMaxIdleTime); err != nil {
			return c.invalid(fmt.Sprintf("invalid conn_max_idle_time %q: %v", c.ConnMaxIdleTime, err))
		}
	}
	if _, err := time.ParseDuration(c.SlowQueryThreshold); err != nil {
		return c.invalid(fmt.Sprintf("invalid slow_query_threshold %q: %v", c.SlowQueryThreshold, err))
	}
	if c.MaxRetries <= 0 {
		return c.invalid("max_retries must be > 0")
	}
	return nil
}

func (c *Config) invalid(msg string) error {
	if c.Name != "" {
		msg = fmt.Sprintf("connection '%s': %s", c.Name, msg)
	}
	return apperrors.Configuration(msg)
}

// NormalizeDriver maps common driver aliases onto the supported names.
func NormalizeDriver(driver string) string {
	switch d := strings.ToLower(strings.TrimSpace(driver)); d {
	case "postgresql", "pgx", "pg":
		return DriverPostgres
	case "sqlite3":
		return DriverSQLite
	case "mariadb":
		return DriverMySQL
	default:
		return d
	}
}
