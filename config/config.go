package config

import (
	"maps"
	"slices"

	"github.com/kbukum/dirtytables/database"
	"github.com/kbukum/dirtytables/logger"
	"github.com/kbukum/dirtytables/observability"
	"github.com/kbukum/dirtytables/validation"
)

// ServiceName names the configuration file (dirtytables.yml) and tags logs.
const ServiceName = "dirtytables"

// Config is the root configuration.
//
//	logging:
//	  level: debug
//	connections:
//	  test:
//	    driver: sqlite
//	    dsn: file:/tmp/app_test.db
//	    dirty_table_collector_mode: temporary
//	ignored_connections: [test_legacy]
//	sniffers:
//	  mariadb: mysql
type Config struct {
	Name    string        `yaml:"name" mapstructure:"name"`
	Logging logger.Config `yaml:"logging" mapstructure:"logging"`

	// Connections maps a connection name to its settings.
	Connections map[string]database.Config `yaml:"connections" mapstructure:"connections" validate:"min=1,dive"`

	// IgnoredConnections are never truncated by the fixture manager.
	IgnoredConnections []string `yaml:"ignored_connections" mapstructure:"ignored_connections"`

	// Sniffers maps a driver name to the trigger provider serving it.
	Sniffers map[string]string `yaml:"sniffers" mapstructure:"sniffers"`

	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

// ApplyDefaults fills zero values, names every connection after its key
// and normalizes driver names.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = ServiceName
	}
	c.Logging.ApplyDefaults()
	c.Observability.ApplyDefaults()

	for name, conn := range c.Connections {
		if conn.Name == "" {
			conn.Name = name
		}
		conn.ApplyDefaults()
		c.Connections[name] = conn
	}

	if len(c.Sniffers) > 0 {
		sniffers := make(map[string]string, len(c.Sniffers))
		for driver, provider := range c.Sniffers {
			sniffers[database.NormalizeDriver(driver)] = provider
		}
		c.Sniffers = sniffers
	}
}

// Validate checks struct tags first, then each section.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}

	v := validation.New()
	v.Check("logging", c.Logging.Validate())
	v.Check("observability", c.Observability.Validate())
	for _, name := range c.ConnectionNames() {
		conn := c.Connections[name]
		v.Check("connections."+name, conn.Validate())
	}
	for _, driver := range slices.Sorted(maps.Keys(c.Sniffers)) {
		v.Required("sniffers."+driver, c.Sniffers[driver])
	}
	return v.Validate()
}

// ConnectionNames returns the configured connection names, sorted.
func (c *Config) ConnectionNames() []string {
	return slices.Sorted(maps.Keys(c.Connections))
}

// Connection returns the named connection settings.
func (c *Config) Connection(name string) (database.Config, bool) {
	conn, ok := c.Connections[name]
	return conn, ok
}

// IsIgnored reports whether a connection is listed in ignored_connections.
func (c *Config) IsIgnored(name string) bool {
	return slices.Contains(c.IgnoredConnections, name)
}

// Load reads the configuration from path (or the standard locations when
// path is empty), applies defaults and validates it.
func Load(path string, opts ...LoaderOption) (*Config, error) {
	if path != "" {
		opts = append([]LoaderOption{WithConfigFile(path)}, opts...)
	}
	var cfg Config
	if err := LoadConfig(ServiceName, &cfg, opts...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
