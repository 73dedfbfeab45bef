package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/kbukum/dirtytables/errors"
	"github.com/kbukum/dirtytables/logger"
	"github.com/kbukum/dirtytables/resilience"
)

// Connection is a gorm-backed Executor pinned to a small pool.
type Connection struct {
	db     *gorm.DB
	cfg    Config
	log    *logger.Logger
	inTx   bool
	closed bool
	mu     *sync.Mutex
}

var _ Executor = (*Connection)(nil)

// Open connects with the dialector matching cfg.Driver.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*Connection, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialector, err := Dialector(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, apperrors.Configuration(err.Error())
	}
	return OpenWithDialector(ctx, dialector, cfg, log)
}

// OpenWithDialector creates a connection with context-aware retry logic.
// Connection errors are retried with exponential backoff; anything else, such as
// a missing database or bad credentials, fails right away.
func OpenWithDialector(ctx context.Context, dialector gorm.Dialector, cfg Config, log *logger.Logger) (*Connection, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("database").WithFields(logger.Fields(
		logger.FieldConnection, cfg.Name,
		logger.FieldDriver, cfg.Driver,
	))

	slowThreshold, _ := time.ParseDuration(cfg.SlowQueryThreshold)
	gormCfg := &gorm.Config{
		Logger: newGormLogger(log, slowThreshold, parseLogLevel(cfg.LogLevel)),
	}

	conn, err := resilience.Retry(ctx, resilience.RetryConfig{
		MaxAttempts:    cfg.MaxRetries,
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2,
		RetryIf:        IsRetryableError,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			log.Warn("Database connection attempt failed, retrying", map[string]interface{}{
				logger.FieldAttempt: attempt,
				logger.FieldError:   err.Error(),
				"backoff":           backoff.String(),
			})
		},
	}, func(attempt int) (*Connection, error) {
		return connect(ctx, dialector, gormCfg, cfg, log, attempt)
	})
	if err != nil {
		return nil, apperrors.ConnectionFailed(cfg.Name, err)
	}
	return conn, nil
}

func connect(ctx context.Context, dialector gorm.Dialector, gormCfg *gorm.Config, cfg Config, log *logger.Logger, attempt int) (*Connection, error) {
	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	if lifetime, parseErr := time.ParseDuration(cfg.ConnMaxLifetime); parseErr == nil {
		sqlDB.SetConnMaxLifetime(lifetime)
	}
	if cfg.ConnMaxIdleTime != "" {
		if idleTime, parseErr := time.ParseDuration(cfg.ConnMaxIdleTime); parseErr == nil {
			sqlDB.SetConnMaxIdleTime(idleTime)
		}
	}

	log.Debug("Database connection established", logger.Fields(logger.FieldAttempt, attempt))
	return &Connection{db: db, cfg: cfg, log: log, mu: &sync.Mutex{}}, nil
}

// Name returns the connection name.
func (c *Connection) Name() string { return c.cfg.Name }

// Config returns the effective configuration.
func (c *Connection) Config() Config { return c.cfg }

// Gorm exposes the underlying gorm session, mainly for fixtures.
func (c *Connection) Gorm() *gorm.DB { return c.db }

// Exec runs a statement that returns no rows. Placeholders are written as
// "?" for every driver.
func (c *Connection) Exec(ctx context.Context, query string, args ...any) error {
	return c.db.WithContext(ctx).Exec(query, args...).Error
}

// Query runs a statement and buffers every row.
func (c *Connection) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	rows, err := c.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := &Rows{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out.Values = append(out.Values, values)
	}
	return out, rows.Err()
}

// ListTables returns every table the session can see, its temporary
// tables included where the catalog exposes them.
func (c *Connection) ListTables(ctx context.Context) ([]string, error) {
	query, err := listTablesSQL(c.cfg.Driver)
	if err != nil {
		return nil, err
	}
	rows, err := c.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return rows.Strings(), nil
}

// Transaction runs fn inside a gorm transaction.
func (c *Connection) Transaction(ctx context.Context, fn func(Executor) error) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Connection{db: tx, cfg: c.cfg, log: c.log, inTx: true, mu: c.mu})
	})
}

// Ping verifies the database connection is alive.
func (c *Connection) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying pool. Safe to call multiple times; a no-op
// inside a transaction.
func (c *Connection) Close() error {
	if c.inTx {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("close %s: %w", c.cfg.Name, err)
	}
	c.log.Debug("Closing database connection")
	c.closed = true
	return sqlDB.Close()
}
