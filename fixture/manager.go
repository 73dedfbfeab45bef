package fixture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/dirtytables/component"
	"github.com/kbukum/dirtytables/config"
	"github.com/kbukum/dirtytables/database"
	apperrors "github.com/kbukum/dirtytables/errors"
	"github.com/kbukum/dirtytables/logger"
	"github.com/kbukum/dirtytables/observability"
	"github.com/kbukum/dirtytables/sniffer"
	"github.com/kbukum/dirtytables/sniffer/mysql"
	"github.com/kbukum/dirtytables/sniffer/postgres"
	"github.com/kbukum/dirtytables/sniffer/sqlite"
)

// ComponentName is the registry name of a Manager.
const ComponentName = "dirtytables"

// DebugKitConnection is never truncated.
const DebugKitConnection = "test_debug_kit"

// ProviderFactory creates the trigger provider of a driver.
type ProviderFactory func() sniffer.TriggerProvider

// Opener opens the connection described by cfg.
type Opener func(ctx context.Context, cfg database.Config, log *logger.Logger) (database.Executor, error)

// OpenConnection opens a gorm-backed connection.
func OpenConnection(ctx context.Context, cfg database.Config, log *logger.Logger) (database.Executor, error) {
	conn, err := database.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// DefaultProviders returns the built-in provider of each driver.
func DefaultProviders() map[string]ProviderFactory {
	return map[string]ProviderFactory{
		database.DriverMySQL:    mysql.New,
		database.DriverPostgres: postgres.New,
		database.DriverSQLite:   sqlite.New,
	}
}

// Manager opens the configured connections on demand and keeps one
// tracker per connection.
type Manager struct {
	cfg      *config.Config
	log      *logger.Logger
	runID    string
	metrics  *observability.Metrics
	open     Opener
	trackers *sniffer.Registry

	mu        sync.Mutex
	conns     map[string]*component.Lazy[database.Executor]
	providers map[string]ProviderFactory
}

var (
	_ component.Component   = (*Manager)(nil)
	_ component.Describable = (*Manager)(nil)
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithMetrics records truncations, restarts and errors on metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithOpener replaces the function that opens connections.
func WithOpener(open Opener) Option {
	return func(m *Manager) {
		if open != nil {
			m.open = open
		}
	}
}

// New creates a manager for cfg, which must have defaults applied. No
// connection is opened until it is used.
func New(cfg *config.Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, apperrors.Configuration("the fixture manager needs a configuration")
	}
	m := &Manager{
		cfg:       cfg,
		log:       logger.Nop(),
		runID:     uuid.NewString(),
		open:      OpenConnection,
		conns:     make(map[string]*component.Lazy[database.Executor]),
		providers: DefaultProviders(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithComponent("fixtures").WithFields(logger.Fields(logger.FieldRunID, m.runID))
	m.trackers = sniffer.NewRegistry(m.log, sniffer.WithMetrics(m.metrics))

	for _, name := range cfg.ConnectionNames() {
		m.conns[name] = m.lazyConnection(cfg.Connections[name])
	}
	return m, nil
}

func (m *Manager) lazyConnection(cfg database.Config) *component.Lazy[database.Executor] {
	return component.NewLazy(cfg.Name, func(ctx context.Context) (database.Executor, error) {
		return m.open(ctx, cfg, m.log)
	}).
		WithLogger(m.log).
		WithHealthCheck(func(ctx context.Context, ex database.Executor) error {
			if p, ok := ex.(interface{ Ping(context.Context) error }); ok {
				return p.Ping(ctx)
			}
			return nil
		}).
		WithCloser(func(ex database.Executor) error {
			if c, ok := ex.(io.Closer); ok {
				return c.Close()
			}
			return nil
		})
}

// RunID identifies this manager in logs.
func (m *Manager) RunID() string { return m.runID }

// Config returns the configuration the manager was built from.
func (m *Manager) Config() *config.Config { return m.cfg }

// RegisterProvider adds or replaces the provider factory known as name.
// Drivers map to providers by name, through the sniffers setting when
// present.
func (m *Manager) RegisterProvider(name string, factory ProviderFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[name] = factory
}

// Provider returns the trigger provider serving driver.
func (m *Manager) Provider(driver string) (sniffer.TriggerProvider, error) {
	name := driver
	if override, ok := m.cfg.Sniffers[driver]; ok {
		name = override
	}
	m.mu.Lock()
	factory, ok := m.providers[name]
	m.mu.Unlock()
	if !ok || factory == nil {
		return nil, apperrors.Configuration(fmt.Sprintf("The DB driver %s is not being supported", driver))
	}
	return factory(), nil
}

// Connection returns the named connection, opening it on first use.
func (m *Manager) Connection(ctx context.Context, name string) (database.Executor, error) {
	m.mu.Lock()
	lazy, ok := m.conns[name]
	m.mu.Unlock()
	if !ok {
		return nil, apperrors.UnknownConnection(name)
	}
	return lazy.Get(ctx)
}

// Tracker returns the initialized tracker of the named connection.
func (m *Manager) Tracker(ctx context.Context, name string) (t *sniffer.Tracker, err error) {
	if t, ok := m.trackers.Lookup(name); ok {
		return t, nil
	}

	ctx, op := observability.StartOperation(ctx, observability.SpanInit, name, m.metrics)
	defer func() { op.End(err) }()

	conn, err := m.Connection(ctx, name)
	if err != nil {
		return nil, err
	}
	provider, err := m.Provider(conn.Config().Driver)
	if err != nil {
		return nil, err
	}
	op.SetAttributes(attribute.String(observability.AttrDriver, provider.Driver()))
	return m.trackers.Get(ctx, conn, provider)
}

// IsTestConnection reports whether name is "test" or starts with "test_".
func IsTestConnection(name string) bool {
	return name == "test" || strings.HasPrefix(name, "test_")
}

// TestConnectionNames lists the connections cleaned between tests: test
// connections that are neither the debug kit connection nor ignored.
func (m *Manager) TestConnectionNames() []string {
	var names []string
	for _, name := range m.cfg.ConnectionNames() {
		if name == DebugKitConnection || m.cfg.IsIgnored(name) || !IsTestConnection(name) {
			continue
		}
		names = append(names, name)
	}
	return names
}

// TruncateDirtyTablesForAllTestConnections truncates the dirty tables of
// every test connection. It stops at the first failure.
func (m *Manager) TruncateDirtyTablesForAllTestConnections(ctx context.Context) error {
	for _, name := range m.TestConnectionNames() {
		if err := m.TruncateDirtyTables(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// TruncateDirtyTables truncates the dirty tables of one connection.
func (m *Manager) TruncateDirtyTables(ctx context.Context, name string) (err error) {
	t, err := m.Tracker(ctx, name)
	if err != nil {
		return err
	}

	ctx, op := observability.StartOperation(ctx, observability.SpanTruncate, name, m.metrics)
	dirty := 0
	defer func() {
		op.SetAttributes(attribute.Int(observability.AttrTables, dirty))
		m.metrics.RecordTruncation(ctx, name, dirty, op.Duration(), observability.Status(err))
		op.End(err)
	}()

	tables, err := t.DirtyTables(ctx)
	if err != nil {
		return err
	}
	dirty = len(tables)
	if dirty == 0 {
		return nil
	}
	if err := t.TruncateDirtyTables(ctx); err != nil {
		return err
	}
	m.log.Debug("Dirty tables truncated", logger.Fields(
		logger.FieldConnection, name,
		logger.FieldTables, tables,
	))
	return nil
}

// Detached returns the registered tracker of the connection, or a new
// tracker that has not been initialized. It never creates database objects.
func (m *Manager) Detached(ctx context.Context, name string) (*sniffer.Tracker, error) {
	if t, ok := m.trackers.Lookup(name); ok {
		return t, nil
	}
	conn, err := m.Connection(ctx, name)
	if err != nil {
		return nil, err
	}
	provider, err := m.Provider(conn.Config().Driver)
	if err != nil {
		return nil, err
	}
	return sniffer.New(conn, provider, sniffer.WithLogger(m.log), sniffer.WithMetrics(m.metrics))
}

// Shutdown removes the collector and triggers of the connection and
// forgets its tracker.
func (m *Manager) Shutdown(ctx context.Context, name string) (err error) {
	ctx, op := observability.StartOperation(ctx, observability.SpanShutdown, name, m.metrics)
	defer func() { op.End(err) }()

	t, err := m.Detached(ctx, name)
	if err != nil {
		return err
	}
	if err := t.Shutdown(ctx); err != nil {
		return err
	}
	m.trackers.Forget(name)
	return nil
}

// DropTables drops every table of the connection and the tracking objects.
// The next use of the connection tracks the schema created after the drop.
func (m *Manager) DropTables(ctx context.Context, name string) (err error) {
	ctx, op := observability.StartOperation(ctx, observability.SpanDropTables, name, m.metrics)
	defer func() { op.End(err) }()

	t, err := m.Detached(ctx, name)
	if err != nil {
		return err
	}
	if err := t.DropAllTables(ctx); err != nil {
		return err
	}
	if err := t.Shutdown(ctx); err != nil {
		return err
	}
	m.trackers.Forget(name)
	return nil
}

// Close closes every open connection and forgets the trackers.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, name := range m.cfg.ConnectionNames() {
		if lazy, ok := m.conns[name]; ok {
			if err := lazy.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close connection %s: %w", name, err))
			}
		}
	}
	m.trackers.Reset()
	return errors.Join(errs...)
}

// Name implements component.Component.
func (m *Manager) Name() string { return ComponentName }

// Start opens every test connection and initializes its tracker.
func (m *Manager) Start(ctx context.Context) error {
	for _, name := range m.TestConnectionNames() {
		if _, err := m.Tracker(ctx, name); err != nil {
			return err
		}
	}
	m.log.Info("Fixture manager started", logger.Fields("connections", m.TestConnectionNames()))
	return nil
}

// Stop closes the connections. Permanent collectors and triggers stay in
// place for the next run.
func (m *Manager) Stop(ctx context.Context) error {
	return m.Close()
}

// Reset truncates the dirty tables of every test connection.
func (m *Manager) Reset(ctx context.Context) error {
	return m.TruncateDirtyTablesForAllTestConnections(ctx)
}

// Health pings every open connection.
func (m *Manager) Health(ctx context.Context) component.Health {
	m.mu.Lock()
	defer m.mu.Unlock()

	var failed []string
	for _, name := range m.cfg.ConnectionNames() {
		lazy := m.conns[name]
		if !lazy.IsInitialized() {
			continue
		}
		if err := lazy.HealthCheck(ctx); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(failed) > 0 {
		return component.Health{Name: m.Name(), Status: component.StatusUnhealthy, Message: strings.Join(failed, "; ")}
	}
	return component.Health{Name: m.Name(), Status: component.StatusHealthy}
}

// Describe implements component.Describable.
func (m *Manager) Describe() component.Description {
	m.mu.Lock()
	defer m.mu.Unlock()

	open := 0
	for _, lazy := range m.conns {
		if lazy.IsInitialized() {
			open++
		}
	}
	return component.Description{
		Name:    "Dirty table fixtures",
		Type:    "fixtures",
		Details: fmt.Sprintf("%d connections, %d open, run %s", len(m.conns), open, m.runID),
	}
}
