package sniffer

import (
	"context"
	"fmt"
	"slices"

	"github.com/kbukum/dirtytables/database"
	apperrors "github.com/kbukum/dirtytables/errors"
	"github.com/kbukum/dirtytables/logger"
	"github.com/kbukum/dirtytables/observability"
)

var (
	selectDirtyTablesSQL = "SELECT table_name FROM " + CollectorTable
	probeCollectorSQL    = selectDirtyTablesSQL + " WHERE 1 = 0"
	dropCollectorSQL     = "DROP TABLE IF EXISTS " + CollectorTable
)

func createCollectorSQL(mode Mode) string {
	temporary := ""
	if mode.Temporary() {
		temporary = "TEMPORARY "
	}
	return fmt.Sprintf("CREATE %sTABLE IF NOT EXISTS %s (table_name VARCHAR(128) PRIMARY KEY)", temporary, CollectorTable)
}

// Tracker records inserted-into tables of one connection and truncates them.
type Tracker struct {
	conn     database.Executor
	provider TriggerProvider
	mode     Mode
	tables   tableCache
	log      *logger.Logger
	metrics  *observability.Metrics
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *logger.Logger) Option {
	return func(t *Tracker) {
		if log != nil {
			t.log = log
		}
	}
}

// WithMetrics records restarts on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// New creates a tracker for conn. The mode comes from the connection's
// dirty_table_collector_mode; an unknown value is a configuration error.
// New issues no SQL.
func New(conn database.Executor, provider TriggerProvider, opts ...Option) (*Tracker, error) {
	if conn == nil {
		return nil, apperrors.Configuration("a tracker needs a connection")
	}
	if provider == nil {
		return nil, apperrors.Configuration(fmt.Sprintf("no trigger provider for connection '%s'", conn.Name()))
	}
	mode, err := ParseMode(conn.Config().CollectorMode)
	if err != nil {
		return nil, err
	}
	t := &Tracker{
		conn:     conn,
		provider: provider,
		mode:     mode,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.WithComponent("sniffer").WithFields(logger.Fields(
		logger.FieldConnection, conn.Name(),
		logger.FieldDriver, provider.Driver(),
	))
	return t, nil
}

// Connection returns the connection the tracker issues statements on.
func (t *Tracker) Connection() database.Executor { return t.conn }

// Provider returns the trigger provider.
func (t *Tracker) Provider() TriggerProvider { return t.provider }

// Init creates the collector, the triggers and the truncate procedure, then
// marks every table dirty so the first cleanup empties everything. It does
// nothing when the collector already exists.
func (t *Tracker) Init(ctx context.Context) error {
	t.tables.invalidate()

	exists, err := t.CollectorExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		t.log.Debug("Collector already exists", logger.Fields(logger.FieldMode, t.mode.String()))
		return nil
	}

	tables, err := t.AllTablesExceptMigrationLogsAndCollector(ctx, false)
	if err != nil {
		return err
	}
	triggers, err := BuildTriggers(tables, t.provider.MaxIdentifierLength())
	if err != nil {
		return apperrors.Initialization(t.conn.Name(), CollectorTable, err)
	}

	if err := t.exec(ctx, createCollectorSQL(t.mode)); err != nil {
		return err
	}
	if err := t.provider.CreateTriggers(ctx, t.conn, triggers, t.mode); err != nil {
		t.abandon(ctx)
		return apperrors.Initialization(t.conn.Name(), CollectorTable, err)
	}
	if err := t.provider.CreateTruncateDirtyTablesProcedure(ctx, t.conn); err != nil {
		t.abandon(ctx)
		return apperrors.Initialization(t.conn.Name(), CollectorTable, err)
	}
	if err := t.markAll(ctx, tables); err != nil {
		return err
	}
	t.tables.invalidate()

	t.log.Info("Dirty table tracking initialized", logger.Fields(
		logger.FieldMode, t.mode.String(),
		logger.FieldTables, len(tables),
	))
	return nil
}

// abandon removes what a failed Init created. Without it the collector
// would survive and the next Init would report success with no triggers.
func (t *Tracker) abandon(ctx context.Context) {
	if err := t.provider.DropTriggers(ctx, t.conn); err != nil {
		t.log.Warn("Failed to drop triggers after failed init", logger.ErrorFields("drop_triggers", err))
	}
	if err := t.conn.Exec(ctx, dropCollectorSQL); err != nil {
		t.log.Warn("Failed to drop collector after failed init", logger.ErrorFields("drop_collector", err))
	}
	t.tables.invalidate()
}

// Shutdown drops the triggers and the collector. It is safe to call on an
// uninitialized connection.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.tables.invalidate()
	if err := t.provider.DropTriggers(ctx, t.conn); err != nil {
		return t.queryError(err)
	}
	if err := t.exec(ctx, dropCollectorSQL); err != nil {
		return err
	}
	t.log.Debug("Dirty table tracking shut down")
	return nil
}

// Restart runs Shutdown then Init.
func (t *Tracker) Restart(ctx context.Context) error {
	if err := t.Shutdown(ctx); err != nil {
		return err
	}
	return t.Init(ctx)
}

func (t *Tracker) restart(ctx context.Context, reason string) error {
	t.metrics.RecordRestart(ctx, t.conn.Name(), reason)
	t.log.Debug("Restarting dirty table tracking", logger.Fields("reason", reason))
	return t.Restart(ctx)
}

// DirtyTables returns the tables inserted into since the last truncation.
// When the collector cannot be read the tracker restarts once and reads
// again; a second failure is a tracking error.
func (t *Tracker) DirtyTables(ctx context.Context) ([]string, error) {
	dirty, err := t.fetch(ctx, selectDirtyTablesSQL)
	if err == nil {
		return dirty, nil
	}
	t.log.Warn("Dirty table collector unreadable, restarting", logger.ErrorFields("dirty_tables", err))

	if rerr := t.restart(ctx, "drift"); rerr != nil {
		return nil, apperrors.Tracking(t.conn.Name(), rerr)
	}
	dirty, err = t.fetch(ctx, selectDirtyTablesSQL)
	if err != nil {
		return nil, apperrors.Tracking(t.conn.Name(), err)
	}
	return dirty, nil
}

// TruncateDirtyTables empties every dirty table and clears the collector.
// The collector keeps its rows when truncation fails.
func (t *Tracker) TruncateDirtyTables(ctx context.Context) error {
	if err := t.provider.TruncateDirtyTables(ctx, t.conn); err != nil {
		return t.queryError(err)
	}
	return nil
}

// MarkAllTablesAsDirty records every eligible table in the collector.
func (t *Tracker) MarkAllTablesAsDirty(ctx context.Context) error {
	tables, err := t.AllTablesExceptMigrationLogsAndCollector(ctx, false)
	if err != nil {
		return err
	}
	return t.markAll(ctx, tables)
}

func (t *Tracker) markAll(ctx context.Context, tables []string) error {
	if len(tables) == 0 {
		return nil
	}
	if err := t.provider.MarkAllTablesAsDirty(ctx, t.conn, tables); err != nil {
		return t.queryError(err)
	}
	return nil
}

// CleanAllTables marks every table dirty and truncates them.
func (t *Tracker) CleanAllTables(ctx context.Context) error {
	if err := t.MarkAllTablesAsDirty(ctx); err != nil {
		return err
	}
	return t.TruncateDirtyTables(ctx)
}

// ActivateMainMode switches to a permanent collector.
func (t *Tracker) ActivateMainMode(ctx context.Context) error {
	return t.SetMode(ctx, ModePermanent)
}

// ActivateTempMode switches to a temporary collector.
func (t *Tracker) ActivateTempMode(ctx context.Context) error {
	return t.SetMode(ctx, ModeTemporary)
}

// SetMode changes the collector mode. Setting the current mode issues no
// SQL; any other mode restarts the tracker.
func (t *Tracker) SetMode(ctx context.Context, mode Mode) error {
	if mode != ModeTemporary && mode != ModePermanent {
		return apperrors.Configuration(fmt.Sprintf("The dirty table collector mode '%s' is not valid.", mode))
	}
	if t.mode == mode {
		return nil
	}
	t.mode = mode
	return t.restart(ctx, "mode_change")
}

// Mode returns the current collector mode.
func (t *Tracker) Mode() Mode { return t.mode }

// IsInTempMode reports whether the collector is temporary.
func (t *Tracker) IsInTempMode() bool { return t.mode == ModeTemporary }

// IsInMainMode reports whether the collector is permanent.
func (t *Tracker) IsInMainMode() bool { return t.mode == ModePermanent }

// AllTables returns every table of the connection, the collector and
// migration logs included. The list is cached until forceFetch is set or
// InvalidateTables is called.
func (t *Tracker) AllTables(ctx context.Context, forceFetch bool) ([]string, error) {
	if !forceFetch {
		if tables, ok := t.tables.get(); ok {
			return tables, nil
		}
	}
	tables, err := t.conn.ListTables(ctx)
	if err != nil {
		return nil, t.queryError(err)
	}
	t.tables.set(tables)
	return slices.Clone(tables), nil
}

// AllTablesExceptMigrationLogs filters migration logs out of AllTables.
func (t *Tracker) AllTablesExceptMigrationLogs(ctx context.Context, forceFetch bool) ([]string, error) {
	tables, err := t.AllTables(ctx, forceFetch)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(tables, IsMigrationLog), nil
}

// AllTablesExceptMigrationLogsAndCollector lists the tables that get triggers.
func (t *Tracker) AllTablesExceptMigrationLogsAndCollector(ctx context.Context, forceFetch bool) ([]string, error) {
	tables, err := t.AllTablesExceptMigrationLogs(ctx, forceFetch)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(tables, func(s string) bool { return s == CollectorTable }), nil
}

// CollectorExists checks a fresh table list for the collector. Engines
// whose catalog hides session tables are probed directly in temporary mode.
func (t *Tracker) CollectorExists(ctx context.Context) (bool, error) {
	tables, err := t.AllTables(ctx, true)
	if err != nil {
		return false, err
	}
	if slices.Contains(tables, CollectorTable) {
		return true, nil
	}
	if t.mode.Temporary() {
		if _, err := t.conn.Query(ctx, probeCollectorSQL); err == nil {
			return true, nil
		}
	}
	return false, nil
}

// Triggers lists the installed insert triggers.
func (t *Tracker) Triggers(ctx context.Context) ([]string, error) {
	triggers, err := t.provider.Triggers(ctx, t.conn)
	if err != nil {
		return nil, t.queryError(err)
	}
	return triggers, nil
}

// DropAllTables drops every table but the collector.
func (t *Tracker) DropAllTables(ctx context.Context) error {
	tables, err := t.AllTables(ctx, true)
	if err != nil {
		return err
	}
	tables = slices.DeleteFunc(tables, func(s string) bool { return s == CollectorTable })
	defer t.tables.invalidate()
	if len(tables) == 0 {
		return nil
	}
	if err := t.provider.DropTables(ctx, t.conn, tables); err != nil {
		return t.queryError(err)
	}
	t.log.Info("Dropped all tables", logger.Fields(logger.FieldTables, len(tables)))
	return nil
}

// InvalidateTables forgets the cached table list.
func (t *Tracker) InvalidateTables() { t.tables.invalidate() }

func (t *Tracker) fetch(ctx context.Context, query string) ([]string, error) {
	rows, err := t.conn.Query(ctx, query)
	if err != nil {
		return nil, t.queryError(err)
	}
	return rows.Strings(), nil
}

func (t *Tracker) exec(ctx context.Context, query string) error {
	if err := t.conn.Exec(ctx, query); err != nil {
		return t.queryError(err)
	}
	return nil
}

func (t *Tracker) queryError(err error) error {
	// Keep the more specific kind when a provider already classified the failure.
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.Query(t.conn.Name(), t.conn.Config().Database, err)
}
