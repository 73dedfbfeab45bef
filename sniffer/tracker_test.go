package sniffer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbukum/dirtytables/database"
	"github.com/kbukum/dirtytables/database/dbtest"
	apperrors "github.com/kbukum/dirtytables/errors"
)

// fakeProvider routes every operation through the executor so the recording
// fake sees it, and can be told to fail.
type fakeProvider struct {
	maxLen    int
	calls     []string
	installed []Trigger
	marked    [][]string
	createErr error
	procErr   error
}

func (p *fakeProvider) Driver() string           { return "fake" }
func (p *fakeProvider) MaxIdentifierLength() int { return p.maxLen }

func (p *fakeProvider) CreateTriggers(ctx context.Context, ex database.Executor, triggers []Trigger, mode Mode) error {
	p.calls = append(p.calls, "create_triggers:"+mode.String())
	if p.createErr != nil {
		return p.createErr
	}
	for _, tr := range triggers {
		if err := ex.Exec(ctx, "CREATE TRIGGER "+tr.Name); err != nil {
			return err
		}
	}
	p.installed = triggers
	return nil
}

func (p *fakeProvider) DropTriggers(ctx context.Context, ex database.Executor) error {
	p.calls = append(p.calls, "drop_triggers")
	for _, tr := range p.installed {
		if err := ex.Exec(ctx, "DROP TRIGGER IF EXISTS "+tr.Name); err != nil {
			return err
		}
	}
	p.installed = nil
	return nil
}

func (p *fakeProvider) Triggers(context.Context, database.Executor) ([]string, error) {
	names := make([]string, 0, len(p.installed))
	for _, tr := range p.installed {
		names = append(names, tr.Name)
	}
	return names, nil
}

func (p *fakeProvider) CreateTruncateDirtyTablesProcedure(ctx context.Context, ex database.Executor) error {
	p.calls = append(p.calls, "create_procedure")
	if p.procErr != nil {
		return p.procErr
	}
	return ex.Exec(ctx, "CREATE PROCEDURE TruncateDirtyTables")
}

func (p *fakeProvider) TruncateDirtyTables(ctx context.Context, ex database.Executor) error {
	return ex.Exec(ctx, "CALL TruncateDirtyTables()")
}

func (p *fakeProvider) MarkAllTablesAsDirty(ctx context.Context, ex database.Executor, tables []string) error {
	p.marked = append(p.marked, tables)
	return ex.Exec(ctx, "INSERT INTO "+CollectorTable+" (table_name) VALUES "+strings.Join(tables, ","))
}

func (p *fakeProvider) DropTables(ctx context.Context, ex database.Executor, tables []string) error {
	for _, table := range tables {
		if err := ex.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return err
		}
	}
	return nil
}

func (p *fakeProvider) count(call string) int {
	n := 0
	for _, c := range p.calls {
		if strings.HasPrefix(c, call) {
			n++
		}
	}
	return n
}

func newTracker(t *testing.T, mode string, tables ...string) (*Tracker, *dbtest.Executor, *fakeProvider) {
	t.Helper()
	conn := dbtest.New(database.Config{CollectorMode: mode}, tables...)
	provider := &fakeProvider{}
	tracker, err := New(conn, provider)
	require.NoError(t, err)
	return tracker, conn, provider
}

var schema = []string{"cities", "countries", "foo_phinxlog", "schema_migrations"}

func TestNew_Mode(t *testing.T) {
	tracker, conn, _ := newTracker(t, "")
	assert.Equal(t, ModePermanent, tracker.Mode())
	assert.True(t, tracker.IsInMainMode())
	assert.Zero(t, conn.Len(), "New must not issue SQL")

	tracker, _, _ = newTracker(t, "temporary")
	assert.True(t, tracker.IsInTempMode())
}

func TestNew_InvalidMode(t *testing.T) {
	for _, mode := range []string{"Temporary", "session", "MAIN_MODE"} {
		conn := dbtest.New(database.Config{CollectorMode: mode})
		_, err := New(conn, &fakeProvider{})
		require.Error(t, err, mode)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeConfiguration), mode)
		assert.Zero(t, conn.Len())
	}
}

func TestNew_MissingProvider(t *testing.T) {
	_, err := New(dbtest.New(database.Config{}), nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeConfiguration))
}

func TestInit_CreatesCollectorTriggersAndMarksAllDirty(t *testing.T) {
	ctx := context.Background()
	tracker, conn, provider := newTracker(t, "", schema...)

	require.NoError(t, tracker.Init(ctx))

	assert.Equal(t, 1, conn.Count("CREATE TABLE IF NOT EXISTS "+CollectorTable+" (table_name VARCHAR(128) PRIMARY KEY)"))
	assert.Zero(t, conn.Count("TEMPORARY"))
	assert.Equal(t, []Trigger{
		{Table: "cities", Name: "dirty_table_spy_cities"},
		{Table: "countries", Name: "dirty_table_spy_countries"},
	}, provider.installed)
	assert.Equal(t, []string{"create_triggers:permanent", "create_procedure"}, provider.calls)
	assert.Equal(t, [][]string{{"cities", "countries"}}, provider.marked)
	assert.Contains(t, conn.Tables(), CollectorTable)
}

func TestInit_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	tracker, conn, provider := newTracker(t, "", schema...)
	require.NoError(t, tracker.Init(ctx))
	conn.ResetStatements()

	require.NoError(t, tracker.Init(ctx))

	assert.Equal(t, []string{dbtest.ListTablesStatement}, conn.SQL())
	assert.Equal(t, 1, provider.count("create_triggers"))
}

func TestInit_TemporaryCollectorHiddenFromCatalog(t *testing.T) {
	ctx := context.Background()
	tracker, conn, provider := newTracker(t, "temporary", "countries")
	require.NoError(t, tracker.Init(ctx))
	assert.Equal(t, 1, conn.Count("CREATE TEMPORARY TABLE IF NOT EXISTS "+CollectorTable))
	assert.Equal(t, []string{"create_triggers:temporary", "create_procedure"}, provider.calls)

	// Like MySQL: the session table is not listed, but it can be read.
	conn.SetTables("countries")
	conn.OnQuery(probeCollectorSQL, dbtest.Rows())
	conn.ResetStatements()

	exists, err := tracker.CollectorExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, []string{dbtest.ListTablesStatement, probeCollectorSQL}, conn.SQL())

	require.NoError(t, tracker.Init(ctx))
	assert.Equal(t, 1, provider.count("create_triggers"))
}

func TestCollectorExists_PermanentModeDoesNotProbe(t *testing.T) {
	tracker, conn, _ := newTracker(t, "", "countries")

	exists, err := tracker.CollectorExists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Zero(t, conn.Count(probeCollectorSQL))
}

func TestInit_TriggerFailureIsNotRetried(t *testing.T) {
	tracker, _, provider := newTracker(t, "", schema...)
	provider.createErr = errors.New("trigger already exists")

	err := tracker.Init(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInitialization))
	assert.Contains(t, err.Error(), "manually")
	assert.Equal(t, 1, provider.count("create_triggers"))
	assert.Zero(t, provider.count("create_procedure"))
}

func TestInit_ProcedureFailure(t *testing.T) {
	tracker, _, provider := newTracker(t, "", schema...)
	provider.procErr = errors.New("access denied")

	err := tracker.Init(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInitialization))
	assert.Empty(t, provider.marked)
}

func TestInit_FailureLeavesNoCollector(t *testing.T) {
	ctx := context.Background()
	tracker, conn, provider := newTracker(t, "", schema...)
	provider.createErr = errors.New("trigger already exists")

	require.Error(t, tracker.Init(ctx))
	assert.NotContains(t, conn.Tables(), CollectorTable)

	err := tracker.Init(ctx)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInitialization), "a retry must hit the same failure")
	assert.Equal(t, 2, provider.count("create_triggers"))

	provider.createErr = nil
	require.NoError(t, tracker.Init(ctx))
	triggers, err := tracker.Triggers(ctx)
	require.NoError(t, err)
	assert.Len(t, triggers, 2)
	assert.Equal(t, [][]string{{"cities", "countries"}}, provider.marked)
}

func TestInit_ProcedureFailureDropsTriggers(t *testing.T) {
	ctx := context.Background()
	tracker, conn, provider := newTracker(t, "", schema...)
	provider.procErr = errors.New("access denied")

	require.Error(t, tracker.Init(ctx))

	assert.NotContains(t, conn.Tables(), CollectorTable)
	assert.Empty(t, provider.installed)
	assert.Equal(t, 1, provider.count("drop_triggers"))
}

func TestInit_TriggerNameCollision(t *testing.T) {
	conn := dbtest.New(database.Config{}, "aaaaa_one", "aaaaa_two")
	provider := &fakeProvider{maxLen: len(TriggerPrefix) + 4}
	tracker, err := New(conn, provider)
	require.NoError(t, err)

	err = tracker.Init(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInitialization))
	assert.Contains(t, err.Error(), "aaaaa_one")
	assert.Contains(t, err.Error(), "aaaaa_two")
	assert.Zero(t, conn.Count("CREATE TABLE"), "nothing may be created on collision")
	assert.Empty(t, provider.calls)
}

func TestInit_EmptySchema(t *testing.T) {
	tracker, conn, provider := newTracker(t, "")

	require.NoError(t, tracker.Init(context.Background()))

	assert.Equal(t, 1, conn.Count("CREATE TABLE"))
	assert.Empty(t, provider.installed)
	assert.Empty(t, provider.marked)
}

func TestShutdown_SafeWhenUninitialized(t *testing.T) {
	tracker, conn, provider := newTracker(t, "", "countries")

	require.NoError(t, tracker.Shutdown(context.Background()))
	require.NoError(t, tracker.Shutdown(context.Background()))

	assert.Equal(t, 2, provider.count("drop_triggers"))
	assert.Equal(t, 2, conn.Count(dropCollectorSQL))
}

func TestShutdown_DropsCollector(t *testing.T) {
	ctx := context.Background()
	tracker, conn, _ := newTracker(t, "", schema...)
	require.NoError(t, tracker.Init(ctx))

	require.NoError(t, tracker.Shutdown(ctx))

	assert.NotContains(t, conn.Tables(), CollectorTable)
	assert.Equal(t, 1, conn.Count("DROP TRIGGER IF EXISTS dirty_table_spy_cities"))
	exists, err := tracker.CollectorExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDirtyTables_ReadsCollector(t *testing.T) {
	ctx := context.Background()
	tracker, conn, _ := newTracker(t, "", schema...)
	require.NoError(t, tracker.Init(ctx))
	conn.OnQuery(selectDirtyTablesSQL, dbtest.Rows("countries"))

	dirty, err := tracker.DirtyTables(ctx)

	require.NoError(t, err)
	assert.Equal(t, []string{"countries"}, dirty)
}

func TestDirtyTables_RestartsOnceWhenCollectorDropped(t *testing.T) {
	ctx := context.Background()
	tracker, conn, provider := newTracker(t, "", schema...)
	require.NoError(t, tracker.Init(ctx))

	// Drop the collector behind the tracker's back.
	conn.SetTables(schema...)
	conn.ResetStatements()
	provider.calls = nil

	dirty, err := tracker.DirtyTables(ctx)

	require.NoError(t, err)
	assert.Empty(t, dirty)
	assert.Equal(t, []string{"drop_triggers", "create_triggers:permanent", "create_procedure"}, provider.calls)
	assert.Equal(t, 2, conn.Count(selectDirtyTablesSQL))
	assert.Contains(t, conn.Tables(), CollectorTable)
}

func TestDirtyTables_TrackingErrorWhenRestartFails(t *testing.T) {
	ctx := context.Background()
	tracker, conn, provider := newTracker(t, "", schema...)
	provider.createErr = errors.New("permission denied")

	_, err := tracker.DirtyTables(ctx)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeTracking))
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInitialization))
	assert.Equal(t, 1, provider.count("create_triggers"))
	assert.Equal(t, 1, conn.Count(selectDirtyTablesSQL))
}

func TestDirtyTables_TrackingErrorWhenSecondReadFails(t *testing.T) {
	ctx := context.Background()
	tracker, conn, provider := newTracker(t, "", schema...)
	require.NoError(t, tracker.Init(ctx))
	conn.FailOn(selectDirtyTablesSQL, errors.New("SELECT command denied"), 0)
	provider.calls = nil

	_, err := tracker.DirtyTables(ctx)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeTracking, apperrors.CodeOf(err))
	assert.Equal(t, 2, conn.Count(selectDirtyTablesSQL), "exactly one re-read")
	assert.Equal(t, 1, provider.count("drop_triggers"), "exactly one restart")
}

func TestTruncateDirtyTables(t *testing.T) {
	ctx := context.Background()
	tracker, conn, _ := newTracker(t, "", schema...)

	require.NoError(t, tracker.TruncateDirtyTables(ctx))
	assert.Equal(t, 1, conn.Count("CALL TruncateDirtyTables()"))

	conn.FailOn("CALL TruncateDirtyTables()", errors.New("lock wait timeout"), 1)
	err := tracker.TruncateDirtyTables(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeQuery))
	assert.Contains(t, err.Error(), "Is the database 'app_test' created and accessible?")
}

func TestCleanAllTables(t *testing.T) {
	ctx := context.Background()
	tracker, conn, _ := newTracker(t, "", schema...)

	require.NoError(t, tracker.CleanAllTables(ctx))

	sql := conn.SQL()
	require.Len(t, sql, 3)
	assert.Equal(t, dbtest.ListTablesStatement, sql[0])
	assert.True(t, strings.HasPrefix(sql[1], "INSERT INTO "+CollectorTable))
	assert.Equal(t, "CALL TruncateDirtyTables()", sql[2])
}

func TestSetMode_SameModeIssuesNoSQL(t *testing.T) {
	ctx := context.Background()
	tracker, conn, _ := newTracker(t, "", schema...)

	require.NoError(t, tracker.ActivateMainMode(ctx))
	require.NoError(t, tracker.SetMode(ctx, ModePermanent))

	assert.Zero(t, conn.Len())
}

func TestSetMode_SwitchRestarts(t *testing.T) {
	ctx := context.Background()
	tracker, conn, provider := newTracker(t, "", schema...)
	require.NoError(t, tracker.Init(ctx))
	conn.ResetStatements()

	require.NoError(t, tracker.ActivateTempMode(ctx))
	assert.True(t, tracker.IsInTempMode())
	assert.Equal(t, 1, conn.Count(dropCollectorSQL))
	assert.Equal(t, 1, conn.Count("CREATE TEMPORARY TABLE"))

	conn.ResetStatements()
	require.NoError(t, tracker.ActivateMainMode(ctx))
	assert.True(t, tracker.IsInMainMode())
	assert.Equal(t, 1, conn.Count("CREATE TABLE IF NOT EXISTS"))
	assert.Zero(t, conn.Count("TEMPORARY"))
	assert.Equal(t, 3, provider.count("create_triggers"))
}

func TestSetMode_Invalid(t *testing.T) {
	tracker, conn, _ := newTracker(t, "", schema...)
	err := tracker.SetMode(context.Background(), Mode("TEMP_MODE"))
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeConfiguration))
	assert.Zero(t, conn.Len())
}

func TestAllTables_Cache(t *testing.T) {
	ctx := context.Background()
	tracker, conn, _ := newTracker(t, "", schema...)

	first, err := tracker.AllTables(ctx, false)
	require.NoError(t, err)
	conn.SetTables("countries", "schema_migrations")

	second, err := tracker.AllTables(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, conn.Count(dbtest.ListTablesStatement))

	forced, err := tracker.AllTables(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"countries", "schema_migrations"}, forced)

	conn.SetTables("countries")
	tracker.InvalidateTables()
	refetched, err := tracker.AllTables(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"countries"}, refetched)
}

func TestAllTables_ResultIsACopy(t *testing.T) {
	ctx := context.Background()
	tracker, _, _ := newTracker(t, "", schema...)

	tables, err := tracker.AllTables(ctx, false)
	require.NoError(t, err)
	tables[0] = "mutated"

	again, err := tracker.AllTables(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "cities", again[0])
}

func TestAllTables_FilteredViews(t *testing.T) {
	ctx := context.Background()
	tracker, conn, _ := newTracker(t, "", append([]string{CollectorTable}, schema...)...)

	noLogs, err := tracker.AllTablesExceptMigrationLogs(ctx, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{CollectorTable, "cities", "countries"}, noLogs)

	eligible, err := tracker.AllTablesExceptMigrationLogsAndCollector(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"cities", "countries"}, eligible)

	all, err := tracker.AllTables(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 5, "filtering must not change the cached list")
	assert.Equal(t, 1, conn.Count(dbtest.ListTablesStatement))
}

func TestAllTables_QueryError(t *testing.T) {
	tracker, conn, _ := newTracker(t, "", schema...)
	conn.FailOn(dbtest.ListTablesStatement, errors.New("Unknown database 'app_test'"), 0)

	_, err := tracker.AllTables(context.Background(), true)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeQuery))
	assert.Contains(t, err.Error(), "Error in the connection 'test'. Is the database 'app_test' created and accessible?")
}

func TestMarkAllTablesAsDirty(t *testing.T) {
	ctx := context.Background()
	tracker, _, provider := newTracker(t, "", append([]string{CollectorTable}, schema...)...)

	require.NoError(t, tracker.MarkAllTablesAsDirty(ctx))
	assert.Equal(t, [][]string{{"cities", "countries"}}, provider.marked)

	empty, conn, provider := newTracker(t, "")
	require.NoError(t, empty.MarkAllTablesAsDirty(ctx))
	assert.Empty(t, provider.marked)
	assert.Zero(t, conn.Count("INSERT"))
}

func TestTriggers(t *testing.T) {
	ctx := context.Background()
	tracker, _, _ := newTracker(t, "", schema...)
	require.NoError(t, tracker.Init(ctx))

	triggers, err := tracker.Triggers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dirty_table_spy_cities", "dirty_table_spy_countries"}, triggers)
}

func TestDropAllTables_KeepsCollector(t *testing.T) {
	ctx := context.Background()
	tracker, conn, _ := newTracker(t, "", schema...)
	require.NoError(t, tracker.Init(ctx))

	require.NoError(t, tracker.DropAllTables(ctx))

	assert.Equal(t, []string{CollectorTable}, conn.Tables())
	tables, err := tracker.AllTablesExceptMigrationLogsAndCollector(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, tables)
}
