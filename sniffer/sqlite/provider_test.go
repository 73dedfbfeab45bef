package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbukum/dirtytables/database"
	"github.com/kbukum/dirtytables/database/dbtest"
	"github.com/kbukum/dirtytables/logger"
	"github.com/kbukum/dirtytables/sniffer"
	"github.com/kbukum/dirtytables/sniffer/sqlite"
	"github.com/kbukum/dirtytables/testutil"
)

const schemaSQL = `
CREATE TABLE countries (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL);
CREATE TABLE cities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	country_id INTEGER REFERENCES countries (id)
);
CREATE TABLE tags (name TEXT PRIMARY KEY);
`

func dbPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "app_test.db")
}

func open(t *testing.T, path, mode string) *database.Connection {
	t.Helper()
	conn, err := database.Open(context.Background(), database.Config{
		Name:          "test",
		Driver:        database.DriverSQLite,
		DSN:           "file:" + path + "?_foreign_keys=on",
		CollectorMode: mode,
	}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func withSchema(t *testing.T, mode string) *database.Connection {
	t.Helper()
	conn := open(t, dbPath(t), mode)
	require.NoError(t, conn.Exec(context.Background(), schemaSQL))
	return conn
}

func newTracker(t *testing.T, conn database.Executor) *sniffer.Tracker {
	t.Helper()
	tr, err := sniffer.New(conn, sqlite.New())
	require.NoError(t, err)
	require.NoError(t, tr.Init(context.Background()))
	return tr
}

func TestProvider_Identity(t *testing.T) {
	p := sqlite.New()
	assert.Equal(t, "sqlite", p.Driver())
	assert.Zero(t, p.MaxIdentifierLength())
}

func TestProvider_CreateTriggersSQL(t *testing.T) {
	triggers := []sniffer.Trigger{{Table: "o'neil", Name: "dirty_table_spy_o'neil"}}

	ex := dbtest.New(database.Config{Driver: database.DriverSQLite})
	require.NoError(t, sqlite.New().CreateTriggers(context.Background(), ex, triggers, sniffer.ModeTemporary))
	assert.Equal(t, []string{
		`CREATE TEMP TRIGGER IF NOT EXISTS "dirty_table_spy_o'neil" AFTER INSERT ON "o'neil" BEGIN ` +
			"INSERT OR IGNORE INTO test_suite_light_dirty_tables (table_name) VALUES ('o''neil'); END",
	}, ex.SQL())

	ex = dbtest.New(database.Config{Driver: database.DriverSQLite})
	require.NoError(t, sqlite.New().CreateTriggers(context.Background(), ex, triggers, sniffer.ModePermanent))
	assert.Contains(t, ex.SQL()[0], "CREATE TRIGGER IF NOT EXISTS")
}

func TestProvider_TruncateRollsBackOnError(t *testing.T) {
	ex := dbtest.New(database.Config{Driver: database.DriverSQLite}, sniffer.CollectorTable, "cities")
	ex.OnQuery("SELECT table_name FROM "+sniffer.CollectorTable, &database.Rows{
		Columns: []string{"table_name"},
		Values:  [][]any{{"cities"}},
	})
	ex.FailOn(`DELETE FROM "cities"`, errors.New("locked"), 0)

	err := sqlite.New().TruncateDirtyTables(context.Background(), ex)
	require.ErrorContains(t, err, "truncate cities")
	assert.Equal(t, "ROLLBACK", ex.SQL()[len(ex.SQL())-1])
}

func TestSQLite_InitMarksEveryTableDirty(t *testing.T) {
	ctx := context.Background()
	conn := withSchema(t, database.CollectorModePermanent)
	tr := newTracker(t, conn)

	dirty, err := tr.DirtyTables(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cities", "countries", "tags"}, dirty)

	triggers, err := tr.Triggers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dirty_table_spy_cities", "dirty_table_spy_countries", "dirty_table_spy_tags"}, triggers)
}

func TestSQLite_InsertMarksTableDirty(t *testing.T) {
	for _, mode := range []string{database.CollectorModePermanent, database.CollectorModeTemporary} {
		t.Run(mode, func(t *testing.T) {
			ctx := context.Background()
			conn := withSchema(t, mode)
			tr := newTracker(t, conn)
			require.NoError(t, tr.TruncateDirtyTables(ctx))

			dirty, err := tr.DirtyTables(ctx)
			require.NoError(t, err)
			assert.Empty(t, dirty)

			testutil.MustLoadFixture(t, conn, "countries", []map[string]any{{"name": "Chile"}, {"name": "Peru"}})
			dirty, err = tr.DirtyTables(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"countries"}, dirty)
		})
	}
}

func TestSQLite_TruncateEmptiesTablesAndResetsSequences(t *testing.T) {
	ctx := context.Background()
	conn := withSchema(t, database.CollectorModePermanent)
	tr := newTracker(t, conn)

	testutil.MustLoadFixture(t, conn, "countries", []map[string]any{{"name": "Chile"}})
	testutil.MustLoadFixture(t, conn, "cities", []map[string]any{{"name": "Santiago", "country_id": 1}})
	testutil.MustLoadFixture(t, conn, "tags", []map[string]any{{"name": "coastal"}})

	require.NoError(t, tr.TruncateDirtyTables(ctx))
	for _, table := range []string{"countries", "cities", "tags"} {
		testutil.AssertTableEmpty(t, conn, table)
	}
	testutil.AssertTableEmpty(t, conn, sniffer.CollectorTable)

	testutil.MustLoadFixture(t, conn, "countries", []map[string]any{{"name": "Peru"}})
	rows, err := conn.Query(ctx, "SELECT id FROM countries")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, rows.Column("id"))
}

func TestSQLite_TruncateLeavesCleanTablesAlone(t *testing.T) {
	ctx := context.Background()
	conn := withSchema(t, database.CollectorModePermanent)
	tr := newTracker(t, conn)
	require.NoError(t, tr.TruncateDirtyTables(ctx))

	// Rows inserted while the triggers are gone are not tracked.
	require.NoError(t, conn.Exec(ctx, `DROP TRIGGER "dirty_table_spy_tags"`))
	testutil.MustLoadFixture(t, conn, "tags", []map[string]any{{"name": "coastal"}})
	testutil.MustLoadFixture(t, conn, "countries", []map[string]any{{"name": "Chile"}})

	require.NoError(t, tr.TruncateDirtyTables(ctx))
	testutil.AssertTableEmpty(t, conn, "countries")
	testutil.AssertRowCount(t, conn, "tags", 1)
}

func TestSQLite_CollectorLifetimeAcrossSessions(t *testing.T) {
	ctx := context.Background()

	t.Run("permanent", func(t *testing.T) {
		path := dbPath(t)
		first := open(t, path, database.CollectorModePermanent)
		require.NoError(t, first.Exec(ctx, schemaSQL))
		newTracker(t, first)
		require.NoError(t, first.Close())

		second := open(t, path, database.CollectorModePermanent)
		tr, err := sniffer.New(second, sqlite.New())
		require.NoError(t, err)
		exists, err := tr.CollectorExists(ctx)
		require.NoError(t, err)
		assert.True(t, exists)

		// Triggers survive too, so inserts from a new session are tracked.
		require.NoError(t, tr.TruncateDirtyTables(ctx))
		testutil.MustLoadFixture(t, second, "tags", []map[string]any{{"name": "coastal"}})
		dirty, err := tr.DirtyTables(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"tags"}, dirty)
	})

	t.Run("temporary", func(t *testing.T) {
		path := dbPath(t)
		first := open(t, path, database.CollectorModeTemporary)
		require.NoError(t, first.Exec(ctx, schemaSQL))
		newTracker(t, first)
		require.NoError(t, first.Close())

		second := open(t, path, database.CollectorModeTemporary)
		tr, err := sniffer.New(second, sqlite.New())
		require.NoError(t, err)
		exists, err := tr.CollectorExists(ctx)
		require.NoError(t, err)
		assert.False(t, exists)

		triggers, err := tr.Triggers(ctx)
		require.NoError(t, err)
		assert.Empty(t, triggers)
	})
}

func TestSQLite_SwitchingModes(t *testing.T) {
	ctx := context.Background()
	conn := withSchema(t, database.CollectorModePermanent)
	tr := newTracker(t, conn)

	require.NoError(t, tr.ActivateTempMode(ctx))
	assert.True(t, tr.IsInTempMode())
	rows, err := conn.Query(ctx, "SELECT name FROM sqlite_temp_master WHERE type = 'table'")
	require.NoError(t, err)
	assert.Contains(t, rows.Strings(), sniffer.CollectorTable)
	rows, err = conn.Query(ctx, "SELECT name FROM sqlite_master WHERE type IN ('table', 'trigger') AND (name LIKE 'test_suite%' OR name LIKE 'dirty_table_spy%')")
	require.NoError(t, err)
	assert.Empty(t, rows.Strings())

	require.NoError(t, tr.ActivateMainMode(ctx))
	assert.True(t, tr.IsInMainMode())
	dirty, err := tr.DirtyTables(ctx)
	require.NoError(t, err)
	assert.Len(t, dirty, 3)
}

func TestSQLite_DroppedCollectorSelfHeals(t *testing.T) {
	ctx := context.Background()
	conn := withSchema(t, database.CollectorModePermanent)
	tr := newTracker(t, conn)
	require.NoError(t, tr.TruncateDirtyTables(ctx))

	require.NoError(t, conn.Exec(ctx, "DROP TABLE "+sniffer.CollectorTable))

	dirty, err := tr.DirtyTables(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cities", "countries", "tags"}, dirty)

	testutil.MustLoadFixture(t, conn, "countries", []map[string]any{{"name": "Chile"}})
	require.NoError(t, tr.TruncateDirtyTables(ctx))
	testutil.AssertTableEmpty(t, conn, "countries")
}

func TestSQLite_MigrationLogIsNeverTracked(t *testing.T) {
	ctx := context.Background()
	path := dbPath(t)
	migrations := fstest.MapFS{
		"db/1_schema.up.sql":   {Data: []byte(schemaSQL)},
		"db/1_schema.down.sql": {Data: []byte("DROP TABLE cities; DROP TABLE countries; DROP TABLE tags;")},
	}
	testutil.MustMigrate(t, "sqlite3://"+path, migrations, "db")

	conn := open(t, path, database.CollectorModePermanent)
	tr := newTracker(t, conn)

	tables, err := tr.AllTables(ctx, false)
	require.NoError(t, err)
	assert.Contains(t, tables, "schema_migrations")
	assert.Contains(t, tables, sniffer.CollectorTable)

	triggers, err := tr.Triggers(ctx)
	require.NoError(t, err)
	assert.NotContains(t, triggers, "dirty_table_spy_schema_migrations")

	require.NoError(t, tr.CleanAllTables(ctx))
	testutil.AssertRowCount(t, conn, "schema_migrations", 1)
}

func TestSQLite_DropAllTablesWithForeignKeys(t *testing.T) {
	ctx := context.Background()
	conn := withSchema(t, database.CollectorModePermanent)
	tr := newTracker(t, conn)

	testutil.MustLoadFixture(t, conn, "countries", []map[string]any{{"name": "Chile"}})
	testutil.MustLoadFixture(t, conn, "cities", []map[string]any{{"name": "Santiago", "country_id": 1}})

	require.NoError(t, tr.DropAllTables(ctx))

	tables, err := conn.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{sniffer.CollectorTable}, tables)

	rows, err := conn.Query(ctx, "PRAGMA foreign_keys")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, rows.Strings())
}

func TestSQLite_ShutdownRemovesEverything(t *testing.T) {
	ctx := context.Background()
	conn := withSchema(t, database.CollectorModePermanent)
	tr := newTracker(t, conn)

	require.NoError(t, tr.Shutdown(ctx))
	triggers, err := tr.Triggers(ctx)
	require.NoError(t, err)
	assert.Empty(t, triggers)
	exists, err := tr.CollectorExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	// A second shutdown is harmless.
	require.NoError(t, tr.Shutdown(ctx))
}
