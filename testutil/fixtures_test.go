package testutil_test

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbukum/dirtytables/config"
	"github.com/kbukum/dirtytables/database"
	"github.com/kbukum/dirtytables/fixture"
	"github.com/kbukum/dirtytables/logger"
	"github.com/kbukum/dirtytables/testutil"
)

var schema = fstest.MapFS{
	"migrations/1_create_geo.up.sql": {Data: []byte(
		"CREATE TABLE countries (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL);\n" +
			"CREATE TABLE cities (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, country_id INTEGER);\n")},
	"migrations/1_create_geo.down.sql": {Data: []byte("DROP TABLE cities;\nDROP TABLE countries;\n")},
}

func migratedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app_test.db")
	testutil.MustMigrate(t, "sqlite3://"+path, schema, "migrations")
	return path
}

func openSQLite(t *testing.T, path string) *database.Connection {
	t.Helper()
	conn, err := database.Open(context.Background(), database.Config{
		Name:   "test",
		Driver: database.DriverSQLite,
		DSN:    "file:" + path,
	}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestMigrate_IsIdempotent(t *testing.T) {
	path := migratedDB(t)
	require.NoError(t, testutil.Migrate("sqlite3://"+path, schema, "migrations"))

	conn := openSQLite(t, path)
	tables, err := conn.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cities", "countries", "schema_migrations"}, tables)
}

func TestMigrate_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app_test.db")
	assert.Error(t, testutil.Migrate("sqlite3://"+path, schema, "nowhere"))
}

func TestLoadFixtureAndCount(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t, migratedDB(t))

	testutil.MustLoadFixture(t, conn, "countries", []map[string]any{
		{"name": "Chile"},
		{"name": "Peru"},
		{},
	})
	testutil.AssertRowCount(t, conn, "countries", 2)
	testutil.AssertTableEmpty(t, conn, "cities")

	exists, err := testutil.TableExists(ctx, conn, "countries")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = testutil.TableExists(ctx, conn, "planets")
	require.NoError(t, err)
	assert.False(t, exists)

	err = testutil.LoadFixture(ctx, conn, "planets", []map[string]any{{"name": "Mars"}})
	assert.ErrorContains(t, err, "planets")
	_, err = testutil.CountRows(ctx, conn, "planets")
	assert.Error(t, err)
}

// Fixtures are cleaned between tests while migration bookkeeping survives.
func TestFixtureManagerAsTestComponent(t *testing.T) {
	ctx := context.Background()
	path := migratedDB(t)

	cfg := &config.Config{Connections: map[string]database.Config{
		"test": {Driver: "sqlite", DSN: "file:" + path},
	}}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	fixtures, err := fixture.New(cfg)
	require.NoError(t, err)

	var comp testutil.TestComponent = fixtures
	testutil.T(t).Setup(comp)

	conn, err := fixtures.Connection(ctx, "test")
	require.NoError(t, err)
	testutil.MustLoadFixture(t, conn, "countries", []map[string]any{{"name": "Chile"}})
	testutil.MustLoadFixture(t, conn, "cities", []map[string]any{{"name": "Santiago", "country_id": 1}})
	testutil.AssertRowCount(t, conn, "countries", 1)

	testutil.T(t).Reset(comp)

	testutil.AssertTableEmpty(t, conn, "countries")
	testutil.AssertTableEmpty(t, conn, "cities")
	testutil.AssertRowCount(t, conn, "schema_migrations", 1)

	// AUTOINCREMENT restarts after a reset.
	testutil.MustLoadFixture(t, conn, "countries", []map[string]any{{"name": "Peru"}})
	rows, err := conn.Query(ctx, "SELECT id FROM countries")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, rows.Column("id"))
}
