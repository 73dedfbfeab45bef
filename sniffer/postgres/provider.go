// Package postgres installs dirty table triggers on PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/kbukum/dirtytables/database"
	"github.com/kbukum/dirtytables/sniffer"
)

// MaxIdentifierLength is NAMEDATALEN - 1.
const MaxIdentifierLength = 63

const (
	// MarkFunction is the trigger function that records the firing table.
	MarkFunction = "mark_table_dirty"
	// TruncateFunction empties the dirty tables.
	TruncateFunction = "truncate_dirty_tables"
)

const listTriggersSQL = `SELECT t.tgname AS name, c.relname AS table_name
FROM pg_trigger t
JOIN pg_class c ON c.oid = t.tgrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE NOT t.tgisinternal
  AND n.nspname IN (current_schema(), pg_my_temp_schema()::regnamespace::text)
ORDER BY t.tgname`

var (
	createMarkFunctionSQL = `CREATE OR REPLACE FUNCTION ` + MarkFunction + `() RETURNS trigger
LANGUAGE plpgsql AS $$
BEGIN
    INSERT INTO ` + sniffer.CollectorTable + ` (table_name) VALUES (TG_TABLE_NAME) ON CONFLICT DO NOTHING;
    RETURN NULL;
END;
$$`

	// CASCADE also takes spy triggers outside the listed schemas, which
	// would otherwise keep the function alive and fail the drop.
	dropMarkFunctionSQL = "DROP FUNCTION IF EXISTS " + MarkFunction + "() CASCADE"

	// A single TRUNCATE covers every dirty table, so it either empties all of
	// them or fails before the collector is cleared.
	createTruncateFunctionSQL = `CREATE OR REPLACE FUNCTION ` + TruncateFunction + `() RETURNS void
LANGUAGE plpgsql AS $$
DECLARE
    dirty text;
BEGIN
    SELECT string_agg(quote_ident(table_name), ', ') INTO dirty FROM ` + sniffer.CollectorTable + `;
    IF dirty IS NOT NULL THEN
        EXECUTE 'TRUNCATE TABLE ' || dirty || ' RESTART IDENTITY CASCADE';
    END IF;
    DELETE FROM ` + sniffer.CollectorTable + `;
END;
$$`

	callTruncateFunctionSQL = "SELECT " + TruncateFunction + "()"
)

// Provider is the PostgreSQL sniffer.TriggerProvider.
type Provider struct{}

var _ sniffer.TriggerProvider = (*Provider)(nil)

// New returns a PostgreSQL provider.
func New() sniffer.TriggerProvider { return &Provider{} }

// Driver returns "postgres".
func (*Provider) Driver() string { return database.DriverPostgres }

// MaxIdentifierLength returns NAMEDATALEN - 1.
func (*Provider) MaxIdentifierLength() int { return MaxIdentifierLength }

// CreateTriggers installs the mark function and one statement-level AFTER
// INSERT trigger per table. The function resolves the collector through the
// search path, where the session's temporary schema comes first.
func (*Provider) CreateTriggers(ctx context.Context, ex database.Executor, triggers []sniffer.Trigger, _ sniffer.Mode) error {
	if err := ex.Exec(ctx, createMarkFunctionSQL); err != nil {
		return fmt.Errorf("create function %s: %w", MarkFunction, err)
	}
	for _, tr := range triggers {
		query := fmt.Sprintf("CREATE TRIGGER %s AFTER INSERT ON %s FOR EACH STATEMENT EXECUTE FUNCTION %s()",
			quoteIdent(tr.Name), quoteIdent(tr.Table), MarkFunction)
		if err := ex.Exec(ctx, query); err != nil {
			return fmt.Errorf("create trigger %s: %w", tr.Name, err)
		}
	}
	return nil
}

// DropTriggers drops the dirty table triggers of the current and temporary
// schemas by name, then the mark function together with any trigger that
// still depends on it.
func (*Provider) DropTriggers(ctx context.Context, ex database.Executor) error {
	triggers, err := listTriggers(ctx, ex)
	if err != nil {
		return err
	}
	for _, tr := range triggers {
		query := fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", quoteIdent(tr.Name), quoteIdent(tr.Table))
		if err := ex.Exec(ctx, query); err != nil {
			return fmt.Errorf("drop trigger %s: %w", tr.Name, err)
		}
	}
	return ex.Exec(ctx, dropMarkFunctionSQL)
}

// Triggers lists the dirty table triggers of the current and temporary schemas.
func (*Provider) Triggers(ctx context.Context, ex database.Executor) ([]string, error) {
	triggers, err := listTriggers(ctx, ex)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(triggers))
	for i, tr := range triggers {
		names[i] = tr.Name
	}
	return names, nil
}

func listTriggers(ctx context.Context, ex database.Executor) ([]sniffer.Trigger, error) {
	rows, err := ex.Query(ctx, listTriggersSQL)
	if err != nil {
		return nil, err
	}
	names, tables := rows.Column("name"), rows.Column("table_name")
	var triggers []sniffer.Trigger
	for i, name := range names {
		if !strings.HasPrefix(name, sniffer.TriggerPrefix) || i >= len(tables) {
			continue
		}
		triggers = append(triggers, sniffer.Trigger{Table: tables[i], Name: name})
	}
	return triggers, nil
}

// CreateTruncateDirtyTablesProcedure replaces the truncate_dirty_tables function.
func (*Provider) CreateTruncateDirtyTablesProcedure(ctx context.Context, ex database.Executor) error {
	if err := ex.Exec(ctx, createTruncateFunctionSQL); err != nil {
		return fmt.Errorf("create function %s: %w", TruncateFunction, err)
	}
	return nil
}

// TruncateDirtyTables calls truncate_dirty_tables().
func (*Provider) TruncateDirtyTables(ctx context.Context, ex database.Executor) error {
	return ex.Exec(ctx, callTruncateFunctionSQL)
}

// MarkAllTablesAsDirty inserts tables into the collector, skipping known ones.
func (*Provider) MarkAllTablesAsDirty(ctx context.Context, ex database.Executor, tables []string) error {
	if len(tables) == 0 {
		return nil
	}
	query := fmt.Sprintf("INSERT INTO %s (table_name) VALUES %s ON CONFLICT DO NOTHING",
		sniffer.CollectorTable, strings.TrimSuffix(strings.Repeat("(?), ", len(tables)), ", "))
	args := make([]any, len(tables))
	for i, table := range tables {
		args[i] = table
	}
	return ex.Exec(ctx, query, args...)
}

// DropTables drops all tables in one statement; CASCADE removes the
// foreign keys pointing at them.
func (*Provider) DropTables(ctx context.Context, ex database.Executor, tables []string) error {
	quoted := make([]string, len(tables))
	for i, table := range tables {
		quoted[i] = quoteIdent(table)
	}
	return ex.Exec(ctx, "DROP TABLE IF EXISTS "+strings.Join(quoted, ", ")+" CASCADE")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
