// Package sqlite installs dirty table triggers on SQLite databases.
package sqlite

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kbukum/dirtytables/database"
	"github.com/kbukum/dirtytables/sniffer"
)

const (
	listTriggersSQL = "SELECT name FROM sqlite_master WHERE type = 'trigger' " +
		"UNION SELECT name FROM sqlite_temp_master WHERE type = 'trigger' ORDER BY name"
	sequenceTableSQL = "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'"
)

// Provider is the SQLite sniffer.TriggerProvider. SQLite has no stored
// procedures, so truncation is a transaction of DELETE statements.
type Provider struct{}

var _ sniffer.TriggerProvider = (*Provider)(nil)

// New returns a SQLite provider.
func New() sniffer.TriggerProvider { return &Provider{} }

// Driver returns "sqlite".
func (*Provider) Driver() string { return database.DriverSQLite }

// MaxIdentifierLength is 0: SQLite does not limit identifiers.
func (*Provider) MaxIdentifierLength() int { return 0 }

// CreateTriggers installs one AFTER INSERT trigger per table. A temporary
// collector can only be referenced from TEMP triggers.
func (*Provider) CreateTriggers(ctx context.Context, ex database.Executor, triggers []sniffer.Trigger, mode sniffer.Mode) error {
	kind := "TRIGGER"
	if mode.Temporary() {
		kind = "TEMP TRIGGER"
	}
	for _, tr := range triggers {
		query := fmt.Sprintf("CREATE %s IF NOT EXISTS %s AFTER INSERT ON %s BEGIN "+
			"INSERT OR IGNORE INTO %s (table_name) VALUES ('%s'); END",
			kind, quoteIdent(tr.Name), quoteIdent(tr.Table), sniffer.CollectorTable, sniffer.Quote(tr.Table))
		if err := ex.Exec(ctx, query); err != nil {
			return fmt.Errorf("create trigger %s: %w", tr.Name, err)
		}
	}
	return nil
}

// DropTriggers drops the dirty table triggers of the main and temp schemas.
func (p *Provider) DropTriggers(ctx context.Context, ex database.Executor) error {
	triggers, err := p.Triggers(ctx, ex)
	if err != nil {
		return err
	}
	for _, name := range triggers {
		if err := ex.Exec(ctx, "DROP TRIGGER IF EXISTS "+quoteIdent(name)); err != nil {
			return fmt.Errorf("drop trigger %s: %w", name, err)
		}
	}
	return nil
}

// Triggers lists the dirty table triggers of the main and temp schemas.
func (*Provider) Triggers(ctx context.Context, ex database.Executor) ([]string, error) {
	rows, err := ex.Query(ctx, listTriggersSQL)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(rows.Strings(), func(name string) bool {
		return !strings.HasPrefix(name, sniffer.TriggerPrefix)
	}), nil
}

// CreateTruncateDirtyTablesProcedure is a no-op.
func (*Provider) CreateTruncateDirtyTablesProcedure(context.Context, database.Executor) error {
	return nil
}

// TruncateDirtyTables deletes the rows of every dirty table, resets their
// AUTOINCREMENT counters and clears the collector in one transaction.
// Foreign keys are checked at commit, so the order of deletes is free.
func (*Provider) TruncateDirtyTables(ctx context.Context, ex database.Executor) error {
	return ex.Transaction(ctx, func(tx database.Executor) error {
		if err := tx.Exec(ctx, "PRAGMA defer_foreign_keys = ON"); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, "SELECT table_name FROM "+sniffer.CollectorTable)
		if err != nil {
			return err
		}
		dirty := rows.Strings()
		if len(dirty) == 0 {
			return nil
		}
		for _, table := range dirty {
			if err := tx.Exec(ctx, "DELETE FROM "+quoteIdent(table)); err != nil {
				return fmt.Errorf("truncate %s: %w", table, err)
			}
		}
		seq, err := tx.Query(ctx, sequenceTableSQL)
		if err != nil {
			return err
		}
		if seq.Len() > 0 {
			query := "DELETE FROM sqlite_sequence WHERE name IN (" + placeholders(len(dirty)) + ")"
			if err := tx.Exec(ctx, query, toArgs(dirty)...); err != nil {
				return err
			}
		}
		return tx.Exec(ctx, "DELETE FROM "+sniffer.CollectorTable)
	})
}

// MarkAllTablesAsDirty inserts tables into the collector, skipping known ones.
func (*Provider) MarkAllTablesAsDirty(ctx context.Context, ex database.Executor, tables []string) error {
	if len(tables) == 0 {
		return nil
	}
	query := fmt.Sprintf("INSERT OR IGNORE INTO %s (table_name) VALUES %s",
		sniffer.CollectorTable, valueTuples(len(tables)))
	return ex.Exec(ctx, query, toArgs(tables)...)
}

// DropTables drops tables with foreign key enforcement switched off, then
// restores the previous setting. The pragma is a no-op inside a
// transaction, so the drops run one by one.
func (*Provider) DropTables(ctx context.Context, ex database.Executor, tables []string) (err error) {
	rows, err := ex.Query(ctx, "PRAGMA foreign_keys")
	if err != nil {
		return err
	}
	enforced := slices.Equal(rows.Strings(), []string{"1"})
	if enforced {
		if err := ex.Exec(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
			return err
		}
		defer func() {
			if rerr := ex.Exec(ctx, "PRAGMA foreign_keys = ON"); err == nil {
				err = rerr
			}
		}()
	}
	for _, table := range tables {
		if err := ex.Exec(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
			return fmt.Errorf("drop table %s: %w", table, err)
		}
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func valueTuples(n int) string {
	return strings.TrimSuffix(strings.Repeat("(?), ", n), ", ")
}

func toArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
