// Package mysql installs dirty table triggers on MySQL and MariaDB.
package mysql

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kbukum/dirtytables/database"
	"github.com/kbukum/dirtytables/sniffer"
)

// MaxIdentifierLength is the MySQL limit on trigger names.
const MaxIdentifierLength = 64

// ProcedureName is the stored procedure that empties the dirty tables.
const ProcedureName = "TruncateDirtyTables"

const listTriggersSQL = "SELECT trigger_name AS name FROM information_schema.triggers " +
	"WHERE trigger_schema = DATABASE() ORDER BY trigger_name"

var (
	dropProcedureSQL = "DROP PROCEDURE IF EXISTS " + ProcedureName
	callProcedureSQL = "CALL " + ProcedureName + "()"

	// The exit handler restores foreign key checks and re-raises, so a failed
	// TRUNCATE leaves the collector untouched. Backticks are spelled as ~.
	createProcedureSQL = strings.NewReplacer("~", "`", "{collector}", sniffer.CollectorTable).Replace(`CREATE PROCEDURE ` + ProcedureName + `()
BEGIN
    DECLARE done INT DEFAULT FALSE;
    DECLARE current_table VARCHAR(128);
    DECLARE dirty_cursor CURSOR FOR SELECT table_name FROM {collector};
    DECLARE CONTINUE HANDLER FOR NOT FOUND SET done = TRUE;
    DECLARE EXIT HANDLER FOR SQLEXCEPTION
    BEGIN
        SET FOREIGN_KEY_CHECKS = 1;
        RESIGNAL;
    END;

    SET FOREIGN_KEY_CHECKS = 0;
    OPEN dirty_cursor;
    truncate_loop: LOOP
        FETCH dirty_cursor INTO current_table;
        IF done THEN
            LEAVE truncate_loop;
        END IF;
        SET @truncate_sql = CONCAT('TRUNCATE TABLE ~', REPLACE(current_table, '~', '~~'), '~');
        PREPARE truncate_stmt FROM @truncate_sql;
        EXECUTE truncate_stmt;
        DEALLOCATE PREPARE truncate_stmt;
    END LOOP;
    CLOSE dirty_cursor;
    DELETE FROM {collector};
    SET FOREIGN_KEY_CHECKS = 1;
END`)
)

// Provider is the MySQL sniffer.TriggerProvider.
type Provider struct{}

var _ sniffer.TriggerProvider = (*Provider)(nil)

// New returns a MySQL provider.
func New() sniffer.TriggerProvider { return &Provider{} }

// Driver returns "mysql".
func (*Provider) Driver() string { return database.DriverMySQL }

// MaxIdentifierLength returns the longest trigger name MySQL accepts.
func (*Provider) MaxIdentifierLength() int { return MaxIdentifierLength }

// CreateTriggers installs one row-level AFTER INSERT trigger per table.
// MySQL has no temporary triggers; in temporary mode the triggers resolve
// the collector against the session that fires them.
func (*Provider) CreateTriggers(ctx context.Context, ex database.Executor, triggers []sniffer.Trigger, _ sniffer.Mode) error {
	for _, tr := range triggers {
		query := fmt.Sprintf("CREATE TRIGGER %s AFTER INSERT ON %s FOR EACH ROW "+
			"INSERT IGNORE INTO %s (table_name) VALUES ('%s')",
			quoteIdent(tr.Name), quoteIdent(tr.Table), sniffer.CollectorTable, quoteLiteral(tr.Table))
		if err := ex.Exec(ctx, query); err != nil {
			return fmt.Errorf("create trigger %s: %w", tr.Name, err)
		}
	}
	return nil
}

// DropTriggers drops every dirty table trigger of the current database.
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

// Triggers lists the dirty table triggers of the current database.
func (*Provider) Triggers(ctx context.Context, ex database.Executor) ([]string, error) {
	rows, err := ex.Query(ctx, listTriggersSQL)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(rows.Strings(), func(name string) bool {
		return !strings.HasPrefix(name, sniffer.TriggerPrefix)
	}), nil
}

// CreateTruncateDirtyTablesProcedure replaces the TruncateDirtyTables procedure.
func (*Provider) CreateTruncateDirtyTablesProcedure(ctx context.Context, ex database.Executor) error {
	if err := ex.Exec(ctx, dropProcedureSQL); err != nil {
		return fmt.Errorf("drop procedure %s: %w", ProcedureName, err)
	}
	if err := ex.Exec(ctx, createProcedureSQL); err != nil {
		return fmt.Errorf("create procedure %s: %w", ProcedureName, err)
	}
	return nil
}

// TruncateDirtyTables calls the TruncateDirtyTables procedure.
func (*Provider) TruncateDirtyTables(ctx context.Context, ex database.Executor) error {
	return ex.Exec(ctx, callProcedureSQL)
}

// MarkAllTablesAsDirty inserts tables into the collector, skipping known ones.
func (*Provider) MarkAllTablesAsDirty(ctx context.Context, ex database.Executor, tables []string) error {
	if len(tables) == 0 {
		return nil
	}
	query := fmt.Sprintf("INSERT IGNORE INTO %s (table_name) VALUES %s",
		sniffer.CollectorTable, strings.TrimSuffix(strings.Repeat("(?), ", len(tables)), ", "))
	args := make([]any, len(tables))
	for i, table := range tables {
		args[i] = table
	}
	return ex.Exec(ctx, query, args...)
}

// DropTables drops tables with foreign key checks off. Session settings
// only hold on one connection, so the statements share a transaction.
func (*Provider) DropTables(ctx context.Context, ex database.Executor, tables []string) error {
	return ex.Transaction(ctx, func(tx database.Executor) (err error) {
		if err := tx.Exec(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
			return err
		}
		defer func() {
			if rerr := tx.Exec(ctx, "SET FOREIGN_KEY_CHECKS = 1"); err == nil {
				err = rerr
			}
		}()
		for _, table := range tables {
			if err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
				return fmt.Errorf("drop table %s: %w", table, err)
			}
		}
		return nil
	})
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// quoteLiteral escapes s for a single-quoted literal under the default
// sql_mode, where backslash is an escape character.
func quoteLiteral(s string) string {
	return sniffer.Quote(strings.ReplaceAll(s, `\`, `\\`))
}
