package testutil

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/kbukum/dirtytables/database"
)

// LoadFixture inserts rows into a table. Each map is one row keyed by
// column name; columns are inserted in sorted order.
func LoadFixture(ctx context.Context, ex database.Executor, table string, rows []map[string]any) error {
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		columns := slices.Sorted(maps.Keys(row))
		quoted := make([]string, len(columns))
		args := make([]any, len(columns))
		for i, c := range columns {
			quoted[i] = quoteIdent(ex, c)
			args[i] = row[c]
		}
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quoteIdent(ex, table),
			strings.Join(quoted, ", "),
			strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "),
		)
		if err := ex.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert fixture row into %s: %w", table, err)
		}
	}
	return nil
}

// MustLoadFixture loads test data and fails the test on error.
func MustLoadFixture(t testing.TB, ex database.Executor, table string, rows []map[string]any) {
	t.Helper()
	if err := LoadFixture(context.Background(), ex, table, rows); err != nil {
		t.Fatalf("LoadFixture failed: %v", err)
	}
}

// TableExists reports whether the session can see the table.
func TableExists(ctx context.Context, ex database.Executor, table string) (bool, error) {
	tables, err := ex.ListTables(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(tables, table), nil
}

// CountRows returns the number of rows in a table.
func CountRows(ctx context.Context, ex database.Executor, table string) (int64, error) {
	rows, err := ex.Query(ctx, "SELECT COUNT(*) AS n FROM "+quoteIdent(ex, table))
	if err != nil {
		return 0, err
	}
	values := rows.Column("n")
	if len(values) != 1 {
		return 0, fmt.Errorf("count of %s returned %d rows", table, len(values))
	}
	return strconv.ParseInt(values[0], 10, 64)
}

// AssertTableEmpty fails the test if the table is not empty.
func AssertTableEmpty(t testing.TB, ex database.Executor, table string) {
	t.Helper()
	AssertRowCount(t, ex, table, 0)
}

// AssertRowCount fails the test if the table doesn't have the expected row count.
func AssertRowCount(t testing.TB, ex database.Executor, table string, expected int64) {
	t.Helper()
	count, err := CountRows(context.Background(), ex, table)
	if err != nil {
		t.Fatalf("failed to count rows in %s: %v", table, err)
	}
	if count != expected {
		t.Errorf("table %s row count = %d, want %d", table, count, expected)
	}
}

func quoteIdent(ex database.Executor, name string) string {
	if ex.Config().Driver == database.DriverMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
