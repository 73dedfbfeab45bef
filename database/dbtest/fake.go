// Package dbtest provides a recording in-memory database.Executor for tests
// that assert on the SQL a component issues.
package dbtest

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/kbukum/dirtytables/database"
)

// ListTablesStatement is recorded whenever ListTables is called. Failure
// rules can match it like any SQL text.
const ListTablesStatement = "<list tables>"

// Statement is one recorded call.
type Statement struct {
	SQL  string
	Args []any
}

type failRule struct {
	match string
	err   error
	left  int // 0 = forever
}

type rowsRule struct {
	match string
	rows  *database.Rows
}

var (
	createTableRe = regexp.MustCompile(`(?i)^\s*CREATE\s+(?:TEMP\s+|TEMPORARY\s+)?TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?["` + "`" + `]?(\w+)`)
	dropTableRe   = regexp.MustCompile(`(?i)^\s*DROP\s+TABLE\s+(?:IF\s+EXISTS\s+)?["` + "`" + `]?(\w+)`)
	fromTableRe   = regexp.MustCompile(`(?i)\bFROM\s+["` + "`" + `]?([\w.]+)`)
)

// Executor is a fake database.Executor.
//
// It keeps a list of tables, updated by CREATE TABLE and DROP TABLE
// statements. Queries return the rows of the first matching OnQuery rule;
// without one, a query reading FROM an unknown table fails and anything
// else returns no rows. FailOn rules win over everything.
type Executor struct {
	mu         sync.Mutex
	cfg        database.Config
	tables     []string
	statements []Statement
	fails      []*failRule
	rows       []rowsRule
}

var _ database.Executor = (*Executor)(nil)

// New creates a fake connection with the given config and existing tables.
func New(cfg database.Config, tables ...string) *Executor {
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	if cfg.Database == "" {
		cfg.Database = "app_test"
	}
	return &Executor{cfg: cfg, tables: slices.Clone(tables)}
}

// FailOn makes statements containing match fail with err. times bounds how
// often the rule fires; 0 means always.
func (e *Executor) FailOn(match string, err error, times int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fails = append(e.fails, &failRule{match: match, err: err, left: times})
}

// OnQuery makes queries containing match return rows.
func (e *Executor) OnQuery(match string, rows *database.Rows) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows = append(e.rows, rowsRule{match: match, rows: rows})
}

// SetTables replaces the known table list.
func (e *Executor) SetTables(tables ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables = slices.Clone(tables)
}

// Tables returns the known table list.
func (e *Executor) Tables() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.tables)
}

// Statements returns every recorded call in order.
func (e *Executor) Statements() []Statement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.statements)
}

// SQL returns the recorded SQL texts in order.
func (e *Executor) SQL() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.statements))
	for i, s := range e.statements {
		out[i] = s.SQL
	}
	return out
}

// Count returns how many recorded statements contain substr.
func (e *Executor) Count(substr string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, s := range e.statements {
		if strings.Contains(s.SQL, substr) {
			n++
		}
	}
	return n
}

// Len returns the number of recorded statements.
func (e *Executor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.statements)
}

// ResetStatements forgets the recorded statements but keeps tables and rules.
func (e *Executor) ResetStatements() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statements = nil
}

// Name returns the connection name.
func (e *Executor) Name() string { return e.cfg.Name }

// Config returns the connection config.
func (e *Executor) Config() database.Config { return e.cfg }

// Exec records query and applies CREATE/DROP TABLE to the table list.
func (e *Executor) Exec(_ context.Context, query string, args ...any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record(query, args); err != nil {
		return err
	}
	if m := createTableRe.FindStringSubmatch(query); m != nil && !slices.Contains(e.tables, m[1]) {
		e.tables = append(e.tables, m[1])
		slices.Sort(e.tables)
	}
	if m := dropTableRe.FindStringSubmatch(query); m != nil {
		e.tables = slices.DeleteFunc(e.tables, func(t string) bool { return t == m[1] })
	}
	return nil
}

// Query records query and returns the rows of the first matching rule.
func (e *Executor) Query(_ context.Context, query string, args ...any) (*database.Rows, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record(query, args); err != nil {
		return nil, err
	}
	for _, r := range e.rows {
		if strings.Contains(query, r.match) {
			return r.rows, nil
		}
	}
	if m := fromTableRe.FindStringSubmatch(query); m != nil && !isCatalog(m[1]) {
		if !slices.Contains(e.tables, m[1]) {
			return nil, fmt.Errorf("no such table: %s", m[1])
		}
	}
	return &database.Rows{Columns: []string{"name"}}, nil
}

// ListTables records ListTablesStatement and returns the known tables.
func (e *Executor) ListTables(_ context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record(ListTablesStatement, nil); err != nil {
		return nil, err
	}
	return slices.Clone(e.tables), nil
}

// Transaction records BEGIN, runs fn against the same fake, then records
// COMMIT or ROLLBACK. Rolled back statements stay recorded.
func (e *Executor) Transaction(_ context.Context, fn func(database.Executor) error) error {
	e.mu.Lock()
	e.statements = append(e.statements, Statement{SQL: "BEGIN"})
	e.mu.Unlock()

	err := fn(e)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.statements = append(e.statements, Statement{SQL: "ROLLBACK"})
		return err
	}
	e.statements = append(e.statements, Statement{SQL: "COMMIT"})
	return nil
}

func (e *Executor) record(query string, args []any) error {
	e.statements = append(e.statements, Statement{SQL: query, Args: args})
	for _, r := range e.fails {
		if r.left < 0 || !strings.Contains(query, r.match) {
			continue
		}
		if r.left > 0 {
			r.left--
			if r.left == 0 {
				r.left = -1
			}
		}
		return r.err
	}
	return nil
}

func isCatalog(table string) bool {
	return strings.Contains(table, ".") ||
		strings.HasPrefix(table, "pg_") ||
		strings.HasPrefix(table, "sqlite_")
}

// Rows builds a single-column result named "name".
func Rows(values ...string) *database.Rows {
	out := &database.Rows{Columns: []string{"name"}}
	for _, v := range values {
		out.Values = append(out.Values, []any{v})
	}
	return out
}
