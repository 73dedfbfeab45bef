package database

import (
	"context"
	"fmt"
	"strings"
)

// Executor runs SQL on one logical test connection.
//
// Implementations keep every statement on the same session so temporary
// tables and triggers stay visible between calls.
type Executor interface {
	// Name returns the connection name.
	Name() string
	// Config returns the connection configuration.
	Config() Config
	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, query string, args ...any) error
	// Query runs a statement and returns every row.
	Query(ctx context.Context, query string, args ...any) (*Rows, error)
	// ListTables returns the names of all tables visible to the session, ordered by name.
	ListTables(ctx context.Context) ([]string, error)
	// Transaction runs fn inside a transaction. fn's error rolls it back.
	Transaction(ctx context.Context, fn func(Executor) error) error
}

// Rows is a fully buffered query result.
type Rows struct {
	Columns []string
	Values  [][]any
}

// Len returns the number of rows.
func (r *Rows) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Values)
}

// Strings returns one column as strings: the column called "name" when
// present, otherwise the first one. NULLs are skipped.
func (r *Rows) Strings() []string {
	if r == nil || len(r.Columns) == 0 {
		return nil
	}
	col := 0
	for i, c := range r.Columns {
		if strings.EqualFold(c, "name") {
			col = i
			break
		}
	}
	return r.column(col)
}

// Column returns the named column (case-insensitive) as strings, or nil
// when the result has no such column. NULLs become empty strings so the
// result lines up with other columns.
func (r *Rows) Column(name string) []string {
	if r == nil {
		return nil
	}
	for i, c := range r.Columns {
		if strings.EqualFold(c, name) {
			out := make([]string, len(r.Values))
			for j, row := range r.Values {
				if i < len(row) && row[i] != nil {
					out[j] = asString(row[i])
				}
			}
			return out
		}
	}
	return nil
}

func (r *Rows) column(col int) []string {
	out := make([]string, 0, len(r.Values))
	for _, row := range r.Values {
		if col >= len(row) || row[col] == nil {
			continue
		}
		out = append(out, asString(row[col]))
	}
	return out
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}
