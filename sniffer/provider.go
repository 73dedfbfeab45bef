package sniffer

import (
	"context"

	"github.com/kbukum/dirtytables/database"
)

// Trigger is one insert trigger to install.
type Trigger struct {
	// Table is the tracked table.
	Table string
	// Name is the trigger identifier, already truncated for the engine.
	Name string
}

// TriggerProvider supplies the engine-specific SQL behind a Tracker.
//
// Every implementation must behave the same way so the tracker stays
// engine-agnostic: DropTriggers is idempotent, CreateTriggers is only called
// when no triggers exist, and TruncateDirtyTables clears the collector if
// and only if every dirty table was emptied.
type TriggerProvider interface {
	// Driver returns the database driver the provider serves.
	Driver() string
	// MaxIdentifierLength returns the engine's identifier limit, 0 for none.
	MaxIdentifierLength() int
	// CreateTriggers installs one insert trigger per entry.
	CreateTriggers(ctx context.Context, ex database.Executor, triggers []Trigger, mode Mode) error
	// DropTriggers removes every trigger this provider installed.
	DropTriggers(ctx context.Context, ex database.Executor) error
	// Triggers lists the installed trigger names.
	Triggers(ctx context.Context, ex database.Executor) ([]string, error)
	// CreateTruncateDirtyTablesProcedure installs whatever TruncateDirtyTables needs.
	CreateTruncateDirtyTablesProcedure(ctx context.Context, ex database.Executor) error
	// TruncateDirtyTables empties every dirty table, then the collector.
	TruncateDirtyTables(ctx context.Context, ex database.Executor) error
	// MarkAllTablesAsDirty records tables in the collector.
	MarkAllTablesAsDirty(ctx context.Context, ex database.Executor, tables []string) error
	// DropTables drops tables regardless of foreign keys between them.
	DropTables(ctx context.Context, ex database.Executor, tables []string) error
}
