package sniffer

import (
	"fmt"
	"strings"
)

const (
	// CollectorTable records the dirty tables.
	CollectorTable = "test_suite_light_dirty_tables"
	// TriggerPrefix starts the name of every insert trigger.
	TriggerPrefix = "dirty_table_spy_"
	// MigrationTable is the golang-migrate version table.
	MigrationTable = "schema_migrations"
	// PhinxlogSuffix ends the name of phinx migration logs.
	PhinxlogSuffix = "phinxlog"
)

// IsMigrationLog reports whether a table belongs to a migration tool.
func IsMigrationLog(table string) bool {
	return table == MigrationTable || strings.HasSuffix(table, PhinxlogSuffix)
}

// TriggerName returns the trigger name for table, cut to maxLen bytes.
// maxLen <= 0 means no limit.
func TriggerName(table string, maxLen int) string {
	name := TriggerPrefix + table
	if maxLen > 0 && len(name) > maxLen {
		name = name[:maxLen]
	}
	return name
}

// BuildTriggers computes the trigger of every table. Two tables whose
// names only differ past the identifier limit would share a trigger, so
// that case is rejected.
func BuildTriggers(tables []string, maxLen int) ([]Trigger, error) {
	triggers := make([]Trigger, 0, len(tables))
	owner := make(map[string]string, len(tables))
	for _, table := range tables {
		name := TriggerName(table, maxLen)
		if other, ok := owner[name]; ok {
			return nil, fmt.Errorf("tables '%s' and '%s' both map to trigger '%s'; "+
				"shorten one of the table names to at most %d characters",
				other, table, name, maxLen-len(TriggerPrefix))
		}
		owner[name] = table
		triggers = append(triggers, Trigger{Table: table, Name: name})
	}
	return triggers, nil
}

// Quote returns s with its single quotes doubled, for use inside a SQL string literal.
func Quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
