// Package sniffer tracks which tables of a test database received inserts
// since the last cleanup, so only those need truncating.
//
// A Tracker owns the collector table (test_suite_light_dirty_tables), the
// per-table insert triggers feeding it, and the Temporary/Permanent mode
// switch. Engine-specific SQL lives behind TriggerProvider, implemented in
// the mysql, postgres and sqlite subpackages.
//
//	tracker, err := sniffer.New(conn, sqlite.New(), sniffer.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	if err := tracker.Init(ctx); err != nil {
//	    return err
//	}
//	// ... run a test ...
//	err = tracker.TruncateDirtyTables(ctx)
//
// A Tracker is not safe for concurrent use. Registry keeps one tracker per
// connection name.
package sniffer
