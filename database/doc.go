// Package database opens the named test connections that dirty-table
// tracking runs on.
//
// A Connection wraps gorm with the dialector for its driver (mysql, postgres
// or sqlite) and implements Executor, the narrow interface the tracker and
// the trigger providers use:
//
//	conn, err := database.Open(ctx, database.Config{
//	    Name:   "test",
//	    Driver: "sqlite",
//	    DSN:    "file:app_test.db",
//	}, log)
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	tables, err := conn.ListTables(ctx)
//
// The pool is pinned to a single session by default. Temporary tables and
// triggers only exist on the session that created them, so a temporary
// collector requires max_open_conns = 1.
package database
