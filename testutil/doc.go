// Package testutil wires dirty table cleanup into Go tests.
//
// A TestComponent is a component.Component that can also be Reset between
// tests. fixture.Manager is one: Reset truncates the tables the previous
// test inserted into.
//
// # Quick Start
//
//	func TestCheckout(t *testing.T) {
//	    testutil.T(t).Setup(fixtures)       // started now, stopped at test end
//	    t.Cleanup(func() { testutil.T(t).Reset(fixtures) })
//	    ...
//	}
//
// Several database clusters, one fixture manager each:
//
//	manager := testutil.NewManager(ctx)
//	manager.AddFixtures("app", appConfig)
//	manager.AddFixtures("reporting", reportingConfig)
//	manager.Bind(t)       // started now, stopped at test end
//	manager.ResetAfter(t) // every cluster truncated at test end
//
// # Data helpers
//
// LoadFixture inserts rows, CountRows, AssertRowCount and AssertTableEmpty
// inspect tables, and Migrate applies a golang-migrate schema. They work on
// any database.Executor.
package testutil
