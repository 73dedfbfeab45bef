// Package fixture cleans the test databases between tests.
//
// A Manager owns one lazily opened connection and one dirty table tracker
// per configured connection. Between tests, Reset (or
// TruncateDirtyTablesForAllTestConnections) empties exactly the tables
// that received inserts on every connection named "test" or "test_*".
//
//	m, err := fixture.New(cfg)
//	...
//	testutil.T(t).Setup(m)
//	t.Cleanup(func() { testutil.T(t).Reset(m) })
package fixture
