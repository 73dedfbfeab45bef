// Package errors provides the error types surfaced by dirtytables.
//
// Every failure is an *AppError carrying a machine-readable code. The codes
// map one-to-one onto the ways a cleanup can go wrong: a bad configuration,
// triggers that could not be installed, dirty-table tracking that could not
// recover, or a query that failed on a named connection.
package errors
