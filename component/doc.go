// Package component defines the lifecycle interfaces shared by the fixture
// manager, the telemetry setup and the CLI.
//
// # Interfaces
//
//   - Component: Start/Stop/Health lifecycle
//   - Describable: one-line summaries for status output
//
// Lazy wraps an expensive initializer, such as opening a database
// connection, so it runs on first use. Registry starts components in
// registration order and stops them in reverse.
package component
