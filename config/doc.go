// Package config loads the dirty table configuration: named test
// connections, their collector modes, sniffer overrides, logging and
// telemetry settings.
//
// Files are YAML and found in standard locations (dirtytables.yml,
// config/dirtytables.yml, tests/dirtytables.yml, ...) unless a path is
// given. A .env file is loaded when present, and environment variables
// override keys already set in the file:
//
//	CONNECTIONS_TEST_DSN=file:/tmp/app_test.db
//
// replaces connections.test.dsn.
//
// # Usage
//
//	cfg, err := config.Load("tests/dirtytables.yml")
package config
