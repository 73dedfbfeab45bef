package database

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
)

// DatabaseName extracts the database name from a driver DSN.
func DatabaseName(driver, dsn string) (string, error) {
	switch NormalizeDriver(driver) {
	case DriverMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		return cfg.DBName, nil
	case DriverPostgres:
		cfg, err := pgx.ParseConfig(dsn)
		if err != nil {
			return "", fmt.Errorf("parse postgres dsn: %w", err)
		}
		return cfg.Database, nil
	case DriverSQLite:
		return sqliteDatabaseName(dsn), nil
	default:
		return "", fmt.Errorf("unsupported driver %q", driver)
	}
}

func sqliteDatabaseName(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return "memory"
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
