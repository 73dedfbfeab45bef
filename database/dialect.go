package database

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Catalog queries listing the tables a session can see. Each returns a
// single column named "name".
const (
	mysqlListTablesSQL = "SELECT table_name AS name FROM information_schema.tables " +
		"WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name"

	postgresListTablesSQL = "SELECT table_name AS name FROM information_schema.tables " +
		"WHERE table_type IN ('BASE TABLE', 'LOCAL TEMPORARY') " +
		"AND (table_schema = current_schema() OR table_schema = pg_my_temp_schema()::regnamespace::text) " +
		"ORDER BY table_name"

	sqliteListTablesSQL = "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite\\_%' ESCAPE '\\' " +
		"UNION SELECT name FROM sqlite_temp_master WHERE type = 'table' AND name NOT LIKE 'sqlite\\_%' ESCAPE '\\' " +
		"ORDER BY name"
)

// Dialector returns the gorm dialector for a driver.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch NormalizeDriver(driver) {
	case DriverMySQL:
		return mysql.Open(dsn), nil
	case DriverPostgres:
		return postgres.Open(dsn), nil
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

func listTablesSQL(driver string) (string, error) {
	switch NormalizeDriver(driver) {
	case DriverMySQL:
		return mysqlListTablesSQL, nil
	case DriverPostgres:
		return postgresListTablesSQL, nil
	case DriverSQLite:
		return sqliteListTablesSQL, nil
	default:
		return "", fmt.Errorf("unsupported driver %q", driver)
	}
}
