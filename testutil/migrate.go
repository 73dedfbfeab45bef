package testutil

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Migrate applies every pending up migration found in dir of fsys to the
// database at databaseURL, e.g. "sqlite3:///tmp/app_test.db". The migrator
// opens its own session and closes it before returning, so the schema
// migrations table it keeps is an ordinary table of the database.
//
// The caller imports the golang-migrate database driver for the URL scheme.
func Migrate(databaseURL string, fsys fs.FS, dir string) (err error) {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		err = errors.Join(err, srcErr, dbErr)
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// MustMigrate runs Migrate and fails the test on error.
func MustMigrate(t testing.TB, databaseURL string, fsys fs.FS, dir string) {
	t.Helper()
	if err := Migrate(databaseURL, fsys, dir); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
}
