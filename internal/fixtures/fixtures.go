// Package fixtures bootstraps the demo schema (players, orders, users) the
// CLI and integration tests run live queries against, using
// golang-migrate/migrate driven off an embedded migration source in place
// of a bindata-generated temp directory, since Go 1.16+'s go:embed plus
// source/iofs makes that the idiomatic route with no bindata step to
// preserve.
package fixtures

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Bootstrap applies every up migration to db, creating the demo schema if
// it does not already exist. It is idempotent: running it against an
// already-migrated database is a no-op.
func Bootstrap(db *sql.DB) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("fixtures: load embedded migrations: %w", err)
	}

	instance, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("fixtures: attach sqlite3 migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlive_demo", instance)
	if err != nil {
		return fmt.Errorf("fixtures: new migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("fixtures: migrate up: %w", err)
	}
	return nil
}
